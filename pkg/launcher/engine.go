// BizBridge
// Copyright (c) 2026 The BizBridge Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of BizBridge.
//
// BizBridge is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// BizBridge is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with BizBridge.  If not, see <http://www.gnu.org/licenses/>.

// Package launcher decides, per patch-file extension, whether the
// emulator must be launched directly or launches itself, learning the
// answer once by observing the process table and persisting it.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BizBridgeProject/bizbridge-core/pkg/behaviors"
	"github.com/BizBridgeProject/bizbridge-core/pkg/procmon"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	observeWindow   = 10 * time.Second
	observeInterval = 1 * time.Second
)

// EmulatorLauncher starts the emulator against a target image file.
type EmulatorLauncher interface {
	Launch(ctx context.Context, target string) error
}

// LivenessMonitor detects new emulator instances against a baseline.
type LivenessMonitor interface {
	HasNewInstance(baseline procmon.Snapshot) (bool, error)
}

// observeState tags the learning state machine:
// UNKNOWN -> OBSERVING -> {AUTO|FALLBACK}.
type observeState int

const (
	stateUnknown observeState = iota
	stateObserving
	stateAuto
	stateFallback
)

// Engine runs one launch-coordination cycle for a patch file.
type Engine struct {
	store    *behaviors.Store
	monitor  LivenessMonitor
	waiter   *TargetWaiter
	launcher EmulatorLauncher
	clock    clockwork.Clock
	imageExt string
}

func NewEngine(
	store *behaviors.Store,
	monitor LivenessMonitor,
	waiter *TargetWaiter,
	launcher EmulatorLauncher,
	imageExt string,
	clock clockwork.Clock,
) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		store:    store,
		monitor:  monitor,
		waiter:   waiter,
		launcher: launcher,
		clock:    clock,
		imageExt: imageExt,
	}
}

// RunCycle acts on the stored behavior for the patch's extension, or
// learns it when unset. At most one direct launch is attempted per
// cycle, and only for fallback behavior.
func (e *Engine) RunCycle(ctx context.Context, patch string, baseline procmon.Snapshot) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(patch)), ".")
	if ext == "" {
		return fmt.Errorf("patch file has no extension: %s", patch)
	}

	behavior := e.store.Lookup(ext)
	log.Info().
		Str("patch", patch).
		Str("ext", ext).
		Str("behavior", string(behavior)).
		Msg("running launch cycle")

	switch behavior {
	case behaviors.Auto:
		log.Info().Str("ext", ext).Msg("emulator launches itself, taking no action")
		return nil
	case behaviors.Fallback:
		return e.waitAndLaunch(ctx, patch)
	case behaviors.Unset:
		return e.learn(ctx, patch, ext, baseline)
	default:
		// Fail safe on anything unrecognized in the store.
		log.Warn().Str("ext", ext).Msg("unrecognized stored behavior, taking no action")
		return nil
	}
}

// learn observes the process table for a bounded window and records the
// outcome: a new emulator instance means auto, the deadline means
// fallback followed by a direct launch.
func (e *Engine) learn(ctx context.Context, patch, ext string, baseline procmon.Snapshot) error {
	state := stateUnknown
	deadline := e.clock.Now().Add(observeWindow)

	for state == stateUnknown || state == stateObserving {
		state = stateObserving

		appeared, err := e.monitor.HasNewInstance(baseline)
		if err != nil {
			log.Debug().Err(err).Msg("process scan failed during observation")
		} else if appeared {
			state = stateAuto
			break
		}

		if !e.clock.Now().Before(deadline) {
			state = stateFallback
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.clock.After(observeInterval):
		}
	}

	switch state {
	case stateAuto:
		log.Info().Str("ext", ext).Msg("new emulator instance detected, recording auto")
		e.record(ext, behaviors.Auto)
		return nil
	case stateFallback:
		log.Info().Str("ext", ext).Msg("no emulator appeared by deadline, recording fallback")
		e.record(ext, behaviors.Fallback)
		return e.waitAndLaunch(ctx, patch)
	default:
		return fmt.Errorf("observation ended in unexpected state %d", state)
	}
}

// record persists a learned behavior. Persistence failure is logged,
// not fatal: the decision still applies for this session.
func (e *Engine) record(ext string, behavior behaviors.Behavior) {
	if err := e.store.Record(ext, behavior); err != nil {
		log.Error().Err(err).Str("ext", ext).Msg("failed to persist extension behavior")
	}
}

func (e *Engine) waitAndLaunch(ctx context.Context, patch string) error {
	target := TargetPath(patch, e.imageExt)

	err := e.waiter.Wait(ctx, target)
	if errors.Is(err, ErrTargetTimeout) {
		log.Warn().Str("target", target).Msg("target file never appeared, not launching emulator")
		return nil
	}
	if err != nil {
		return err
	}

	log.Info().Str("target", target).Msg("launching emulator")
	if err := e.launcher.Launch(ctx, target); err != nil {
		return fmt.Errorf("failed to launch emulator: %w", err)
	}
	return nil
}
