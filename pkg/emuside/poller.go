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

package emuside

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BizBridgeProject/bizbridge-core/pkg/config"
	"github.com/BizBridgeProject/bizbridge-core/pkg/procmon"
	"github.com/BizBridgeProject/bizbridge-core/pkg/saveram"
	"github.com/rs/zerolog/log"
)

// DefaultTickCeiling bounds readiness polling, roughly ten seconds at a
// typical frame rate.
const DefaultTickCeiling = 600

// ErrReadinessTimeout means no game loaded before the tick ceiling.
// It is deliberately distinct from genuine faults so callers can tell
// "nothing happened" apart from "something broke".
var ErrReadinessTimeout = errors.New("no game loaded before tick ceiling")

// Result is the outcome of one readiness poll.
type Result int

const (
	// NotReady means no core is loaded yet; retry next tick.
	NotReady Result = iota
	// Connected means the save path was valid and the connector script
	// has been handed off to.
	Connected
	// MigrationDispatched means the save path needed repair: the
	// migration helper was invoked and emulator exit requested.
	MigrationDispatched
)

// Poller gates all downstream logic on game-load readiness.
type Poller struct {
	host      Host
	saves     *saveram.Manager
	connector *ConnectorLoader
	invoker   *HelperInvoker
	monitor   *procmon.Monitor
	connPath  string
	maxTicks  int
}

func NewPoller(
	host Host,
	saves *saveram.Manager,
	connector *ConnectorLoader,
	invoker *HelperInvoker,
	monitor *procmon.Monitor,
	connectorPath string,
) *Poller {
	return &Poller{
		host:      host,
		saves:     saves,
		connector: connector,
		invoker:   invoker,
		monitor:   monitor,
		connPath:  connectorPath,
		maxTicks:  DefaultTickCeiling,
	}
}

// RunOnce performs a single readiness check. NotReady with a nil error
// is the expected result while no core is loaded.
func (p *Poller) RunOnce() (Result, error) {
	system := p.host.SystemID()
	if system == "" || system == SystemIDSentinel {
		return NotReady, nil
	}

	system = strings.ToLower(system)

	saveDir, ok := p.host.PathEntry(system, config.PathKindSaveRAM)
	if !ok {
		return NotReady, fmt.Errorf("no save path entry resolvable for system %q", system)
	}

	savePath := filepath.Join(p.host.WorkingDir(), system, saveDir)
	state, err := p.saves.Classify(savePath)
	if err != nil {
		return NotReady, err
	}

	log.Info().
		Str("system", system).
		Str("save_path", savePath).
		Str("state", state.String()).
		Msg("game loaded, save path classified")

	if state == saveram.StateValidSymlink {
		if err := p.connector.Load(p.connPath); err != nil {
			return NotReady, err
		}
		return Connected, nil
	}

	// Unresolved save path: hand the repair to the external helper and
	// terminate the emulator so no stale session holds save file
	// handles during the repair.
	task := BuildMigrationTask(system, p.host, p.monitor)
	if err := p.invoker.Dispatch(task); err != nil {
		return NotReady, err
	}
	if err := p.host.RequestExit(); err != nil {
		log.Error().Err(err).Msg("exit request after migration dispatch failed")
	}
	return MigrationDispatched, nil
}

// Start begins readiness polling. When the host exposes a per-frame
// hook the poller registers against it, Start returns immediately and
// done is called from a later tick. Otherwise Start drives a bounded
// synchronous loop on the host's yield primitive and calls done before
// returning. Either way done is called exactly once, with
// ErrReadinessTimeout when the tick ceiling is exceeded.
func (p *Poller) Start(ctx context.Context, done func(Result, error)) {
	ticks := 0
	finished := false

	step := func() (Result, error, bool) {
		res, err := p.RunOnce()
		if err != nil || res != NotReady {
			return res, err, true
		}
		ticks++
		if ticks >= p.maxTicks {
			return NotReady, ErrReadinessTimeout, true
		}
		return NotReady, nil, false
	}

	if p.host.OnTick(func() {
		if finished {
			return
		}
		if res, err, fin := step(); fin {
			finished = true
			done(res, err)
		}
	}) {
		log.Debug().Msg("readiness poller registered on host tick hook")
		return
	}

	log.Debug().Msg("no host tick hook, readiness poller using bounded yield loop")
	for {
		select {
		case <-ctx.Done():
			done(NotReady, ctx.Err())
			return
		default:
		}

		if res, err, fin := step(); fin {
			done(res, err)
			return
		}

		// Never a blocking sleep: yield back to the host's frame loop.
		p.host.Yield()
	}
}
