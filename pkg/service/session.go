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

// Package service runs one orchestrator session: capture a process
// baseline, hand the patch to the companion application, run the
// extension behavior cycle, and signal shutdown to the emulator side
// when the session ends.
package service

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/BizBridgeProject/bizbridge-core/pkg/behaviors"
	"github.com/BizBridgeProject/bizbridge-core/pkg/config"
	"github.com/BizBridgeProject/bizbridge-core/pkg/launcher"
	"github.com/BizBridgeProject/bizbridge-core/pkg/procmon"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// DefaultExitWait bounds how long the orchestrator waits for tracked
// emulator processes to exit after signalling shutdown.
const DefaultExitWait = 30 * time.Second

// CompanionLauncher starts the external game-coordination application
// with a patch file. It may or may not itself start the emulator;
// learning which is the behavior engine's job.
type CompanionLauncher interface {
	Launch(ctx context.Context, patch string) error
}

// ExecCompanionLauncher starts the companion application as a detached
// child process.
type ExecCompanionLauncher struct {
	Exe string
}

func (l *ExecCompanionLauncher) Launch(_ context.Context, patch string) error {
	if l.Exe == "" {
		return errors.New("companion application not configured")
	}

	cmd := exec.Command(l.Exe, patch)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start companion application: %w", err)
	}

	log.Info().Int("pid", cmd.Process.Pid).Str("patch", patch).Msg("companion application started")

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug().Err(err).Msg("companion application exited with error")
		}
	}()

	return nil
}

// Session coordinates one launch cycle end to end.
type Session struct {
	fs        afero.Fs
	cfg       *config.Instance
	monitor   *procmon.Monitor
	engine    *launcher.Engine
	companion CompanionLauncher
	clock     clockwork.Clock
	id        string
	baseline  procmon.Snapshot
}

func NewSession(
	fs afero.Fs,
	cfg *config.Instance,
	store *behaviors.Store,
	companion CompanionLauncher,
	clock clockwork.Clock,
) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	monitor := procmon.NewMonitor(cfg.EmulatorProcessName(), clock)
	waiter := launcher.NewTargetWaiter(fs, clock)
	engine := launcher.NewEngine(
		store,
		monitor,
		waiter,
		&launcher.ExecLauncher{Exe: cfg.EmulatorExe()},
		cfg.EmulatorImageExt(),
		clock,
	)

	return &Session{
		fs:        fs,
		cfg:       cfg,
		monitor:   monitor,
		engine:    engine,
		companion: companion,
		clock:     clock,
		id:        uuid.New().String(),
	}
}

// Run captures the liveness baseline, launches the companion
// application with the patch, then runs the behavior cycle for the
// patch's extension.
func (s *Session) Run(ctx context.Context, patch string) error {
	log.Info().Str("session", s.id).Str("patch", patch).Msg("starting session")

	baseline, err := s.monitor.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to capture process baseline: %w", err)
	}
	s.baseline = baseline

	if err := s.companion.Launch(ctx, patch); err != nil {
		return err
	}

	return s.engine.RunCycle(ctx, patch, baseline)
}

// SignalShutdown creates the zero-content shutdown flag inside the
// emulator's working directory. Its existence is the entire payload.
func (s *Session) SignalShutdown() error {
	installRoot := s.cfg.EmulatorInstallRoot()
	if installRoot == "" {
		return errors.New("emulator install root not configured")
	}

	flag := filepath.Join(installRoot, config.ShutdownFlagNames[0])
	if err := afero.WriteFile(s.fs, flag, nil, 0o600); err != nil {
		return fmt.Errorf("failed to create shutdown flag: %w", err)
	}

	log.Info().Str("session", s.id).Str("flag", flag).Msg("shutdown flag created")
	return nil
}

// AwaitEmulatorExit waits, bounded, for emulator processes launched
// during this session to exit.
func (s *Session) AwaitEmulatorExit(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultExitWait
	}
	exited := s.monitor.WaitForExit(ctx, s.baseline, timeout)
	if !exited {
		log.Warn().Str("session", s.id).Msg("emulator still running after shutdown wait")
	}
	return exited
}
