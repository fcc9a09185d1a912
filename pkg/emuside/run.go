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
	"fmt"

	"github.com/BizBridgeProject/bizbridge-core/pkg/config"
	"github.com/BizBridgeProject/bizbridge-core/pkg/emuside/scripting"
	"github.com/BizBridgeProject/bizbridge-core/pkg/helpers"
	"github.com/BizBridgeProject/bizbridge-core/pkg/procmon"
	"github.com/BizBridgeProject/bizbridge-core/pkg/saveram"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Session composes the emulator-side stack from the loaded config: the
// consolidation manager rooted at the configured save root, the
// migration helper invoker behind the configured pointer, the connector
// loader with its script engine, the readiness poller and the shutdown
// watchdog. The embedded entry script builds one Session once the host
// surface is available and calls Run.
type Session struct {
	host     Host
	poller   *Poller
	watchdog *Watchdog
	invoker  *HelperInvoker
	clock    clockwork.Clock
}

func NewSession(fs afero.Fs, cfg *config.Instance, host Host, clock clockwork.Clock) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	root := cfg.SaveRoot()
	if root == "" {
		root = helpers.DefaultSaveRoot()
	}
	saves := saveram.NewManager(fs, root, clock)

	connector := NewConnectorLoader(fs, scripting.New(fs), host.WorkingDir())
	invoker := NewHelperInvoker(fs, cfg.MigrationHelper())
	monitor := procmon.NewMonitor(cfg.EmulatorProcessName(), clock)

	return &Session{
		host:     host,
		poller:   NewPoller(host, saves, connector, invoker, monitor, cfg.ConnectorScript()),
		watchdog: NewWatchdog(fs, host, config.ShutdownFlagNames),
		invoker:  invoker,
		clock:    clock,
	}
}

// Run verifies the migration helper pointer up front, starts the
// shutdown watchdog and begins readiness polling. done receives the
// poll outcome exactly once. A missing helper fails loudly before
// anything is scheduled, since save repair must never be silently
// unavailable later.
func (s *Session) Run(ctx context.Context, done func(Result, error)) error {
	if err := s.invoker.Resolve(); err != nil {
		return fmt.Errorf("refusing to start without migration helper: %w", err)
	}

	s.watchdog.Start(ctx, s.clock)

	log.Info().Str("work_dir", s.host.WorkingDir()).Msg("emulator-side session started")
	s.poller.Start(ctx, done)
	return nil
}
