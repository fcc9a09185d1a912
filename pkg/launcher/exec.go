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

package launcher

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog/log"
)

// ExecLauncher starts the emulator runner as a detached child process.
// The session does not wait on it; the liveness monitor tracks it.
type ExecLauncher struct {
	Exe string
}

func (l *ExecLauncher) Launch(_ context.Context, target string) error {
	if l.Exe == "" {
		return fmt.Errorf("emulator runner not configured")
	}

	// Deliberately not tied to the session context: the emulator must
	// outlive the orchestrator process.
	cmd := exec.Command(l.Exe, target)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start emulator runner: %w", err)
	}

	log.Info().Int("pid", cmd.Process.Pid).Str("target", target).Msg("emulator runner started")

	// Reap the child in the background so it never zombies.
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug().Err(err).Msg("emulator runner exited with error")
		}
	}()

	return nil
}
