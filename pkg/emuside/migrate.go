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
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/BizBridgeProject/bizbridge-core/pkg/procmon"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// ErrHelperMissing is returned when the configured migration helper
// does not exist. Save repair must never be silently skipped.
var ErrHelperMissing = errors.New("migration helper not found")

// MigrationTask asks the external repair process to consolidate one
// system's save storage. The pid, when known, lets the helper wait for
// the emulator to fully exit before touching shared save files.
type MigrationTask struct {
	System string
	Pid    int
	HasPid bool
}

// BuildMigrationTask constructs a task for system with a best-effort
// emulator pid: the host's self-identification accessor first, then a
// process-table lookup by the emulator's name. A missing pid is
// non-fatal and only logged.
func BuildMigrationTask(system string, host Host, monitor *procmon.Monitor) MigrationTask {
	task := MigrationTask{System: system}

	if pid, ok := host.ProcessID(); ok {
		task.Pid = pid
		task.HasPid = true
		return task
	}

	if monitor != nil {
		if pid, ok := monitor.AnyPid(nil); ok {
			task.Pid = int(pid)
			task.HasPid = true
			return task
		}
	}

	log.Warn().Str("system", system).Msg("could not determine emulator pid for migration task")
	return task
}

// HelperInvoker launches the external save-repair process.
type HelperInvoker struct {
	fs         afero.Fs
	helperPath string
}

func NewHelperInvoker(fs afero.Fs, helperPath string) *HelperInvoker {
	return &HelperInvoker{fs: fs, helperPath: helperPath}
}

// Resolve verifies the configured helper exists. Absence is a hard,
// loud failure.
func (i *HelperInvoker) Resolve() error {
	if i.helperPath == "" {
		return fmt.Errorf("%w: no helper path configured", ErrHelperMissing)
	}
	exists, err := afero.Exists(i.fs, i.helperPath)
	if err != nil {
		return fmt.Errorf("failed to stat migration helper: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrHelperMissing, i.helperPath)
	}
	return nil
}

// Dispatch invokes the helper asynchronously with the system identifier
// and, when known, the emulator's pid as positional arguments.
func (i *HelperInvoker) Dispatch(task MigrationTask) error {
	if err := i.Resolve(); err != nil {
		return err
	}

	args := []string{task.System}
	if task.HasPid {
		args = append(args, strconv.Itoa(task.Pid))
	}

	cmd := exec.Command(i.helperPath, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start migration helper: %w", err)
	}

	log.Info().
		Str("system", task.System).
		Int("helper_pid", cmd.Process.Pid).
		Msg("migration helper dispatched")

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug().Err(err).Msg("migration helper exited with error")
		}
	}()

	return nil
}
