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

// Package procmon detects new instances of the externally launched
// emulator by diffing process-table snapshots against a baseline.
package procmon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"
)

const exitPollInterval = 250 * time.Millisecond

// Snapshot is the set of matching process ids captured at one instant.
type Snapshot map[int32]struct{}

// processLister is swapped out in tests to avoid touching the real
// process table.
type processLister func() ([]*process.Process, error)

// Monitor scans the process table for processes whose executable base
// name matches the emulator's process name.
type Monitor struct {
	list     processLister
	procName func(*process.Process) (string, error)
	clock    clockwork.Clock
	name     string
}

func NewMonitor(name string, clock clockwork.Clock) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Monitor{
		name:     strings.ToLower(name),
		clock:    clock,
		list:     process.Processes,
		procName: (*process.Process).Name,
	}
}

func (m *Monitor) matches(p *process.Process) bool {
	name, err := m.procName(p)
	if err != nil {
		// Process may have exited mid-scan.
		return false
	}
	return strings.ToLower(name) == m.name
}

// Snapshot captures the current set of matching process ids.
func (m *Monitor) Snapshot() (Snapshot, error) {
	procs, err := m.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	snap := make(Snapshot)
	for _, p := range procs {
		if m.matches(p) {
			snap[p.Pid] = struct{}{}
		}
	}
	return snap, nil
}

// HasNewInstance reports whether any matching process exists now that was
// absent from baseline. No ordering guarantees across concurrent
// launches; at most one relevant session per cycle is assumed.
func (m *Monitor) HasNewInstance(baseline Snapshot) (bool, error) {
	current, err := m.Snapshot()
	if err != nil {
		return false, err
	}
	for pid := range current {
		if _, ok := baseline[pid]; !ok {
			return true, nil
		}
	}
	return false, nil
}

// Tracked returns the matching pids not present in baseline.
func (m *Monitor) Tracked(baseline Snapshot) (Snapshot, error) {
	current, err := m.Snapshot()
	if err != nil {
		return nil, err
	}
	tracked := make(Snapshot)
	for pid := range current {
		if _, ok := baseline[pid]; !ok {
			tracked[pid] = struct{}{}
		}
	}
	return tracked, nil
}

// AnyPid returns one matching pid not in baseline, best-effort.
func (m *Monitor) AnyPid(baseline Snapshot) (int32, bool) {
	tracked, err := m.Tracked(baseline)
	if err != nil {
		log.Debug().Err(err).Msg("process scan failed during pid lookup")
		return 0, false
	}
	for pid := range tracked {
		return pid, true
	}
	return 0, false
}

// WaitForExit polls until every tracked emulator process has exited or
// the timeout elapses. Returns true when no tracked process remains.
func (m *Monitor) WaitForExit(ctx context.Context, baseline Snapshot, timeout time.Duration) bool {
	deadline := m.clock.Now().Add(timeout)
	for m.clock.Now().Before(deadline) {
		tracked, err := m.Tracked(baseline)
		if err == nil && len(tracked) == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-m.clock.After(exitPollInterval):
		}
	}

	tracked, err := m.Tracked(baseline)
	return err == nil && len(tracked) == 0
}
