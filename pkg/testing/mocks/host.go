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

// Package mocks provides test doubles for emulator-side interfaces.
package mocks

import (
	"strings"

	"github.com/BizBridgeProject/bizbridge-core/pkg/emuside"
)

// FakeHost is a scriptable emulator host for tests. SystemIDs is
// consumed one value per call, sticking on the final value; an empty
// slice always reports the sentinel.
type FakeHost struct {
	PathEntries map[string]string
	WorkDir     string
	SystemIDs   []string
	tickFns     []func()
	FlushErrs   []error
	FlushCalls  int
	ExitCalls   int
	YieldCalls  int
	Pid         int
	HasPid      bool
	HasTickHook bool
	idCalls     int
}

var _ emuside.Host = (*FakeHost)(nil)

func (h *FakeHost) SystemID() string {
	if len(h.SystemIDs) == 0 {
		return emuside.SystemIDSentinel
	}
	idx := h.idCalls
	if idx >= len(h.SystemIDs) {
		idx = len(h.SystemIDs) - 1
	}
	h.idCalls++
	return h.SystemIDs[idx]
}

// PathEntry mirrors the production three-tier key fallback.
func (h *FakeHost) PathEntry(system, kind string) (string, bool) {
	system = strings.ToLower(system)
	for _, key := range []string{system, system + "_generic", "generic"} {
		if val, ok := h.PathEntries[key]; ok && val != "" {
			return val, true
		}
	}
	_ = kind
	return "", false
}

func (h *FakeHost) OnTick(fn func()) bool {
	if !h.HasTickHook {
		return false
	}
	h.tickFns = append(h.tickFns, fn)
	return true
}

// DriveTicks fires every registered tick callback n times, simulating
// the host's frame loop.
func (h *FakeHost) DriveTicks(n int) {
	for i := 0; i < n; i++ {
		for _, fn := range h.tickFns {
			fn()
		}
	}
}

func (h *FakeHost) Yield() {
	h.YieldCalls++
}

func (h *FakeHost) FlushSaveRAM() error {
	call := h.FlushCalls
	h.FlushCalls++
	if call < len(h.FlushErrs) {
		return h.FlushErrs[call]
	}
	return nil
}

func (h *FakeHost) RequestExit() error {
	h.ExitCalls++
	return nil
}

func (h *FakeHost) ProcessID() (int, bool) {
	return h.Pid, h.HasPid
}

func (h *FakeHost) WorkingDir() string {
	return h.WorkDir
}
