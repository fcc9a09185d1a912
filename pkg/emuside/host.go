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

// Package emuside implements the logic that runs inside the emulator's
// embedded scripting environment: the game-load readiness poller, the
// flag-file shutdown watchdog, the connector handoff and the migration
// helper invocation. Everything here is single-threaded cooperative
// code driven by the host's frame loop; nothing may block longer than
// one tick.
package emuside

// SystemIDSentinel is the reserved system identifier the host returns
// before any game image has loaded. It means "not ready", never a real
// answer.
const SystemIDSentinel = "NULL"

// Host is the query surface the emulator exposes to the embedded
// environment. All methods are synchronous and must return within one
// frame; failures are per-call and never assumed sticky.
type Host interface {
	// SystemID returns the loaded game's system identifier, or the
	// sentinel (or empty string) when no core is loaded yet.
	SystemID() string

	// PathEntry resolves a configured path entry for a system and kind
	// using three-tier key fallback.
	PathEntry(system, kind string) (string, bool)

	// OnTick registers a per-frame callback. Returns false when the
	// host exposes no event hooks, in which case callers fall back to
	// a bounded loop on Yield or a periodic heartbeat.
	OnTick(fn func()) bool

	// Yield suspends until the next host-defined checkpoint, advancing
	// one frame. It is the only legal way to wait.
	Yield()

	// FlushSaveRAM asks the emulator to flush save data to disk.
	FlushSaveRAM() error

	// RequestExit asks the emulator process to exit. Exit may be
	// asynchronous; flushes after it are best-effort.
	RequestExit() error

	// ProcessID returns the emulator's own process id, best-effort.
	ProcessID() (int, bool)

	// WorkingDir is the emulator's per-install working directory.
	WorkingDir() string
}
