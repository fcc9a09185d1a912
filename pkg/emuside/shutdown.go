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
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	// DefaultFlushAttempts is how many flushes run between flag
	// detection and the exit request, one per yield.
	DefaultFlushAttempts = 12
	// DefaultPostExitFlushAttempts is how many best-effort flushes run
	// after the exit request, since exit may be asynchronous.
	DefaultPostExitFlushAttempts = 4

	// HeartbeatInterval paces the watchdog when the host exposes no
	// per-frame hooks.
	HeartbeatInterval = 500 * time.Millisecond
)

// watchState tracks the shutdown sequence:
// WAITING -> FLUSHING -> EXITING -> POST_EXIT_FLUSH -> terminal.
type watchState int

const (
	stateWaiting watchState = iota
	stateFlushing
	stateExiting
	statePostExitFlush
	stateDone
)

// Watchdog watches for the orchestrator's shutdown flag file and, once
// it appears, runs the flush-and-exit sequence. The sequence is not
// cancellable after the flag is observed. Each Step call does one
// bounded unit of work, so the watchdog can be driven from a per-frame
// hook without ever blocking the host.
type Watchdog struct {
	fs        afero.Fs
	host      Host
	flagNames []string
	state     watchState
	flushLeft int
	postLeft  int
}

// NewWatchdog creates a watchdog checking flagNames, in priority order,
// inside the host's working directory.
func NewWatchdog(fs afero.Fs, host Host, flagNames []string) *Watchdog {
	return &Watchdog{
		fs:        fs,
		host:      host,
		flagNames: flagNames,
		state:     stateWaiting,
		flushLeft: DefaultFlushAttempts,
		postLeft:  DefaultPostExitFlushAttempts,
	}
}

// Done reports whether the shutdown sequence has fully run.
func (w *Watchdog) Done() bool {
	return w.state == stateDone
}

// Step advances the watchdog by one unit of work. Safe to call every
// frame; a no-op once terminal.
func (w *Watchdog) Step() {
	switch w.state {
	case stateWaiting:
		flag, ok := w.findFlag()
		if !ok {
			return
		}
		// The flag is consumed exactly once: deleted before the first
		// flush attempt so a crash cannot cause reprocessing.
		if err := w.fs.Remove(flag); err != nil {
			log.Error().Err(err).Str("flag", flag).Msg("failed to delete shutdown flag")
		}
		log.Info().Str("flag", flag).Msg("shutdown flag observed, starting flush sequence")
		w.state = stateFlushing

	case stateFlushing:
		w.flush()
		w.flushLeft--
		if w.flushLeft <= 0 {
			w.state = stateExiting
		}

	case stateExiting:
		if err := w.host.RequestExit(); err != nil {
			log.Error().Err(err).Msg("exit request failed")
		}
		w.state = statePostExitFlush

	case statePostExitFlush:
		w.flush()
		w.postLeft--
		if w.postLeft <= 0 {
			w.state = stateDone
		}

	case stateDone:
	}
}

// flush is isolated so one failing host call never blocks the attempts
// that follow it.
func (w *Watchdog) flush() {
	if err := w.host.FlushSaveRAM(); err != nil {
		log.Warn().Err(err).Msg("save flush attempt failed")
	}
}

func (w *Watchdog) findFlag() (string, bool) {
	for _, name := range w.flagNames {
		path := filepath.Join(w.host.WorkingDir(), name)
		exists, err := afero.Exists(w.fs, path)
		if err != nil {
			log.Debug().Err(err).Str("flag", path).Msg("flag check failed")
			continue
		}
		if exists {
			return path, true
		}
	}
	return "", false
}

// Start drives the watchdog. When the host exposes a per-frame hook the
// watchdog registers against it and Start returns immediately.
// Otherwise a periodic heartbeat steps it until the sequence completes
// or ctx is cancelled; the sequence itself is never cancelled once the
// flag has been observed.
func (w *Watchdog) Start(ctx context.Context, clock clockwork.Clock) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	if w.host.OnTick(w.Step) {
		log.Debug().Msg("shutdown watchdog registered on host tick hook")
		return
	}

	log.Debug().Msg("no host tick hook, shutdown watchdog using heartbeat")
	go func() {
		for !w.Done() {
			if w.state == stateWaiting {
				select {
				case <-ctx.Done():
					return
				case <-clock.After(HeartbeatInterval):
				}
			} else {
				// Mid-sequence: keep going without honoring ctx.
				<-clock.After(HeartbeatInterval)
			}
			w.Step()
		}
	}()
}
