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
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	targetWaitWindow   = 60 * time.Second
	targetPollInterval = 1 * time.Second
)

// ErrTargetTimeout is returned when the expected image file never
// appears within the wait window.
var ErrTargetTimeout = errors.New("timed out waiting for target file")

// TargetPath derives the expected emulator image path for a patch file:
// the patch's extension is stripped and the emulator's native image
// extension substituted, in the same directory.
func TargetPath(patch, imageExt string) string {
	base := strings.TrimSuffix(patch, filepath.Ext(patch))
	return base + "." + strings.TrimPrefix(imageExt, ".")
}

// TargetWaiter polls for the expected image file produced by the
// companion application. When the OS exposes file events they are used
// as a fast path; the 1s poll remains the backstop either way.
type TargetWaiter struct {
	fs         afero.Fs
	clock      clockwork.Clock
	newWatcher func() (*fsnotify.Watcher, error)
}

func NewTargetWaiter(fs afero.Fs, clock clockwork.Clock) *TargetWaiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TargetWaiter{
		fs:         fs,
		clock:      clock,
		newWatcher: fsnotify.NewWatcher,
	}
}

// Wait blocks until the target exists or the window elapses.
func (w *TargetWaiter) Wait(ctx context.Context, target string) error {
	var events chan fsnotify.Event

	watcher, err := w.newWatcher()
	if err == nil {
		if addErr := watcher.Add(filepath.Dir(target)); addErr == nil {
			events = make(chan fsnotify.Event, 16)
			go func() {
				for ev := range watcher.Events {
					select {
					case events <- ev:
					default:
					}
				}
			}()
		} else {
			log.Debug().Err(addErr).Msg("file watch unavailable, polling only")
		}
		defer func() { _ = watcher.Close() }()
	} else {
		log.Debug().Err(err).Msg("file watcher unavailable, polling only")
	}

	deadline := w.clock.Now().Add(targetWaitWindow)
	for {
		exists, err := afero.Exists(w.fs, target)
		if err == nil && exists {
			return nil
		}

		if !w.clock.Now().Before(deadline) {
			return ErrTargetTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if ev.Name == target && ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				continue
			}
		case <-w.clock.After(targetPollInterval):
		}
	}
}
