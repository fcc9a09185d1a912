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
	"sync"
	"testing"
	"time"

	"github.com/BizBridgeProject/bizbridge-core/pkg/behaviors"
	"github.com/BizBridgeProject/bizbridge-core/pkg/procmon"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMonitor reports a new instance from appearAfter calls onward.
type fakeMonitor struct {
	mu          sync.Mutex
	calls       int
	appearAfter int
	never       bool
}

func (m *fakeMonitor) HasNewInstance(_ procmon.Snapshot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.never {
		return false, nil
	}
	return m.calls > m.appearAfter, nil
}

type fakeLauncher struct {
	mu      sync.Mutex
	targets []string
}

func (l *fakeLauncher) Launch(_ context.Context, target string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.targets = append(l.targets, target)
	return nil
}

func (l *fakeLauncher) launched() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.targets...)
}

func newTestEngine(
	t *testing.T,
	fs afero.Fs,
	monitor LivenessMonitor,
	clock clockwork.Clock,
) (*Engine, *behaviors.Store, *fakeLauncher) {
	t.Helper()

	store, err := behaviors.NewStore(fs, "/config/behaviors.toml")
	require.NoError(t, err)

	launched := &fakeLauncher{}
	waiter := pollOnlyWaiter(fs, clock)
	engine := NewEngine(store, monitor, waiter, launched, "sfc", clock)
	return engine, store, launched
}

func TestRunCycleAutoTakesNoAction(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	monitor := &fakeMonitor{never: true}
	engine, store, launched := newTestEngine(t, fs, monitor, clockwork.NewFakeClock())
	require.NoError(t, store.Record("apbp", behaviors.Auto))

	require.NoError(t, engine.RunCycle(context.Background(), "/roms/game.apbp", nil))

	assert.Empty(t, launched.launched())
	assert.Zero(t, monitor.calls)
}

func TestRunCycleUnrecognizedValueTakesNoAction(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	data := []byte("[extensions]\napbp = \"sideways\"\n")
	require.NoError(t, afero.WriteFile(fs, "/config/behaviors.toml", data, 0o600))

	monitor := &fakeMonitor{never: true}
	engine, store, launched := newTestEngine(t, fs, monitor, clockwork.NewFakeClock())

	require.NoError(t, engine.RunCycle(context.Background(), "/roms/game.apbp", nil))

	assert.Empty(t, launched.launched())
	assert.Zero(t, monitor.calls)
	// Fail safe also means the garbage value is not overwritten.
	assert.Equal(t, behaviors.Behavior("sideways"), store.Lookup("apbp"))
}

func TestRunCycleLearnsAuto(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	// New instance visible on the third observation poll.
	monitor := &fakeMonitor{appearAfter: 2}
	clock := clockwork.NewFakeClock()
	engine, store, launched := newTestEngine(t, fs, monitor, clock)

	done := make(chan error, 1)
	go func() {
		done <- engine.RunCycle(context.Background(), "/roms/game.apbp", nil)
	}()

	for i := 0; i < 2; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("cycle never finished")
	}

	assert.Equal(t, behaviors.Auto, store.Lookup("apbp"))
	assert.Empty(t, launched.launched(), "auto behavior must not launch")
}

func TestRunCycleLearnsFallbackAndLaunchesOnce(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	// Target image produced early; no emulator ever appears.
	require.NoError(t, afero.WriteFile(fs, "/roms/game.sfc", []byte("rom"), 0o600))

	monitor := &fakeMonitor{never: true}
	clock := clockwork.NewFakeClock()
	engine, store, launched := newTestEngine(t, fs, monitor, clock)

	done := make(chan error, 1)
	go func() {
		done <- engine.RunCycle(context.Background(), "/roms/game.apbp", nil)
	}()

	// Exhaust the 10s observation window.
	for i := 0; i < 10; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("cycle never finished")
	}

	assert.Equal(t, behaviors.Fallback, store.Lookup("apbp"))
	assert.Equal(t, []string{"/roms/game.sfc"}, launched.launched())
}

func TestRunCycleFallbackTargetNeverAppears(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	monitor := &fakeMonitor{never: true}
	clock := clockwork.NewFakeClock()
	engine, store, launched := newTestEngine(t, fs, monitor, clock)
	require.NoError(t, store.Record("apbp", behaviors.Fallback))

	done := make(chan error, 1)
	go func() {
		done <- engine.RunCycle(context.Background(), "/roms/game.apbp", nil)
	}()

	// Exhaust the 60s target wait; give-up is silent.
	for i := 0; i < 60; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("cycle never finished")
	}

	assert.Empty(t, launched.launched())
}

func TestRunCycleNoExtension(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	engine, _, _ := newTestEngine(t, fs, &fakeMonitor{}, clockwork.NewFakeClock())

	assert.Error(t, engine.RunCycle(context.Background(), "/roms/noext", nil))
}
