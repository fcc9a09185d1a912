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

package saveram

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestManager returns a manager over the real filesystem, since
// MemMapFs cannot create symlinks.
func newTestManager(t *testing.T) (*Manager, string, string) {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "saves")
	install := filepath.Join(base, "install")
	m := NewManager(afero.NewOsFs(), root, clockwork.NewFakeClock())
	return m, root, install
}

func savePath(install, system string) string {
	return filepath.Join(install, system, "SaveRAM")
}

func TestClassify(t *testing.T) {
	t.Parallel()

	m, root, install := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "snes"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(install, "snes"), 0o750))

	absent := savePath(install, "snes")
	state, err := m.Classify(absent)
	require.NoError(t, err)
	assert.Equal(t, StateAbsent, state)

	valid := filepath.Join(install, "snes", "valid")
	require.NoError(t, os.Symlink(filepath.Join(root, "snes"), valid))
	state, err = m.Classify(valid)
	require.NoError(t, err)
	assert.Equal(t, StateValidSymlink, state)

	broken := filepath.Join(install, "snes", "broken")
	require.NoError(t, os.Symlink(filepath.Join(root, "gone"), broken))
	state, err = m.Classify(broken)
	require.NoError(t, err)
	assert.Equal(t, StateBrokenSymlink, state)

	realDir := filepath.Join(install, "snes", "realdir")
	require.NoError(t, os.MkdirAll(realDir, 0o750))
	state, err = m.Classify(realDir)
	require.NoError(t, err)
	assert.Equal(t, StateRealDirectory, state)
}

func TestConsolidateAbsentCreatesSymlink(t *testing.T) {
	t.Parallel()

	m, root, install := newTestManager(t)
	path := savePath(install, "snes")

	require.NoError(t, m.Consolidate("snes", path))

	state, err := m.Classify(path)
	require.NoError(t, err)
	assert.Equal(t, StateValidSymlink, state)

	target, err := m.LinkTarget(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "snes"), target)
}

func TestConsolidateBrokenSymlinkSameAsAbsent(t *testing.T) {
	t.Parallel()

	m, root, install := newTestManager(t)

	absentPath := savePath(install, "gb")
	require.NoError(t, m.Consolidate("gb", absentPath))

	brokenPath := savePath(install, "snes")
	require.NoError(t, os.MkdirAll(filepath.Dir(brokenPath), 0o750))
	require.NoError(t, os.Symlink(filepath.Join(install, "nowhere"), brokenPath))
	require.NoError(t, m.Consolidate("snes", brokenPath))

	for system, path := range map[string]string{"gb": absentPath, "snes": brokenPath} {
		state, err := m.Classify(path)
		require.NoError(t, err)
		assert.Equal(t, StateValidSymlink, state)

		target, err := m.LinkTarget(path)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, system), target)
	}
}

func TestConsolidateValidSymlinkUntouched(t *testing.T) {
	t.Parallel()

	m, root, install := newTestManager(t)
	path := savePath(install, "snes")

	require.NoError(t, m.Consolidate("snes", path))
	require.NoError(t, afero.WriteFile(afero.NewOsFs(), filepath.Join(root, "snes", "save.srm"), []byte("data"), 0o600))

	require.NoError(t, m.Consolidate("snes", path))

	data, err := os.ReadFile(filepath.Join(path, "save.srm"))
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}

func TestConsolidateMergesRealDirectory(t *testing.T) {
	t.Parallel()

	m, root, install := newTestManager(t)
	path := savePath(install, "snes")

	require.NoError(t, os.MkdirAll(path, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(path, "save.srm"), []byte("local"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(path, "other.srm"), []byte("unique"), 0o600))

	require.NoError(t, m.Consolidate("snes", path))

	state, err := m.Classify(path)
	require.NoError(t, err)
	assert.Equal(t, StateValidSymlink, state)

	// Unique file moved into the consolidated root, visible through
	// the symlink.
	data, err := os.ReadFile(filepath.Join(root, "snes", "other.srm"))
	require.NoError(t, err)
	assert.Equal(t, []byte("unique"), data)

	data, err = os.ReadFile(filepath.Join(root, "snes", "save.srm"))
	require.NoError(t, err)
	assert.Equal(t, []byte("local"), data)
}

func TestConsolidateCollisionPreservesBoth(t *testing.T) {
	t.Parallel()

	m, root, install := newTestManager(t)
	path := savePath(install, "snes")

	// Consolidated root already holds a different save.srm.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "snes"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "snes", "save.srm"), []byte("canonical"), 0o600))

	require.NoError(t, os.MkdirAll(path, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(path, "save.srm"), []byte("local"), 0o600))

	require.NoError(t, m.Consolidate("snes", path))

	// Canonical wins in place.
	data, err := os.ReadFile(filepath.Join(root, "snes", "save.srm"))
	require.NoError(t, err)
	assert.Equal(t, []byte("canonical"), data)

	// Local copy preserved under a disambiguated name.
	matches, err := filepath.Glob(filepath.Join(root, "snes", "save.srm.local-*"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err = os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("local"), data)

	// Both sides backed up before resolution.
	backups, err := filepath.Glob(filepath.Join(root, "snes", ".conflicts", "*", "save.srm.*"))
	require.NoError(t, err)
	assert.Len(t, backups, 2)

	state, err := m.Classify(path)
	require.NoError(t, err)
	assert.Equal(t, StateValidSymlink, state)
}

func TestConsolidateIdempotent(t *testing.T) {
	t.Parallel()

	m, root, install := newTestManager(t)
	path := savePath(install, "snes")

	require.NoError(t, os.MkdirAll(path, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(path, "save.srm"), []byte("data"), 0o600))

	require.NoError(t, m.Consolidate("snes", path))
	firstTarget, err := m.LinkTarget(path)
	require.NoError(t, err)

	require.NoError(t, m.Consolidate("snes", path))
	secondTarget, err := m.LinkTarget(path)
	require.NoError(t, err)

	assert.Equal(t, firstTarget, secondTarget)

	entries, err := os.ReadDir(filepath.Join(root, "snes"))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"save.srm"}, names)

	data, err := os.ReadFile(filepath.Join(root, "snes", "save.srm"))
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}

func TestDiscoverSystems(t *testing.T) {
	t.Parallel()

	m, root, install := newTestManager(t)

	// One system known only to the consolidated root, one only to the
	// install tree, one to both.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "gb"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "snes"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(install, "snes", "SaveRAM"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(install, "nes", "SaveRAM"), 0o750))
	// Install dir without a save entry is not a system.
	require.NoError(t, os.MkdirAll(filepath.Join(install, "Firmware"), 0o750))

	systems, err := m.DiscoverSystems(install, "SaveRAM")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"gb", "snes", "nes"}, systems)
}
