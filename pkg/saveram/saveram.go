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

// Package saveram consolidates per-install emulator save storage behind
// symlinks into one shared root, so saves survive emulator reinstalls
// and version churn. A consolidation run never loses a save file: merge
// collisions are preserved under a disambiguated name and backed up
// before resolution.
package saveram

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// LinkState classifies a per-install save path. Computed on demand,
// never persisted.
type LinkState int

const (
	// StateAbsent means the save path does not exist at all.
	StateAbsent LinkState = iota
	// StateValidSymlink means the save path is a symlink with an
	// existing target.
	StateValidSymlink
	// StateBrokenSymlink means the save path is a symlink whose target
	// is gone. Treated identically to absent during consolidation.
	StateBrokenSymlink
	// StateRealDirectory means the save path holds un-migrated save
	// data that must be merged before it can be replaced.
	StateRealDirectory
)

func (s LinkState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateValidSymlink:
		return "valid-symlink"
	case StateBrokenSymlink:
		return "broken-symlink"
	case StateRealDirectory:
		return "real-directory"
	default:
		return "unknown"
	}
}

// ErrNoSymlinkSupport is returned when the backing filesystem cannot
// create or inspect symlinks.
var ErrNoSymlinkSupport = errors.New("filesystem does not support symlinks")

const conflictsDirName = ".conflicts"

// Manager repairs per-install save paths against one consolidated root.
type Manager struct {
	fs    afero.Fs
	clock clockwork.Clock
	root  string
}

// NewManager creates a Manager rooted at the consolidated save root.
// The filesystem must support symlinks (afero's OsFs does).
func NewManager(fs afero.Fs, root string, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{fs: fs, root: root, clock: clock}
}

// Root returns the consolidated save root.
func (m *Manager) Root() string {
	return m.root
}

// SystemDir returns the consolidated directory for one system.
func (m *Manager) SystemDir(system string) string {
	return filepath.Join(m.root, system)
}

func (m *Manager) lstater() (afero.Lstater, error) {
	if ls, ok := m.fs.(afero.Lstater); ok {
		return ls, nil
	}
	return nil, ErrNoSymlinkSupport
}

func (m *Manager) linker() (afero.Linker, error) {
	if l, ok := m.fs.(afero.Linker); ok {
		return l, nil
	}
	return nil, ErrNoSymlinkSupport
}

func (m *Manager) readlinker() (afero.LinkReader, error) {
	if lr, ok := m.fs.(afero.LinkReader); ok {
		return lr, nil
	}
	return nil, ErrNoSymlinkSupport
}

// Classify reports the link state of a per-install save path.
func (m *Manager) Classify(path string) (LinkState, error) {
	ls, err := m.lstater()
	if err != nil {
		return StateAbsent, err
	}

	info, lstatCalled, err := ls.LstatIfPossible(path)
	if err != nil {
		if os.IsNotExist(err) {
			return StateAbsent, nil
		}
		return StateAbsent, fmt.Errorf("failed to lstat save path: %w", err)
	}
	if !lstatCalled {
		return StateAbsent, ErrNoSymlinkSupport
	}

	if info.Mode()&os.ModeSymlink != 0 {
		// Stat follows the link; failure to stat means the target is gone.
		if _, err := m.fs.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return StateBrokenSymlink, nil
			}
			return StateAbsent, fmt.Errorf("failed to stat symlink target: %w", err)
		}
		return StateValidSymlink, nil
	}

	if info.IsDir() {
		return StateRealDirectory, nil
	}

	// A plain file where the save directory should be is unexpected and
	// not something consolidation may silently destroy.
	return StateAbsent, fmt.Errorf("unexpected save path type: %s", path)
}

// Consolidate repairs the per-install save path for one system so it
// ends as a valid symlink into the consolidated root. Any filesystem
// failure aborts the run for this path; the caller must not proceed on
// an unresolved save path.
func (m *Manager) Consolidate(system, savePath string) error {
	canonical := m.SystemDir(system)
	if err := m.fs.MkdirAll(canonical, 0o750); err != nil {
		return fmt.Errorf("failed to create consolidated directory: %w", err)
	}
	if err := m.fs.MkdirAll(filepath.Dir(savePath), 0o750); err != nil {
		return fmt.Errorf("failed to create install system directory: %w", err)
	}

	state, err := m.Classify(savePath)
	if err != nil {
		return err
	}

	switch state {
	case StateValidSymlink:
		log.Debug().Str("system", system).Msg("save symlink already valid")
		return nil
	case StateBrokenSymlink:
		log.Info().Str("system", system).Msg("repairing broken save symlink")
		return m.relink(canonical, savePath)
	case StateAbsent:
		log.Info().Str("system", system).Msg("save path missing, creating symlink")
		return m.relink(canonical, savePath)
	case StateRealDirectory:
		log.Info().Str("system", system).Msg("migrating local save directory")
		if err := m.merge(savePath, canonical); err != nil {
			return err
		}
		if err := m.fs.RemoveAll(savePath); err != nil {
			return fmt.Errorf("failed to remove migrated save directory: %w", err)
		}
		return m.relink(canonical, savePath)
	default:
		return fmt.Errorf("unexpected save path state: %s", state)
	}
}

// relink replaces whatever is at link with a symlink to target.
func (m *Manager) relink(target, link string) error {
	linker, err := m.linker()
	if err != nil {
		return err
	}
	ls, err := m.lstater()
	if err != nil {
		return err
	}

	if _, _, err := ls.LstatIfPossible(link); err == nil {
		if err := m.fs.RemoveAll(link); err != nil {
			return fmt.Errorf("failed to remove existing save path: %w", err)
		}
	}

	if err := linker.SymlinkIfPossible(target, link); err != nil {
		return fmt.Errorf("failed to create save symlink: %w", err)
	}
	return nil
}

// merge moves every file under src into canonical. Files already in the
// canonical tree win; the losing local copy is preserved next to it
// under a disambiguated name, with both sides backed up under the
// conflicts directory first. Nothing is ever silently dropped.
func (m *Manager) merge(src, canonical string) error {
	stamp := m.clock.Now().Format("20060102-150405")
	conflictBase := filepath.Join(canonical, conflictsDirName, stamp)

	return afero.Walk(m.fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk save directory: %w", err)
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("failed to resolve save file path: %w", err)
		}
		dest := filepath.Join(canonical, rel)

		return m.mergeFile(path, dest, filepath.Join(conflictBase, filepath.Dir(rel)), stamp)
	})
}

func (m *Manager) mergeFile(src, dest, conflictDir, stamp string) error {
	if err := m.fs.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("failed to create canonical directory: %w", err)
	}

	exists, err := afero.Exists(m.fs, dest)
	if err != nil {
		return fmt.Errorf("failed to stat canonical save file: %w", err)
	}

	if !exists {
		if err := m.moveFile(src, dest); err != nil {
			return err
		}
		log.Info().Str("dest", dest).Msg("moved save file into consolidated root")
		return nil
	}

	// Canonical wins. Back up both sides, then park the local copy next
	// to the canonical file under a disambiguated name.
	if err := m.backupConflict(conflictDir, "canonical", dest); err != nil {
		return err
	}
	if err := m.backupConflict(conflictDir, "local", src); err != nil {
		return err
	}

	preserved := dest + ".local-" + stamp
	if err := m.moveFile(src, preserved); err != nil {
		return err
	}
	log.Warn().
		Str("canonical", dest).
		Str("preserved", preserved).
		Msg("save file collision, kept canonical and preserved local copy")
	return nil
}

func (m *Manager) backupConflict(conflictDir, label, source string) error {
	if err := m.fs.MkdirAll(conflictDir, 0o750); err != nil {
		return fmt.Errorf("failed to create conflicts directory: %w", err)
	}
	target := filepath.Join(conflictDir, filepath.Base(source)+"."+label)
	if err := m.copyFile(source, target); err != nil {
		return fmt.Errorf("failed to back up conflict file: %w", err)
	}
	return nil
}

// moveFile renames, falling back to copy+delete for cross-device moves.
func (m *Manager) moveFile(src, dest string) error {
	if err := m.fs.Rename(src, dest); err == nil {
		return nil
	}
	if err := m.copyFile(src, dest); err != nil {
		return fmt.Errorf("failed to move save file: %w", err)
	}
	if err := m.fs.Remove(src); err != nil {
		return fmt.Errorf("failed to remove moved save file: %w", err)
	}
	return nil
}

func (m *Manager) copyFile(src, dest string) error {
	in, err := m.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := m.fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close destination file: %w", err)
	}
	return nil
}

// LinkTarget returns the symlink target of a save path.
func (m *Manager) LinkTarget(path string) (string, error) {
	lr, err := m.readlinker()
	if err != nil {
		return "", err
	}
	target, err := lr.ReadlinkIfPossible(path)
	if err != nil {
		return "", fmt.Errorf("failed to read save symlink: %w", err)
	}
	return target, nil
}

// DiscoverSystems returns the system directory names eligible for
// consolidation: the union of consolidated-root children and install
// directories that own a save entry named saveDirName.
func (m *Manager) DiscoverSystems(installRoot, saveDirName string) ([]string, error) {
	seen := make(map[string]struct{})

	addChildren := func(root string, requireSave bool) error {
		entries, err := afero.ReadDir(m.fs, root)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("failed to read directory %s: %w", root, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if requireSave {
				savePath := filepath.Join(root, entry.Name(), saveDirName)
				ls, err := m.lstater()
				if err != nil {
					return err
				}
				if _, _, err := ls.LstatIfPossible(savePath); err != nil {
					continue
				}
			}
			seen[entry.Name()] = struct{}{}
		}
		return nil
	}

	if err := addChildren(m.root, false); err != nil {
		return nil, err
	}
	if err := addChildren(installRoot, true); err != nil {
		return nil, err
	}

	systems := make([]string, 0, len(seen))
	for name := range seen {
		if name == conflictsDirName {
			continue
		}
		systems = append(systems, name)
	}
	return systems, nil
}
