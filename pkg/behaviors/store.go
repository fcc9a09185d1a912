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

// Package behaviors persists the learned launch behavior for each patch
// file extension: whether the companion application starts the emulator
// itself or BizBridge has to launch it directly.
package behaviors

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BizBridgeProject/bizbridge-core/pkg/helpers/syncutil"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// Behavior is the stored launch decision for one extension.
type Behavior string

const (
	// Unset means no decision has been learned yet.
	Unset Behavior = ""
	// Auto means the companion application launches the emulator itself.
	Auto Behavior = "auto"
	// Fallback means BizBridge must launch the emulator directly.
	Fallback Behavior = "fallback"
)

type storeFile struct {
	Extensions map[string]string `toml:"extensions,omitempty"`
}

// Store is a file-backed extension-to-behavior mapping with a
// load-at-start, save-on-change lifecycle. It is safe for concurrent use
// within one process; cross-process writes are last-writer-wins.
type Store struct {
	fs   afero.Fs
	path string
	ext  map[string]string
	mu   syncutil.RWMutex
}

// NewStore loads the behavior map at path, creating an empty store when
// the file does not exist yet.
func NewStore(fs afero.Fs, path string) (*Store, error) {
	s := &Store{
		fs:   fs,
		path: path,
		ext:  make(map[string]string),
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat behavior store: %w", err)
	}
	if !exists {
		return s, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read behavior store: %w", err)
	}

	var f storeFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal behavior store: %w", err)
	}
	for key, val := range f.Extensions {
		s.ext[normalizeExt(key)] = val
	}

	return s, nil
}

// normalizeExt lowercases an extension and strips any leading dot. Keys
// are always normalized before lookup or storage.
func normalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// Lookup returns the stored behavior for ext. Unknown extensions read
// as Unset. A stored value outside the known set is returned as-is so
// callers can fail safe on it rather than re-learning over it.
func (s *Store) Lookup(ext string) Behavior {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Behavior(s.ext[normalizeExt(ext)])
}

// Record stores the behavior for ext and persists the map immediately.
func (s *Store) Record(ext string, behavior Behavior) error {
	ext = normalizeExt(ext)
	if ext == "" {
		return fmt.Errorf("empty extension")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ext[ext] = string(behavior)
	return s.save()
}

func (s *Store) save() error {
	data, err := toml.Marshal(storeFile{Extensions: s.ext})
	if err != nil {
		return fmt.Errorf("failed to marshal behavior store: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("failed to create behavior store directory: %w", err)
	}

	if err := afero.WriteFile(s.fs, s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write behavior store: %w", err)
	}
	return nil
}
