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
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// ErrConnectorMissing is returned when no connector script can be
// resolved. Like the migration helper, this is a configuration error
// and never silently retried.
var ErrConnectorMissing = errors.New("connector script not found")

// ScriptEngine runs connector scripts with a module search path.
type ScriptEngine interface {
	PrependSearchPath(dir string)
	Run(path string) error
}

// ConnectorLoader hands control to the downstream connector script that
// provides live communication between emulator and companion app.
type ConnectorLoader struct {
	fs       afero.Fs
	engine   ScriptEngine
	entryDir string
	chdir    func(string) error
	getwd    func() (string, error)
}

// NewConnectorLoader resolves connector paths relative to entryDir, the
// directory of the entry script itself.
func NewConnectorLoader(fs afero.Fs, engine ScriptEngine, entryDir string) *ConnectorLoader {
	return &ConnectorLoader{
		fs:       fs,
		engine:   engine,
		entryDir: entryDir,
		chdir:    os.Chdir,
		getwd:    os.Getwd,
	}
}

// Load resolves and executes the connector script. The script's
// directory is prepended to the module search path and the working
// directory is switched to it for the duration of the call, then
// restored.
func (l *ConnectorLoader) Load(path string) error {
	if path == "" {
		return fmt.Errorf("%w: no connector path configured", ErrConnectorMissing)
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(l.entryDir, path)
	}

	exists, err := afero.Exists(l.fs, path)
	if err != nil {
		return fmt.Errorf("failed to stat connector script: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrConnectorMissing, path)
	}

	dir := filepath.Dir(path)
	l.engine.PrependSearchPath(dir)

	prev, err := l.getwd()
	if err != nil {
		return fmt.Errorf("failed to read working directory: %w", err)
	}
	if err := l.chdir(dir); err != nil {
		return fmt.Errorf("failed to enter connector directory: %w", err)
	}
	defer func() {
		if err := l.chdir(prev); err != nil {
			log.Error().Err(err).Str("dir", prev).Msg("failed to restore working directory")
		}
	}()

	log.Info().Str("connector", path).Msg("handing off to connector script")
	if err := l.engine.Run(path); err != nil {
		return fmt.Errorf("connector script failed: %w", err)
	}
	return nil
}
