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

// Package scripting embeds a JavaScript engine for connector scripts.
// Modules are resolved against an explicit search path so a connector
// can be relocated along with its support files.
package scripting

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Engine runs connector scripts in an embedded JavaScript runtime.
// It is not safe for concurrent use; connector execution is
// single-threaded cooperative by design.
type Engine struct {
	fs         afero.Fs
	vm         *goja.Runtime
	programs   map[string]*goja.Program
	modules    map[string]goja.Value
	searchPath []string
}

func New(fs afero.Fs) *Engine {
	e := &Engine{
		fs:       fs,
		vm:       goja.New(),
		programs: make(map[string]*goja.Program),
		modules:  make(map[string]goja.Value),
	}
	if err := e.vm.Set("require", e.require); err != nil {
		log.Error().Err(err).Msg("failed to install require binding")
	}
	return e
}

// Bind exposes a host value or function to scripts under name.
func (e *Engine) Bind(name string, value any) error {
	if err := e.vm.Set(name, value); err != nil {
		return fmt.Errorf("failed to bind %q: %w", name, err)
	}
	return nil
}

// PrependSearchPath puts dir at the front of the module search path,
// deduplicating any earlier occurrence.
func (e *Engine) PrependSearchPath(dir string) {
	paths := make([]string, 0, len(e.searchPath)+1)
	paths = append(paths, dir)
	for _, p := range e.searchPath {
		if p != dir {
			paths = append(paths, p)
		}
	}
	e.searchPath = paths
}

// SearchPath returns a copy of the current module search path.
func (e *Engine) SearchPath() []string {
	out := make([]string, len(e.searchPath))
	copy(out, e.searchPath)
	return out
}

// Run compiles and executes the script at path. Programs are cached by
// path so re-entry is cheap.
func (e *Engine) Run(path string) error {
	program, err := e.loadOrCompile(path)
	if err != nil {
		return err
	}
	if _, err := e.vm.RunProgram(program); err != nil {
		return fmt.Errorf("script %s failed: %w", filepath.Base(path), err)
	}
	return nil
}

func (e *Engine) loadOrCompile(path string) (*goja.Program, error) {
	if program, ok := e.programs[path]; ok {
		return program, nil
	}

	src, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}

	program, err := goja.Compile(path, string(src), false)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script %s: %w", path, err)
	}

	e.programs[path] = program
	return program, nil
}

// require resolves a module name against the search path, runs it once
// and returns the value of its `exports` global. Later calls for the
// same resolved path return the cached exports without re-evaluating
// the module, so its side effects happen exactly once.
func (e *Engine) require(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	if name == "" {
		panic(e.vm.ToValue("require: empty module name"))
	}
	if !strings.HasSuffix(name, ".js") {
		name += ".js"
	}

	for _, dir := range e.searchPath {
		candidate := filepath.Join(dir, name)
		exists, err := afero.Exists(e.fs, candidate)
		if err != nil || !exists {
			continue
		}
		if exports, ok := e.modules[candidate]; ok {
			return exports
		}
		if err := e.Run(candidate); err != nil {
			panic(e.vm.ToValue(err.Error()))
		}
		exports := e.vm.Get("exports")
		e.modules[candidate] = exports
		return exports
	}

	panic(e.vm.ToValue(fmt.Sprintf("require: module %q not found", name)))
}
