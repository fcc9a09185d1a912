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

package scripting_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BizBridgeProject/bizbridge-core/pkg/emuside/scripting"
)

func TestRunBoundFunction(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/scripts/main.js",
		[]byte(`report("snes", 3)`), 0o600))

	e := scripting.New(fs)

	var gotSystem string
	var gotCount int
	require.NoError(t, e.Bind("report", func(system string, count int) {
		gotSystem = system
		gotCount = count
	}))

	require.NoError(t, e.Run("/scripts/main.js"))
	assert.Equal(t, "snes", gotSystem)
	assert.Equal(t, 3, gotCount)
}

func TestRunMissingScript(t *testing.T) {
	t.Parallel()

	e := scripting.New(afero.NewMemMapFs())
	assert.Error(t, e.Run("/scripts/missing.js"))
}

func TestRunCompileError(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/scripts/bad.js",
		[]byte(`function {`), 0o600))

	e := scripting.New(fs)
	assert.Error(t, e.Run("/scripts/bad.js"))
}

func TestRequireResolvesAgainstSearchPath(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/lib/util.js",
		[]byte(`exports = { answer: 42 }`), 0o600))
	require.NoError(t, afero.WriteFile(fs, "/scripts/main.js",
		[]byte(`var util = require("util"); report(util.answer)`), 0o600))

	e := scripting.New(fs)
	e.PrependSearchPath("/lib")

	var got int
	require.NoError(t, e.Bind("report", func(v int) { got = v }))

	require.NoError(t, e.Run("/scripts/main.js"))
	assert.Equal(t, 42, got)
}

func TestRequireEvaluatesModuleOnce(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/lib/counter.js",
		[]byte(`tally(); exports = { ok: true }`), 0o600))
	require.NoError(t, afero.WriteFile(fs, "/scripts/main.js",
		[]byte(`var a = require("counter"); var b = require("counter"); report(a.ok && b.ok)`), 0o600))

	e := scripting.New(fs)
	e.PrependSearchPath("/lib")

	evaluations := 0
	require.NoError(t, e.Bind("tally", func() { evaluations++ }))

	var bothOk bool
	require.NoError(t, e.Bind("report", func(v bool) { bothOk = v }))

	require.NoError(t, e.Run("/scripts/main.js"))
	assert.Equal(t, 1, evaluations, "module side effects must run exactly once")
	assert.True(t, bothOk, "both require calls must see the module exports")
}

func TestRequireUnknownModuleFailsScript(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/scripts/main.js",
		[]byte(`require("nope")`), 0o600))

	e := scripting.New(fs)
	e.PrependSearchPath("/lib")

	assert.Error(t, e.Run("/scripts/main.js"))
}

func TestPrependSearchPathDeduplicates(t *testing.T) {
	t.Parallel()

	e := scripting.New(afero.NewMemMapFs())
	e.PrependSearchPath("/a")
	e.PrependSearchPath("/b")
	e.PrependSearchPath("/a")

	assert.Equal(t, []string{"/a", "/b"}, e.SearchPath())
}
