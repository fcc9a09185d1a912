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

package cli

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/BizBridgeProject/bizbridge-core/pkg/config"
	"github.com/BizBridgeProject/bizbridge-core/pkg/helpers"
	"github.com/rs/zerolog/log"
)

type Flags struct {
	ExitWait *int
	Version  *bool
}

// SetupFlags defines the common CLI flags. Add any custom flags before
// calling Pre.
func SetupFlags() *Flags {
	return &Flags{
		ExitWait: flag.Int(
			"exit-wait",
			0,
			"seconds to wait for emulator exit on shutdown (0 = default)",
		),
		Version: flag.Bool(
			"version",
			false,
			"print version and exit",
		),
	}
}

// Pre parses flags and actions anything that needs no environment
// setup.
func (f *Flags) Pre() {
	flag.Parse()

	if *f.Version {
		_, _ = fmt.Printf("BizBridge v%s\n", config.AppVersion)
		os.Exit(0)
	}
}

// Setup initializes logging and loads config, exiting on failure since
// nothing can run without either.
func Setup(defaults config.Values, logWriters []io.Writer) *config.Instance {
	if err := helpers.InitLogging(helpers.DataDir(), logWriters); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logging: %s\n", err)
		os.Exit(1)
	}

	cfg, err := config.NewConfig(helpers.ConfigDir(), defaults)
	if err != nil {
		log.Error().Err(err).Msg("error loading config")
		_, _ = fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}

	helpers.SetLogLevel(cfg.DebugLogging())

	return cfg
}
