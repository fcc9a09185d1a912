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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BizBridgeProject/bizbridge-core/pkg/behaviors"
	"github.com/BizBridgeProject/bizbridge-core/pkg/cli"
	"github.com/BizBridgeProject/bizbridge-core/pkg/config"
	"github.com/BizBridgeProject/bizbridge-core/pkg/helpers"
	"github.com/BizBridgeProject/bizbridge-core/pkg/service"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags()
	flags.Pre()

	if flag.NArg() < 1 {
		return errors.New("usage: bizbridge [flags] <patch file>")
	}
	patch, err := filepath.Abs(flag.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to resolve patch path: %w", err)
	}

	cfg := cli.Setup(config.BaseDefaults, []io.Writer{os.Stderr})

	fs := afero.NewOsFs()

	store, err := behaviors.NewStore(fs, filepath.Join(helpers.ConfigDir(), config.BehaviorsFile))
	if err != nil {
		return fmt.Errorf("failed to load behavior store: %w", err)
	}

	session := service.NewSession(
		fs,
		cfg,
		store,
		&service.ExecCompanionLauncher{Exe: cfg.CompanionExe()},
		nil,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := session.Run(ctx, patch); err != nil {
		return err
	}

	// Stay alive until asked to stop, then run the shutdown handshake.
	<-ctx.Done()
	stop()

	log.Info().Msg("shutting down, signalling emulator")
	if err := session.SignalShutdown(); err != nil {
		log.Error().Err(err).Msg("failed to signal emulator shutdown")
		return nil
	}

	session.AwaitEmulatorExit(context.Background(), time.Duration(*flags.ExitWait)*time.Second)
	return nil
}
