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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BizBridgeProject/bizbridge-core/pkg/helpers/syncutil"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

const (
	SchemaVersion = 1
	CfgEnv        = "BIZBRIDGE_CFG"

	// GenericSuffix is appended to a system id for the second tier of
	// save-path entry lookup. The third tier is GenericKey alone.
	GenericSuffix = "_generic"
	GenericKey    = "generic"

	// PathKindSaveRAM selects the per-system save directory entry.
	PathKindSaveRAM = "saveram"
)

type Values struct {
	Emulator     Emulator  `toml:"emulator,omitempty"`
	Companion    Companion `toml:"companion,omitempty"`
	Saves        Saves     `toml:"saves,omitempty"`
	ConfigSchema int       `toml:"config_schema"`
	DebugLogging bool      `toml:"debug_logging"`
}

type Emulator struct {
	// ProcessName is the executable name matched against the process
	// table when detecting new emulator instances.
	ProcessName string `toml:"process_name"`
	// Exe is the emulator runner launched in fallback mode.
	Exe string `toml:"exe,omitempty"`
	// InstallRoot is the emulator's per-install working directory.
	InstallRoot string `toml:"install_root,omitempty"`
	// ImageExt is the native image extension substituted for a patch
	// file's extension when deriving the launch target.
	ImageExt string `toml:"image_ext"`
	// ConnectorScript is the downstream connector handed off to once a
	// session's save path is resolved.
	ConnectorScript string `toml:"connector_script,omitempty"`
}

type Companion struct {
	Exe string `toml:"exe,omitempty"`
}

type Saves struct {
	// Root is the consolidated save root shared across installs.
	Root string `toml:"root,omitempty"`
	// MigrationHelper points at the external repair process.
	MigrationHelper string `toml:"migration_helper,omitempty"`
	// Dirs maps system id (or "<system>_generic", or "generic") to the
	// save directory name inside a per-install system directory.
	Dirs map[string]string `toml:"dirs,omitempty"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Emulator: Emulator{
		ProcessName: "EmuHawk.exe",
		ImageExt:    "sfc",
	},
	Saves: Saves{
		Dirs: map[string]string{
			GenericKey: "SaveRAM",
		},
	},
}

type Instance struct {
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

func NewConfig(configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		err := os.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err := cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then unmarshal file values on top.
	// This ensures fields not present in the file retain their default values.
	newVals := c.defaults
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return errors.New("schema version mismatch")
	}

	c.vals = newVals

	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	c.vals.ConfigSchema = SchemaVersion

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = os.WriteFile(c.cfgPath, data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) EmulatorProcessName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Emulator.ProcessName
}

func (c *Instance) EmulatorExe() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Emulator.Exe
}

func (c *Instance) EmulatorInstallRoot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Emulator.InstallRoot
}

func (c *Instance) EmulatorImageExt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return strings.TrimPrefix(c.vals.Emulator.ImageExt, ".")
}

func (c *Instance) ConnectorScript() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Emulator.ConnectorScript
}

func (c *Instance) CompanionExe() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Companion.Exe
}

func (c *Instance) SaveRoot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Saves.Root
}

func (c *Instance) MigrationHelper() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Saves.MigrationHelper
}

// PathEntry resolves a configured path entry for a system using three-tier
// key fallback: the exact system id, then the system id with the generic
// suffix, then the fully generic key. First match wins.
func (c *Instance) PathEntry(system, kind string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var entries map[string]string
	switch kind {
	case PathKindSaveRAM:
		entries = c.vals.Saves.Dirs
	default:
		return "", false
	}

	system = strings.ToLower(strings.TrimSpace(system))
	for _, key := range []string{system, system + GenericSuffix, GenericKey} {
		if val, ok := entries[key]; ok && val != "" {
			return val, true
		}
	}
	return "", false
}
