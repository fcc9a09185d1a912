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

package helpers

import (
	"path/filepath"

	"github.com/BizBridgeProject/bizbridge-core/pkg/config"
	"github.com/adrg/xdg"
)

// ConfigDir is where the config file and behavior store live.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, config.AppName)
}

// DataDir holds logs and the default consolidated save root.
func DataDir() string {
	return filepath.Join(xdg.DataHome, config.AppName)
}

// DefaultSaveRoot is used when no consolidated root is configured.
func DefaultSaveRoot() string {
	return filepath.Join(DataDir(), "saves")
}
