// StorageWatch
// Copyright (c) 2025 The StorageWatch Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of StorageWatch.
//
// StorageWatch is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// StorageWatch is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with StorageWatch.  If not, see <http://www.gnu.org/licenses/>.

// Package config loads and stores the TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/storagewatch/storagewatch/pkg/helpers/syncutil"
)

const (
	SchemaVersion = 1
	CfgEnv        = "STORAGEWATCH_CFG"
	CfgFile       = "config.toml"
	LogFile       = "storagewatch.log"
)

// Values is the on-disk configuration shape.
type Values struct {
	Monitor      Monitor `toml:"monitor,omitempty"`
	ConfigSchema int     `toml:"config_schema"`
	DebugLogging bool    `toml:"debug_logging"`
}

// Monitor tunes the disk registry backends.
type Monitor struct {
	// DebounceMs delays volume checks after a filesystem notification.
	DebounceMs int `toml:"debounce_ms,omitempty"`

	// PollIntervalMs is the rescan period of the polling backend.
	PollIntervalMs int `toml:"poll_interval_ms,omitempty"`

	// IgnoreFilesystems lists filesystem types to skip on enumeration.
	IgnoreFilesystems []string `toml:"ignore_filesystems,omitempty,multiline"`

	// IncludeSystemVolumes enumerates system-hinted volumes as well.
	IncludeSystemVolumes bool `toml:"include_system_volumes"`
}

// BaseDefaults is the configuration written on first run.
var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Monitor: Monitor{
		DebounceMs:           100,
		PollIntervalMs:       1000,
		IncludeSystemVolumes: true,
	},
}

// Instance is a process-wide handle on the loaded configuration.
type Instance struct {
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

// NewConfig loads the configuration from configDir, creating the file
// with defaults when it does not exist. The STORAGEWATCH_CFG environment
// variable overrides the directory.
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	if env, ok := os.LookupEnv(CfgEnv); ok && env != "" {
		configDir = env
	}

	cfg := &Instance{
		cfgPath:  filepath.Join(configDir, CfgFile),
		defaults: defaults,
	}

	if err := cfg.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return cfg, nil
}

// Load reads the config file into memory, writing defaults first if the
// file is missing.
func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	if _, err := os.Stat(c.cfgPath); errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", c.cfgPath).Msg("creating default config file")
		c.vals = c.defaults
		return c.save()
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	vals := c.defaults
	if err := toml.Unmarshal(data, &vals); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if vals.ConfigSchema != SchemaVersion {
		log.Warn().
			Int("found", vals.ConfigSchema).
			Int("expected", SchemaVersion).
			Msg("config schema version mismatch")
	}

	c.vals = vals
	return nil
}

// Save writes the in-memory configuration back to disk.
func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save()
}

// save expects c.mu to be held.
func (c *Instance) save() error {
	if err := os.MkdirAll(filepath.Dir(c.cfgPath), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Path returns the absolute path of the config file.
func (c *Instance) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfgPath
}

// DebugLogging reports whether debug logging is enabled.
func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

// SetDebugLogging toggles debug logging in memory.
func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
}

// Debounce returns the notification debounce delay.
func (c *Instance) Debounce() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Monitor.DebounceMs) * time.Millisecond
}

// PollInterval returns the polling backend rescan period.
func (c *Instance) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Monitor.PollIntervalMs) * time.Millisecond
}

// IncludeSystemVolumes reports whether system volumes are enumerated.
func (c *Instance) IncludeSystemVolumes() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Monitor.IncludeSystemVolumes
}

// IgnoreFilesystems returns the filesystem types to skip.
func (c *Instance) IgnoreFilesystems() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.vals.Monitor.IgnoreFilesystems))
	copy(out, c.vals.Monitor.IgnoreFilesystems)
	return out
}
