/*
Copyright © 2025 KLS Core Contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package config holds the core's recognised options (spec §6) bound
// through viper, with a Snapshot/Clone pattern so a concurrent
// didChangeConfiguration notification never races a reader mid-request.
package config

import (
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// DiagnosticsConfig gates diagnostic publication and debounce timing.
type DiagnosticsConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Level         string `mapstructure:"level" yaml:"level"`
	DebounceTime  int    `mapstructure:"debounceTime" yaml:"debounceTime"`
}

// IndexingConfig controls IndexingService / SymbolIndex batching.
type IndexingConfig struct {
	Enabled   bool `mapstructure:"enabled" yaml:"enabled"`
	BatchSize int  `mapstructure:"batchSize" yaml:"batchSize"`
}

// CompletionConfig toggles snippet completions.
type CompletionConfig struct {
	Snippets struct {
		Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	} `mapstructure:"snippets" yaml:"snippets"`
}

// ExternalSourcesConfig controls decompiled/external-archive source handling.
type ExternalSourcesConfig struct {
	UseKlsScheme        bool `mapstructure:"useKlsScheme" yaml:"useKlsScheme"`
	AutoConvertToKotlin bool `mapstructure:"autoConvertToKotlin" yaml:"autoConvertToKotlin"`
}

// ScriptsConfig toggles script/build-script parsing.
type ScriptsConfig struct {
	Enabled              bool `mapstructure:"enabled" yaml:"enabled"`
	BuildScriptsEnabled  bool `mapstructure:"buildScriptsEnabled" yaml:"buildScriptsEnabled"`
}

// InlayHintsConfig toggles per-kind inlay hints.
type InlayHintsConfig struct {
	Type      bool `mapstructure:"type" yaml:"type"`
	Parameter bool `mapstructure:"parameter" yaml:"parameter"`
	Chained   bool `mapstructure:"chained" yaml:"chained"`
}

// CompilerConfig holds compiler-backend options.
type CompilerConfig struct {
	JVM struct {
		// Target bytecode level; "default" follows the build toolchain.
		Target string `mapstructure:"target" yaml:"target"`
	} `mapstructure:"jvm" yaml:"jvm"`
}

// Config is the full recognised-options tree from spec §6.
type Config struct {
	StoragePath      string                `mapstructure:"storagePath" yaml:"storagePath"`
	WorkspaceRoots   []string              `mapstructure:"workspaceRoots" yaml:"workspaceRoots"`
	Diagnostics      DiagnosticsConfig     `mapstructure:"diagnostics" yaml:"diagnostics"`
	Indexing         IndexingConfig        `mapstructure:"indexing" yaml:"indexing"`
	Completion       CompletionConfig      `mapstructure:"completion" yaml:"completion"`
	ExternalSources  ExternalSourcesConfig `mapstructure:"externalSources" yaml:"externalSources"`
	Scripts          ScriptsConfig         `mapstructure:"scripts" yaml:"scripts"`
	InlayHints       InlayHintsConfig      `mapstructure:"inlayHints" yaml:"inlayHints"`
	Compiler         CompilerConfig        `mapstructure:"compiler" yaml:"compiler"`
}

// Clone deep-copies c, following the teacher's CemConfig.Clone shallow-copy-
// plus-explicit-slice-copy pattern so callers can hand out an immutable
// snapshot without aliasing backing slices.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.WorkspaceRoots != nil {
		clone.WorkspaceRoots = make([]string, len(c.WorkspaceRoots))
		copy(clone.WorkspaceRoots, c.WorkspaceRoots)
	}
	return &clone
}

// Defaults returns a Config populated with the documented defaults.
func Defaults() *Config {
	c := &Config{
		Diagnostics: DiagnosticsConfig{
			Enabled:      true,
			Level:        "warning",
			DebounceTime: 250,
		},
		Indexing: IndexingConfig{
			Enabled:   true,
			BatchSize: 50,
		},
	}
	c.Compiler.JVM.Target = "default"
	return c
}

// Manager binds a Config to viper and hands out immutable Snapshots so a
// reader never races a concurrent didChangeConfiguration write. current
// is guarded by mu since Load/ApplyChange can run concurrently with any
// number of Snapshot callers.
type Manager struct {
	v       *viper.Viper
	mu      sync.RWMutex
	current *Config
}

// NewManager constructs a Manager with defaults registered and the KLS_
// environment prefix bound, mirroring the teacher's workspace/context.go
// viper wiring.
func NewManager() *Manager {
	v := viper.New()
	v.SetEnvPrefix("KLS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Defaults()
	v.SetDefault("diagnostics.enabled", defaults.Diagnostics.Enabled)
	v.SetDefault("diagnostics.level", defaults.Diagnostics.Level)
	v.SetDefault("diagnostics.debounceTime", defaults.Diagnostics.DebounceTime)
	v.SetDefault("indexing.enabled", defaults.Indexing.Enabled)
	v.SetDefault("indexing.batchSize", defaults.Indexing.BatchSize)
	v.SetDefault("compiler.jvm.target", defaults.Compiler.JVM.Target)

	m := &Manager{v: v, current: defaults}
	return m
}

// Load reads the bound viper instance into a fresh Config and stores it
// as the current snapshot.
func (m *Manager) Load() error {
	cfg := Defaults()
	if err := m.v.Unmarshal(cfg); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = cfg
	m.mu.Unlock()
	return nil
}

// Viper exposes the underlying *viper.Viper for cobra flag binding.
func (m *Manager) Viper() *viper.Viper { return m.v }

// Snapshot returns an immutable copy of the current configuration, safe
// to read without synchronization against a concurrent Load.
func (m *Manager) Snapshot() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// ApplyChange re-unmarshals from viper after a didChangeConfiguration
// notification has updated bound values.
func (m *Manager) ApplyChange() (*Config, error) {
	if err := m.Load(); err != nil {
		return nil, err
	}
	return m.Snapshot(), nil
}
