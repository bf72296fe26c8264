// Package config loads optional persistent defaults for filerecover's
// ScanConfig from an XDG-located TOML file. The file is entirely optional;
// its absence is not an error.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/shubham/filerecovery/internal/types"
)

// Config is the on-disk shape of filerecover's configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Logging  LoggingConfig  `toml:"logging"`
}

// DefaultsConfig holds persistent flag defaults for ScanConfig.
type DefaultsConfig struct {
	UseMetadataRecovery  *bool    `toml:"use_metadata_recovery"`
	UseSignatureRecovery *bool    `toml:"use_signature_recovery"`
	NumThreads           *int     `toml:"num_threads"`
	ChunkSizeBytes       *int64   `toml:"chunk_size_bytes"`
	TargetFileTypes      []string `toml:"target_file_types"`
	VerboseLogging       *bool    `toml:"verbose_logging"`
}

// LoggingConfig is decoded from the [logging] table. Neither the CLI nor
// the TUI reads it; the CLI's JSON log sink is set only by its --log flag.
type LoggingConfig struct {
	JSONLogPath *string `toml:"json_log_path"`
	Level       *string `toml:"level"`
}

// Path returns the resolved path to the configuration file, honoring
// XDG_CONFIG_HOME and falling back to ~/.config.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "filerecover", "config.toml")
}

// Load reads the configuration file. A missing file is not an error; it
// returns a zero Config, which ApplyDefaults treats as a no-op.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults overlays cfg's configured defaults onto sc wherever sc
// still holds its zero value, returning the merged ScanConfig. Values the
// caller has already set (e.g. from CLI flags) are never overridden.
func (cfg Config) ApplyDefaults(sc types.ScanConfig) types.ScanConfig {
	d := cfg.Defaults
	if d.UseMetadataRecovery != nil && !sc.UseMetadataRecovery {
		sc.UseMetadataRecovery = *d.UseMetadataRecovery
	}
	if d.UseSignatureRecovery != nil && !sc.UseSignatureRecovery {
		sc.UseSignatureRecovery = *d.UseSignatureRecovery
	}
	if d.NumThreads != nil && sc.NumThreads == 0 {
		sc.NumThreads = *d.NumThreads
	}
	if d.ChunkSizeBytes != nil && sc.ChunkSize == 0 {
		sc.ChunkSize = *d.ChunkSizeBytes
	}
	if len(d.TargetFileTypes) > 0 && len(sc.TargetFileTypes) == 0 {
		sc.TargetFileTypes = d.TargetFileTypes
	}
	if d.VerboseLogging != nil && !sc.VerboseLogging {
		sc.VerboseLogging = *d.VerboseLogging
	}
	return sc
}
