package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RAGDOCS_"

// Load builds the configuration from multiple sources (priority order):
// 1. Built-in defaults
// 2. Global config (~/.config/ragdocs-gateway/gateway.*)
// 3. Project config (<directory>/gateway.*)
// 4. RAGDOCS_CONFIG file
// 5. <directory>/.env and RAGDOCS_* environment variables
//
// Missing files are skipped. A file that exists but fails to parse is an error.
func Load(directory string) (*Config, error) {
	cfg := Default()

	loaded := make(map[string]bool)
	loadOnce := func(path string) error {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, cfg)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		loaded[absPath] = true
		return nil
	}

	dirs := []string{GlobalDir()}
	if directory != "" {
		dirs = append(dirs, directory)
	}
	for _, dir := range dirs {
		for _, name := range ConfigFileNames {
			if err := loadOnce(filepath.Join(dir, name)); err != nil {
				return nil, err
			}
		}
	}

	if configPath := os.Getenv(EnvPrefix + "CONFIG"); configPath != "" {
		if err := loadConfigFile(configPath, cfg); err != nil {
			return nil, err
		}
	}

	// .env never overrides variables already set in the process.
	dotenv := ".env"
	if directory != "" {
		dotenv = filepath.Join(directory, ".env")
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotenv, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadConfigFile decodes one file on top of cfg. Fields absent from the file
// keep their current values.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return nil
}

// applyEnvOverrides reads RAGDOCS_* variables. Unset variables leave the
// current value untouched.
func applyEnvOverrides(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
