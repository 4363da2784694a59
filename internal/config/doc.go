// Package config provides configuration loading and validation for the gateway.
//
// # Configuration Loading
//
// Load starts from the built-in defaults and decodes each source on top of
// the previous one, so later sources override earlier ones field by field:
//
//  1. Defaults (port 3031, 30m inactivity threshold, 5m cleanup interval)
//  2. Global config in $XDG_CONFIG_HOME/ragdocs-gateway/ (or ~/.config/ragdocs-gateway/)
//  3. Project config in the directory passed to Load
//  4. The file named by RAGDOCS_CONFIG
//  5. Environment variables with the RAGDOCS_ prefix, after loading .env
//
// Command-line flags are applied by the CLI after Load returns.
//
// # Supported Formats
//
// Each config directory is probed for gateway.json, gateway.jsonc,
// gateway.yaml and gateway.yml. JSONC comments are stripped with
// tidwall/jsonc; YAML is decoded with gopkg.in/yaml.v3. Durations are
// written as Go duration strings:
//
//	{
//	  // Evict sessions idle for longer than this.
//	  "session": { "inactivityThreshold": "30m", "cleanupInterval": "5m" },
//	  "server": { "port": 3031 }
//	}
//
// # Environment Variables
//
// Variables are mapped with caarlos0/env. Nested sections use their own
// prefix, for example:
//
//	RAGDOCS_SERVER_PORT=8080
//	RAGDOCS_SESSION_INACTIVITY_THRESHOLD=10m
//	RAGDOCS_LOG_LEVEL=debug
//	RAGDOCS_SERVER_CORS_ORIGINS=https://a.example,https://b.example
//
// Variables from .env never override ones already present in the process
// environment.
package config
