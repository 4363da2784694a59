package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "ragdocs-gateway"

// ConfigFileNames are the file names probed in every config directory, in
// load order.
var ConfigFileNames = []string{"gateway.json", "gateway.jsonc", "gateway.yaml", "gateway.yml"}

// GlobalDir returns the XDG config directory for the gateway.
func GlobalDir() string {
	return filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), appName)
}

// GlobalConfigPath returns the path of the default global config file.
func GlobalConfigPath() string {
	return filepath.Join(GlobalDir(), ConfigFileNames[0])
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}
