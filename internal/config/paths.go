package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath names an explicit config file
	EnvConfigPath = "NETMIRROR_CONFIG"
	// ConfigFileName is looked up in the working directory
	ConfigFileName = "netmirror.yaml"

	appDir         = "netmirror"
	userConfigName = "config.yaml"
)

// SearchPaths lists config candidates, most specific first. The user
// directory comes from os.UserConfigDir, so $XDG_CONFIG_HOME wins over
// ~/.config on Linux.
func SearchPaths() []string {
	var paths []string
	if explicit := os.Getenv(EnvConfigPath); explicit != "" {
		paths = append(paths, explicit)
	}
	if abs, err := filepath.Abs(ConfigFileName); err == nil {
		paths = append(paths, abs)
	} else {
		paths = append(paths, ConfigFileName)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, appDir, userConfigName))
	}
	return append(paths, filepath.Join("/etc", appDir, userConfigName))
}

// FindConfigPath returns the first existing search path, or "" when none exists
func FindConfigPath() string {
	for _, p := range SearchPaths() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}
