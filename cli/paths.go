// paths.go - Centralized application path management
// All config and data files live under ~/.konnect
package main

import (
	"log"
	"os"
	"path/filepath"
)

// AppHomeDir is the name of the application's home directory
const AppHomeDir = ".konnect"

// GetAppHome returns the application home directory (~/.konnect)
// Creates it if it doesn't exist
func GetAppHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Warning: Could not get user home directory: %v", err)
		return "."
	}

	appHome := filepath.Join(home, AppHomeDir)

	if err := os.MkdirAll(appHome, 0755); err != nil {
		log.Printf("Warning: Could not create app home directory %s: %v", appHome, err)
	}

	return appHome
}

// GetSettingsPath returns the path to settings.json (~/.konnect/settings.json)
func GetSettingsPath() string {
	return filepath.Join(GetAppHome(), "settings.json")
}

// GetConnectionsPath returns the path to connections.yaml (~/.konnect/connections.yaml)
func GetConnectionsPath() string {
	return filepath.Join(GetAppHome(), "connections.yaml")
}
