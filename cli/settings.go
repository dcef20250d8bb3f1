// settings.go - Application settings modal with persistent configuration
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
)

// AppSettings holds all application configuration
type AppSettings struct {
	// Appearance
	DarkTheme bool `json:"dark_theme"` // Use dark theme (default: true)
	FontSize  int  `json:"font_size"`  // Terminal font size in points (default: 12)

	// SSH Defaults
	DefaultKeyPath  string `json:"default_key_path"` // Default SSH key path (default: ~/.ssh/id_rsa)
	DefaultPort     int    `json:"default_port"`     // Default SSH port (default: 22)
	DefaultUsername string `json:"default_username"` // Default username for new connections

	// Local shell default; empty means $SHELL
	DefaultShell string `json:"default_shell"`

	// Session lifecycle tuning, in milliseconds
	TeardownGraceMs  int `json:"teardown_grace_ms"`  // Backend survives a detached view this long (default: 100)
	ResizeDebounceMs int `json:"resize_debounce_ms"` // Settle time for panel-toggle resizes (default: 250)

	// Window
	RememberWindowSize bool `json:"remember_window_size"` // Remember window size on exit (default: true)
	WindowWidth        int  `json:"window_width"`         // Saved window width
	WindowHeight       int  `json:"window_height"`        // Saved window height
}

// DefaultSettings returns settings with sensible defaults
func DefaultSettings() *AppSettings {
	homeDir, _ := os.UserHomeDir()
	defaultKeyPath := filepath.Join(homeDir, ".ssh", "id_rsa")

	return &AppSettings{
		DarkTheme: true,
		FontSize:  12,

		DefaultKeyPath:  defaultKeyPath,
		DefaultPort:     22,
		DefaultUsername: "",

		DefaultShell: "",

		TeardownGraceMs:  100,
		ResizeDebounceMs: 250,

		RememberWindowSize: true,
		WindowWidth:        1200,
		WindowHeight:       800,
	}
}

// SettingsManager loads, saves, and edits application settings
type SettingsManager struct {
	settings     *AppSettings
	settingsPath string
	onSave       func(*AppSettings)
}

// NewSettingsManager creates a settings manager backed by the app home dir
func NewSettingsManager() *SettingsManager {
	sm := &SettingsManager{
		settings:     DefaultSettings(),
		settingsPath: GetSettingsPath(),
	}
	sm.Load()
	return sm
}

// Load reads settings from disk
func (sm *SettingsManager) Load() error {
	data, err := os.ReadFile(sm.settingsPath)
	if err != nil {
		if os.IsNotExist(err) {
			// No settings file - use defaults and create one
			log.Printf("No settings file found, using defaults")
			return sm.Save()
		}
		return fmt.Errorf("failed to read settings: %w", err)
	}

	// Start with defaults, then overlay saved settings
	sm.settings = DefaultSettings()
	if err := json.Unmarshal(data, sm.settings); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}

	log.Printf("Loaded settings from %s", sm.settingsPath)
	return nil
}

// Save writes settings to disk
func (sm *SettingsManager) Save() error {
	data, err := json.MarshalIndent(sm.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(sm.settingsPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	log.Printf("Saved settings to %s", sm.settingsPath)
	return nil
}

// Get returns the current settings
func (sm *SettingsManager) Get() *AppSettings {
	return sm.settings
}

// SetOnSave sets a callback for when settings are saved
func (sm *SettingsManager) SetOnSave(callback func(*AppSettings)) {
	sm.onSave = callback
}

// ShowSettingsDialog opens the settings editor modal
func (sm *SettingsManager) ShowSettingsDialog(window fyne.Window) {
	editSettings := *sm.settings

	// === Appearance ===
	darkThemeCheck := widget.NewCheck("Dark Theme (restart to apply)", nil)
	darkThemeCheck.SetChecked(editSettings.DarkTheme)

	rememberSizeCheck := widget.NewCheck("Remember window size on exit", nil)
	rememberSizeCheck.SetChecked(editSettings.RememberWindowSize)

	appearanceTab := container.NewVBox(
		widget.NewLabel("Appearance Settings"),
		widget.NewSeparator(),
		widget.NewForm(
			widget.NewFormItem("", darkThemeCheck),
			widget.NewFormItem("", rememberSizeCheck),
		),
	)

	// === Connection Defaults ===
	defaultKeyEntry := widget.NewEntry()
	defaultKeyEntry.SetText(editSettings.DefaultKeyPath)
	defaultKeyEntry.SetPlaceHolder("~/.ssh/id_rsa")

	defaultPortEntry := widget.NewEntry()
	defaultPortEntry.SetText(strconv.Itoa(editSettings.DefaultPort))

	defaultUserEntry := widget.NewEntry()
	defaultUserEntry.SetText(editSettings.DefaultUsername)
	defaultUserEntry.SetPlaceHolder("admin")

	defaultShellEntry := widget.NewEntry()
	defaultShellEntry.SetText(editSettings.DefaultShell)
	defaultShellEntry.SetPlaceHolder("$SHELL")

	defaultsTab := container.NewVBox(
		widget.NewLabel("Connection Defaults"),
		widget.NewSeparator(),
		widget.NewForm(
			widget.NewFormItem("Default Key Path", defaultKeyEntry),
			widget.NewFormItem("Default Port", defaultPortEntry),
			widget.NewFormItem("Default Username", defaultUserEntry),
			widget.NewFormItem("Local Shell", defaultShellEntry),
		),
	)

	// === Advanced ===
	graceEntry := widget.NewEntry()
	graceEntry.SetText(strconv.Itoa(editSettings.TeardownGraceMs))
	graceEntry.SetPlaceHolder("100")

	debounceEntry := widget.NewEntry()
	debounceEntry.SetText(strconv.Itoa(editSettings.ResizeDebounceMs))
	debounceEntry.SetPlaceHolder("250")

	advancedTab := container.NewVBox(
		widget.NewLabel("Session Lifecycle (restart to apply)"),
		widget.NewSeparator(),
		widget.NewForm(
			widget.NewFormItem("Teardown Grace (ms)", graceEntry),
			widget.NewFormItem("Resize Debounce (ms)", debounceEntry),
		),
	)

	tabs := container.NewAppTabs(
		container.NewTabItem("Appearance", appearanceTab),
		container.NewTabItem("Defaults", defaultsTab),
		container.NewTabItem("Advanced", advancedTab),
	)

	d := dialog.NewCustomConfirm("Settings", "Save", "Cancel", tabs,
		func(confirmed bool) {
			if !confirmed {
				return
			}

			editSettings.DarkTheme = darkThemeCheck.Checked
			editSettings.RememberWindowSize = rememberSizeCheck.Checked
			editSettings.DefaultKeyPath = defaultKeyEntry.Text
			editSettings.DefaultUsername = defaultUserEntry.Text
			editSettings.DefaultShell = defaultShellEntry.Text

			if port, err := strconv.Atoi(defaultPortEntry.Text); err == nil && port > 0 {
				editSettings.DefaultPort = port
			}
			if ms, err := strconv.Atoi(graceEntry.Text); err == nil && ms >= 0 {
				editSettings.TeardownGraceMs = ms
			}
			if ms, err := strconv.Atoi(debounceEntry.Text); err == nil && ms >= 0 {
				editSettings.ResizeDebounceMs = ms
			}

			*sm.settings = editSettings
			if err := sm.Save(); err != nil {
				dialog.ShowError(err, window)
				return
			}
			if sm.onSave != nil {
				sm.onSave(sm.settings)
			}
		},
		window,
	)

	d.Resize(fyne.NewSize(550, 450))
	d.Show()
}
