// connection_store.go - YAML connection file loading and saving
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/TaylorChen/konnect/internal/session"
)

// ConnectionFolder represents a folder/group of connections in the YAML file
type ConnectionFolder struct {
	FolderName  string           `yaml:"folder_name"`
	Connections []ConnectionYAML `yaml:"connections"`
}

// ConnectionYAML represents a connection entry in the YAML file
type ConnectionYAML struct {
	DisplayName string `yaml:"display_name"`
	Type        string `yaml:"type"` // "local" or "ssh"

	// SSH connection
	Host     string `yaml:"host,omitempty"`
	Port     string `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`

	// Authentication
	AuthType      string `yaml:"auth_type,omitempty"`      // "password", "publickey", "agent"
	KeyPath       string `yaml:"key_path,omitempty"`       // Path to private key
	KeyPassphrase string `yaml:"key_passphrase,omitempty"` // Passphrase for encrypted keys

	// Local shell override
	Shell string `yaml:"shell,omitempty"`
}

// Connection holds metadata about a saved connection
type Connection struct {
	ID            string
	Name          string
	Kind          session.Kind
	Host          string
	Port          int
	Username      string
	Password      string
	AuthType      string
	KeyPath       string
	KeyPassphrase string
	Shell         string
	Folder        string
}

// Params converts the connection into backend session parameters
func (c Connection) Params(cols, rows int) session.Params {
	if c.Kind == session.KindLocal {
		return session.LocalParams{
			Shell: c.Shell,
			Cols:  cols,
			Rows:  rows,
		}
	}

	var auth session.Auth
	switch c.AuthType {
	case "publickey":
		auth = session.PublicKeyAuth{Path: c.KeyPath, Passphrase: c.KeyPassphrase}
	case "agent":
		auth = session.AgentAuth{}
	default:
		auth = session.PasswordAuth{Secret: c.Password}
	}

	return session.SSHParams{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Auth:     auth,
		Cols:     cols,
		Rows:     rows,
	}
}

// ConnectionStore handles loading and saving connections
type ConnectionStore struct {
	filePath string
	folders  []ConnectionFolder
}

// NewConnectionStore creates a new connection store
func NewConnectionStore(filePath string) *ConnectionStore {
	return &ConnectionStore{
		filePath: filePath,
		folders:  []ConnectionFolder{},
	}
}

var connectionsFileHeader = []byte("# Konnect Connections File\n# Edit with the app or manually\n#\n# Types: local, ssh\n# Auth types: password, publickey, agent\n# Key path supports ~ expansion (e.g., ~/.ssh/id_rsa)\n\n")

// createStubConnectionsFile creates a starter connections.yaml with example entries
func createStubConnectionsFile(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create connections directory: %w", err)
	}

	stub := []ConnectionFolder{
		{
			FolderName: "Local",
			Connections: []ConnectionYAML{
				{DisplayName: "Local Shell", Type: "local"},
			},
		},
		{
			FolderName: "Examples",
			Connections: []ConnectionYAML{
				{
					DisplayName: "Example-Server",
					Type:        "ssh",
					Host:        "192.168.1.1",
					Port:        "22",
					Username:    "admin",
					AuthType:    "password",
				},
				{
					DisplayName: "Example-SSH-Key",
					Type:        "ssh",
					Host:        "192.168.1.2",
					Port:        "22",
					Username:    "admin",
					AuthType:    "publickey",
					KeyPath:     "~/.ssh/id_rsa",
				},
			},
		},
	}

	data, err := yaml.Marshal(stub)
	if err != nil {
		return fmt.Errorf("failed to marshal stub: %w", err)
	}
	data = append(append([]byte(nil), connectionsFileHeader...), data...)

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write stub file: %w", err)
	}

	log.Printf("Created stub connections file: %s", filePath)
	return nil
}

// Load reads connections from the YAML file, creating a stub if missing
func (s *ConnectionStore) Load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Connections file not found, creating stub: %s", s.filePath)
			if err := createStubConnectionsFile(s.filePath); err != nil {
				log.Printf("Warning: Could not create stub connections file: %v", err)
				return nil
			}
			data, err = os.ReadFile(s.filePath)
			if err != nil {
				return fmt.Errorf("failed to read connections file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to read connections file: %w", err)
		}
	}

	if err := yaml.Unmarshal(data, &s.folders); err != nil {
		return fmt.Errorf("failed to parse connections YAML: %w", err)
	}

	log.Printf("Loaded %d folders from %s", len(s.folders), s.filePath)
	return nil
}

// Save writes connections to the YAML file
func (s *ConnectionStore) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create connections directory: %w", err)
	}

	data, err := yaml.Marshal(s.folders)
	if err != nil {
		return fmt.Errorf("failed to marshal connections: %w", err)
	}
	data = append(append([]byte(nil), connectionsFileHeader...), data...)

	if err := os.WriteFile(s.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write connections file: %w", err)
	}

	log.Printf("Saved %d folders to %s", len(s.folders), s.filePath)
	return nil
}

// GetFolders returns all folder names
func (s *ConnectionStore) GetFolders() []string {
	names := make([]string, len(s.folders))
	for i, folder := range s.folders {
		names[i] = folder.FolderName
	}
	return names
}

// GetConnectionsByFolder returns connections organized by folder
func (s *ConnectionStore) GetConnectionsByFolder() map[string][]Connection {
	result := make(map[string][]Connection)
	for _, folder := range s.folders {
		var conns []Connection
		for i, c := range folder.Connections {
			conns = append(conns, yamlToConnection(folder.FolderName, i, c))
		}
		result[folder.FolderName] = conns
	}
	return result
}

// GetConnections returns all connections in folder order
func (s *ConnectionStore) GetConnections() []Connection {
	var conns []Connection
	for _, folder := range s.folders {
		for i, c := range folder.Connections {
			conns = append(conns, yamlToConnection(folder.FolderName, i, c))
		}
	}
	return conns
}

// yamlToConnection converts a ConnectionYAML to Connection
func yamlToConnection(folderName string, index int, c ConnectionYAML) Connection {
	kind := session.KindSSH
	if c.Type == "local" {
		kind = session.KindLocal
	}

	port := 22
	if c.Port != "" {
		if p, err := strconv.Atoi(c.Port); err == nil {
			port = p
		}
	}

	return Connection{
		ID:            fmt.Sprintf("%s-%d", folderName, index),
		Name:          c.DisplayName,
		Kind:          kind,
		Host:          c.Host,
		Port:          port,
		Username:      c.Username,
		AuthType:      c.AuthType,
		KeyPath:       c.KeyPath,
		KeyPassphrase: c.KeyPassphrase,
		Shell:         c.Shell,
		Folder:        folderName,
	}
}

// connectionToYAML converts a Connection to ConnectionYAML
func connectionToYAML(c Connection) ConnectionYAML {
	typ := "ssh"
	if c.Kind == session.KindLocal {
		typ = "local"
	}

	y := ConnectionYAML{
		DisplayName: c.Name,
		Type:        typ,
		Shell:       c.Shell,
	}
	if c.Kind == session.KindSSH {
		y.Host = c.Host
		y.Port = strconv.Itoa(c.Port)
		y.Username = c.Username
		y.AuthType = c.AuthType
		y.KeyPath = c.KeyPath
		y.KeyPassphrase = c.KeyPassphrase
	}
	return y
}

// AddConnection adds a new connection to a folder, creating the folder if needed
func (s *ConnectionStore) AddConnection(folderName string, c Connection) {
	for i := range s.folders {
		if s.folders[i].FolderName == folderName {
			s.folders[i].Connections = append(s.folders[i].Connections, connectionToYAML(c))
			return
		}
	}

	s.folders = append(s.folders, ConnectionFolder{
		FolderName:  folderName,
		Connections: []ConnectionYAML{connectionToYAML(c)},
	})
}

// RemoveConnection removes a connection by ID
func (s *ConnectionStore) RemoveConnection(id string) bool {
	for fi := range s.folders {
		for ci := range s.folders[fi].Connections {
			if fmt.Sprintf("%s-%d", s.folders[fi].FolderName, ci) == id {
				s.folders[fi].Connections = append(
					s.folders[fi].Connections[:ci],
					s.folders[fi].Connections[ci+1:]...,
				)
				return true
			}
		}
	}
	return false
}

// UpdateConnection replaces a connection by ID, keeping its folder slot
func (s *ConnectionStore) UpdateConnection(id string, updated Connection) bool {
	for fi := range s.folders {
		for ci := range s.folders[fi].Connections {
			if fmt.Sprintf("%s-%d", s.folders[fi].FolderName, ci) == id {
				s.folders[fi].Connections[ci] = connectionToYAML(updated)
				return true
			}
		}
	}
	return false
}

// AddFolder adds a new empty folder
func (s *ConnectionStore) AddFolder(name string) {
	for _, folder := range s.folders {
		if folder.FolderName == name {
			return
		}
	}

	s.folders = append(s.folders, ConnectionFolder{
		FolderName:  name,
		Connections: []ConnectionYAML{},
	})
}

// RemoveFolder removes a folder and all its connections
func (s *ConnectionStore) RemoveFolder(name string) bool {
	for i, folder := range s.folders {
		if folder.FolderName == name {
			s.folders = append(s.folders[:i], s.folders[i+1:]...)
			return true
		}
	}
	return false
}

// GetFilePath returns the current connections file path
func (s *ConnectionStore) GetFilePath() string {
	return s.filePath
}
