package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaylorChen/konnect/internal/session"
)

func TestConnectionStoreLoadCreatesStub(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.yaml")
	store := NewConnectionStore(path)

	require.NoError(t, store.Load())

	_, err := os.Stat(path)
	require.NoError(t, err)

	conns := store.GetConnections()
	require.NotEmpty(t, conns)
	assert.Equal(t, "Local Shell", conns[0].Name)
	assert.Equal(t, session.KindLocal, conns[0].Kind)
}

func TestConnectionStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.yaml")
	store := NewConnectionStore(path)
	require.NoError(t, store.Load())

	store.AddConnection("Lab", Connection{
		Name:     "router-1",
		Kind:     session.KindSSH,
		Host:     "10.0.0.1",
		Port:     2222,
		Username: "ops",
		AuthType: "publickey",
		KeyPath:  "~/.ssh/id_ed25519",
	})
	require.NoError(t, store.Save())

	reloaded := NewConnectionStore(path)
	require.NoError(t, reloaded.Load())

	var found *Connection
	for _, c := range reloaded.GetConnections() {
		if c.Name == "router-1" {
			cc := c
			found = &cc
			break
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "Lab", found.Folder)
	assert.Equal(t, 2222, found.Port)
	assert.Equal(t, "publickey", found.AuthType)
	assert.Equal(t, "~/.ssh/id_ed25519", found.KeyPath)
}

func TestConnectionStoreRemoveConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.yaml")
	store := NewConnectionStore(path)
	require.NoError(t, store.Load())

	store.AddConnection("Lab", Connection{Name: "gone", Kind: session.KindSSH, Host: "10.0.0.2", Port: 22})

	var id string
	for _, c := range store.GetConnections() {
		if c.Name == "gone" {
			id = c.ID
		}
	}
	require.NotEmpty(t, id)

	assert.True(t, store.RemoveConnection(id))
	assert.False(t, store.RemoveConnection(id))
}

func TestConnectionParamsSSH(t *testing.T) {
	c := Connection{
		Kind:     session.KindSSH,
		Host:     "10.0.0.1",
		Port:     22,
		Username: "ops",
		AuthType: "password",
		Password: "hunter2",
	}

	params, ok := c.Params(120, 40).(session.SSHParams)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", params.Host)
	assert.Equal(t, 120, params.Cols)
	assert.Equal(t, session.PasswordAuth{Secret: "hunter2"}, params.Auth)
}

func TestConnectionParamsLocal(t *testing.T) {
	c := Connection{Kind: session.KindLocal, Shell: "/bin/zsh"}

	params, ok := c.Params(80, 24).(session.LocalParams)
	require.True(t, ok)
	assert.Equal(t, "/bin/zsh", params.Shell)
	assert.Equal(t, 24, params.Rows)
}
