package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/encodeous/strand/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags(t *testing.T) {
	t.Cleanup(func() {
		nodeConfigPath, logPath, host = "", "", ""
	})
}

func TestLoadConfigPositional(t *testing.T) {
	resetFlags(t)
	path := filepath.Join(t.TempDir(), "A.txt")
	require.NoError(t, os.WriteFile(path, []byte("2\nB 1.5 6001\nC 3 6002\n"), 0600))
	host = "10.0.0.1"

	cfg, err := loadConfig([]string{"A", "6000", path})
	require.NoError(t, err)
	assert.Equal(t, &state.LocalCfg{
		Id:   "A",
		Port: 6000,
		Host: "10.0.0.1",
		Neighbours: []state.NeighbourCfg{
			{Id: "B", Cost: 1.5, Port: 6001, Host: "10.0.0.1"},
			{Id: "C", Cost: 3, Port: 6002, Host: "10.0.0.1"},
		},
	}, cfg)
}

func TestLoadConfigYaml(t *testing.T) {
	resetFlags(t)
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id: A\nport: 6000\nneighbours:\n  - id: B\n    cost: 2\n    port: 6001\n"), 0600))
	nodeConfigPath = path
	logPath = "/tmp/strand-a.log"

	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, state.NodeId("A"), cfg.Id)
	assert.Equal(t, "/tmp/strand-a.log", cfg.LogPath)

	_, err = loadConfig([]string{"A"})
	assert.ErrorContains(t, err, "cannot be combined")
}

func TestLoadConfigErrors(t *testing.T) {
	resetFlags(t)
	path := filepath.Join(t.TempDir(), "A.txt")
	require.NoError(t, os.WriteFile(path, []byte("1\nA 1 6001\n"), 0600))

	_, err := loadConfig([]string{"A", "6000"})
	assert.ErrorContains(t, err, "expected <node-id> <port> <neighbour-file>")
	_, err = loadConfig([]string{"A", "port", path})
	assert.ErrorContains(t, err, "invalid port")
	_, err = loadConfig([]string{"A", "6000", path})
	assert.ErrorContains(t, err, "cannot be its own neighbour")
}
