package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultClientPolicy(t *testing.T) {
	p := DefaultClientPolicy()

	assert.Equal(t, time.Second, p.TendInterval)
	assert.Equal(t, 8, p.MaxConnsPerNode)
}

func TestLoadClientPolicy_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")

	content := "seed_hosts:\n  - 127.0.0.1:3000\ncluster_name: test\nmax_conns_per_node: 16\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	p, err := LoadClientPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"127.0.0.1:3000"}, p.SeedHosts)
	assert.Equal(t, "test", p.ClusterName)
	assert.Equal(t, 16, p.MaxConnsPerNode)
	assert.Equal(t, time.Second, p.TendInterval) // untouched default
}

func TestLoadClientPolicy_MissingFile(t *testing.T) {
	_, err := LoadClientPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestClusterConfig_BuildsCredentialsWhenUsernameSet(t *testing.T) {
	p := DefaultClientPolicy()
	p.Username = "admin"
	p.Password = "secret"

	cfg := p.ClusterConfig(nil)
	require.NotNil(t, cfg.NodeConfig.Credentials)
	assert.Equal(t, "admin", cfg.NodeConfig.Credentials.Username)
}

func TestClusterConfig_NoCredentialsWhenUsernameUnset(t *testing.T) {
	cfg := DefaultClientPolicy().ClusterConfig(nil)
	assert.Nil(t, cfg.NodeConfig.Credentials)
}
