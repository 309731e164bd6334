package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
permissions:
  - resource: users
    action: read
  - resource: users
    action: write
    name: Write users
roles:
  - name: admin
    system: true
    permissions: ["*"]
  - name: acme-support
    tenant_id: 3f1c9a52-6a77-4c1e-9d0e-1f7ab1d2c3e4
    permissions:
      - users:read
`

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	seed, err := loadSeed(path)
	require.NoError(t, err)

	require.Len(t, seed.Permissions, 2)
	assert.Equal(t, "Write users", seed.Permissions[1].Name)

	require.Len(t, seed.Roles, 2)
	assert.True(t, seed.Roles[0].System)
	assert.Nil(t, seed.Roles[0].TenantID)
	assert.Equal(t, []string{"*"}, seed.Roles[0].Permissions)

	require.NotNil(t, seed.Roles[1].TenantID)
	assert.Equal(t, uuid.MustParse("3f1c9a52-6a77-4c1e-9d0e-1f7ab1d2c3e4"), *seed.Roles[1].TenantID)
}

func TestLoadSeedMissingFile(t *testing.T) {
	_, err := loadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadCLIConfigDefaults(t *testing.T) {
	t.Setenv("AUTH_LOG_LEVEL", "debug")

	cfg, err := loadCLIConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "auth", cfg.RedisPrefix)
	assert.Equal(t, "authctl", cfg.MetricsNamespace)
}
