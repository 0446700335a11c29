// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, env var expansion, and validation failures

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/cumulus/auth.db
vpn:
  enabled: true
  address: 10.0.0.1
  start_port: 2000
  end_port: 3000
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/cumulus/auth.db", cfg.Database.Path)
	assert.True(t, cfg.VPN.Enabled)
	assert.Equal(t, 2000, cfg.VPN.StartPort)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched fields keep their defaults.
	assert.Equal(t, []string{"cloudadmin"}, cfg.Auth.SuperuserRoles)
	assert.Equal(t, "localhost:6379", cfg.VPN.RedisAddr)
	assert.Equal(t, "cumulusrc", cfg.Credentials.RCFile)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("CUMULUS_DB_PATH", "/tmp/expanded.db")
	path := writeConfig(t, `
database:
  path: ${CUMULUS_DB_PATH}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/expanded.db", cfg.Database.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name: "vpn enabled without address",
			mutate: func(c *Config) {
				c.VPN.Enabled = true
				c.VPN.Address = ""
			},
			wantErr: "vpn.address",
		},
		{
			name: "inverted vpn port range",
			mutate: func(c *Config) {
				c.VPN.Enabled = true
				c.VPN.Address = "10.0.0.1"
				c.VPN.StartPort = 3000
				c.VPN.EndPort = 2000
			},
			wantErr: "invalid",
		},
		{
			name: "vpn enabled without redis",
			mutate: func(c *Config) {
				c.VPN.Enabled = true
				c.VPN.Address = "10.0.0.1"
				c.VPN.RedisAddr = ""
			},
			wantErr: "vpn.redis_addr",
		},
		{
			name:    "no superuser roles",
			mutate:  func(c *Config) { c.Auth.SuperuserRoles = nil },
			wantErr: "superuser_roles",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
