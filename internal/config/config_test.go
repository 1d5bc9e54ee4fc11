// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers YAML parsing, env expansion, and required-field checks

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
	path := filepath.Join(t.TempDir(), "lucycore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/lucycore/lucy.db
vault:
  key_file: /opt/lucycore/keys/secrets.key
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/lucycore/lucy.db", cfg.Database.Path)
	assert.Equal(t, "/opt/lucycore/keys/secrets.key", cfg.Vault.KeyFile)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("LUCY_DATA_DIR", "/srv/lucy")

	path := writeConfig(t, `
database:
  path: ${LUCY_DATA_DIR}/lucy.db
vault:
  key_file: ${LUCY_DATA_DIR}/secrets.key
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/lucy/lucy.db", cfg.Database.Path)
	assert.Equal(t, "/srv/lucy/secrets.key", cfg.Vault.KeyFile)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "database: [not: a: mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing database path",
			cfg:     Config{Vault: VaultConfig{KeyFile: "/k"}},
			wantErr: "database.path",
		},
		{
			name:    "missing vault key file",
			cfg:     Config{Database: DatabaseConfig{Path: "/db"}},
			wantErr: "vault.key_file",
		},
		{
			name: "bad logging level",
			cfg: Config{
				Database: DatabaseConfig{Path: "/db"},
				Vault:    VaultConfig{KeyFile: "/k"},
				Logging:  LoggingConfig{Level: "verbose"},
			},
			wantErr: "logging.level",
		},
		{
			name: "bad logging format",
			cfg: Config{
				Database: DatabaseConfig{Path: "/db"},
				Vault:    VaultConfig{KeyFile: "/k"},
				Logging:  LoggingConfig{Format: "xml"},
			},
			wantErr: "logging.format",
		},
		{
			name: "valid with defaults",
			cfg: Config{
				Database: DatabaseConfig{Path: "/db"},
				Vault:    VaultConfig{KeyFile: "/k"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
