// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/pkg/errutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newFlags(t *testing.T) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	return flags
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("KEYGATE_JWT_SECRET", testSecret)

	cfg, err := config.Load("", newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "127.0.0.1:9100", cfg.Observability.Addr)
	assert.Equal(t, "postgres://localhost:5432/keygate", cfg.Database.URL)
	assert.Equal(t, "keygate", cfg.Auth.Issuer)
	assert.Equal(t, 30*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
}

func TestLoad_FileOverridesFlagDefaults(t *testing.T) {
	t.Setenv("KEYGATE_JWT_SECRET", testSecret)
	path := writeConfigFile(t, `
server:
  addr: ":9999"
auth:
  issuer: keygate-stage
  access_ttl: 15m
  refresh_ttl: 720h
logging:
  format: text
  level: debug
`)

	cfg, err := config.Load(path, newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "keygate-stage", cfg.Auth.Issuer)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 720*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_SetFlagsOverrideFile(t *testing.T) {
	t.Setenv("KEYGATE_JWT_SECRET", testSecret)
	path := writeConfigFile(t, `
server:
  addr: ":9999"
`)

	flags := newFlags(t)
	require.NoError(t, flags.Set("server.addr", ":7777"))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.Addr)
}

func TestLoad_EnvSecretOverridesFile(t *testing.T) {
	t.Setenv("KEYGATE_JWT_SECRET", testSecret)
	path := writeConfigFile(t, `
auth:
  jwt_secret: "file-secret-file-secret-file-secret"
`)

	cfg, err := config.Load(path, newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("KEYGATE_JWT_SECRET", testSecret)

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), newFlags(t))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_FILE_FAILED")
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		setup  func(t *testing.T, flags *pflag.FlagSet)
	}{
		{
			name:   "missing jwt secret",
			secret: "",
		},
		{
			name:   "short jwt secret",
			secret: "too-short",
		},
		{
			name:   "refresh ttl not longer than access ttl",
			secret: testSecret,
			setup: func(t *testing.T, flags *pflag.FlagSet) {
				require.NoError(t, flags.Set("auth.access-ttl", "1h"))
				require.NoError(t, flags.Set("auth.refresh-ttl", "30m"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("KEYGATE_JWT_SECRET", tt.secret)
			flags := newFlags(t)
			if tt.setup != nil {
				tt.setup(t, flags)
			}

			_, err := config.Load("", flags)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
		})
	}
}

func TestLoadPartial_SkipsValidation(t *testing.T) {
	t.Setenv("KEYGATE_JWT_SECRET", "")

	cfg, err := config.LoadPartial("", newFlags(t))
	require.NoError(t, err)

	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, "postgres://localhost:5432/keygate", cfg.Database.URL)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Server:   config.ServerConfig{Addr: ":8080"},
			Database: config.DatabaseConfig{URL: "postgres://localhost/keygate"},
			Auth: config.AuthConfig{
				JWTSecret:  testSecret,
				Issuer:     "keygate",
				AccessTTL:  30 * time.Minute,
				RefreshTTL: 14 * 24 * time.Hour,
			},
		}
	}

	require.NoError(t, valid().Validate())

	broken := valid()
	broken.Auth.Issuer = ""
	errutil.AssertErrorCode(t, broken.Validate(), "CONFIG_INVALID")

	broken = valid()
	broken.Database.URL = ""
	errutil.AssertErrorCode(t, broken.Validate(), "CONFIG_INVALID")

	broken = valid()
	broken.Auth.AccessTTL = 0
	errutil.AssertErrorCode(t, broken.Validate(), "CONFIG_INVALID")
}
