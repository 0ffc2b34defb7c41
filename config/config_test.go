package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-ethauth"
)

const testKey = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ethauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsRequireSigningKey(t *testing.T) {
	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing_key")
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8080"
jwt:
  signing_key: "`+testKey+`"
  audience: ["web", "mobile"]
auth:
  advanced:
    unique_email: false
    allow_register: true
    email_confirmation: true
    default_role: authenticated
  grant:
    email:
      enabled: true
    github:
      enabled: true
      key: client-id
      secret: client-secret
      callback: http://localhost/after
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, testKey, cfg.JWT.SigningKey)
	assert.Equal(t, []string{"web", "mobile"}, cfg.JWT.Audience)
	assert.Equal(t, 24*30, cfg.JWT.Expiration)
	assert.False(t, cfg.Auth.Advanced.UniqueEmail)
	assert.True(t, cfg.Auth.Advanced.EmailConfirmation)
	assert.True(t, cfg.Auth.ProviderEnabled(ethauth.ProviderLocal))
	assert.True(t, cfg.Auth.ProviderEnabled("github"))

	github, ok := cfg.Auth.Provider("github")
	require.True(t, ok)
	assert.Equal(t, "client-id", github.Key)
	assert.Equal(t, "http://localhost/after", github.Callback)

	// templates not named in the file keep their defaults
	assert.NotEmpty(t, cfg.Auth.Email.ResetPassword.Message)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8080"
jwt:
  signing_key: "`+testKey+`"
`)
	t.Setenv("ETHAUTH_SERVER_ADDR", ":9090")
	t.Setenv("ETHAUTH_DATABASE_DRIVER", "postgres")
	t.Setenv("ETHAUTH_DATABASE_DSN", "postgres://localhost/ethauth")
	t.Setenv("ETHAUTH_JWT_AUDIENCE", "a,b")
	t.Setenv("ETHAUTH_USE_HASHID", "true")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, ethauth.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/ethauth", cfg.Database.DSN)
	assert.Equal(t, []string{"a", "b"}, cfg.JWT.Audience)
	assert.True(t, cfg.UseHashid)
}

func TestLoad_ChangedFlagsWin(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8080"
log:
  level: debug
`)
	t.Setenv("ETHAUTH_JWT_SIGNING_KEY", testKey)
	t.Setenv("ETHAUTH_SERVER_ADDR", ":9090")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--server.addr", ":7070"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	// unchanged flag defaults do not override the file
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidDriver(t *testing.T) {
	t.Setenv("ETHAUTH_JWT_SIGNING_KEY", testKey)
	t.Setenv("ETHAUTH_DATABASE_DRIVER", "mysql")

	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver")
}

func TestLoad_NonceBoundTooSmall(t *testing.T) {
	t.Setenv("ETHAUTH_JWT_SIGNING_KEY", testKey)
	t.Setenv("ETHAUTH_NONCE_UPPER_BOUND", "10")

	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upper_bound")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}
