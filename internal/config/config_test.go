package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, values map[string]string) {
	t.Helper()
	for k, v := range values {
		t.Setenv(k, v)
	}
}

func TestLoad(t *testing.T) {
	setEnv(t, map[string]string{
		"AUTHGEAR_CLIENT_ID":  "client",
		"AUTHGEAR_ENDPOINT":   "https://auth.example.com",
		"AUTHGEAR_STORE_PATH": filepath.Join(t.TempDir(), "store.db"),
	})
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "client", cfg.ClientID)
	assert.Equal(t, "default", cfg.Name)
	assert.Equal(t, 8765, cfg.RedirectPort)
	assert.Equal(t, "/oauth2/callback", cfg.RedirectPath)
	assert.False(t, cfg.IsProduction())

	hashKey, blockKey, err := cfg.SealingKeys()
	require.NoError(t, err)
	assert.Nil(t, hashKey)
	assert.Nil(t, blockKey)
}

func TestLoad_dotenv(t *testing.T) {
	t.Setenv("AUTHGEAR_STORE_PATH", filepath.Join(t.TempDir(), "store.db"))
	t.Setenv("AUTHGEAR_CLIENT_ID", "from-env")
	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte(
		"AUTHGEAR_CLIENT_ID=from-file\nAUTHGEAR_ENDPOINT=https://auth.example.com\nAUTHGEAR_THIRD_PARTY=true\n",
	), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("AUTHGEAR_ENDPOINT")
		os.Unsetenv("AUTHGEAR_THIRD_PARTY")
	})

	cfg, err := Load(file)
	require.NoError(t, err)
	// The environment wins over the file.
	assert.Equal(t, "from-env", cfg.ClientID)
	assert.Equal(t, "https://auth.example.com", cfg.Endpoint)
	assert.True(t, cfg.ThirdParty)
}

func TestLoad_invalid(t *testing.T) {
	valid := map[string]string{
		"AUTHGEAR_CLIENT_ID":  "client",
		"AUTHGEAR_ENDPOINT":   "https://auth.example.com",
		"AUTHGEAR_STORE_PATH": "store.db",
	}
	tests := []struct {
		name      string
		overrides map[string]string
		wantErr   string
	}{
		{"missing client id", map[string]string{"AUTHGEAR_CLIENT_ID": ""}, "AUTHGEAR_CLIENT_ID"},
		{"missing endpoint", map[string]string{"AUTHGEAR_ENDPOINT": ""}, "AUTHGEAR_ENDPOINT"},
		{"relative endpoint", map[string]string{"AUTHGEAR_ENDPOINT": "auth.example.com"}, "absolute"},
		{"port", map[string]string{"AUTHGEAR_REDIRECT_PORT": "70000"}, "AUTHGEAR_REDIRECT_PORT"},
		{"port not a number", map[string]string{"AUTHGEAR_REDIRECT_PORT": "http"}, "parsing config"},
		{"path", map[string]string{"AUTHGEAR_REDIRECT_PATH": "callback"}, "AUTHGEAR_REDIRECT_PATH"},
		{"only hash key", map[string]string{"AUTHGEAR_STORE_HASH_KEY": "00"}, "set together"},
		{"non hex key", map[string]string{"AUTHGEAR_STORE_HASH_KEY": "zz", "AUTHGEAR_STORE_BLOCK_KEY": "00"}, "HASH_KEY"},
		{"short block key", map[string]string{"AUTHGEAR_STORE_HASH_KEY": "00", "AUTHGEAR_STORE_BLOCK_KEY": "0011"}, "16, 24 or 32"},
		{"log level", map[string]string{"AUTHGEAR_LOG_LEVEL": "loud"}, "AUTHGEAR_LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, valid)
			setEnv(t, tt.overrides)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_SealingKeys(t *testing.T) {
	cfg := &Config{
		StoreHashKey:  strings.Repeat("ab", 32),
		StoreBlockKey: strings.Repeat("cd", 32),
	}
	hashKey, blockKey, err := cfg.SealingKeys()
	require.NoError(t, err)
	assert.Len(t, hashKey, 32)
	assert.Len(t, blockKey, 32)
}

func TestConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Environment: "production", LogLevel: "debug"}
	cfg.NewLogger(&buf).Debug("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	cfg = &Config{Environment: "development", LogLevel: "warn"}
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}
