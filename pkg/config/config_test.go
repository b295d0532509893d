package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/proxyservice/internal/repository"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PROXY_SERVICE_HOST", "http://inventory.local/")
	t.Setenv("PROXY_SERVICE_USER", "crawler")
	t.Setenv("PROXY_SERVICE_PASSWORD", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://inventory.local/", cfg.Host)
	assert.Equal(t, "crawler", cfg.User)
	assert.Equal(t, "secret", cfg.Password)
	assert.True(t, cfg.Retry)
	assert.Equal(t, 10, cfg.MaxRetryNo)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 24*time.Hour, cfg.BlockCounterTTL)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.PostgresURL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_LegacyPasswordVariable(t *testing.T) {
	t.Setenv("PROXY_SERVICE_HOST", "http://inventory.local/")
	t.Setenv("PROXY_SERVICE_USER", "crawler")
	t.Setenv("PROXY_SERVICE_PSWD", "legacy")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.Password)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxyservice.yaml")
	content := `
host: http://inventory.local/
user: crawler
password: secret
retry: false
max_retry_no: 3
retry_delay: 250ms
units:
  - name: books
    target_id: "42"
    algorithm: round_robin
    length: 5
    profile: 7
    blocked_selector: "form#captcha"
  - name: shoes
    target_id: "43"
    locations: us|de
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Retry)
	assert.Equal(t, 3, cfg.MaxRetryNo)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	require.Len(t, cfg.Units, 2)

	books := cfg.Units[0]
	assert.Equal(t, "books", books.Name)
	assert.Equal(t, "42", books.TargetID)
	assert.Equal(t, "round_robin", books.Algorithm)
	assert.Equal(t, 5, books.Length)
	require.NotNil(t, books.Profile)
	assert.Equal(t, 7, *books.Profile)
	assert.Equal(t, "form#captcha", books.BlockedSelector)

	shoes := cfg.Units[1]
	assert.Nil(t, shoes.Profile)
	assert.Equal(t, "us|de", shoes.Locations)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{Host: "http://h/", User: "u", Password: "p", MaxRetryNo: 10, RetryDelay: time.Second}
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing host", func(t *testing.T) {
		t.Parallel()
		c := valid()
		c.Host = ""
		assert.ErrorIs(t, c.Validate(), ErrMissingCredentials)
	})

	t.Run("missing password", func(t *testing.T) {
		t.Parallel()
		c := valid()
		c.Password = ""
		assert.ErrorIs(t, c.Validate(), ErrMissingCredentials)
		assert.ErrorIs(t, c.Validate(), repository.ErrMissingCredentials)
	})

	t.Run("zero attempts", func(t *testing.T) {
		t.Parallel()
		c := valid()
		c.MaxRetryNo = 0
		assert.ErrorIs(t, c.Validate(), ErrInvalidRetry)
	})

	t.Run("zero retry delay", func(t *testing.T) {
		t.Parallel()
		c := valid()
		c.RetryDelay = 0
		assert.ErrorIs(t, c.Validate(), ErrInvalidRetry)
	})

	t.Run("unit without target", func(t *testing.T) {
		t.Parallel()
		c := valid()
		c.Units = []UnitConfig{{Name: "books"}}
		assert.Error(t, c.Validate())
	})
}
