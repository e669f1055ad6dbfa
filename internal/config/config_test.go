package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("LLM_MODEL", "test-model")
	t.Setenv("SEARCH_TIMEOUT", "5s")
	t.Setenv("QUOTA_SEARCH", "3")
	t.Setenv("API_TOKENS", "tok-1:alice, tok-2")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, "test-model", cfg.LLM.Model)
	assert.Equal(t, 5*time.Second, cfg.Search.Timeout)
	assert.Equal(t, int64(3), cfg.Quota.Search)
	assert.Equal(t, int64(100), cfg.Quota.Generate)
	assert.Equal(t, 60*time.Second, cfg.Scour.CallBudget)
	assert.Equal(t, map[string]string{"tok-1": "alice", "tok-2": "tok-2"}, cfg.Tokens())
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("LISTEN_ADDR", ":9000")
	cfg, err := Load([]string{"--listen", ":9100", "--scour.batch-size", "5"})
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.Equal(t, 5, cfg.Scour.BatchSize)
}

func TestPostgresNeedsURL(t *testing.T) {
	t.Setenv("STORE", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err := Load(nil)
	assert.ErrorContains(t, err, "DATABASE_URL")
}
