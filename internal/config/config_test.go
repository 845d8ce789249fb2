package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, ":1024", cfg.ListenAddr)
	assert.Equal(t, "/ws", cfg.WSPath)
	assert.Equal(t, 4, cfg.SeedsPerPit)
	assert.Equal(t, 200, cfg.MaxConcurrentGames)
	assert.Zero(t, cfg.MoveTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownDelay)
	assert.Empty(t, cfg.RedisURL)

	lo := cfg.LogOptions()
	assert.True(t, lo.Console)
	assert.Equal(t, "legacy", lo.Format)
}

func TestOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"LISTEN_ADDR":        " :2000 ",
		"WS_ADDR":            ":2001",
		"WS_PATH":            "play",
		"WS_ORIGINS":         "a.example, ,b.example",
		"SEEDS_PER_PIT":      "6",
		"MOVE_TIMEOUT":       "90s",
		"SHUTDOWN_DELAY":     "0s",
		"RESULT_WEBHOOK_URL": "https://hooks.example/kalah",
		"LOG_TO_FILE":        "true",
		"LOG_LEVEL":          "debug",
	})
	require.NoError(t, err)
	assert.Equal(t, ":2000", cfg.ListenAddr)
	assert.Equal(t, "/play", cfg.WSPath)
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.WSOrigins)
	assert.Equal(t, 6, cfg.SeedsPerPit)
	assert.Equal(t, 90*time.Second, cfg.MoveTimeout)
	assert.Zero(t, cfg.ShutdownDelay)
	assert.True(t, cfg.LogOptions().ToFile)
	assert.Equal(t, "debug", cfg.LogOptions().Level)
}

func TestValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"no listeners": {"LISTEN_ADDR": " "},
		"zero seeds":   {"SEEDS_PER_PIT": "0"},
		"zero games":   {"MAX_CONCURRENT_GAMES": "0"},
		"neg timeout":  {"MOVE_TIMEOUT": "-1s"},
		"bad webhook":  {"RESULT_WEBHOOK_URL": "ftp://x"},
		"bad int":      {"SEEDS_PER_PIT": "four"},
		"bad duration": {"SHUTDOWN_DELAY": "soon"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrom(vars)
			assert.Error(t, err)
		})
	}
}

func TestLoadReadsProcessEnv(t *testing.T) {
	t.Setenv("ADMIN_ADDR", "127.0.0.1:9090")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.AdminAddr)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}
