package utilities

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestIDGeneratorUnique(t *testing.T) {
	g, err := NewIDGenerator(3)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := g.NewID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestIDGeneratorRejectsBadNode(t *testing.T) {
	_, err := NewIDGenerator(5000)
	assert.Error(t, err)
}

func TestNewKSUID(t *testing.T) {
	assert.Len(t, NewKSUID(), 27)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_DEV", "1")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_MAX_AGE", "3")
	t.Setenv("LOG_FILE", "")

	cfg := ConfigFromEnv()
	assert.True(t, cfg.Dev)
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, 72*time.Hour, cfg.MaxAge)
	assert.Equal(t, zapcore.WarnLevel, levelFromString("warning"))
	assert.Equal(t, zapcore.InfoLevel, levelFromString("bogus"))
}

func TestInitWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.log")
	lg, err := Init(Config{Level: "info", File: path, MaxAge: time.Hour})
	require.NoError(t, err)

	lg.Info("hello")
	_ = lg.Sync()

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
