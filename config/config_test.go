package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndDBFile(t *testing.T) {
	cfg, err := Load("/tmp/newsletterd.db")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/newsletterd.db", cfg.DBFile)
	assert.Equal(t, 10*time.Minute, cfg.Reaper.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Reaper.TTL)
	assert.Equal(t, 200*time.Millisecond, cfg.Gateway.Timeout)
	assert.Equal(t, int16(20), cfg.Worker.DefaultNRetries)
}

func TestProvider_GetReflectsUpdate(t *testing.T) {
	cfg, err := Load("/tmp/a.db")
	require.NoError(t, err)
	p := NewProvider(cfg)

	updated, err := Load("/tmp/b.db")
	require.NoError(t, err)
	p.Update(updated)

	assert.Equal(t, "/tmp/b.db", p.Get().DBFile)
}
