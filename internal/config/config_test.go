package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := []byte("room: lobby\ndisplay_name: alice\npush_timeout: 3s\nice_servers:\n  - stun:stun.example.com:3478\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_ENV", "test")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "lobby", cfg.Room)
	require.Equal(t, "alice", cfg.DisplayName)
	require.Equal(t, 3*time.Second, cfg.PushTimeout)
	require.Equal(t, []string{"stun:stun.example.com:3478"}, cfg.ICEServers)
	require.Equal(t, 30*time.Second, cfg.HeartbeatPeriod)
	require.Equal(t, ":8081", cfg.StatusAddr)
	require.NoError(t, cfg.Validate())

	cfg.Room = ""
	require.Error(t, cfg.Validate())
}
