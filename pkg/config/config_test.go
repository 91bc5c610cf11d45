package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matrix-org/peercall/pkg/config"
	"github.com/matrix-org/peercall/pkg/media"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
relay:
  url: ws://localhost:8888/ws
  pingInterval: 10s
  pongTimeout: 5s
webrtc:
  iceServers:
    - urls: ["stun:stun.l.google.com:19302"]
media:
  camera:
    video: camera.ivf
    audio: camera.ogg
  recordDir: recordings
server:
  addr: ":9000"
  pingInterval: 20s
log: debug
`

func TestLoadConfigFromString(t *testing.T) {
	loaded, err := config.LoadConfigFromString(sample)
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8888/ws", loaded.Relay.URL)
	assert.Equal(t, 10*time.Second, loaded.Relay.PingInterval)
	assert.Equal(t, 5*time.Second, loaded.Relay.PongTimeout)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, loaded.WebRTC.ICEServers[0].URLs)
	assert.Equal(t, "camera.ogg", loaded.Media.Camera.Audio)
	assert.Equal(t, logrus.DebugLevel, loaded.Level())

	// Defaults of the session controller.
	assert.Equal(t, media.KindScreen, loaded.Session.CallerMedia)
	assert.Equal(t, media.KindCamera, loaded.Session.CalleeMedia)
}

func TestLoadConfigFromString_Invalid(t *testing.T) {
	for name, value := range map[string]string{
		"not yaml":       "relay: [",
		"no relay":       "log: info",
		"negative ping":  "relay: {url: ws://x, pingInterval: -1s}",
		"bad media kind": "relay: {url: ws://x}\nsession: {callerMedia: microphone}",
		"bad log level":  "relay: {url: ws://x}\nlog: loud",
	} {
		_, err := config.LoadConfigFromString(value)
		assert.Error(t, err, name)
	}
}

func TestLoadConfig_PrefersEnvironment(t *testing.T) {
	t.Setenv("CONFIG", "relay: {url: ws://from-env}")

	loaded, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ws://from-env", loaded.Relay.URL)
	assert.Equal(t, logrus.InfoLevel, loaded.Level())
}

func TestLoadConfig_FromPath(t *testing.T) {
	t.Setenv("CONFIG", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	loaded, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "recordings", loaded.Media.RecordDir)
}

func TestLoadServerConfigFromString(t *testing.T) {
	loaded, err := config.LoadServerConfigFromString(sample)
	require.NoError(t, err)
	assert.Equal(t, ":9000", loaded.Server.ListenAddr())
	assert.Equal(t, 20*time.Second, loaded.Server.PingInterval)

	// The relay URL is a client setting, the server runs without it.
	loaded, err = config.LoadServerConfigFromString("log: warn")
	require.NoError(t, err)
	assert.Equal(t, ":8888", loaded.Server.ListenAddr())
	assert.Equal(t, logrus.WarnLevel, loaded.Level())

	_, err = config.LoadServerConfigFromString("server: {pingInterval: -5s}")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoadServerConfig_PrefersEnvironment(t *testing.T) {
	t.Setenv("CONFIG", "server: {addr: \":7000\"}")

	loaded, err := config.LoadServerConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":7000", loaded.Server.Addr)
}
