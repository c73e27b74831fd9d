package realtime

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOptionsFile(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefaultOptions(t *testing.T) {
	options := DefaultOptions()
	assert.Equal(t, "msgpack", options.Encoding)
	assert.Equal(t, 15*time.Second, options.HeartbeatTimeout)
	assert.False(t, options.DisableAutoconnect)
	assert.Equal(t, 10, options.MaxRetries)
	assert.Equal(t, "realtime-go/"+Version, options.UserAgent)
	require.NotNil(t, options.ReconnectStrategy)
	assert.Equal(t, 200*time.Millisecond, options.ReconnectStrategy.ReconnectDelay(1))
}

func TestLoadOptionsTOML(t *testing.T) {
	path := writeOptionsFile(t, "client.toml", `
url = "wss://rt.example.com/socket"
client_id = " worker-7 "
encoding = "cbor"
heartbeat_timeout = "30s"
autoconnect = false
`)

	options, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://rt.example.com/socket", options.URL)
	assert.Equal(t, "worker-7", options.ClientID)
	assert.Equal(t, "cbor", options.Encoding)
	assert.Equal(t, 30*time.Second, options.HeartbeatTimeout)
	assert.True(t, options.DisableAutoconnect)
	assert.Equal(t, DefaultMaxRetries, options.MaxRetries)
	assert.Equal(t, DefaultUserAgent, options.UserAgent)
}

func TestLoadOptionsTOMLMillisecondsOverrideDuration(t *testing.T) {
	path := writeOptionsFile(t, "client.toml", `
heartbeat_timeout = "30s"
heartbeat_timeout_ms = 250
max_retries = 3
`)

	options, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, options.HeartbeatTimeout)
	assert.Equal(t, 3, options.MaxRetries)
}

func TestLoadOptionsYAML(t *testing.T) {
	path := writeOptionsFile(t, "client.yaml", `
url: ws://localhost:8080/realtime
encoding: json
max_retries: 0
heartbeat_timeout: 0s
user_agent: rtctl/1
`)

	options, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/realtime", options.URL)
	assert.Equal(t, "json", options.Encoding)
	assert.Equal(t, NoRetries, options.MaxRetries)
	assert.Equal(t, "rtctl/1", options.UserAgent)
	assert.False(t, options.DisableAutoconnect)
	assert.Equal(t, HeartbeatDisabled, options.HeartbeatTimeout)
}

func TestLoadOptionsEmptyYAMLKeepsDefaults(t *testing.T) {
	path := writeOptionsFile(t, "client.yml", "")
	options, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions().Encoding, options.Encoding)
	assert.Equal(t, DefaultMaxRetries, options.MaxRetries)
}

func TestLoadOptionsRejectsInvalidFiles(t *testing.T) {
	cases := map[string]string{
		"unknown.toml":  `reconnect = true`,
		"duration.toml": `heartbeat_timeout = "soon"`,
		"negative.toml": `max_retries = -1`,
		"unknown.yaml":  "reconnect: true\n",
		"scalar.yaml":   "just a string\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadOptions(writeOptionsFile(t, name, contents))
			require.Error(t, err)
		})
	}

	_, err := LoadOptions(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
