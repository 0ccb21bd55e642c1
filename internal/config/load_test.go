package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

const minimalHCL = `
ctrl_port = 14257
ctrl_addr = "controller.example.com"
key_file  = "/etc/sdpc/client.key"
cert_file = "/etc/sdpc/client.crt"
spa_encryption_key = "dGVzdGtleQ=="
spa_hmac_key       = "dGVzdGhtYWM="
`

func TestLoadFileWithOptions_Defaults(t *testing.T) {
	path := writeTemp(t, "sdpc.hcl", minimalHCL)

	res, err := LoadFileWithOptions(path, DefaultLoadOptions())
	require.NoError(t, err)

	c := res.Config
	assert.Equal(t, 14257, c.CtrlPort)
	assert.True(t, c.Foreground, "FOREGROUND defaults to 1 (true) per spec §6")
	assert.Equal(t, 10, c.MsgQueueLen)
	assert.Equal(t, 7200, c.CredUpdateIntervalSeconds)
	assert.Equal(t, 86400, c.AccessUpdateIntervalSeconds)
	assert.Equal(t, 3, c.MaxConnAttempts)
	assert.Equal(t, 5, c.InitConnRetryIntervalSecond)
	assert.Equal(t, 60, c.KeepAliveIntervalSeconds)
	assert.Equal(t, 3, c.MaxRequestAttempts)
	assert.Equal(t, 10, c.InitRequestRetryIntervalSeconds)
}

func TestLoadFileWithOptions_ForegroundExplicitFalse(t *testing.T) {
	path := writeTemp(t, "sdpc.hcl", minimalHCL+"\nforeground = false\n")
	res, err := LoadFileWithOptions(path, DefaultLoadOptions())
	require.NoError(t, err)
	assert.False(t, res.Config.Foreground)
}

func TestLoadFileWithOptions_MissingCtrlAddr(t *testing.T) {
	path := writeTemp(t, "sdpc.hcl", `ctrl_port = 1
key_file = "a"
cert_file = "b"
`)
	_, err := LoadFileWithOptions(path, DefaultLoadOptions())
	require.Error(t, err)
}

func TestLoadFileWithOptions_MsgQueueLenClamp(t *testing.T) {
	path := writeTemp(t, "sdpc.hcl", minimalHCL+"\nmsg_q_len = 500\n")
	res, err := LoadFileWithOptions(path, DefaultLoadOptions())
	require.NoError(t, err)
	assert.Equal(t, 500, res.Config.MsgQueueLen) // raw value preserved...
	assert.Equal(t, MaxMsgQueueLen, res.Config.CappedMsgQueueLen()) // ...clamped at use
	assert.NotEmpty(t, res.Warnings)
}

func TestLoadFileWithOptions_JSON(t *testing.T) {
	path := writeTemp(t, "sdpc.json", `{
		"CtrlPort": 14257,
		"CtrlAddr": "controller.example.com",
		"KeyFile": "/etc/sdpc/client.key",
		"CertFile": "/etc/sdpc/client.crt",
		"SPAEncryptionKey": "dGVzdGtleQ==",
		"SPAHMACKey": "dGVzdGhtYWM="
	}`)
	res, err := LoadFileWithOptions(path, DefaultLoadOptions())
	require.NoError(t, err)
	assert.Equal(t, "controller.example.com", res.Config.CtrlAddr)
}

func TestSecureString_MarshalJSON(t *testing.T) {
	var s SecureString = "supersecret"
	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"(hidden)"`, string(b))
}

func TestPostSPADelayCap(t *testing.T) {
	c := &Config{PostSPADelayMillis: 20000}
	assert.Equal(t, MaxPostSPADelay, c.PostSPADelay())
}
