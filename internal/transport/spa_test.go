package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendKnockDeliversAuthenticatedPacket(t *testing.T) {
	ln, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: spaPort})
	if err != nil {
		t.Skipf("cannot bind fixed spa port %d in this environment: %v", spaPort, err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	encKey := []byte("encryption-key-bytes")
	hmacKey := []byte("hmac-key-bytes")
	require.NoError(t, SendKnock(ctx, "127.0.0.1", encKey, hmacKey))

	buf := make([]byte, 4096)
	require.NoError(t, ln.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := ln.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Greater(t, n, 32, "packet should carry ciphertext+nonce+hmac")
}

func TestBuildKnockPayloadIsUnique(t *testing.T) {
	a, err := buildKnockPayload()
	require.NoError(t, err)
	b, err := buildKnockPayload()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDeriveKeyIs32Bytes(t *testing.T) {
	assert.Len(t, deriveKey([]byte("short")), 32)
	assert.Len(t, deriveKey([]byte("a-much-longer-key-that-exceeds-32-bytes-of-input")), 32)
}
