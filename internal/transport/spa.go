package transport

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	sdperrors "github.com/sdpc-project/sdpc/internal/errors"
)

// spaPort is the conventional fwknop single-packet-authorization listener
// port, separate from the control port the TLS session itself uses.
const spaPort = 62201

// SendKnock builds and sends one Single Packet Authorization packet (spec
// GLOSSARY: "a one-shot authenticated UDP packet that causes a gateway to
// temporarily open a port to the sender"). The packet is a random nonce and
// a timestamp, authenticated-encrypted with encryptionKey via
// chacha20poly1305, then HMAC-SHA256'd over the ciphertext with hmacKey —
// mirroring fwknop's separate encryption/HMAC key pair (spec §3) rather than
// relying on AEAD alone for the wire format.
func SendKnock(ctx context.Context, addr string, encryptionKey, hmacKey []byte) error {
	payload, err := buildKnockPayload()
	if err != nil {
		return sdperrors.Wrap(err, sdperrors.KindMemoryAllocation, "build spa payload")
	}

	ciphertext, err := encryptKnock(payload, encryptionKey)
	if err != nil {
		return sdperrors.Wrap(err, sdperrors.KindMemoryAllocation, "encrypt spa payload")
	}

	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(ciphertext)
	packet := append(ciphertext, mac.Sum(nil)...)

	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(addr, fmt.Sprintf("%d", spaPort)))
	if err != nil {
		return sdperrors.Wrap(err, sdperrors.KindConnDown, "dial spa port")
	}
	defer conn.Close()

	if _, err := conn.Write(packet); err != nil {
		return sdperrors.Wrap(err, sdperrors.KindConnDown, "write spa packet")
	}
	return nil
}

// buildKnockPayload is "<unix-nanos>:<16 random bytes>" — enough entropy
// that the replay-digest cache (internal/replaycache, the server-side
// collaborator named in spec §1) never sees the same packet twice.
func buildKnockPayload() ([]byte, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "%d:%x", time.Now().UnixNano(), nonce), nil
}

func encryptKnock(payload, key []byte) ([]byte, error) {
	key32 := deriveKey(key)
	aead, err := chacha20poly1305.New(key32)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, payload, nil), nil
}

// deriveKey maps an arbitrary-length raw or base64-decoded SPA key (spec §6:
// raw key <= 128 bytes) onto exactly the 32 bytes chacha20poly1305 requires.
func deriveKey(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:]
}
