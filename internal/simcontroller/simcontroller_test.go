package simcontroller

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sdpc-project/sdpc/internal/client"
	"github.com/sdpc-project/sdpc/internal/config"
	"github.com/sdpc-project/sdpc/internal/logging"
	"github.com/sdpc-project/sdpc/internal/pidfile"
	"github.com/sdpc-project/sdpc/internal/transport"
)

// genCert builds a self-signed ECDSA cert for 127.0.0.1, valid for both
// server and client auth, and returns the tls.Certificate plus its PEM-
// encoded cert bytes (for writing a CA pool file elsewhere).
func genCert(t *testing.T) (tls.Certificate, []byte) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "sim-controller"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)
	return cert, certPEM
}

// TestClientKeepAliveAgainstSimulatedController drives spec §8 scenario S2
// end to end: a real internal/transport.TLSFacade and internal/client.Client
// against a simulated controller that always fulfills keep-alives.
func TestClientKeepAliveAgainstSimulatedController(t *testing.T) {
	dir := t.TempDir()

	serverCert, serverCertPEM := genCert(t)
	clientCert, clientCertPEM := genCert(t)

	certPath := dir + "/client.crt"
	keyPath := dir + "/client.key"
	caPath := dir + "/ca.crt"
	require.NoError(t, os.WriteFile(certPath, clientCertPEM, 0o600))
	keyDER, err := x509.MarshalECPrivateKey(clientCert.PrivateKey.(*ecdsa.PrivateKey))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	require.NoError(t, os.WriteFile(caPath, serverCertPEM, 0o600))

	serverTLSCfg := &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.RequireAnyClientCert,
		MinVersion:   tls.VersionTLS12,
	}

	ctrl, err := Listen("127.0.0.1:0", serverTLSCfg, 0, AlwaysFulfillKeepAlive, nil)
	require.NoError(t, err)
	defer ctrl.Close()

	host, portStr, err := net.SplitHostPort(ctrl.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	facadeCfg := transport.Config{
		CtrlAddr:              host,
		CtrlPort:              port,
		CertFile:              certPath,
		KeyFile:               keyPath,
		CAFile:                caPath,
		MaxConnAttempts:       1,
		InitConnRetryInterval: 10 * time.Millisecond,
		ReadTimeout:           time.Second,
		WriteTimeout:          time.Second,
		MsgQueueLen:           10,
	}
	logger := logging.New(nil, logging.LevelDebug)
	facade, err := transport.NewTLSFacade(facadeCfg, logger)
	require.NoError(t, err)

	cfg := &config.Config{
		CtrlAddr:        host,
		CtrlPort:        port,
		MaxRequestAttempts: 3,
		MaxConnAttempts:    1,
		RemainConnected:    true,
	}
	c := client.New(cfg, facade, nil, pidfile.NewSignalFlags(), logger)
	c.KeepAliveInterval = 0
	c.CredUpdateInterval = time.Hour
	c.AccessUpdateInterval = time.Hour
	c.InitReqRetryInterval = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.Eventually(t, func() bool {
		_ = c.StepOnce(ctx)
		return c.State() == client.Ready && c.LastContact().After(time.Time{})
	}, 2*time.Second, 20*time.Millisecond)
}
