// Package transport implements the transport facade named in spec §4C: a
// narrow contract over the mutually authenticated TLS session, opaque to the
// control loop beyond connect/disconnect/send/receive and the observable
// conn_state. Structured the way the teacher's internal/ctlplane client
// wraps a single long-lived connection behind a mutex-guarded pointer with
// its own reconnect bookkeeping, generalized here from net/rpc over a Unix
// socket to framed JSON over mutual TLS.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	sdperrors "github.com/sdpc-project/sdpc/internal/errors"
	"github.com/sdpc-project/sdpc/internal/logging"
	"github.com/sdpc-project/sdpc/internal/pidfile"
)

// ConnState mirrors spec §4C: "one of Connected, Disconnected, observable by
// the loop."
type ConnState int

const (
	Disconnected ConnState = iota
	Connected
)

func (s ConnState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Config carries everything the facade needs that the loop doesn't own
// directly: addressing, the mTLS identity, and the policy timers from §3/§6
// that are the facade's own responsibility (connection retry, SPA, timeouts).
type Config struct {
	CtrlAddr string
	CtrlPort int

	CertFile string
	KeyFile  string

	// CAFile, if set, is used to verify the controller's certificate in
	// place of the system trust store — the common case for a private SDP
	// controller with its own CA.
	CAFile string

	UseSPA           bool
	SPAEncryptionKey []byte
	SPAHMACKey       []byte
	PostSPADelay     time.Duration

	MaxConnAttempts       int
	InitConnRetryInterval time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MsgQueueLen  int
}

// Facade is the contract spec §4C describes as "consumed, not implemented,
// by the core" — internal/client depends on this interface, not on *TLSFacade
// directly, so the state machine can be tested against a fake.
type Facade interface {
	Connect(ctx context.Context) error
	Disconnect() error
	SendMsg(ctx context.Context, text string) error
	GetMsg() (text string, n int, err error)
	ConnState() ConnState
	SetSPAKeys(encryptionKey, hmacKey []byte)
}

// TLSFacade is the real implementation: one mutual-TLS connection, a
// background reader draining framed (newline-delimited JSON) messages into a
// bounded queue, and a certificate reload on SPA-key rotation so a
// credential-store rotation is used from the next handshake on without
// restarting the process.
type TLSFacade struct {
	cfg     Config
	logger  *logging.Logger
	rootCAs *x509.CertPool

	certMu  sync.RWMutex
	cert    tls.Certificate
	spaEnc  []byte
	spaHMAC []byte

	mu         sync.Mutex
	conn       net.Conn
	state      ConnState
	inbound    chan string
	readerDone chan struct{}
}

// NewTLSFacade loads the initial client certificate and SPA keys. The
// certificate is re-read from disk when SetSPAKeys installs rotated keys
// (internal/credstore calls it after a rotation); Connect itself does not
// reload it.
func NewTLSFacade(cfg Config, logger *logging.Logger) (*TLSFacade, error) {
	f := &TLSFacade{
		cfg:     cfg,
		logger:  logger,
		spaEnc:  append([]byte(nil), cfg.SPAEncryptionKey...),
		spaHMAC: append([]byte(nil), cfg.SPAHMACKey...),
	}
	if err := f.reloadCert(); err != nil {
		return nil, err
	}
	if cfg.CAFile != "" {
		pool, err := loadCAPool(cfg.CAFile)
		if err != nil {
			return nil, sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "load ca file")
		}
		f.rootCAs = pool
	}
	return f, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

// verifyCredentialFiles stats cert/key the same way internal/pidfile does
// for the PID file (spec §4A: "before trusting the PID file or any
// credential file, stat it") before either is ever handed to
// tls.LoadX509KeyPair.
func (f *TLSFacade) verifyCredentialFiles() error {
	if err := pidfile.VerifyPermissions(f.cfg.CertFile); err != nil {
		return sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "verify cert file permissions")
	}
	if err := pidfile.VerifyPermissions(f.cfg.KeyFile); err != nil {
		return sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "verify key file permissions")
	}
	return nil
}

func (f *TLSFacade) reloadCert() error {
	if err := f.verifyCredentialFiles(); err != nil {
		return err
	}
	cert, err := tls.LoadX509KeyPair(f.cfg.CertFile, f.cfg.KeyFile)
	if err != nil {
		return sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "load client certificate")
	}
	f.certMu.Lock()
	f.cert = cert
	f.certMu.Unlock()
	return nil
}

// GetClientCertificate satisfies tls.Config.GetClientCertificate, always
// returning the most recently loaded certificate.
func (f *TLSFacade) GetClientCertificate(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	f.certMu.RLock()
	defer f.certMu.RUnlock()
	cert := f.cert
	return &cert, nil
}

// SetSPAKeys implements credstore.KeyReceiver: install the rotated SPA keys
// in memory. Only called by the credential store after every on-disk write
// has already succeeded (spec §4B).
func (f *TLSFacade) SetSPAKeys(encryptionKey, hmacKey []byte) {
	f.certMu.Lock()
	defer f.certMu.Unlock()
	f.spaEnc = append([]byte(nil), encryptionKey...)
	f.spaHMAC = append([]byte(nil), hmacKey...)
	// The certificate itself is reloaded here, from the same files
	// credstore just rewrote; it is presented from the next handshake on.
	if err := f.reloadCertLocked(); err != nil {
		f.logger.Warnf("cert reload after key rotation: %v", err)
	}
}

func (f *TLSFacade) reloadCertLocked() error {
	if err := f.verifyCredentialFiles(); err != nil {
		return err
	}
	cert, err := tls.LoadX509KeyPair(f.cfg.CertFile, f.cfg.KeyFile)
	if err != nil {
		return err
	}
	f.cert = cert
	return nil
}

// Connect implements spec §4C: optional SPA knock, then up to
// MaxConnAttempts TLS dial attempts spaced InitConnRetryInterval apart. The
// loop observes only the final outcome — retry is entirely the facade's
// responsibility.
func (f *TLSFacade) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.state == Connected {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	if f.cfg.UseSPA {
		f.certMu.RLock()
		enc, hmacKey := f.spaEnc, f.spaHMAC
		f.certMu.RUnlock()
		if err := SendKnock(ctx, f.cfg.CtrlAddr, enc, hmacKey); err != nil {
			f.logger.Warnf("spa knock failed (continuing to connect): %v", err)
		}
		select {
		case <-time.After(f.cfg.PostSPADelay):
		case <-ctx.Done():
			return sdperrors.Wrap(ctx.Err(), sdperrors.KindConnDown, "post-spa delay interrupted")
		}
	}

	maxAttempts := f.cfg.MaxConnAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	retryInterval := f.cfg.InitConnRetryInterval

	host := resolveHost(ctx, f.logger, f.cfg.CtrlAddr)
	probeReachability(f.logger, host)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := f.dial(ctx, host)
		if err == nil {
			f.mu.Lock()
			f.conn = conn
			f.state = Connected
			f.inbound = make(chan string, f.cfg.MsgQueueLen)
			f.readerDone = make(chan struct{})
			f.mu.Unlock()
			go f.readLoop(conn, f.inbound, f.readerDone)
			return nil
		}
		lastErr = err
		f.logger.Warnf("connect attempt %d/%d failed: %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			select {
			case <-time.After(retryInterval):
			case <-ctx.Done():
				return sdperrors.Wrap(ctx.Err(), sdperrors.KindConnDown, "connect interrupted")
			}
		}
	}
	return sdperrors.Wrapf(lastErr, sdperrors.KindConnDown, "connect to %s:%d after %d attempts", f.cfg.CtrlAddr, f.cfg.CtrlPort, maxAttempts)
}

func (f *TLSFacade) dial(ctx context.Context, host string) (net.Conn, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", f.cfg.CtrlPort))
	dialer := &net.Dialer{Timeout: f.cfg.ReadTimeout + f.cfg.WriteTimeout + 5*time.Second}
	tlsCfg := &tls.Config{
		GetClientCertificate: f.GetClientCertificate,
		MinVersion:           tls.VersionTLS12,
		ServerName:           f.cfg.CtrlAddr,
		RootCAs:              f.rootCAs,
	}
	return tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
}

// readLoop drains newline-delimited messages off conn into queue until the
// connection closes or a read fails. Either way means the connection is
// gone out from under the facade (remote close, reset, timeout) without
// Disconnect having been called, so it must mark state itself — otherwise
// ConnState keeps reporting Connected forever and step(1) (spec §4E) never
// reconnects.
func (f *TLSFacade) readLoop(conn net.Conn, queue chan string, done chan struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		select {
		case queue <- line:
		default:
			f.logger.Warnf("inbound message queue full, dropping oldest")
			select {
			case <-queue:
			default:
			}
			select {
			case queue <- line:
			default:
			}
		}
	}
	if err := scanner.Err(); err != nil {
		f.logger.Warnf("read loop ended: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// conn may already have been replaced by a later Connect (this loop's
	// connection was superseded, not dropped); only tear down state if
	// we're still the current connection.
	if f.conn != conn {
		return
	}
	_ = conn.Close()
	f.conn = nil
	f.state = Disconnected
	close(queue)
}

// Disconnect is idempotent (spec §4C).
func (f *TLSFacade) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Disconnected {
		return nil
	}
	var err error
	if f.conn != nil {
		err = f.conn.Close()
		f.conn = nil
	}
	f.state = Disconnected
	if err != nil {
		return sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "disconnect")
	}
	return nil
}

// SendMsg enqueues/transmits one framed message, blocking up to WriteTimeout.
func (f *TLSFacade) SendMsg(ctx context.Context, text string) error {
	f.mu.Lock()
	conn := f.conn
	state := f.state
	f.mu.Unlock()

	if state != Connected || conn == nil {
		return sdperrors.New(sdperrors.KindConnDown, "send attempted while disconnected")
	}

	deadline := time.Now().Add(f.cfg.WriteTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetWriteDeadline(deadline)
	if _, err := fmt.Fprintln(conn, text); err != nil {
		return sdperrors.Wrap(err, sdperrors.KindConnDown, "send_msg")
	}
	return nil
}

// GetMsg is a non-blocking poll of at most one pending message (spec §4C):
// n == 0 means nothing queued, not an error.
func (f *TLSFacade) GetMsg() (string, int, error) {
	f.mu.Lock()
	queue := f.inbound
	state := f.state
	f.mu.Unlock()

	if state != Connected {
		return "", 0, sdperrors.New(sdperrors.KindConnDown, "get_msg attempted while disconnected")
	}
	select {
	case msg, ok := <-queue:
		if !ok {
			return "", 0, nil
		}
		return msg, len(msg), nil
	default:
		return "", 0, nil
	}
}

// ConnState reports the current connection state (spec §4C).
func (f *TLSFacade) ConnState() ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}
