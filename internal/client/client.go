// Package client implements the control loop / state machine named in spec
// §4E: the outer aggregate the rest of the core hangs off. The teacher
// models its long-lived context the same way — a single owned struct
// (internal/ctlplane.Client) threading a transport handle and bookkeeping
// through one set of methods rather than scattering globals, which is the
// shape spec §9 ("Context as a single owned aggregate") asks for.
package client

import (
	"context"
	"os"
	"time"

	"github.com/sdpc-project/sdpc/internal/codec"
	"github.com/sdpc-project/sdpc/internal/config"
	sdperrors "github.com/sdpc-project/sdpc/internal/errors"
	"github.com/sdpc-project/sdpc/internal/logging"
	"github.com/sdpc-project/sdpc/internal/metrics"
	"github.com/sdpc-project/sdpc/internal/pidfile"
	"github.com/sdpc-project/sdpc/internal/transport"
)

// stateNames lists every State for the one-hot metrics.Registry.SetState
// encoding, in declaration order.
var stateNames = []string{
	Ready.String(), KeepAliveRequesting.String(), KeepAliveUnfulfilled.String(),
	CredRequesting.String(), CredUnfulfilled.String(), TimeToQuit.String(),
}

// Client is the long-lived context owned by the process for its whole
// lifetime (spec §3). It is never copied; every method takes a pointer
// receiver.
type Client struct {
	// ConfigPath is re-read on HUP (spec §4A restart / §4E "any | HUP").
	ConfigPath string

	// identity/config
	CtrlAddr         string
	CtrlPort         int
	CertFile         string
	KeyFile          string
	ClientConfigFile string
	FwknopConfigFile string
	PIDFile          string
	SPAEncryptionKey []byte
	SPAHMACKey       []byte

	// policy timers
	CredUpdateInterval       time.Duration
	AccessUpdateInterval     time.Duration
	KeepAliveInterval        time.Duration
	InitReqRetryInterval     time.Duration
	MaxReqAttempts           int
	InitConnRetryInterval    time.Duration
	MaxConnAttempts          int
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
	MsgQueueLen              int
	PostSPADelay             time.Duration

	// mode flags
	Foreground      bool
	RemainConnected bool
	UseSPA          bool
	UseSyslog       bool
	Verbosity       int

	// runtime state
	state            State
	lastContact      time.Time
	lastCredUpdate   time.Time
	lastAccessUpdate time.Time
	initialConnTime  time.Time
	lastReqTime      time.Time
	reqRetryInterval time.Duration
	reqAttempts      int
	pid              int

	transport transport.Facade
	lock      *pidfile.Lock
	signals   *pidfile.SignalFlags
	logger    *logging.Logger
	metrics   *metrics.Registry

	// pendingSubject identifies which request kind is outstanding while in a
	// *Requesting/*Unfulfilled state, so a retry resends the right envelope.
	pendingSubject codec.Subject

	// credUpdatedThisRun is set once a CredsFulfilling has been applied, so
	// the !remain_connected exit condition (spec §4E step 5) can check it.
	credUpdatedThisRun bool
}

// New builds a Client from a loaded config and the collaborators spec §1
// treats as external: the transport facade, the PID-file lock already held
// by §4A's Start, and the signal flags it installed.
func New(cfg *config.Config, t transport.Facade, lock *pidfile.Lock, signals *pidfile.SignalFlags, logger *logging.Logger) *Client {
	c := &Client{
		transport: t,
		lock:      lock,
		signals:   signals,
		logger:    logger,
		pid:       os.Getpid(),
	}
	c.applyConfig(cfg)
	c.state = Ready
	return c
}

// applyConfig loads identity/policy/mode fields from cfg, leaving runtime
// state untouched — shared by New and the HUP reinit path in loop.go.
func (c *Client) applyConfig(cfg *config.Config) {
	c.CtrlAddr = cfg.CtrlAddr
	c.CtrlPort = cfg.CtrlPort
	c.CertFile = cfg.CertFile
	c.KeyFile = cfg.KeyFile
	c.ClientConfigFile = cfg.ClientConfigFile
	c.FwknopConfigFile = cfg.FwknopConfigFile
	c.PIDFile = cfg.PIDFile
	c.SPAEncryptionKey = []byte(cfg.SPAEncryptionKey)
	c.SPAHMACKey = []byte(cfg.SPAHMACKey)

	c.CredUpdateInterval = cfg.CredUpdateInterval()
	c.AccessUpdateInterval = cfg.AccessUpdateInterval()
	c.KeepAliveInterval = cfg.KeepAliveInterval()
	c.InitReqRetryInterval = cfg.InitRequestRetryInterval()
	c.MaxReqAttempts = cfg.MaxRequestAttempts
	c.InitConnRetryInterval = cfg.InitConnRetryInterval()
	c.MaxConnAttempts = cfg.MaxConnAttempts
	c.ReadTimeout = cfg.ReadTimeout()
	c.WriteTimeout = cfg.WriteTimeout()
	c.MsgQueueLen = cfg.CappedMsgQueueLen()
	c.PostSPADelay = cfg.PostSPADelay()

	c.Foreground = cfg.Foreground
	c.RemainConnected = cfg.RemainConnected
	c.UseSPA = cfg.UseSPA
	c.UseSyslog = cfg.UseSyslog
	c.Verbosity = cfg.Verbosity

	c.reqRetryInterval = c.InitReqRetryInterval
}

// SetMetrics attaches a metrics registry; nil disables metrics entirely
// (the default, matching the spec's no-inbound-traffic-by-default posture).
func (c *Client) SetMetrics(m *metrics.Registry) { c.metrics = m }

// State returns the current client_state (spec §3).
func (c *Client) State() State { return c.state }

// LastContact returns the last time any reply was received from the
// controller (zero value if none yet).
func (c *Client) LastContact() time.Time { return c.lastContact }

// StepOnce runs a single iteration of the control loop's 8-step order. It is
// the exported form of step, for tests (and internal/simcontroller's
// end-to-end scenarios) that need fine-grained control over loop timing
// instead of blocking on Run.
func (c *Client) StepOnce(ctx context.Context) error { return c.step(ctx) }

// enterReady clears the request-tracking variables. Called on every
// successful connect (per the Open Question decision in SPEC_FULL.md: a
// fresh connection is treated as equivalent to Ready) and on every fulfilled
// reply.
func (c *Client) enterReady() {
	c.state = Ready
	c.reqAttempts = 0
	c.reqRetryInterval = c.InitReqRetryInterval
	c.writeStatusSnapshot(time.Now())
}

func (c *Client) credUpdateDue(now time.Time) bool {
	return now.After(c.lastCredUpdate.Add(c.CredUpdateInterval)) || c.lastCredUpdate.IsZero()
}

func (c *Client) keepAliveDue(now time.Time) bool {
	return now.After(c.lastContact.Add(c.KeepAliveInterval)) || c.lastContact.IsZero()
}

func (c *Client) accessUpdateDue(now time.Time) bool {
	return now.After(c.lastAccessUpdate.Add(c.AccessUpdateInterval)) || c.lastAccessUpdate.IsZero()
}

// sendRequest transmits subject/stage and records the request bookkeeping
// shared by keep-alive and cred-update sends (spec §4E transition table:
// "send ...; last_req_time←now; req_attempts←1" on first send, incremented
// on every retry).
func (c *Client) sendRequest(ctx context.Context, subject codec.Subject, stage codec.Stage, now time.Time) error {
	if !c.state.canRequest() {
		return sdperrors.New(sdperrors.KindState, "request attempted outside a requesting-eligible state")
	}
	if c.transport.ConnState() != transport.Connected {
		return sdperrors.New(sdperrors.KindConnDown, "request attempted while disconnected")
	}

	text, err := codec.Make(subject, stage)
	if err != nil {
		return err
	}
	if err := c.transport.SendMsg(ctx, text); err != nil {
		return err
	}
	c.pendingSubject = subject
	c.lastReqTime = now
	c.reqAttempts++
	if c.metrics != nil {
		if subject == codec.SubjectKeepAlive {
			c.metrics.KeepAlivesSent.Inc()
		} else {
			c.metrics.CredUpdatesSent.Inc()
		}
	}
	return nil
}

// recordMetrics publishes the current req_retry_interval and client_state
// gauges, a no-op when no registry is attached.
func (c *Client) recordMetrics() {
	if c.metrics == nil {
		return
	}
	c.metrics.ReqRetryIntervalSeconds.Set(c.reqRetryInterval.Seconds())
	c.metrics.SetState(stateNames, c.state.String())
}
