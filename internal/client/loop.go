package client

import (
	"context"
	"time"

	"github.com/sdpc-project/sdpc/internal/codec"
	"github.com/sdpc-project/sdpc/internal/config"
	"github.com/sdpc-project/sdpc/internal/credstore"
	sdperrors "github.com/sdpc-project/sdpc/internal/errors"
	"github.com/sdpc-project/sdpc/internal/transport"
)

// loopTick is the outer loop's sleep granularity (spec §4E step 8: "sleep
// one second").
const loopTick = time.Second

// Run drives the control loop until it terminates (spec §4E): reconnect,
// drain inbound messages, consider credential/access refresh, handle
// signals, consider keep-alive, sleep. It returns nil on a clean
// !remain_connected exit, or the terminating error (GotExitSig,
// ManyFailedReqs, or a fatal reconnect failure) otherwise.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			_ = c.transport.Disconnect()
			return sdperrors.Wrap(ctx.Err(), sdperrors.KindGotExitSig, "context canceled")
		default:
		}

		if err := c.step(ctx); err != nil {
			if err == errCleanExit {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
		case <-time.After(loopTick):
		}
	}
}

// errCleanExit is a sentinel used internally to unwind Run on the
// !remain_connected success path (spec §4E step 5) without overloading a
// real error Kind for "this was actually success".
var errCleanExit = sdperrors.New(sdperrors.KindUninitialized, "clean exit sentinel")

// step runs exactly one iteration of the outer loop in the 8-step order
// spec §4E specifies.
func (c *Client) step(ctx context.Context) error {
	now := time.Now()

	// (1) if disconnected, reconnect.
	if c.transport.ConnState() != transport.Connected {
		if c.metrics != nil {
			c.metrics.ConnectAttempts.Inc()
		}
		if err := c.transport.Connect(ctx); err != nil {
			if c.metrics != nil {
				c.metrics.ConnectFailures.Inc()
			}
			return err
		}
		now = time.Now()
		c.initialConnTime = now
		c.lastContact = now
		// Open Question decision (SPEC_FULL.md): a fresh connection is
		// equivalent to Ready — clear request vars even though no reply
		// was ever received for whatever was outstanding before.
		c.enterReady()
	}

	// (2) drain up to MsgQueueLen inbound messages and dispatch.
	if err := c.drainInbound(ctx); err != nil {
		return err
	}

	// Retry check: applies whenever a request is outstanding and nothing in
	// drainInbound resolved it.
	if err := c.checkRetry(ctx, now); err != nil {
		return err
	}

	// (3) consider credential refresh.
	if c.state == Ready && c.credUpdateDue(now) {
		if err := c.sendRequest(ctx, codec.SubjectCredUpdate, codec.StageRequesting, now); err != nil {
			c.logger.Warnf("cred_update request: %v", err)
		} else {
			c.state = CredRequesting
		}
	}

	// (4) access refresh: gated at run time on UseSPA — re-knocks via SPA
	// to keep the controller's access window open, distinct from a
	// credential rotation.
	if c.UseSPA && c.state == Ready && c.accessUpdateDue(now) {
		if err := transport.SendKnock(ctx, c.CtrlAddr, c.SPAEncryptionKey, c.SPAHMACKey); err != nil {
			c.logger.Warnf("access refresh spa knock: %v", err)
		}
		c.lastAccessUpdate = now
	}

	// (5) if !remain_connected and a credential update has occurred, exit.
	if !c.RemainConnected && c.credUpdatedThisRun {
		_ = c.transport.Disconnect()
		return errCleanExit
	}

	// (6) handle pending signals.
	if c.signals != nil && c.signals.Pending() {
		if c.signals.TakeTERM() || c.signals.TakeINT() {
			_ = c.transport.Disconnect()
			return sdperrors.New(sdperrors.KindGotExitSig, "received INT/TERM")
		}
		if c.signals.TakeHUP() {
			if err := c.reinit(); err != nil {
				c.logger.Errorf("reinit on HUP failed: %v", err)
			}
		}
		c.signals.ClearAny()
	}

	// (7) consider keep-alive.
	if c.state == Ready && c.keepAliveDue(now) {
		if err := c.sendRequest(ctx, codec.SubjectKeepAlive, codec.StageNone, now); err != nil {
			c.logger.Warnf("keep_alive request: %v", err)
		} else {
			c.state = KeepAliveRequesting
		}
	}

	c.recordMetrics()
	return nil
}

// drainInbound implements §4E step 2.
func (c *Client) drainInbound(ctx context.Context) error {
	for i := 0; i < c.MsgQueueLen; i++ {
		text, n, err := c.transport.GetMsg()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		tag, bundle, err := codec.Process(text)
		if err != nil {
			c.logger.Warnf("malformed inbound message dropped: %v", err)
			continue
		}

		switch tag {
		case codec.KeepAliveFulfilling:
			c.handleKeepAliveFulfilling()
		case codec.CredsFulfilling:
			c.handleCredsFulfilling(ctx, bundle)
		case codec.BadResult:
			c.logger.Debugf("dropped unrecognized/irrelevant inbound message")
		}
	}
	return nil
}

func (c *Client) handleKeepAliveFulfilling() {
	if c.state != KeepAliveRequesting && c.state != KeepAliveUnfulfilled {
		c.logger.Debugf("keep_alive reply received outside a keep-alive cycle, ignoring")
		return
	}
	c.lastContact = time.Now()
	c.enterReady()
	if c.metrics != nil {
		c.metrics.KeepAlivesAcked.Inc()
	}
}

func (c *Client) handleCredsFulfilling(ctx context.Context, bundle *codec.CredentialBundle) {
	if c.state != CredRequesting && c.state != CredUnfulfilled {
		c.logger.Debugf("cred_update reply received outside a cred-update cycle, ignoring")
		return
	}
	if bundle == nil {
		c.logger.Warnf("cred_update fulfilling with no payload, ignoring")
		return
	}

	paths := credstore.Paths{
		CertFile:         c.CertFile,
		KeyFile:          c.KeyFile,
		ClientConfigFile: c.ClientConfigFile,
		FwknopConfigFile: c.FwknopConfigFile,
	}
	memWarn, err := credstore.Apply(paths, *bundle, c.transport)
	if err != nil {
		// A write-time failure is fatal to the operation and surfaces as a
		// failed request attempt, counted against max_request_attempts
		// (spec §4B) — not a loop-ending error by itself.
		c.logger.Errorf("applying credential update failed: %v", err)
		c.reqAttempts++
		return
	}
	if memWarn != nil {
		c.logger.Warnf("credential files updated but in-memory key swap failed: %v", memWarn)
	}

	ackText, err := codec.MakeCredUpdateFulfilled()
	if err != nil {
		c.logger.Errorf("building cred_update fulfilled ack: %v", err)
		return
	}
	if err := c.transport.SendMsg(ctx, ackText); err != nil {
		c.logger.Errorf("sending cred_update fulfilled ack: %v", err)
		return
	}

	now := time.Now()
	c.lastCredUpdate = now
	c.lastContact = now
	c.credUpdatedThisRun = true
	c.enterReady()
	if c.metrics != nil {
		c.metrics.CredUpdatesAcked.Inc()
	}
}

// checkRetry implements the transition table's retry row: while a request
// remains outstanding, double req_retry_interval and resend on each elapsed
// window, or transition to TimeToQuit once attempts are exhausted.
func (c *Client) checkRetry(ctx context.Context, now time.Time) error {
	if c.state != KeepAliveRequesting && c.state != KeepAliveUnfulfilled &&
		c.state != CredRequesting && c.state != CredUnfulfilled {
		return nil
	}
	if now.Before(c.lastReqTime.Add(c.reqRetryInterval)) {
		return nil
	}

	if c.reqAttempts >= c.MaxReqAttempts {
		c.state = TimeToQuit
		_ = c.transport.Disconnect()
		if c.metrics != nil {
			c.metrics.ManyFailedReqs.Inc()
		}
		return sdperrors.New(sdperrors.KindManyFailedReqs, "exceeded max_request_attempts")
	}

	if c.metrics != nil {
		c.metrics.RequestRetries.Inc()
	}
	c.reqRetryInterval *= 2
	stage := codec.StageNone
	if c.pendingSubject == codec.SubjectCredUpdate {
		stage = codec.StageRequesting
	}
	if err := c.sendRequest(ctx, c.pendingSubject, stage, now); err != nil {
		c.logger.Warnf("retry send failed: %v", err)
		return nil
	}

	if c.pendingSubject == codec.SubjectKeepAlive {
		c.state = KeepAliveUnfulfilled
	} else {
		c.state = CredUnfulfilled
	}
	return nil
}

// reinit implements the HUP path (spec §4A restart, §4E "any | HUP"):
// snapshot config paths, zero the in-memory context, re-read from disk,
// keeping the PID-file lock descriptor open throughout.
func (c *Client) reinit() error {
	res, err := config.LoadFileWithOptions(c.ConfigPath, config.DefaultLoadOptions())
	if err != nil {
		return sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "reload config on HUP")
	}

	_ = c.transport.Disconnect()

	c.applyConfig(res.Config)
	c.state = Ready
	c.reqAttempts = 0
	c.pendingSubject = ""
	c.lastContact = time.Time{}
	c.lastCredUpdate = time.Time{}
	c.lastAccessUpdate = time.Time{}
	c.initialConnTime = time.Time{}
	c.lastReqTime = time.Time{}
	c.credUpdatedThisRun = false
	return nil
}
