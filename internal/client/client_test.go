package client

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdpc-project/sdpc/internal/codec"
	"github.com/sdpc-project/sdpc/internal/config"
	sdperrors "github.com/sdpc-project/sdpc/internal/errors"
	"github.com/sdpc-project/sdpc/internal/logging"
	"github.com/sdpc-project/sdpc/internal/pidfile"
	"github.com/sdpc-project/sdpc/internal/transport"
)

// fakeFacade is a test double for transport.Facade, letting these tests drive
// the state machine without a real TLS session.
type fakeFacade struct {
	mu        sync.Mutex
	state     transport.ConnState
	connErr   error
	sendErr   error
	sent      []string
	inbound   []string
	connCalls int
}

func newFakeFacade() *fakeFacade {
	return &fakeFacade{state: transport.Disconnected}
}

func (f *fakeFacade) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connCalls++
	if f.connErr != nil {
		return f.connErr
	}
	f.state = transport.Connected
	return nil
}

func (f *fakeFacade) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = transport.Disconnected
	return nil
}

func (f *fakeFacade) SendMsg(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeFacade) GetMsg() (string, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbound) == 0 {
		return "", 0, nil
	}
	msg := f.inbound[0]
	f.inbound = f.inbound[1:]
	return msg, len(msg), nil
}

func (f *fakeFacade) ConnState() transport.ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeFacade) SetSPAKeys(encryptionKey, hmacKey []byte) {}

func (f *fakeFacade) pushInbound(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, msg)
}

func (f *fakeFacade) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testClient(t *testing.T, ft *fakeFacade) *Client {
	t.Helper()
	cfg := &config.Config{
		CtrlAddr:             "127.0.0.1",
		CtrlPort:             4433,
		MaxRequestAttempts:   3,
		MaxConnAttempts:      1,
		RemainConnected:      true,
	}
	c := New(cfg, ft, nil, pidfile.NewSignalFlags(), logging.New(nil, logging.LevelDebug))
	// Timers default to zero via the zero-valued Config duration methods in
	// many teacher-style configs; pin them explicitly here so "due" checks
	// are deterministic rather than depending on applyDefaults internals.
	c.InitReqRetryInterval = time.Second
	c.reqRetryInterval = time.Second
	c.MaxReqAttempts = 3
	c.KeepAliveInterval = time.Hour
	c.CredUpdateInterval = time.Hour
	c.AccessUpdateInterval = time.Hour
	// New takes the Config as given (no applyDefaults), so MsgQueueLen would
	// be 0 and drainInbound would read nothing; use the spec default of 10.
	c.MsgQueueLen = 10
	return c
}

// TestRetryBackoffDoublesMonotonically checks spec §8 property 2: each
// unfulfilled retry at least doubles the prior interval.
func TestRetryBackoffDoublesMonotonically(t *testing.T) {
	ft := newFakeFacade()
	c := testClient(t, ft)
	require.NoError(t, ft.Connect(context.Background()))
	c.enterReady()

	now := time.Now()
	require.NoError(t, c.sendRequest(context.Background(), codec.SubjectKeepAlive, codec.StageNone, now))
	c.state = KeepAliveRequesting

	prev := c.reqRetryInterval
	for i := 0; i < 2; i++ {
		now = now.Add(prev + time.Millisecond)
		require.NoError(t, c.checkRetry(context.Background(), now))
		assert.GreaterOrEqual(t, c.reqRetryInterval, 2*prev)
		prev = c.reqRetryInterval
	}
}

// TestManyFailedReqsExhaustsAtCap reproduces spec §8 scenario S3:
// max_request_attempts=3, initial_req_retry_interval=1s sends at t≈0,1,3s and
// reaches TimeToQuit at t≈7s.
func TestManyFailedReqsExhaustsAtCap(t *testing.T) {
	ft := newFakeFacade()
	c := testClient(t, ft)
	require.NoError(t, ft.Connect(context.Background()))
	c.enterReady()

	start := time.Now()
	require.NoError(t, c.sendRequest(context.Background(), codec.SubjectKeepAlive, codec.StageNone, start))
	c.state = KeepAliveRequesting
	require.Equal(t, 1, c.reqAttempts)

	// t=1s: retry #1, attempts -> 2, interval -> 2s.
	require.NoError(t, c.checkRetry(context.Background(), start.Add(1*time.Second)))
	require.Equal(t, 2, c.reqAttempts)
	require.Equal(t, KeepAliveUnfulfilled, c.state)

	// t=3s: retry #2, attempts -> 3, interval -> 4s.
	require.NoError(t, c.checkRetry(context.Background(), start.Add(3*time.Second)))
	require.Equal(t, 3, c.reqAttempts)

	// t=7s: attempts already at cap (3) -> TimeToQuit, ManyFailedReqs.
	err := c.checkRetry(context.Background(), start.Add(7*time.Second))
	require.Error(t, err)
	assert.Equal(t, sdperrors.KindManyFailedReqs, sdperrors.GetKind(err))
	assert.Equal(t, TimeToQuit, c.state)
	assert.Equal(t, transport.Disconnected, ft.ConnState())
}

// TestSendRequestGatedByState checks spec §8 property 5: a request may only
// be sent from Ready/*Requesting/*Unfulfilled.
func TestSendRequestGatedByState(t *testing.T) {
	ft := newFakeFacade()
	c := testClient(t, ft)
	require.NoError(t, ft.Connect(context.Background()))
	c.state = TimeToQuit

	err := c.sendRequest(context.Background(), codec.SubjectKeepAlive, codec.StageNone, time.Now())
	require.Error(t, err)
	assert.Equal(t, sdperrors.KindState, sdperrors.GetKind(err))
}

// TestSendRequestGatedByConnState checks spec §8 property 6: a request may
// only be sent while connected.
func TestSendRequestGatedByConnState(t *testing.T) {
	ft := newFakeFacade()
	c := testClient(t, ft)
	c.state = Ready

	err := c.sendRequest(context.Background(), codec.SubjectKeepAlive, codec.StageNone, time.Now())
	require.Error(t, err)
	assert.Equal(t, sdperrors.KindConnDown, sdperrors.GetKind(err))
}

// TestKeepAliveFulfillingReturnsToReady exercises the one-shot keep-alive
// cycle (spec §8 scenario S2): a fulfilling reply drains and clears state.
func TestKeepAliveFulfillingReturnsToReady(t *testing.T) {
	ft := newFakeFacade()
	c := testClient(t, ft)
	require.NoError(t, c.transport.Connect(context.Background()))
	c.enterReady()

	now := time.Now()
	require.NoError(t, c.sendRequest(context.Background(), codec.SubjectKeepAlive, codec.StageNone, now))
	c.state = KeepAliveRequesting

	text, err := codec.MakeKeepAlive()
	require.NoError(t, err)
	ft.pushInbound(text)

	require.NoError(t, c.drainInbound(context.Background()))
	assert.Equal(t, Ready, c.state)
	assert.False(t, c.lastContact.IsZero())
}

// TestCredsFulfillingAppliesBundleAndExitsWhenNotRemainConnected covers
// scenario S1: a one-shot credential refresh with remain_connected=false
// exits cleanly once the bundle is applied.
func TestCredsFulfillingAppliesBundleAndExitsWhenNotRemainConnected(t *testing.T) {
	dir := t.TempDir()
	ft := newFakeFacade()
	c := testClient(t, ft)
	c.RemainConnected = false
	c.CertFile = dir + "/client.crt"
	c.KeyFile = dir + "/client.key"
	c.ClientConfigFile = dir + "/client.conf"
	c.FwknopConfigFile = dir + "/fwknoprc"
	require.NoError(t, os.WriteFile(c.ClientConfigFile, []byte("KEY spa_encryption_key old\n"), 0o600))
	require.NoError(t, os.WriteFile(c.FwknopConfigFile, []byte("KEY_BASE64: old\n"), 0o600))

	require.NoError(t, c.transport.Connect(context.Background()))
	c.enterReady()
	now := time.Now()
	require.NoError(t, c.sendRequest(context.Background(), codec.SubjectCredUpdate, codec.StageRequesting, now))
	c.state = CredRequesting

	msg := `{"id":"x","subject":"cred_update","stage":"fulfilled","sent":"2026-01-01T00:00:00Z","payload":{"tls_cert_pem":"CERT","tls_key_pem":"KEY","spa_encryption_key":"newenc","spa_hmac_key":"newhmac"}}`
	ft.pushInbound(msg)

	require.NoError(t, c.drainInbound(context.Background()))
	assert.True(t, c.credUpdatedThisRun)
	assert.Equal(t, Ready, c.state)

	err := c.step(context.Background())
	require.Error(t, err)
	assert.Equal(t, errCleanExit, err)
}

// TestReinitOnHUPReloadsConfigAndClearsRuntimeState covers spec §8 scenario
// S5: a HUP re-reads the config file and resets runtime bookkeeping, without
// disturbing the held PID-file lock reference.
func TestReinitOnHUPReloadsConfigAndClearsRuntimeState(t *testing.T) {
	dir := t.TempDir()
	ft := newFakeFacade()
	c := testClient(t, ft)

	configPath := dir + "/sdpc.hcl"
	hclTemplate := `
ctrl_addr = "127.0.0.1"
ctrl_port = 4433
key_file  = "` + dir + `/client.key"
cert_file = "` + dir + `/client.crt"
keep_alive_interval = %d
`
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(hclTemplate, 60)), 0o600))
	c.ConfigPath = configPath

	require.NoError(t, ft.Connect(context.Background()))
	c.enterReady()
	c.reqAttempts = 2
	c.lastContact = time.Now()
	c.credUpdatedThisRun = true

	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(hclTemplate, 5)), 0o600))

	require.NoError(t, c.reinit())

	assert.Equal(t, 5*time.Second, c.KeepAliveInterval)
	assert.Equal(t, Ready, c.state)
	assert.Equal(t, 0, c.reqAttempts)
	assert.True(t, c.lastContact.IsZero())
	assert.False(t, c.credUpdatedThisRun)
	assert.Equal(t, transport.Disconnected, ft.ConnState())
}
