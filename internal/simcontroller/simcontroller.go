// Package simcontroller is a simulated SDP controller, grounded on the
// teacher's cmd/flywall-sim harness (a fake collaborator that implements
// just enough of the real protocol to drive end-to-end scenarios). It
// terminates mutual TLS, speaks the same newline-delimited JSON envelopes
// internal/codec defines, and lets a test script the exact reply sequence
// spec §8's scenarios (S1-S6) need — including replaying nothing at all, to
// exercise the retry/backoff path.
package simcontroller

import (
	"bufio"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/sdpc-project/sdpc/internal/codec"
	"github.com/sdpc-project/sdpc/internal/replaycache"
)

// Behavior decides how the simulator responds to one inbound envelope. A nil
// *codec.Envelope return means "stay silent" (drive the client's retry path).
type Behavior func(req codec.Envelope) *codec.Envelope

// Controller is a single mTLS listener driving one Behavior per connection.
type Controller struct {
	ln       net.Listener
	behavior Behavior
	cache    *replaycache.Cache
	spaPort  int
	spaConn  *net.UDPConn

	mu          sync.Mutex
	lastSPA     []byte
	spaCount    int
	replayCount int

	wg sync.WaitGroup
}

// Listen starts a TLS listener on addr using tlsCfg, and an optional UDP
// listener on spaPort (0 disables SPA simulation). behavior is applied to
// every inbound envelope on every accepted connection.
func Listen(addr string, tlsCfg *tls.Config, spaPort int, behavior Behavior, cache *replaycache.Cache) (*Controller, error) {
	ln, err := tls.Listen("tcp", addr, tlsCfg)
	if err != nil {
		return nil, err
	}
	c := &Controller{ln: ln, behavior: behavior, cache: cache, spaPort: spaPort}

	if spaPort != 0 {
		udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: spaPort})
		if err != nil {
			_ = ln.Close()
			return nil, err
		}
		c.spaConn = udpConn
		c.wg.Add(1)
		go c.serveSPA()
	}

	c.wg.Add(1)
	go c.serveTLS()
	return c, nil
}

// Addr returns the bound TLS listener address.
func (c *Controller) Addr() net.Addr { return c.ln.Addr() }

func (c *Controller) serveTLS() {
	defer c.wg.Done()
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			return
		}
		go c.handleConn(conn)
	}
}

func (c *Controller) handleConn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req codec.Envelope
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		reply := c.behavior(req)
		if reply == nil {
			continue
		}
		data, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		data = append(data, '\n')
		_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if _, err := conn.Write(data); err != nil {
			return
		}
	}
}

// serveSPA records every received SPA knock's raw bytes for test assertions
// and, if a replaycache is attached, flags repeats — a real controller would
// drop a replayed knock outright rather than opening its access window again.
func (c *Controller) serveSPA() {
	defer c.wg.Done()
	buf := make([]byte, 4096)
	for {
		n, _, err := c.spaConn.ReadFrom(buf)
		if err != nil {
			return
		}
		pkt := append([]byte(nil), buf[:n]...)

		replayed := false
		if c.cache != nil {
			digest := sha256Hex(pkt)
			seen, err := c.cache.Seen(context.Background(), digest, time.Now().UnixNano())
			if err == nil {
				replayed = seen
			}
		}

		c.mu.Lock()
		c.lastSPA = pkt
		c.spaCount++
		if replayed {
			c.replayCount++
		}
		c.mu.Unlock()
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// LastSPAPacket returns the most recently received SPA knock, if any.
func (c *Controller) LastSPAPacket() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSPA
}

// SPACount returns how many SPA knocks have been received.
func (c *Controller) SPACount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spaCount
}

// ReplayCount returns how many received SPA knocks matched a digest already
// recorded in the attached replaycache (0 if none is attached).
func (c *Controller) ReplayCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replayCount
}

// Close stops both listeners and waits for their goroutines to exit.
func (c *Controller) Close() error {
	err := c.ln.Close()
	if c.spaConn != nil {
		_ = c.spaConn.Close()
	}
	c.wg.Wait()
	return err
}

// AlwaysFulfillKeepAlive is a Behavior for scenario S2: every keep_alive is
// acknowledged immediately.
func AlwaysFulfillKeepAlive(req codec.Envelope) *codec.Envelope {
	if req.Subject != codec.SubjectKeepAlive {
		return nil
	}
	return &codec.Envelope{ID: req.ID, Subject: codec.SubjectKeepAlive, Sent: req.Sent}
}

// FulfillCredUpdateOnce is a Behavior for scenario S1: the first cred_update
// requesting envelope gets a fulfilled reply carrying bundle; every other
// envelope is ignored.
func FulfillCredUpdateOnce(bundle codec.CredentialBundle) Behavior {
	var done bool
	var mu sync.Mutex
	return func(req codec.Envelope) *codec.Envelope {
		if req.Subject != codec.SubjectCredUpdate || req.Stage != codec.StageRequesting {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		if done {
			return nil
		}
		done = true
		payload, err := json.Marshal(bundle)
		if err != nil {
			return nil
		}
		return &codec.Envelope{
			ID:      req.ID,
			Subject: codec.SubjectCredUpdate,
			Stage:   codec.StageFulfilled,
			Payload: payload,
		}
	}
}

// NeverRespond is a Behavior for scenario S3/S4: every envelope is dropped,
// driving the client through its full retry/backoff path to ManyFailedReqs.
func NeverRespond(codec.Envelope) *codec.Envelope { return nil }
