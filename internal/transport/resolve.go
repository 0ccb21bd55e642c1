package transport

import (
	"context"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/sdpc-project/sdpc/internal/logging"
)

// resolveDNSTimeout bounds the explicit lookup so a DNS failure is
// distinguishable in logs from a slow or hanging TLS handshake.
const resolveDNSTimeout = 2 * time.Second

// resolveHost explicitly resolves addr to an IP address via miekg/dns ahead
// of tls.Dial's implicit resolver, so a name-resolution failure shows up in
// logs as such rather than folded into a generic dial error. addr is
// returned unchanged (and the failure only logged) if it is already a
// literal IP, if no system resolver config can be read, or if the query
// fails — resolution here is a diagnostic aid, not a gate on connect().
func resolveHost(ctx context.Context, logger *logging.Logger, addr string) string {
	if net.ParseIP(addr) != nil {
		return addr
	}

	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		logger.Debugf("dns: no resolver config, deferring to system resolver: %v", err)
		return addr
	}

	c := &dns.Client{Timeout: resolveDNSTimeout}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(addr), dns.TypeA)

	server := net.JoinHostPort(conf.Servers[0], conf.Port)
	rctx, cancel := context.WithTimeout(ctx, resolveDNSTimeout)
	defer cancel()

	resp, _, err := c.ExchangeContext(rctx, m, server)
	if err != nil || resp == nil {
		logger.Warnf("dns: explicit resolution of %s failed, deferring to system resolver: %v", addr, err)
		return addr
	}
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A.String()
		}
	}
	logger.Debugf("dns: no A record for %s, deferring to system resolver", addr)
	return addr
}
