package transport

import (
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/sdpc-project/sdpc/internal/logging"
)

// probeTimeout bounds the best-effort reachability probe.
const probeTimeout = 2 * time.Second

// probeReachability does a best-effort ICMP ping of host purely for
// diagnostics: it is logged and never gates the connect() retry loop
// described in spec §4C. Unprivileged ICMP sockets aren't available on
// every platform, so a probe setup failure is equally non-fatal.
func probeReachability(logger *logging.Logger, host string) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		logger.Debugf("preflight ping: %v", err)
		return
	}
	pinger.Count = 1
	pinger.Timeout = probeTimeout
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		logger.Debugf("preflight ping to %s: %v", host, err)
		return
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		logger.Debugf("preflight ping to %s: no reply", host)
		return
	}
	logger.Debugf("preflight ping to %s: rtt=%s", host, stats.AvgRtt)
}
