// Command sdpc-sim runs a simulated controller for exercising the client
// against a real TLS listener, outside of the test suite: useful for manual
// soak-testing a built client binary end to end.
package main

import (
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sdpc-project/sdpc/internal/replaycache"
	"github.com/sdpc-project/sdpc/internal/simcontroller"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4433", "TLS listen address")
	certFile := flag.String("cert", "", "server certificate (PEM)")
	keyFile := flag.String("key", "", "server private key (PEM)")
	clientCAFile := flag.String("client-ca", "", "CA bundle for verifying client certificates")
	spaPort := flag.Int("spa-port", 0, "UDP port to record SPA knock packets on (0 disables)")
	behaviorName := flag.String("behavior", "keepalive", "keepalive | never")
	cacheFile := flag.String("replay-cache", "", "sqlite file tracking seen SPA digests (empty uses an in-memory db)")
	flag.Parse()

	if *certFile == "" || *keyFile == "" {
		fmt.Fprintln(os.Stderr, "sdpc-sim: -cert and -key are required")
		os.Exit(2)
	}

	cert, err := tls.LoadX509KeyPair(*certFile, *keyFile)
	if err != nil {
		log.Fatalf("load server cert/key: %v", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.RequireAnyClientCert,
	}
	if *clientCAFile != "" {
		pool, err := loadCAPool(*clientCAFile)
		if err != nil {
			log.Fatalf("load client CA pool: %v", err)
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	cachePath := *cacheFile
	if cachePath == "" {
		cachePath = ":memory:"
	}
	cache, err := replaycache.Open(cachePath)
	if err != nil {
		log.Fatalf("open replay cache: %v", err)
	}
	defer cache.Close()

	var behavior simcontroller.Behavior
	switch *behaviorName {
	case "keepalive":
		behavior = simcontroller.AlwaysFulfillKeepAlive
	case "never":
		behavior = simcontroller.NeverRespond
	default:
		log.Fatalf("unknown -behavior %q", *behaviorName)
	}

	ctrl, err := simcontroller.Listen(*addr, tlsCfg, *spaPort, behavior, cache)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer ctrl.Close()

	log.Printf("sdpc-sim listening on %s (behavior=%s)", ctrl.Addr(), *behaviorName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("sdpc-sim shutting down")
}

func loadCAPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates parsed from %s", path)
	}
	return pool, nil
}
