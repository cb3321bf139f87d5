// Package tlsctx owns the process-wide TLS state shared by secure providers
// and builds their client and server configurations.
//
// Ownership boundary:
// - the shared state is reference counted; the first secure provider to
// start acquires it and the last one to be closed releases it
// - server configs never request a client certificate
// - client configs require a server certificate and verify its chain against
// the configured CA, but never check the host name
package tlsctx

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/danmuck/connprov/internal/connprov"
)

const sessionCacheSize = 64

var (
	ErrParseCA     = errors.New("tlsctx: parse tls ca bundle")
	ErrNoPeerCert  = connprov.ErrNoPeerCert
	ErrNotAcquired = errors.New("tlsctx: state not acquired")
)

// State is the shared TLS state. Only the client session cache lives here
// today; certificates are loaded per provider.
type State struct {
	sessions tls.ClientSessionCache
}

var (
	mu     sync.Mutex
	refs   int
	shared *State
)

// Acquire returns the shared state, creating it on the first reference.
func Acquire() *State {
	mu.Lock()
	defer mu.Unlock()
	if refs == 0 {
		shared = &State{sessions: tls.NewLRUClientSessionCache(sessionCacheSize)}
	}
	refs++
	return shared
}

// Release drops one reference and tears the state down with the last one.
func Release() error {
	mu.Lock()
	defer mu.Unlock()
	if refs == 0 {
		return ErrNotAcquired
	}
	refs--
	if refs == 0 {
		shared = nil
	}
	return nil
}

// Refs reports the current reference count.
func Refs() int {
	mu.Lock()
	defer mu.Unlock()
	return refs
}

// ServerConfig loads the provider's certificate and key.
func (s *State) ServerConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	}, nil
}

// ClientConfig verifies the server chain against caFile without host name
// checking. Go's built-in verification always checks the name, so it is
// switched off and replaced by VerifyPeerCertificate.
func (s *State) ClientConfig(caFile string) (*tls.Config, error) {
	pool, err := LoadCAPool(caFile)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		MinVersion:            tls.VersionTLS12,
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: VerifyChain(pool),
	}
	if s != nil {
		cfg.ClientSessionCache = s.sessions
	}
	return cfg, nil
}

// LoadCAPool reads a PEM bundle into a pool.
func LoadCAPool(caFile string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(strings.TrimSpace(caFile))
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(caPEM); !ok {
		return nil, fmt.Errorf("%w: %s", ErrParseCA, caFile)
	}
	return pool, nil
}

// VerifyChain returns a peer verifier that requires a certificate chaining to
// roots. Any extended key usage is accepted.
func VerifyChain(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return ErrNoPeerCert
		}
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			c, err := x509.ParseCertificate(raw)
			if err != nil {
				return err
			}
			certs = append(certs, c)
		}
		opts := x509.VerifyOptions{
			Roots:         roots,
			Intermediates: x509.NewCertPool(),
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		}
		for _, c := range certs[1:] {
			opts.Intermediates.AddCert(c)
		}
		_, err := certs[0].Verify(opts)
		return err
	}
}
