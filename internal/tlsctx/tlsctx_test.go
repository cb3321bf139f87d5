package tlsctx

import (
	"crypto/tls"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/connprov/internal/testutil/testlog"
	"github.com/danmuck/connprov/internal/testutil/tlstest"
)

func TestAcquireReleaseIsRefCounted(t *testing.T) {
	testlog.Start(t)

	base := Refs()
	a := Acquire()
	b := Acquire()
	if a != b {
		t.Fatalf("expected one shared state")
	}
	if got := Refs(); got != base+2 {
		t.Fatalf("refs: got %d want %d", got, base+2)
	}
	if err := Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := Refs(); got != base {
		t.Fatalf("refs after release: got %d want %d", got, base)
	}
	if base == 0 {
		if err := Release(); !errors.Is(err, ErrNotAcquired) {
			t.Fatalf("expected ErrNotAcquired, got %v", err)
		}
	}
}

func TestClientVerifiesChainButNotHostName(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "connprov-test-ca")
	// Issued for a name the client never dials.
	leaf := ca.Issue(t, dir, "somewhere-else.example", "somewhere-else.example")

	st := Acquire()
	defer func() { _ = Release() }()

	serverCfg, err := st.ServerConfig(leaf.CertFile, leaf.KeyFile)
	if err != nil {
		t.Fatalf("server config: %v", err)
	}
	clientCfg, err := st.ClientConfig(ca.CAFile())
	if err != nil {
		t.Fatalf("client config: %v", err)
	}

	if err := handshakePair(t, serverCfg, clientCfg); err != nil {
		t.Fatalf("handshake with mismatched host name: %v", err)
	}
}

func TestClientRejectsUnknownAuthority(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	trusted := tlstest.NewAuthority(t, dir, "trusted-ca")
	otherDir := filepath.Join(dir, "other")
	if err := os.MkdirAll(otherDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	other := tlstest.NewAuthority(t, otherDir, "other-ca")
	leaf := other.Issue(t, otherDir, "server", "127.0.0.1")

	serverCfg, err := (*State)(nil).ServerConfig(leaf.CertFile, leaf.KeyFile)
	if err != nil {
		t.Fatalf("server config: %v", err)
	}
	clientCfg, err := (*State)(nil).ClientConfig(trusted.CAFile())
	if err != nil {
		t.Fatalf("client config: %v", err)
	}
	if err := handshakePair(t, serverCfg, clientCfg); err == nil {
		t.Fatalf("expected untrusted chain to fail")
	}
}

func TestVerifyChainRequiresPeerCertificate(t *testing.T) {
	testlog.Start(t)

	ca := tlstest.NewAuthority(t, t.TempDir(), "ca")
	pool, err := LoadCAPool(ca.CAFile())
	if err != nil {
		t.Fatalf("load ca: %v", err)
	}
	if err := VerifyChain(pool)(nil, nil); !errors.Is(err, ErrNoPeerCert) {
		t.Fatalf("expected ErrNoPeerCert, got %v", err)
	}
}

func TestLoadCAPoolRejectsGarbage(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "junk.pem")
	if err := os.WriteFile(path, []byte("not a certificate"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadCAPool(path); !errors.Is(err, ErrParseCA) {
		t.Fatalf("expected ErrParseCA, got %v", err)
	}
	if _, err := LoadCAPool(filepath.Join(t.TempDir(), "missing.pem")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func handshakePair(t *testing.T, serverCfg, clientCfg *tls.Config) error {
	t.Helper()
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	deadline := time.Now().Add(5 * time.Second)
	_ = a.SetDeadline(deadline)
	_ = b.SetDeadline(deadline)

	srv := tls.Server(a, serverCfg)
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Handshake() }()

	cli := tls.Client(b, clientCfg)
	err := cli.Handshake()
	if err != nil {
		_ = b.Close()
		<-srvErr
		return err
	}
	return <-srvErr
}
