package node

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/connprov/internal/config"
	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/localipc"
	"github.com/danmuck/connprov/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.DaemonConfig {
	t.Helper()
	t.Setenv(localipc.EnvTempDir, t.TempDir())
	t.Setenv(localipc.EnvInstanceName, "")

	cfg := config.Default()
	cfg.Name = "node-test"
	cfg.Workers.Size = 4
	cfg.Providers = []config.ProviderConfig{
		{Name: "tcp", Type: config.TypeTCP, Mode: "both", Options: map[string]string{"Port": "0", "Protocol": "IPv4"}},
		{Name: "local", Type: config.TypeLocalIPC, Mode: "both", Options: map[string]string{"IPCName": "_node"}},
	}
	return cfg
}

func startNode(t *testing.T, cfg config.DaemonConfig) *Node {
	t.Helper()
	n, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = n.Shutdown(ctx)
	})
	return n
}

func echoVia(t *testing.T, n *Node, provider, endpoint string, items []string) []string {
	t.Helper()
	p, ok := n.Provider(provider)
	require.True(t, ok, "provider %s", provider)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := p.Connect(ctx, endpoint)
	require.NoError(t, err)
	defer conn.Close()
	got, err := EchoRequest(conn, items)
	require.NoError(t, err)
	return got
}

func TestNodeEchoesOverEveryProvider(t *testing.T) {
	testlog.Start(t)

	n := startNode(t, testConfig(t))
	require.True(t, n.Ready())

	st, ok := n.ProviderStatus("tcp")
	require.True(t, ok)
	require.NotEqual(t, "0", st.Port)

	items := []string{"ping", "", strings.Repeat("z", 10000)}
	assert.Equal(t, items, echoVia(t, n, "tcp", "127.0.0.1@"+st.Port, items))
	assert.Equal(t, items, echoVia(t, n, "local", "", items))
	assert.Empty(t, echoVia(t, n, "local", "", nil))

	require.Eventually(t, func() bool { return n.Status().Served == 3 }, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, n.Status().Failed)
}

func TestNodeStatusSnapshot(t *testing.T) {
	testlog.Start(t)

	n := startNode(t, testConfig(t))
	st := n.Status()

	assert.Equal(t, "node-test", st.Name)
	assert.True(t, st.Ready)
	assert.Equal(t, 4, st.Workers.Size)
	require.Len(t, st.Providers, 2)

	tcpStatus := st.Providers[0]
	assert.Equal(t, "tcp", tcpStatus.Name)
	assert.Equal(t, config.TypeTCP, tcpStatus.Type)
	assert.Equal(t, "both", tcpStatus.Mode)
	assert.Equal(t, "active", tcpStatus.State)
	assert.False(t, tcpStatus.Secure)
	assert.Equal(t, "IPv4", tcpStatus.Options["Protocol"])

	ipc := st.Providers[1]
	assert.Equal(t, connprov.Local, ipc.LogicalID)
	assert.Equal(t, connprov.Local, ipc.PhysicalID)
	assert.Empty(t, ipc.Port)
	assert.Equal(t, "STAF_node", ipc.Options[localipc.OptIPCName])

	_, ok := n.ProviderStatus("missing")
	assert.False(t, ok)
}

func TestNodeCountsFailedExchanges(t *testing.T) {
	testlog.Start(t)

	n := startNode(t, testConfig(t))
	p, _ := n.Provider("local")
	conn, err := p.Connect(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, conn.WriteUint32(MaxEchoStrings+1, connprov.Timed))
	_, err = conn.ReadUint32(connprov.Timed)
	assert.ErrorIs(t, err, connprov.ErrPeerClosed)
	_ = conn.Close()

	require.Eventually(t, func() bool { return n.Status().Failed == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestNodeShutdownStopsProviders(t *testing.T) {
	testlog.Start(t)

	n, err := New(testConfig(t), nil)
	require.NoError(t, err)
	assert.False(t, n.Ready())
	require.NoError(t, n.Start())
	require.Error(t, n.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, n.Shutdown(ctx))
	require.NoError(t, n.Shutdown(ctx))

	assert.False(t, n.Ready())
	for _, ps := range n.Status().Providers {
		assert.Equal(t, "stopped", ps.State, ps.Name)
	}
	require.Error(t, n.Start())
}

func TestNewRejectsBadProviders(t *testing.T) {
	testlog.Start(t)

	cfg := testConfig(t)
	cfg.Providers = append(cfg.Providers, config.ProviderConfig{Name: "udp", Type: "udp"})
	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider type")

	cfg = testConfig(t)
	cfg.Providers[0].Options["Bogus"] = "1"
	_, err = New(cfg, nil)
	assert.ErrorIs(t, err, connprov.ErrInvalidValue)

	cfg = testConfig(t)
	cfg.Providers = append(cfg.Providers, cfg.Providers[1])
	_, err = New(cfg, nil)
	assert.ErrorContains(t, err, "duplicate")
}

func TestStartFailureStopsEarlierProviders(t *testing.T) {
	testlog.Start(t)

	held, err := net.Listen("tcp4", ":0")
	require.NoError(t, err)
	defer held.Close()
	port := strconv.Itoa(held.Addr().(*net.TCPAddr).Port)

	cfg := testConfig(t)
	cfg.Providers = []config.ProviderConfig{
		{Name: "local", Type: config.TypeLocalIPC, Options: map[string]string{"IPCName": "_first"}},
		{Name: "busy", Type: config.TypeTCP, Mode: "inbound", Options: map[string]string{"Port": port, "Protocol": "IPv4"}},
	}
	n, err := New(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = n.Shutdown(context.Background()) }()

	err = n.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, connprov.ErrBaseOS)
	assert.Contains(t, err.Error(), "busy")

	local, _ := n.Provider("local")
	assert.Equal(t, connprov.StateStopped, local.State())
	assert.False(t, n.Ready())
}
