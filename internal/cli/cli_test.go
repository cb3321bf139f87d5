package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/connprov/internal/config"
	"github.com/danmuck/connprov/internal/localipc"
	"github.com/danmuck/connprov/internal/node"
	"github.com/danmuck/connprov/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func startLocalNode(t *testing.T) {
	t.Helper()
	t.Setenv(localipc.EnvTempDir, t.TempDir())
	t.Setenv(localipc.EnvInstanceName, "")

	cfg := config.Default()
	cfg.Name = "cli-test"
	cfg.Providers = []config.ProviderConfig{
		{Name: "local", Type: config.TypeLocalIPC, Mode: "inbound", Options: map[string]string{"IPCName": "_cli"}},
	}
	n, err := node.New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = n.Shutdown(ctx)
	})
}

func TestRootShowsHelp(t *testing.T) {
	testlog.Start(t)

	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "connprovctl")
	assert.Contains(t, out, "ping")

	_, err = execute(t, "bogus")
	assert.Error(t, err)
}

func TestPingOverLocalIPC(t *testing.T) {
	testlog.Start(t)
	startLocalNode(t)

	out, err := execute(t, "ping", "--type", "localipc", "--ipc-name", "_cli", "--count", "2", "", "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "reply from local (local): 2 strings"))
	assert.Contains(t, out, `"hello"`)
	assert.Contains(t, out, `"world"`)
}

func TestPingReportsMissingServer(t *testing.T) {
	testlog.Start(t)
	t.Setenv(localipc.EnvTempDir, t.TempDir())

	_, err := execute(t, "ping", "--type", "localipc", "--ipc-name", "_nobody", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), localipc.EnvTempDir)
}

func TestPingRejectsBadFlags(t *testing.T) {
	testlog.Start(t)

	_, err := execute(t, "ping", "--type", "udp", "x")
	assert.ErrorContains(t, err, "unknown provider type")

	_, err = execute(t, "ping", "--count", "0", "x")
	assert.ErrorContains(t, err, "count")

	_, err = execute(t, "ping")
	assert.Error(t, err)
}

func TestConfigInitAndCheck(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "connprovd.toml")
	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote plain config")

	_, err = execute(t, "config", "init", path)
	assert.ErrorContains(t, err, "already exists")

	out, err = execute(t, "config", "check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "connprovd: ok (2 providers, 64 workers)")
	assert.Contains(t, out, "local\tlocalipc\tboth")

	out, err = execute(t, "config", "init", "--kind", "secure", "--force", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote secure config")
}

func TestVersion(t *testing.T) {
	testlog.Start(t)

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "connprovctl ")

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"go_version"`)
}
