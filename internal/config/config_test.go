package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "connprovd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)

	path := writeConfig(t, `
log_level = "DEBUG"

[workers]
size = 8
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != DefaultName {
		t.Fatalf("expected default name, got %q", cfg.Name)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug log level, got %q", cfg.LogLevel)
	}
	if cfg.Workers.Size != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.Workers.Size)
	}
	if cfg.Admin.Addr != DefaultAdminAddr {
		t.Fatalf("expected default admin addr, got %q", cfg.Admin.Addr)
	}
	if len(cfg.Providers) != len(Default().Providers) {
		t.Fatalf("expected default providers, got %+v", cfg.Providers)
	}
}

func TestLoadEmptyAdminAddrDisablesAdmin(t *testing.T) {
	testlog.Start(t)

	cfg, err := Load(writeConfig(t, "[admin]\naddr = \"\"\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Admin.Addr != "" {
		t.Fatalf("expected admin disabled, got %q", cfg.Admin.Addr)
	}
}

func TestLoadAdminToken(t *testing.T) {
	testlog.Start(t)

	cfg, err := Load(writeConfig(t, "[admin]\ntoken = \"  s3cret \"\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Admin.Token != "s3cret" {
		t.Fatalf("expected trimmed token, got %q", cfg.Admin.Token)
	}
	if cfg.Admin.Addr != DefaultAdminAddr {
		t.Fatalf("token alone must keep the default addr, got %q", cfg.Admin.Addr)
	}
}

func TestLoadProvidersAndOptions(t *testing.T) {
	testlog.Start(t)

	path := writeConfig(t, `
name = "lab-1"

[[providers]]
name = "ssl"
type = "TCP"
mode = "Inbound"

[providers.options]
Secure = "No"
Port = "7000"
ConnectTimeout = "2000"

[[providers]]
name = "ipc"
type = "localipc"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "lab-1" || len(cfg.Providers) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	ssl := cfg.Providers[0]
	if ssl.Type != TypeTCP {
		t.Fatalf("expected type folded to tcp, got %q", ssl.Type)
	}
	mode, err := ssl.ProviderMode()
	if err != nil || mode != connprov.ModeInbound {
		t.Fatalf("expected inbound mode, got %v (%v)", mode, err)
	}
	got := ssl.ConstructOptions()
	want := []connprov.Option{
		{Name: "ConnectTimeout", Value: "2000"},
		{Name: "Port", Value: "7000"},
		{Name: "Secure", Value: "No"},
	}
	if len(got) != len(want) {
		t.Fatalf("options: got %+v want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("option %d: got %+v want %+v", i, got[i], want[i])
		}
	}

	ipcMode, err := cfg.Providers[1].ProviderMode()
	if err != nil || ipcMode != connprov.ModeBoth {
		t.Fatalf("expected default mode both, got %v (%v)", ipcMode, err)
	}
	if len(cfg.Providers[1].ConstructOptions()) != 0 {
		t.Fatalf("expected no options for ipc provider")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)

	_, err := Load(writeConfig(t, "name = \"x\"\nlisten = \":1\"\n"))
	if !errors.Is(err, ErrUnknownKeys) {
		t.Fatalf("expected ErrUnknownKeys, got %v", err)
	}
	if !strings.Contains(err.Error(), "listen") {
		t.Fatalf("expected key name in error, got %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	testlog.Start(t)

	cases := map[string]struct {
		body string
		want string
	}{
		"bad provider type": {
			body: "[[providers]]\nname = \"x\"\ntype = \"udp\"\n",
			want: "Type",
		},
		"bad mode": {
			body: "[[providers]]\nname = \"x\"\ntype = \"tcp\"\nmode = \"sideways\"\n",
			want: "Mode",
		},
		"duplicate names": {
			body: "[[providers]]\nname = \"x\"\ntype = \"tcp\"\n[[providers]]\nname = \"x\"\ntype = \"localipc\"\n",
			want: "unique",
		},
		"empty provider list": {
			body: "providers = []\n",
			want: "Providers",
		},
		"zero workers": {
			body: "[workers]\nsize = 0\n",
			want: "Workers.Size",
		},
		"bad admin addr": {
			body: "[admin]\naddr = \"not an address\"\n",
			want: "Admin.Addr",
		},
		"bad log level": {
			body: "log_level = \"loud\"\n",
			want: "LogLevel",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)

	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTemplatesLoad(t *testing.T) {
	testlog.Start(t)

	for _, kind := range []string{"plain", "secure"} {
		path := filepath.Join(t.TempDir(), kind+".toml")
		if err := WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s template: %v", kind, err)
		}
		if err := WriteTemplate(path, kind, false); err == nil {
			t.Fatalf("expected refusal to overwrite %s", path)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("load %s template: %v", kind, err)
		}
		if len(cfg.Providers) == 0 {
			t.Fatalf("%s template has no providers", kind)
		}
	}
	if _, err := Template("bogus"); err == nil {
		t.Fatalf("expected unknown template kind to fail")
	}
}
