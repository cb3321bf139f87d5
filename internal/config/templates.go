package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "plain":
		return plainTemplate, nil
	case "secure":
		return secureTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const plainTemplate = `name = "connprovd"
log_level = "info"

[admin]
addr = "127.0.0.1:6580"

[workers]
size = 64

[[providers]]
name = "tcp"
type = "tcp"
mode = "both"

[providers.options]
Port = "6500"
ConnectTimeout = "5000"
Protocol = "IPv4_IPv6"

[[providers]]
name = "local"
type = "localipc"
mode = "both"
`

const secureTemplate = `name = "connprovd"
log_level = "info"

[admin]
addr = "127.0.0.1:6580"

[workers]
size = 64

[[providers]]
name = "ssl"
type = "tcp"
mode = "both"

[providers.options]
Port = "6550"
Secure = "Yes"
"SSL/ServerCertificate" = "/etc/connprov/STAFDefault.crt"
"SSL/ServerKey" = "/etc/connprov/STAFDefault.key"
"SSL/CACertificate" = "/etc/connprov/CAList.crt"
`
