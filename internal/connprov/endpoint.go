package connprov

import (
	"strconv"
	"strings"
)

// DefaultHost is used when an endpoint names only a port.
const DefaultHost = "localhost"

// ParseEndpoint splits "[host][@port]". An at-sign separates host from port
// because IPv6 literals contain colons. When the text after the at-sign is
// not a valid port the whole endpoint is taken as the host.
func ParseEndpoint(endpoint string, defaultPort uint16) (string, uint16) {
	host := strings.TrimSpace(endpoint)
	port := defaultPort
	if at := strings.Index(host, "@"); at >= 0 {
		if v, err := strconv.ParseUint(host[at+1:], 10, 16); err == nil {
			port = uint16(v)
			host = host[:at]
		}
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		host = DefaultHost
	}
	return host, port
}

// FormatEndpoint is the inverse of ParseEndpoint.
func FormatEndpoint(host string, port uint16) string {
	return host + "@" + strconv.FormatUint(uint64(port), 10)
}
