package realtime

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const DefaultHubPath = "/hubs/orders"

// DefaultDevOrigins are tried after the configured address when it points at
// a loopback host.
var DefaultDevOrigins = []string{
	"http://localhost:5000",
	"https://localhost:5001",
	"http://localhost:8080",
}

// HubAddress derives the channel address from the REST API base by dropping
// a trailing /api segment and appending the hub path.
func HubAddress(apiBase, hubPath string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(apiBase))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, apiBase)
	}
	if hubPath == "" {
		hubPath = DefaultHubPath
	}
	if !strings.HasPrefix(hubPath, "/") {
		hubPath = "/" + hubPath
	}

	p := strings.TrimRight(u.Path, "/")
	p = strings.TrimSuffix(p, "/api")
	u.Path = p + hubPath
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Candidates lists the addresses tried for one connection attempt, in order:
// the address itself, its plain-http variant, then the local development
// origins when the address is a loopback address.
func Candidates(address string, devOrigins []string) []string {
	u, err := url.Parse(address)
	if err != nil || u.Host == "" {
		return []string{address}
	}

	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add(u.String())
	if u.Scheme == "https" {
		c := *u
		c.Scheme = "http"
		add(c.String())
	}
	if isLoopback(u.Hostname()) {
		for _, origin := range devOrigins {
			o, err := url.Parse(origin)
			if err != nil || o.Host == "" {
				continue
			}
			c := *u
			c.Scheme = o.Scheme
			c.Host = o.Host
			add(c.String())
		}
	}
	return out
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func withQuery(address string, values map[string]string) string {
	u, err := url.Parse(address)
	if err != nil {
		return address
	}
	q := u.Query()
	for k, v := range values {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func toWebSocketURL(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, u.Scheme)
	}
	return u.String(), nil
}
