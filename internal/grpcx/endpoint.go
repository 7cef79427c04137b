package grpcx

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// endpoint is the parsed form of the settings URL.
type endpoint struct {
	addr       string // host:port dialed by the channel
	serverName string // TLS SNI and verification name
}

func parseEndpoint(raw string) (endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return endpoint{}, fail(KindInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return endpoint{}, fail(KindInvalidURL, fmt.Errorf("%q is not an absolute URL", raw))
	}
	host := u.Hostname()
	if host == "" {
		return endpoint{}, fail(KindInvalidURL, errors.New("URL has no host"))
	}
	name, err := serverName(host)
	if err != nil {
		return endpoint{}, fail(KindInvalidTLSDomain, err)
	}
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return endpoint{addr: net.JoinHostPort(host, port), serverName: name}, nil
}

// serverName returns host in a form usable for SNI: an IP literal as is, or
// an ASCII (punycode) DNS name with letter-digit-hyphen labels.
func serverName(host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", err
	}
	ascii = strings.TrimSuffix(ascii, ".")
	if ascii == "" || len(ascii) > 253 {
		return "", fmt.Errorf("invalid DNS name %q", host)
	}
	for _, label := range strings.Split(ascii, ".") {
		if !validLabel(label) {
			return "", fmt.Errorf("invalid DNS name %q", host)
		}
	}
	return ascii, nil
}

func validLabel(l string) bool {
	if l == "" || len(l) > 63 || l[0] == '-' || l[len(l)-1] == '-' {
		return false
	}
	for i := 0; i < len(l); i++ {
		c := l[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}
