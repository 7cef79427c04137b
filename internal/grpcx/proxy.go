package grpcx

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// parseProxy accepts http://[user:pass@]host[:port]. The tunnel to the proxy
// itself is plaintext; the gRPC TLS session runs inside it.
func parseProxy(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fail(KindInvalidURI, err)
	}
	if u.Scheme != "http" {
		return nil, fail(KindInvalidURI, fmt.Errorf("unsupported proxy scheme %q", u.Scheme))
	}
	if u.Hostname() == "" {
		return nil, fail(KindInvalidURI, errors.New("proxy URI has no host"))
	}
	return u, nil
}

func proxyAddr(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), "80")
}

// connectDialer dials addr through an HTTP CONNECT tunnel on proxy. Every
// connection is tunnelled, regardless of destination.
func connectDialer(base *net.Dialer, proxy *url.URL) func(context.Context, string) (net.Conn, error) {
	return func(ctx context.Context, addr string) (net.Conn, error) {
		conn, err := base.DialContext(ctx, "tcp", proxyAddr(proxy))
		if err != nil {
			return nil, fmt.Errorf("dial proxy: %w", err)
		}
		tc, err := tunnel(ctx, conn, proxy, addr)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return tc, nil
	}
}

func tunnel(ctx context.Context, conn net.Conn, proxy *url.URL, addr string) (net.Conn, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
		defer func() { _ = conn.SetDeadline(time.Time{}) }()
	}
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Host: addr},
		Host:   addr,
		Header: http.Header{"User-Agent": {userAgent}},
	}
	if u := proxy.User; u != nil {
		pass, _ := u.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(u.Username() + ":" + pass))
		req.Header.Set("Proxy-Authorization", "Basic "+cred)
	}
	if err := req.Write(conn); err != nil {
		return nil, fmt.Errorf("write CONNECT: %w", err)
	}
	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, fmt.Errorf("read CONNECT response: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy refused CONNECT %s: %s", addr, resp.Status)
	}
	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

// bufferedConn drains bytes the proxy sent right after its response.
type bufferedConn struct {
	net.Conn
	r io.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }
