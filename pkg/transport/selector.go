// Package transport selects the HTTP round tripper for a web service call.
//
// Two transports are kept per execution: a standard one and an NTLM one that
// negotiates over HTTP/1.1 keep-alive connections, as NTLM authenticates the
// connection rather than the request. The choice is made from the auth scheme
// passed to RoundTripper; there is no global or per-goroutine mode.
package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/Azure/go-ntlmssp"
	"golang.org/x/oauth2"

	"github.com/Sternrassler/ws-nodes/pkg/auth"
)

// Timeouts configures both transports.
type Timeouts struct {
	// Connect bounds establishing a TCP connection.
	Connect time.Duration
	// Socket bounds waiting for the response headers and each read of the body.
	Socket time.Duration
}

// Selector hands out round trippers for a scheme.
type Selector struct {
	standard *http.Transport
	ntlmBase *http.Transport
	ntlm     http.RoundTripper
}

// New creates a selector with fresh connection pools.
func New(t Timeouts) *Selector {
	standard := newTransport(t, true)
	ntlmBase := newTransport(t, false)

	return &Selector{
		standard: standard,
		ntlmBase: ntlmBase,
		ntlm:     ntlmssp.Negotiator{RoundTripper: ntlmBase},
	}
}

func newTransport(t Timeouts, http2 bool) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   t.Connect,
		KeepAlive: 30 * time.Second,
	}

	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           socketDialer(dialer, t.Socket),
		TLSHandshakeTimeout:   t.Connect,
		ResponseHeaderTimeout: t.Socket,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     http2,
	}
	if !http2 {
		// A non-nil empty map disables the HTTP/2 upgrade.
		tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	return tr
}

// socketDialer dials through d and bounds every read on the connection by
// socket. A zero socket leaves reads unbounded.
func socketDialer(d *net.Dialer, socket time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if socket <= 0 {
		return d.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &socketConn{Conn: conn, timeout: socket}, nil
	}
}

// socketConn re-arms the read deadline before each Read and after each Write.
type socketConn struct {
	net.Conn
	timeout time.Duration
}

func (c *socketConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *socketConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if err == nil {
		// A read pending on an idle pooled connection waits for this response.
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	return n, err
}

// RoundTripper returns the transport chain for scheme with creds applied.
func (s *Selector) RoundTripper(scheme auth.Scheme, creds auth.Credentials) http.RoundTripper {
	switch scheme {
	case auth.SchemeNTLM:
		return &basicAuthTransport{
			username: creds.Principal(),
			password: creds.Password,
			base:     s.ntlm,
		}
	case auth.SchemeBasic:
		return &basicAuthTransport{
			username: creds.Username,
			password: creds.Password,
			base:     s.standard,
		}
	case auth.SchemeBearer:
		return &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: creds.Token,
				TokenType:   "Bearer",
			}),
			Base: s.standard,
		}
	default:
		return s.standard
	}
}

// isNTLM reports whether rt was selected for NTLM.
func (s *Selector) isNTLM(rt http.RoundTripper) bool {
	b, ok := rt.(*basicAuthTransport)
	if !ok {
		return false
	}
	_, ok = b.base.(ntlmssp.Negotiator)
	return ok
}

// CloseIdleConnections releases pooled connections of both transports.
func (s *Selector) CloseIdleConnections() {
	s.standard.CloseIdleConnections()
	s.ntlmBase.CloseIdleConnections()
}

// basicAuthTransport sets basic credentials on a clone of the request. The
// NTLM negotiator reads them to drive its handshake.
type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(r)
}
