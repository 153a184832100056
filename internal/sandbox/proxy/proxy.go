// Package proxy implements SkillLite's local network-filtering proxy: a
// loopback TCP listener speaking HTTP-CONNECT and SOCKS5 that inspects
// each inbound connection's target host and tunnels or rejects it
// against a skill's declared outbound domain allow-list.
package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"sync"
	"time"

	"github.com/skilllite/skilllite/internal/policy"
)

// Filter is a local filtering proxy bound to a free loopback port, alive
// for the lifetime of a single skill invocation.
type Filter struct {
	ln      net.Listener
	domains []string
	wg      sync.WaitGroup
	closed  chan struct{}
}

// Start binds a free loopback port and begins accepting connections,
// filtering against domains (exact or "*.suffix" patterns). Lifetime is
// tied to the caller's Close call — started only when policy is
// proxy-filtered, per spec.md §4.B.
func Start(domains []string) (*Filter, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("binding filter proxy: %w", err)
	}
	f := &Filter{ln: ln, domains: domains, closed: make(chan struct{})}
	f.wg.Add(1)
	go f.acceptLoop()
	return f, nil
}

// Addr returns the bound "host:port" for this proxy.
func (f *Filter) Addr() string { return f.ln.Addr().String() }

// Close stops accepting new connections and waits for in-flight ones to
// finish.
func (f *Filter) Close() error {
	close(f.closed)
	err := f.ln.Close()
	f.wg.Wait()
	return err
}

func (f *Filter) acceptLoop() {
	defer f.wg.Done()
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			select {
			case <-f.closed:
				return
			default:
				continue
			}
		}
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.handle(conn)
		}()
	}
}

func (f *Filter) handle(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	peek, err := br.Peek(1)
	if err != nil {
		return
	}

	// SOCKS5 handshakes start with byte 0x05; everything else is
	// treated as HTTP (CONNECT or plain proxied request).
	if peek[0] == 0x05 {
		f.handleSOCKS5(conn, br)
		return
	}
	f.handleHTTP(conn, br)
}

func (f *Filter) allowed(host string) bool {
	host, _, err := net.SplitHostPort(host)
	if err != nil {
		host = stripPort(host)
	}
	return policy.MatchesDomain(host, f.domains)
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i > 0 {
		return host[:i]
	}
	return host
}

// handleHTTP services HTTP-CONNECT tunneling (and plain proxied GETs,
// treated identically for the host-matching purpose). CONNECT tunnels are
// copied by tunnel's io.Copy pair; other requests are relayed through
// net/http/httputil's ReverseProxy.
func (f *Filter) handleHTTP(conn net.Conn, br *bufio.Reader) {
	req, err := http.ReadRequest(br)
	if err != nil {
		return
	}
	if !f.allowed(req.Host) {
		fmt.Fprintf(conn, "HTTP/1.1 403 Forbidden\r\n\r\nblocked by SkillLite network policy\r\n")
		return
	}

	if req.Method == http.MethodConnect {
		dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		upstream, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", req.Host)
		if err != nil {
			fmt.Fprintf(conn, "HTTP/1.1 502 Bad Gateway\r\n\r\n")
			return
		}
		defer upstream.Close()
		fmt.Fprintf(conn, "HTTP/1.1 200 Connection Established\r\n\r\n")
		tunnel(conn, upstream)
		return
	}

	// Non-CONNECT proxied request: relay via httputil's ReverseProxy
	// single-shot round trip.
	rp := httputil.ReverseProxy{
		Director: func(r *http.Request) {
			r.URL.Scheme = "http"
			r.URL.Host = req.Host
		},
	}
	rw := &connResponseWriter{conn: conn}
	rp.ServeHTTP(rw, req)
}

func tunnel(a, b net.Conn) {
	done := make(chan struct{}, 2)
	go func() { io.Copy(a, b); done <- struct{}{} }()
	go func() { io.Copy(b, a); done <- struct{}{} }()
	<-done
	<-done
}

// connResponseWriter adapts a raw net.Conn to http.ResponseWriter for
// the single-shot non-CONNECT relay path.
type connResponseWriter struct {
	conn        net.Conn
	wroteHeader bool
	header      http.Header
}

func (w *connResponseWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (w *connResponseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	fmt.Fprintf(w.conn, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	w.header.Write(w.conn)
	fmt.Fprint(w.conn, "\r\n")
}

func (w *connResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.conn.Write(p)
}
