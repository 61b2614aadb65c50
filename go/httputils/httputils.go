// Package httputils collects small HTTP helpers shared by the discovery,
// validation, and download components: a dialer with a sane connect
// timeout, a client constructor built on it, and the fixed health-check
// handler used by the control server.
package httputils

import (
	"context"
	"net"
	"net/http"
	"time"
)

// FastDialTimeout is used as the Dial function for http.Transports in this
// repository so a single slow DNS lookup or TCP handshake can't stall a
// whole worker indefinitely.
func FastDialTimeout(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: 5 * time.Second}
	return d.DialContext(ctx, network, addr)
}

// NewTimeoutClient returns an *http.Client whose Transport uses
// FastDialTimeout and whose overall per-request timeout is the given
// duration. A timeout of 0 means no client-side timeout (used for the
// downloader, which manages its own per-chunk deadlines via context).
func NewTimeoutClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           FastDialTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 20 * time.Second,
		},
	}
}

// ReadyHandleFunc is a fixed 200-OK handler, used by the control server's
// /health endpoint: it reports liveness without touching any shared state.
func ReadyHandleFunc(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
