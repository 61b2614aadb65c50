// Package validate filters a list of URLs down to those that answer a
// reachability probe, without mutating the input.
package validate

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"go.capitolfeed.build/go/sklog"
)

const probeTimeout = 20 * time.Second

// perHostLimiter hands out a rate.Limiter per host, creating one on first
// use. 2 req/s with a burst of 4 is a conservative default for publisher
// sites that were never designed for bulk scraping.
type perHostLimiter struct {
	mtx      sync.Mutex
	limiters map[string]*rate.Limiter
}

func newPerHostLimiter() *perHostLimiter {
	return &perHostLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (p *perHostLimiter) forHost(host string) *rate.Limiter {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	l, ok := p.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(2), 4)
		p.limiters[host] = l
	}
	return l
}

// Filter returns the subset of urls that pass a reachability probe: a HEAD
// request, falling back to a short range-limited GET if the server rejects
// HEAD with a 405 or a transport error. Results are memoized per URL within
// one call so a URL reachable from more than one discovery subfield is only
// probed once. The input slice is never mutated.
func Filter(ctx context.Context, urls []string, client *http.Client) []string {
	memo := cache.New(5*time.Minute, 10*time.Minute)
	limiter := newPerHostLimiter()

	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if cached, found := memo.Get(u); found {
			if cached.(bool) {
				out = append(out, u)
			}
			continue
		}
		ok := probe(ctx, client, u, limiter)
		memo.Set(u, ok, cache.DefaultExpiration)
		if ok {
			out = append(out, u)
		}
	}
	return out
}

func probe(ctx context.Context, client *http.Client, rawURL string, limiter *perHostLimiter) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		sklog.Debugf("validate: unparseable url %s: %s", rawURL, err)
		return false
	}

	if l := limiter.forHost(parsed.Host); l != nil {
		if err := l.Wait(ctx); err != nil {
			return false
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		sklog.Debugf("validate: building HEAD request for %s: %s", rawURL, err)
		return false
	}
	resp, err := client.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode < 400 {
			return true
		}
		if resp.StatusCode != http.StatusMethodNotAllowed {
			sklog.Debugf("validate: HEAD %s returned status %d", rawURL, resp.StatusCode)
			return false
		}
	} else {
		sklog.Debugf("validate: HEAD %s failed: %s", rawURL, err)
	}

	getReq, err := http.NewRequestWithContext(probeCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}
	getReq.Header.Set("Range", "bytes=0-4095")
	getResp, err := client.Do(getReq)
	if err != nil {
		sklog.Debugf("validate: range GET %s failed: %s", rawURL, err)
		return false
	}
	defer getResp.Body.Close()
	if getResp.StatusCode >= 400 {
		sklog.Debugf("validate: range GET %s returned status %d", rawURL, getResp.StatusCode)
		return false
	}
	return true
}
