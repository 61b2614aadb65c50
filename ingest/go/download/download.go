// Package download is the concurrency core of the pipeline: it fetches a
// list of URLs to a local output root with bounded parallelism, resume
// support, and exponential-backoff retries, recording terminal failures in
// a retry journal.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"go.capitolfeed.build/go/sklog"
	"go.capitolfeed.build/ingest/go/journal"
	"go.capitolfeed.build/ingest/go/metrics"
)

// Result is the outcome of attempting to fetch one URL (spec.md section
// 3.2). ok=true implies LocalPath exists, BytesWritten >= 0, and
// ErrorMessage is nil.
type Result struct {
	URL          string
	LocalPath    string
	OK           bool
	BytesWritten int64
	ErrorMessage *string
	HTTPStatus   *int
	Attempts     int
}

// ProgressFunc is invoked once per streamed chunk: url, bytes written so
// far for that url, and the total if known (0 if unknown).
type ProgressFunc func(url string, written, total int64)

// Options configures a Run call.
type Options struct {
	OutRoot        string
	MaxConcurrency int
	MaxAttempts    int
	RetryJournal   *journal.RetryJournal
	Client         *http.Client
	OnProgress     ProgressFunc
}

const chunkSize = 32 * 1024

// chunkReadTimeout bounds the gap between two successful chunk reads of a
// GET response body (spec.md section 5): a server that stops sending bytes
// mid-download, rather than closing the connection, would otherwise hang
// a worker indefinitely.
const chunkReadTimeout = 120 * time.Second

// probeTimeout bounds a single HEAD probe (spec.md section 5).
const probeTimeout = 20 * time.Second

// hostLimiters hands out one rate.Limiter per host, shared across all
// workers in a single Run call so concurrent workers hitting the same
// publisher are throttled together.
type hostLimiters struct {
	mtx sync.Mutex
	m   map[string]*rate.Limiter
}

func newHostLimiters() *hostLimiters {
	return &hostLimiters{m: make(map[string]*rate.Limiter)}
}

func (h *hostLimiters) forHost(host string) *rate.Limiter {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	l, ok := h.m[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(4), 8)
		h.m[host] = l
	}
	return l
}

// Run downloads every URL in urls to opts.OutRoot with up to
// opts.MaxConcurrency workers in flight at once. It returns one Result per
// input URL, in no particular order. Cancelling ctx aborts in-flight
// requests; partial files are left on disk for a later resume.
func Run(ctx context.Context, urls []string, opts Options) []Result {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	sem := semaphore.NewWeighted(int64(opts.MaxConcurrency))
	limiters := newHostLimiters()

	results := make([]Result, len(urls))
	g, gctx := errgroup.WithContext(ctx)

	for i, u := range urls {
		i, u := i, u
		if err := sem.Acquire(gctx, 1); err != nil {
			results[i] = Result{URL: u, OK: false, ErrorMessage: strPtr(err.Error())}
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			metrics.ActiveWorkers.Inc()
			defer metrics.ActiveWorkers.Dec()
			results[i] = fetchOne(gctx, client, u, opts, limiters)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func fetchOne(ctx context.Context, client *http.Client, rawURL string, opts Options, limiters *hostLimiters) Result {
	res := Result{URL: rawURL}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		msg := err.Error()
		res.ErrorMessage = &msg
		return res
	}

	localPath := derivePath(opts.OutRoot, parsed)
	res.LocalPath = localPath
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		msg := err.Error()
		res.ErrorMessage = &msg
		return res
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 60 * time.Second
	bo.RandomizationFactor = 0.25

	var attempts int
	op := func() error {
		attempts++
		if l := limiters.forHost(parsed.Host); l != nil {
			if err := l.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		status, written, err := attemptFetch(ctx, client, rawURL, localPath, opts.OnProgress)
		res.HTTPStatus = status
		res.BytesWritten = written
		if err == nil {
			return nil
		}
		if status != nil && isTerminalStatus(*status) {
			return backoff.Permanent(err)
		}
		return err
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	boCtx := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxAttempts-1)), ctx)
	err = backoff.Retry(op, boCtx)
	res.Attempts = attempts

	if err != nil {
		msg := err.Error()
		res.ErrorMessage = &msg
		res.OK = false
		if opts.RetryJournal != nil {
			if addErr := opts.RetryJournal.Add(rawURL, msg); addErr != nil {
				sklog.Errorf("download: failed to record retry journal entry for %s: %s", rawURL, addErr)
			}
		}
		sklog.Warningf("download: %s failed after %d attempt(s): %s", rawURL, res.Attempts, msg)
		return res
	}

	res.OK = true
	if opts.RetryJournal != nil {
		if rmErr := opts.RetryJournal.Remove(rawURL); rmErr != nil {
			sklog.Errorf("download: failed to clear retry journal entry for %s: %s", rawURL, rmErr)
		}
	}
	sklog.Infof("download: %s complete (%s)", rawURL, humanize.Bytes(uint64(res.BytesWritten)))
	return res
}

// isTerminalStatus reports whether a 4xx status should short-circuit
// retries. 408 (timeout), 425 (too early), and 429 (rate limited) are
// treated as transient.
func isTerminalStatus(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	default:
		return true
	}
}

// derivePath computes <outroot>/<host>/<last-path-segment>.
func derivePath(outRoot string, u *url.URL) string {
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		base = "index"
	}
	return filepath.Join(outRoot, u.Host, base)
}

// attemptFetch probes the URL, decides whether the local file is already
// complete or resumable, and streams the remainder to disk. It returns the
// HTTP status observed (if any) and the total bytes now on disk.
func attemptFetch(ctx context.Context, client *http.Client, rawURL, localPath string, onProgress ProgressFunc) (*int, int64, error) {
	contentLength, acceptsRanges, probeStatus, err := probe(ctx, client, rawURL)
	if err != nil {
		return probeStatus, 0, err
	}

	existing := localSize(localPath)
	if contentLength >= 0 && existing == contentLength {
		return probeStatus, existing, nil
	}

	rangeStart := int64(0)
	flags := os.O_CREATE | os.O_WRONLY
	if existing > 0 && acceptsRanges && (contentLength < 0 || existing < contentLength) {
		rangeStart = existing
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	// getCtx is cancelled if no chunk arrives within chunkReadTimeout; the
	// timer is reset on every successful read so a slow-but-steady transfer
	// is never killed, only a stalled one.
	getCtx, cancelGet := context.WithCancel(ctx)
	defer cancelGet()
	stallTimer := time.AfterFunc(chunkReadTimeout, cancelGet)
	defer stallTimer.Stop()

	req, err := http.NewRequestWithContext(getCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, existing, err
	}
	if rangeStart > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", rangeStart))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, existing, err
	}
	defer resp.Body.Close()
	status := resp.StatusCode

	if status != http.StatusOK && status != http.StatusPartialContent {
		return &status, existing, fmt.Errorf("unexpected status %d fetching %s", status, rawURL)
	}

	f, err := os.OpenFile(localPath, flags, 0644)
	if err != nil {
		return &status, existing, err
	}
	defer f.Close()

	written := rangeStart
	buf := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			stallTimer.Reset(chunkReadTimeout)
			if _, werr := f.Write(buf[:n]); werr != nil {
				return &status, written, werr
			}
			written += int64(n)
			if onProgress != nil {
				onProgress(rawURL, written, contentLength)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return &status, written, readErr
		}
	}
	return &status, written, nil
}

// probe issues a HEAD request to read Content-Length and range support.
// A probe failure is not itself fatal -- callers fall back to a full GET
// with unknown length and no assumed range support.
func probe(ctx context.Context, client *http.Client, rawURL string) (contentLength int64, acceptsRanges bool, status *int, err error) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return -1, false, nil, nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return -1, false, nil, nil
	}
	defer resp.Body.Close()
	st := resp.StatusCode
	if st >= 400 {
		return -1, false, &st, nil
	}
	return resp.ContentLength, resp.Header.Get("Accept-Ranges") == "bytes", &st, nil
}

func localSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func strPtr(s string) *string { return &s }
