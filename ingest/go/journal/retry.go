package journal

import (
	"sync"
	"time"
)

// FailureEntry is one URL's failure history (spec.md section 3.3).
type FailureEntry struct {
	URL             string    `json:"url"`
	Attempts        int       `json:"attempts"`
	FirstFailedAt   time.Time `json:"first_failed_at"`
	LastAttemptedAt time.Time `json:"last_attempted_at"`
	LastError       string    `json:"last_error"`
}

// retryDocument is the on-disk shape of the retry journal.
type retryDocument struct {
	Failures []FailureEntry `json:"failures"`
}

// RetryJournal is the durable per-URL failure ledger described in spec.md
// section 4.9. It is not safe to share across processes: callers within one
// process serialize through mtx, and every mutation is flushed to disk
// immediately via the atomic Save primitive above.
type RetryJournal struct {
	path string
	mtx  sync.Mutex
	doc  retryDocument
}

// Open loads (or lazily creates) the retry journal at path.
func Open(path string) *RetryJournal {
	rj := &RetryJournal{path: path}
	Load(path, &rj.doc)
	return rj
}

// nowFn exists so tests can pin "now" without relying on wall-clock timing.
var nowFn = time.Now

// Add records a failed attempt for url. If the url is already present, its
// attempt count is incremented and last_attempted_at/last_error are
// updated; otherwise a new entry is created with attempts=1 and both
// timestamps equal to now.
func (rj *RetryJournal) Add(url string, errMsg string) error {
	rj.mtx.Lock()
	defer rj.mtx.Unlock()

	now := nowFn()
	for i := range rj.doc.Failures {
		if rj.doc.Failures[i].URL == url {
			rj.doc.Failures[i].Attempts++
			rj.doc.Failures[i].LastAttemptedAt = now
			rj.doc.Failures[i].LastError = errMsg
			return Save(rj.path, &rj.doc)
		}
	}
	rj.doc.Failures = append(rj.doc.Failures, FailureEntry{
		URL:             url,
		Attempts:        1,
		FirstFailedAt:   now,
		LastAttemptedAt: now,
		LastError:       errMsg,
	})
	return Save(rj.path, &rj.doc)
}

// Remove deletes the entry for url, if present. A no-op (not an error) if
// the url has no entry.
func (rj *RetryJournal) Remove(url string) error {
	rj.mtx.Lock()
	defer rj.mtx.Unlock()

	for i := range rj.doc.Failures {
		if rj.doc.Failures[i].URL == url {
			rj.doc.Failures = append(rj.doc.Failures[:i], rj.doc.Failures[i+1:]...)
			return Save(rj.path, &rj.doc)
		}
	}
	return nil
}

// Candidates returns the URLs with fewer than maxAttempts recorded
// attempts -- the set eligible for another retry pass.
func (rj *RetryJournal) Candidates(maxAttempts int) []string {
	rj.mtx.Lock()
	defer rj.mtx.Unlock()

	out := make([]string, 0, len(rj.doc.Failures))
	for _, f := range rj.doc.Failures {
		if f.Attempts < maxAttempts {
			out = append(out, f.URL)
		}
	}
	return out
}

// Count returns the number of failure entries currently recorded, for the
// control server's /status and /metrics endpoints.
func (rj *RetryJournal) Count() int {
	rj.mtx.Lock()
	defer rj.mtx.Unlock()
	return len(rj.doc.Failures)
}

// Entries returns a copy of the current failure entries.
func (rj *RetryJournal) Entries() []FailureEntry {
	rj.mtx.Lock()
	defer rj.mtx.Unlock()
	out := make([]FailureEntry, len(rj.doc.Failures))
	copy(out, rj.doc.Failures)
	return out
}
