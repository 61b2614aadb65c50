// Package orchestrate sequences the pipeline's phases: discovery, then
// optional validation, then download, then extraction, then parse+upsert.
// Each phase is independently skippable by config flag; a strict
// happens-before barrier separates every phase.
package orchestrate

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"go.capitolfeed.build/go/httputils"
	"go.capitolfeed.build/go/skerr"
	"go.capitolfeed.build/go/sklog"
	"go.capitolfeed.build/ingest/go/discovery"
	"go.capitolfeed.build/ingest/go/download"
	"go.capitolfeed.build/ingest/go/extract"
	"go.capitolfeed.build/ingest/go/ingestconfig"
	"go.capitolfeed.build/ingest/go/journal"
	"go.capitolfeed.build/ingest/go/metrics"
	"go.capitolfeed.build/ingest/go/parse"
	"go.capitolfeed.build/ingest/go/store"
	"go.capitolfeed.build/ingest/go/validate"
)

// Summary aggregates per-phase counts, used by the CLI's final summary
// line. The control server does not read it.
type Summary struct {
	DiscoveredURLCount int
	ValidatedURLCount  int
	Downloaded         int
	DownloadFailed     int
	BytesWritten       int64
	Extracted          int
	ExtractFailed      int
	BillsUpserted      int
	VotesUpserted      int
	LegislatorsUpserted int
}

// discoveryProbeTimeout bounds the page fetches discovery and validate make;
// the downloader manages its own per-request timeouts (see download.go) and
// so uses a separate, unbounded-overall-timeout client.
const discoveryProbeTimeout = 20 * time.Second

// Orchestrator holds the long-lived collaborators a pipeline run needs: an
// HTTP client for discovery/validation, a separate one for download, and an
// optional database store for the parse+upsert phase.
type Orchestrator struct {
	Client         *http.Client
	DownloadClient *http.Client
	Store          *store.Store
	OnProgress     download.ProgressFunc
}

// New builds an Orchestrator with sane default HTTP clients: a
// timeout-bounded client for discovery/validation's short requests, and a
// separate client with no overall request timeout for the downloader,
// which streams arbitrarily large files and enforces its own per-chunk
// stall timeout instead (spec.md section 5). store may be nil if the
// postprocess phase is disabled.
func New(st *store.Store) *Orchestrator {
	return &Orchestrator{
		Client:         httputils.NewTimeoutClient(discoveryProbeTimeout),
		DownloadClient: httputils.NewTimeoutClient(0),
		Store:          st,
	}
}

// Run executes the pipeline according to cfg, returning an aggregated
// Summary. Every phase it runs is fully drained before the next begins.
func (o *Orchestrator) Run(ctx context.Context, cfg *ingestconfig.Config) (*Summary, error) {
	summary := &Summary{}

	var inv *discovery.Inventory
	if cfg.Discovery {
		inv = discovery.Run(ctx, cfg, o.Client)
	} else {
		inv = &discovery.Inventory{}
		journal.Load(cfg.BulkJSON, inv)
	}
	summary.DiscoveredURLCount = len(inv.AggregateURLs)

	if cfg.DryRun {
		sklog.Infof("orchestrate: dry run complete, %d urls discovered", summary.DiscoveredURLCount)
		return summary, nil
	}

	urls := inv.AggregateURLs
	if cfg.Validate {
		urls = validate.Filter(ctx, urls, o.Client)
	}
	summary.ValidatedURLCount = len(urls)

	if cfg.Limit > 0 && len(urls) > cfg.Limit {
		urls = urls[:cfg.Limit]
	}

	var downloadResults []download.Result
	if cfg.Download {
		rj := journal.Open(cfg.RetryJSON)
		downloadResults = download.Run(ctx, urls, download.Options{
			OutRoot:        cfg.OutDir,
			MaxConcurrency: cfg.Concurrency,
			MaxAttempts:    cfg.Retries,
			RetryJournal:   rj,
			Client:         o.DownloadClient,
			OnProgress:     o.OnProgress,
		})
		for _, r := range downloadResults {
			if r.OK {
				summary.Downloaded++
				metrics.DownloadsSucceeded.Inc()
			} else {
				summary.DownloadFailed++
				metrics.DownloadsFailed.Inc()
			}
			metrics.DownloadsAttempted.Inc()
			metrics.BytesWritten.Add(float64(r.BytesWritten))
			summary.BytesWritten += r.BytesWritten
		}
		metrics.RetryCandidates.Set(float64(len(rj.Candidates(cfg.Retries))))
	}

	var extractedDirs []string
	if cfg.Extract {
		var archivePaths []string
		for _, r := range downloadResults {
			if r.OK && looksLikeArchive(r.LocalPath) {
				archivePaths = append(archivePaths, r.LocalPath)
			}
		}
		extractResults := extract.Run(archivePaths, extract.Options{})
		for _, r := range extractResults {
			if r.OK {
				summary.Extracted++
				extractedDirs = append(extractedDirs, *r.Destination)
			} else {
				summary.ExtractFailed++
			}
		}
	}

	if cfg.Postprocess && o.Store != nil {
		if err := o.postprocess(ctx, downloadResults, extractedDirs, summary); err != nil {
			return summary, skerr.Wrapf(err, "postprocess phase had store errors")
		}
	}

	return summary, nil
}

// RunRetries re-attempts every URL currently eligible for retry in the
// retry journal, reusing the same download machinery as a normal run.
func (o *Orchestrator) RunRetries(ctx context.Context, cfg *ingestconfig.Config) (*Summary, error) {
	rj := journal.Open(cfg.RetryJSON)
	candidates := rj.Candidates(cfg.Retries)

	summary := &Summary{ValidatedURLCount: len(candidates)}
	results := download.Run(ctx, candidates, download.Options{
		OutRoot:        cfg.OutDir,
		MaxConcurrency: cfg.Concurrency,
		MaxAttempts:    cfg.Retries,
		RetryJournal:   rj,
		Client:         o.DownloadClient,
	})
	for _, r := range results {
		if r.OK {
			summary.Downloaded++
			metrics.DownloadsSucceeded.Inc()
		} else {
			summary.DownloadFailed++
			metrics.DownloadsFailed.Inc()
		}
		metrics.DownloadsAttempted.Inc()
		metrics.BytesWritten.Add(float64(r.BytesWritten))
	}
	metrics.RetryCandidates.Set(float64(len(rj.Candidates(cfg.Retries))))
	return summary, nil
}

// postprocess parses and upserts every downloaded/extracted file it
// recognizes. A parse failure is logged and skipped (the file is simply not
// usable data, not a pipeline defect). A store failure is different: it
// means data this run successfully parsed was not durably recorded, so it
// is accumulated into a multierror and returned rather than swallowed --
// the caller maps a non-nil return to a partial-failure exit code. Prior
// successful upserts in the same run are not rolled back.
func (o *Orchestrator) postprocess(ctx context.Context, downloadResults []download.Result, extractedDirs []string, summary *Summary) error {
	var files []string
	for _, r := range downloadResults {
		if r.OK && !looksLikeArchive(r.LocalPath) {
			files = append(files, r.LocalPath)
		}
	}
	for _, dir := range extractedDirs {
		files = append(files, walkFiles(dir)...)
	}

	var storeErrs *multierror.Error
	for _, f := range files {
		switch {
		case strings.Contains(strings.ToLower(f), "billstatus"):
			bills, err := parse.ParseBillStatus(f)
			if err != nil {
				sklog.Warningf("orchestrate: parsing bill-status file %s: %s", f, err)
				continue
			}
			for _, b := range bills {
				if _, err := o.Store.UpsertBill(ctx, b); err != nil {
					sklog.Errorf("orchestrate: upserting bill from %s: %s", f, err)
					storeErrs = multierror.Append(storeErrs, skerr.Wrapf(err, "upserting bill from %s", f))
					continue
				}
				summary.BillsUpserted++
			}
		case strings.Contains(strings.ToLower(f), "rollcall"):
			votes, err := parse.ParseRollcall(f)
			if err != nil {
				sklog.Warningf("orchestrate: parsing rollcall file %s: %s", f, err)
				continue
			}
			for _, v := range votes {
				if _, err := o.Store.UpsertVote(ctx, v); err != nil {
					sklog.Errorf("orchestrate: upserting vote from %s: %s", f, err)
					storeErrs = multierror.Append(storeErrs, skerr.Wrapf(err, "upserting vote from %s", f))
					continue
				}
				summary.VotesUpserted++
			}
		case strings.HasSuffix(strings.ToLower(f), ".json"):
			legs, err := parse.ParseLegislators(f)
			if err != nil {
				sklog.Warningf("orchestrate: parsing legislator file %s: %s", f, err)
				continue
			}
			for _, l := range legs {
				if _, err := o.Store.UpsertLegislator(ctx, l); err != nil {
					sklog.Errorf("orchestrate: upserting legislator from %s: %s", f, err)
					storeErrs = multierror.Append(storeErrs, skerr.Wrapf(err, "upserting legislator from %s", f))
					continue
				}
				summary.LegislatorsUpserted++
			}
		}
	}
	return storeErrs.ErrorOrNil()
}

func looksLikeArchive(path string) bool {
	for _, suf := range []string{".zip", ".tar.gz", ".tgz", ".tar"} {
		if strings.HasSuffix(path, suf) {
			return true
		}
	}
	return false
}

// walkFiles lists every regular file directly and recursively under dir.
func walkFiles(dir string) []string {
	var out []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		if e.IsDir() {
			out = append(out, walkFiles(full)...)
		} else {
			out = append(out, full)
		}
	}
	return out
}
