// Package discovery builds the URL inventory: the set of bulk-data URLs to
// download, gathered from template expansion plus a handful of best-effort
// HTML crawls. Discovery as a whole never fails -- a crawl that errors
// contributes an empty list to its field and is logged at warn.
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/net/html"

	"go.capitolfeed.build/go/sklog"
	"go.capitolfeed.build/ingest/go/ingestconfig"
	"go.capitolfeed.build/ingest/go/journal"
)

// Inventory is the discovery component's output document (spec.md section
// 3.1). It round-trips through the journal store.
type Inventory struct {
	GovInfoTemplatesExpanded []string `json:"govinfo_templates_expanded"`
	GovInfoIndexDiscovered   []string `json:"govinfo_index_discovered"`
	GovTrack                 []string `json:"govtrack"`
	OpenStates               []string `json:"openstates"`
	LegislatorsReference     []string `json:"legislators_reference"`
	AggregateURLs            []string `json:"aggregate_urls"`
}

var chambers = []string{"hr", "house", "senate", "s"}

// collectionTemplates maps a collection code to a fmt.Sprintf format string
// taking (congress, chamber). These are fixed constants of the publisher's
// bulk-data layout, not user-configurable.
var collectionTemplates = map[string]string{
	"BILLS":      "https://www.govinfo.gov/bulkdata/BILLS/%d/%s/BILLS-%d-%s.xml",
	"BILLSTATUS": "https://www.govinfo.gov/bulkdata/BILLSTATUS/%d/%s/BILLSTATUS-%d-%s.xml",
	"ROLLCALL":   "https://www.govinfo.gov/bulkdata/ROLLCALL/%d/%s/ROLLCALL-%d-%s.xml",
	"BILLSUM":    "https://www.govinfo.gov/bulkdata/BILLSUM/%d/%s/BILLSUM-%d-%s.xml",
	"PLAW":       "https://www.govinfo.gov/bulkdata/PLAW/%d/%s/PLAW-%d-%s.xml",
}

const govInfoIndexURL = "https://www.govinfo.gov/bulkdata/"

var secondaryPublisherIndexes = []string{
	"https://www.govtrack.us/data/congress/",
}

const aggregatorDownloadPage = "https://www.openstates.org/downloads/"
const aggregatorMirrorURL = "https://data.openstates.org/legislators/legislators.zip"

// legislatorsReferenceFiles is the fixed list of canonical legislator
// reference JSON URLs, unaffected by congress range or collection filter.
var legislatorsReferenceFiles = []string{
	"https://theunitedstates.io/congress-legislators/legislators-current.json",
	"https://theunitedstates.io/congress-legislators/legislators-historical.json",
}

// bulkDataSuffixes and bulkDataPathPrefixes implement the "looks like bulk
// data" link heuristic shared by every HTML crawl.
var bulkDataSuffixes = []string{".xml", ".zip", ".tar.gz", ".tgz"}
var bulkDataPathPrefixes = []string{"/bulkdata/", "/data/congress/", "/downloads/"}

func looksLikeBulkData(href string) bool {
	for _, suf := range bulkDataSuffixes {
		if strings.HasSuffix(href, suf) {
			return true
		}
	}
	for _, p := range bulkDataPathPrefixes {
		if strings.Contains(href, p) {
			return true
		}
	}
	return false
}

// Run builds the URL inventory and persists it to cfg.BulkJSON through the
// journal store, returning the in-memory document as well.
func Run(ctx context.Context, cfg *ingestconfig.Config, client *http.Client) *Inventory {
	inv := &Inventory{
		GovInfoTemplatesExpanded: expandTemplates(cfg),
	}

	var errs *multierror.Error

	discovered, err := crawlIndex(ctx, client, govInfoIndexURL)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("index crawl: %w", err))
	}
	inv.GovInfoIndexDiscovered = dedupeOrdered(discovered)

	var secondary []string
	for _, page := range secondaryPublisherIndexes {
		links, err := crawlSecondary(ctx, client, page)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("secondary crawl %s: %w", page, err))
			continue
		}
		secondary = append(secondary, links...)
	}
	inv.GovTrack = dedupeOrdered(secondary)

	aggregator, err := crawlAggregator(ctx, client, aggregatorDownloadPage)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("aggregator crawl: %w", err))
	}
	inv.OpenStates = dedupeOrdered(append(aggregator, aggregatorMirrorURL))

	inv.LegislatorsReference = dedupeOrdered(referenceFiles())

	inv.AggregateURLs = dedupeOrdered(concat(
		inv.GovInfoTemplatesExpanded,
		inv.GovInfoIndexDiscovered,
		inv.GovTrack,
		inv.OpenStates,
		inv.LegislatorsReference,
	))

	if errs != nil {
		errs.ErrorFormat = multierror.ListFormatFunc
		sklog.Warningf("discovery: %d subfield crawl(s) failed: %s", errs.Len(), errs)
	}

	if err := journal.Save(cfg.BulkJSON, inv); err != nil {
		sklog.Errorf("discovery: failed to save inventory to %s: %s", cfg.BulkJSON, err)
	}
	return inv
}

// expandTemplates is the pure, network-free half of discovery: the
// Cartesian product of configured collections x configured congress range x
// the fixed chamber set.
func expandTemplates(cfg *ingestconfig.Config) []string {
	collections := cfg.Collections
	if len(collections) == 0 {
		for code := range collectionTemplates {
			collections = append(collections, code)
		}
	}

	var out []string
	for _, code := range collections {
		tmpl, ok := collectionTemplates[code]
		if !ok {
			continue
		}
		for congress := cfg.StartCongress; congress <= cfg.EndCongress; congress++ {
			for _, chamber := range chambers {
				out = append(out, fmt.Sprintf(tmpl, congress, chamber, congress, chamber))
			}
		}
	}
	return dedupeOrdered(out)
}

func referenceFiles() []string {
	out := make([]string, len(legislatorsReferenceFiles))
	copy(out, legislatorsReferenceFiles)
	return out
}

// crawlIndex fetches one HTML page and returns every href that looks like
// bulk data, resolved against the page's own URL.
func crawlIndex(ctx context.Context, client *http.Client, pageURL string) ([]string, error) {
	return crawlPage(ctx, client, pageURL)
}

// crawlSecondary is crawlIndex applied to a directory-listing page; the
// extraction logic is identical, only the source URL differs.
func crawlSecondary(ctx context.Context, client *http.Client, pageURL string) ([]string, error) {
	return crawlPage(ctx, client, pageURL)
}

// crawlAggregator fetches the aggregator's download page and extracts its
// zip archive links; the mirror URL is appended by the caller.
func crawlAggregator(ctx context.Context, client *http.Client, pageURL string) ([]string, error) {
	links, err := crawlPage(ctx, client, pageURL)
	if err != nil {
		return nil, err
	}
	var zips []string
	for _, l := range links {
		if strings.HasSuffix(strings.ToLower(l), ".zip") {
			zips = append(zips, l)
		}
	}
	return zips, nil
}

func crawlPage(ctx context.Context, client *http.Client, pageURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: status %d", pageURL, resp.StatusCode)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if !looksLikeBulkData(attr.Val) {
					continue
				}
				ref, err := url.Parse(attr.Val)
				if err != nil {
					continue
				}
				out = append(out, base.ResolveReference(ref).String())
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

// dedupeOrdered removes duplicates while preserving first-seen order. It is
// the one helper used to enforce that invariant for every Inventory field.
func dedupeOrdered(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
