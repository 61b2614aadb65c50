// Package ingestconfig builds the single validated Config value that every
// other component in this repository is handed at startup. It merges, in
// priority order, CLI flags, then environment variables, then built-in
// defaults, following the same layered-Opt spirit as the teacher
// monorepo's go/common.InitWith bootstrap.
package ingestconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"go.capitolfeed.build/go/skerr"
)

// Known collection codes understood by the discovery component.
var KnownCollections = map[string]bool{
	"BILLS":      true,
	"BILLSTATUS": true,
	"ROLLCALL":   true,
	"BILLSUM":    true,
	"PLAW":       true,
}

// Config is the immutable value object produced once at process start and
// threaded through every component. Nothing in this repository reads flags
// or environment variables outside of FromFlags.
type Config struct {
	StartCongress int
	EndCongress   int

	OutDir      string
	BulkJSON    string
	RetryJSON   string
	LogDir      string

	Concurrency int
	Retries     int

	Collections []string

	Discovery   bool
	Validate    bool
	Download    bool
	Extract     bool
	Postprocess bool

	DatabaseURL string

	Serve     bool
	ServePort string

	DryRun bool
	Limit  int

	LogLevel string
}

// Validate enforces the basic value-object invariants the distilled spec
// assumes but never states explicitly: a sane congress range and
// strictly-positive concurrency/retry limits.
func (c *Config) Validate() error {
	if c.StartCongress <= 0 || c.EndCongress <= 0 {
		return skerr.Fmt("congress numbers must be positive, got start=%d end=%d", c.StartCongress, c.EndCongress)
	}
	if c.StartCongress > c.EndCongress {
		return skerr.Fmt("start-congress (%d) must be <= end-congress (%d)", c.StartCongress, c.EndCongress)
	}
	if c.Concurrency < 1 {
		return skerr.Fmt("concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.Retries < 1 {
		return skerr.Fmt("retries must be >= 1, got %d", c.Retries)
	}
	for _, col := range c.Collections {
		if !KnownCollections[col] {
			return skerr.Fmt("unknown collection code %q", col)
		}
	}
	if c.DatabaseURL != "" {
		if _, err := pgxpool.ParseConfig(c.DatabaseURL); err != nil {
			return skerr.Wrapf(err, "parsing --db connection string")
		}
	}
	return nil
}

// CurrentCongress returns the number of the Congress that is in session (or
// most recently was) at the given time, using the historical rule that a
// new Congress begins on January 3 of every odd year, with Congress 1
// beginning in 1789.
func CurrentCongress(now time.Time) int {
	t := now.UTC()
	year := t.Year()
	// The Congress that began in an odd year Y is numbered
	// (Y-1789)/2 + 1. For an even year, the Congress currently in session
	// began the previous (odd) year; on January 1-2 of an odd year, it
	// began two years earlier.
	if year%2 == 0 {
		year--
	} else if t.Month() == time.January && t.Day() < 3 {
		year -= 2
	}
	return (year-1789)/2 + 1
}

// flagSet mirrors the CLI surface of spec.md section 6.1.
type flagSet struct {
	startCongress int
	endCongress   int
	outDir        string
	bulkJSON      string
	retryJSON     string
	concurrency   int
	retries       int
	collections   []string
	noDiscovery   bool
	validate      bool
	download      bool
	extract       bool
	postprocess   bool
	db            string
	serve         bool
	servePort     string
	dryRun        bool
	limit         int
	logLevel      string
}

// RegisterFlags attaches every flag named in spec.md section 6.1 to cmd.
func RegisterFlags(cmd *cobra.Command) *flagSet {
	fs := &flagSet{}
	flags := cmd.Flags()
	flags.IntVar(&fs.startCongress, "start-congress", 93, "First congress number to consider (93 = 1973, the start of the modern bulk-data era).")
	flags.IntVar(&fs.endCongress, "end-congress", 0, "Last congress number to consider. 0 means compute it from the current date.")
	flags.StringVar(&fs.outDir, "outdir", "", "Root directory for downloaded and extracted files.")
	flags.StringVar(&fs.bulkJSON, "bulk-json", "", "Path to the URL inventory JSON file.")
	flags.StringVar(&fs.retryJSON, "retry-json", "", "Path to the retry journal JSON file.")
	flags.IntVar(&fs.concurrency, "concurrency", 8, "Maximum concurrent downloads.")
	flags.IntVar(&fs.retries, "retries", 5, "Maximum download attempts per URL.")
	flags.StringSliceVar(&fs.collections, "collections", nil, "Comma-separated subset of collection codes to discover/download. Empty means all.")
	flags.BoolVar(&fs.noDiscovery, "no-discovery", false, "Skip the discovery phase and reuse the existing URL inventory.")
	flags.BoolVar(&fs.validate, "validate", false, "Validate URL reachability before downloading.")
	flags.BoolVar(&fs.download, "download", true, "Run the download phase.")
	flags.BoolVar(&fs.extract, "extract", true, "Run the extraction phase.")
	flags.BoolVar(&fs.postprocess, "postprocess", true, "Run the parse+upsert phase.")
	flags.StringVar(&fs.db, "db", "", "Database connection string.")
	flags.BoolVar(&fs.serve, "serve", false, "Run the control server instead of a one-shot pipeline run.")
	flags.StringVar(&fs.servePort, "serve-port", ":8080", "Bind address for the control server.")
	flags.BoolVar(&fs.dryRun, "dry-run", false, "Only run discovery, write the inventory, and exit.")
	flags.IntVar(&fs.limit, "limit", 0, "Maximum number of URLs to download. 0 means no limit.")
	flags.StringVar(&fs.logLevel, "log-level", "info", "Log level name (debug, info, warning, error). Stored in the config only; log output is not filtered by it.")
	return fs
}

// stringEnv returns the environment variable's value, or def if unset/empty.
func stringEnv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// FromFlags merges flags, environment variables, and defaults into a
// validated Config, per the priority order in spec.md section 4.1.
func FromFlags(cmd *cobra.Command, fs *flagSet, now time.Time) (*Config, error) {
	cfg := &Config{
		StartCongress: fs.startCongress,
		EndCongress:   fs.endCongress,
		Concurrency:   fs.concurrency,
		Retries:       fs.retries,
		Collections:   fs.collections,
		Discovery:     !fs.noDiscovery,
		Validate:      fs.validate,
		Download:      fs.download,
		Extract:       fs.extract,
		Postprocess:   fs.postprocess,
		Serve:         fs.serve,
		ServePort:     fs.servePort,
		DryRun:        fs.dryRun,
		Limit:         fs.limit,
		LogLevel:      fs.logLevel,
	}

	cfg.OutDir = firstNonEmpty(fs.outDir, os.Getenv("OUTDIR"), "./outdata")
	cfg.BulkJSON = firstNonEmpty(fs.bulkJSON, os.Getenv("BULK_JSON"), "./bulk_urls.json")
	cfg.RetryJSON = firstNonEmpty(fs.retryJSON, os.Getenv("RETRY_JSON"), "./retry_report.json")
	cfg.LogDir = stringEnv("LOG_DIR", "./logs")
	cfg.DatabaseURL = firstNonEmpty(fs.db, os.Getenv("DATABASE_URL"), "")

	if cfg.EndCongress == 0 {
		cfg.EndCongress = CurrentCongress(now) + 1
	}
	if cfg.StartCongress == 0 {
		cfg.StartCongress = cfg.EndCongress
	}

	if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
		return nil, skerr.Wrapf(err, "creating outdir %s", cfg.OutDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ConfigErrorExitCode is returned by cmd/ingestd on a Config construction
// failure, per spec.md section 6.1.
const ConfigErrorExitCode = 2

// MustExitOnConfigError prints the error and exits with ConfigErrorExitCode.
// Kept as a named helper so the CLI's main() stays a thin wiring function.
func MustExitOnConfigError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(ConfigErrorExitCode)
}
