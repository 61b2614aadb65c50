// Command ingestd runs the legislative bulk-data ingestion pipeline: either
// a single discover/validate/download/extract/postprocess pass, or, with
// --serve, a long-lived control server that accepts /start and /retry
// requests over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"go.capitolfeed.build/go/sklog"
	"go.capitolfeed.build/ingest/go/control"
	"go.capitolfeed.build/ingest/go/ingestconfig"
	"go.capitolfeed.build/ingest/go/orchestrate"
	"go.capitolfeed.build/ingest/go/store"
)

// Exit codes, per spec.md section 6.1/7: 0 success, 1 a phase failed
// ungracefully (e.g. the store could not be reached), 2 bad configuration.
const (
	exitOK          = 0
	exitRunFailure  = 1
	exitConfigError = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := &cobra.Command{
		Use:   "ingestd",
		Short: "Bulk-ingests U.S. legislative open data into a relational store.",
	}
	flags := ingestconfig.RegisterFlags(cmd)

	exitCode := exitOK
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := ingestconfig.FromFlags(cmd, flags, time.Now())
		if err != nil {
			ingestconfig.MustExitOnConfigError(err)
			return nil // unreachable, MustExitOnConfigError exits the process
		}

		if err := sklog.SetLogDir(cfg.LogDir); err != nil {
			sklog.Warningf("ingestd: could not set up rotating log dir %s: %s", cfg.LogDir, err)
		}
		defer sklog.Flush()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var st *store.Store
		if cfg.DatabaseURL != "" {
			st, err = store.New(ctx, cfg.DatabaseURL)
			if err != nil {
				sklog.Errorf("ingestd: connecting to database: %s", err)
				exitCode = exitRunFailure
				return nil
			}
			defer st.Close()

			if err := st.Migrate(ctx); err != nil {
				sklog.Errorf("ingestd: running migrations: %s", err)
				exitCode = exitRunFailure
				return nil
			}
		} else if cfg.Postprocess {
			color.Yellow("no --db configured; postprocess phase will be skipped")
		}

		orch := orchestrate.New(st)

		bars := map[string]*progressbar.ProgressBar{}
		orch.OnProgress = func(url string, written, total int64) {
			bar, ok := bars[url]
			if !ok {
				bar = progressbar.DefaultBytes(total, "downloading "+shortURL(url))
				bars[url] = bar
			}
			_ = bar.Set64(written)
		}

		if cfg.Serve {
			srv := control.New(ctx, cfg, orch)
			color.Cyan("ingestd: serving control API on %s", cfg.ServePort)
			httpServer := &http.Server{Addr: cfg.ServePort, Handler: srv.Router}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
			}()
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				sklog.Errorf("ingestd: control server exited: %s", err)
				exitCode = exitRunFailure
			}
			return nil
		}

		color.Cyan("ingestd: discovering bulk data for congresses %d-%d", cfg.StartCongress, cfg.EndCongress)
		summary, err := orch.Run(ctx, cfg)
		if summary != nil {
			printSummary(summary)
			fmt.Printf("  log dir:      %s\n", cfg.LogDir)
		}
		if err != nil {
			sklog.Errorf("ingestd: pipeline run had store errors: %s", err)
			exitCode = exitRunFailure
			return nil
		}

		return nil
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	return exitCode
}

// shortURL trims a URL down to its path's final segment, keeping progress
// bar labels readable.
func shortURL(rawURL string) string {
	if idx := strings.LastIndex(rawURL, "/"); idx >= 0 && idx+1 < len(rawURL) {
		return rawURL[idx+1:]
	}
	return rawURL
}

func printSummary(s *orchestrate.Summary) {
	color.Green("ingestd: run complete")
	fmt.Printf("  discovered:   %d urls\n", s.DiscoveredURLCount)
	if s.ValidatedURLCount > 0 {
		fmt.Printf("  validated:    %d urls\n", s.ValidatedURLCount)
	}
	fmt.Printf("  downloaded:   %d ok, %d failed (%s)\n", s.Downloaded, s.DownloadFailed, byteCount(s.BytesWritten))
	fmt.Printf("  extracted:    %d ok, %d failed\n", s.Extracted, s.ExtractFailed)
	fmt.Printf("  bills:        %d upserted\n", s.BillsUpserted)
	fmt.Printf("  votes:        %d upserted\n", s.VotesUpserted)
	fmt.Printf("  legislators:  %d upserted\n", s.LegislatorsUpserted)
}

// byteCount formats n bytes the way the rest of this command's logging
// does, e.g. in the eventual per-file download log lines.
func byteCount(n int64) string {
	return humanize.Bytes(uint64(n))
}
