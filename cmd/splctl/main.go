// Command splctl runs label extraction, bulk download and ingestion from the
// command line, against the same store the server uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dgallion1/splgest/internal/config"
	"github.com/dgallion1/splgest/internal/fetch"
	"github.com/dgallion1/splgest/internal/label"
	"github.com/dgallion1/splgest/internal/markup"
	"github.com/dgallion1/splgest/internal/pipeline"
	"github.com/dgallion1/splgest/internal/store"
)

const (
	Version = "0.1.0"
	appName = "splctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg config.Config
	log *slog.Logger
	out io.Writer
}

func rootCmd() *cobra.Command {
	a := &app{out: os.Stdout}
	var logLevel string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "SPL drug label extractor",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			a.cfg = cfg
			a.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			a.out = cmd.OutOrStdout()
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		a.extractCmd(),
		a.normalizeCmd(),
		a.ingestCmd(),
		a.fetchCmd(),
		a.importTSVCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}

func (a *app) extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract FILE",
		Short: "Extract metadata and sections from one label as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			res, err := label.Extract(raw, label.WithLogger(a.log))
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func (a *app) normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize FILE",
		Short: "Print a label with namespaces stripped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			s, err := markup.NormalizeString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			_, err = io.WriteString(a.out, s)
			return err
		},
	}
}

func (a *app) openStore() (*store.Store, error) {
	st, err := store.Open(a.cfg.DBDriver, a.cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func (a *app) ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest PATH...",
		Short: "Extract XML labels or ZIP archives into the store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			// Indexing stays with the server; the CLI only fills the store.
			orch := pipeline.NewOrchestrator(a.cfg, st, nil, a.log)
			worker := orch.NewWorker()

			failed := 0
			enc := json.NewEncoder(a.out)
			for _, p := range args {
				data, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				job := pipeline.NewJob(filepath.Base(p), data)
				worker.Process(cmd.Context(), job)

				snap := job.Snapshot()
				if snap.Status == pipeline.StatusFailed {
					failed++
				}
				if err := enc.Encode(snap); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(args))
			}
			return nil
		},
	}
}

func (a *app) fetchCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "fetch [URL...]",
		Short: "Download bulk label archives and split openFDA JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := a.cfg.Download
			urls := args
			if len(urls) == 0 {
				urls = d.URLs
			}
			if len(urls) == 0 {
				return fmt.Errorf("no URLs given and api_urls is empty")
			}
			if out == "" {
				out = d.OutputDir
			}

			client := fetch.NewClient(fetch.Options{
				APIKey:         d.APIKey,
				RequestsPerSec: d.RequestsPerSec,
				Timeout:        d.Timeout,
				MaxEntryBytes:  a.cfg.MaxEntryBytes,
				Logger:         a.log,
			})
			sum, err := client.FetchAll(cmd.Context(), resolveURLs(d.EndpointPrefix, urls), out)
			if err != nil {
				return err
			}
			if err := json.NewEncoder(a.out).Encode(sum); err != nil {
				return err
			}
			if sum.Failed == sum.URLs {
				return fmt.Errorf("all %d downloads failed", sum.URLs)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output directory (default from config)")
	return cmd
}

// resolveURLs joins relative entries onto prefix.
func resolveURLs(prefix string, urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if prefix != "" && !strings.Contains(u, "://") {
			u = strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(u, "/")
		}
		out = append(out, u)
	}
	return out
}

func (a *app) importTSVCmd() *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "import-tsv FILE",
		Short: "Load a tab-separated file into a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if table == "" {
				table = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.ImportTSV(cmd.Context(), table, f)
			if err != nil {
				return err
			}
			a.log.Info("imported", "table", store.Identifier(table), "rows", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "Target table (default: file name)")
	return cmd
}
