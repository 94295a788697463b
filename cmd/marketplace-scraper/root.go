package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/maltedev/marketplace-scraper/internal/config"
	"github.com/maltedev/marketplace-scraper/internal/scraper"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command. Without a subcommand it asks for the
// mode and input interactively.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marketplace-scraper",
		Short: "Scrape marketplace search results, catalogs and seller offers",
		Long: `marketplace-scraper drives a stealth Chromium session through marketplace
search pages, the landing-page catalog and the other-sellers fragment of a
product, and exports what it finds to xlsx (and optionally JSON) files.

Run without a subcommand to pick a mode interactively:
  0 - search and export cards by query
  1 - cheaper offers for a product url or id
  2 - cheaper offers for a list of product urls or ids
  3 - search, then cheaper offers for every result

Configuration comes from the environment and an optional .env file.`,
		Version:       getVersion(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := promptRequest(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return runRequest(cmd, req)
		},
	}

	cmd.PersistentFlags().Bool("json", false, "Also write search and catalog results as JSON")
	cmd.PersistentFlags().StringP("output", "o", "", "Directory for exported files (overrides SCRAPER_OUTPUT_DIR)")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	cmd.PersistentFlags().Bool("headful", false, "Show the browser window")

	cmd.AddCommand(NewSearchCmd())
	cmd.AddCommand(NewOffersCmd())
	cmd.AddCommand(NewSearchOffersCmd())
	cmd.AddCommand(NewCatalogCmd())
	cmd.AddCommand(NewFlattenCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("json") {
		cfg.Scraper.WriteJSON, _ = flags.GetBool("json")
	}
	if flags.Changed("output") {
		cfg.Scraper.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if headful, _ := flags.GetBool("headful"); headful {
		cfg.Browser.Headless = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// runRequest executes one run and prints its report. SIGINT and SIGTERM
// cancel the run; the browser session is released either way.
func runRequest(cmd *cobra.Command, req scraper.Request) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	report, runErr := a.run(ctx, req)
	if report != nil {
		printReport(cmd.OutOrStdout(), report)
	}

	// Whatever was persisted before a failure still goes out.
	a.flush(context.WithoutCancel(ctx))

	return runErr
}

func printReport(w io.Writer, r *scraper.Report) {
	fmt.Fprintf(w, "run %s (%s)\n", r.RunID, r.Mode)
	if r.Cards > 0 {
		fmt.Fprintf(w, "  cards:   %d\n", r.Cards)
	}
	if r.Lookups > 0 {
		fmt.Fprintf(w, "  lookups: %d, offers: %d\n", r.Lookups, r.Offers)
	}
	if len(r.NoSellers) > 0 {
		fmt.Fprintf(w, "  no other sellers: %s\n", strings.Join(r.NoSellers, ", "))
	}
	for _, f := range r.Files {
		fmt.Fprintf(w, "  wrote %s\n", f)
	}
}
