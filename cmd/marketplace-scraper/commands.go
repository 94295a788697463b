package main

import (
	"fmt"
	"strings"

	"github.com/maltedev/marketplace-scraper/internal/exporter"
	"github.com/maltedev/marketplace-scraper/internal/scraper"
	"github.com/spf13/cobra"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search and export the result cards",
		Long: `Search loads the search results for the query, scrolls through them and
writes every card to {query}.xlsx.

Examples:
  marketplace-scraper search кружка
  marketplace-scraper search --json "кружка белая"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, searchRequest(scraper.ModeSearch, args))
		},
	}
}

// NewOffersCmd creates the offers command.
func NewOffersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offers <url|id>...",
		Short: "Export cheaper offers from other sellers",
		Long: `Offers opens the other-sellers fragment of each product and writes one
{tag}_delivery_dates_{date}.xlsx per product that has other sellers.

A single product is written without a tag unless --tag is given. Several
products are numbered from 0, after the tag when one is given.

Examples:
  marketplace-scraper offers 123456789
  marketplace-scraper offers https://www.ozon.ru/product/kruzhka-123456789/
  marketplace-scraper offers --tag march 123 456 789`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, _ := cmd.Flags().GetString("tag")
			return runRequest(cmd, offersRequest(args, tag))
		},
	}

	cmd.Flags().StringP("tag", "t", "", "Prefix for the offer file names")
	return cmd
}

// NewSearchOffersCmd creates the search-offers command.
func NewSearchOffersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search-offers <query>",
		Short: "Search, export the cards, then export cheaper offers for every result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := searchRequest(scraper.ModeSearchOffers, args)
			req.Tag, _ = cmd.Flags().GetString("tag")
			return runRequest(cmd, req)
		},
	}

	cmd.Flags().StringP("tag", "t", "", "Prefix for the offer file names")
	return cmd
}

// NewCatalogCmd creates the catalog command.
func NewCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [url]",
		Short: "Export the catalog cards of a landing page",
		Long: `Catalog reads the layered catalog of a landing page (the marketplace main
page by default) and writes it to catalog.xlsx. Any card that does not match
the expected layout fails the run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := scraper.Request{Mode: scraper.ModeCatalog}
			if len(args) == 1 {
				req.Input = args[0]
			}
			return runRequest(cmd, req)
		},
	}
}

func searchRequest(mode scraper.Mode, args []string) scraper.Request {
	return scraper.Request{Mode: mode, Input: strings.Join(args, " ")}
}

// offersRequest picks the single or batch lookup by argument count.
// Arguments may themselves hold several whitespace-separated inputs.
func offersRequest(args []string, tag string) scraper.Request {
	inputs := strings.Fields(strings.Join(args, " "))
	if len(inputs) == 1 {
		return scraper.Request{Mode: scraper.ModeOffers, Input: inputs[0], Tag: tag}
	}
	return scraper.Request{Mode: scraper.ModeBatchOffers, Input: strings.Join(inputs, " "), Tag: tag}
}

// NewFlattenCmd creates the flatten command.
func NewFlattenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flatten <file.json>...",
		Short: "Convert exported JSON documents to the flat product list",
		Long: `Flatten reads documents written with --json and writes {name}_flat.json
next to each, one product per entry keyed by {layer}_{position}.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			log, closer, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}

			e := exporter.New(cfg.Scraper.OutputDir, log)
			for _, path := range args {
				out, err := e.Flatten(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			}
			return nil
		},
	}
}
