package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gratefulvortex/reviews-scraper/internal/scraper"
)

var (
	scrapeFilters  []string
	scrapeMaxPages int
	scrapeOutput   string
)

func init() {
	f := scrapeCmd.Flags()
	f.StringSliceVar(&scrapeFilters, "filters", nil, "Amazon star filters to walk, e.g. all,5,1. Defaults to all six.")
	f.IntVar(&scrapeMaxPages, "max-pages", 0, "Maximum pages per Amazon filter. Zero keeps the configured limit.")
	f.StringVarP(&scrapeOutput, "output", "o", "", "CSV file to write. Defaults to a timestamped file in the output directory.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Scrapes every review of an Amazon or Influenster product page into CSV.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := log.With("component", "cli")

		filters, err := scraper.ParseFilters(scrapeFilters)
		if err != nil {
			return err
		}

		d, err := openDeps(ctx, cfg, log.Logger)
		if err != nil {
			return err
		}
		defer d.Close()

		runner, err := newRunner(cfg, browserSessions(cfg), d, log.Logger)
		if err != nil {
			return err
		}

		result, err := runner.Run(ctx, args[0], scraper.RunOptions{
			Filters:           filters,
			MaxPagesPerFilter: scrapeMaxPages,
			OutputPath:        scrapeOutput,
		})
		if result != nil && result.OutputPath != "" {
			logger.Info("reviews written", "path", result.OutputPath, "records", result.Records)
			printResult(result)
		}
		return err
	},
}

func printResult(result *scraper.Result) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
