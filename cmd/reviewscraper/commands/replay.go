package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gratefulvortex/reviews-scraper/internal/browser"
	"github.com/gratefulvortex/reviews-scraper/internal/models"
	"github.com/gratefulvortex/reviews-scraper/internal/ratelimit"
	"github.com/gratefulvortex/reviews-scraper/internal/scraper"
)

var (
	replayURL    string
	replayOutput string
)

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayURL, "url", "", "URL the saved page was captured from; selects the site.")
	f.StringVarP(&replayOutput, "output", "o", "", "CSV file to write.")
	_ = replayCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay <page.html>",
	Short: "Extracts reviews from a saved page without starting a browser.",
	Long: `Replay runs the extraction pipeline over markup saved earlier, for example a
diagnostics dump. Only the saved page is read: pagination and load-more are
not followed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		markup, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		page := browser.NewStaticPage(browser.SingleDocResolver(string(markup)))
		sessions := func(ctx context.Context, site models.Site) (browser.Session, error) {
			return browser.NewStaticSession(page), nil
		}

		policy := scraper.PolicyFromConfig(cfg.Scraper)
		policy.MaxPagesPerFilter = 1
		policy.ScrollPasses = 0
		policy.ScrollDelay = 0
		policy.LoginTimeout = 0
		policy.CaptchaTimeout = 0
		policy.LoadMoreTimeout = 0
		policy.MaxEmptyBatches = 1

		reference, err := cfg.Scraper.Reference(time.Now())
		if err != nil {
			return err
		}

		runner := scraper.NewRunner(sessions, scraper.RunnerOptions{
			Policy:         policy,
			Pacer:          func() scraper.Pacer { return ratelimit.Nop{} },
			OutputDir:      cfg.Output.Dir,
			DiagnosticsDir: cfg.Output.DiagnosticsDir,
			Reference:      reference,
			Logger:         log.Logger,
		})

		result, err := runner.Run(cmd.Context(), replayURL, scraper.RunOptions{
			Filters:    []scraper.Filter{scraper.AmazonFilters()[0]},
			OutputPath: replayOutput,
		})
		if result != nil && result.OutputPath != "" {
			printResult(result)
		}
		return err
	},
}
