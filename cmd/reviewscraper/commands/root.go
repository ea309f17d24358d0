package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gratefulvortex/reviews-scraper/internal/config"
	"github.com/gratefulvortex/reviews-scraper/pkg/logger"
)

var (
	cfg *config.Config
	log *logger.Logger

	envFile   string
	logLevel  string
	outputDir string
	headless  bool
)

var rootCmd = &cobra.Command{
	Use:           "reviewscraper",
	Short:         "reviewscraper collects product reviews from Amazon and Influenster into CSV.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(envFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		flags := cmd.Flags()
		if flags.Changed("log-level") {
			loaded.Logging.Level = logLevel
		}
		if flags.Changed("output-dir") {
			loaded.Output.Dir = outputDir
		}
		if flags.Changed("headless") {
			loaded.Browser.Headless = headless
		}

		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded

		log = logger.New(logger.Config{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			File:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		})
		slog.SetDefault(log.Logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Close()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env", ".env", "Environment file to load before reading the process environment.")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error.")
	pf.StringVar(&outputDir, "output-dir", "output", "Directory for CSV output.")
	pf.BoolVar(&headless, "headless", false, "Run the browser without a window.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if log != nil {
			log.Close()
		}
		os.Exit(1)
	}
}
