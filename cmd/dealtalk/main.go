package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dealtalk/dealtalk/internal/ai"
	"github.com/dealtalk/dealtalk/internal/api"
	"github.com/dealtalk/dealtalk/internal/config"
	"github.com/dealtalk/dealtalk/internal/fetcher"
	"github.com/dealtalk/dealtalk/internal/scraper"
	"github.com/dealtalk/dealtalk/internal/store"
)

var (
	cfgFile      string
	verbose      bool
	maxPages     int
	forceRefresh bool
	useSummary   bool
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "dealtalk",
		Short: "dealtalk — deal-thread scraper with AI chat",
		Long: `dealtalk scrapes comment threads from deal-forum pages, stores them as
per-thread JSON files, and answers questions about them through the
Gemini chat API.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(threadsCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// serveCmd runs the web application. The chat credential is checked here, at
// startup, so a missing key never surfaces as a per-request failure.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (frontend + JSON API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			gen, err := ai.NewGemini(ctx, cfg.AI)
			if err != nil {
				return fmt.Errorf("chat API configuration: %w", err)
			}

			sc, st, cleanup, err := buildScraper(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			chat := ai.NewChatAdapter(gen, st, cfg.AI.CharBudget, logger)
			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			srv := api.NewServer(addr, cfg.Scraper.MaxPages, sc, st, chat, logger)

			logger.Info("starting dealtalk",
				"addr", addr,
				"data_dir", cfg.Storage.DataDir,
				"model", cfg.AI.Model,
			)
			return srv.ListenAndServe(ctx)
		},
	}
}

// scrapeCmd runs a one-shot scrape; it needs no API key.
func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [url]",
		Short: "Scrape a thread URL into the data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if err := config.ValidateThreadURL(args[0]); err != nil {
				return err
			}

			sc, _, cleanup, err := buildScraper(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			pages := maxPages
			if pages < 1 {
				pages = cfg.Scraper.MaxPages
			}

			result, err := sc.Scrape(cmd.Context(), args[0], pages, forceRefresh)
			if err != nil {
				return err
			}

			fmt.Printf("Thread:   %s\n", result.ThreadID)
			if result.DealTitle != "" {
				fmt.Printf("Title:    %s\n", result.DealTitle)
			}
			fmt.Printf("Comments: %d total, %d new (%s)\n", result.CommentCount, result.NewlyAddedCount, result.Source)
			if result.Partial {
				fmt.Printf("Partial:  %s\n", result.PartialReason)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&maxPages, "max-pages", "m", 0, "maximum pages to walk (0 = config default)")
	cmd.Flags().BoolVar(&forceRefresh, "force", false, "re-scrape even when a cached record covers the request")
	return cmd
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [thread_id] [question]",
		Short: "Ask a question about a stored thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			gen, err := ai.NewGemini(cmd.Context(), cfg.AI)
			if err != nil {
				return fmt.Errorf("chat API configuration: %w", err)
			}

			st, err := store.NewFileStore(cfg.Storage.DataDir, logger)
			if err != nil {
				return err
			}

			record, err := st.Load(args[0])
			if err != nil {
				return err
			}

			chat := ai.NewChatAdapter(gen, st, cfg.AI.CharBudget, logger)
			answer, err := chat.Chat(cmd.Context(), record, args[1], nil, useSummary)
			if err != nil {
				return err
			}

			fmt.Println(answer)
			return nil
		},
	}

	cmd.Flags().BoolVar(&useSummary, "summary", false, "condense comments to a cached summary before asking")
	return cmd
}

func threadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Manage stored thread records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			st, err := store.NewFileStore(cfg.Storage.DataDir, logger)
			if err != nil {
				return err
			}
			infos, err := st.List()
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Printf("%-40s  %s  %6d KB  %s\n",
					info.Filename,
					info.Modified.Format("2006-01-02 15:04"),
					info.Size/1024,
					info.Title,
				)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm [filename...]",
		Short: "Delete stored thread records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			st, err := store.NewFileStore(cfg.Storage.DataDir, logger)
			if err != nil {
				return err
			}
			deleted, errs := st.Delete(args)
			for _, name := range deleted {
				fmt.Printf("deleted %s\n", name)
			}
			for _, msg := range errs {
				fmt.Fprintln(os.Stderr, msg)
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d deletion(s) failed", len(errs))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every stored thread record",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			st, err := store.NewFileStore(cfg.Storage.DataDir, logger)
			if err != nil {
				return err
			}
			count, err := st.DeleteAll()
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d record(s)\n", count)
			return nil
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dealtalk %s\n", config.Version)
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Server:   %s:%d\n", cfg.Server.Host, cfg.Server.Port)
			fmt.Printf("Fetcher:  %s (timeout %s)\n", cfg.Fetcher.Type, cfg.Fetcher.RequestTimeout)
			fmt.Printf("Scraper:  max_pages=%d sort=%s\n", cfg.Scraper.MaxPages, cfg.Scraper.SortOrder)
			fmt.Printf("Storage:  %s (mongo archive: %v)\n", cfg.Storage.DataDir, cfg.Storage.Mongo.Enabled)
			fmt.Printf("AI:       %s (budget %d chars, key set: %v)\n", cfg.AI.Model, cfg.AI.CharBudget, cfg.AI.APIKey != "")
			fmt.Printf("Logging:  %s/%s\n", cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}
}

// setup loads and validates configuration and builds the logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, setupLogger(cfg), nil
}

// buildScraper assembles the fetch/extract/walk/store pipeline.
func buildScraper(cfg *config.Config, logger *slog.Logger) (*scraper.Scraper, *store.FileStore, func(), error) {
	f, err := fetcher.New(cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create fetcher: %w", err)
	}

	st, err := store.NewFileStore(cfg.Storage.DataDir, logger)
	if err != nil {
		f.Close()
		return nil, nil, nil, err
	}

	var archive scraper.Archiver
	var archiveClose func() error
	if cfg.Storage.Mongo.Enabled {
		ma, err := store.NewMongoArchive(cfg.Storage.Mongo, logger)
		if err != nil {
			f.Close()
			return nil, nil, nil, fmt.Errorf("create archive: %w", err)
		}
		archive = ma
		archiveClose = ma.Close
	}

	walker := scraper.NewWalker(f, scraper.NewExtractor(logger), &cfg.Scraper, logger)
	sc := scraper.New(walker, st, archive, logger)

	cleanup := func() {
		f.Close()
		if archiveClose != nil {
			archiveClose()
		}
	}
	return sc, st, cleanup, nil
}

// setupLogger creates a structured logger.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	} else if cfg.Logging.Level == "warn" {
		level = slog.LevelWarn
	} else if cfg.Logging.Level == "error" {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
