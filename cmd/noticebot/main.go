package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"notice_bot/internal/bot"
	"notice_bot/internal/config"
	"notice_bot/internal/dm"
	"notice_bot/internal/fetcher"
	"notice_bot/internal/metrics"
	"notice_bot/internal/model"
	"notice_bot/internal/notify"
	"notice_bot/internal/parser"
	"notice_bot/internal/scheduler"
	"notice_bot/internal/storage"
)

var version = "dev"

var (
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "noticebot",
	Short:         "University notice crawler and Telegram notifier",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// migrate needs only the database path.
		if cmd.Name() == "version" || cmd.Name() == migrateCmd.Name() {
			logger = newLogger(os.Getenv("LOG_LEVEL"))
			return nil
		}
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			slog.Error("load config", "error", err)
			return err
		}
		logger = newLogger(cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("noticebot", version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the command bot and the crawl loop",
	RunE: func(_ *cobra.Command, _ []string) error {
		if cfg.TelegramBotToken == "" {
			err := errors.New("TELEGRAM_BOT_TOKEN is required")
			logger.Error("start", "error", err)
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		b, err := bot.New(cfg.TelegramBotToken, store, cfg, logger)
		if err != nil {
			logger.Error("create bot", "error", err)
			return err
		}

		sched, err := newScheduler(store, b, false)
		if err != nil {
			logger.Error("create scheduler", "error", err)
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if cfg.MetricsAddr != "" {
			serveMetrics(ctx, cfg.MetricsAddr)
		}

		logger.Info("starting bot", "sources", len(cfg.EnabledSources()))

		crawlDone := make(chan struct{})
		go func() {
			defer close(crawlDone)
			sched.Run(ctx)
		}()

		b.Run(ctx)
		<-crawlDone

		logger.Info("bot stopped")
		return nil
	},
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run a single crawl cycle and exit",
	Long:  "Run a single crawl cycle and exit. Without TELEGRAM_BOT_TOKEN messages are only logged.",
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		var notifier notify.Notifier = notify.LogNotifier{Log: logger}
		dryRun := cfg.TelegramBotToken == ""
		if !dryRun {
			b, err := bot.New(cfg.TelegramBotToken, store, cfg, logger)
			if err != nil {
				logger.Error("create bot", "error", err)
				return err
			}
			notifier = b
		} else {
			logger.Warn("no bot token, dry run")
		}

		sched, err := newScheduler(store, notifier, dryRun)
		if err != nil {
			logger.Error("create scheduler", "error", err)
			return err
		}

		sum := sched.RunCycle(context.Background())
		fmt.Println(sum.String())
		return nil
	},
}

func openStore() (*storage.SQLite, error) {
	path := cfg.Database.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			logger.Error("create data directory", "path", dir, "error", err)
			return nil, err
		}
	}

	store, err := storage.NewSQLite(path)
	if err != nil {
		logger.Error("open database", "path", path, "error", err)
		return nil, err
	}
	return store, nil
}

// newScheduler wires the crawl loop. A dry run has no direct delivery.
func newScheduler(store storage.Storage, notifier notify.Notifier, dryRun bool) (*scheduler.Scheduler, error) {
	f := fetcher.New(fetcher.NewHTTPClient(cfg.Bot.FetchTimeout, cfg.Bot.InsecureTLS))
	newParser := func(src model.Source) (parser.Parser, error) {
		return parser.New(src, f)
	}

	var limiter *rate.Limiter
	if cfg.Bot.MessageDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Bot.MessageDelay), 1)
	}

	var delivery scheduler.Delivery
	if !dryRun {
		delivery = dm.New(store, notifier, cfg.AllSources(), dm.Options{
			Window:  cfg.Bot.DMWindow,
			Limiter: limiter,
		}, logger)
	}

	return scheduler.New(store, cfg.EnabledSources(), newParser, notifier, delivery, scheduler.Options{
		Interval:     cfg.Bot.CrawlInterval,
		MaxNotices:   cfg.Bot.MaxNoticesPerRun,
		Channel:      cfg.Bot.Channel,
		LogChannel:   cfg.Bot.LogChannel,
		RecentWindow: cfg.Bot.DMWindow,
		Limiter:      limiter,
	}, logger)
}

func serveMetrics(ctx context.Context, addr string) {
	metrics.Init()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
