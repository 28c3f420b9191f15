// Command newsletterd wires the core components together: SQLite
// storage, the credential store, the idempotency store, the publish
// coordinator (exposed only to whatever HTTP layer embeds this core —
// out of scope here per spec.md §1), the delivery worker pool and the
// idempotency reaper. Grounded in caasmo/restinpieces/cmd/restinpieces's
// flag/config/signal-handling shape.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	phuslog "github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/caasmo/newsletterd/config"
	"github.com/caasmo/newsletterd/credentials"
	"github.com/caasmo/newsletterd/db/sqlite"
	"github.com/caasmo/newsletterd/emailgateway"
	"github.com/caasmo/newsletterd/idempotency"
	"github.com/caasmo/newsletterd/notify"
	"github.com/caasmo/newsletterd/notify/discord"
	"github.com/caasmo/newsletterd/notify/mailer"
	"github.com/caasmo/newsletterd/publish"
	"github.com/caasmo/newsletterd/reaper"
	"github.com/caasmo/newsletterd/worker"
)

// defaultLoggerOptions matches the teacher's DefaultLoggerOptions: debug
// level, time attribute stripped (deployments typically have their own
// timestamping at the collector).
var defaultLoggerOptions = &slog.HandlerOptions{
	Level: slog.LevelDebug,
	ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.TimeKey {
			return slog.Attr{}
		}
		return a
	},
}

func newLogger() *slog.Logger {
	logger := slog.New(phuslog.SlogNewJSONHandler(os.Stderr, defaultLoggerOptions))
	slog.SetDefault(logger)
	return logger
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	var notifiers []notify.Notifier

	if cfg.Discord.Enabled && cfg.Discord.WebhookURL != "" {
		d, err := discord.New(discord.Options{WebhookURL: cfg.Discord.WebhookURL}, logger)
		if err != nil {
			logger.Error("failed to configure discord notifier", "error", err)
		} else {
			notifiers = append(notifiers, d)
		}
	}

	if cfg.Smtp.Host != "" && cfg.Smtp.To != "" {
		notifiers = append(notifiers, mailer.New(mailer.Options{
			Host:       cfg.Smtp.Host,
			Port:       cfg.Smtp.Port,
			Username:   cfg.Smtp.Username,
			Password:   cfg.Smtp.Password,
			From:       cfg.Smtp.From,
			To:         cfg.Smtp.To,
			AuthMethod: cfg.Smtp.AuthMethod,
			UseTLS:     cfg.Smtp.UseTLS,
		}))
	}

	if len(notifiers) == 0 {
		return notify.NewNilNotifier()
	}
	return notify.NewMultiNotifier(notifiers...)
}

func main() {
	dbfile := flag.String("dbfile", "newsletterd.db", "SQLite database file path")
	flag.Parse()

	logger := newLogger()

	cfg, err := config.Load(*dbfile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	configProvider := config.NewProvider(cfg)

	database, err := sqlite.New(cfg.DBFile)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	credStore := credentials.New(database, 0)
	_ = credStore // exposed to the HTTP layer this core is embedded in

	idemCache, err := idempotency.NewCache()
	if err != nil {
		logger.Error("failed to initialize idempotency cache", "error", err)
		os.Exit(1)
	}
	idemStore := idempotency.New(database, idemCache)

	publishCoordinator := publish.New(idemStore)
	_ = publishCoordinator // exposed to the HTTP layer this core is embedded in

	notifier := buildNotifier(configProvider.Get(), logger)

	gateway := emailgateway.New(emailgateway.Options{
		BaseURL: cfg.Gateway.BaseURL,
		Token:   cfg.Gateway.Token,
		InboxID: cfg.Gateway.InboxID,
		Timeout: cfg.Gateway.Timeout,
	})

	poolSize := cfg.Worker.PoolSize
	if poolSize < 1 {
		poolSize = 1
	}
	workers := make([]*worker.DeliveryWorker, poolSize)
	for i := range workers {
		workers[i] = worker.New(database, gateway, notifier, worker.Config{
			FromEmail: cfg.Worker.FromEmail,
		}, logger)
	}
	workerPool := worker.NewPool(workers...)

	idemReaper := reaper.New(idemStore, cfg.Reaper.Interval, cfg.Reaper.TTL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return workerPool.Run(gctx) })
	g.Go(func() error { return idemReaper.Run(gctx) })

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	logger.Info("newsletterd started", "dbfile", cfg.DBFile, "worker_pool_size", poolSize)
	<-stop
	logger.Info("received shutdown signal, stopping")
	cancel()

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		logger.Error("component exited with error", "error", err)
	}
	logger.Info("shutdown complete")
}
