package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikepea/flagd/pkg/flagd/database"
	"github.com/mikepea/flagd/pkg/flagd/escalation"
	"github.com/mikepea/flagd/pkg/flagd/models"
	"github.com/mikepea/flagd/pkg/flagd/notify"
	"github.com/mikepea/flagd/pkg/flagd/settings"
	"github.com/mikepea/flagd/pkg/flagd/store"

	cli "github.com/urfave/cli/v2"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "settings",
			Usage:   "path to the TOML flagging policy",
			Value:   "flagd.toml",
			EnvVars: []string{"FLAGD_SETTINGS"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":8080",
			EnvVars: []string{"FLAGD_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":8081",
			EnvVars: []string{"FLAGD_METRICS_LISTEN"},
		},
		&cli.BoolFlag{
			Name:    "auto-migrate",
			Value:   true,
			EnvVars: []string{"FLAGD_AUTO_MIGRATE"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis server URL, shares per-content locks between replicas",
			EnvVars: []string{"FLAGD_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			EnvVars: []string{"FLAGD_SMTP_HOST"},
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			EnvVars: []string{"FLAGD_SMTP_PORT"},
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			EnvVars: []string{"FLAGD_SMTP_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			EnvVars: []string{"FLAGD_SMTP_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "mail-product-name",
			Value:   "flagd",
			EnvVars: []string{"FLAGD_MAIL_PRODUCT_NAME"},
		},
		&cli.StringFlag{
			Name:    "mail-product-link",
			EnvVars: []string{"FLAGD_MAIL_PRODUCT_LINK"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "notify-subject-template",
			Usage:   "path to a pongo2 template for notification subjects",
			EnvVars: []string{"FLAGD_NOTIFY_SUBJECT_TEMPLATE"},
		},
		&cli.StringFlag{
			Name:    "notify-body-template",
			Usage:   "path to a pongo2 template for notification bodies",
			EnvVars: []string{"FLAGD_NOTIFY_BODY_TEMPLATE"},
		},
		&cli.Int64Flag{
			Name:    "notify-max-inflight",
			Value:   4,
			EnvVars: []string{"FLAGD_NOTIFY_MAX_INFLIGHT"},
		},
		&cli.DurationFlag{
			Name:    "notify-timeout",
			Value:   30 * time.Second,
			EnvVars: []string{"FLAGD_NOTIFY_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "user-cache-size",
			Value:   10_000,
			EnvVars: []string{"FLAGD_USER_CACHE_SIZE"},
		},
		&cli.DurationFlag{
			Name:    "user-cache-ttl",
			Value:   2 * time.Minute,
			EnvVars: []string{"FLAGD_USER_CACHE_TTL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger := slog.Default()

		policy, registry, err := settings.Load(cctx.String("settings"))
		if err != nil {
			return err
		}

		db, err := database.Connect(cctx.String("database-url"), cctx.Int("max-db-connections"), logger)
		if err != nil {
			return err
		}
		if cctx.Bool("auto-migrate") {
			if err := models.AutoMigrate(db); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		var locker store.Locker
		if url := cctx.String("redis-url"); url != "" {
			rl, err := store.NewRedisLocker(url)
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			locker = rl
			logger.Info("using redis for per-content locks")
		}

		composer, err := loadComposer(cctx.String("notify-subject-template"), cctx.String("notify-body-template"))
		if err != nil {
			return err
		}

		srv, err := NewServer(db, Config{
			Settings:     policy,
			Registry:     registry,
			Locker:       locker,
			Notifier:     buildNotifier(cctx, logger),
			Composer:     composer,
			JWTSecret:    cctx.String("jwt-secret"),
			UserCache:    cctx.Int("user-cache-size"),
			UserCacheTTL: cctx.Duration("user-cache-ttl"),
			MaxInFlight:  cctx.Int64("notify-max-inflight"),
			SendTimeout:  cctx.Duration("notify-timeout"),
			Logger:       logger,
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx, cctx.String("bind")); err != nil {
			return fmt.Errorf("failed to run flagd service: %w", err)
		}
		return nil
	},
}

func buildNotifier(cctx *cli.Context, logger *slog.Logger) notify.Notifier {
	var notifiers notify.Multi
	if host := cctx.String("smtp-host"); host != "" {
		notifiers = append(notifiers, notify.NewMailNotifier(notify.MailConfig{
			Host:        host,
			Port:        cctx.Int("smtp-port"),
			Username:    cctx.String("smtp-username"),
			Password:    cctx.String("smtp-password"),
			ProductName: cctx.String("mail-product-name"),
			ProductLink: cctx.String("mail-product-link"),
		}))
	}
	if url := cctx.String("slack-webhook-url"); url != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(url, logger))
	}
	if len(notifiers) == 0 {
		logger.Warn("no notification transport configured, notifications will only be logged")
		return notify.LogNotifier{Logger: logger}
	}
	return notifiers
}

func loadComposer(subjectPath, bodyPath string) (*escalation.Composer, error) {
	read := func(path string) (string, error) {
		if path == "" {
			return "", nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading template: %w", err)
		}
		return string(b), nil
	}
	subject, err := read(subjectPath)
	if err != nil {
		return nil, err
	}
	body, err := read(bodyPath)
	if err != nil {
		return nil, err
	}
	return escalation.NewComposer(subject, body)
}
