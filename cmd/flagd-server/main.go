package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mikepea/flagd/pkg/flagd/auth"
	"github.com/mikepea/flagd/pkg/flagd/database"
	"github.com/mikepea/flagd/pkg/flagd/models"

	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:  "flagd-server",
		Usage: "content flagging and moderation service",
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "sqlite://path or postgres:// URL",
			Value:   "sqlite://flagd.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			EnvVars: []string{"FLAGD_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "jwt-secret",
			Usage:   "secret for signing and verifying bearer tokens",
			EnvVars: []string{"JWT_SECRET"},
		},
	}

	app.Before = func(cctx *cli.Context) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cctx.String("log-level"))); err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	}

	app.Commands = []*cli.Command{
		runCmd,
		migrateCmd,
		tokenCmd,
	}

	return app.Run(args)
}

var migrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "create or update the database schema",
	Action: func(cctx *cli.Context) error {
		db, err := database.Connect(cctx.String("database-url"), cctx.Int("max-db-connections"), slog.Default())
		if err != nil {
			return err
		}
		if err := models.AutoMigrate(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		slog.Info("database migrations completed")
		return nil
	},
}

var tokenCmd = &cli.Command{
	Name:  "token",
	Usage: "issue a bearer token for a user (development)",
	Flags: []cli.Flag{
		&cli.UintFlag{
			Name:     "user-id",
			Required: true,
		},
		&cli.DurationFlag{
			Name:  "ttl",
			Value: 24 * time.Hour,
		},
	},
	Action: func(cctx *cli.Context) error {
		secret := cctx.String("jwt-secret")
		if secret == "" {
			return fmt.Errorf("JWT_SECRET is required")
		}
		token, err := auth.NewTokens(secret, cctx.Duration("ttl")).Generate(cctx.Uint("user-id"))
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}
