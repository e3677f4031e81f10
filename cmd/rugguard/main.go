package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rugguard/rugguard/trust"
	"github.com/rugguard/rugguard/twitter"

	"github.com/carlmjohnson/versioninfo"
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
		Name:    "rugguard",
		Usage:   "reply-triggered account trustworthiness bot",
		Version: versioninfo.Short(),
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the monitoring bot",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "bearer-token",
			Usage:    "platform API app bearer token",
			Required: true,
			EnvVars:  []string{"X_BEARER_TOKEN", "TWITTER_BEARER_TOKEN"},
		},
		&cli.StringFlag{
			Name:     "bot-handle",
			Usage:    "the bot's own account handle, without @",
			Required: true,
			EnvVars:  []string{"BOT_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "trigger-phrase",
			Usage:   "phrase in a reply which triggers an analysis",
			Value:   "riddle me this",
			EnvVars: []string{"TRIGGER_PHRASE"},
		},
		&cli.StringFlag{
			Name:    "api-host",
			Usage:   "method, hostname, and port of the platform API",
			Value:   twitter.DefaultHost,
			EnvVars: []string{"TWITTER_API_HOST"},
		},
		&cli.StringFlag{
			Name:    "trusted-list-url",
			Usage:   "HTTP source of the community trusted-handle list",
			Value:   trust.DefaultListURL,
			EnvVars: []string{"TRUSTED_LIST_URL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for caching and watermark persistence; in-memory fallback when empty",
			EnvVars: []string{"RUGGUARD_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3989",
			EnvVars: []string{"RUGGUARD_METRICS_LISTEN"},
		},
		&cli.DurationFlag{
			Name:    "search-interval",
			Usage:   "base delay between search cycles",
			Value:   60 * time.Second,
			EnvVars: []string{"SEARCH_INTERVAL"},
		},
		&cli.IntFlag{
			Name:    "max-thread-depth",
			Usage:   "max reply hops to walk when resolving a thread's original post",
			Value:   5,
			EnvVars: []string{"MAX_THREAD_DEPTH"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"RUGGUARD_LOG_LEVEL", "LOG_LEVEL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		level, err := parseLevel(cctx.String("log-level"))
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)

		srv, err := NewServer(Config{
			Logger:         logger,
			BearerToken:    cctx.String("bearer-token"),
			APIHost:        cctx.String("api-host"),
			BotHandle:      cctx.String("bot-handle"),
			TriggerPhrase:  cctx.String("trigger-phrase"),
			TrustedListURL: cctx.String("trusted-list-url"),
			RedisURL:       cctx.String("redis-url"),
			SearchInterval: cctx.Duration("search-interval"),
			MaxThreadDepth: cctx.Int("max-thread-depth"),
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

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run monitoring service: %w", err)
		}
		return nil
	},
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", s)
	}
}
