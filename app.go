package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/nasermirzaei89/env"
	"github.com/neayi/discoursesync/backfill"
	"github.com/neayi/discoursesync/db/sqlite3"
	"github.com/neayi/discoursesync/forum"
	"github.com/neayi/discoursesync/insights"
	"github.com/neayi/discoursesync/telemetry"
)

type App struct {
	engine *backfill.Engine
	db     *sql.DB
}

func NewApp(ctx context.Context) (*App, error) {
	db, err := sqlite3.NewDB(ctx, env.GetString("DB_DSN", "file:wiki.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	err = sqlite3.MigrateUp(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	store := sqlite3.NewThreadStore(db)

	discourseURL := env.GetString("DISCOURSE_URL", "")
	apiKey := env.GetString("DISCOURSE_API_KEY", "")

	if discourseURL == "" || apiKey == "" {
		return nil, fmt.Errorf("please set DISCOURSE_URL and DISCOURSE_API_KEY")
	}

	client := forum.NewClient(forum.Config{
		BaseURL:     discourseURL,
		APIKey:      apiKey,
		APIUsername: env.GetString("DISCOURSE_API_USERNAME", "system"),
	})

	sc := backfill.NewSyncContext()

	users := backfill.NewUserResolver(client, backfill.UserResolverConfig{
		DefaultUsername: env.GetString("DEFAULT_FORUM_USERNAME", ""),
		EmailRewrites:   parseEmailRewrites(env.GetStringSlice("EMAIL_DOMAIN_REWRITES", []string{})),
		SuffixLimit:     intFromEnv("USER_SUFFIX_LIMIT", 10),
	}, sc)

	topics := backfill.NewTopicResolver(client, store, users, backfill.TopicResolverConfig{
		DefaultCategoryID: int64(intFromEnv("DISCOURSE_CATEGORY_ID", 0)),
		TagGroup:          env.GetString("DISCOURSE_TAG_GROUP", "wiki-keywords"),
	}, sc)

	var followers *backfill.FollowerSync
	if insightsURL := env.GetString("INSIGHTS_URL", ""); insightsURL != "" {
		followers = backfill.NewFollowerSync(insights.NewClient(insightsURL))
	} else {
		slog.WarnContext(ctx, "INSIGHTS_URL not set, follower sync disabled")
	}

	engine := backfill.NewEngine(store, client, topics, users, followers, sc, backfill.EngineConfig{
		ThreadDelay: durationFromEnv("THREAD_DELAY", 2*time.Second),
		MaxRetries:  intFromEnv("MAX_RETRIES", 3),
		RetryDelay:  durationFromEnv("RETRY_DELAY", 5*time.Second),
	})

	app := &App{
		engine: engine,
		db:     db,
	}

	return app, nil
}

func (app *App) Run(ctx context.Context) error {
	// Stops at the next thread boundary on SIGINT.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	defer func() {
		if app.db != nil {
			err := app.db.Close()
			if err != nil {
				slog.ErrorContext(ctx, "failed to close database", "error", err)
			}
		}
	}()

	telemetry.Serve(ctx, env.GetString("METRICS_ADDR", ""))

	err := app.engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to run backfill: %w", err)
	}

	return nil
}

// parseEmailRewrites parses "legacy.example=current.example" pairs.
func parseEmailRewrites(pairs []string) map[string]string {
	rewrites := make(map[string]string)

	for _, pair := range pairs {
		from, to, ok := strings.Cut(pair, "=")
		if !ok {
			slog.Warn("ignoring malformed email rewrite", "value", pair)

			continue
		}

		rewrites[strings.ToLower(from)] = strings.ToLower(to)
	}

	return rewrites
}

func intFromEnv(key string, fallback int) int {
	value := env.GetString(key, "")
	if value == "" {
		return fallback
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("ignoring malformed integer setting", "key", key, "value", value)

		return fallback
	}

	return n
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	value := env.GetString(key, "")
	if value == "" {
		return fallback
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("ignoring malformed duration setting", "key", key, "value", value)

		return fallback
	}

	return d
}

func getLogLevelFromEnv() slog.Level {
	levelStr := env.GetString("LOG_LEVEL", "info")
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("unknown log level, defaulting to info", "level", levelStr)

		return slog.LevelInfo
	}
}
