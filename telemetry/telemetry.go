// Package telemetry exposes counters for a migration run. A run can take
// hours against a rate-limited forum; the optional /metrics listener lets
// an operator watch progress without tailing logs.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TopicsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discoursesync_topics_created_total",
		Help: "Forum topics created for wiki threads.",
	})
	PostsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discoursesync_posts_created_total",
		Help: "Forum posts created from wiki comments.",
	})
	PostsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discoursesync_posts_skipped_total",
		Help: "Comments skipped because an earlier run already migrated them.",
	})
	Retries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discoursesync_retries_total",
		Help: "Retries of transient forum API failures.",
	})
	FollowerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discoursesync_follower_errors_total",
		Help: "Follower directory fetches that failed and were skipped.",
	})
)

// Serve exposes /metrics on addr until ctx is canceled. It returns
// immediately when addr is empty.
func Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			slog.Error("failed to shut down metrics listener", "error", err)
		}
	}()

	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics listener failed", "error", err)
		}
	}()
}
