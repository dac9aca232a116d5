// Package backfill replays the wiki's existing discussion threads into
// the forum: one topic per thread, one post per comment, preserving
// authorship, timestamps and reply structure. The run is strictly
// sequential; concurrent topic creation against the same forum could race
// past the embed-URL uniqueness check, and the forum rate-limits
// aggressively anyway.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/neayi/discoursesync/forum"
	"github.com/neayi/discoursesync/telemetry"
	"github.com/neayi/discoursesync/wiki"
	"golang.org/x/time/rate"
)

type EngineConfig struct {
	// ThreadDelay is the pause between threads, respecting the forum's
	// request-rate policy.
	ThreadDelay time.Duration
	// MaxRetries bounds retries of a transient failure on a single call.
	MaxRetries int
	// RetryDelay is the backoff between retries when the forum returned
	// no explicit wait hint.
	RetryDelay time.Duration
}

const (
	defaultThreadDelay = 2 * time.Second
	defaultMaxRetries  = 3
	defaultRetryDelay  = 5 * time.Second
)

type Engine struct {
	store     wiki.Store
	api       ForumAPI
	topics    *TopicResolver
	users     *UserResolver
	followers *FollowerSync
	sc        *SyncContext
	cfg       EngineConfig
	limiter   *rate.Limiter
	logger    *slog.Logger
}

func NewEngine(store wiki.Store, api ForumAPI, topics *TopicResolver, users *UserResolver, followers *FollowerSync, sc *SyncContext, cfg EngineConfig) *Engine {
	if cfg.ThreadDelay <= 0 {
		cfg.ThreadDelay = defaultThreadDelay
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	return &Engine{
		store:     store,
		api:       api,
		topics:    topics,
		users:     users,
		followers: followers,
		sc:        sc,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Every(cfg.ThreadDelay), 1),
		logger:    slog.With("run_id", uuid.NewString()),
	}
}

// Run migrates every thread in store order. It stops at the first
// permanent or retry-exhausted error; an aborted run is safe to resume
// because topic resolution is URL-idempotent and acknowledged posts are
// recorded and skipped. Cancellation is honored at thread boundaries.
func (e *Engine) Run(ctx context.Context) error {
	threads, err := e.store.ListThreads(ctx)
	if err != nil {
		return fmt.Errorf("failed to list threads: %w", err)
	}

	e.logger.InfoContext(ctx, "starting backfill", "threads", len(threads))

	for i, thread := range threads {
		err := e.limiter.Wait(ctx)
		if err != nil {
			return fmt.Errorf("backfill interrupted: %w", err)
		}

		e.logger.InfoContext(ctx, "processing thread",
			"thread", i+1, "of", len(threads), "page", thread.PageTitle, "title", thread.Title)

		err = e.processThread(ctx, thread)
		if err != nil {
			return fmt.Errorf("failed to migrate thread for page %q: %w", thread.PageTitle, err)
		}
	}

	e.logger.InfoContext(ctx, "backfill complete", "threads", len(threads))

	return nil
}

func (e *Engine) processThread(ctx context.Context, thread *wiki.Thread) error {
	topicID, _, err := e.topics.Resolve(ctx, thread)
	if err != nil {
		return err
	}

	headNumber, err := e.migrateHead(ctx, thread, topicID)
	if err != nil {
		return err
	}

	replies, err := e.store.ListReplies(ctx, thread.PageID)
	if err != nil {
		return fmt.Errorf("failed to list replies: %w", err)
	}

	for _, reply := range replies {
		err := e.migrateReply(ctx, reply, topicID, headNumber)
		if err != nil {
			return err
		}
	}

	e.collectFollowers(ctx, thread.AssocPageID, topicID)

	return e.flushWatches(ctx, topicID)
}

// migrateHead posts the thread's head comment unless an earlier run
// already got it acknowledged, and returns the post number replies
// should attach to. A run interrupted between topic creation and the
// head post leaves no migrated record, so the resumed run posts the
// head into the existing topic.
func (e *Engine) migrateHead(ctx context.Context, thread *wiki.Thread, topicID int64) (int, error) {
	_, postNumber, err := e.store.MigratedPost(ctx, thread.PageID)
	if err != nil {
		return 0, err
	}

	if postNumber != 0 {
		telemetry.PostsSkipped.Inc()

		return postNumber, nil
	}

	comment, err := e.store.GetComment(ctx, thread.PageID)
	if err != nil {
		return 0, err
	}

	author, err := e.store.Author(ctx, thread.PageID)
	if err != nil {
		return 0, err
	}

	username, err := e.users.Resolve(ctx, author)
	if err != nil {
		return 0, err
	}

	post, err := e.createPostWithRetry(ctx, forum.CreatePostRequest{
		Body:      formatComment(comment, thread.Title),
		TopicID:   topicID,
		Author:    username,
		CreatedAt: comment.CreatedAt,
	})
	if err != nil {
		return 0, err
	}

	err = e.store.MarkMigrated(ctx, thread.PageID, post.ID, post.PostNumber)
	if err != nil {
		return 0, err
	}

	e.sc.AddWatch(topicID, username)

	return post.PostNumber, nil
}

func (e *Engine) migrateReply(ctx context.Context, reply *wiki.Comment, topicID int64, headNumber int) error {
	migratedID, _, err := e.store.MigratedPost(ctx, reply.PageID)
	if err != nil {
		return err
	}

	if migratedID != 0 {
		telemetry.PostsSkipped.Inc()

		return nil
	}

	author, err := e.store.Author(ctx, reply.PageID)
	if err != nil {
		return err
	}

	username, err := e.users.Resolve(ctx, author)
	if err != nil {
		return err
	}

	post, err := e.createPostWithRetry(ctx, forum.CreatePostRequest{
		Body:              formatComment(reply, ""),
		TopicID:           topicID,
		Author:            username,
		CreatedAt:         reply.CreatedAt,
		ReplyToPostNumber: &headNumber,
	})
	if err != nil {
		return err
	}

	err = e.store.MarkMigrated(ctx, reply.PageID, post.ID, post.PostNumber)
	if err != nil {
		return err
	}

	e.sc.AddWatch(topicID, username)

	return nil
}

// createPostWithRetry retries transient failures in a bounded loop,
// honoring the forum's wait hint when one came back.
func (e *Engine) createPostWithRetry(ctx context.Context, req forum.CreatePostRequest) (*forum.Post, error) {
	var lastErr error

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		post, err := e.api.CreatePost(ctx, req)
		if err == nil {
			telemetry.PostsCreated.Inc()

			return post, nil
		}

		transientErr := &forum.TransientError{}
		if !errors.As(err, &transientErr) {
			return nil, err
		}

		lastErr = err

		if attempt == e.cfg.MaxRetries {
			break
		}

		delay := e.cfg.RetryDelay
		if transientErr.RetryAfter > 0 {
			delay = transientErr.RetryAfter
		}

		e.logger.WarnContext(ctx, "transient forum error, retrying",
			"attempt", attempt+1, "delay", delay, "error", err)
		telemetry.Retries.Inc()

		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to create post after %d retries: %w", e.cfg.MaxRetries, lastErr)
}

// collectFollowers is best-effort: a follower directory outage must not
// abort the migration.
func (e *Engine) collectFollowers(ctx context.Context, pageID, topicID int64) {
	if e.followers == nil {
		return
	}

	err := e.followers.Collect(ctx, pageID, topicID, e.sc)
	if err != nil {
		e.logger.WarnContext(ctx, "skipping follower sync", "page_id", pageID, "error", err)
		telemetry.FollowerErrors.Inc()
	}
}

// flushWatches subscribes every queued participant and follower to the
// topic. Subscriptions are enrichment: individual failures are logged
// and do not abort the run.
func (e *Engine) flushWatches(ctx context.Context, topicID int64) error {
	for _, username := range e.sc.TakeWatches(topicID) {
		err := e.api.WatchTopic(ctx, topicID, username)
		if err != nil {
			e.logger.WarnContext(ctx, "failed to subscribe user to topic",
				"topic_id", topicID, "username", username, "error", err)

			continue
		}

		e.logger.InfoContext(ctx, "watching topic", "topic_id", topicID, "username", username)
	}

	return nil
}

// formatComment strips storage annotations and template residue and
// prepends the comment title, mirroring how the wiki rendered the
// comment.
func formatComment(comment *wiki.Comment, title string) string {
	body := wiki.StripTemplates(wiki.StripAnnotations(comment.Body, comment.Title))

	if title != "" {
		body = "**" + title + "**\n\n" + body
	}

	return body
}
