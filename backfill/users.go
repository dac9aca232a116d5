package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/neayi/discoursesync/forum"
	"github.com/neayi/discoursesync/wiki"
)

const defaultSuffixLimit = 10

// UserCreationError reports that every candidate username up to the
// suffix bound was already taken.
type UserCreationError struct {
	Username string
	Attempts int
}

func (e *UserCreationError) Error() string {
	return fmt.Sprintf("failed to create forum user %q: %d candidate usernames already taken", e.Username, e.Attempts)
}

type UserResolverConfig struct {
	// DefaultUsername is the forum account attributed when a wiki author
	// cannot be resolved (no email on record).
	DefaultUsername string
	// EmailRewrites maps legacy email domains to their current
	// equivalent, applied before lookup.
	EmailRewrites map[string]string
	// SuffixLimit bounds the numeric-suffix retries on a username
	// collision. Zero means the default.
	SuffixLimit int
}

// UserResolver maps wiki identities to forum usernames, creating forum
// accounts on first use. Resolutions are memoized in the run's
// SyncContext keyed by normalized email.
type UserResolver struct {
	api ForumAPI
	cfg UserResolverConfig
	sc  *SyncContext
}

func NewUserResolver(api ForumAPI, cfg UserResolverConfig, sc *SyncContext) *UserResolver {
	if cfg.SuffixLimit <= 0 {
		cfg.SuffixLimit = defaultSuffixLimit
	}

	return &UserResolver{api: api, cfg: cfg, sc: sc}
}

func (r *UserResolver) Resolve(ctx context.Context, author *wiki.Author) (string, error) {
	email := r.normalizeEmail(author.Email)
	if email == "" {
		slog.WarnContext(ctx, "author has no email, using default forum account",
			"author", author.RealName, "default", r.cfg.DefaultUsername)

		return r.cfg.DefaultUsername, nil
	}

	if username, ok := r.sc.UsernameForEmail(email); ok {
		return username, nil
	}

	username, err := r.api.GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to resolve forum user: %w", err)
	}

	if username == "" {
		username, err = r.createUser(ctx, author.RealName, email)
		if err != nil {
			return "", err
		}
	}

	r.sc.SetUsernameForEmail(email, username)

	return username, nil
}

// createUser registers a forum account for the author, retrying username
// collisions with a strictly increasing numeric suffix.
func (r *UserResolver) createUser(ctx context.Context, realName, email string) (string, error) {
	candidate := strings.ReplaceAll(strings.TrimSpace(realName), " ", ".")
	if candidate == "" {
		slog.WarnContext(ctx, "author has no real name, using default forum account",
			"email", email, "default", r.cfg.DefaultUsername)

		return r.cfg.DefaultUsername, nil
	}

	for attempt := 0; attempt <= r.cfg.SuffixLimit; attempt++ {
		username := candidate
		if attempt > 0 {
			username += strconv.Itoa(attempt)
		}

		err := r.api.CreateUser(ctx, realName, username, email)
		if err == nil {
			slog.InfoContext(ctx, "created forum user", "username", username, "email", email)

			return username, nil
		}

		if !errors.Is(err, forum.ErrUsernameTaken) {
			return "", fmt.Errorf("failed to create forum user %q: %w", username, err)
		}
	}

	return "", &UserCreationError{Username: candidate, Attempts: r.cfg.SuffixLimit + 1}
}

func (r *UserResolver) normalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))

	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}

	if domain, ok := r.cfg.EmailRewrites[email[at+1:]]; ok {
		email = email[:at+1] + domain
	}

	return email
}
