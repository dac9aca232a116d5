// Package forum is a client for the Discourse REST API, covering the
// operations the synchronization needs: topics, posts, users, tags and
// watch subscriptions. All calls are remote mutations or queries with no
// local transaction; callers treat them as at-least-once and rely on the
// URL-based topic lookup and email-based user lookup for idempotency.
package forum

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// watchingLevel is the Discourse notification level that emails the user
// on every new post in a topic.
const watchingLevel = 3

type Config struct {
	BaseURL     string
	APIKey      string
	APIUsername string
	Timeout     time.Duration
}

type Client struct {
	baseURL     string
	apiKey      string
	apiUsername string
	httpc       *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		apiUsername: cfg.APIUsername,
		httpc:       &http.Client{Timeout: timeout},
	}
}

type CreateTopicRequest struct {
	Title      string
	Body       string
	CategoryID int64
	Tags       []string
	// Author is the forum username the topic is attributed to.
	Author string
	// PageURL is the canonical URL of the wiki page the topic embeds.
	// The forum indexes it, making topic lookup idempotent per page.
	PageURL    string
	ExternalID int64
}

type CreatePostRequest struct {
	Body    string
	TopicID int64
	Author  string
	// CreatedAt overrides the post timestamp, preserving the original
	// comment date. Zero means "now".
	CreatedAt time.Time
	// ReplyToPostNumber attaches the post under an earlier post in the
	// topic. Nil creates a top-level post.
	ReplyToPostNumber *int
}

// Post is the forum's acknowledgement of a created post.
type Post struct {
	ID         int64 `json:"id"`
	TopicID    int64 `json:"topic_id"`
	PostNumber int   `json:"post_number"`
}

// CreateTopic creates a new topic tied to a wiki page URL and returns its
// topic id.
func (c *Client) CreateTopic(ctx context.Context, req CreateTopicRequest) (int64, error) {
	payload := map[string]any{
		"title":       req.Title,
		"raw":         req.Body,
		"embed_url":   req.PageURL,
		"external_id": strconv.FormatInt(req.ExternalID, 10),
	}
	if req.CategoryID != 0 {
		payload["category"] = req.CategoryID
	}
	if len(req.Tags) > 0 {
		payload["tags"] = req.Tags
	}

	var res Post

	err := c.do(ctx, http.MethodPost, "/posts.json", nil, payload, req.Author, &res)
	if err != nil {
		return 0, fmt.Errorf("failed to create topic: %w", err)
	}

	return res.TopicID, nil
}

// CreatePost creates a post within an existing topic.
func (c *Client) CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error) {
	payload := map[string]any{
		"raw":      req.Body,
		"topic_id": req.TopicID,
	}
	if !req.CreatedAt.IsZero() {
		payload["created_at"] = req.CreatedAt.UTC().Format(time.RFC3339)
	}
	if req.ReplyToPostNumber != nil {
		payload["reply_to_post_number"] = *req.ReplyToPostNumber
	}

	var res Post

	err := c.do(ctx, http.MethodPost, "/posts.json", nil, payload, req.Author, &res)
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	return &res, nil
}

// FindTopicByEmbedURL returns the id of the topic embedding the given
// page URL, or 0 when none exists yet.
func (c *Client) FindTopicByEmbedURL(ctx context.Context, pageURL string) (int64, error) {
	query := url.Values{"embed_url": {pageURL}}

	var res struct {
		TopicID int64 `json:"topic_id"`
	}

	err := c.do(ctx, http.MethodGet, "/embed/info.json", query, nil, "", &res)
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to look up topic by embed url: %w", err)
	}

	return res.TopicID, nil
}

// GetUserByEmail returns the forum username registered under the given
// email, or "" when no account matches.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (string, error) {
	query := url.Values{"email": {email}, "filter": {email}}

	var res []struct {
		Username string `json:"username"`
	}

	err := c.do(ctx, http.MethodGet, "/admin/users/list/all.json", query, nil, "", &res)
	if err != nil {
		return "", fmt.Errorf("failed to look up user by email: %w", err)
	}

	if len(res) == 0 {
		return "", nil
	}

	return res[0].Username, nil
}

// CreateUser registers a forum account without a password; the account is
// activated immediately so posts can be attributed to it. Returns
// ErrUsernameTaken when the desired username already exists.
func (c *Client) CreateUser(ctx context.Context, realName, username, email string) error {
	payload := map[string]any{
		"name":     realName,
		"username": username,
		"email":    email,
		"active":   true,
	}

	var res struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Errors  struct {
			Username []string `json:"username"`
		} `json:"errors"`
	}

	err := c.do(ctx, http.MethodPost, "/users.json", nil, payload, "", &res)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	if res.Success {
		return nil
	}

	for _, msg := range res.Errors.Username {
		if strings.Contains(msg, "unique") {
			return ErrUsernameTaken
		}
	}

	return &PermanentError{Op: "create user", Body: res.Message}
}

// WatchTopic subscribes a user to every new post in a topic.
func (c *Client) WatchTopic(ctx context.Context, topicID int64, username string) error {
	path := fmt.Sprintf("/t/%d/notifications.json", topicID)
	payload := map[string]any{"notification_level": watchingLevel}

	err := c.do(ctx, http.MethodPost, path, nil, payload, username, nil)
	if err != nil {
		return fmt.Errorf("failed to watch topic %d: %w", topicID, err)
	}

	return nil
}

// WatchTag subscribes a user to every new topic carrying a tag.
func (c *Client) WatchTag(ctx context.Context, tag, username string) error {
	path := fmt.Sprintf("/tag/%s/notifications.json", url.PathEscape(tag))
	payload := map[string]any{"notification_level": watchingLevel}

	err := c.do(ctx, http.MethodPost, path, nil, payload, username, nil)
	if err != nil {
		return fmt.Errorf("failed to watch tag %q: %w", tag, err)
	}

	return nil
}

// TagExists reports whether a tag is already known to the forum.
func (c *Client) TagExists(ctx context.Context, tag string) (bool, error) {
	path := fmt.Sprintf("/tag/%s.json", url.PathEscape(tag))

	err := c.do(ctx, http.MethodGet, path, nil, nil, "", nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to check tag %q: %w", tag, err)
	}

	return true, nil
}

// CreateTag registers a tag inside a tag group.
func (c *Client) CreateTag(ctx context.Context, tag, group string) error {
	payload := map[string]any{"name": tag, "tag_group": group}

	err := c.do(ctx, http.MethodPost, "/tags.json", nil, payload, "", nil)
	if err != nil {
		return fmt.Errorf("failed to create tag %q: %w", tag, err)
	}

	return nil
}

// do performs one API round trip. actAs overrides the Api-Username header
// so mutations are attributed to that user instead of the API account.
// Failures are classified per the Transient/Permanent taxonomy.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, actAs string, out any) error {
	op := method + " " + path

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader

	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}

		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Api-Key", c.apiKey)

	if actAs != "" {
		req.Header.Set("Api-Username", actAs)
	} else {
		req.Header.Set("Api-Username", c.apiUsername)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &TransientError{
			Op:         op,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfterHint(resp),
			Body:       string(respBody),
		}
	case resp.StatusCode >= 400:
		return &PermanentError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil {
		return nil
	}

	err = json.Unmarshal(respBody, out)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func retryAfterHint(resp *http.Response) time.Duration {
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

func isNotFound(err error) bool {
	permErr := &PermanentError{}

	return errors.As(err, &permErr) && permErr.StatusCode == http.StatusNotFound
}
