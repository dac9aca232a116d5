package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neayi/discoursesync/forum"
	"github.com/neayi/discoursesync/telemetry"
	"github.com/neayi/discoursesync/wiki"
)

type TopicResolverConfig struct {
	// DefaultCategoryID is the forum category new topics are created in.
	DefaultCategoryID int64
	// TagGroup is the forum tag group wiki keywords are registered
	// under when they do not exist yet.
	TagGroup string
}

// TopicResolver maps wiki threads to forum topics, creating a topic on
// first reference. The forum's embed-URL lookup makes resolution
// idempotent: a topic already tied to the page URL is reused, so repeated
// runs never duplicate topics.
type TopicResolver struct {
	api   ForumAPI
	store wiki.Store
	users *UserResolver
	cfg   TopicResolverConfig
	sc    *SyncContext
}

func NewTopicResolver(api ForumAPI, store wiki.Store, users *UserResolver, cfg TopicResolverConfig, sc *SyncContext) *TopicResolver {
	return &TopicResolver{api: api, store: store, users: users, cfg: cfg, sc: sc}
}

// Resolve returns the forum topic for a thread, creating it if the page
// has none yet. The second return value reports whether this call created
// the topic.
func (r *TopicResolver) Resolve(ctx context.Context, thread *wiki.Thread) (int64, bool, error) {
	if topicID, ok := r.sc.TopicForPage(thread.AssocPageID); ok {
		return topicID, false, nil
	}

	topicID, err := r.api.FindTopicByEmbedURL(ctx, thread.PageURL)
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve topic: %w", err)
	}

	if topicID != 0 {
		r.sc.SetTopicForPage(thread.AssocPageID, topicID)

		return topicID, false, nil
	}

	author, err := r.store.Author(ctx, thread.PageID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve topic: %w", err)
	}

	username, err := r.users.Resolve(ctx, author)
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve topic: %w", err)
	}

	tags, err := r.ensureTags(ctx, thread.AssocPageID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve topic: %w", err)
	}

	body := fmt.Sprintf("This topic accompanies the page [%s](%s).", thread.PageTitle, thread.PageURL)

	topicID, err = r.api.CreateTopic(ctx, forum.CreateTopicRequest{
		Title:      "Discussion - " + thread.PageTitle,
		Body:       body,
		CategoryID: r.cfg.DefaultCategoryID,
		Tags:       tags,
		Author:     username,
		PageURL:    thread.PageURL,
		ExternalID: thread.AssocPageID,
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to create topic for page %d: %w", thread.AssocPageID, err)
	}

	slog.InfoContext(ctx, "created topic", "topic_id", topicID, "page", thread.PageTitle, "author", username)
	telemetry.TopicsCreated.Inc()

	r.sc.SetTopicForPage(thread.AssocPageID, topicID)
	r.sc.AddWatch(topicID, username)

	return topicID, true, nil
}

// ensureTags turns the page's keyword associations into forum tags,
// registering the missing ones in the configured tag group.
func (r *TopicResolver) ensureTags(ctx context.Context, pageID int64) ([]string, error) {
	keywords, err := r.store.ListKeywords(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords for page %d: %w", pageID, err)
	}

	tags := make([]string, 0, len(keywords))

	for _, keyword := range keywords {
		tag := tagForKeyword(keyword)
		if tag == "" {
			continue
		}

		exists, err := r.api.TagExists(ctx, tag)
		if err != nil {
			return nil, fmt.Errorf("failed to check tag %q: %w", tag, err)
		}

		if !exists {
			err = r.api.CreateTag(ctx, tag, r.cfg.TagGroup)
			if err != nil {
				return nil, fmt.Errorf("failed to create tag %q: %w", tag, err)
			}
		}

		tags = append(tags, tag)
	}

	return tags, nil
}

func tagForKeyword(keyword string) string {
	tag := strings.ToLower(strings.TrimSpace(keyword))

	return strings.ReplaceAll(tag, " ", "-")
}
