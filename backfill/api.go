package backfill

import (
	"context"

	"github.com/neayi/discoursesync/forum"
	"github.com/neayi/discoursesync/insights"
)

// ForumAPI is the slice of the forum client the backfill drives.
type ForumAPI interface {
	CreateTopic(ctx context.Context, req forum.CreateTopicRequest) (topicID int64, err error)
	CreatePost(ctx context.Context, req forum.CreatePostRequest) (post *forum.Post, err error)
	FindTopicByEmbedURL(ctx context.Context, pageURL string) (topicID int64, err error)
	GetUserByEmail(ctx context.Context, email string) (username string, err error)
	CreateUser(ctx context.Context, realName, username, email string) (err error)
	WatchTopic(ctx context.Context, topicID int64, username string) (err error)
	WatchTag(ctx context.Context, tag, username string) (err error)
	TagExists(ctx context.Context, tag string) (exists bool, err error)
	CreateTag(ctx context.Context, tag, group string) (err error)
}

var _ ForumAPI = (*forum.Client)(nil)

// FollowerDirectory reports who opted to follow a wiki page.
type FollowerDirectory interface {
	Followers(ctx context.Context, pageID int64) (followers []insights.Follower, err error)
}

var _ FollowerDirectory = (*insights.Client)(nil)
