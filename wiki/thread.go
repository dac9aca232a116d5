package wiki

import (
	"context"
	"time"
)

// Thread is a head comment hosted on its own wiki page, attached to an
// article page. It is the unit mirrored into the forum.
type Thread struct {
	PageID      int64
	AssocPageID int64
	Title       string
	PageTitle   string
	PageURL     string
}

// Comment is the body of a thread's head comment or one of its replies.
// ParentPageID is nil for the head comment.
type Comment struct {
	PageID       int64
	ParentPageID *int64
	Title        string
	Body         string
	CreatedAt    time.Time
}

// Author is the wiki identity a comment is attributed to. Email may be
// empty when the account never verified one.
type Author struct {
	RealName string
	Email    string
}

type Store interface {
	ListThreads(ctx context.Context) (threads []*Thread, err error)
	GetComment(ctx context.Context, pageID int64) (comment *Comment, err error)
	ListReplies(ctx context.Context, parentPageID int64) (comments []*Comment, err error)

	// Author resolves the identity a comment page should be attributed to:
	// the first contributor with a known email, falling back to the most
	// recent editor.
	Author(ctx context.Context, pageID int64) (author *Author, err error)

	// ListKeywords returns the keyword associations of an article page,
	// used to tag the forum topic.
	ListKeywords(ctx context.Context, pageID int64) (keywords []string, err error)

	// MarkMigrated records the forum post created for a comment page so a
	// later run can skip it. MigratedPost returns zeroes when no record
	// exists.
	MarkMigrated(ctx context.Context, pageID int64, postID int64, postNumber int) (err error)
	MigratedPost(ctx context.Context, pageID int64) (postID int64, postNumber int, err error)
}
