package backfill_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/neayi/discoursesync/backfill"
	"github.com/neayi/discoursesync/forum"
	"github.com/neayi/discoursesync/insights"
	"github.com/neayi/discoursesync/wiki"
)

type watchCall struct {
	topicID  int64
	username string
}

// fakeForum is an in-memory stand-in for the Discourse API. State
// persists across engine runs so re-run tests see the forum as it was
// left.
type fakeForum struct {
	topicsByURL    map[string]int64
	usersByEmail   map[string]string
	takenUsernames map[string]bool
	existingTags   map[string]bool

	nextTopicID int64
	nextPostID  int64
	postCount   map[int64]int

	createTopicCalls []forum.CreateTopicRequest
	createPostCalls  []forum.CreatePostRequest
	watchTopicCalls  []watchCall
	createdTags      []string
	userLookups      int

	// failNextPosts makes the next N CreatePost attempts fail with
	// postErr; failAttempts targets specific attempt numbers (1-based).
	failNextPosts int
	postErr       error
	postAttempts  int
	failAttempts  map[int]error
}

var _ backfill.ForumAPI = (*fakeForum)(nil)

func newFakeForum() *fakeForum {
	return &fakeForum{
		topicsByURL:    make(map[string]int64),
		usersByEmail:   make(map[string]string),
		takenUsernames: make(map[string]bool),
		existingTags:   make(map[string]bool),
		nextTopicID:    100,
		nextPostID:     1000,
		postCount:      make(map[int64]int),
	}
}

func (f *fakeForum) CreateTopic(ctx context.Context, req forum.CreateTopicRequest) (int64, error) {
	f.createTopicCalls = append(f.createTopicCalls, req)

	f.nextTopicID++
	topicID := f.nextTopicID

	f.topicsByURL[req.PageURL] = topicID
	f.postCount[topicID] = 1 // the topic's opening post

	return topicID, nil
}

func (f *fakeForum) CreatePost(ctx context.Context, req forum.CreatePostRequest) (*forum.Post, error) {
	f.postAttempts++

	if err, ok := f.failAttempts[f.postAttempts]; ok {
		return nil, err
	}

	if f.failNextPosts > 0 {
		f.failNextPosts--

		return nil, f.postErr
	}

	f.createPostCalls = append(f.createPostCalls, req)

	f.nextPostID++
	f.postCount[req.TopicID]++

	return &forum.Post{
		ID:         f.nextPostID,
		TopicID:    req.TopicID,
		PostNumber: f.postCount[req.TopicID],
	}, nil
}

func (f *fakeForum) FindTopicByEmbedURL(ctx context.Context, pageURL string) (int64, error) {
	return f.topicsByURL[pageURL], nil
}

func (f *fakeForum) GetUserByEmail(ctx context.Context, email string) (string, error) {
	f.userLookups++

	return f.usersByEmail[email], nil
}

func (f *fakeForum) CreateUser(ctx context.Context, realName, username, email string) error {
	if f.takenUsernames[username] {
		return forum.ErrUsernameTaken
	}

	f.takenUsernames[username] = true
	f.usersByEmail[email] = username

	return nil
}

func (f *fakeForum) WatchTopic(ctx context.Context, topicID int64, username string) error {
	f.watchTopicCalls = append(f.watchTopicCalls, watchCall{topicID: topicID, username: username})

	return nil
}

func (f *fakeForum) WatchTag(ctx context.Context, tag, username string) error {
	return nil
}

func (f *fakeForum) TagExists(ctx context.Context, tag string) (bool, error) {
	return f.existingTags[tag], nil
}

func (f *fakeForum) CreateTag(ctx context.Context, tag, group string) error {
	f.existingTags[tag] = true
	f.createdTags = append(f.createdTags, tag)

	return nil
}

type migratedPost struct {
	postID     int64
	postNumber int
}

// fakeStore is an in-memory wiki.Store. The migrated-post map persists
// across runs, like the real table.
type fakeStore struct {
	threads  []*wiki.Thread
	comments map[int64]*wiki.Comment
	replies  map[int64][]*wiki.Comment
	authors  map[int64]*wiki.Author
	keywords map[int64][]string
	migrated map[int64]migratedPost
}

var _ wiki.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		comments: make(map[int64]*wiki.Comment),
		replies:  make(map[int64][]*wiki.Comment),
		authors:  make(map[int64]*wiki.Author),
		keywords: make(map[int64][]string),
		migrated: make(map[int64]migratedPost),
	}
}

func (s *fakeStore) ListThreads(ctx context.Context) ([]*wiki.Thread, error) {
	return s.threads, nil
}

func (s *fakeStore) GetComment(ctx context.Context, pageID int64) (*wiki.Comment, error) {
	comment, ok := s.comments[pageID]
	if !ok {
		return nil, fmt.Errorf("no comment for page %d", pageID)
	}

	return comment, nil
}

func (s *fakeStore) ListReplies(ctx context.Context, parentPageID int64) ([]*wiki.Comment, error) {
	return s.replies[parentPageID], nil
}

func (s *fakeStore) Author(ctx context.Context, pageID int64) (*wiki.Author, error) {
	author, ok := s.authors[pageID]
	if !ok {
		return nil, fmt.Errorf("no author for page %d", pageID)
	}

	return author, nil
}

func (s *fakeStore) ListKeywords(ctx context.Context, pageID int64) ([]string, error) {
	return s.keywords[pageID], nil
}

func (s *fakeStore) MarkMigrated(ctx context.Context, pageID, postID int64, postNumber int) error {
	s.migrated[pageID] = migratedPost{postID: postID, postNumber: postNumber}

	return nil
}

func (s *fakeStore) MigratedPost(ctx context.Context, pageID int64) (int64, int, error) {
	post := s.migrated[pageID]

	return post.postID, post.postNumber, nil
}

// fakeDirectory serves a fixed follower list, or fails.
type fakeDirectory struct {
	followers map[int64][]insights.Follower
	err       error
	calls     int
}

var _ backfill.FollowerDirectory = (*fakeDirectory)(nil)

func (d *fakeDirectory) Followers(ctx context.Context, pageID int64) ([]insights.Follower, error) {
	d.calls++

	if d.err != nil {
		return nil, d.err
	}

	return d.followers[pageID], nil
}

var errDirectoryDown = errors.New("insights is down")
