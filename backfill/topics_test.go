package backfill_test

import (
	"context"
	"testing"

	"github.com/neayi/discoursesync/backfill"
	"github.com/neayi/discoursesync/wiki"
	"github.com/stretchr/testify/require"
)

func irrigationThread() *wiki.Thread {
	return &wiki.Thread{
		PageID:      101,
		AssocPageID: 3,
		Title:       "Which pump?",
		PageTitle:   "Irrigation",
		PageURL:     "https://wiki.example.org/wiki/Irrigation",
	}
}

func newTopicResolver(f *fakeForum, s *fakeStore, sc *backfill.SyncContext) *backfill.TopicResolver {
	users := backfill.NewUserResolver(f, backfill.UserResolverConfig{DefaultUsername: "fallback"}, sc)

	return backfill.NewTopicResolver(f, s, users, backfill.TopicResolverConfig{
		DefaultCategoryID: 7,
		TagGroup:          "wiki-keywords",
	}, sc)
}

func TestTopicResolverCreatesOnce(t *testing.T) {
	ctx := context.Background()

	f := newFakeForum()
	f.usersByEmail["alice@example.com"] = "alice.martin"

	s := newFakeStore()
	s.authors[101] = &wiki.Author{RealName: "Alice Martin", Email: "alice@example.com"}

	sc := backfill.NewSyncContext()
	resolver := newTopicResolver(f, s, sc)

	topicID, created, err := resolver.Resolve(ctx, irrigationThread())
	require.NoError(t, err)
	require.True(t, created)
	require.NotZero(t, topicID)
	require.Len(t, f.createTopicCalls, 1)
	require.Equal(t, "Discussion - Irrigation", f.createTopicCalls[0].Title)
	require.Equal(t, int64(7), f.createTopicCalls[0].CategoryID)
	require.Equal(t, "alice.martin", f.createTopicCalls[0].Author)
	require.Equal(t, int64(3), f.createTopicCalls[0].ExternalID)

	t.Run("second resolve hits the cache", func(t *testing.T) {
		again, created, err := resolver.Resolve(ctx, irrigationThread())
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, topicID, again)
		require.Len(t, f.createTopicCalls, 1)
	})

	t.Run("fresh run resolves by URL without creating", func(t *testing.T) {
		freshSC := backfill.NewSyncContext()

		again, created, err := newTopicResolver(f, s, freshSC).Resolve(ctx, irrigationThread())
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, topicID, again)
		require.Len(t, f.createTopicCalls, 1)
	})
}

func TestTopicResolverDerivesTags(t *testing.T) {
	ctx := context.Background()

	f := newFakeForum()
	f.usersByEmail["alice@example.com"] = "alice.martin"
	f.existingTags["irrigation"] = true

	s := newFakeStore()
	s.authors[101] = &wiki.Author{RealName: "Alice Martin", Email: "alice@example.com"}
	s.keywords[3] = []string{"Irrigation", "Water Management"}

	resolver := newTopicResolver(f, s, backfill.NewSyncContext())

	_, _, err := resolver.Resolve(ctx, irrigationThread())
	require.NoError(t, err)

	require.Equal(t, []string{"irrigation", "water-management"}, f.createTopicCalls[0].Tags)
	require.Equal(t, []string{"water-management"}, f.createdTags, "existing tags are not re-created")
}

func TestTopicResolverQueuesAuthorSubscription(t *testing.T) {
	ctx := context.Background()

	f := newFakeForum()
	f.usersByEmail["alice@example.com"] = "alice.martin"

	s := newFakeStore()
	s.authors[101] = &wiki.Author{RealName: "Alice Martin", Email: "alice@example.com"}

	sc := backfill.NewSyncContext()
	resolver := newTopicResolver(f, s, sc)

	topicID, _, err := resolver.Resolve(ctx, irrigationThread())
	require.NoError(t, err)

	require.Equal(t, []string{"alice.martin"}, sc.TakeWatches(topicID))
}
