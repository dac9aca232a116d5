package backfill

import (
	"context"
	"fmt"
	"log/slog"
)

// FollowerSync turns page followers reported by the follower directory
// into watch subscriptions on the page's topic. The directory is an
// advisory collaborator: a failed fetch must never abort a thread's
// migration, so Collect only queues subscriptions and reports the error
// for the caller to log.
type FollowerSync struct {
	dir FollowerDirectory
}

func NewFollowerSync(dir FollowerDirectory) *FollowerSync {
	return &FollowerSync{dir: dir}
}

// Collect queues a watch subscription for every follower of the page that
// has a linked forum account.
func (s *FollowerSync) Collect(ctx context.Context, pageID, topicID int64, sc *SyncContext) error {
	followers, err := s.dir.Followers(ctx, pageID)
	if err != nil {
		return fmt.Errorf("failed to collect followers: %w", err)
	}

	for _, follower := range followers {
		if follower.DiscourseUsername == "" {
			slog.WarnContext(ctx, "follower without linked forum account", "name", follower.Name, "page_id", pageID)

			continue
		}

		sc.AddWatch(topicID, follower.DiscourseUsername)
	}

	return nil
}
