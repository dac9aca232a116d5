package backfill

import "sort"

type watchKey struct {
	topicID  int64
	username string
}

// SyncContext holds the caches shared by one synchronization run: forum
// topics already resolved per wiki page, forum usernames already resolved
// per email, and the watch subscriptions accumulated while replaying
// comments. It is owned by a single Engine and accessed sequentially, so
// it needs no locking. A fresh run starts from a fresh context.
type SyncContext struct {
	topicByPage     map[int64]int64
	usernameByEmail map[string]string
	pendingWatch    map[watchKey]struct{}
}

func NewSyncContext() *SyncContext {
	return &SyncContext{
		topicByPage:     make(map[int64]int64),
		usernameByEmail: make(map[string]string),
		pendingWatch:    make(map[watchKey]struct{}),
	}
}

func (sc *SyncContext) TopicForPage(pageID int64) (int64, bool) {
	topicID, ok := sc.topicByPage[pageID]

	return topicID, ok
}

func (sc *SyncContext) SetTopicForPage(pageID, topicID int64) {
	sc.topicByPage[pageID] = topicID
}

func (sc *SyncContext) UsernameForEmail(email string) (string, bool) {
	username, ok := sc.usernameByEmail[email]

	return username, ok
}

func (sc *SyncContext) SetUsernameForEmail(email, username string) {
	sc.usernameByEmail[email] = username
}

// AddWatch queues a (topic, username) subscription. Repeated pairs
// collapse, so a user commenting five times yields one watch call.
func (sc *SyncContext) AddWatch(topicID int64, username string) {
	if username == "" {
		return
	}

	sc.pendingWatch[watchKey{topicID: topicID, username: username}] = struct{}{}
}

// TakeWatches drains the queued subscriptions for a topic, returning the
// usernames in stable order.
func (sc *SyncContext) TakeWatches(topicID int64) []string {
	usernames := make([]string, 0)

	for key := range sc.pendingWatch {
		if key.topicID == topicID {
			usernames = append(usernames, key.username)

			delete(sc.pendingWatch, key)
		}
	}

	sort.Strings(usernames)

	return usernames
}
