package snapshots

import (
	"sort"
	"sync"
	"time"
)

// ActivityTracker remembers when each user was last seen by the API
type ActivityTracker struct {
	seen map[string]time.Time
	now  func() time.Time
	mu   sync.Mutex
}

// NewActivityTracker creates an empty tracker
func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Touch records activity for userID
func (a *ActivityTracker) Touch(userID string) {
	if userID == "" {
		return
	}
	a.mu.Lock()
	a.seen[userID] = a.now()
	a.mu.Unlock()
}

// ActiveUsers returns users seen within window, sorted. Older entries are forgotten.
func (a *ActivityTracker) ActiveUsers(window time.Duration) []string {
	cutoff := a.now().Add(-window)

	a.mu.Lock()
	defer a.mu.Unlock()

	users := make([]string, 0, len(a.seen))
	for id, last := range a.seen {
		if last.Before(cutoff) {
			delete(a.seen, id)
			continue
		}
		users = append(users, id)
	}

	sort.Strings(users)
	return users
}
