// Package presence maintains the set of known participants and their
// liveness, fed by heartbeats and filtered by a staleness window.
package presence

import (
	"chat-widget/domain"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Tracker owns the full known-participant map. The online view is always a
// filtered projection over that map: stale entries age out of the view, they
// are never deleted by the staleness check itself.
type Tracker struct {
	mu           sync.Mutex
	participants map[string]domain.Participant
}

func NewTracker() *Tracker {
	return &Tracker{participants: make(map[string]domain.Participant)}
}

// Heartbeat upserts the participant and refreshes its LastHeartbeat.
// Every mutation is a single atomic upsert, so a heartbeat firing while a
// presence snapshot is being applied still leaves the map consistent.
func (t *Tracker) Heartbeat(p domain.Participant, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p.LastHeartbeat = at
	t.participants[p.ID] = p
}

// Remove deletes the participant on graceful leave, without waiting for
// staleness.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.participants, id)
}

// Online returns the participants whose last heartbeat is younger than
// window, sorted by display name for stable rendering.
// The window should exceed the heartbeat interval by at least 3x so a single
// missed beat does not cause offline flicker.
func (t *Tracker) Online(now time.Time, window time.Duration) []domain.Participant {
	t.mu.Lock()
	online := lo.Filter(lo.Values(t.participants), func(p domain.Participant, _ int) bool {
		return now.Sub(p.LastHeartbeat) < window
	})
	t.mu.Unlock()

	sort.Slice(online, func(i, j int) bool {
		return online[i].DisplayName < online[j].DisplayName
	})
	return online
}

// Known returns a snapshot of every participant ever seen this session,
// stale or not.
func (t *Tracker) Known() []domain.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()
	return lo.Values(t.participants)
}
