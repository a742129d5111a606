package presence

import (
	"chat-widget/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const window = 60 * time.Second

func TestTracker_Online_FiltersByStalenessWindow(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker()
	now := time.Now().UTC()

	// 59s old: included. 61s old: aged out.
	tracker.Heartbeat(domain.Participant{ID: "a", DisplayName: "Alice"}, now.Add(-59*time.Second))
	tracker.Heartbeat(domain.Participant{ID: "b", DisplayName: "Bob"}, now.Add(-61*time.Second))

	online := tracker.Online(now, window)
	req.Len(online, 1)
	req.Equal("Alice", online[0].DisplayName)

	// The stale entry ages out of the view but stays in the known map.
	req.Len(tracker.Known(), 2)
}

func TestTracker_Heartbeat_RefreshesExistingEntry(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker()
	now := time.Now().UTC()

	p := domain.Participant{ID: "a", DisplayName: "Alice", Status: domain.StatusOnline}
	tracker.Heartbeat(p, now.Add(-2*window))
	req.Empty(tracker.Online(now, window))

	tracker.Heartbeat(p, now)
	online := tracker.Online(now, window)
	req.Len(online, 1)
	req.Equal(now, online[0].LastHeartbeat)

	// Only one entry per id, ever.
	req.Len(tracker.Known(), 1)
}

func TestTracker_Remove_IsImmediate(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker()
	now := time.Now().UTC()

	tracker.Heartbeat(domain.Participant{ID: "a", DisplayName: "Alice"}, now)
	tracker.Remove("a")

	req.Empty(tracker.Online(now, window))
	req.Empty(tracker.Known())
}

func TestTracker_Online_SortedByDisplayName(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker()
	now := time.Now().UTC()

	tracker.Heartbeat(domain.Participant{ID: "c", DisplayName: "Clara"}, now)
	tracker.Heartbeat(domain.Participant{ID: "a", DisplayName: "Alice"}, now)
	tracker.Heartbeat(domain.Participant{ID: "b", DisplayName: "Bob"}, now)

	online := tracker.Online(now, window)
	req.Len(online, 3)
	req.Equal("Alice", online[0].DisplayName)
	req.Equal("Bob", online[1].DisplayName)
	req.Equal("Clara", online[2].DisplayName)
}
