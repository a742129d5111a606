// Package timeline builds the local message log from observed events.
// Handles deduplication and read-only snapshots.
// Does not emit events or interact with UI directly.
package timeline

import (
	"chat-widget/domain"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Log is the deduplicated collection of chat and system events.
// Display order is ascending occurrence time for the historical prefix and
// arrival order afterwards: an out-of-order event arriving late is appended,
// never spliced in, so already-displayed entries keep their position.
// The log never discards events within a session; bounding the history is the
// fetch's responsibility, not the log's.
type Log struct {
	mu       sync.Mutex
	seen     map[uuid.UUID]struct{}
	events   []domain.ChatEvent
	watchers []func(domain.ChatEvent)
}

func NewLog() *Log {
	return &Log{seen: make(map[uuid.UUID]struct{})}
}

// Append adds the event unless its ID has been seen before.
// A duplicate is silently dropped and Append reports false.
func (l *Log) Append(evt domain.ChatEvent) bool {
	l.mu.Lock()
	if _, dup := l.seen[evt.ID]; dup {
		l.mu.Unlock()
		return false
	}
	l.seen[evt.ID] = struct{}{}
	l.events = append(l.events, evt)
	watchers := make([]func(domain.ChatEvent), len(l.watchers))
	copy(watchers, l.watchers)
	l.mu.Unlock()

	// Observers run outside the lock so a watcher may read the log back.
	for _, fn := range watchers {
		fn(evt)
	}
	return true
}

// LoadBatch applies the one-time historical fetch. Events are sorted ascending
// by occurrence time before appending and deduplicated one by one, so a live
// event that raced ahead of the fetch is not duplicated.
// It returns the number of events actually appended.
func (l *Log) LoadBatch(events []domain.ChatEvent) int {
	batch := make([]domain.ChatEvent, len(events))
	copy(batch, events)
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].OccurredAt.Before(batch[j].OccurredAt)
	})

	appended := 0
	for _, evt := range batch {
		if l.Append(evt) {
			appended++
		}
	}
	return appended
}

// Events returns a read-only snapshot in display order.
func (l *Log) Events() []domain.ChatEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	snapshot := make([]domain.ChatEvent, len(l.events))
	copy(snapshot, l.events)
	return snapshot
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// OnAppend registers an observer invoked for every newly appended event.
// Duplicates never reach observers.
func (l *Log) OnAppend(fn func(domain.ChatEvent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watchers = append(l.watchers, fn)
}
