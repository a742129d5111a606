package timeline

import (
	"chat-widget/domain"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func messageAt(body string, at time.Time) domain.ChatEvent {
	return domain.ChatEvent{
		ID:         uuid.New(),
		AuthorID:   "author-1",
		AuthorName: "Alice",
		Body:       body,
		OccurredAt: at,
		Kind:       domain.KindMessage,
	}
}

func TestLog_Append_IsIdempotent(t *testing.T) {
	req := require.New(t)
	log := NewLog()
	evt := messageAt("hi", time.Now().UTC())

	req.True(log.Append(evt))
	req.False(log.Append(evt))

	events := log.Events()
	req.Len(events, 1)
	req.Equal(evt, events[0])
}

func TestLog_LoadBatch_SortsAndDeduplicates(t *testing.T) {
	req := require.New(t)
	log := NewLog()
	at := time.Now().UTC()

	// A live event raced ahead of the historical fetch.
	live := messageAt("live", at.Add(2*time.Second))
	req.True(log.Append(live))

	history := []domain.ChatEvent{
		messageAt("second", at.Add(time.Second)),
		messageAt("first", at),
		live,
	}
	appended := log.LoadBatch(history)
	req.Equal(2, appended)

	events := log.Events()
	req.Len(events, 3)
	// The live copy keeps its arrival position, the batch is time-ordered.
	req.Equal("live", events[0].Body)
	req.Equal("first", events[1].Body)
	req.Equal("second", events[2].Body)
}

func TestLog_LateOutOfOrderEvent_IsAppendedNotResorted(t *testing.T) {
	req := require.New(t)
	log := NewLog()
	at := time.Now().UTC()

	log.Append(messageAt("newer", at.Add(time.Minute)))
	log.Append(messageAt("older", at))

	events := log.Events()
	req.Equal("newer", events[0].Body)
	req.Equal("older", events[1].Body)
}

func TestLog_OnAppend_SkipsDuplicates(t *testing.T) {
	req := require.New(t)
	log := NewLog()

	var observed []string
	log.OnAppend(func(evt domain.ChatEvent) {
		observed = append(observed, evt.Body)
	})

	evt := messageAt("once", time.Now().UTC())
	log.Append(evt)
	log.Append(evt)

	req.Equal([]string{"once"}, observed)
}

func TestLog_Events_ReturnsSnapshot(t *testing.T) {
	req := require.New(t)
	log := NewLog()
	log.Append(messageAt("hi", time.Now().UTC()))

	snapshot := log.Events()
	snapshot[0].Body = "mutated"

	req.Equal("hi", log.Events()[0].Body)
}
