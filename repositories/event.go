package repositories

import (
	"chat-widget/domain"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// EventPrefix is the key namespace holding chat event rows. The degraded
// transport subscribes to change notifications on this prefix.
const EventPrefix = "event:"

type IEventRepository interface {
	Store(evt domain.ChatEvent) error
	Recent(limit int) ([]domain.ChatEvent, error)
}

type EventRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewEventRepository(db *badger.DB, log *slog.Logger) EventRepository {
	return EventRepository{db: db, log: log}
}

// storedEvent is the durable row schema: id (unique), author id, author
// display name, body text, occurred-at timestamp, kind.
type storedEvent struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	OccurredAt time.Time `json:"occurred_at"`
	Kind       string    `json:"kind"`
}

// Key format "event:{timestamp_padded}:{uuid}":
//  1. 19-digit zero padding keeps keys chronologically sorted in
//     lexicographical order.
//  2. The uuid disambiguates two events occurring at the same nanosecond.
func eventKey(evt domain.ChatEvent) []byte {
	return fmt.Appendf(nil, "%s%019d:%s", EventPrefix, evt.OccurredAt.UnixNano(), evt.ID)
}

// Store persists one chat event. Rows are immutable; storing the same event
// twice overwrites it with identical content, which keeps writes idempotent.
func (r EventRepository) Store(evt domain.ChatEvent) error {
	data, err := json.Marshal(fromDomain(evt))
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(evt), data)
	})
}

// Recent returns the most recent events, ascending by occurrence time,
// bounded by limit. Thanks to the padded timestamp in the key the reverse
// scan yields newest-first; the result is flipped before returning.
// Rows that fail to parse are dropped and logged, never propagated.
func (r EventRepository) Recent(limit int) ([]domain.ChatEvent, error) {
	var rows [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(EventPrefix)
		// Seek past the newest possible key, then walk backwards.
		seekKey := append([]byte(EventPrefix), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(rows) == limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				rows = append(rows, append([]byte(nil), val...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := make([]domain.ChatEvent, 0, len(rows))
	for _, row := range rows {
		var rec storedEvent
		if err := json.Unmarshal(row, &rec); err != nil {
			r.log.Warn("Dropping unparseable event row", "error", err)
			continue
		}
		evt, err := toDomain(rec)
		if err != nil {
			r.log.Warn("Dropping malformed event row", "error", err)
			continue
		}
		events = append(events, evt)
	}
	lo.Reverse(events)
	return events, nil
}

func fromDomain(evt domain.ChatEvent) storedEvent {
	return storedEvent{
		ID:         evt.ID.String(),
		AuthorID:   evt.AuthorID,
		AuthorName: evt.AuthorName,
		Body:       evt.Body,
		OccurredAt: evt.OccurredAt,
		Kind:       string(evt.Kind),
	}
}

func toDomain(rec storedEvent) (domain.ChatEvent, error) {
	parsedID, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.ChatEvent{}, err
	}
	return domain.ChatEvent{
		ID:         parsedID,
		AuthorID:   rec.AuthorID,
		AuthorName: rec.AuthorName,
		Body:       rec.Body,
		OccurredAt: rec.OccurredAt.UTC(),
		Kind:       domain.EventKind(rec.Kind),
	}, nil
}
