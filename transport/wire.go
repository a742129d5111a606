// Package transport abstracts publishing events to all participants and
// subscribing to the live stream. It ships two interchangeable strategies:
// RelayTransport (networked, websocket + HTTP against a relay server) and
// LocalStoreTransport (degraded, change notifications on a shared store).
package transport

import (
	"chat-widget/domain"
	apperrors "chat-widget/errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Frame types exchanged with the relay. "publish" flows client to server,
// the rest flow server to client.
const (
	FramePublish = "publish"
	FrameInsert  = "insert"
	FrameTrack   = "track"
	FrameSync    = "sync"
	FrameJoin    = "join"
	FrameLeave   = "leave"
)

// Record is the wire shape of a chat event. The same schema is used for the
// websocket frames, the relay history endpoint, and the durable rows.
type Record struct {
	ID         string    `json:"id" validate:"required,uuid"`
	AuthorID   string    `json:"author_id" validate:"required"`
	AuthorName string    `json:"author_name" validate:"required"`
	Body       string    `json:"body"`
	OccurredAt time.Time `json:"occurred_at" validate:"required"`
	Kind       string    `json:"kind" validate:"required,oneof=message system"`
}

// PresenceRecord is the wire shape of a tracked participant.
type PresenceRecord struct {
	ID            string    `json:"id" validate:"required"`
	DisplayName   string    `json:"display_name" validate:"required"`
	Status        string    `json:"status" validate:"required,oneof=online away busy"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Frame is the envelope for every websocket message.
type Frame struct {
	Type     string           `json:"type"`
	Record   *Record          `json:"record,omitempty"`
	Presence []PresenceRecord `json:"presence,omitempty"`
}

var validate = validator.New()

// DecodeRecord validates a wire record into the typed domain model.
// Anything malformed is rejected as ErrMalformedRecord at this boundary and
// never enters the core.
func DecodeRecord(rec Record) (domain.ChatEvent, error) {
	if err := validate.Struct(rec); err != nil {
		return domain.ChatEvent{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedRecord, err)
	}
	parsedID, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.ChatEvent{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedRecord, err)
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

func EncodeRecord(evt domain.ChatEvent) Record {
	return Record{
		ID:         evt.ID.String(),
		AuthorID:   evt.AuthorID,
		AuthorName: evt.AuthorName,
		Body:       evt.Body,
		OccurredAt: evt.OccurredAt,
		Kind:       string(evt.Kind),
	}
}

// DecodePresence validates a presence record into the typed model.
func DecodePresence(rec PresenceRecord) (domain.Participant, error) {
	if err := validate.Struct(rec); err != nil {
		return domain.Participant{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedRecord, err)
	}
	return domain.Participant{
		ID:            rec.ID,
		DisplayName:   rec.DisplayName,
		Status:        domain.Status(rec.Status),
		LastHeartbeat: rec.LastHeartbeat.UTC(),
	}, nil
}

func EncodePresence(p domain.Participant) PresenceRecord {
	return PresenceRecord{
		ID:            p.ID,
		DisplayName:   p.DisplayName,
		Status:        string(p.Status),
		LastHeartbeat: p.LastHeartbeat,
	}
}
