package transport

import (
	"chat-widget/domain"
	apperrors "chat-widget/errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord_RoundTrip(t *testing.T) {
	req := require.New(t)
	evt := domain.ChatEvent{
		ID:         uuid.New(),
		AuthorID:   "author-1",
		AuthorName: "Alice",
		Body:       "hi",
		OccurredAt: time.Now().UTC(),
		Kind:       domain.KindMessage,
	}

	decoded, err := DecodeRecord(EncodeRecord(evt))
	req.NoError(err)
	req.Equal(evt, decoded)
}

func TestDecodeRecord_RejectsMalformedInput(t *testing.T) {
	valid := Record{
		ID:         uuid.NewString(),
		AuthorID:   "author-1",
		AuthorName: "Alice",
		Body:       "hi",
		OccurredAt: time.Now().UTC(),
		Kind:       "message",
	}

	tests := []struct {
		name   string
		mutate func(r *Record)
	}{
		{"not a uuid", func(r *Record) { r.ID = "not-a-uuid" }},
		{"missing author id", func(r *Record) { r.AuthorID = "" }},
		{"missing author name", func(r *Record) { r.AuthorName = "" }},
		{"zero timestamp", func(r *Record) { r.OccurredAt = time.Time{} }},
		{"unknown kind", func(r *Record) { r.Kind = "announcement" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := valid
			tc.mutate(&rec)
			_, err := DecodeRecord(rec)
			require.ErrorIs(t, err, apperrors.ErrMalformedRecord)
		})
	}
}

func TestDecodeRecord_EmptyBodyIsAllowed(t *testing.T) {
	rec := Record{
		ID:         uuid.NewString(),
		AuthorID:   "author-1",
		AuthorName: "Alice",
		OccurredAt: time.Now().UTC(),
		Kind:       "system",
	}
	_, err := DecodeRecord(rec)
	require.NoError(t, err)
}

func TestDecodePresence_RejectsUnknownStatus(t *testing.T) {
	req := require.New(t)
	rec := PresenceRecord{
		ID:            "participant-1",
		DisplayName:   "Alice",
		Status:        "sleeping",
		LastHeartbeat: time.Now().UTC(),
	}
	_, err := DecodePresence(rec)
	req.ErrorIs(err, apperrors.ErrMalformedRecord)

	rec.Status = string(domain.StatusAway)
	p, err := DecodePresence(rec)
	req.NoError(err)
	req.Equal(domain.StatusAway, p.Status)
}
