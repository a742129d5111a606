// Package domain contains core concepts of the chat widget.
// This file defines ChatEvent and related rules.
// Events are immutable once created.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	KindMessage EventKind = "message"
	KindSystem  EventKind = "system"
)

// ChatEvent represents an immutable chat or system event.
// ID is the deduplication key: the same event received through the historical
// fetch and through the live stream must collapse to a single entry.
type ChatEvent struct {
	ID         uuid.UUID
	AuthorID   string
	AuthorName string
	Body       string
	OccurredAt time.Time
	Kind       EventKind
}

// NewMessageEvent builds a user message with a fresh identifier.
func NewMessageEvent(author Participant, body string, at time.Time) ChatEvent {
	return ChatEvent{
		ID:         uuid.New(),
		AuthorID:   author.ID,
		AuthorName: author.DisplayName,
		Body:       body,
		OccurredAt: at,
		Kind:       KindMessage,
	}
}

// NewSystemEvent builds an announcement attributed to the given participant,
// such as arrival and departure notices.
func NewSystemEvent(about Participant, body string, at time.Time) ChatEvent {
	return ChatEvent{
		ID:         uuid.New(),
		AuthorID:   about.ID,
		AuthorName: about.DisplayName,
		Body:       body,
		OccurredAt: at,
		Kind:       KindSystem,
	}
}
