// Package domain contains core concepts of the chat widget.
// This file defines Participant entities and presence status.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

type Status string

const (
	StatusOnline Status = "online"
	StatusAway   Status = "away"
	StatusBusy   Status = "busy"
)

// Participant is a self-asserted chat identity.
// The ID is randomly generated, unique for the session lifetime, never verified.
// LastHeartbeat is refreshed by heartbeats only; a participant whose heartbeat
// is older than the staleness window ages out of the online view.
type Participant struct {
	ID            string
	DisplayName   string
	Status        Status
	LastHeartbeat time.Time
}
