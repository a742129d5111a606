package domain

// TransportMode is decided once at startup from configuration availability.
type TransportMode string

const (
	ModeNetworked TransportMode = "networked"
	ModeDegraded  TransportMode = "degraded"
)

// Connectivity follows the connection state machine:
// idle -> connecting -> live, live -> lost on channel error,
// lost -> connecting on automatic re-subscription.
type Connectivity string

const (
	ConnIdle       Connectivity = "idle"
	ConnConnecting Connectivity = "connecting"
	ConnLive       Connectivity = "live"
	ConnLost       Connectivity = "lost"
)

// SessionState is the outward-facing snapshot of a running session.
type SessionState struct {
	Self         Participant
	Mode         TransportMode
	Connectivity Connectivity
}
