//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-widget/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Transport abstracts "publish an event to all participants" and "subscribe to
// a live stream of events". Two strategies exist: the relay-backed networked
// strategy and the local-store degraded strategy, selected once at startup.
//
// Callbacks registered through the On* methods are invoked from the transport
// delivery goroutine and must not block. They must be registered before
// Connect; late registration is not an error but frames delivered in between
// are lost.
type Transport interface {
	// Connect brings the transport from idle to connecting. The networked
	// strategy keeps retrying the channel in the background, so a dial
	// failure is reported as status, not as an error.
	Connect(ctx context.Context, self domain.Participant) error
	// FetchHistory returns past events ascending by occurrence time, bounded
	// by the configured limit. Restartable only by reconnecting.
	FetchHistory(ctx context.Context) ([]domain.ChatEvent, error)
	// Publish sends the event to all participants. A failure is reported to
	// the caller exactly once; the event is not queued or retried.
	Publish(ctx context.Context, evt domain.ChatEvent) error
	// AnnouncePresence upserts the participant on the presence channel.
	// Called on join and on every heartbeat tick.
	AnnouncePresence(ctx context.Context, p domain.Participant) error
	OnEvent(fn func(domain.ChatEvent))
	// OnPresence delivers eventually-consistent snapshots of tracked
	// participants. Entries are upserts; absence does not mean departure.
	OnPresence(fn func([]domain.Participant))
	// OnPresenceLeave delivers explicit departure deltas. The degraded
	// strategy never emits them: its presence entries age out of the store.
	OnPresenceLeave(fn func(id string))
	OnConnectivity(fn func(domain.Connectivity))
	Mode() domain.TransportMode
	State() domain.Connectivity
	// Disconnect stops callback delivery and tears the channel down.
	// It is a no-op in the idle and lost states.
	Disconnect() error
}
