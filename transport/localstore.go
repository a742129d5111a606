package transport

import (
	"chat-widget/domain"
	apperrors "chat-widget/errors"
	"chat-widget/repositories"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	badgerpb "github.com/dgraph-io/badger/v4/pb"
)

// presencePrefix namespaces the degraded-mode presence rows. Entries are
// written with a TTL so stale participants age out of the store itself.
const presencePrefix = "presence:"

// LocalStoreTransport is the degraded strategy: no remote channel at all.
// History is read straight from the shared durable store, live updates come
// from the store's change notifications, and presence is approximated by
// TTL'd rows in the same store. Sessions sharing one store handle stay in
// sync; there is no cross-device sync in this mode.
type LocalStoreTransport struct {
	log          *slog.Logger
	db           *badger.DB
	events       repositories.IEventRepository
	historyLimit int
	presenceTTL  time.Duration

	mu         sync.Mutex
	state      domain.Connectivity
	self       domain.Participant
	cancel     context.CancelFunc
	ready      chan struct{}
	readyOnce  *sync.Once
	onEvent    func(domain.ChatEvent)
	onPresence func([]domain.Participant)
	onConn     func(domain.Connectivity)
}

func NewLocalStoreTransport(log *slog.Logger, db *badger.DB, events repositories.IEventRepository,
	historyLimit int, presenceTTL time.Duration) *LocalStoreTransport {
	return &LocalStoreTransport{
		log:          log,
		db:           db,
		events:       events,
		historyLimit: historyLimit,
		presenceTTL:  presenceTTL,
		state:        domain.ConnIdle,
	}
}

func (t *LocalStoreTransport) Mode() domain.TransportMode { return domain.ModeDegraded }

func (t *LocalStoreTransport) State() domain.Connectivity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *LocalStoreTransport) OnEvent(fn func(domain.ChatEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvent = fn
}

func (t *LocalStoreTransport) OnPresence(fn func([]domain.Participant)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPresence = fn
}

// OnPresenceLeave is part of the Transport contract but never fires here:
// degraded-mode presence entries age out of the store instead of announcing
// departures.
func (t *LocalStoreTransport) OnPresenceLeave(func(id string)) {}

func (t *LocalStoreTransport) OnConnectivity(fn func(domain.Connectivity)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConn = fn
}

// Connect subscribes to store change notifications and stays in connecting
// until the first notification comes back, which proves the subscription is
// live. The probe writes double as the initial presence announcement.
func (t *LocalStoreTransport) Connect(ctx context.Context, self domain.Participant) error {
	t.mu.Lock()
	if t.state != domain.ConnIdle {
		t.mu.Unlock()
		return apperrors.ErrAlreadyJoined
	}
	t.self = self
	watchCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.ready = make(chan struct{})
	t.readyOnce = &sync.Once{}
	ready := t.ready
	t.mu.Unlock()

	t.setState(domain.ConnConnecting)
	go t.watch(watchCtx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if ctx.Err() != nil {
			_ = t.Disconnect()
			return ctx.Err()
		}
		beat := self
		beat.LastHeartbeat = time.Now().UTC()
		if err := t.AnnouncePresence(ctx, beat); err != nil {
			t.log.Warn("Presence probe write failed", "error", err)
		}
		select {
		case <-ready:
			t.setState(domain.ConnLive)
			return nil
		case <-time.After(20 * time.Millisecond):
		}
		if ctx.Err() != nil {
			_ = t.Disconnect()
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			// The subscription should catch up shortly, go live anyway.
			t.setState(domain.ConnLive)
			return nil
		}
	}
}

// watch delivers store change notifications until Disconnect. An event row
// written by any session sharing the store (our own writes included, the
// log's dedup handles the echo) arrives here within one notification tick.
func (t *LocalStoreTransport) watch(ctx context.Context) {
	matches := []badgerpb.Match{
		{Prefix: []byte(repositories.EventPrefix)},
		{Prefix: []byte(presencePrefix)},
	}
	err := t.db.Subscribe(ctx, func(kvs *badger.KVList) error {
		t.mu.Lock()
		ready, once := t.ready, t.readyOnce
		t.mu.Unlock()
		if once != nil {
			once.Do(func() { close(ready) })
		}
		presenceChanged := false
		for _, kv := range kvs.Kv {
			key := string(kv.Key)
			switch {
			case strings.HasPrefix(key, repositories.EventPrefix):
				t.deliverEvent(kv.Value)
			case strings.HasPrefix(key, presencePrefix):
				presenceChanged = true
			}
		}
		if presenceChanged {
			t.deliverPresence()
		}
		return nil
	}, matches)
	if err != nil && ctx.Err() == nil {
		t.log.Warn("Store subscription ended unexpectedly", "error", err)
		t.setState(domain.ConnLost)
	}
}

func (t *LocalStoreTransport) deliverEvent(row []byte) {
	t.mu.Lock()
	onEvent := t.onEvent
	t.mu.Unlock()
	if onEvent == nil {
		return
	}

	var rec Record
	if err := json.Unmarshal(row, &rec); err != nil {
		t.log.Warn("Dropping unparseable event row", "error", err)
		return
	}
	evt, err := DecodeRecord(rec)
	if err != nil {
		t.log.Warn("Dropping malformed event row", "error", err)
		return
	}
	onEvent(evt)
}

func (t *LocalStoreTransport) deliverPresence() {
	t.mu.Lock()
	onPresence := t.onPresence
	t.mu.Unlock()
	if onPresence == nil {
		return
	}
	participants := t.scanPresence()
	if len(participants) > 0 {
		onPresence(participants)
	}
}

// scanPresence rebuilds the presence snapshot from the store. Expired rows
// have already aged out of the scan thanks to their TTL.
func (t *LocalStoreTransport) scanPresence() []domain.Participant {
	var participants []domain.Participant
	err := t.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(presencePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec PresenceRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					t.log.Warn("Dropping unparseable presence row", "error", err)
					return nil
				}
				p, err := DecodePresence(rec)
				if err != nil {
					t.log.Warn("Dropping malformed presence row", "error", err)
					return nil
				}
				participants = append(participants, p)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.log.Warn("Presence scan failed", "error", err)
	}
	return participants
}

// FetchHistory reads the bounded history straight from the store.
func (t *LocalStoreTransport) FetchHistory(_ context.Context) ([]domain.ChatEvent, error) {
	events, err := t.events.Recent(t.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrFetchFailed, err)
	}
	return events, nil
}

// Publish writes the event to the shared store. Every session subscribed to
// the store, this one included, observes it as a change notification.
func (t *LocalStoreTransport) Publish(_ context.Context, evt domain.ChatEvent) error {
	if t.State() != domain.ConnLive {
		return fmt.Errorf("%w: %v", apperrors.ErrPublishFailed, apperrors.ErrNotConnected)
	}
	if err := t.events.Store(evt); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrPublishFailed, err)
	}
	return nil
}

// AnnouncePresence upserts our TTL'd presence row. Missing a few beats is
// fine: the row only expires after the full staleness window.
func (t *LocalStoreTransport) AnnouncePresence(_ context.Context, p domain.Participant) error {
	data, err := json.Marshal(EncodePresence(p))
	if err != nil {
		return err
	}
	return t.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(presencePrefix+p.ID), data).WithTTL(t.presenceTTL)
		return txn.SetEntry(entry)
	})
}

// Disconnect stops notification delivery. In idle there is nothing to stop.
func (t *LocalStoreTransport) Disconnect() error {
	t.mu.Lock()
	if t.state == domain.ConnIdle {
		t.mu.Unlock()
		return nil
	}
	cancel := t.cancel
	t.cancel = nil
	t.state = domain.ConnIdle
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (t *LocalStoreTransport) setState(state domain.Connectivity) {
	t.mu.Lock()
	if t.state == state || t.cancel == nil {
		t.mu.Unlock()
		return
	}
	t.state = state
	onConn := t.onConn
	t.mu.Unlock()
	if onConn != nil {
		onConn(state)
	}
}
