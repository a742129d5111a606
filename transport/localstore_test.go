package transport

import (
	"chat-widget/domain"
	apperrors "chat-widget/errors"
	"chat-widget/repositories"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newLocalTransport(t *testing.T, db *badger.DB) *LocalStoreTransport {
	t.Helper()
	repo := repositories.NewEventRepository(db, slog.Default())
	tr := NewLocalStoreTransport(slog.Default(), db, repo, 100, time.Minute)
	t.Cleanup(func() { _ = tr.Disconnect() })
	return tr
}

func participant(id, name string) domain.Participant {
	return domain.Participant{ID: id, DisplayName: name, Status: domain.StatusOnline}
}

// waitForPresence keeps announcing p (heartbeats repeat in real sessions too)
// until the observer sees a presence snapshot, which proves the observer's
// store subscription is live.
func waitForPresence(t *testing.T, announcer *LocalStoreTransport, p domain.Participant, observed func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		require.NoError(t, announcer.AnnouncePresence(context.Background(), p))
		return observed()
	}, 3*time.Second, 20*time.Millisecond)
}

// Two sessions sharing one store behave like two tabs of the same browser:
// a publish from one is observed by the other through change notifications.
func TestLocalStore_PublishIsObservedAcrossSessions(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	tabA := newLocalTransport(t, db)
	tabB := newLocalTransport(t, db)

	var mu sync.Mutex
	var seenByB []domain.ChatEvent
	presenceSeen := false
	tabB.OnEvent(func(evt domain.ChatEvent) {
		mu.Lock()
		defer mu.Unlock()
		seenByB = append(seenByB, evt)
	})
	tabB.OnPresence(func([]domain.Participant) {
		mu.Lock()
		defer mu.Unlock()
		presenceSeen = true
	})

	alice := participant("a", "Alice")
	req.NoError(tabA.Connect(context.Background(), alice))
	req.NoError(tabB.Connect(context.Background(), participant("b", "Bob")))
	req.Equal(domain.ConnLive, tabA.State())
	req.Equal(domain.ModeDegraded, tabA.Mode())

	waitForPresence(t, tabA, alice, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return presenceSeen
	})

	evt := domain.NewMessageEvent(alice, "hi", time.Now().UTC())
	req.NoError(tabA.Publish(context.Background(), evt))

	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seenByB) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	req.Equal(evt.ID, seenByB[0].ID)
	req.Equal("hi", seenByB[0].Body)
}

func TestLocalStore_FetchHistoryReadsStore(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repo := repositories.NewEventRepository(db, slog.Default())
	at := time.Now().UTC()
	alice := participant("a", "Alice")
	req.NoError(repo.Store(domain.NewMessageEvent(alice, "first", at)))
	req.NoError(repo.Store(domain.NewMessageEvent(alice, "second", at.Add(time.Second))))

	tr := newLocalTransport(t, db)
	req.NoError(tr.Connect(context.Background(), alice))

	history, err := tr.FetchHistory(context.Background())
	req.NoError(err)
	req.Len(history, 2)
	req.Equal("first", history[0].Body)
	req.Equal("second", history[1].Body)
}

func TestLocalStore_PresenceIsShared(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	tabA := newLocalTransport(t, db)
	tabB := newLocalTransport(t, db)

	var mu sync.Mutex
	var lastSnapshot []domain.Participant
	tabB.OnPresence(func(ps []domain.Participant) {
		mu.Lock()
		defer mu.Unlock()
		lastSnapshot = ps
	})

	alice := participant("a", "Alice")
	alice.LastHeartbeat = time.Now().UTC()
	req.NoError(tabA.Connect(context.Background(), alice))
	req.NoError(tabB.Connect(context.Background(), participant("b", "Bob")))

	waitForPresence(t, tabA, alice, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range lastSnapshot {
			if p.ID == "a" && p.DisplayName == "Alice" {
				return true
			}
		}
		return false
	})
}

func TestLocalStore_PublishRequiresConnect(t *testing.T) {
	req := require.New(t)
	tr := newLocalTransport(t, openTestDB(t))

	err := tr.Publish(context.Background(), domain.NewMessageEvent(participant("a", "Alice"), "hi", time.Now().UTC()))
	req.ErrorIs(err, apperrors.ErrPublishFailed)
}

func TestLocalStore_DisconnectStopsDelivery(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	tabA := newLocalTransport(t, db)
	tabB := newLocalTransport(t, db)

	var mu sync.Mutex
	delivered := 0
	tabB.OnEvent(func(domain.ChatEvent) {
		mu.Lock()
		defer mu.Unlock()
		delivered++
	})

	alice := participant("a", "Alice")
	req.NoError(tabA.Connect(context.Background(), alice))
	req.NoError(tabB.Connect(context.Background(), participant("b", "Bob")))
	req.NoError(tabB.Disconnect())
	req.Equal(domain.ConnIdle, tabB.State())

	req.NoError(tabA.Publish(context.Background(), domain.NewMessageEvent(alice, "late", time.Now().UTC())))

	// Give the notification a moment; nothing may arrive after disconnect.
	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	req.Zero(delivered)

	// Disconnecting twice is a no-op.
	req.NoError(tabB.Disconnect())
}

func TestLocalStore_ConnectWithCancelledContext(t *testing.T) {
	req := require.New(t)
	tr := newLocalTransport(t, openTestDB(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.Connect(ctx, participant("a", "Alice"))
	req.ErrorIs(err, context.Canceled)
	req.Equal(domain.ConnIdle, tr.State())

	// A later Connect with a healthy context still works.
	req.NoError(tr.Connect(context.Background(), participant("a", "Alice")))
	req.Equal(domain.ConnLive, tr.State())
}

func TestLocalStore_OwnWriteEchoesBack(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	tr := newLocalTransport(t, db)

	var mu sync.Mutex
	var echoed []uuid.UUID
	presenceSeen := false
	tr.OnEvent(func(evt domain.ChatEvent) {
		mu.Lock()
		defer mu.Unlock()
		echoed = append(echoed, evt.ID)
	})
	tr.OnPresence(func([]domain.Participant) {
		mu.Lock()
		defer mu.Unlock()
		presenceSeen = true
	})

	alice := participant("a", "Alice")
	req.NoError(tr.Connect(context.Background(), alice))
	waitForPresence(t, tr, alice, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return presenceSeen
	})

	evt := domain.NewMessageEvent(alice, "hi", time.Now().UTC())
	req.NoError(tr.Publish(context.Background(), evt))

	// The publishing session receives its own write back; deduplication is
	// the log's job, not the transport's.
	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(echoed) == 1 && echoed[0] == evt.ID
	}, 2*time.Second, 10*time.Millisecond)
}
