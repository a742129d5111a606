// Package session wires identity, transport, timeline and presence into the
// outward-facing chat operations: join, send, leave. Orchestration only, the
// components own their state.
package session

import (
	"chat-widget/contract"
	"chat-widget/domain"
	apperrors "chat-widget/errors"
	"chat-widget/identity"
	"chat-widget/presence"
	"chat-widget/runtime/workers"
	"chat-widget/timeline"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Config carries the tunables both observed variants of this widget disagree
// on. They are knobs, not constants: neither variant is authoritative.
type Config struct {
	HeartbeatInterval time.Duration
	StalenessWindow   time.Duration
	// AnnounceLeaveInDegradedMode controls whether Leave writes a departure
	// event when no remote channel exists. Off by default: the session is
	// ending, usually nothing is left to observe it.
	AnnounceLeaveInDegradedMode bool
	WorkerRestartDelay          time.Duration
}

func (c Config) withDefaults(log *slog.Logger) Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.StalenessWindow <= 0 {
		c.StalenessWindow = 60 * time.Second
	}
	// The window must exceed the heartbeat interval by a safety margin so a
	// missed beat does not cause offline flicker.
	if c.StalenessWindow < 3*c.HeartbeatInterval {
		log.Warn("Staleness window below 3x heartbeat interval, raising it",
			"window", c.StalenessWindow, "interval", c.HeartbeatInterval)
		c.StalenessWindow = 3 * c.HeartbeatInterval
	}
	if c.WorkerRestartDelay <= 0 {
		c.WorkerRestartDelay = 200 * time.Millisecond
	}
	return c
}

// Controller owns the session lifecycle. The transport is passed in
// explicitly and owned here; there is no ambient shared client.
type Controller struct {
	log       *slog.Logger
	cfg       Config
	ids       identity.IStore
	transport contract.Transport
	events    *timeline.Log
	tracker   *presence.Tracker

	mu          sync.Mutex
	self        domain.Participant
	joined      bool
	closed      bool
	stopWorkers context.CancelFunc
}

func NewController(log *slog.Logger, cfg Config, ids identity.IStore, transport contract.Transport) *Controller {
	cfg = cfg.withDefaults(log)
	return &Controller{
		log:       log,
		cfg:       cfg,
		ids:       ids,
		transport: transport,
		events:    timeline.NewLog(),
		tracker:   presence.NewTracker(),
	}
}

// Join validates or restores the identity, opens the transport, loads the
// bounded history, starts heartbeating and announces the arrival.
// A failed historical fetch is a warning, not an error: the session proceeds
// with an empty log.
func (c *Controller) Join(ctx context.Context, displayName string) error {
	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return apperrors.ErrAlreadyJoined
	}
	c.closed = false
	c.mu.Unlock()

	self, found, err := c.ids.Load()
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}
	name := strings.TrimSpace(displayName)
	switch {
	case !found:
		if self, err = c.ids.Create(displayName); err != nil {
			return err
		}
	case name != "" && name != self.DisplayName:
		self.DisplayName = name
		if err := c.ids.Persist(self); err != nil {
			return fmt.Errorf("persisting identity: %w", err)
		}
	}
	self.Status = domain.StatusOnline

	// Callbacks are wired before Connect so no live frame is lost. Live
	// events may interleave with the historical fetch in any order; the
	// log's dedup by id is what makes that safe.
	c.transport.OnEvent(func(evt domain.ChatEvent) {
		if c.isClosed() {
			return
		}
		c.events.Append(evt)
	})
	c.transport.OnPresence(func(ps []domain.Participant) {
		if c.isClosed() {
			return
		}
		now := time.Now().UTC()
		for _, p := range ps {
			at := p.LastHeartbeat
			if at.IsZero() {
				at = now
			}
			c.tracker.Heartbeat(p, at)
		}
	})
	c.transport.OnPresenceLeave(func(id string) {
		if c.isClosed() {
			return
		}
		c.tracker.Remove(id)
	})
	c.transport.OnConnectivity(func(state domain.Connectivity) {
		c.log.Info("Connectivity changed", "state", state)
	})

	if err := c.transport.Connect(ctx, self); err != nil {
		return fmt.Errorf("opening transport: %w", err)
	}
	c.awaitLive(ctx, 2*time.Second)

	history, err := c.transport.FetchHistory(ctx)
	switch {
	case err != nil:
		c.log.Warn("Historical fetch failed, starting with an empty log", "error", err)
	case c.isClosed():
		// Late result after teardown: discard, never append.
	default:
		c.events.LoadBatch(history)
	}

	now := time.Now().UTC()
	c.tracker.Heartbeat(self, now)
	beat := self
	beat.LastHeartbeat = now
	if err := c.transport.AnnouncePresence(ctx, beat); err != nil {
		c.log.Warn("Initial presence announce failed", "error", err)
	}

	arrival := domain.NewSystemEvent(self, fmt.Sprintf("%s has entered the chat", self.DisplayName), now)
	c.events.Append(arrival)
	if err := c.transport.Publish(ctx, arrival); err != nil {
		c.log.Warn("Arrival announcement not delivered", "error", err)
	}

	// A fresh supervisor per join: the previous session's workers carry the
	// old identity and must not be resurrected on rejoin.
	workerCtx, cancel := context.WithCancel(context.Background())
	sup := workers.NewSupervisor(c.log, c.cfg.WorkerRestartDelay)
	heartbeat := workers.NewHeartbeatWorker(c.log, c.transport, c.tracker, self, c.cfg.HeartbeatInterval)
	go sup.Add(heartbeat).Run(workerCtx)

	c.mu.Lock()
	c.self = self
	c.joined = true
	c.stopWorkers = cancel
	c.mu.Unlock()
	return nil
}

// Send constructs a message event and publishes it. The local append comes
// first: the sender sees the message immediately even with no connectivity,
// and the live echo deduplicates against this optimistic copy.
// A publish failure is surfaced once; the message is neither retried nor
// removed from the local log.
func (c *Controller) Send(ctx context.Context, body string) error {
	c.mu.Lock()
	self, joined := c.self, c.joined
	c.mu.Unlock()
	if !joined {
		return apperrors.ErrNotConnected
	}
	if strings.TrimSpace(body) == "" {
		return nil
	}

	evt := domain.NewMessageEvent(self, body, time.Now().UTC())
	c.events.Append(evt)
	if err := c.transport.Publish(ctx, evt); err != nil {
		c.log.Warn("Message kept locally only", "error", err)
		return err
	}
	return nil
}

// Leave announces the departure, then tears the session down in a fixed
// order: presence removal, workers, callback delivery, transport last,
// persisted identity cleared at the end.
func (c *Controller) Leave(ctx context.Context) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return nil
	}
	self := c.self
	stop := c.stopWorkers
	c.joined = false
	c.stopWorkers = nil
	c.mu.Unlock()

	departure := domain.NewSystemEvent(self, fmt.Sprintf("%s has left the chat", self.DisplayName), time.Now().UTC())
	c.events.Append(departure)
	if c.transport.Mode() == domain.ModeNetworked || c.cfg.AnnounceLeaveInDegradedMode {
		if err := c.transport.Publish(ctx, departure); err != nil {
			c.log.Warn("Departure announcement not delivered", "error", err)
		}
	}

	c.tracker.Remove(self.ID)

	if stop != nil {
		stop()
	}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if err := c.transport.Disconnect(); err != nil {
		c.log.Warn("Transport teardown failed", "error", err)
	}
	if err := c.ids.Clear(); err != nil {
		return fmt.Errorf("clearing identity: %w", err)
	}
	return nil
}

// Events returns the display-ordered log snapshot.
func (c *Controller) Events() []domain.ChatEvent {
	return c.events.Events()
}

// Online returns the participants inside the staleness window.
func (c *Controller) Online(now time.Time) []domain.Participant {
	return c.tracker.Online(now, c.cfg.StalenessWindow)
}

// OnEvent registers a read-model observer for newly appended events.
func (c *Controller) OnEvent(fn func(domain.ChatEvent)) {
	c.events.OnAppend(fn)
}

func (c *Controller) Self() domain.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

func (c *Controller) State() domain.SessionState {
	c.mu.Lock()
	self := c.self
	c.mu.Unlock()
	return domain.SessionState{
		Self:         self,
		Mode:         c.transport.Mode(),
		Connectivity: c.transport.State(),
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// awaitLive gives the channel a moment to come up so the arrival
// announcement rides the first connection. Timing out is fine: the session
// works locally and the transport keeps retrying in the background.
func (c *Controller) awaitLive(ctx context.Context, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.transport.State() == domain.ConnLive || ctx.Err() != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	c.log.Warn("Channel still not live, continuing locally", "state", c.transport.State())
}
