package workers

import (
	"chat-widget/contract"
	"chat-widget/domain"
	"chat-widget/presence"
	"context"
	"log/slog"
	"time"
)

// HeartbeatWorker refreshes the local presence entry and announces the
// participant through the transport on a fixed interval while the session is
// active. Announcements are fire-and-forget: a failed beat is logged and
// skipped, the staleness window tolerates it.
type HeartbeatWorker struct {
	log       *slog.Logger
	transport contract.Transport
	tracker   *presence.Tracker
	self      domain.Participant
	interval  time.Duration
}

func NewHeartbeatWorker(
	log *slog.Logger,
	transport contract.Transport,
	tracker *presence.Tracker,
	self domain.Participant,
	interval time.Duration,
) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:       log,
		transport: transport,
		tracker:   tracker,
		self:      self,
		interval:  interval,
	}
}

// Run executes the heartbeat loop until the session context ends.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Debug("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := time.Now().UTC()
			beat := w.self
			beat.LastHeartbeat = now
			w.tracker.Heartbeat(beat, now)
			if err := w.transport.AnnouncePresence(ctx, beat); err != nil {
				w.log.Warn("Presence announce failed, will retry next beat", "error", err)
			}
		}
	}
}
