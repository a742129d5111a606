package transport

import (
	"chat-widget/domain"
	apperrors "chat-widget/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RelayTransport is the networked strategy: a websocket channel for live
// frames and an HTTP call for the bounded historical fetch, both against the
// relay server.
//
// Reconnection is owned here: after a channel-level error the transport moves
// to lost, waits, and redials on its own. Callers observe the transitions
// through OnConnectivity and never re-implement retry.
type RelayTransport struct {
	log          *slog.Logger
	baseURL      string
	wsURL        string
	historyLimit int
	redialDelay  time.Duration
	httpClient   *http.Client
	dialer       *websocket.Dialer

	mu         sync.Mutex
	state      domain.Connectivity
	conn       *websocket.Conn
	self       domain.Participant
	cancel     context.CancelFunc
	onEvent    func(domain.ChatEvent)
	onPresence func([]domain.Participant)
	onLeave    func(id string)
	onConn     func(domain.Connectivity)

	// writeMu serializes websocket writes, gorilla allows one writer at a time.
	writeMu sync.Mutex
}

func NewRelayTransport(log *slog.Logger, baseURL string, historyLimit int, redialDelay time.Duration) *RelayTransport {
	base := strings.TrimSuffix(baseURL, "/")
	ws := base
	switch {
	case strings.HasPrefix(base, "https://"):
		ws = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		ws = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return &RelayTransport{
		log:          log,
		baseURL:      base,
		wsURL:        ws + "/ws",
		historyLimit: historyLimit,
		redialDelay:  redialDelay,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		dialer:       websocket.DefaultDialer,
		state:        domain.ConnIdle,
	}
}

func (t *RelayTransport) Mode() domain.TransportMode { return domain.ModeNetworked }

func (t *RelayTransport) State() domain.Connectivity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *RelayTransport) OnEvent(fn func(domain.ChatEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvent = fn
}

func (t *RelayTransport) OnPresence(fn func([]domain.Participant)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPresence = fn
}

func (t *RelayTransport) OnPresenceLeave(fn func(id string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLeave = fn
}

func (t *RelayTransport) OnConnectivity(fn func(domain.Connectivity)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConn = fn
}

// Connect moves idle -> connecting and starts the channel loop. A dial
// failure is not an error: the loop keeps retrying and the caller observes
// the connecting status.
func (t *RelayTransport) Connect(_ context.Context, self domain.Participant) error {
	t.mu.Lock()
	if t.state != domain.ConnIdle {
		t.mu.Unlock()
		return apperrors.ErrAlreadyJoined
	}
	t.self = self
	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.mu.Unlock()

	t.setState(domain.ConnConnecting)
	go t.run(runCtx)
	return nil
}

func (t *RelayTransport) run(ctx context.Context) {
	for {
		conn, resp, err := t.dialer.DialContext(ctx, t.wsURL, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Warn("Relay dial failed, retrying", "url", t.wsURL, "error", err)
			if !t.sleep(ctx) {
				return
			}
			continue
		}

		t.setConn(conn)
		t.setState(domain.ConnLive)
		// Re-announce after every (re)connect so the presence channel
		// tracks us again.
		if err := t.AnnouncePresence(ctx, t.selfSnapshot()); err != nil {
			t.log.Warn("Presence announce after connect failed", "error", err)
		}

		t.readLoop(conn)
		t.setConn(nil)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		t.log.Warn("Relay channel lost, scheduling reconnect", "error", apperrors.ErrChannelLost)
		t.setState(domain.ConnLost)
		if !t.sleep(ctx) {
			return
		}
		t.setState(domain.ConnConnecting)
	}
}

// sleep waits for the redial delay, reporting false when the context ended.
func (t *RelayTransport) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(t.redialDelay):
		return true
	}
}

func (t *RelayTransport) readLoop(conn *websocket.Conn) {
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		t.dispatch(frame)
	}
}

func (t *RelayTransport) dispatch(frame Frame) {
	t.mu.Lock()
	onEvent, onPresence, onLeave := t.onEvent, t.onPresence, t.onLeave
	t.mu.Unlock()

	switch frame.Type {
	case FrameInsert:
		if frame.Record == nil || onEvent == nil {
			return
		}
		evt, err := DecodeRecord(*frame.Record)
		if err != nil {
			t.log.Warn("Dropping malformed record from live stream", "error", err)
			return
		}
		onEvent(evt)
	case FrameSync, FrameJoin:
		if onPresence == nil {
			return
		}
		participants := make([]domain.Participant, 0, len(frame.Presence))
		for _, rec := range frame.Presence {
			p, err := DecodePresence(rec)
			if err != nil {
				t.log.Warn("Dropping malformed presence record", "error", err)
				continue
			}
			participants = append(participants, p)
		}
		if len(participants) > 0 {
			onPresence(participants)
		}
	case FrameLeave:
		if onLeave == nil {
			return
		}
		for _, rec := range frame.Presence {
			if rec.ID != "" {
				onLeave(rec.ID)
			}
		}
	default:
		t.log.Debug("Ignoring unknown frame", "type", frame.Type)
	}
}

// FetchHistory loads the bounded, ascending history from the relay.
// Malformed rows are dropped and logged; a transport-level failure is
// reported as ErrFetchFailed and leaves the session with an empty log.
func (t *RelayTransport) FetchHistory(ctx context.Context) ([]domain.ChatEvent, error) {
	url := fmt.Sprintf("%s/history?limit=%d", t.baseURL, t.historyLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrFetchFailed, err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: relay answered %s", apperrors.ErrFetchFailed, resp.Status)
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrFetchFailed, err)
	}

	events := make([]domain.ChatEvent, 0, len(records))
	for _, rec := range records {
		evt, err := DecodeRecord(rec)
		if err != nil {
			t.log.Warn("Dropping malformed record from history", "error", err)
			continue
		}
		events = append(events, evt)
	}
	return events, nil
}

// Publish sends the event once. A failure is surfaced to the caller and the
// message is not retried; the broken channel is picked up by the read loop,
// which drives the lost -> connecting transition.
func (t *RelayTransport) Publish(_ context.Context, evt domain.ChatEvent) error {
	rec := EncodeRecord(evt)
	if err := t.writeFrame(Frame{Type: FramePublish, Record: &rec}); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrPublishFailed, err)
	}
	return nil
}

// AnnouncePresence upserts us on the relay's presence channel. The relay
// treats repeated track frames as heartbeat refreshes.
func (t *RelayTransport) AnnouncePresence(_ context.Context, p domain.Participant) error {
	rec := EncodePresence(p)
	return t.writeFrame(Frame{Type: FrameTrack, Presence: []PresenceRecord{rec}})
}

func (t *RelayTransport) writeFrame(frame Frame) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return apperrors.ErrNotConnected
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

// Disconnect stops the channel loop and further callback delivery.
// In idle there is nothing to tear down.
func (t *RelayTransport) Disconnect() error {
	t.mu.Lock()
	if t.state == domain.ConnIdle {
		t.mu.Unlock()
		return nil
	}
	cancel, conn := t.cancel, t.conn
	t.cancel, t.conn = nil, nil
	t.state = domain.ConnIdle
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

func (t *RelayTransport) selfSnapshot() domain.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.self
}

func (t *RelayTransport) setConn(conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = conn
}

func (t *RelayTransport) setState(state domain.Connectivity) {
	t.mu.Lock()
	if t.state == state || (state != domain.ConnIdle && t.cancel == nil) {
		// Disconnected in the meantime: keep idle, drop the late transition.
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
