package workers

import (
	"chat-widget/domain"
	"chat-widget/mocks"
	"chat-widget/presence"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestHeartbeatWorker_RefreshesTrackerAndAnnounces(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	transportMock := mocks.NewMockTransport(ctrl)
	tracker := presence.NewTracker()
	self := domain.Participant{ID: "p-1", DisplayName: "Alice", Status: domain.StatusOnline}

	announced := make(chan domain.Participant, 16)
	transportMock.EXPECT().
		AnnouncePresence(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p domain.Participant) error {
			announced <- p
			return nil
		}).
		MinTimes(2)

	worker := NewHeartbeatWorker(slog.Default(), transportMock, tracker, self, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// Two beats is enough to prove the loop ticks
	for range 2 {
		select {
		case beat := <-announced:
			req.Equal(self.ID, beat.ID)
			req.False(beat.LastHeartbeat.IsZero())
		case <-time.After(time.Second):
			req.Fail("expected a heartbeat announcement")
		}
	}

	online := tracker.Online(time.Now().UTC(), time.Minute)
	req.Len(online, 1)
	req.Equal("Alice", online[0].DisplayName)

	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("worker should stop on context cancellation")
	}
}

func TestHeartbeatWorker_KeepsBeatingOnAnnounceFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	transportMock := mocks.NewMockTransport(ctrl)
	tracker := presence.NewTracker()
	self := domain.Participant{ID: "p-1", DisplayName: "Alice", Status: domain.StatusOnline}

	var calls int
	beats := make(chan struct{}, 16)
	transportMock.EXPECT().
		AnnouncePresence(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, domain.Participant) error {
			calls++
			beats <- struct{}{}
			if calls == 1 {
				return fmt.Errorf("channel hiccup")
			}
			return nil
		}).
		MinTimes(2)

	worker := NewHeartbeatWorker(slog.Default(), transportMock, tracker, self, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	for range 2 {
		select {
		case <-beats:
		case <-time.After(time.Second):
			req.Fail("worker should keep beating after a failed announce")
		}
	}
}
