package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publisherStub struct {
	mu       sync.Mutex
	channels []string
	payloads []Notification
	failures int
}

func (p *publisherStub) Publish(ctx context.Context, channel string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("redis unavailable")
	}
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, payload.(Notification))
	return nil
}

func TestNotificationServicePublishesToChannel(t *testing.T) {
	pub := &publisherStub{failures: 1}
	svc := NewNotificationService(pub, NotificationConfig{Enabled: true, Channel: "events", Workers: 1, Retries: 2}, nil, nil)
	svc.Start(context.Background())

	svc.Notify(context.Background(), Notification{Kind: NotifyGraded, Message: "graded", ApplicantID: "A1"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.payloads, 1)
	assert.Equal(t, []string{"events"}, pub.channels)
	assert.Equal(t, NotifyGraded, pub.payloads[0].Kind)
	assert.False(t, pub.payloads[0].OccurredAt.IsZero())
}

func TestNotificationServiceDisabledOnlyLogs(t *testing.T) {
	pub := &publisherStub{}
	svc := NewNotificationService(pub, NotificationConfig{Enabled: false, Workers: 1}, NewMetricsService(), nil)
	svc.Start(context.Background())
	svc.Notify(context.Background(), Notification{Kind: NotifyAccepted})
	require.NoError(t, svc.Stop(context.Background()))

	assert.Empty(t, pub.payloads)
}

func TestNotificationServiceNeverBlocksWhenStopped(t *testing.T) {
	svc := NewNotificationService(&publisherStub{}, NotificationConfig{Enabled: true}, nil, nil)
	done := make(chan struct{})
	go func() {
		svc.Notify(context.Background(), Notification{Kind: NotifyAccepted})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a stopped queue")
	}
}
