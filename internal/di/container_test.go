package di

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/repository"
	"github.com/prohmpiriya/venue-approval/internal/service"
	"github.com/prohmpiriya/venue-approval/internal/worker"
	"github.com/prohmpiriya/venue-approval/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(ctx context.Context, n *domain.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, n.Type)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

func TestContainer_RelaysCommittedMutations(t *testing.T) {
	sink := &recordingPublisher{}
	c := NewContainer(&ContainerConfig{
		Ledger:  repository.NewMemoryLedgerRepository(),
		Version: "test",
		Sinks:   []worker.Sink{{Name: "recording", Publisher: sink}},
		Logger:  logger.NewNop(),
	})
	t.Cleanup(func() { _ = c.Close() })

	h := c.Handlers()
	require.NotNil(t, h.Event)
	require.NotNil(t, h.Notification)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.NotificationRelay.Start(ctx)
	require.Eventually(t, func() bool { return c.Broker.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	admin := domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
	_, err := c.AdminService.CreateVenue(ctx, admin, &service.VenueInput{Name: "Main Auditorium", Capacity: 500})
	require.NoError(t, err)
	_, err = c.AdminService.CreateResource(ctx, admin, &service.ResourceInput{Name: "Projectors", Total: 5})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sink.seen()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{domain.NotificationVenueCreated, domain.NotificationResourceCreated}, sink.seen())
}
