package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/repository"
	"github.com/stretchr/testify/require"
)

var (
	coordinator = domain.Actor{ID: "coord-1", Role: domain.RoleCoordinator, Department: "CSE"}
	otherCoord  = domain.Actor{ID: "coord-2", Role: domain.RoleCoordinator, Department: "CSE"}
	eceCoord    = domain.Actor{ID: "coord-3", Role: domain.RoleCoordinator, Department: "ECE"}
	hodCSE      = domain.Actor{ID: "hod-cse", Role: domain.RoleHOD, Department: "CSE"}
	hodECE      = domain.Actor{ID: "hod-ece", Role: domain.RoleHOD, Department: "ECE"}
	dean        = domain.Actor{ID: "dean-1", Role: domain.RoleDean}
	head        = domain.Actor{ID: "head-1", Role: domain.RoleInstitutionalHead}
	admin       = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
)

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mu          sync.Mutex
	Published   []*domain.Notification
	PublishFunc func(ctx context.Context, n *domain.Notification) error
}

func (m *MockEventPublisher) Publish(ctx context.Context, n *domain.Notification) error {
	m.mu.Lock()
	m.Published = append(m.Published, n)
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, n)
	}
	return nil
}

func (m *MockEventPublisher) Close() error { return nil }

func (m *MockEventPublisher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Published))
	for i, n := range m.Published {
		out[i] = n.Type
	}
	return out
}

// ledgerFixture is a memory ledger with a small catalog and the services over it
type ledgerFixture struct {
	ledger    *repository.MemoryLedgerRepository
	publisher *MockEventPublisher
	approval  ApprovalService
	query     QueryService
	audit     AuditService
	admin     AdminService

	auditorium *domain.Venue
	cseHall    *domain.Venue
	mics       *domain.Resource
	projectors *domain.Resource
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()

	ledger := repository.NewMemoryLedgerRepository()
	pub := &MockEventPublisher{}
	f := &ledgerFixture{
		ledger:    ledger,
		publisher: pub,
		approval:  NewApprovalService(ledger, NewAllocator(), pub, nil),
		query:     NewQueryService(ledger),
		audit:     NewAuditService(ledger),
		admin:     NewAdminService(ledger, pub, nil),
	}

	dept := "CSE"
	now := time.Now().UTC()
	f.auditorium = &domain.Venue{ID: uuid.NewString(), Name: "Main Auditorium", Type: "Auditorium", Capacity: 500, CreatedAt: now}
	f.cseHall = &domain.Venue{ID: uuid.NewString(), Name: "Conference Hall A", Type: "Hall", Capacity: 50, Department: &dept, CreatedAt: now}
	f.mics = &domain.Resource{ID: uuid.NewString(), Name: "Wireless Mics", Type: "Audio", Total: 10, Available: 10, UpdatedAt: now}
	f.projectors = &domain.Resource{ID: uuid.NewString(), Name: "Projectors", Type: "Visual", Total: 5, Available: 5, UpdatedAt: now}

	err := ledger.WithTx(context.Background(), func(ctx context.Context, tx repository.LedgerTx) error {
		for _, v := range []*domain.Venue{f.auditorium, f.cseHall} {
			if err := tx.InsertVenue(ctx, v); err != nil {
				return err
			}
		}
		for _, r := range []*domain.Resource{f.mics, f.projectors} {
			if err := tx.InsertResource(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	pub.Published = nil
	return f
}

func (f *ledgerFixture) draft(venue *domain.Venue, date string, claims ...domain.Claim) *domain.EventDraft {
	return &domain.EventDraft{
		Title:        "Tech Talk",
		Description:  "Quarterly talk",
		Date:         date,
		Duration:     90,
		Participants: 40,
		VenueID:      venue.ID,
		Claims:       claims,
	}
}

func (f *ledgerFixture) available(t *testing.T, r *domain.Resource) int {
	t.Helper()
	got, err := f.ledger.GetResource(context.Background(), r.ID)
	require.NoError(t, err)
	return got.Available
}

func (f *ledgerFixture) submit(t *testing.T, actor domain.Actor, d *domain.EventDraft) *domain.Event {
	t.Helper()
	ev, err := f.approval.Submit(context.Background(), actor, d)
	require.NoError(t, err)
	return ev
}

// approveAll drives a pending CSE event to APPROVED
func (f *ledgerFixture) approveAll(t *testing.T, id string) *domain.Event {
	t.Helper()
	ctx := context.Background()
	var ev *domain.Event
	var err error
	for _, a := range []domain.Actor{hodCSE, dean, head} {
		ev, err = f.approval.Transition(ctx, a, id, domain.ActionApprove, "ok", "")
		require.NoError(t, err)
	}
	return ev
}
