package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalService_Submit(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	ev, err := f.approval.Submit(ctx, coordinator, f.draft(f.auditorium, "2026-12-01",
		domain.Claim{ResourceID: f.mics.ID, Quantity: 4},
		domain.Claim{ResourceID: f.projectors.ID, Quantity: 1},
	))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPendingHOD, ev.Status)
	assert.Equal(t, "CSE", ev.Department)
	assert.Equal(t, coordinator.ID, ev.CoordinatorID)
	assert.Equal(t, "Main Auditorium", ev.VenueName)
	require.Len(t, ev.Claims, 2)
	assert.Equal(t, f.mics.ID, ev.Claims[0].ResourceID, "claims keep request order")
	require.Len(t, ev.Timeline, 1)
	assert.Equal(t, domain.AuditSubmitted, ev.Timeline[0].Action)
	assert.Equal(t, "Initial request submitted", ev.Timeline[0].Note)

	assert.Equal(t, 6, f.available(t, f.mics))
	assert.Equal(t, 4, f.available(t, f.projectors))
	assert.Equal(t, []string{domain.NotificationEventSubmitted}, f.publisher.Types())

	stored, err := f.ledger.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Claims, stored.Claims)
}

func TestApprovalService_Submit_DefaultDepartment(t *testing.T) {
	f := newLedgerFixture(t)
	noDept := domain.Actor{ID: "coord-x", Role: domain.RoleCoordinator}

	ev := f.submit(t, noDept, f.draft(f.auditorium, "2026-12-02"))
	assert.Equal(t, domain.DefaultDepartment, ev.Department)
}

func TestApprovalService_Submit_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		actor   domain.Actor
		draft   func(f *ledgerFixture) *domain.EventDraft
		wantErr error
		kind    error
	}{
		{
			name:    "non coordinator",
			actor:   hodCSE,
			draft:   func(f *ledgerFixture) *domain.EventDraft { return f.draft(f.auditorium, "2026-12-03") },
			wantErr: domain.ErrNotCoordinator,
			kind:    domain.ErrForbidden,
		},
		{
			name: "empty title",
			actor: coordinator,
			draft: func(f *ledgerFixture) *domain.EventDraft {
				d := f.draft(f.auditorium, "2026-12-03")
				d.Title = "  "
				return d
			},
			wantErr: domain.ErrInvalidTitle,
			kind:    domain.ErrValidation,
		},
		{
			name:    "bad date",
			actor:   coordinator,
			draft:   func(f *ledgerFixture) *domain.EventDraft { return f.draft(f.auditorium, "12/03/2026") },
			wantErr: domain.ErrInvalidDate,
			kind:    domain.ErrValidation,
		},
		{
			name:  "zero quantity",
			actor: coordinator,
			draft: func(f *ledgerFixture) *domain.EventDraft {
				return f.draft(f.auditorium, "2026-12-03", domain.Claim{ResourceID: f.mics.ID, Quantity: 0})
			},
			wantErr: domain.ErrInvalidQuantity,
			kind:    domain.ErrValidation,
		},
		{
			name:  "duplicate claim",
			actor: coordinator,
			draft: func(f *ledgerFixture) *domain.EventDraft {
				return f.draft(f.auditorium, "2026-12-03",
					domain.Claim{ResourceID: f.mics.ID, Quantity: 1},
					domain.Claim{ResourceID: f.mics.ID, Quantity: 2})
			},
			wantErr: domain.ErrDuplicateClaim,
			kind:    domain.ErrValidation,
		},
		{
			name:  "unknown venue",
			actor: coordinator,
			draft: func(f *ledgerFixture) *domain.EventDraft {
				d := f.draft(f.auditorium, "2026-12-03")
				d.VenueID = "missing"
				return d
			},
			wantErr: domain.ErrVenueNotFound,
			kind:    domain.ErrNotFound,
		},
		{
			name:    "venue of another department",
			actor:   eceCoord,
			draft:   func(f *ledgerFixture) *domain.EventDraft { return f.draft(f.cseHall, "2026-12-03") },
			wantErr: domain.ErrDepartmentMismatch,
			kind:    domain.ErrForbidden,
		},
		{
			name:  "participants above capacity",
			actor: coordinator,
			draft: func(f *ledgerFixture) *domain.EventDraft {
				d := f.draft(f.cseHall, "2026-12-03")
				d.Participants = 51
				return d
			},
			wantErr: domain.ErrTooManyParticipants,
			kind:    domain.ErrValidation,
		},
		{
			name:  "unknown resource",
			actor: coordinator,
			draft: func(f *ledgerFixture) *domain.EventDraft {
				return f.draft(f.auditorium, "2026-12-03",
					domain.Claim{ResourceID: f.mics.ID, Quantity: 1},
					domain.Claim{ResourceID: "missing", Quantity: 1})
			},
			wantErr: domain.ErrResourceNotFound,
			kind:    domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLedgerFixture(t)

			_, err := f.approval.Submit(context.Background(), tt.actor, tt.draft(f))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, tt.kind)

			assert.Equal(t, 10, f.available(t, f.mics), "no decrement on failure")
			events, err := f.ledger.ListEvents(context.Background(), nil)
			require.NoError(t, err)
			assert.Empty(t, events)
			entries, err := f.ledger.QueryAudit(context.Background(), nil)
			require.NoError(t, err)
			assert.Empty(t, entries)
			assert.Empty(t, f.publisher.Types())
		})
	}
}

// Three requests for 4 of 10 units: the third fails and names the shortfall
func TestApprovalService_Submit_CapacityAllOrNothing(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-04", domain.Claim{ResourceID: f.mics.ID, Quantity: 4}))
	f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-05", domain.Claim{ResourceID: f.mics.ID, Quantity: 4}))

	_, err := f.approval.Submit(ctx, coordinator, f.draft(f.auditorium, "2026-12-06",
		domain.Claim{ResourceID: f.projectors.ID, Quantity: 2},
		domain.Claim{ResourceID: f.mics.ID, Quantity: 4},
	))
	var capErr *domain.CapacityError
	require.True(t, errors.As(err, &capErr), "got %v", err)
	assert.Equal(t, f.mics.ID, capErr.ResourceID)
	assert.Equal(t, "Wireless Mics", capErr.ResourceName)
	assert.Equal(t, 4, capErr.Requested)
	assert.Equal(t, 2, capErr.Available)

	assert.Equal(t, 2, f.available(t, f.mics))
	assert.Equal(t, 5, f.available(t, f.projectors), "earlier claim in the same request is not taken")
}

// N concurrent single-unit requests against k units: exactly k succeed
func TestApprovalService_Submit_ConcurrentCapacity(t *testing.T) {
	f := newLedgerFixture(t)
	const requests = 30

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := f.draft(f.auditorium, fmt.Sprintf("2027-01-%02d", i+1), domain.Claim{ResourceID: f.mics.ID, Quantity: 1})
			_, err := f.approval.Submit(context.Background(), coordinator, d)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case domain.IsCapacityError(err):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, requests-10, rejected)
	assert.Equal(t, 0, f.available(t, f.mics))
}

// Concurrent requests for one (venue, date): exactly one holds it
func TestApprovalService_Submit_ConcurrentConflict(t *testing.T) {
	f := newLedgerFixture(t)
	const requests = 12

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := f.draft(f.auditorium, "2027-02-01", domain.Claim{ResourceID: f.projectors.ID, Quantity: 1})
			_, err := f.approval.Submit(context.Background(), coordinator, d)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case domain.IsConflictError(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, requests-1, conflicts)
	assert.Equal(t, 4, f.available(t, f.projectors), "conflicts never touch counters")
}

func TestApprovalService_FullLifecycle(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	ev := f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-10", domain.Claim{ResourceID: f.mics.ID, Quantity: 3}))
	ev = f.approveAll(t, ev.ID)
	assert.Equal(t, domain.StatusApproved, ev.Status)
	assert.Equal(t, 7, f.available(t, f.mics), "approval keeps the reservation")

	ev, err := f.approval.Transition(ctx, coordinator, ev.ID, domain.ActionStart, "doors open", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, ev.Status)

	ev, err = f.approval.Transition(ctx, coordinator, ev.ID, domain.ActionComplete, "wrapped up", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, ev.Status)
	assert.Equal(t, 10, f.available(t, f.mics))
	require.Len(t, ev.Claims, 1)
	assert.True(t, ev.Claims[0].Released)

	require.Len(t, ev.Timeline, 6)
	wantTo := []domain.Status{
		domain.StatusPendingHOD, domain.StatusPendingDean, domain.StatusPendingHead,
		domain.StatusApproved, domain.StatusRunning, domain.StatusCompleted,
	}
	for i, entry := range ev.Timeline {
		assert.Equal(t, wantTo[i], entry.ToStatus, "entry %d", i)
		if i > 0 {
			assert.Equal(t, domain.AuditStatusUpdate, entry.Action)
			assert.Equal(t, wantTo[i-1], entry.FromStatus)
			assert.Greater(t, entry.Seq, ev.Timeline[i-1].Seq)
		}
	}
	assert.Equal(t, "wrapped up", ev.Timeline[5].Note)

	assert.Equal(t, []string{
		"event.submitted", "event.pending_dean", "event.pending_head",
		"event.approved", "event.running", "event.completed",
	}, f.publisher.Types())

	_, err = f.approval.Transition(ctx, coordinator, ev.ID, domain.ActionComplete, "", "")
	assert.True(t, domain.IsIllegalTransitionError(err), "terminal events do not move")
}

func TestApprovalService_HODOfAnotherDepartment(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	ev := f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-11"))

	_, err := f.approval.Transition(ctx, hodECE, ev.ID, domain.ActionApprove, "", "")
	assert.ErrorIs(t, err, domain.ErrNotApprover)
	assert.True(t, domain.IsForbiddenError(err))

	stored, err := f.ledger.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingHOD, stored.Status)
	assert.Len(t, stored.Timeline, 1, "no audit entry for a refused transition")
}

func TestApprovalService_DeanReject(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	ev := f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-12", domain.Claim{ResourceID: f.projectors.ID, Quantity: 2}))
	_, err := f.approval.Transition(ctx, hodCSE, ev.ID, domain.ActionApprove, "", "")
	require.NoError(t, err)

	_, err = f.approval.Transition(ctx, dean, ev.ID, domain.ActionReject, "", "   ")
	assert.ErrorIs(t, err, domain.ErrReasonRequired)
	assert.True(t, domain.IsValidationError(err))
	assert.Equal(t, 3, f.available(t, f.projectors))

	ev, err = f.approval.Transition(ctx, dean, ev.ID, domain.ActionReject, "see reason", " budget overlap ")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, ev.Status)
	assert.Equal(t, "budget overlap", ev.RejectionReason)
	assert.Equal(t, 5, f.available(t, f.projectors))

	last := ev.Timeline[len(ev.Timeline)-1]
	assert.Equal(t, "budget overlap", last.Reason)
	assert.Equal(t, dean.ID, last.ActorID)
}

func TestApprovalService_TransitionCheckOrder(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	ev := f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-13"))

	tests := []struct {
		name   string
		actor  domain.Actor
		id     string
		action domain.Action
		reason string
		want   error
	}{
		{"missing event beats everything", hodECE, "missing", domain.ActionStart, "", domain.ErrNotFound},
		{"illegal beats forbidden", hodECE, ev.ID, domain.ActionStart, "", domain.ErrIllegalTransition},
		{"forbidden beats validation", hodECE, ev.ID, domain.ActionReject, "", domain.ErrForbidden},
		{"validation last", hodCSE, ev.ID, domain.ActionReject, "", domain.ErrValidation},
		{"dean cannot act for hod", dean, ev.ID, domain.ActionApprove, "", domain.ErrForbidden},
		{"coordinator cannot approve", coordinator, ev.ID, domain.ActionApprove, "", domain.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.approval.Transition(ctx, tt.actor, tt.id, tt.action, "", tt.reason)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestApprovalService_OnlyOwnerStartsAndCompletes(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	ev := f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-14"))
	f.approveAll(t, ev.ID)

	_, err := f.approval.Transition(ctx, otherCoord, ev.ID, domain.ActionStart, "", "")
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = f.approval.Transition(ctx, admin, ev.ID, domain.ActionStart, "", "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

// A held (venue, date) conflicts until the holder completes
func TestApprovalService_ConflictThenCompleted(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	first := f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-15", domain.Claim{ResourceID: f.mics.ID, Quantity: 2}))

	_, err := f.approval.Submit(ctx, otherCoord, f.draft(f.auditorium, "2026-12-15", domain.Claim{ResourceID: f.mics.ID, Quantity: 2}))
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, first.ID, conflict.HeldBy)
	assert.Equal(t, 8, f.available(t, f.mics))

	other := f.submit(t, otherCoord, f.draft(f.auditorium, "2026-12-16"))
	assert.NotEqual(t, first.ID, other.ID, "another date is free")

	f.approveAll(t, first.ID)
	_, err = f.approval.Transition(ctx, coordinator, first.ID, domain.ActionStart, "", "")
	require.NoError(t, err)
	_, err = f.approval.Transition(ctx, coordinator, first.ID, domain.ActionComplete, "", "")
	require.NoError(t, err)

	again := f.submit(t, otherCoord, f.draft(f.auditorium, "2026-12-15", domain.Claim{ResourceID: f.mics.ID, Quantity: 2}))
	assert.Equal(t, domain.StatusPendingHOD, again.Status)
}

func TestApprovalService_TransitionToStatus(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	ev := f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-17", domain.Claim{ResourceID: f.mics.ID, Quantity: 1}))

	got, err := f.approval.TransitionToStatus(ctx, hodCSE, ev.ID, domain.StatusPendingDean, "ok", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingDean, got.Status)

	_, err = f.approval.TransitionToStatus(ctx, dean, ev.ID, domain.StatusApproved, "", "")
	assert.True(t, domain.IsIllegalTransitionError(err), "cannot skip the head")

	_, err = f.approval.TransitionToStatus(ctx, dean, ev.ID, domain.Status("ARCHIVED"), "", "")
	assert.ErrorIs(t, err, domain.ErrUnknownStatus)

	got, err = f.approval.TransitionToStatus(ctx, dean, ev.ID, domain.StatusRejected, "", "clash")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, got.Status)
	assert.Equal(t, 10, f.available(t, f.mics))
}

func TestApprovalService_PublishFailureDoesNotFailCommit(t *testing.T) {
	f := newLedgerFixture(t)
	f.publisher.PublishFunc = func(ctx context.Context, n *domain.Notification) error {
		return errors.New("sink down")
	}

	ev, err := f.approval.Submit(context.Background(), coordinator, f.draft(f.auditorium, "2026-12-18"))
	require.NoError(t, err)

	stored, err := f.ledger.GetEvent(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingHOD, stored.Status)
}

func TestApprovalService_NotificationCarriesAudit(t *testing.T) {
	f := newLedgerFixture(t)
	ev := f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-19"))
	_, err := f.approval.Transition(context.Background(), hodCSE, ev.ID, domain.ActionApprove, "fine", "")
	require.NoError(t, err)

	require.Len(t, f.publisher.Published, 2)
	n := f.publisher.Published[1]
	assert.Equal(t, "event.pending_dean", n.Type)
	assert.Equal(t, ev.ID, n.EventID)
	assert.Equal(t, ev.ID, n.Key())
	require.NotNil(t, n.Audit)
	assert.Equal(t, "fine", n.Audit.Note)
	assert.Equal(t, hodCSE.ID, n.Audit.ActorID)
}
