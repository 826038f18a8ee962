package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAllocator_ReserveAndRelease(t *testing.T) {
	f := newLedgerFixture(t)
	alloc := NewAllocator()
	ctx := context.Background()
	date := time.Date(2027, 4, 1, 0, 0, 0, 0, time.UTC)

	var got []domain.Allocation
	err := f.ledger.WithTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		var err error
		got, err = alloc.Reserve(ctx, tx, "ev-1", f.auditorium.ID, date, []domain.Claim{
			{ResourceID: f.projectors.ID, Quantity: 2},
			{ResourceID: f.mics.ID, Quantity: 3},
		})
		return err
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.Allocation{EventID: "ev-1", ResourceID: f.projectors.ID, Quantity: 2}, got[0])
	assert.Equal(t, 7, f.available(t, f.mics))
	assert.Equal(t, 3, f.available(t, f.projectors))

	ev := &domain.Event{ID: "ev-1", VenueID: f.auditorium.ID, Date: date, Status: domain.StatusCompleted, Claims: got}
	var returned int
	err = f.ledger.WithTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		if err := tx.InsertEvent(ctx, ev); err != nil {
			return err
		}
		var err error
		returned, err = alloc.Release(ctx, tx, ev)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 5, returned)
	assert.Equal(t, 10, f.available(t, f.mics))
	assert.Equal(t, 5, f.available(t, f.projectors))
	for _, c := range ev.Claims {
		assert.True(t, c.Released)
	}

	// Releasing again is a no-op
	err = f.ledger.WithTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		stored, err := tx.LockEvent(ctx, ev.ID)
		if err != nil {
			return err
		}
		returned, err = alloc.Release(ctx, tx, stored)
		return err
	})
	require.NoError(t, err)
	assert.Zero(t, returned)
	assert.Equal(t, 10, f.available(t, f.mics))
}

func TestAllocator_ConflictBeforeCapacity(t *testing.T) {
	f := newLedgerFixture(t)
	ev := f.submit(t, coordinator, f.draft(f.auditorium, "2027-04-02", domain.Claim{ResourceID: f.mics.ID, Quantity: 10}))

	date, err := domain.ParseDate("2027-04-02")
	require.NoError(t, err)
	err = f.ledger.WithTx(context.Background(), func(ctx context.Context, tx repository.LedgerTx) error {
		_, err := NewAllocator().Reserve(ctx, tx, "ev-2", f.auditorium.ID, date,
			[]domain.Claim{{ResourceID: f.mics.ID, Quantity: 1}})
		return err
	})

	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, ev.ID, conflict.HeldBy)
}

func TestAllocator_ReleaseAboveTotalAborts(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	// A claim the counters never paid for
	ev := &domain.Event{
		ID:      "ev-bad",
		VenueID: f.auditorium.ID,
		Date:    time.Date(2027, 4, 3, 0, 0, 0, 0, time.UTC),
		Status:  domain.StatusRejected,
		Claims:  []domain.Allocation{{EventID: "ev-bad", ResourceID: f.mics.ID, Quantity: 1}},
	}
	err := f.ledger.WithTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		if err := tx.InsertEvent(ctx, ev); err != nil {
			return err
		}
		_, err := NewAllocator().Release(ctx, tx, ev)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrLedgerInvariant)
	assert.Equal(t, 10, f.available(t, f.mics))

	_, err = f.ledger.GetEvent(ctx, ev.ID)
	assert.ErrorIs(t, err, domain.ErrEventNotFound, "the whole unit rolled back")
}

// Arbitrary interleavings of submit, transition and reset keep the counters
// in range, conserve units, and never double-book a venue date.
func TestLedgerInvariants_Property(t *testing.T) {
	actors := []domain.Actor{coordinator, otherCoord, eceCoord, hodCSE, hodECE, dean, head, admin}
	actions := []domain.Action{domain.ActionApprove, domain.ActionReject, domain.ActionStart, domain.ActionComplete}
	dates := []string{"2027-05-01", "2027-05-02", "2027-05-03"}

	rapid.Check(t, func(rt *rapid.T) {
		f := newLedgerFixture(t)
		ctx := context.Background()
		venues := []*domain.Venue{f.auditorium, f.cseHall}
		resources := []*domain.Resource{f.mics, f.projectors}
		var ids []string

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 5).Draw(rt, "op") {
			case 0, 1:
				actor := rapid.SampledFrom([]domain.Actor{coordinator, otherCoord, eceCoord}).Draw(rt, "submitter")
				d := f.draft(
					rapid.SampledFrom(venues).Draw(rt, "venue"),
					rapid.SampledFrom(dates).Draw(rt, "date"),
				)
				for _, r := range resources {
					if q := rapid.IntRange(0, 6).Draw(rt, "qty"); q > 0 {
						d.Claims = append(d.Claims, domain.Claim{ResourceID: r.ID, Quantity: q})
					}
				}
				if ev, err := f.approval.Submit(ctx, actor, d); err == nil {
					ids = append(ids, ev.ID)
				}
			case 2, 3, 4:
				if len(ids) == 0 {
					continue
				}
				id := rapid.SampledFrom(ids).Draw(rt, "event")
				actor := rapid.SampledFrom(actors).Draw(rt, "actor")
				action := rapid.SampledFrom(actions).Draw(rt, "action")
				reason := rapid.SampledFrom([]string{"", "clash"}).Draw(rt, "reason")
				_, _ = f.approval.Transition(ctx, actor, id, action, "", reason)
			case 5:
				r := rapid.SampledFrom(resources).Draw(rt, "reset")
				if _, err := f.admin.ResetResource(ctx, admin, r.ID); err != nil {
					rt.Fatalf("reset failed: %v", err)
				}
			}
			checkLedgerInvariants(rt, f)
		}
	})
}

func checkLedgerInvariants(rt *rapid.T, f *ledgerFixture) {
	ctx := context.Background()

	events, err := f.ledger.ListEvents(ctx, nil)
	if err != nil {
		rt.Fatalf("list events: %v", err)
	}
	outstanding := map[string]int{}
	held := map[string]string{}
	for _, ev := range events {
		if !ev.Status.Valid() {
			rt.Fatalf("event %s has status %q", ev.ID, ev.Status)
		}
		if (ev.Status == domain.StatusRejected) != (ev.RejectionReason != "") {
			rt.Fatalf("event %s status %s with reason %q", ev.ID, ev.Status, ev.RejectionReason)
		}
		for _, c := range ev.Claims {
			if !c.Released {
				outstanding[c.ResourceID] += c.Quantity
			}
		}
		if ev.IsTerminal() {
			for _, c := range ev.Claims {
				if !c.Released {
					rt.Fatalf("terminal event %s still holds %s", ev.ID, c.ResourceID)
				}
			}
			continue
		}
		key := ev.VenueID + "|" + domain.FormatDate(ev.Date)
		if other, dup := held[key]; dup {
			rt.Fatalf("venue date %s held by %s and %s", key, other, ev.ID)
		}
		held[key] = ev.ID
	}

	resources, err := f.ledger.ListResources(ctx)
	if err != nil {
		rt.Fatalf("list resources: %v", err)
	}
	for _, r := range resources {
		if r.Available < 0 || r.Available > r.Total {
			rt.Fatalf("%s available %d outside [0, %d]", r.Name, r.Available, r.Total)
		}
		if r.Available+outstanding[r.ID] != r.Total {
			rt.Fatalf("%s available %d + outstanding %d != total %d", r.Name, r.Available, outstanding[r.ID], r.Total)
		}
	}
}
