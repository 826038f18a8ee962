package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func testDate(day int) time.Time {
	return time.Date(2026, 11, day, 0, 0, 0, 0, time.UTC)
}

func seedCatalog(t *testing.T, repo LedgerRepository) (*domain.Venue, *domain.Resource) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	venue := &domain.Venue{ID: uuid.NewString(), Name: "Main Auditorium", Type: "Auditorium", Capacity: 500, CreatedAt: now}
	res := &domain.Resource{ID: uuid.NewString(), Name: "Wireless Mics", Type: "Audio", Total: 10, Available: 10, UpdatedAt: now}

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx LedgerTx) error {
		if err := tx.InsertVenue(ctx, venue); err != nil {
			return err
		}
		return tx.InsertResource(ctx, res)
	})
	require.NoError(t, err)
	return venue, res
}

func newTestEvent(venue *domain.Venue, date time.Time, claims ...domain.Allocation) *domain.Event {
	id := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	for i := range claims {
		claims[i].EventID = id
	}
	return &domain.Event{
		ID:            id,
		Title:         "Tech Talk",
		Date:          date,
		VenueID:       venue.ID,
		VenueName:     venue.Name,
		Department:    "CSE",
		CoordinatorID: "coord-1",
		Status:        domain.StatusPendingHOD,
		Claims:        claims,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func auditFor(ev *domain.Event, action domain.AuditAction) *domain.AuditEntry {
	id := ev.ID
	return &domain.AuditEntry{
		ID:        uuid.NewString(),
		EventID:   &id,
		ActorID:   ev.CoordinatorID,
		Action:    action,
		Note:      "note",
		Timestamp: time.Now().UTC(),
	}
}

// runLedgerContract exercises behaviour every LedgerRepository must share
func runLedgerContract(t *testing.T, newRepo func(t *testing.T) LedgerRepository) {
	t.Run("rollback discards every write", func(t *testing.T) {
		repo := newRepo(t)
		venue, res := seedCatalog(t, repo)
		ctx := context.Background()

		err := repo.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			locked, err := tx.LockResources(ctx, []string{res.ID})
			if err != nil {
				return err
			}
			r := locked[res.ID]
			if err := r.Take(4); err != nil {
				return err
			}
			if err := tx.SaveResource(ctx, r); err != nil {
				return err
			}
			ev := newTestEvent(venue, testDate(1), domain.Allocation{ResourceID: res.ID, Quantity: 4})
			if err := tx.InsertEvent(ctx, ev); err != nil {
				return err
			}
			if err := tx.AppendAudit(ctx, auditFor(ev, domain.AuditSubmitted)); err != nil {
				return err
			}
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)

		got, err := repo.GetResource(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, got.Available)

		events, err := repo.ListEvents(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, events)

		entries, err := repo.QueryAudit(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("event round trip with claims and timeline", func(t *testing.T) {
		repo := newRepo(t)
		venue, res := seedCatalog(t, repo)
		ctx := context.Background()

		ev := newTestEvent(venue, testDate(2), domain.Allocation{ResourceID: res.ID, Quantity: 3})
		require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			if err := tx.InsertEvent(ctx, ev); err != nil {
				return err
			}
			return tx.AppendAudit(ctx, auditFor(ev, domain.AuditSubmitted))
		}))
		require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			locked, err := tx.LockEvent(ctx, ev.ID)
			if err != nil {
				return err
			}
			locked.Status = domain.StatusPendingDean
			if err := tx.UpdateEvent(ctx, locked); err != nil {
				return err
			}
			return tx.AppendAudit(ctx, auditFor(ev, domain.AuditStatusUpdate))
		}))

		got, err := repo.GetEvent(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPendingDean, got.Status)
		assert.True(t, got.Date.Equal(testDate(2)))
		require.Len(t, got.Claims, 1)
		assert.Equal(t, 3, got.Claims[0].Quantity)
		require.Len(t, got.Timeline, 2)
		assert.Equal(t, domain.AuditSubmitted, got.Timeline[0].Action)
		assert.Equal(t, domain.AuditStatusUpdate, got.Timeline[1].Action)
		assert.Less(t, got.Timeline[0].Seq, got.Timeline[1].Seq)

		_, err = repo.GetEvent(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
	})

	t.Run("find active event ignores terminal events and other dates", func(t *testing.T) {
		repo := newRepo(t)
		venue, _ := seedCatalog(t, repo)
		ctx := context.Background()

		done := newTestEvent(venue, testDate(3))
		done.Status = domain.StatusCompleted
		active := newTestEvent(venue, testDate(3))
		active.CreatedAt = active.CreatedAt.Add(time.Second)
		other := newTestEvent(venue, testDate(4))

		require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			for _, ev := range []*domain.Event{done, active, other} {
				if err := tx.InsertEvent(ctx, ev); err != nil {
					return err
				}
			}
			return nil
		}))

		require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			if err := tx.LockVenueDate(ctx, venue.ID, testDate(3)); err != nil {
				return err
			}
			held, err := tx.FindActiveEvent(ctx, venue.ID, testDate(3))
			require.NoError(t, err)
			require.NotNil(t, held)
			assert.Equal(t, active.ID, held.ID)

			none, err := tx.FindActiveEvent(ctx, venue.ID, testDate(5))
			require.NoError(t, err)
			assert.Nil(t, none)
			return nil
		}))

		listed, err := repo.ListEvents(ctx, &domain.EventFilter{VenueID: venue.ID, NonTerminal: true})
		require.NoError(t, err)
		assert.Len(t, listed, 2)
		assert.Equal(t, active.ID, listed[0].ID, "newest first")

		d := testDate(3)
		listed, err = repo.ListEvents(ctx, &domain.EventFilter{Date: &d})
		require.NoError(t, err)
		assert.Len(t, listed, 2)
	})

	t.Run("second active event on the same venue and date conflicts", func(t *testing.T) {
		repo := newRepo(t)
		venue, _ := seedCatalog(t, repo)
		ctx := context.Background()

		require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			return tx.InsertEvent(ctx, newTestEvent(venue, testDate(6)))
		}))
		err := repo.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			return tx.InsertEvent(ctx, newTestEvent(venue, testDate(6)))
		})
		assert.True(t, domain.IsConflictError(err), "got %v", err)
	})

	t.Run("lock resources reports missing ids", func(t *testing.T) {
		repo := newRepo(t)
		_, res := seedCatalog(t, repo)

		err := repo.WithTx(context.Background(), func(ctx context.Context, tx LedgerTx) error {
			_, err := tx.LockResources(ctx, []string{res.ID, "missing"})
			return err
		})
		assert.ErrorIs(t, err, domain.ErrResourceNotFound)
	})

	t.Run("mark released happens once", func(t *testing.T) {
		repo := newRepo(t)
		venue, res := seedCatalog(t, repo)
		ctx := context.Background()

		ev := newTestEvent(venue, testDate(7), domain.Allocation{ResourceID: res.ID, Quantity: 2})
		require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			return tx.InsertEvent(ctx, ev)
		}))

		var first, second bool
		require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			var err error
			if first, err = tx.MarkReleased(ctx, ev.ID, res.ID); err != nil {
				return err
			}
			second, err = tx.MarkReleased(ctx, ev.ID, res.ID)
			return err
		}))
		assert.True(t, first)
		assert.False(t, second)

		got, err := repo.GetEvent(ctx, ev.ID)
		require.NoError(t, err)
		assert.True(t, got.Claims[0].Released)
	})

	t.Run("write off marks outstanding claims", func(t *testing.T) {
		repo := newRepo(t)
		venue, res := seedCatalog(t, repo)
		ctx := context.Background()

		a := newTestEvent(venue, testDate(8), domain.Allocation{ResourceID: res.ID, Quantity: 2})
		b := newTestEvent(venue, testDate(9), domain.Allocation{ResourceID: res.ID, Quantity: 3})
		c := newTestEvent(venue, testDate(10), domain.Allocation{ResourceID: res.ID, Quantity: 4, Released: true})
		c.Status = domain.StatusCompleted
		require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			for _, ev := range []*domain.Event{a, b, c} {
				if err := tx.InsertEvent(ctx, ev); err != nil {
					return err
				}
			}
			return nil
		}))

		var written int
		require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			var err error
			written, err = tx.WriteOffAllocations(ctx, res.ID)
			return err
		}))
		assert.Equal(t, 5, written)

		for _, id := range []string{a.ID, b.ID} {
			got, err := repo.GetEvent(ctx, id)
			require.NoError(t, err)
			assert.True(t, got.Claims[0].Released)
		}
	})

	t.Run("audit query filters and orders newest first", func(t *testing.T) {
		repo := newRepo(t)
		venue, _ := seedCatalog(t, repo)
		ctx := context.Background()

		ev := newTestEvent(venue, testDate(11))
		require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			if err := tx.InsertEvent(ctx, ev); err != nil {
				return err
			}
			if err := tx.AppendAudit(ctx, auditFor(ev, domain.AuditSubmitted)); err != nil {
				return err
			}
			update := auditFor(ev, domain.AuditStatusUpdate)
			update.ActorID = "hod-1"
			if err := tx.AppendAudit(ctx, update); err != nil {
				return err
			}
			return tx.AppendAudit(ctx, &domain.AuditEntry{
				ID: uuid.NewString(), ActorID: "admin-1", Action: domain.AuditCapacityReset, Timestamp: time.Now().UTC(),
			})
		}))

		all, err := repo.QueryAudit(ctx, &domain.AuditFilter{})
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(all), 3)
		for i := 1; i < len(all); i++ {
			assert.Greater(t, all[i-1].Seq, all[i].Seq)
		}

		byEvent, err := repo.QueryAudit(ctx, &domain.AuditFilter{EventID: ev.ID})
		require.NoError(t, err)
		require.Len(t, byEvent, 2)
		assert.Equal(t, domain.AuditStatusUpdate, byEvent[0].Action)

		byAction, err := repo.QueryAudit(ctx, &domain.AuditFilter{Action: "reset"})
		require.NoError(t, err)
		require.NotEmpty(t, byAction)
		assert.Nil(t, byAction[0].EventID)

		byActor, err := repo.QueryAudit(ctx, &domain.AuditFilter{ActorID: "hod-1", Limit: 1})
		require.NoError(t, err)
		assert.Len(t, byActor, 1)

		limited, err := repo.QueryAudit(ctx, &domain.AuditFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("catalog reads", func(t *testing.T) {
		repo := newRepo(t)
		venue, res := seedCatalog(t, repo)
		ctx := context.Background()

		v, err := repo.GetVenue(ctx, venue.ID)
		require.NoError(t, err)
		assert.Equal(t, "Main Auditorium", v.Name)
		assert.Nil(t, v.Department)

		_, err = repo.GetVenue(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrVenueNotFound)

		r, err := repo.GetResource(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, r.Total)

		_, err = repo.GetResource(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrResourceNotFound)

		venues, err := repo.ListVenues(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, venues)

		resources, err := repo.ListResources(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, resources)
	})
}
