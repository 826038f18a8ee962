package service

import (
	"context"
	"sort"
	"time"

	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/repository"
	"github.com/prohmpiriya/venue-approval/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Allocator reserves and returns venue dates and resource units inside a
// ledger transaction. It never opens a transaction itself.
type Allocator struct {
	now func() time.Time
}

// NewAllocator creates a new Allocator
func NewAllocator() *Allocator {
	return &Allocator{now: func() time.Time { return time.Now().UTC() }}
}

// Reserve locks (venue, date) and every claimed resource, then takes the
// claimed quantities. A held venue fails with ConflictError before any
// counter is read; a short resource fails with CapacityError and nothing
// is decremented.
func (a *Allocator) Reserve(ctx context.Context, tx repository.LedgerTx, eventID, venueID string, date time.Time, claims []domain.Claim) ([]domain.Allocation, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.allocator.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("venue_id", venueID),
		attribute.String("date", domain.FormatDate(date)),
		attribute.Int("claims", len(claims)),
	)

	if err := tx.LockVenueDate(ctx, venueID, date); err != nil {
		telemetry.RecordResult(span, err, "lock venue date failed")
		return nil, err
	}
	held, err := tx.FindActiveEvent(ctx, venueID, date)
	if err != nil {
		telemetry.RecordResult(span, err, "find active event failed")
		return nil, err
	}
	if held != nil {
		err := &domain.ConflictError{VenueID: venueID, Date: date, HeldBy: held.ID}
		telemetry.RecordResult(span, err, "venue already booked")
		return nil, err
	}

	allocations := make([]domain.Allocation, 0, len(claims))
	if len(claims) == 0 {
		telemetry.RecordResult(span, nil, "")
		return allocations, nil
	}

	ids := make([]string, len(claims))
	for i, c := range claims {
		ids[i] = c.ResourceID
	}
	locked, err := tx.LockResources(ctx, ids)
	if err != nil {
		telemetry.RecordResult(span, err, "lock resources failed")
		return nil, err
	}

	// All or nothing: every claim is checked before the first decrement
	for _, c := range sortedClaims(claims) {
		res := locked[c.ResourceID]
		if res.Available < c.Quantity {
			err := &domain.CapacityError{
				ResourceID:   res.ID,
				ResourceName: res.Name,
				Requested:    c.Quantity,
				Available:    res.Available,
			}
			telemetry.RecordResult(span, err, "insufficient capacity")
			return nil, err
		}
	}

	now := a.now()
	for _, c := range sortedClaims(claims) {
		res := locked[c.ResourceID]
		if err := res.Take(c.Quantity); err != nil {
			telemetry.RecordResult(span, err, "take failed")
			return nil, err
		}
		res.UpdatedAt = now
		if err := tx.SaveResource(ctx, res); err != nil {
			telemetry.RecordResult(span, err, "save resource failed")
			return nil, err
		}
	}

	for _, c := range claims {
		allocations = append(allocations, domain.Allocation{
			EventID:    eventID,
			ResourceID: c.ResourceID,
			Quantity:   c.Quantity,
		})
	}
	telemetry.RecordResult(span, nil, "")
	return allocations, nil
}

// Release returns every outstanding claim of ev to its resource and marks
// it released. Claims already written off by a capacity reset are skipped.
// It returns the number of units returned.
func (a *Allocator) Release(ctx context.Context, tx repository.LedgerTx, ev *domain.Event) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.allocator.release")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", ev.ID))

	outstanding := make([]domain.Claim, 0, len(ev.Claims))
	for _, c := range ev.Claims {
		if !c.Released {
			outstanding = append(outstanding, domain.Claim{ResourceID: c.ResourceID, Quantity: c.Quantity})
		}
	}
	if len(outstanding) == 0 {
		telemetry.RecordResult(span, nil, "")
		return 0, nil
	}

	ids := make([]string, len(outstanding))
	for i, c := range outstanding {
		ids[i] = c.ResourceID
	}
	locked, err := tx.LockResources(ctx, ids)
	if err != nil {
		telemetry.RecordResult(span, err, "lock resources failed")
		return 0, err
	}

	now := a.now()
	returned := 0
	for _, c := range sortedClaims(outstanding) {
		marked, err := tx.MarkReleased(ctx, ev.ID, c.ResourceID)
		if err != nil {
			telemetry.RecordResult(span, err, "mark released failed")
			return 0, err
		}
		if !marked {
			continue
		}
		res := locked[c.ResourceID]
		if err := res.Return(c.Quantity); err != nil {
			telemetry.RecordResult(span, err, "ledger invariant violated")
			return 0, err
		}
		res.UpdatedAt = now
		if err := tx.SaveResource(ctx, res); err != nil {
			telemetry.RecordResult(span, err, "save resource failed")
			return 0, err
		}
		returned += c.Quantity
	}

	for i := range ev.Claims {
		ev.Claims[i].Released = true
	}
	span.SetAttributes(attribute.Int("units_returned", returned))
	telemetry.RecordResult(span, nil, "")
	return returned, nil
}

func sortedClaims(claims []domain.Claim) []domain.Claim {
	out := append([]domain.Claim(nil), claims...)
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}
