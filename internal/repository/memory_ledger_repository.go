package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// MemoryLedgerRepository keeps the ledger in process memory. One lock
// serializes every unit; a unit stages its writes and applies them on commit.
type MemoryLedgerRepository struct {
	mu        sync.RWMutex
	venues    map[string]*domain.Venue
	resources map[string]*domain.Resource
	events    map[string]*domain.Event
	audit     []*domain.AuditEntry
	seq       int64
}

// NewMemoryLedgerRepository creates an empty in-memory ledger
func NewMemoryLedgerRepository() *MemoryLedgerRepository {
	return &MemoryLedgerRepository{
		venues:    make(map[string]*domain.Venue),
		resources: make(map[string]*domain.Resource),
		events:    make(map[string]*domain.Event),
	}
}

// WithTx runs fn while holding the store lock
func (r *MemoryLedgerRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.memory.ledger.tx")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memoryTx{
		store:     r,
		venues:    make(map[string]*domain.Venue),
		resources: make(map[string]*domain.Resource),
		events:    make(map[string]*domain.Event),
	}
	if err := fn(ctx, tx); err != nil {
		telemetry.RecordResult(span, err, "rolled back")
		return err
	}

	tx.commit()
	span.SetAttributes(attribute.Int("audit_entries", len(tx.audit)))
	telemetry.RecordResult(span, nil, "")
	return nil
}

// GetVenue returns a venue by id
func (r *MemoryLedgerRepository) GetVenue(ctx context.Context, id string) (*domain.Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.venues[id]
	if !ok {
		return nil, domain.ErrVenueNotFound
	}
	return cloneVenue(v), nil
}

// ListVenues returns every venue ordered by name
func (r *MemoryLedgerRepository) ListVenues(ctx context.Context) ([]*domain.Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Venue, 0, len(r.venues))
	for _, v := range r.venues {
		out = append(out, cloneVenue(v))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetResource returns a resource by id
func (r *MemoryLedgerRepository) GetResource(ctx context.Context, id string) (*domain.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resources[id]
	if !ok {
		return nil, domain.ErrResourceNotFound
	}
	c := *res
	return &c, nil
}

// ListResources returns every resource ordered by name
func (r *MemoryLedgerRepository) ListResources(ctx context.Context) ([]*domain.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Resource, 0, len(r.resources))
	for _, res := range r.resources {
		c := *res
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetEvent returns an event with its claims and timeline
func (r *MemoryLedgerRepository) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ev, ok := r.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	out := ev.Clone()
	out.Timeline = []domain.AuditEntry{}
	for _, entry := range r.audit {
		if entry.EventID != nil && *entry.EventID == id {
			out.Timeline = append(out.Timeline, *entry.Clone())
		}
	}
	return out, nil
}

// ListEvents returns matching events newest first
func (r *MemoryLedgerRepository) ListEvents(ctx context.Context, filter *domain.EventFilter) ([]*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.Event{}
	for _, ev := range r.events {
		if filter.Matches(ev) {
			out = append(out, ev.Clone())
		}
	}
	sortEvents(out)
	return out, nil
}

// QueryAudit returns matching entries by descending Seq
func (r *MemoryLedgerRepository) QueryAudit(ctx context.Context, filter *domain.AuditFilter) ([]*domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.AuditEntry{}
	for i := len(r.audit) - 1; i >= 0; i-- {
		if !filter.Matches(r.audit[i]) {
			continue
		}
		out = append(out, r.audit[i].Clone())
		if filter != nil && filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func sortEvents(events []*domain.Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.After(events[j].CreatedAt)
		}
		return events[i].ID > events[j].ID
	})
}

func cloneVenue(v *domain.Venue) *domain.Venue {
	c := *v
	if v.Department != nil {
		d := *v.Department
		c.Department = &d
	}
	return &c
}

// memoryTx stages writes over the store. The store lock is held by WithTx.
type memoryTx struct {
	store     *MemoryLedgerRepository
	venues    map[string]*domain.Venue
	resources map[string]*domain.Resource
	events    map[string]*domain.Event
	audit     []*domain.AuditEntry
}

func (tx *memoryTx) LockVenueDate(ctx context.Context, venueID string, date time.Time) error {
	return nil
}

func (tx *memoryTx) event(id string) (*domain.Event, bool) {
	if ev, ok := tx.events[id]; ok {
		return ev, true
	}
	ev, ok := tx.store.events[id]
	if !ok {
		return nil, false
	}
	staged := ev.Clone()
	tx.events[id] = staged
	return staged, true
}

func (tx *memoryTx) FindActiveEvent(ctx context.Context, venueID string, date time.Time) (*domain.Event, error) {
	filter := &domain.EventFilter{VenueID: venueID, Date: &date, NonTerminal: true}
	for _, ev := range tx.events {
		if filter.Matches(ev) {
			return ev.Clone(), nil
		}
	}
	for id, ev := range tx.store.events {
		if _, staged := tx.events[id]; staged {
			continue
		}
		if filter.Matches(ev) {
			return ev.Clone(), nil
		}
	}
	return nil, nil
}

func (tx *memoryTx) LockResources(ctx context.Context, ids []string) (map[string]*domain.Resource, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	out := make(map[string]*domain.Resource, len(sorted))
	for _, id := range sorted {
		res, ok := tx.resources[id]
		if !ok {
			base, exists := tx.store.resources[id]
			if !exists {
				return nil, fmt.Errorf("%w: %s", domain.ErrResourceNotFound, id)
			}
			c := *base
			res = &c
			tx.resources[id] = res
		}
		out[id] = res
	}
	return out, nil
}

func (tx *memoryTx) SaveResource(ctx context.Context, r *domain.Resource) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, ok := tx.resources[r.ID]; !ok {
		if _, exists := tx.store.resources[r.ID]; !exists {
			return domain.ErrResourceNotFound
		}
	}
	c := *r
	tx.resources[r.ID] = &c
	return nil
}

func (tx *memoryTx) InsertResource(ctx context.Context, r *domain.Resource) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, exists := tx.store.resources[r.ID]; exists {
		return fmt.Errorf("failed to insert resource: duplicate id %s", r.ID)
	}
	c := *r
	tx.resources[r.ID] = &c
	return nil
}

func (tx *memoryTx) InsertVenue(ctx context.Context, v *domain.Venue) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if _, exists := tx.store.venues[v.ID]; exists {
		return fmt.Errorf("failed to insert venue: duplicate id %s", v.ID)
	}
	tx.venues[v.ID] = cloneVenue(v)
	return nil
}

func (tx *memoryTx) InsertEvent(ctx context.Context, ev *domain.Event) error {
	if _, exists := tx.store.events[ev.ID]; exists {
		return fmt.Errorf("failed to insert event: duplicate id %s", ev.ID)
	}
	if ev.HoldsVenue() {
		if held, _ := tx.FindActiveEvent(ctx, ev.VenueID, ev.Date); held != nil {
			return &domain.ConflictError{VenueID: ev.VenueID, Date: ev.Date, HeldBy: held.ID}
		}
	}
	staged := ev.Clone()
	staged.Timeline = nil
	tx.events[ev.ID] = staged
	return nil
}

func (tx *memoryTx) LockEvent(ctx context.Context, id string) (*domain.Event, error) {
	ev, ok := tx.event(id)
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return ev.Clone(), nil
}

func (tx *memoryTx) UpdateEvent(ctx context.Context, ev *domain.Event) error {
	staged, ok := tx.event(ev.ID)
	if !ok {
		return domain.ErrEventNotFound
	}
	staged.Status = ev.Status
	staged.RejectionReason = ev.RejectionReason
	staged.UpdatedAt = ev.UpdatedAt
	return nil
}

func (tx *memoryTx) MarkReleased(ctx context.Context, eventID, resourceID string) (bool, error) {
	staged, ok := tx.event(eventID)
	if !ok {
		return false, domain.ErrEventNotFound
	}
	for i := range staged.Claims {
		c := &staged.Claims[i]
		if c.ResourceID != resourceID {
			continue
		}
		if c.Released {
			return false, nil
		}
		c.Released = true
		return true, nil
	}
	return false, fmt.Errorf("%w: event %s has no claim on %s", domain.ErrResourceNotFound, eventID, resourceID)
}

func (tx *memoryTx) WriteOffAllocations(ctx context.Context, resourceID string) (int, error) {
	ids := make(map[string]struct{}, len(tx.store.events)+len(tx.events))
	for id := range tx.store.events {
		ids[id] = struct{}{}
	}
	for id := range tx.events {
		ids[id] = struct{}{}
	}

	total := 0
	for id := range ids {
		var ev *domain.Event
		if staged, ok := tx.events[id]; ok {
			ev = staged
		} else if !hasOutstanding(tx.store.events[id], resourceID) {
			continue
		} else {
			ev, _ = tx.event(id)
		}
		for i := range ev.Claims {
			c := &ev.Claims[i]
			if c.ResourceID == resourceID && !c.Released {
				c.Released = true
				total += c.Quantity
			}
		}
	}
	return total, nil
}

func hasOutstanding(ev *domain.Event, resourceID string) bool {
	for _, c := range ev.Claims {
		if c.ResourceID == resourceID && !c.Released {
			return true
		}
	}
	return false
}

func (tx *memoryTx) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	entry.Seq = tx.store.seq + int64(len(tx.audit)) + 1
	tx.audit = append(tx.audit, entry.Clone())
	return nil
}

func (tx *memoryTx) commit() {
	s := tx.store
	for id, v := range tx.venues {
		s.venues[id] = v
	}
	for id, res := range tx.resources {
		s.resources[id] = res
	}
	for id, ev := range tx.events {
		s.events[id] = ev
	}
	s.audit = append(s.audit, tx.audit...)
	s.seq += int64(len(tx.audit))
}
