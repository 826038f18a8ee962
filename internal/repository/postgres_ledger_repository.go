package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/pkg/database"
	"github.com/prohmpiriya/venue-approval/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed schema.sql
var schemaSQL string

const activeVenueDateIndex = "events_active_venue_date"

// querier is satisfied by *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedgerRepository implements LedgerRepository on PostgreSQL.
// Units run at READ COMMITTED and serialize on row locks and a
// transaction-scoped advisory lock per (venue, date).
type PostgresLedgerRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresLedgerRepository creates a new PostgresLedgerRepository
func NewPostgresLedgerRepository(pool *pgxpool.Pool) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{pool: pool}
}

// Migrate creates the ledger schema if it does not exist
func (r *PostgresLedgerRepository) Migrate(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.migrate")
	defer span.End()

	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// WithTx runs fn in one database transaction
func (r *PostgresLedgerRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.tx")
	defer span.End()

	err := database.InTx(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &postgresTx{tx: tx})
	})
	err = mapPgError(err)
	telemetry.RecordResult(span, err, "rolled back")
	return err
}

// mapPgError turns constraint violations into ledger errors
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	switch database.PgErrorCode(err) {
	case database.CodeUniqueViolation:
		if database.PgConstraint(err) == activeVenueDateIndex {
			return fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
	case database.CodeCheckViolation:
		return fmt.Errorf("%w: %v", domain.ErrLedgerInvariant, err)
	}
	return err
}

// GetVenue returns a venue by id
func (r *PostgresLedgerRepository) GetVenue(ctx context.Context, id string) (*domain.Venue, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.get_venue")
	defer span.End()
	span.SetAttributes(attribute.String("venue_id", id))

	v, err := scanVenue(r.pool.QueryRow(ctx, selectVenues+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrVenueNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}
	return v, nil
}

// ListVenues returns every venue ordered by name
func (r *PostgresLedgerRepository) ListVenues(ctx context.Context) ([]*domain.Venue, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.list_venues")
	defer span.End()

	rows, err := r.pool.Query(ctx, selectVenues+` ORDER BY name, id`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list venues: %w", err)
	}
	defer rows.Close()

	venues := []*domain.Venue{}
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan venue: %w", err)
		}
		venues = append(venues, v)
	}
	return venues, rows.Err()
}

// GetResource returns a resource by id
func (r *PostgresLedgerRepository) GetResource(ctx context.Context, id string) (*domain.Resource, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.get_resource")
	defer span.End()
	span.SetAttributes(attribute.String("resource_id", id))

	res, err := scanResource(r.pool.QueryRow(ctx, selectResources+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrResourceNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return res, nil
}

// ListResources returns every resource ordered by name
func (r *PostgresLedgerRepository) ListResources(ctx context.Context) ([]*domain.Resource, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.list_resources")
	defer span.End()

	rows, err := r.pool.Query(ctx, selectResources+` ORDER BY name, id`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	out := []*domain.Resource{}
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// GetEvent returns an event with claims and timeline
func (r *PostgresLedgerRepository) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.get_event")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	ev, err := getEvent(ctx, r.pool, id, false)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	entries, err := queryAudit(ctx, r.pool, &domain.AuditFilter{EventID: id}, "ASC")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	ev.Timeline = make([]domain.AuditEntry, 0, len(entries))
	for _, e := range entries {
		ev.Timeline = append(ev.Timeline, *e)
	}
	return ev, nil
}

// ListEvents returns matching events with claims, newest first
func (r *PostgresLedgerRepository) ListEvents(ctx context.Context, filter *domain.EventFilter) ([]*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.list_events")
	defer span.End()

	where, args := eventWhere(filter)
	rows, err := r.pool.Query(ctx, selectEvents+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := []*domain.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	if err := loadClaims(ctx, r.pool, events); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(events)))
	return events, nil
}

// QueryAudit returns matching entries by descending Seq
func (r *PostgresLedgerRepository) QueryAudit(ctx context.Context, filter *domain.AuditFilter) ([]*domain.AuditEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.query_audit")
	defer span.End()

	entries, err := queryAudit(ctx, r.pool, filter, "DESC")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return entries, nil
}

const (
	selectVenues    = `SELECT id, name, type, capacity, department, created_at FROM venues`
	selectResources = `SELECT id, name, type, total, available, updated_at FROM resources`
	selectEvents    = `
		SELECT id, title, description, event_date, duration, participants,
			venue_id, venue_name, department, coordinator_id, status,
			rejection_reason, created_at, updated_at
		FROM events`
	selectAudit = `
		SELECT seq, id, event_id, actor_id, action, from_status, to_status,
			note, reason, created_at
		FROM audit_entries`
)

func scanVenue(row pgx.Row) (*domain.Venue, error) {
	v := &domain.Venue{}
	if err := row.Scan(&v.ID, &v.Name, &v.Type, &v.Capacity, &v.Department, &v.CreatedAt); err != nil {
		return nil, err
	}
	return v, nil
}

func scanResource(row pgx.Row) (*domain.Resource, error) {
	res := &domain.Resource{}
	if err := row.Scan(&res.ID, &res.Name, &res.Type, &res.Total, &res.Available, &res.UpdatedAt); err != nil {
		return nil, err
	}
	return res, nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	ev := &domain.Event{Claims: []domain.Allocation{}}
	var (
		status string
		reason *string
	)
	err := row.Scan(
		&ev.ID, &ev.Title, &ev.Description, &ev.Date, &ev.Duration, &ev.Participants,
		&ev.VenueID, &ev.VenueName, &ev.Department, &ev.CoordinatorID, &status,
		&reason, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.Status = domain.Status(status)
	ev.Date = ev.Date.UTC()
	if reason != nil {
		ev.RejectionReason = *reason
	}
	return ev, nil
}

func scanAudit(row pgx.Row) (*domain.AuditEntry, error) {
	e := &domain.AuditEntry{}
	var action, from, to string
	err := row.Scan(&e.Seq, &e.ID, &e.EventID, &e.ActorID, &action, &from, &to, &e.Note, &e.Reason, &e.Timestamp)
	if err != nil {
		return nil, err
	}
	e.Action = domain.AuditAction(action)
	e.FromStatus = domain.Status(from)
	e.ToStatus = domain.Status(to)
	return e, nil
}

func getEvent(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Event, error) {
	query := selectEvents + ` WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	ev, err := scanEvent(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if err := loadClaims(ctx, q, []*domain.Event{ev}); err != nil {
		return nil, err
	}
	return ev, nil
}

func loadClaims(ctx context.Context, q querier, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Event, len(events))
	ids := make([]string, 0, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
		ids = append(ids, ev.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT event_id, resource_id, quantity, released
		FROM allocations
		WHERE event_id = ANY($1)
		ORDER BY event_id, position`, ids)
	if err != nil {
		return fmt.Errorf("failed to load allocations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Allocation
		if err := rows.Scan(&a.EventID, &a.ResourceID, &a.Quantity, &a.Released); err != nil {
			return fmt.Errorf("failed to scan allocation: %w", err)
		}
		if ev, ok := byID[a.EventID]; ok {
			ev.Claims = append(ev.Claims, a)
		}
	}
	return rows.Err()
}

func eventWhere(f *domain.EventFilter) (string, []any) {
	if f == nil {
		return "", nil
	}
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.CoordinatorID != "" {
		add("coordinator_id = $%d", f.CoordinatorID)
	}
	if f.Department != "" {
		add("department = $%d", f.Department)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.VenueID != "" {
		add("venue_id = $%d", f.VenueID)
	}
	if f.Date != nil {
		add("event_date = $%d::date", domain.FormatDate(*f.Date))
	}
	if f.NonTerminal {
		conds = append(conds, "status NOT IN ('COMPLETED', 'REJECTED')")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func queryAudit(ctx context.Context, q querier, f *domain.AuditFilter, order string) ([]*domain.AuditEntry, error) {
	var (
		conds []string
		args  []any
	)
	if f != nil {
		if f.ActorID != "" {
			args = append(args, f.ActorID)
			conds = append(conds, fmt.Sprintf("actor_id = $%d", len(args)))
		}
		if f.EventID != "" {
			args = append(args, f.EventID)
			conds = append(conds, fmt.Sprintf("event_id = $%d", len(args)))
		}
		if f.Action != "" {
			args = append(args, "%"+escapeLike(f.Action)+"%")
			conds = append(conds, fmt.Sprintf("action ILIKE $%d", len(args)))
		}
	}

	query := selectAudit
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq " + order
	if f != nil && f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit: %w", err)
	}
	defer rows.Close()

	out := []*domain.AuditEntry{}
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// postgresTx implements LedgerTx on one pgx transaction
type postgresTx struct {
	tx pgx.Tx
}

func venueDateKey(venueID string, date time.Time) string {
	return venueID + "|" + domain.FormatDate(date)
}

func (t *postgresTx) LockVenueDate(ctx context.Context, venueID string, date time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.lock_venue_date")
	defer span.End()

	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, venueDateKey(venueID, date)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to lock venue date: %w", err)
	}
	return nil
}

func (t *postgresTx) FindActiveEvent(ctx context.Context, venueID string, date time.Time) (*domain.Event, error) {
	ev, err := scanEvent(t.tx.QueryRow(ctx, selectEvents+`
		WHERE venue_id = $1 AND event_date = $2::date
			AND status NOT IN ('COMPLETED', 'REJECTED')
		LIMIT 1`, venueID, domain.FormatDate(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active event: %w", err)
	}
	return ev, nil
}

func (t *postgresTx) LockResources(ctx context.Context, ids []string) (map[string]*domain.Resource, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.lock_resources")
	defer span.End()

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	span.SetAttributes(attribute.StringSlice("resource_ids", sorted))

	out := make(map[string]*domain.Resource, len(sorted))
	if len(sorted) == 0 {
		return out, nil
	}

	rows, err := t.tx.Query(ctx, selectResources+` WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sorted)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to lock resources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		out[res.ID] = res
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to lock resources: %w", err)
	}

	for _, id := range sorted {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrResourceNotFound, id)
		}
	}
	return out, nil
}

func (t *postgresTx) SaveResource(ctx context.Context, r *domain.Resource) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE resources SET available = $2, updated_at = $3 WHERE id = $1`,
		r.ID, r.Available, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save resource: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResourceNotFound
	}
	return nil
}

func (t *postgresTx) InsertResource(ctx context.Context, r *domain.Resource) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO resources (id, name, type, total, available, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.Name, r.Type, r.Total, r.Available, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert resource: %w", mapPgError(err))
	}
	return nil
}

func (t *postgresTx) InsertVenue(ctx context.Context, v *domain.Venue) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO venues (id, name, type, capacity, department, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		v.ID, v.Name, v.Type, v.Capacity, v.Department, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert venue: %w", mapPgError(err))
	}
	return nil
}

func (t *postgresTx) InsertEvent(ctx context.Context, ev *domain.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.insert_event")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", ev.ID), attribute.Int("claims", len(ev.Claims)))

	_, err := t.tx.Exec(ctx, `
		INSERT INTO events (
			id, title, description, event_date, duration, participants,
			venue_id, venue_name, department, coordinator_id, status,
			rejection_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		ev.ID, ev.Title, ev.Description, domain.FormatDate(ev.Date), ev.Duration, ev.Participants,
		ev.VenueID, ev.VenueName, ev.Department, ev.CoordinatorID, string(ev.Status),
		nullString(ev.RejectionReason), ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert event: %w", mapPgError(err))
	}

	if len(ev.Claims) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, c := range ev.Claims {
		batch.Queue(`
			INSERT INTO allocations (event_id, resource_id, quantity, released, position)
			VALUES ($1, $2, $3, $4, $5)`,
			ev.ID, c.ResourceID, c.Quantity, c.Released, i)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert allocations: %w", mapPgError(err))
	}
	return nil
}

func (t *postgresTx) LockEvent(ctx context.Context, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.lock_event")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	return getEvent(ctx, t.tx, id, true)
}

func (t *postgresTx) UpdateEvent(ctx context.Context, ev *domain.Event) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE events SET status = $2, rejection_reason = $3, updated_at = $4
		WHERE id = $1`,
		ev.ID, string(ev.Status), nullString(ev.RejectionReason), ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (t *postgresTx) MarkReleased(ctx context.Context, eventID, resourceID string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE allocations SET released = true
		WHERE event_id = $1 AND resource_id = $2 AND NOT released`,
		eventID, resourceID)
	if err != nil {
		return false, fmt.Errorf("failed to release allocation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *postgresTx) WriteOffAllocations(ctx context.Context, resourceID string) (int, error) {
	var total int
	err := t.tx.QueryRow(ctx, `
		WITH written_off AS (
			UPDATE allocations SET released = true
			WHERE resource_id = $1 AND NOT released
			RETURNING quantity
		)
		SELECT COALESCE(SUM(quantity), 0) FROM written_off`, resourceID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to write off allocations: %w", err)
	}
	return total, nil
}

func (t *postgresTx) AppendAudit(ctx context.Context, e *domain.AuditEntry) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO audit_entries (id, event_id, actor_id, action, from_status, to_status, note, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq`,
		e.ID, e.EventID, e.ActorID, string(e.Action), string(e.FromStatus), string(e.ToStatus),
		e.Note, e.Reason, e.Timestamp,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}
