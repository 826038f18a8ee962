package service

import (
	"context"
	"testing"

	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryService_ListEvents_RoleScope(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	mine := f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-20"))
	colleague := f.submit(t, otherCoord, f.draft(f.auditorium, "2026-12-21"))
	ece := f.submit(t, eceCoord, f.draft(f.auditorium, "2026-12-22"))

	ids := func(events []*domain.Event) []string {
		out := make([]string, len(events))
		for i, ev := range events {
			out[i] = ev.ID
		}
		return out
	}

	tests := []struct {
		name  string
		actor domain.Actor
		want  []string
	}{
		{"coordinator sees own", coordinator, []string{mine.ID}},
		{"hod sees department", hodCSE, []string{colleague.ID, mine.ID}},
		{"other hod", hodECE, []string{ece.ID}},
		{"dean sees all", dean, []string{ece.ID, colleague.ID, mine.ID}},
		{"head sees all", head, []string{ece.ID, colleague.ID, mine.ID}},
		{"admin sees all", admin, []string{ece.ID, colleague.ID, mine.ID}},
		{"hod without department", domain.Actor{ID: "h", Role: domain.RoleHOD}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := f.query.ListEvents(ctx, tt.actor, nil)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(events))
		})
	}

	_, err := f.query.ListEvents(ctx, domain.Actor{ID: "x", Role: "GUEST"}, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownRole)
}

func TestQueryService_ListEvents_Filters(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	a := f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-23"))
	b := f.submit(t, coordinator, f.draft(f.cseHall, "2026-12-23"))
	_, err := f.approval.Transition(ctx, hodCSE, b.ID, domain.ActionApprove, "", "")
	require.NoError(t, err)

	events, err := f.query.ListEvents(ctx, dean, &EventQuery{Status: domain.StatusPendingDean})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, b.ID, events[0].ID)

	events, err = f.query.ListEvents(ctx, dean, &EventQuery{VenueID: f.auditorium.ID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, a.ID, events[0].ID)

	date, err := domain.ParseDate("2026-12-23")
	require.NoError(t, err)
	events, err = f.query.ListEvents(ctx, dean, &EventQuery{Date: &date})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestQueryService_GetEvent_NoExistenceLeak(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	ev := f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-24"))

	got, err := f.query.GetEvent(ctx, hodCSE, ev.ID)
	require.NoError(t, err)
	assert.Len(t, got.Timeline, 1)

	_, err = f.query.GetEvent(ctx, otherCoord, ev.ID)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	_, err = f.query.GetEvent(ctx, hodECE, ev.ID)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	_, err = f.query.GetEvent(ctx, dean, "missing")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestQueryService_ListVenues(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	names := func(a domain.Actor) []string {
		venues, err := f.query.ListVenues(ctx, a)
		require.NoError(t, err)
		out := make([]string, len(venues))
		for i, v := range venues {
			out[i] = v.Name
		}
		return out
	}

	assert.Equal(t, []string{"Conference Hall A", "Main Auditorium"}, names(coordinator))
	assert.Equal(t, []string{"Main Auditorium"}, names(eceCoord))
	assert.Equal(t, []string{"Main Auditorium"}, names(hodECE))
	assert.Equal(t, []string{"Conference Hall A", "Main Auditorium"}, names(dean))
}

func TestQueryService_VenueOccupancy(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	running := f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-25"))
	f.approveAll(t, running.ID)
	_, err := f.approval.Transition(ctx, coordinator, running.ID, domain.ActionStart, "", "")
	require.NoError(t, err)
	pending := f.submit(t, coordinator, f.draft(f.auditorium, "2026-12-26"))

	occupancy, err := f.query.VenueOccupancy(ctx, dean, nil)
	require.NoError(t, err)
	require.Len(t, occupancy, 2)

	byName := map[string]domain.VenueOccupancy{}
	for _, o := range occupancy {
		byName[o.Venue.Name] = o
	}
	assert.Equal(t, domain.VenueOccupied, byName["Main Auditorium"].State)
	assert.Len(t, byName["Main Auditorium"].Bookings, 2)
	assert.Equal(t, domain.VenueAvailable, byName["Conference Hall A"].State)

	date, err := domain.ParseDate("2026-12-26")
	require.NoError(t, err)
	occupancy, err = f.query.VenueOccupancy(ctx, eceCoord, &date)
	require.NoError(t, err)
	require.Len(t, occupancy, 1)
	assert.Equal(t, domain.VenueReserved, occupancy[0].State)
	require.Len(t, occupancy[0].Bookings, 1)
	assert.Equal(t, pending.ID, occupancy[0].Bookings[0].EventID)
}

func TestQueryService_ListResources(t *testing.T) {
	f := newLedgerFixture(t)

	resources, err := f.query.ListResources(context.Background())
	require.NoError(t, err)
	require.Len(t, resources, 2)
	assert.Equal(t, "Projectors", resources[0].Name)
	assert.Equal(t, "Wireless Mics", resources[1].Name)
}
