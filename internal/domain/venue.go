package domain

import (
	"strings"
	"time"
)

// Venue is a bookable physical space
type Venue struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Capacity   int       `json:"capacity"`
	Department *string   `json:"department"` // nil = institution-wide
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks a venue before it is stored
func (v *Venue) Validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return ErrInvalidName
	}
	if v.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	return nil
}

// BookableBy reports whether a coordinator of department may book the venue
func (v *Venue) BookableBy(department string) bool {
	return v.Department == nil || *v.Department == department
}

// VisibleTo reports whether a may see the venue
func (v *Venue) VisibleTo(a Actor) bool {
	return a.IsPrivileged() || v.BookableBy(a.Department)
}

// VenueState is derived from the venue's current non-terminal bookings
type VenueState string

const (
	VenueAvailable VenueState = "AVAILABLE"
	VenueReserved  VenueState = "RESERVED"
	VenueOccupied  VenueState = "OCCUPIED"
)

// Booking is a non-terminal event holding a venue on a date
type Booking struct {
	EventID string    `json:"event_id"`
	Title   string    `json:"title"`
	Date    time.Time `json:"date"`
	Status  Status    `json:"status"`
}

// VenueOccupancy is the operational view of one venue
type VenueOccupancy struct {
	Venue    Venue      `json:"venue"`
	State    VenueState `json:"state"`
	Bookings []Booking  `json:"bookings"`
}

// NewVenueOccupancy derives the state from bookings. Terminal events are ignored.
func NewVenueOccupancy(v Venue, events []*Event) VenueOccupancy {
	occ := VenueOccupancy{Venue: v, State: VenueAvailable, Bookings: []Booking{}}
	for _, e := range events {
		if e.VenueID != v.ID || e.IsTerminal() {
			continue
		}
		occ.Bookings = append(occ.Bookings, Booking{EventID: e.ID, Title: e.Title, Date: e.Date, Status: e.Status})
		if e.Status == StatusRunning {
			occ.State = VenueOccupied
		} else if occ.State == VenueAvailable {
			occ.State = VenueReserved
		}
	}
	return occ
}
