package dto

import (
	"time"

	"github.com/prohmpiriya/venue-approval/internal/domain"
)

// CreateVenueRequest represents a request to add a venue
type CreateVenueRequest struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Capacity   int     `json:"capacity"`
	Department *string `json:"department"`
}

// CreateResourceRequest represents a request to add a resource
type CreateResourceRequest struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Total int    `json:"total"`
}

// VenueResponse is one venue
type VenueResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Capacity   int       `json:"capacity"`
	Department *string   `json:"department"`
	CreatedAt  time.Time `json:"created_at"`
}

// ResourceResponse is one resource with its counters
type ResourceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Total     int       `json:"total"`
	Available int       `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BookingResponse is one non-terminal booking of a venue
type BookingResponse struct {
	EventID string `json:"event_id"`
	Title   string `json:"title"`
	Date    string `json:"date"`
	Status  string `json:"status"`
}

// OccupancyResponse is the derived state of one venue
type OccupancyResponse struct {
	VenueResponse
	State    string            `json:"state"`
	Bookings []BookingResponse `json:"bookings"`
}

// FromVenue converts a domain venue
func FromVenue(v *domain.Venue) VenueResponse {
	return VenueResponse{
		ID:         v.ID,
		Name:       v.Name,
		Type:       v.Type,
		Capacity:   v.Capacity,
		Department: v.Department,
		CreatedAt:  v.CreatedAt,
	}
}

// FromVenues converts a list of venues
func FromVenues(venues []*domain.Venue) []VenueResponse {
	out := make([]VenueResponse, len(venues))
	for i, v := range venues {
		out[i] = FromVenue(v)
	}
	return out
}

// FromResource converts a domain resource
func FromResource(r *domain.Resource) ResourceResponse {
	return ResourceResponse{
		ID:        r.ID,
		Name:      r.Name,
		Type:      r.Type,
		Total:     r.Total,
		Available: r.Available,
		UpdatedAt: r.UpdatedAt,
	}
}

// FromResources converts a list of resources
func FromResources(resources []*domain.Resource) []ResourceResponse {
	out := make([]ResourceResponse, len(resources))
	for i, r := range resources {
		out[i] = FromResource(r)
	}
	return out
}

// FromOccupancy converts venue occupancy projections
func FromOccupancy(occ []domain.VenueOccupancy) []OccupancyResponse {
	out := make([]OccupancyResponse, len(occ))
	for i := range occ {
		o := &occ[i]
		resp := OccupancyResponse{
			VenueResponse: FromVenue(&o.Venue),
			State:         string(o.State),
			Bookings:      make([]BookingResponse, len(o.Bookings)),
		}
		for j, b := range o.Bookings {
			resp.Bookings[j] = BookingResponse{
				EventID: b.EventID,
				Title:   b.Title,
				Date:    domain.FormatDate(b.Date),
				Status:  string(b.Status),
			}
		}
		out[i] = resp
	}
	return out
}
