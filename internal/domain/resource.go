package domain

import (
	"fmt"
	"strings"
	"time"
)

// Resource is a finite pool of equipment or consumables
type Resource struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Total     int       `json:"total"`
	Available int       `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks a resource before it is stored
func (r *Resource) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if r.Total <= 0 {
		return ErrInvalidTotal
	}
	if r.Available < 0 || r.Available > r.Total {
		return fmt.Errorf("%w: available %d outside [0, %d]", ErrLedgerInvariant, r.Available, r.Total)
	}
	return nil
}

// Take decrements available by qty, or fails without change
func (r *Resource) Take(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if r.Available < qty {
		return &CapacityError{
			ResourceID:   r.ID,
			ResourceName: r.Name,
			Requested:    qty,
			Available:    r.Available,
		}
	}
	r.Available -= qty
	return nil
}

// Return increments available by qty. Exceeding total is an invariant error.
func (r *Resource) Return(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if r.Available+qty > r.Total {
		return fmt.Errorf("%w: returning %d to %s would exceed total %d (available %d)",
			ErrLedgerInvariant, qty, r.ID, r.Total, r.Available)
	}
	r.Available += qty
	return nil
}

// Reset restores available to total and returns the quantity written off
func (r *Resource) Reset() int {
	outstanding := r.Total - r.Available
	r.Available = r.Total
	return outstanding
}
