package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/repository"
)

// CatalogSeed is a set of venues and resources to load
type CatalogSeed struct {
	Venues    []VenueInput
	Resources []ResourceInput
}

// SeedResult counts what a seed run created and skipped
type SeedResult struct {
	VenuesCreated    int
	ResourcesCreated int
	Skipped          int
}

// DemoCatalog returns the demo campus catalog
func DemoCatalog() *CatalogSeed {
	cse := "CSE"
	return &CatalogSeed{
		Venues: []VenueInput{
			{Name: "Main Auditorium", Type: "Auditorium", Capacity: 500},
			{Name: "Conference Hall A", Type: "Hall", Capacity: 60, Department: &cse},
			{Name: "Digital Library Plaza", Type: "Outdoor", Capacity: 200},
		},
		Resources: []ResourceInput{
			{Name: "Wireless Mics", Type: "Audio", Total: 10},
			{Name: "Projectors", Type: "Visual", Total: 5},
			{Name: "Lunch Sets", Type: "Catering", Total: 1000},
		},
	}
}

// SeedCatalog creates every venue and resource in seed whose name is not
// already in the ledger. Re-running a seed is a no-op.
func SeedCatalog(ctx context.Context, ledger repository.LedgerRepository, admin AdminService, actor domain.Actor, seed *CatalogSeed) (*SeedResult, error) {
	venues, err := ledger.ListVenues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list venues: %w", err)
	}
	resources, err := ledger.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	existing := make(map[string]bool, len(venues)+len(resources))
	for _, v := range venues {
		existing["venue:"+strings.ToLower(v.Name)] = true
	}
	for _, r := range resources {
		existing["resource:"+strings.ToLower(r.Name)] = true
	}

	result := &SeedResult{}
	for i := range seed.Venues {
		in := &seed.Venues[i]
		if existing["venue:"+strings.ToLower(in.Name)] {
			result.Skipped++
			continue
		}
		if _, err := admin.CreateVenue(ctx, actor, in); err != nil {
			return result, fmt.Errorf("failed to seed venue %q: %w", in.Name, err)
		}
		result.VenuesCreated++
	}
	for i := range seed.Resources {
		in := &seed.Resources[i]
		if existing["resource:"+strings.ToLower(in.Name)] {
			result.Skipped++
			continue
		}
		if _, err := admin.CreateResource(ctx, actor, in); err != nil {
			return result, fmt.Errorf("failed to seed resource %q: %w", in.Name, err)
		}
		result.ResourcesCreated++
	}
	return result, nil
}
