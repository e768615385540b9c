package dispatch

import (
	"context"
	"errors"
	"log"

	"dispatch-service/internal/drivers"
	"dispatch-service/internal/trips"
)

var (
	// ErrNoneNearby means the directory snapshot had no candidates at all.
	ErrNoneNearby = errors.New("no drivers nearby")
	// ErrAllClaimed means candidates existed but every one had been claimed
	// by a concurrent dispatch before this one reached it (the "second
	// check" failure).
	ErrAllClaimed = errors.New("all nearby drivers claimed")
)

// Directory supplies distance-ordered dispatch candidates.
type Directory interface {
	NearestAvailable(ctx context.Context, lat, lng float64) ([]drivers.Candidate, error)
}

// TripService creates trip records and binds pickups.
type TripService interface {
	Create(ctx context.Context) (*trips.Trip, error)
	Pickup(ctx context.Context, t *trips.Trip, riderID string, lat, lng float64, d *drivers.Driver) error
}

// Coordinator matches one pickup request to one driver. It takes no lock
// across riders: the directory snapshot is optimistic, and correctness comes
// from the atomic Claim on each candidate at commit time. Under contention
// the losing dispatch simply falls through to ErrAllClaimed and the rider
// retries.
type Coordinator struct {
	directory Directory
	trips     TripService
}

// NewCoordinator creates a dispatch coordinator.
func NewCoordinator(directory Directory, trips TripService) *Coordinator {
	return &Coordinator{directory: directory, trips: trips}
}

// Dispatch queries candidates around the pickup point, creates the trip
// record, and claims the first candidate that is still available, binding it
// to the trip. The trip record is created before the walk; on a full-scan
// miss it is left behind unbound, the accepted cost of lock-free claiming.
func (c *Coordinator) Dispatch(ctx context.Context, riderID string, lat, lng float64) (*trips.Trip, error) {
	items, err := c.directory.NearestAvailable(ctx, lat, lng)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoneNearby
	}

	trip, err := c.trips.Create(ctx)
	if err != nil {
		return nil, err
	}

	// Availability can change between the directory query and this walk:
	// a concurrent pickup may have claimed a nearer driver already. Claim
	// re-checks the live flag, so at most one dispatch wins each driver.
	for _, item := range items {
		if !item.Driver.Claim() {
			continue
		}
		if err := c.trips.Pickup(ctx, trip, riderID, lat, lng, item.Driver); err != nil {
			item.Driver.Release()
			return nil, err
		}
		log.Printf("[dispatch] rider %s matched driver %s (%.2f km) on trip %s",
			riderID, item.Driver.ID, item.DistanceKm, trip.ID)
		return trip, nil
	}

	return nil, ErrAllClaimed
}
