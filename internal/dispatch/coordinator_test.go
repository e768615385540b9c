package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"dispatch-service/internal/drivers"
	"dispatch-service/internal/trips"
)

type fakeDirectory struct {
	items []drivers.Candidate
	err   error
}

func (f *fakeDirectory) NearestAvailable(ctx context.Context, lat, lng float64) ([]drivers.Candidate, error) {
	return f.items, f.err
}

type fakeTrips struct {
	mu      sync.Mutex
	created int
	bound   map[string]string // trip id -> driver id
}

func newFakeTrips() *fakeTrips {
	return &fakeTrips{bound: make(map[string]string)}
}

func (f *fakeTrips) Create(ctx context.Context) (*trips.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return &trips.Trip{ID: string(rune('a' + f.created)), Status: trips.StatusCreated}, nil
}

func (f *fakeTrips) Pickup(ctx context.Context, t *trips.Trip, riderID string, lat, lng float64, d *drivers.Driver) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound[t.ID] = d.ID
	t.RiderID = riderID
	t.Driver = d
	t.DriverID = &d.ID
	t.Status = trips.StatusDispatched
	return nil
}

func availableDriver(id string) *drivers.Driver {
	d := &drivers.Driver{ID: id, VehicleID: "v-" + id}
	d.Release()
	return d
}

func TestDispatchNoCandidates(t *testing.T) {
	c := NewCoordinator(&fakeDirectory{}, newFakeTrips())

	_, err := c.Dispatch(context.Background(), "r1", 55.7, 37.6)
	if !errors.Is(err, ErrNoneNearby) {
		t.Fatalf("expected ErrNoneNearby, got %v", err)
	}
}

func TestDispatchAllClaimed(t *testing.T) {
	d := availableDriver("d1")
	if !d.Claim() {
		t.Fatal("setup claim failed")
	}
	dir := &fakeDirectory{items: []drivers.Candidate{{Driver: d}}}
	ft := newFakeTrips()
	c := NewCoordinator(dir, ft)

	_, err := c.Dispatch(context.Background(), "r1", 55.7, 37.6)
	if !errors.Is(err, ErrAllClaimed) {
		t.Fatalf("expected ErrAllClaimed, got %v", err)
	}
	// Distinct from the empty-snapshot failure, and the trip record was
	// still created first.
	if ft.created != 1 {
		t.Errorf("expected 1 trip record created, got %d", ft.created)
	}
}

func TestDispatchClaimsFirstAvailableInOrder(t *testing.T) {
	claimed := availableDriver("near")
	claimed.Claim()
	free := availableDriver("far")
	dir := &fakeDirectory{items: []drivers.Candidate{
		{Driver: claimed, DistanceKm: 0.5},
		{Driver: free, DistanceKm: 2.0},
	}}
	ft := newFakeTrips()
	c := NewCoordinator(dir, ft)

	trip, err := c.Dispatch(context.Background(), "r1", 55.7, 37.6)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if trip.Driver.ID != "far" {
		t.Errorf("expected the unclaimed fallback driver, got %s", trip.Driver.ID)
	}
	if free.IsAvailable() {
		t.Error("bound driver should no longer be available")
	}
}

func TestDispatchRaceSingleDriver(t *testing.T) {
	d := availableDriver("d1")
	dir := &fakeDirectory{items: []drivers.Candidate{{Driver: d, DistanceKm: 1.0}}}
	ft := newFakeTrips()
	c := NewCoordinator(dir, ft)

	const riders = 8
	var wg sync.WaitGroup
	results := make(chan error, riders)

	for i := 0; i < riders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Dispatch(context.Background(), "rider", 55.7, 37.6)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, secondCheck := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAllClaimed):
			secondCheck++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", wins)
	}
	if secondCheck != riders-1 {
		t.Fatalf("expected %d second-check failures, got %d", riders-1, secondCheck)
	}
}

func TestDispatchReleasesDriverWhenBindFails(t *testing.T) {
	d := availableDriver("d1")
	dir := &fakeDirectory{items: []drivers.Candidate{{Driver: d}}}
	c := NewCoordinator(dir, failingBindTrips{})

	if _, err := c.Dispatch(context.Background(), "r1", 55.7, 37.6); err == nil {
		t.Fatal("expected bind error to propagate")
	}
	if !d.IsAvailable() {
		t.Error("driver should be released when the pickup bind fails")
	}
}

type failingBindTrips struct{}

func (failingBindTrips) Create(ctx context.Context) (*trips.Trip, error) {
	return &trips.Trip{ID: "t1", Status: trips.StatusCreated}, nil
}

func (failingBindTrips) Pickup(ctx context.Context, t *trips.Trip, riderID string, lat, lng float64, d *drivers.Driver) error {
	return errors.New("db down")
}
