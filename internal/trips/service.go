package trips

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"dispatch-service/internal/drivers"
	"dispatch-service/internal/events"
	"dispatch-service/pkg/kafka"
)

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, t *Trip) error
	BindPickup(ctx context.Context, t *Trip) error
	UpdateStatus(ctx context.Context, tripID, status string) error
	SetRating(ctx context.Context, tripID string, rating int, feedback string) error
	Get(ctx context.Context, tripID string) (*Trip, error)
}

// Cache mirrors hot trip state into Redis for cheap status lookups.
type Cache interface {
	CacheTrip(ctx context.Context, tripID string, data map[string]string) error
}

// Publisher pushes trip status events onto the keyed stream.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// DriverPool releases a claimed driver back to the available set.
type DriverPool interface {
	Release(id string)
}

// Service owns the trip lifecycle records.
type Service struct {
	store Store
	cache Cache
	pub   Publisher
	pool  DriverPool
}

// NewService creates a trip service.
func NewService(store Store, cache Cache, pub Publisher, pool DriverPool) *Service {
	return &Service{store: store, cache: cache, pub: pub, pool: pool}
}

// Create writes a new trip record not yet bound to any driver. Dispatch
// creates the record before walking candidates; a failed dispatch leaves it
// behind in CREATED, which is accepted as the cost of lock-free claiming.
func (s *Service) Create(ctx context.Context) (*Trip, error) {
	t := &Trip{
		ID:        uuid.New().String(),
		Status:    StatusCreated,
		CreatedAt: time.Now(),
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("create trip: %w", err)
	}
	return t, nil
}

// Pickup binds a claimed driver, the rider and the pickup location to the
// trip in one step.
func (s *Service) Pickup(ctx context.Context, t *Trip, riderID string, lat, lng float64, d *drivers.Driver) error {
	t.RiderID = riderID
	t.Driver = d
	t.DriverID = &d.ID
	t.PickupLat = lat
	t.PickupLng = lng
	t.Status = StatusDispatched
	if err := s.store.BindPickup(ctx, t); err != nil {
		return fmt.Errorf("bind pickup: %w", err)
	}
	s.cacheStatus(ctx, t.ID, StatusDispatched, riderID)
	return nil
}

// PickupCanceledByRider tears down a dispatched or confirmed trip on the
// rider's request and frees the driver.
func (s *Service) PickupCanceledByRider(ctx context.Context, t *Trip) error {
	if t.Driver != nil {
		t.Driver.Release()
	}
	t.Status = StatusCanceled
	if err := s.store.UpdateStatus(ctx, t.ID, StatusCanceled); err != nil {
		return fmt.Errorf("cancel trip: %w", err)
	}
	s.cacheStatus(ctx, t.ID, StatusCanceled, t.RiderID)
	return nil
}

// Confirm marks the driver's acceptance and notifies the rider side.
func (s *Service) Confirm(ctx context.Context, tripID string) error {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateStatus(ctx, tripID, StatusConfirmed); err != nil {
		return err
	}
	s.cacheStatus(ctx, tripID, StatusConfirmed, t.RiderID)
	return s.publishStatus(ctx, t, events.StatusConfirmed, "")
}

// Arriving signals the driver is pulling up. Informational, no row change.
func (s *Service) Arriving(ctx context.Context, tripID string) error {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return err
	}
	return s.publishStatus(ctx, t, events.StatusArriving, "")
}

// Enroute signals a fresh driver position while heading to pickup or during
// the trip. Informational, no row change.
func (s *Service) Enroute(ctx context.Context, tripID string) error {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return err
	}
	return s.publishStatus(ctx, t, events.StatusEnroute, "")
}

// Start marks the trip begun.
func (s *Service) Start(ctx context.Context, tripID string) error {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateStatus(ctx, tripID, StatusStarted); err != nil {
		return err
	}
	s.cacheStatus(ctx, tripID, StatusStarted, t.RiderID)
	return s.publishStatus(ctx, t, events.StatusStarted, "")
}

// Finish marks the trip complete and frees the driver.
func (s *Service) Finish(ctx context.Context, tripID string) error {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateStatus(ctx, tripID, StatusFinished); err != nil {
		return err
	}
	if t.DriverID != nil {
		s.pool.Release(*t.DriverID)
	}
	s.cacheStatus(ctx, tripID, StatusFinished, t.RiderID)
	return s.publishStatus(ctx, t, events.StatusFinished, "")
}

// DriverCancel tears the trip down from the driver's side and frees the
// driver; the rider side is told to retry.
func (s *Service) DriverCancel(ctx context.Context, tripID, reason string) error {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateStatus(ctx, tripID, StatusCanceled); err != nil {
		return err
	}
	if t.DriverID != nil {
		s.pool.Release(*t.DriverID)
	}
	s.cacheStatus(ctx, tripID, StatusCanceled, t.RiderID)
	return s.publishStatus(ctx, t, events.StatusDriverCanceled, reason)
}

// Rate records the rider's rating and feedback; the billed event completes
// the rider's lifecycle.
func (s *Service) Rate(ctx context.Context, tripID string, rating int, feedback string) error {
	t, err := s.store.Get(ctx, tripID)
	if err != nil {
		return err
	}
	if rating < 1 {
		rating = 1
	} else if rating > 5 {
		rating = 5
	}
	if err := s.store.SetRating(ctx, tripID, rating, feedback); err != nil {
		return fmt.Errorf("rate trip: %w", err)
	}
	s.cacheStatus(ctx, tripID, StatusBilled, t.RiderID)
	return s.publishStatus(ctx, t, events.StatusBilled, "")
}

// GetByID fetches a trip row.
func (s *Service) GetByID(ctx context.Context, tripID string) (*Trip, error) {
	return s.store.Get(ctx, tripID)
}

func (s *Service) publishStatus(ctx context.Context, t *Trip, status, reason string) error {
	ev := events.TripStatusEvent{RiderID: t.RiderID, TripID: t.ID, Status: status, Reason: reason}
	if err := s.pub.Publish(ctx, kafka.TopicTripStatus, t.RiderID, ev); err != nil {
		return fmt.Errorf("publish trip.status %s: %w", status, err)
	}
	return nil
}

func (s *Service) cacheStatus(ctx context.Context, tripID, status, riderID string) {
	if s.cache == nil {
		return
	}
	err := s.cache.CacheTrip(ctx, tripID, map[string]string{
		"status":   status,
		"rider_id": riderID,
	})
	if err != nil {
		log.Printf("[trips] failed to cache trip %s: %v", tripID, err)
	}
}
