package riders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"dispatch-service/internal/dispatch"
	"dispatch-service/internal/drivers"
	"dispatch-service/internal/trips"
)

// ErrUnknownRider is returned for operations on an id with no live entity.
var ErrUnknownRider = errors.New("unknown rider")

// Directory is the driver-side read surface the rider flow consumes.
type Directory interface {
	AllAvailableNear(ctx context.Context, lat, lng float64) ([]drivers.Snapshot, error)
}

// Coordinator matches a pickup request to a driver (see internal/dispatch).
type Coordinator interface {
	Dispatch(ctx context.Context, riderID string, lat, lng float64) (*trips.Trip, error)
}

// TripControl is the slice of the trip lifecycle the rider drives directly.
type TripControl interface {
	PickupCanceledByRider(ctx context.Context, t *trips.Trip) error
}

// Biller submits the rider's rating for a finished trip.
type Biller interface {
	Rate(ctx context.Context, tripID string, rating int, feedback string) error
}

// Geofence decides whether a pickup location may be served.
type Geofence interface {
	IsLocationAllowed(lat, lng float64) bool
}

// Schedule selects apology copy for pickups that found no cars.
type Schedule interface {
	SorryMessage(now time.Time) string
}

// Reporter emits fire-and-forget dispatch telemetry and SMS notices.
type Reporter interface {
	MobileConfirmationNeeded(riderID string)
	RestrictedLocation(riderID string, lat, lng float64)
	NoCarsAvailable(riderID string, secondCheck bool)
	SMSTripStatus(riderID, tripID, status string)
}

// Transport pushes a message to the rider's live session; a rider without a
// session silently drops it.
type Transport interface {
	Send(riderID string, msg any)
}

// Store persists rider entities.
type Store interface {
	Save(ctx context.Context, r *Rider) error
}

// Service is the rider state machine. Every public operation updates the
// rider's location, validates the request against the current state, runs
// the transition plus its persistence as one unit, and replies with a
// state-shaped payload.
type Service struct {
	registry  *Registry
	store     Store
	directory Directory
	coord     Coordinator
	trips     TripControl
	biller    Biller
	fence     Geofence
	hours     Schedule
	reporter  Reporter
	transport Transport
}

// NewService wires the rider service to its collaborators.
func NewService(
	registry *Registry,
	store Store,
	directory Directory,
	coord Coordinator,
	tripCtl TripControl,
	biller Biller,
	fence Geofence,
	hours Schedule,
	reporter Reporter,
	transport Transport,
) *Service {
	return &Service{
		registry:  registry,
		store:     store,
		directory: directory,
		coord:     coord,
		trips:     tripCtl,
		biller:    biller,
		fence:     fence,
		hours:     hours,
		reporter:  reporter,
		transport: transport,
	}
}

func (s *Service) get(id string) (*Rider, error) {
	r := s.registry.Get(id)
	if r == nil {
		return nil, ErrUnknownRider
	}
	return r, nil
}

// persist saves the rider; on failure the in-memory transition is reverted
// so no transition commits without its persistence. Caller holds r.mu.
func (s *Service) persist(ctx context.Context, r *Rider, prevState State, prevTrip *trips.Trip) error {
	if err := s.store.Save(ctx, r); err != nil {
		r.State = prevState
		r.Trip = prevTrip
		return fmt.Errorf("save rider %s: %w", r.ID, err)
	}
	return nil
}

// Login refreshes the rider's location, persists, and returns the
// state-shaped response with a fresh auth token. It never rejects: a rider
// always ends up in a valid state.
func (s *Service) Login(ctx context.Context, riderID string, req Request) (*StatusResponse, error) {
	r, err := s.get(riderID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	log.Printf("[riders] %s login, state %s", r.ID, r.State)
	r.Location = Location(req)
	if err := s.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("save rider %s: %w", r.ID, err)
	}
	return s.composeStatus(ctx, r, true)
}

// Ping refreshes the rider's location and returns the state-shaped response
// without a token. No other side effects.
func (s *Service) Ping(ctx context.Context, riderID string, req Request) (*StatusResponse, error) {
	r, err := s.get(riderID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Location = Location(req)
	return s.composeStatus(ctx, r, false)
}

// Pickup requests a ride from the given pickup location. Outside LOOKING it
// is a no-op returning current status. Policy rejections (unconfirmed
// mobile, restricted location) and empty-directory outcomes are reported to
// telemetry and answered with an OK carrying the appropriate copy; only a
// successful claim transitions the rider to DISPATCHING.
func (s *Service) Pickup(ctx context.Context, riderID string, req PickupRequest) (*StatusResponse, error) {
	r, err := s.get(riderID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Location = Location(req.Request)
	if r.State != StateLooking {
		return s.bareOK(r), nil
	}

	if !r.HasConfirmedMobile {
		// The request is effectively deferred: the rider retries after
		// the out-of-band confirmation completes.
		s.reporter.MobileConfirmationNeeded(r.ID)
		return s.bareOK(r), nil
	}

	if !s.fence.IsLocationAllowed(req.PickupLat, req.PickupLng) {
		s.reporter.RestrictedLocation(r.ID, req.PickupLat, req.PickupLng)
		resp := s.bareOK(r)
		resp.SorryMsg = msgRestrictedArea
		return resp, nil
	}

	trip, err := s.coord.Dispatch(ctx, r.ID, req.PickupLat, req.PickupLng)
	switch {
	case errors.Is(err, dispatch.ErrNoneNearby):
		s.reporter.NoCarsAvailable(r.ID, false)
		resp := s.bareOK(r)
		resp.SorryMsg = s.hours.SorryMessage(time.Now())
		return resp, nil
	case errors.Is(err, dispatch.ErrAllClaimed):
		s.reporter.NoCarsAvailable(r.ID, true)
		resp := s.bareOK(r)
		resp.SorryMsg = s.hours.SorryMessage(time.Now())
		return resp, nil
	case err != nil:
		return nil, err
	}

	prevState, prevTrip := r.State, r.Trip
	r.Trip = trip
	r.setState(StateDispatching)
	if err := s.persist(ctx, r, prevState, prevTrip); err != nil {
		// Undo the claim so the driver is not stranded on a dispatch
		// the rider never saw.
		if cErr := s.trips.PickupCanceledByRider(ctx, trip); cErr != nil {
			log.Printf("[riders] failed to unwind trip %s: %v", trip.ID, cErr)
		}
		return nil, err
	}
	return s.bareOK(r), nil
}

// CancelPickup cancels the rider's pending pickup, before or after driver
// confirmation, and answers with the refreshed state-shaped response.
func (s *Service) CancelPickup(ctx context.Context, riderID string, req Request) (*StatusResponse, error) {
	r, err := s.get(riderID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Location = Location(req)
	if r.State == StateDispatching || r.State == StateWaitingForPickup {
		if err := s.trips.PickupCanceledByRider(ctx, r.Trip); err != nil {
			return nil, err
		}
		prevState, prevTrip := r.State, r.Trip
		r.setState(StateLooking)
		if err := s.persist(ctx, r, prevState, prevTrip); err != nil {
			return nil, err
		}
	}
	return s.composeStatus(ctx, r, false)
}

// CancelTrip is the alternate rider-side cancellation entry point, effective
// only while waiting for pickup. The reply is a bare OK; refreshing the
// vehicle list here is a known deferred improvement.
func (s *Service) CancelTrip(ctx context.Context, riderID string, req Request) (*StatusResponse, error) {
	r, err := s.get(riderID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Location = Location(req)
	if r.State == StateWaitingForPickup {
		prevState, prevTrip := r.State, r.Trip
		r.setState(StateLooking)
		if err := s.persist(ctx, r, prevState, prevTrip); err != nil {
			return nil, err
		}
	}
	return s.bareOK(r), nil
}

// RateDriver submits the rider's rating for the finished trip. Only
// effective in PENDING_RATING; the transition back to LOOKING happens only
// after the billing call completes.
func (s *Service) RateDriver(ctx context.Context, riderID string, req RateRequest) (*StatusResponse, error) {
	r, err := s.get(riderID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Location = Location(req.Request)
	if r.State != StatePendingRating {
		return s.composeStatus(ctx, r, false)
	}

	if err := s.biller.Rate(ctx, r.Trip.ID, req.Rating, req.Feedback); err != nil {
		return nil, err
	}
	prevState, prevTrip := r.State, r.Trip
	r.setState(StateLooking)
	if err := s.persist(ctx, r, prevState, prevTrip); err != nil {
		return nil, err
	}
	return s.composeStatus(ctx, r, false)
}

// SetConnected flips the rider's live-session flag. Connectivity is
// transient state and is not persisted.
func (s *Service) SetConnected(riderID string, connected bool) {
	r := s.registry.Get(riderID)
	if r == nil {
		return
	}
	r.mu.Lock()
	r.Connected = connected
	r.mu.Unlock()
}

// BroadcastNearby recomputes and pushes the nearby-vehicle list for one
// rider. No-op unless the rider is connected and LOOKING. The full
// recomputation per call is a known inefficiency, deferred on purpose.
func (s *Service) BroadcastNearby(ctx context.Context, riderID string) {
	r := s.registry.Get(riderID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Connected || r.State != StateLooking {
		return
	}
	resp, err := s.composeStatus(ctx, r, false)
	if err != nil {
		log.Printf("[riders] nearby refresh for %s failed: %v", r.ID, err)
		return
	}
	s.transport.Send(r.ID, resp)
}

// BroadcastAllNearby refreshes the nearby-vehicle list for every live rider,
// typically on a periodic driver-location tick.
func (s *Service) BroadcastAllNearby(ctx context.Context) {
	for _, r := range s.registry.All() {
		s.BroadcastNearby(ctx, r.ID)
	}
}
