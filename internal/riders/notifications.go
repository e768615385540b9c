package riders

import (
	"context"
	"log"

	"dispatch-service/internal/events"
)

// Notification handlers. Each one is gated on the exact rider state the
// trip event is valid for; an event arriving in any other state (a stale
// retry, a crossed cancellation) is dropped without effect. Duplicate
// deliveries are therefore idempotent: the first one moves the state, the
// rest no longer match the gate.

// NotifyDriverConfirmed moves the rider from DISPATCHING to
// WAITING_FOR_PICKUP and pushes the assigned-vehicle payload.
func (s *Service) NotifyDriverConfirmed(ctx context.Context, riderID string) {
	r := s.registry.Get(riderID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State != StateDispatching {
		return
	}
	prevState, prevTrip := r.State, r.Trip
	r.setState(StateWaitingForPickup)
	if err := s.persist(ctx, r, prevState, prevTrip); err != nil {
		log.Printf("[riders] driver-confirmed for %s not applied: %v", riderID, err)
		return
	}
	s.reporter.SMSTripStatus(r.ID, r.Trip.ID, events.StatusConfirmed)
	s.pushStatus(ctx, r)
}

// NotifyDriverArriving pushes an arrival banner plus refreshed status. The
// rider stays in WAITING_FOR_PICKUP.
func (s *Service) NotifyDriverArriving(ctx context.Context, riderID string) {
	r := s.registry.Get(riderID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State != StateWaitingForPickup {
		return
	}
	s.reporter.SMSTripStatus(r.ID, r.Trip.ID, events.StatusArriving)
	resp, err := s.composeStatus(ctx, r, false)
	if err != nil {
		log.Printf("[riders] arriving refresh for %s failed: %v", riderID, err)
		return
	}
	resp.MessageType = MessageArrivingNow
	s.transport.Send(r.ID, resp)
}

// NotifyDriverEnroute refreshes the assigned-vehicle position. Valid both
// before pickup and during the trip; no state change.
func (s *Service) NotifyDriverEnroute(ctx context.Context, riderID string) {
	r := s.registry.Get(riderID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State != StateWaitingForPickup && r.State != StateOnTrip {
		return
	}
	s.pushStatus(ctx, r)
}

// NotifyTripStarted moves the rider from WAITING_FOR_PICKUP to ON_TRIP.
func (s *Service) NotifyTripStarted(ctx context.Context, riderID string) {
	r := s.registry.Get(riderID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State != StateWaitingForPickup {
		return
	}
	prevState, prevTrip := r.State, r.Trip
	r.setState(StateOnTrip)
	if err := s.persist(ctx, r, prevState, prevTrip); err != nil {
		log.Printf("[riders] trip-started for %s not applied: %v", riderID, err)
		return
	}
	s.pushStatus(ctx, r)
}

// NotifyTripFinished moves the rider from ON_TRIP to PENDING_RATING and
// pushes the end-of-trip payload. The trip reference stays set so the
// rating can find it.
func (s *Service) NotifyTripFinished(ctx context.Context, riderID string) {
	r := s.registry.Get(riderID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State != StateOnTrip {
		return
	}
	prevState, prevTrip := r.State, r.Trip
	r.setState(StatePendingRating)
	if err := s.persist(ctx, r, prevState, prevTrip); err != nil {
		log.Printf("[riders] trip-finished for %s not applied: %v", riderID, err)
		return
	}
	resp := s.bareOK(r)
	resp.MessageType = MessageEndTrip
	resp.Trip = r.Trip
	s.transport.Send(r.ID, resp)
}

// NotifyTripCanceled handles a driver-side cancellation after confirmation.
// The rider returns to LOOKING and is told to try again.
func (s *Service) NotifyTripCanceled(ctx context.Context, riderID string) {
	r := s.registry.Get(riderID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State != StateWaitingForPickup {
		return
	}
	s.reporter.SMSTripStatus(r.ID, r.Trip.ID, events.StatusDriverCanceled)
	prevState, prevTrip := r.State, r.Trip
	r.setState(StateLooking)
	if err := s.persist(ctx, r, prevState, prevTrip); err != nil {
		log.Printf("[riders] trip-canceled for %s not applied: %v", riderID, err)
		return
	}
	resp := s.bareOK(r)
	resp.MessageType = MessageTripCanceled
	resp.Reason = msgDriverCanceled
	s.transport.Send(r.ID, resp)
}

// NotifyPickupCanceled handles a dispatch-side cancellation before the
// driver confirmed, carrying an operator-supplied reason.
func (s *Service) NotifyPickupCanceled(ctx context.Context, riderID, reason string) {
	r := s.registry.Get(riderID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State != StateDispatching {
		return
	}
	prevState, prevTrip := r.State, r.Trip
	r.setState(StateLooking)
	if err := s.persist(ctx, r, prevState, prevTrip); err != nil {
		log.Printf("[riders] pickup-canceled for %s not applied: %v", riderID, err)
		return
	}
	resp := s.bareOK(r)
	resp.MessageType = MessagePickupCanceled
	resp.Reason = reason
	s.transport.Send(r.ID, resp)
}

// NotifyTripBilled pushes a receipt acknowledgment. Billing lands whenever
// the payment pipeline finishes, so this is not state-gated.
func (s *Service) NotifyTripBilled(ctx context.Context, riderID string) {
	r := s.registry.Get(riderID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s.transport.Send(r.ID, s.bareOK(r))
}

// pushStatus sends the full state-shaped response to the rider's live
// session. Caller holds r.mu.
func (s *Service) pushStatus(ctx context.Context, r *Rider) {
	resp, err := s.composeStatus(ctx, r, false)
	if err != nil {
		log.Printf("[riders] status push for %s failed: %v", r.ID, err)
		return
	}
	s.transport.Send(r.ID, resp)
}
