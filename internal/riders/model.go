package riders

import (
	"sync"
	"time"

	"dispatch-service/internal/trips"
)

// State enumerates the rider lifecycle. Exactly one value is active at a
// time, and every inbound request and notification is gated on it.
type State int

const (
	StateLooking State = iota
	StateDispatching
	StateWaitingForPickup
	StateOnTrip
	StatePendingRating
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateLooking:
		return "LOOKING"
	case StateDispatching:
		return "DISPATCHING"
	case StateWaitingForPickup:
		return "WAITING_FOR_PICKUP"
	case StateOnTrip:
		return "ON_TRIP"
	case StatePendingRating:
		return "PENDING_RATING"
	}
	return "UNKNOWN"
}

// ParseState maps a persisted wire name back to a State; unknown names fall
// back to LOOKING so a rider always loads into a valid state.
func ParseState(s string) State {
	switch s {
	case "DISPATCHING":
		return StateDispatching
	case "WAITING_FOR_PICKUP":
		return StateWaitingForPickup
	case "ON_TRIP":
		return StateOnTrip
	case "PENDING_RATING":
		return StatePendingRating
	}
	return StateLooking
}

// Location is the rider's last known position.
type Location struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Epoch  int64   `json:"epoch"`
	Course float64 `json:"course"`
}

// Rider is the live rider entity. mu serialises its whole lifecycle: no two
// requests or notifications for the same rider overlap, and a transition
// plus its persistence run as one unit under the lock. Cross-rider flows
// never share this lock.
type Rider struct {
	mu sync.Mutex

	ID           string
	Name         string
	Email        string
	Phone        string
	PasswordHash string

	State              State
	Trip               *trips.Trip
	Location           Location
	Connected          bool
	HasConfirmedMobile bool
	PaymentProfile     string
	CreatedAt          time.Time
}

// setState applies a transition. Landing on LOOKING clears the trip binding
// in the same step; no caller ever observes a LOOKING rider with a trip.
// Caller holds mu.
func (r *Rider) setState(s State) {
	r.State = s
	if s == StateLooking {
		r.Trip = nil
	}
}

// RegisterRequest is the body for POST /riders/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// LoginRequest is the body for POST /riders/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Request
}

// Request carries the location fields every inbound rider message shares.
type Request struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Epoch  int64   `json:"epoch"`
	Course float64 `json:"course"`
}

// PickupRequest is the body for POST /riders/pickup.
type PickupRequest struct {
	Request
	PickupLat float64 `json:"pickup_lat"`
	PickupLng float64 `json:"pickup_lng"`
}

// RateRequest is the body for POST /riders/rate.
type RateRequest struct {
	Request
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}
