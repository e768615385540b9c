package riders

import (
	"context"

	"dispatch-service/internal/drivers"
	"dispatch-service/internal/trips"
	"dispatch-service/pkg/jwt"
)

// Outbound message types.
const (
	MessageOK             = "OK"
	MessageTripCanceled   = "TripCanceled"
	MessagePickupCanceled = "PickupCanceled"
	MessageArrivingNow    = "ArrivingNow"
	MessageEndTrip        = "EndTrip"
)

// Rider-facing copy.
const (
	msgRestrictedArea = "Unfortunately we do not serve your area yet. We are expanding all the time, stay tuned for updates!"
	msgDriverCanceled = "The driver had to cancel your order, but we may have another free cab! Please try requesting a ride again."
)

// Vehicle is one vehicle entry in a state-shaped response. ETA is a
// placeholder zero; computing a real estimate is deferred.
type Vehicle struct {
	ID     string  `json:"id"`
	Lat    float64 `json:"latitude"`
	Lng    float64 `json:"longitude"`
	Epoch  int64   `json:"epoch"`
	Course float64 `json:"course"`
	ETA    int     `json:"eta"`
}

// StatusResponse is the state-shaped outbound payload: its vehicle content
// depends on the rider's current state, never on which call site built it.
type StatusResponse struct {
	MessageType       string      `json:"messageType"`
	RiderID           string      `json:"rider_id"`
	State             string      `json:"state"`
	Token             string      `json:"token,omitempty"`
	Trip              *trips.Trip `json:"trip,omitempty"`
	Vehicles          []Vehicle   `json:"nearbyVehicles,omitempty"`
	SorryMsg          string      `json:"sorryMsg,omitempty"`
	Reason            string      `json:"reason,omitempty"`
	TripPendingRating bool        `json:"tripPendingRating,omitempty"`
}

func vehicleFromSnapshot(s drivers.Snapshot) Vehicle {
	return Vehicle{
		ID:     s.VehicleID,
		Lat:    s.Lat,
		Lng:    s.Lng,
		Epoch:  s.Epoch,
		Course: s.Course,
	}
}

// bareOK is the current-status payload without vehicle data.
// Caller holds r.mu.
func (s *Service) bareOK(r *Rider) *StatusResponse {
	return &StatusResponse{
		MessageType:       MessageOK,
		RiderID:           r.ID,
		State:             r.State.String(),
		Trip:              r.Trip,
		TripPendingRating: r.State == StatePendingRating,
	}
}

// composeStatus builds the full state-shaped payload:
//   - WAITING_FOR_PICKUP / ON_TRIP - the single assigned vehicle
//   - LOOKING                      - all available vehicles nearby, queried fresh
//   - anything else                - bare current status
//
// Token inclusion is orthogonal to state. Caller holds r.mu.
func (s *Service) composeStatus(ctx context.Context, r *Rider, includeToken bool) (*StatusResponse, error) {
	resp := s.bareOK(r)

	switch r.State {
	case StateWaitingForPickup, StateOnTrip:
		if r.Trip != nil && r.Trip.Driver != nil {
			resp.Vehicles = []Vehicle{vehicleFromSnapshot(r.Trip.Driver.Snapshot())}
		}
	case StateLooking:
		nearby, err := s.directory.AllAvailableNear(ctx, r.Location.Lat, r.Location.Lng)
		if err != nil {
			return nil, err
		}
		vehicles := make([]Vehicle, len(nearby))
		for i, snap := range nearby {
			vehicles[i] = vehicleFromSnapshot(snap)
		}
		resp.Vehicles = vehicles
	}

	if includeToken {
		token, err := jwt.Generate(r.ID, r.Email, "rider")
		if err != nil {
			return nil, err
		}
		resp.Token = token
	}
	return resp, nil
}
