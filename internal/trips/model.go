package trips

import (
	"time"

	"dispatch-service/internal/drivers"
)

// Trip status values as persisted.
const (
	StatusCreated    = "CREATED"    // record exists, no driver bound yet
	StatusDispatched = "DISPATCHED" // driver claimed, awaiting confirmation
	StatusConfirmed  = "CONFIRMED"
	StatusStarted    = "STARTED"
	StatusFinished   = "FINISHED"
	StatusBilled     = "BILLED"
	StatusCanceled   = "CANCELED"
)

// Trip binds one rider and one driver from pickup request through billing.
// Driver is the live handle for the bound driver; it is never serialised,
// the row keeps only driver_id.
type Trip struct {
	ID          string          `json:"id"`
	RiderID     string          `json:"rider_id,omitempty"`
	DriverID    *string         `json:"driver_id,omitempty"`
	Driver      *drivers.Driver `json:"-"`
	PickupLat   float64         `json:"pickup_lat,omitempty"`
	PickupLng   float64         `json:"pickup_lng,omitempty"`
	Status      string          `json:"status"`
	Rating      *int            `json:"rating,omitempty"`
	Feedback    *string         `json:"feedback,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	CanceledAt  *time.Time      `json:"canceled_at,omitempty"`
}

// StatusUpdateRequest is the body for driver-side trip status endpoints.
type StatusUpdateRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RatingRequest carries a rider's rating for the billed trip.
type RatingRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}
