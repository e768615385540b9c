package events

// Trip status values carried on the trip.status stream. The stream is keyed
// by rider id so one rider's notifications arrive in publication order.
const (
	StatusConfirmed      = "confirmed"
	StatusArriving       = "arriving"
	StatusEnroute        = "enroute"
	StatusStarted        = "started"
	StatusFinished       = "finished"
	StatusDriverCanceled = "driver_canceled"
	StatusPickupCanceled = "pickup_canceled"
	StatusBilled         = "billed"
)

// PickupRequestEvent is published to dispatch.events for every pickup request
// that could not be served, so operators can tell "no drivers in the area"
// (SecondCheck=false) from "drivers existed but were all claimed concurrently"
// (SecondCheck=true).
type PickupRequestEvent struct {
	RiderID            string   `json:"rider_id"`
	NoCarsAvailable    bool     `json:"no_cars_available,omitempty"`
	SecondCheck        bool     `json:"second_check,omitempty"`
	RestrictedLat      *float64 `json:"restricted_lat,omitempty"`
	RestrictedLng      *float64 `json:"restricted_lng,omitempty"`
	MobileConfirmation bool     `json:"mobile_confirmation,omitempty"`
}

// TripStatusEvent is published to trip.status by the driver side and consumed
// by the rider notification handlers.
type TripStatusEvent struct {
	RiderID string `json:"rider_id"`
	TripID  string `json:"trip_id"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

// SMSNotice is published to sms.notices; an out-of-process gateway turns it
// into a real text message.
type SMSNotice struct {
	RiderID string `json:"rider_id"`
	TripID  string `json:"trip_id"`
	Status  string `json:"status"`
}
