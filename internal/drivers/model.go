package drivers

import (
	"sync"
	"time"
)

// Location is a driver's last reported position.
type Location struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Epoch  int64   `json:"epoch"`
	Course float64 `json:"course"`
}

// Driver is the live in-memory driver record. Account fields are immutable
// after load; availability and location are guarded by mu because dispatch
// claims race with telemetry updates.
type Driver struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	VehicleID    string    `json:"vehicle_id"`
	VehicleType  string    `json:"vehicle_type"`
	LicensePlate string    `json:"license_plate"`
	Rating       float64   `json:"rating"`
	CreatedAt    time.Time `json:"created_at"`

	mu        sync.Mutex
	available bool
	location  Location
}

// IsAvailable reports the driver's live availability flag.
func (d *Driver) IsAvailable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.available
}

// Claim atomically flips the driver from available to claimed. It returns
// false when another dispatch got there first; the caller moves on to the
// next candidate.
func (d *Driver) Claim() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.available {
		return false
	}
	d.available = false
	return true
}

// Release puts the driver back into the available pool.
func (d *Driver) Release() {
	d.mu.Lock()
	d.available = true
	d.mu.Unlock()
}

// SetLocation records the driver's latest telemetry sample.
func (d *Driver) SetLocation(loc Location) {
	d.mu.Lock()
	d.location = loc
	d.mu.Unlock()
}

// Location returns the last telemetry sample.
func (d *Driver) LastLocation() Location {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location
}

// Snapshot captures the vehicle view of a driver for rider-facing payloads.
func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		VehicleID: d.VehicleID,
		Lat:       d.location.Lat,
		Lng:       d.location.Lng,
		Epoch:     d.location.Epoch,
		Course:    d.location.Course,
	}
}

// Snapshot is a point-in-time vehicle position.
type Snapshot struct {
	VehicleID string  `json:"id"`
	Lat       float64 `json:"latitude"`
	Lng       float64 `json:"longitude"`
	Epoch     int64   `json:"epoch"`
	Course    float64 `json:"course"`
}

// Candidate is one distance-ordered entry from a directory query. The
// availability seen at query time is advisory: dispatch re-checks it on the
// Driver handle at claim time.
type Candidate struct {
	Driver     *Driver
	DistanceKm float64
}

// RegisterRequest is the body for POST /drivers/register.
type RegisterRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
	VehicleType  string `json:"vehicle_type"`
	LicensePlate string `json:"license_plate"`
}

// LoginRequest is the body for POST /drivers/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LocationUpdate is the body for PATCH /drivers/location.
type LocationUpdate struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Epoch  int64   `json:"epoch"`
	Course float64 `json:"course"`
}

// AuthResponse is returned on register / login.
type AuthResponse struct {
	Token  string  `json:"token"`
	Driver *Driver `json:"driver,omitempty"`
}
