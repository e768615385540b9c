package drivers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"dispatch-service/pkg/jwt"
	rredis "dispatch-service/pkg/redis"
)

// Directory query tuning.
const (
	searchRadiusKm = 5.0
	// nearestCount bounds the dispatch candidate list; pickups rarely need
	// more than a handful of fallbacks.
	nearestCount = 10
	// nearbyCount bounds the rider-facing nearby-vehicle list.
	nearbyCount = 25
)

// Service is the driver directory: accounts in PostgreSQL, live records in
// the registry, distance ordering in a Redis GEO set.
type Service struct {
	db       *pgxpool.Pool
	redis    *rredis.Client
	registry *Registry
}

// NewService creates a driver service.
func NewService(db *pgxpool.Pool, redis *rredis.Client, registry *Registry) *Service {
	return &Service{db: db, redis: redis, registry: registry}
}

// Register creates a new driver account and returns a JWT.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var exists bool
	_ = s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM drivers WHERE email=$1)", req.Email).Scan(&exists)
	if exists {
		return nil, errors.New("email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	vehicleID := uuid.New().String()
	vt := req.VehicleType
	if vt == "" {
		vt = "sedan"
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO drivers (id,name,email,phone,password_hash,vehicle_id,vehicle_type,license_plate,rating)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,5.0)`,
		id, req.Name, req.Email, req.Phone, string(hash), vehicleID, vt, req.LicensePlate)
	if err != nil {
		return nil, err
	}

	token, err := jwt.Generate(id, req.Email, "driver")
	if err != nil {
		return nil, err
	}

	d := &Driver{
		ID: id, Name: req.Name, Email: req.Email, Phone: req.Phone,
		VehicleID: vehicleID, VehicleType: vt, LicensePlate: req.LicensePlate,
		Rating: 5.0, CreatedAt: time.Now(),
	}
	s.registry.Put(d)

	return &AuthResponse{Token: token, Driver: d}, nil
}

// Login authenticates a driver, loads it into the registry, and returns a JWT.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var d Driver
	var hash string
	err := s.db.QueryRow(ctx,
		`SELECT id,name,email,phone,password_hash,vehicle_id,vehicle_type,license_plate,rating,created_at
		 FROM drivers WHERE email=$1`, req.Email).
		Scan(&d.ID, &d.Name, &d.Email, &d.Phone, &hash,
			&d.VehicleID, &d.VehicleType, &d.LicensePlate, &d.Rating, &d.CreatedAt)
	if err != nil {
		return nil, errors.New("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		return nil, errors.New("invalid credentials")
	}

	token, err := jwt.Generate(d.ID, d.Email, "driver")
	if err != nil {
		return nil, err
	}

	// Keep the already-live record if there is one; its availability and
	// location survive a re-login.
	live := s.registry.Get(d.ID)
	if live == nil {
		live = &d
		s.registry.Put(live)
	}
	return &AuthResponse{Token: token, Driver: live}, nil
}

// GoOnline marks the driver available and indexes its position.
func (s *Service) GoOnline(ctx context.Context, driverID string, loc Location) error {
	d := s.registry.Get(driverID)
	if d == nil {
		return errors.New("driver not found")
	}
	d.SetLocation(loc)
	d.Release()
	return s.redis.SetDriverLocation(ctx, driverID, loc.Lat, loc.Lng)
}

// GoOffline removes the driver from the available pool and the GEO index.
func (s *Service) GoOffline(ctx context.Context, driverID string) error {
	if d := s.registry.Get(driverID); d != nil {
		d.Claim()
	}
	return s.redis.RemoveDriverLocation(ctx, driverID)
}

// UpdateLocation ingests one telemetry sample: live record plus GEO index.
func (s *Service) UpdateLocation(ctx context.Context, driverID string, loc Location) error {
	d := s.registry.Get(driverID)
	if d == nil {
		return errors.New("driver not found")
	}
	d.SetLocation(loc)
	return s.redis.SetDriverLocation(ctx, driverID, loc.Lat, loc.Lng)
}

// NearestAvailable returns available drivers around (lat,lng), nearest first.
// The availability flag on each candidate's Driver handle is live and must be
// re-checked at claim time.
func (s *Service) NearestAvailable(ctx context.Context, lat, lng float64) ([]Candidate, error) {
	geo, err := s.redis.NearbyDrivers(ctx, lat, lng, searchRadiusKm, nearestCount)
	if err != nil {
		return nil, err
	}
	items := make([]Candidate, 0, len(geo))
	for _, g := range geo {
		d := s.registry.Get(g.ID)
		if d == nil || !d.IsAvailable() {
			continue
		}
		items = append(items, Candidate{Driver: d, DistanceKm: g.DistanceKm})
	}
	return items, nil
}

// AllAvailableNear returns vehicle snapshots of available drivers around a
// point, for the rider-facing nearby-vehicle list.
func (s *Service) AllAvailableNear(ctx context.Context, lat, lng float64) ([]Snapshot, error) {
	geo, err := s.redis.NearbyDrivers(ctx, lat, lng, searchRadiusKm, nearbyCount)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(geo))
	for _, g := range geo {
		d := s.registry.Get(g.ID)
		if d == nil || !d.IsAvailable() {
			continue
		}
		out = append(out, d.Snapshot())
	}
	return out, nil
}
