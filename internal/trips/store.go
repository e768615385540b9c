package trips

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a trip id has no row.
var ErrNotFound = errors.New("trip not found")

// PGStore persists trips in PostgreSQL.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore creates a trip store backed by the given pool.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// Insert writes a freshly created, unbound trip row.
func (s *PGStore) Insert(ctx context.Context, t *Trip) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO trips (id,status,created_at) VALUES ($1,$2,$3)`,
		t.ID, t.Status, t.CreatedAt)
	return err
}

// BindPickup attaches rider, driver and pickup location to a trip.
func (s *PGStore) BindPickup(ctx context.Context, t *Trip) error {
	_, err := s.db.Exec(ctx,
		`UPDATE trips SET rider_id=$1, driver_id=$2, pickup_lat=$3, pickup_lng=$4, status=$5 WHERE id=$6`,
		t.RiderID, t.DriverID, t.PickupLat, t.PickupLng, t.Status, t.ID)
	return err
}

// UpdateStatus transitions a trip row, stamping the matching timestamp column.
func (s *PGStore) UpdateStatus(ctx context.Context, tripID, status string) error {
	now := time.Now()
	tag, err := s.db.Exec(ctx,
		`UPDATE trips
		 SET status=$1,
		     started_at  = CASE WHEN $1 = 'STARTED'  THEN $2 ELSE started_at  END,
		     finished_at = CASE WHEN $1 = 'FINISHED' THEN $2 ELSE finished_at END,
		     canceled_at = CASE WHEN $1 = 'CANCELED' THEN $2 ELSE canceled_at END
		 WHERE id=$3`,
		status, now, tripID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRating records the rider's rating and marks the trip billed.
func (s *PGStore) SetRating(ctx context.Context, tripID string, rating int, feedback string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE trips SET rating=$1, feedback=$2, status=$3 WHERE id=$4`,
		rating, feedback, StatusBilled, tripID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get fetches a trip row by primary key.
func (s *PGStore) Get(ctx context.Context, tripID string) (*Trip, error) {
	var t Trip
	err := s.db.QueryRow(ctx,
		`SELECT id,COALESCE(rider_id,''),driver_id,COALESCE(pickup_lat,0),COALESCE(pickup_lng,0),
		        status,rating,feedback,created_at,started_at,finished_at,canceled_at
		 FROM trips WHERE id=$1`, tripID).
		Scan(&t.ID, &t.RiderID, &t.DriverID, &t.PickupLat, &t.PickupLng,
			&t.Status, &t.Rating, &t.Feedback, &t.CreatedAt, &t.StartedAt, &t.FinishedAt, &t.CanceledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
