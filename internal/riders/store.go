package riders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no rider row matches the lookup.
var ErrNotFound = errors.New("rider not found")

// PGStore persists riders in Postgres.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore returns a Postgres-backed rider store.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// Save upserts the full rider row, including the current state and trip
// binding. Caller holds the rider's lock.
func (s *PGStore) Save(ctx context.Context, r *Rider) error {
	var tripID *string
	if r.Trip != nil {
		tripID = &r.Trip.ID
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO riders (
			id, name, email, phone, password_hash,
			state, trip_id, lat, lng, epoch, course,
			has_confirmed_mobile, payment_profile, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			password_hash = EXCLUDED.password_hash,
			state = EXCLUDED.state,
			trip_id = EXCLUDED.trip_id,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			epoch = EXCLUDED.epoch,
			course = EXCLUDED.course,
			has_confirmed_mobile = EXCLUDED.has_confirmed_mobile,
			payment_profile = EXCLUDED.payment_profile`,
		r.ID, r.Name, r.Email, r.Phone, r.PasswordHash,
		r.State.String(), tripID,
		r.Location.Lat, r.Location.Lng, r.Location.Epoch, r.Location.Course,
		r.HasConfirmedMobile, r.PaymentProfile, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert rider: %w", err)
	}
	return nil
}

// FindByEmail loads a rider row for credential checks at login. The trip
// binding comes back as a bare id; the caller rehydrates the trip before
// putting the rider live.
func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Rider, *string, error) {
	r := &Rider{}
	var state string
	var tripID *string
	err := s.db.QueryRow(ctx, `
		SELECT id, name, email, phone, password_hash,
		       state, trip_id, lat, lng, epoch, course,
		       has_confirmed_mobile, COALESCE(payment_profile, ''), created_at
		FROM riders WHERE email = $1`, email,
	).Scan(
		&r.ID, &r.Name, &r.Email, &r.Phone, &r.PasswordHash,
		&state, &tripID,
		&r.Location.Lat, &r.Location.Lng, &r.Location.Epoch, &r.Location.Course,
		&r.HasConfirmedMobile, &r.PaymentProfile, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("select rider: %w", err)
	}
	r.State = ParseState(state)
	return r, tripID, nil
}

// EmailTaken reports whether a rider with this email already exists.
func (s *PGStore) EmailTaken(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM riders WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check rider email: %w", err)
	}
	return exists, nil
}
