package riders

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"dispatch-service/internal/drivers"
	"dispatch-service/internal/trips"
	"dispatch-service/pkg/jwt"
	"dispatch-service/pkg/validation"
)

// TripLoader rehydrates a trip row when a rider logs back in mid-trip.
type TripLoader interface {
	GetByID(ctx context.Context, tripID string) (*trips.Trip, error)
}

// DriverLookup resolves a live driver record by id.
type DriverLookup interface {
	Get(id string) *drivers.Driver
}

// Handler exposes rider HTTP endpoints.
type Handler struct {
	svc      *Service
	accounts *PGStore
	registry *Registry
	tripsLdr TripLoader
	driverLk DriverLookup
}

// NewHandler wires a handler to the rider service and its account store.
func NewHandler(svc *Service, accounts *PGStore, registry *Registry, tl TripLoader, dl DriverLookup) *Handler {
	return &Handler{svc: svc, accounts: accounts, registry: registry, tripsLdr: tl, driverLk: dl}
}

// Routes returns a chi.Router with all rider routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Public
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	// Protected — the rider acts on its own record, identified by JWT.
	r.Group(func(r chi.Router) {
		r.Use(jwt.RequireAuth)
		r.Post("/ping", h.Ping)
		r.Post("/pickup", h.Pickup)
		r.Post("/pickup/cancel", h.CancelPickup)
		r.Post("/trip/cancel", h.CancelTrip)
		r.Post("/rate", h.RateDriver)
	})

	return r
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !validation.ValidateEmail(req.Email) || !validation.ValidatePassword(req.Password) ||
		!validation.ValidateName(req.Name) || !validation.ValidatePhone(req.Phone) {
		writeErr(w, http.StatusBadRequest, "invalid registration fields")
		return
	}

	taken, err := h.accounts.EmailTaken(r.Context(), req.Email)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "registration failed")
		return
	}
	if taken {
		writeErr(w, http.StatusConflict, "email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "registration failed")
		return
	}

	rider := &Rider{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: string(hash),
		State:        StateLooking,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.accounts.Save(r.Context(), rider); err != nil {
		log.Printf("[riders] register %s failed: %v", req.Email, err)
		writeErr(w, http.StatusInternalServerError, "registration failed")
		return
	}
	h.registry.Put(rider)

	token, err := jwt.Generate(rider.ID, rider.Email, "rider")
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": rider.ID, "token": token})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid body")
		return
	}

	stored, tripID, err := h.accounts.FindByEmail(r.Context(), req.Email)
	if errors.Is(err, ErrNotFound) {
		writeErr(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "login failed")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(req.Password)) != nil {
		writeErr(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	// A rider already live keeps its in-memory record; otherwise the stored
	// row is rehydrated, trip and driver included, before going live.
	rider := h.registry.Get(stored.ID)
	if rider == nil {
		rider = stored
		if tripID != nil {
			h.rehydrateTrip(r.Context(), rider, *tripID)
		}
		h.registry.Put(rider)
	}

	resp, err := h.svc.Login(r.Context(), rider.ID, req.Request)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// rehydrateTrip attaches the stored trip, and its driver when still online,
// to a rider loading back in mid-trip. A trip that cannot be loaded resets
// the rider to LOOKING rather than leaving a mid-trip state with no trip.
func (h *Handler) rehydrateTrip(ctx context.Context, rider *Rider, tripID string) {
	trip, err := h.tripsLdr.GetByID(ctx, tripID)
	if err != nil {
		log.Printf("[riders] trip %s for %s not rehydrated: %v", tripID, rider.ID, err)
		rider.setState(StateLooking)
		return
	}
	if trip.DriverID != nil {
		trip.Driver = h.driverLk.Get(*trip.DriverID)
	}
	rider.Trip = trip
}

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	h.locationOp(w, r, h.svc.Ping)
}

func (h *Handler) Pickup(w http.ResponseWriter, r *http.Request) {
	claims := jwt.GetClaims(r.Context())
	var req PickupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !validation.ValidateCoordinates(req.PickupLat, req.PickupLng) {
		writeErr(w, http.StatusBadRequest, "invalid pickup coordinates")
		return
	}
	resp, err := h.svc.Pickup(r.Context(), claims.UserID, req)
	if err != nil {
		writeSvcErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CancelPickup(w http.ResponseWriter, r *http.Request) {
	h.locationOp(w, r, h.svc.CancelPickup)
}

func (h *Handler) CancelTrip(w http.ResponseWriter, r *http.Request) {
	h.locationOp(w, r, h.svc.CancelTrip)
}

func (h *Handler) RateDriver(w http.ResponseWriter, r *http.Request) {
	claims := jwt.GetClaims(r.Context())
	var req RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid body")
		return
	}
	resp, err := h.svc.RateDriver(r.Context(), claims.UserID, req)
	if err != nil {
		writeSvcErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// locationOp handles the endpoints whose body is just the shared location
// fields.
func (h *Handler) locationOp(w http.ResponseWriter, r *http.Request, op func(context.Context, string, Request) (*StatusResponse, error)) {
	claims := jwt.GetClaims(r.Context())
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid body")
		return
	}
	resp, err := op(r.Context(), claims.UserID, req)
	if err != nil {
		writeSvcErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeSvcErr(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUnknownRider) {
		writeErr(w, http.StatusUnauthorized, "session expired, log in again")
		return
	}
	writeErr(w, http.StatusInternalServerError, err.Error())
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
