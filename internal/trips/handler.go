package trips

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dispatch-service/pkg/jwt"
)

// Handler exposes the driver-side trip status endpoints. The rider side
// never calls these; its flows run through the riders package.
type Handler struct{ svc *Service }

// NewHandler wires a handler to the trip service.
func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Routes returns a chi.Router with all trip routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(jwt.RequireAuth)

	r.Get("/{id}", h.GetByID)
	r.Post("/{id}/confirm", h.status(h.svc.Confirm))
	r.Post("/{id}/arriving", h.status(h.svc.Arriving))
	r.Post("/{id}/enroute", h.status(h.svc.Enroute))
	r.Post("/{id}/start", h.status(h.svc.Start))
	r.Post("/{id}/finish", h.status(h.svc.Finish))
	r.Post("/{id}/cancel", h.Cancel)

	return r
}

func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// status adapts a (ctx, tripID) service call into an HTTP handler.
func (h *Handler) status(fn func(ctx context.Context, tripID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeStatusErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req StatusUpdateRequest
	// body is optional
	json.NewDecoder(r.Body).Decode(&req)

	if err := h.svc.DriverCancel(r.Context(), chi.URLParam(r, "id"), req.Reason); err != nil {
		writeStatusErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func writeStatusErr(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
