package incidents

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/yourlook/safeline/internal/domain"
	"github.com/yourlook/safeline/internal/pkg/ctxlog"
	"github.com/yourlook/safeline/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound, Message: "incident not found"},
	{Error: ErrIncidentResolved, Status: http.StatusConflict, Message: "incident already resolved"},
	{Error: ErrInvalidStatus, Status: http.StatusConflict, Message: "invalid status transition"},
	{Error: ErrEmptyMessage, Status: http.StatusBadRequest, Message: "message text is empty"},
	{Error: ErrTooManyMessages, Status: http.StatusConflict, Message: "incident message limit reached"},
	{Error: ErrChatDisabled, Status: http.StatusConflict, Message: "live chat is disabled for this incident"},
}

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers routes available to any authenticated user.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Post("/", h.CreateIncident)
		r.Get("/stream", h.StreamIncidents)
		r.Get("/{id}", h.GetIncident)
		r.Post("/{id}/messages", h.AppendMessage)
		r.Post("/{id}/location", h.ReportLocation)
	})
}

// RegisterResponderRoutes registers routes restricted to responders.
func (h *Handler) RegisterResponderRoutes(r chi.Router) {
	r.Get("/incidents", h.ListIncidents)
	r.Post("/incidents/{id}/acknowledge", h.Acknowledge)
	r.Post("/incidents/{id}/status", h.UpdateStatus)
}

// LocationRequest represents a location payload.
type LocationRequest struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	Address   string  `json:"address" validate:"required"`
}

// CreateIncidentRequest represents request body for incident activation.
type CreateIncidentRequest struct {
	Location LocationRequest `json:"location" validate:"required"`
}

// AppendMessageRequest represents request body for sending a chat message.
type AppendMessageRequest struct {
	Message string `json:"message" validate:"required"`
}

// UpdateStatusRequest represents request body for a status transition.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=acknowledged in-progress resolved"`
}

// CreateIncident handles POST /incidents.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.CreateIncident(r.Context(),
		httputil.GetUserID(r.Context()),
		httputil.GetUserName(r.Context()),
		domain.Location{
			Latitude:  req.Location.Latitude,
			Longitude: req.Location.Longitude,
			Address:   req.Location.Address,
		},
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// ListIncidents handles GET /incidents. The resolved query parameter
// partitions the listing the way the responder console displays it.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	filters := IncidentFilters{}
	switch r.URL.Query().Get("resolved") {
	case "true":
		resolved := true
		filters.Resolved = &resolved
	case "false":
		resolved := false
		filters.Resolved = &resolved
	}

	list, err := h.service.ListIncidents(r.Context(), filters)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, list)
}

// Acknowledge handles POST /incidents/{id}/acknowledge.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.Acknowledge(r.Context(),
		chi.URLParam(r, "id"),
		httputil.GetUserID(r.Context()),
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// UpdateStatus handles POST /incidents/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.UpdateStatus(r.Context(),
		chi.URLParam(r, "id"),
		domain.IncidentStatus(req.Status),
		httputil.GetUserID(r.Context()),
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// AppendMessage handles POST /incidents/{id}/messages.
func (h *Handler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	var req AppendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	message, err := h.service.AppendMessage(r.Context(),
		chi.URLParam(r, "id"),
		httputil.GetUserID(r.Context()),
		httputil.GetUserName(r.Context()),
		req.Message,
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusCreated, message)
}

// ReportLocation handles POST /incidents/{id}/location.
func (h *Handler) ReportLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.ReportLocation(r.Context(),
		chi.URLParam(r, "id"),
		domain.Location{Latitude: req.Latitude, Longitude: req.Longitude, Address: req.Address},
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, incident)
}

// StreamIncidents handles GET /incidents/stream as server-sent events.
// Every committed incident mutation is delivered as one event; subscribers
// that fall behind miss intermediate snapshots, never final state.
func (h *Handler) StreamIncidents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, cancel := h.service.Subscribe(64)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case incident, open := <-updates:
			if !open {
				return
			}
			data, err := json.Marshal(incident)
			if err != nil {
				ctxlog.FromContext(r.Context()).Error("failed to marshal incident event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: incident\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
