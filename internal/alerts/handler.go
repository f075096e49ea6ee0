package alerts

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/yourlook/safeline/internal/domain"
	"github.com/yourlook/safeline/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrChannelNotFound, Status: http.StatusNotFound, Message: "alert channel not found"},
	{Error: ErrChannelNotOwned, Status: http.StatusForbidden, Message: "channel does not belong to you"},
}

// Handler handles HTTP requests for responder alert settings.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new alerts handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers responder-only alert settings routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/channels", h.ListChannels)
		r.Post("/channels", h.CreateChannel)
		r.Patch("/channels/{id}", h.UpdateChannel)
		r.Delete("/channels/{id}", h.DeleteChannel)
		r.Get("/duty", h.GetDuty)
		r.Put("/duty", h.SetDuty)
	})
}

// CreateChannelRequest represents request body for channel creation.
type CreateChannelRequest struct {
	Type   string `json:"type" validate:"required,oneof=email telegram webhook"`
	Target string `json:"target" validate:"required"`
}

// UpdateChannelRequest represents request body for channel update.
type UpdateChannelRequest struct {
	IsEnabled *bool `json:"is_enabled" validate:"required"`
}

// SetDutyRequest represents request body for the duty toggle.
type SetDutyRequest struct {
	OnDuty *bool `json:"on_duty" validate:"required"`
}

// DutyResponse represents the duty state.
type DutyResponse struct {
	OnDuty bool `json:"on_duty"`
}

// CreateChannel handles POST /alerts/channels.
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	channel, err := h.service.CreateChannel(r.Context(),
		httputil.GetUserID(r.Context()),
		domain.ChannelType(req.Type),
		req.Target,
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusCreated, channel)
}

// ListChannels handles GET /alerts/channels.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.service.ListChannels(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, channels)
}

// UpdateChannel handles PATCH /alerts/channels/{id}.
func (h *Handler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	var req UpdateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	channel, err := h.service.UpdateChannel(r.Context(),
		httputil.GetUserID(r.Context()),
		chi.URLParam(r, "id"),
		*req.IsEnabled,
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, channel)
}

// DeleteChannel handles DELETE /alerts/channels/{id}.
func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteChannel(r.Context(),
		httputil.GetUserID(r.Context()),
		chi.URLParam(r, "id"),
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDuty handles GET /alerts/duty.
func (h *Handler) GetDuty(w http.ResponseWriter, r *http.Request) {
	onDuty, err := h.service.IsOnDuty(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, DutyResponse{OnDuty: onDuty})
}

// SetDuty handles PUT /alerts/duty.
func (h *Handler) SetDuty(w http.ResponseWriter, r *http.Request) {
	var req SetDutyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if err := h.service.SetOnDuty(r.Context(), httputil.GetUserID(r.Context()), *req.OnDuty); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, DutyResponse{OnDuty: *req.OnDuty})
}
