package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

// HTTPHandler turns requests into internal commands. Commands are handled
// synchronously, so validation failures reach the client.
type HTTPHandler struct {
	bus    port.EventBus
	view   port.AllocationView
	logger zerolog.Logger
}

type AddBatchHTTPRequest struct {
	Reference         string `json:"reference"`
	SKU               string `json:"sku"`
	PurchasedQuantity int    `json:"purchasedQuantity"`
	ETA               string `json:"eta,omitempty"`
}

type AllocateHTTPRequest struct {
	OrderID  string `json:"orderId"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type ErrorHTTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func NewHTTPHandler(internalBus port.EventBus, view port.AllocationView, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		bus:    internalBus,
		view:   view,
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// Routes registers every endpoint on a new mux.
func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/batches", h.AddBatch)
	mux.HandleFunc("POST /api/allocate", h.Allocate)
	mux.HandleFunc("GET /api/allocations/{orderId}", h.Allocations)
	mux.HandleFunc("GET /health", h.HealthCheck)
	return mux
}

func (h *HTTPHandler) AddBatch(w http.ResponseWriter, r *http.Request) {
	var req AddBatchHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reference == "" || req.SKU == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	cmd := domain.AddBatchCommand{
		Reference:         req.Reference,
		SKU:               req.SKU,
		PurchasedQuantity: req.PurchasedQuantity,
	}
	if req.ETA != "" {
		eta, err := parseETA(req.ETA)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid eta")
			return
		}
		cmd.ETA = &eta
	}

	if err := h.bus.Publish(r.Context(), cmd.Message()); err != nil {
		h.writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" || req.SKU == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	cmd := domain.AllocateCommand{OrderID: req.OrderID, SKU: req.SKU, Quantity: req.Quantity}
	if err := h.bus.Publish(r.Context(), cmd.Message()); err != nil {
		h.writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Allocations serves the read model. An order with no allocations is 404.
func (h *HTTPHandler) Allocations(w http.ResponseWriter, r *http.Request) {
	allocations, err := h.view.ForOrder(r.Context(), r.PathValue("orderId"))
	if err != nil {
		h.logger.Error().Err(err).Msg("read allocations")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(allocations) == 0 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, allocations)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		var verr *domain.ValidationError
		msg := err.Error()
		if errors.As(err, &verr) {
			msg = verr.Msg
		}
		writeError(w, http.StatusUnprocessableEntity, msg)
	case errors.Is(err, port.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, "concurrent update, retry the request")
	default:
		h.logger.Error().Err(err).Msg("command failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseETA accepts RFC 3339 timestamps and plain dates.
func parseETA(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorHTTPResponse{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
