// Package api is a thin JSON transport over the forecasting core. It
// owns request decoding, path parameters, and error-to-status mapping,
// and nothing else.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/stackfin/backend/internal/service"
	"github.com/stackfin/backend/internal/store"
)

// Handler exposes the service over HTTP.
type Handler struct {
	svc *service.CoachService
}

// NewHandler creates the transport shim.
func NewHandler(svc *service.CoachService) *Handler {
	return &Handler{svc: svc}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /v1/users/{userID}/accounts", h.createAccount)
	mux.HandleFunc("GET /v1/users/{userID}/accounts", h.listAccounts)
	mux.HandleFunc("POST /v1/users/{userID}/transactions", h.createTransaction)
	mux.HandleFunc("GET /v1/users/{userID}/transactions", h.listTransactions)
	mux.HandleFunc("POST /v1/users/{userID}/constraints", h.createConstraint)
	mux.HandleFunc("GET /v1/users/{userID}/constraints", h.listConstraints)
	mux.HandleFunc("POST /v1/users/{userID}/recurring/detect", h.detectRecurring)
	mux.HandleFunc("GET /v1/users/{userID}/recurring", h.listRecurring)
	mux.HandleFunc("POST /v1/users/{userID}/forecast", h.computeForecast)
	mux.HandleFunc("GET /v1/users/{userID}/forecast/latest", h.latestForecast)
	mux.HandleFunc("GET /v1/users/{userID}/forecast/history", h.forecastHistory)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	a := req.toModel(r.PathValue("userID"))
	created, err := h.svc.CreateAccount(r.Context(), a)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListAccounts(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: accounts})
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	t, err := req.toModel(r.PathValue("userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.IngestTransaction(r.Context(), t)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
		since = parsed
	}
	txns, err := h.svc.ListTransactions(r.Context(), r.PathValue("userID"), since)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: txns})
}

func (h *Handler) createConstraint(w http.ResponseWriter, r *http.Request) {
	var req constraintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c, err := req.toModel(r.PathValue("userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.CreateConstraint(r.Context(), c)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listConstraints(w http.ResponseWriter, r *http.Request) {
	constraints, err := h.svc.ListConstraints(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: constraints})
}

func (h *Handler) detectRecurring(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.svc.DetectRecurring(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: patterns})
}

func (h *Handler) listRecurring(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") != "false"
	patterns, err := h.svc.ListRecurringPatterns(r.Context(), r.PathValue("userID"), activeOnly)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: patterns})
}

func (h *Handler) computeForecast(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.ComputeForecast(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) latestForecast(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.GetLatestForecast(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) forecastHistory(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	snaps, err := h.svc.ListForecastHistory(r.Context(), r.PathValue("userID"), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: snaps})
}

// writeServiceError maps domain errors to statuses. Unrecognized errors
// become a 500 with a generic body so internals never leak, but the full
// error is logged.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoAccounts):
		writeError(w, http.StatusPreconditionFailed, "add at least one account before requesting a forecast")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("[API] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type listResponse struct {
	Items any `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[API] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
