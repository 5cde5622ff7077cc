package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"

	"stock-forecast/config"
	"stock-forecast/forecast"
	"stock-forecast/internal/app"
	"stock-forecast/marketdata"
	"stock-forecast/observability"
)

// symbolPattern matches valid ticker symbols (1-10 uppercase letters, dots
// and hyphens allowed for share classes)
var symbolPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z.\-]{0,9}$`)

// Handler handles HTTP API requests
type Handler struct {
	app *app.App
	cfg *config.Config
}

// NewHandler creates a new Handler
func NewHandler(application *app.App, cfg *config.Config) *Handler {
	return &Handler{app: application, cfg: cfg}
}

// forecastRequest is the body of prediction and backtest requests
type forecastRequest struct {
	Symbol     string  `json:"symbol"`
	Days       int     `json:"days,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	TestDays   int     `json:"test_days,omitempty"`
}

func (h *Handler) decodeForecastRequest(w http.ResponseWriter, r *http.Request) (forecastRequest, bool) {
	var req forecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return req, false
	}
	if !symbolPattern.MatchString(req.Symbol) {
		h.jsonError(w, "invalid symbol", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// HandleHealth returns the health status of the application
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "ok",
		"services": map[string]string{
			"database": "unknown",
		},
	}

	if h.app.Repo() != nil {
		if err := h.app.Repo().Health(r.Context()); err == nil {
			status["services"].(map[string]string)["database"] = "connected"
		} else {
			status["services"].(map[string]string)["database"] = "disconnected"
			status["status"] = "degraded"
		}
	} else {
		status["services"].(map[string]string)["database"] = "not_configured"
	}

	cbStatus := marketdata.GetGlobalRegistry().Status()
	status["circuit_breakers"] = cbStatus
	for _, cb := range cbStatus {
		if cb.State == "open" {
			status["status"] = "degraded"
			break
		}
	}

	h.jsonResponse(w, status)
}

// HandlePredictAll runs the whole ensemble for a symbol
func (h *Handler) HandlePredictAll(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeForecastRequest(w, r)
	if !ok {
		return
	}

	results, err := h.app.PredictAll(r.Context(), req.Symbol, req.Days, req.Confidence)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}

	h.jsonResponse(w, map[string]interface{}{
		"symbol":  app.NormalizeSymbol(req.Symbol),
		"results": results,
	})
}

// HandlePredictModel runs a single model for a symbol
func (h *Handler) HandlePredictModel(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")
	req, ok := h.decodeForecastRequest(w, r)
	if !ok {
		return
	}

	result, err := h.app.PredictModel(r.Context(), model, req.Symbol, req.Days, req.Confidence)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}

	h.jsonResponse(w, result)
}

// HandleBacktestAll evaluates every model over a walk-forward window
func (h *Handler) HandleBacktestAll(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeForecastRequest(w, r)
	if !ok {
		return
	}

	results, err := h.app.BacktestAll(r.Context(), req.Symbol, req.TestDays)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}

	h.jsonResponse(w, map[string]interface{}{
		"symbol":  app.NormalizeSymbol(req.Symbol),
		"results": results,
	})
}

// HandleBacktestModel evaluates one model over a walk-forward window
func (h *Handler) HandleBacktestModel(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")
	req, ok := h.decodeForecastRequest(w, r)
	if !ok {
		return
	}

	result, err := h.app.BacktestModel(r.Context(), model, req.Symbol, req.TestDays)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}

	h.jsonResponse(w, result)
}

// HandleGetModels lists every registered forecaster
func (h *Handler) HandleGetModels(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]interface{}{
		"models": h.app.Models(),
	})
}

// HandleGetModel returns one forecaster's description
func (h *Handler) HandleGetModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	info, err := h.app.ModelInfo(name)
	if err != nil {
		var unavailable *forecast.ModelUnavailableError
		if errors.As(err, &unavailable) {
			h.jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, info)
}

// HandleGetQuote returns the latest quote for a symbol
func (h *Handler) HandleGetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if !symbolPattern.MatchString(symbol) {
		h.jsonError(w, "invalid symbol", http.StatusBadRequest)
		return
	}

	quote, err := h.app.GetQuote(r.Context(), symbol)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.jsonResponse(w, quote)
}

// HandleGetRuns returns recent forecast run history
func (h *Handler) HandleGetRuns(w http.ResponseWriter, r *http.Request) {
	limit := h.ParseLimitParam(r, 50)

	var err error
	var runs interface{}
	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		runs, err = h.app.GetRunsForSymbol(r.Context(), symbol, limit)
	} else {
		runs, err = h.app.GetForecastRuns(r.Context(), r.URL.Query().Get("model"), limit)
	}
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.jsonResponse(w, runs)
}

// ParseLimitParam parses the limit query parameter with a default
func (h *Handler) ParseLimitParam(r *http.Request, defaultLimit int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 500 {
		return defaultLimit
	}
	return limit
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		observability.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
