package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"trade-signal-engine-go/internal/engine"
	"trade-signal-engine-go/internal/models"
	"trade-signal-engine-go/internal/notify"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log    *zap.Logger
	engine *engine.Engine
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, eng *engine.Engine) *APIHandler {
	return &APIHandler{log: log, engine: eng}
}

// delivery is the wire form of a best-effort notification outcome. A failed
// delivery is a warning on an otherwise successful response, never an error.
type delivery struct {
	Attempted bool   `json:"attempted"`
	Delivered bool   `json:"delivered"`
	Warning   string `json:"warning,omitempty"`
}

func toDelivery(result notify.DeliveryResult) delivery {
	d := delivery{Attempted: result.Attempted, Delivered: result.Delivered}
	if result.Err != nil {
		d.Warning = "delivery failed: " + result.Err.Error()
	}
	return d
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to write response", zap.Error(err))
	}
}

// writeError maps domain errors onto HTTP statuses with an actionable message.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadyTerminal):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrLadderOverflow),
		errors.Is(err, engine.ErrInvalidPriceForDirection),
		errors.Is(err, engine.ErrImmutableField),
		errors.Is(err, engine.ErrBreakevenNotArmed),
		errors.Is(err, engine.ErrSignalNotActive),
		errors.Is(err, engine.ErrNotUpcoming),
		errors.Is(err, engine.ErrRiskTierNotAllowed):
		status = http.StatusUnprocessableEntity
	default:
		h.log.Error("Request failed", zap.Error(err))
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathID(r *http.Request, key string) (uint, error) {
	raw := mux.Vars(r)[key]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid id in path: " + raw)
	}
	return uint(id), nil
}

// CreateSignal creates a draft or directly published signal.
func (h *APIHandler) CreateSignal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pair       string               `json:"pair"`
		Category   string               `json:"category"`
		Direction  models.Direction     `json:"direction"`
		EntryPrice float64              `json:"entry_price"`
		StopLoss   float64              `json:"stop_loss"`
		TakeProfit float64              `json:"take_profit"`
		MarketMode models.MarketMode    `json:"market_mode"`
		Stage      models.UpcomingStage `json:"stage"`
		Publish    bool                 `json:"publish"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sig, result, err := h.engine.CreateSignal(engine.CreateSignalInput{
		Pair:       body.Pair,
		Category:   body.Category,
		Direction:  body.Direction,
		EntryPrice: body.EntryPrice,
		StopLoss:   body.StopLoss,
		TakeProfit: body.TakeProfit,
		MarketMode: body.MarketMode,
		Stage:      body.Stage,
		Publish:    body.Publish,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"signal": sig, "notification": toDelivery(result)})
}

// ListSignals returns signals, optionally filtered by status/pair.
func (h *APIHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	filter := engine.SignalFilter{
		Status: models.Status(r.URL.Query().Get("status")),
		Pair:   r.URL.Query().Get("pair"),
	}
	signals, err := h.engine.ListSignals(filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, signals)
}

// GetSignal returns one signal by id.
func (h *APIHandler) GetSignal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sig, err := h.engine.GetSignal(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sig)
}

// PublishSignal freezes an upcoming signal's prices and activates it.
func (h *APIHandler) PublishSignal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sig, result, err := h.engine.PublishSignal(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"signal": sig, "notification": toDelivery(result)})
}

// EditSignal patches a signal within its immutability rules.
func (h *APIHandler) EditSignal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var body struct {
		Pair           *string               `json:"pair"`
		Category       *string               `json:"category"`
		EntryPrice     *float64              `json:"entry_price"`
		StopLoss       *float64              `json:"stop_loss"`
		TakeProfit     *float64              `json:"take_profit"`
		Stage          *models.UpcomingStage `json:"stage"`
		NotifyOnUpdate *bool                 `json:"notify_on_update"`
		NotifyOnClose  *bool                 `json:"notify_on_close"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	sig, err := h.engine.EditSignal(id, engine.EditSignalInput{
		Pair:           body.Pair,
		Category:       body.Category,
		EntryPrice:     body.EntryPrice,
		StopLoss:       body.StopLoss,
		TakeProfit:     body.TakeProfit,
		Stage:          body.Stage,
		NotifyOnUpdate: body.NotifyOnUpdate,
		NotifyOnClose:  body.NotifyOnClose,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sig)
}

// DeleteSignal removes an upcoming signal.
func (h *APIHandler) DeleteSignal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.engine.DeleteUpcomingSignal(id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ArmBreakeven moves the stop loss to entry.
func (h *APIHandler) ArmBreakeven(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sig, result, err := h.engine.ArmBreakeven(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"signal": sig, "notification": toDelivery(result)})
}

// CloseSignal settles a signal at the requested terminal status.
func (h *APIHandler) CloseSignal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var body struct {
		Status models.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	result, err := h.engine.RequestClose(id, body.Status, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"signal":       result.Signal,
		"applied":      result.Applied,
		"rr":           result.RR,
		"notification": toDelivery(result.Notification),
	})
}

// AddRung posts a partial take-profit update on a signal.
func (h *APIHandler) AddRung(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var body struct {
		TPLabel      string  `json:"tp_label"`
		TPPrice      float64 `json:"tp_price"`
		ClosePercent float64 `json:"close_percent"`
		Note         string  `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	rung, result, err := h.engine.AddRung(id, engine.AddRungInput{
		TPLabel:      body.TPLabel,
		TPPrice:      body.TPPrice,
		ClosePercent: body.ClosePercent,
		Note:         body.Note,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"update": rung, "notification": toDelivery(result)})
}

// ListRungs returns a signal's ladder in insertion order.
func (h *APIHandler) ListRungs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	rungs, err := h.engine.ListRungs(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rungs)
}

// EditRung patches a rung within its immutability rules.
func (h *APIHandler) EditRung(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var body struct {
		TPLabel      *string  `json:"tp_label"`
		TPPrice      *float64 `json:"tp_price"`
		ClosePercent *float64 `json:"close_percent"`
		Note         *string  `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	rung, result, err := h.engine.EditRung(id, engine.EditRungInput{
		TPLabel:      body.TPLabel,
		TPPrice:      body.TPPrice,
		ClosePercent: body.ClosePercent,
		Note:         body.Note,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"update": rung, "notification": toDelivery(result)})
}

// DeleteRung removes a rung that has not settled any trade.
func (h *APIHandler) DeleteRung(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	result, err := h.engine.DeleteRung(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"notification": toDelivery(result)})
}

// OpenTrade derives a subscriber's exposure to a signal.
func (h *APIHandler) OpenTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var body struct {
		UserID      uint    `json:"user_id"`
		Balance     float64 `json:"balance"`
		RiskPercent float64 `json:"risk_percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	trade, err := h.engine.OpenTrade(id, body.UserID, body.Balance, body.RiskPercent)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, trade)
}

// GetUserTrade returns one subscriber's trade on a signal.
func (h *APIHandler) GetUserTrade(w http.ResponseWriter, r *http.Request) {
	signalID, err := pathID(r, "id")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	trade, err := h.engine.GetUserTrade(signalID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, trade)
}

// ListUserTrades returns trades matching the query filters.
func (h *APIHandler) ListUserTrades(w http.ResponseWriter, r *http.Request) {
	filter := engine.TradeFilter{
		Result: models.TradeResult(r.URL.Query().Get("result")),
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
			return
		}
		filter.UserID = uint(id)
	}
	if raw := r.URL.Query().Get("signal_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signal_id"})
			return
		}
		filter.SignalID = uint(id)
	}

	trades, err := h.engine.ListUserTrades(filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, trades)
}

// EquityCurve replays closed signals into a balance curve.
func (h *APIHandler) EquityCurve(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	startingBalance, err := strconv.ParseFloat(query.Get("starting_balance"), 64)
	if err != nil || startingBalance <= 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "starting_balance must be a positive number"})
		return
	}
	riskPercent, err := strconv.ParseFloat(query.Get("risk_percent"), 64)
	if err != nil || riskPercent <= 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "risk_percent must be a positive number"})
		return
	}

	var from, to time.Time
	if raw := query.Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must be RFC3339"})
			return
		}
	}
	if raw := query.Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to must be RFC3339"})
			return
		}
	}

	points, stats, err := h.engine.EquityCurve(startingBalance, riskPercent, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"points": points, "stats": stats})
}
