package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/scale-protocol/bond/internal/engine"
	"github.com/scale-protocol/bond/internal/ledger"
	"github.com/scale-protocol/bond/internal/metrics"
	"github.com/scale-protocol/bond/internal/model"
	"github.com/scale-protocol/bond/internal/oracle"
	"github.com/scale-protocol/bond/internal/token"
)

// Service adapts the instruction handlers and ledger queries to HTTP.
// Signature verification belongs to the host; callers here are trusted
// identities, which is acceptable for a development node.
type Service struct {
	engine *engine.Engine
	ledger ledger.Ledger
	feed   oracle.Feed
	hub    *Hub // optional, for the /ws price stream
}

// NewService creates the HTTP service. Pass nil for hub when the price
// stream is not needed.
func NewService(e *engine.Engine, l ledger.Ledger, f oracle.Feed, hub *Hub) *Service {
	return &Service{engine: e, ledger: l, feed: f, hub: hub}
}

// Routes mounts all endpoints on a chi router.
func (s *Service) Routes(r chi.Router) {
	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
	r.Post("/vault", s.InitializeVault)
	r.Post("/markets", s.InitializeMarket)
	r.Get("/markets", s.ListMarkets)
	r.Get("/markets/{category}", s.GetMarket)
	r.Get("/markets/{category}/price", s.GetPrice)
	r.Post("/users", s.InitializeUserAccount)
	r.Post("/deposit", s.Deposit)
	r.Post("/investment", s.Investment)
	r.Post("/divestment", s.Divestment)
	r.Post("/positions/open", s.OpenPosition)
	r.Post("/positions/close", s.ClosePosition)
	r.Get("/users/{owner}", s.GetUserAccount)
	r.Get("/users/{owner}/positions", s.ListPositions)
}

// --- Request/Response types ---

// VaultRequest is the JSON body for POST /vault.
type VaultRequest struct {
	Initializer string `json:"initializer"`
}

// MarketRequest is the JSON body for POST /markets.
type MarketRequest struct {
	Initializer           string          `json:"initializer"`
	Category              string          `json:"category"`
	Spread                decimal.Decimal `json:"spread"`
	OracleAccount         string          `json:"oracle_account"`
	FallbackOracleAccount string          `json:"fallback_oracle_account"`
}

// UserRequest is the JSON body for POST /users.
type UserRequest struct {
	Owner string `json:"owner"`
}

// FundsRequest is the JSON body for deposit/investment/divestment.
type FundsRequest struct {
	Owner    string `json:"owner"`
	Category string `json:"category"`
	Amount   uint64 `json:"amount"`
}

// OpenPositionRequest is the JSON body for POST /positions/open.
// PositionType and Direction use the on-chain codes: 1 full / 2
// independent, 1 buy / 2 sell.
type OpenPositionRequest struct {
	Owner        string          `json:"owner"`
	Category     string          `json:"category"`
	Size         decimal.Decimal `json:"size"`
	Leverage     uint16          `json:"leverage"`
	PositionType uint8           `json:"position_type"`
	Direction    uint8           `json:"direction"`
}

// ClosePositionRequest is the JSON body for POST /positions/close.
type ClosePositionRequest struct {
	Operator string `json:"operator"`
	Address  string `json:"address"`
}

// Receipt acknowledges a committed instruction.
type Receipt struct {
	TxID    string `json:"tx_id"`
	Address string `json:"address,omitempty"`
}

// --- Instruction handlers ---

func (s *Service) InitializeVault(w http.ResponseWriter, r *http.Request) {
	var req VaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	done := observe("initialize_vault")
	authority, err := s.engine.InitializeVault(r.Context(), req.Initializer)
	done(err)
	if err != nil {
		writeInstructionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Receipt{TxID: uuid.New().String(), Address: authority})
}

func (s *Service) InitializeMarket(w http.ResponseWriter, r *http.Request) {
	var req MarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	done := observe("initialize_market")
	address, err := s.engine.InitializeMarket(r.Context(),
		req.Initializer, req.Category, req.Spread,
		req.OracleAccount, req.FallbackOracleAccount)
	done(err)
	if err != nil {
		writeInstructionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Receipt{TxID: uuid.New().String(), Address: address})
}

func (s *Service) InitializeUserAccount(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	done := observe("initialize_user_account")
	address, err := s.engine.InitializeUserAccount(r.Context(), req.Owner)
	done(err)
	if err != nil {
		writeInstructionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Receipt{TxID: uuid.New().String(), Address: address})
}

func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	s.fundsInstruction(w, r, "deposit", s.engine.Deposit)
}

func (s *Service) Investment(w http.ResponseWriter, r *http.Request) {
	s.fundsInstruction(w, r, "investment", s.engine.Investment)
}

func (s *Service) Divestment(w http.ResponseWriter, r *http.Request) {
	s.fundsInstruction(w, r, "divestment", s.engine.Divestment)
}

func (s *Service) fundsInstruction(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	run func(ctx context.Context, owner, category string, amount uint64) error,
) {
	var req FundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	done := observe(name)
	err := run(r.Context(), req.Owner, req.Category, req.Amount)
	done(err)
	if err != nil {
		writeInstructionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Receipt{TxID: uuid.New().String()})
}

func (s *Service) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req OpenPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	done := observe("open_position")
	address, err := s.engine.OpenPosition(r.Context(),
		req.Owner, req.Category, req.Size, req.Leverage,
		model.PositionType(req.PositionType), model.Direction(req.Direction))
	done(err)
	if err != nil {
		if gate := riskGate(err); gate != "" {
			metrics.RiskRejections.WithLabelValues(gate).Inc()
		}
		writeInstructionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Receipt{TxID: uuid.New().String(), Address: address})
}

func (s *Service) ClosePosition(w http.ResponseWriter, r *http.Request) {
	var req ClosePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	done := observe("close_position")
	err := s.engine.ClosePosition(r.Context(), req.Operator, req.Address)
	done(err)
	if err != nil {
		writeInstructionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Receipt{TxID: uuid.New().String()})
}

// --- Query handlers ---

func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.ledger.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}
	writeJSON(w, http.StatusOK, markets)
}

func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	category := categoryParam(r)
	m, err := s.ledger.GetMarket(r.Context(), ledger.MarketAddress(category))
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	category := categoryParam(r)
	m, err := s.ledger.GetMarket(r.Context(), ledger.MarketAddress(category))
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	price, err := oracle.GetPrice(r.Context(), s.feed, m.OracleAccount, m.Spread)
	if err != nil {
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, price)
}

func (s *Service) GetUserAccount(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	u, err := s.ledger.GetUserAccount(r.Context(), ledger.UserAddress(owner))
	if err != nil {
		writeError(w, "user account not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	var (
		positions []model.Position
		err       error
	)
	if r.URL.Query().Get("status") == "history" {
		positions, err = s.ledger.ListHistoryPositions(r.Context(), owner)
	} else {
		positions, err = s.ledger.ListPositions(r.Context(), owner)
	}
	if err != nil {
		writeError(w, "failed to list positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// --- Helpers ---

// categoryParam decodes the category path segment ("BTC%2FUSD" → "BTC/USD").
func categoryParam(r *http.Request) string {
	raw := chi.URLParam(r, "category")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

// observe starts an instruction metric observation; the returned func
// records latency and the result label.
func observe(instruction string) func(err error) {
	start := time.Now()
	return func(err error) {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.InstructionsTotal.WithLabelValues(instruction, result).Inc()
		metrics.InstructionLatency.WithLabelValues(instruction).Observe(time.Since(start).Seconds())
	}
}

// riskGate maps a risk-control error to its metric label.
func riskGate(err error) string {
	switch {
	case errors.Is(err, engine.ErrRiskControlBlockingExposure):
		return "exposure"
	case errors.Is(err, engine.ErrInsufficientMargin):
		return "margin_ratio"
	case errors.Is(err, engine.ErrRiskControlBlockingFundSize):
		return "fund_size"
	case errors.Is(err, engine.ErrRiskControlBlockingFundPool):
		return "fund_pool"
	default:
		return ""
	}
}

// writeInstructionError maps an instruction failure to an HTTP status.
func writeInstructionError(w http.ResponseWriter, err error) {
	writeError(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrCategoryTooLong),
		errors.Is(err, engine.ErrInvalidParameterOfPosition),
		errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, token.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNoPermission),
		errors.Is(err, engine.ErrUserMismatch):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, oracle.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrMarketPauses),
		errors.Is(err, engine.ErrMarketFrozen),
		errors.Is(err, engine.ErrPositionStatusInvalid),
		errors.Is(err, engine.ErrAlreadyInitialized),
		errors.Is(err, engine.ErrIllegalMarketAccount),
		errors.Is(err, engine.ErrInvalidOracleAccount),
		errors.Is(err, engine.ErrMarketNotSupportOpenPosition),
		errors.Is(err, engine.ErrRiskControlBlockingExposure),
		errors.Is(err, engine.ErrInsufficientMargin),
		errors.Is(err, engine.ErrRiskControlBlockingFundSize),
		errors.Is(err, engine.ErrRiskControlBlockingFundPool),
		errors.Is(err, engine.ErrInsufficientBalanceForUser),
		errors.Is(err, engine.ErrInsufficientVaultBalance),
		errors.Is(err, model.ErrFullPositionExceededLimit),
		errors.Is(err, token.ErrInsufficientFunds):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response failed", "err", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
