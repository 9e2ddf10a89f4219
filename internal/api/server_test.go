package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/scale-protocol/bond/internal/api"
	"github.com/scale-protocol/bond/internal/engine"
	"github.com/scale-protocol/bond/internal/ledger"
	"github.com/scale-protocol/bond/internal/model"
	"github.com/scale-protocol/bond/internal/oracle"
	"github.com/scale-protocol/bond/internal/token"
)

const (
	teamAuthority = "team-authority"
	clearingRobot = "clearing-robot"
	trader        = "trader-wallet"
	provider      = "liquidity-provider"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type env struct {
	eng    *engine.Engine
	host   *ledger.Memory
	keeper *token.Memory
	feed   *oracle.MemoryFeed
	router chi.Router
}

// newTestEnv creates a Service wired to in-memory backends and a chi
// router with all routes mounted.
func newTestEnv(t *testing.T) *env {
	t.Helper()
	host := ledger.NewMemory()
	keeper := token.NewMemory()
	feed := oracle.NewMemoryFeed()
	eng := engine.New(host, keeper, feed, engine.Config{
		TeamAuthority: teamAuthority,
		ClearingRobot: clearingRobot,
	})
	svc := api.NewService(eng, host, feed, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		svc.Routes(r)
	})
	return &env{eng: eng, host: host, keeper: keeper, feed: feed, router: r}
}

func (e *env) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// seedTradingMarket creates a funded BTC/USD market with a ready trader.
func (e *env) seedTradingMarket(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	e.feed.Set("oracle-btc", d(100))
	if _, err := e.eng.InitializeMarket(ctx, teamAuthority, "BTC/USD", decimal.Zero, "oracle-btc", ""); err != nil {
		t.Fatalf("failed to seed market: %v", err)
	}
	e.keeper.Mint(provider, d(100000))
	if err := e.eng.Investment(ctx, provider, "BTC/USD", 100000); err != nil {
		t.Fatalf("failed to seed liquidity: %v", err)
	}
	if _, err := e.eng.InitializeUserAccount(ctx, trader); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	e.keeper.Mint(trader, d(10000))
	if err := e.eng.Deposit(ctx, trader, "BTC/USD", 10000); err != nil {
		t.Fatalf("failed to seed deposit: %v", err)
	}
}

// --- Instruction endpoints ---

func TestInitializeVaultEndpoint(t *testing.T) {
	e := newTestEnv(t)

	w := e.post(t, "/api/v1/vault", api.VaultRequest{Initializer: teamAuthority})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var receipt api.Receipt
	json.Unmarshal(w.Body.Bytes(), &receipt)
	if receipt.TxID == "" || receipt.Address == "" {
		t.Errorf("expected tx id and authority address, got %+v", receipt)
	}
}

func TestInitializeMarketEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.feed.Set("oracle-btc", d(100))

	w := e.post(t, "/api/v1/markets", api.MarketRequest{
		Initializer:   teamAuthority,
		Category:      "BTC/USD",
		Spread:        d(0.01),
		OracleAccount: "oracle-btc",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// The same category twice conflicts.
	w = e.post(t, "/api/v1/markets", api.MarketRequest{
		Initializer:   teamAuthority,
		Category:      "BTC/USD",
		Spread:        d(0.01),
		OracleAccount: "oracle-btc",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate market, got %d", w.Code)
	}
}

func TestInitializeMarketEndpoint_BadCategory(t *testing.T) {
	e := newTestEnv(t)

	w := e.post(t, "/api/v1/markets", api.MarketRequest{
		Initializer:   teamAuthority,
		Category:      "",
		OracleAccount: "oracle-btc",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty category, got %d", w.Code)
	}
}

func TestDepositEndpoint_UnknownMarket(t *testing.T) {
	e := newTestEnv(t)

	w := e.post(t, "/api/v1/deposit", api.FundsRequest{
		Owner: trader, Category: "BTC/USD", Amount: 100,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for unknown market, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOpenAndClosePositionEndpoints(t *testing.T) {
	e := newTestEnv(t)
	e.seedTradingMarket(t)

	w := e.post(t, "/api/v1/positions/open", api.OpenPositionRequest{
		Owner:        trader,
		Category:     "BTC/USD",
		Size:         d(1),
		Leverage:     10,
		PositionType: 2, // independent
		Direction:    1, // buy
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var receipt api.Receipt
	json.Unmarshal(w.Body.Bytes(), &receipt)
	if receipt.Address == "" {
		t.Fatal("expected position address in receipt")
	}

	w = e.get(t, "/api/v1/users/"+trader+"/positions")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var active []model.Position
	json.Unmarshal(w.Body.Bytes(), &active)
	if len(active) != 1 {
		t.Fatalf("expected 1 active position, got %d", len(active))
	}
	if !active[0].Margin.Equal(d(10)) {
		t.Errorf("expected margin 10, got %s", active[0].Margin)
	}

	w = e.post(t, "/api/v1/positions/close", api.ClosePositionRequest{
		Operator: trader,
		Address:  receipt.Address,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on close, got %d: %s", w.Code, w.Body.String())
	}

	w = e.get(t, "/api/v1/users/"+trader+"/positions")
	json.Unmarshal(w.Body.Bytes(), &active)
	if len(active) != 0 {
		t.Errorf("expected no active positions after close, got %d", len(active))
	}

	w = e.get(t, "/api/v1/users/"+trader+"/positions?status=history")
	var history []model.Position
	json.Unmarshal(w.Body.Bytes(), &history)
	if len(history) != 1 {
		t.Fatalf("expected 1 archived position, got %d", len(history))
	}
	if history[0].PositionStatus != model.PositionNormalClosing {
		t.Errorf("unexpected archived status: %v", history[0].PositionStatus)
	}
}

func TestOpenPositionEndpoint_BadParameters(t *testing.T) {
	e := newTestEnv(t)
	e.seedTradingMarket(t)

	w := e.post(t, "/api/v1/positions/open", api.OpenPositionRequest{
		Owner:        trader,
		Category:     "BTC/USD",
		Size:         decimal.Zero,
		Leverage:     10,
		PositionType: 2,
		Direction:    1,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero size, got %d: %s", w.Code, w.Body.String())
	}
}

func TestClosePositionEndpoint_NoPermission(t *testing.T) {
	e := newTestEnv(t)
	e.seedTradingMarket(t)

	w := e.post(t, "/api/v1/positions/open", api.OpenPositionRequest{
		Owner: trader, Category: "BTC/USD", Size: d(1),
		Leverage: 10, PositionType: 2, Direction: 1,
	})
	var receipt api.Receipt
	json.Unmarshal(w.Body.Bytes(), &receipt)

	w = e.post(t, "/api/v1/positions/close", api.ClosePositionRequest{
		Operator: "stranger",
		Address:  receipt.Address,
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Query endpoints ---

func TestListMarketsEndpoint_Empty(t *testing.T) {
	e := newTestEnv(t)

	w := e.get(t, "/api/v1/markets")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var markets []model.Market
	json.Unmarshal(w.Body.Bytes(), &markets)
	if markets == nil || len(markets) != 0 {
		t.Errorf("expected empty array, got %v", markets)
	}
}

func TestGetMarketEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.seedTradingMarket(t)

	// The slash in the category arrives path-escaped.
	w := e.get(t, "/api/v1/markets/BTC%2FUSD")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var m model.Market
	json.Unmarshal(w.Body.Bytes(), &m)
	if m.Category != "BTC/USD" {
		t.Errorf("unexpected category %q", m.Category)
	}

	w = e.get(t, "/api/v1/markets/DOGE%2FUSD")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown market, got %d", w.Code)
	}
}

func TestGetPriceEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.seedTradingMarket(t)

	w := e.get(t, "/api/v1/markets/BTC%2FUSD/price")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var price model.Price
	json.Unmarshal(w.Body.Bytes(), &price)
	if !price.Real.Equal(d(100)) {
		t.Errorf("expected real 100, got %s", price.Real)
	}

	e.feed.Unset("oracle-btc")
	w = e.get(t, "/api/v1/markets/BTC%2FUSD/price")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a quote, got %d", w.Code)
	}
}

func TestGetUserAccountEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.seedTradingMarket(t)

	w := e.get(t, "/api/v1/users/" + trader)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var u model.UserAccount
	json.Unmarshal(w.Body.Bytes(), &u)
	if u.Authority != trader || !u.Balance.Equal(d(10000)) {
		t.Errorf("unexpected user record: %+v", u)
	}

	w = e.get(t, "/api/v1/users/nobody")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown user, got %d", w.Code)
	}
}

func TestInvestmentEndpoints(t *testing.T) {
	e := newTestEnv(t)
	e.feed.Set("oracle-btc", d(100))
	e.post(t, "/api/v1/markets", api.MarketRequest{
		Initializer:   teamAuthority,
		Category:      "BTC/USD",
		OracleAccount: "oracle-btc",
	})
	e.keeper.Mint(provider, d(1000))

	w := e.post(t, "/api/v1/investment", api.FundsRequest{
		Owner: provider, Category: "BTC/USD", Amount: 1000,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Withdrawing more than the issued units conflicts.
	w = e.post(t, "/api/v1/divestment", api.FundsRequest{
		Owner: provider, Category: "BTC/USD", Amount: 1001,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}

	w = e.post(t, "/api/v1/divestment", api.FundsRequest{
		Owner: provider, Category: "BTC/USD", Amount: 400,
	})
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestInvalidJSONBody(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/v1/markets", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}
}
