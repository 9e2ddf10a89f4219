package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/scale-protocol/bond/internal/ledger"
	"github.com/scale-protocol/bond/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- Addressing ---

func TestDeriveAddress_Deterministic(t *testing.T) {
	a := ledger.DeriveAddress("scale_market_account", "BTC/USD")
	b := ledger.DeriveAddress("scale_market_account", "BTC/USD")
	if a != b {
		t.Errorf("same seeds must derive the same address: %s vs %s", a, b)
	}
	if a == ledger.DeriveAddress("scale_market_account", "ETH/USD") {
		t.Error("different seeds must derive different addresses")
	}
}

func TestDeriveAddress_SeedBoundaries(t *testing.T) {
	// Concatenation must not be ambiguous across seed boundaries.
	if ledger.DeriveAddress("ab", "c") == ledger.DeriveAddress("a", "bc") {
		t.Error("seed boundaries leaked into the derivation")
	}
}

func TestPositionAddress_UniquePerOffset(t *testing.T) {
	market := ledger.MarketAddress("BTC/USD")
	a := ledger.PositionAddress("alice", market, 1)
	b := ledger.PositionAddress("alice", market, 2)
	if a == b {
		t.Error("positions under different offsets must not collide")
	}
	if a == ledger.PositionAddress("bob", market, 1) {
		t.Error("positions of different owners must not collide")
	}
}

func TestVaultAddresses(t *testing.T) {
	if ledger.VaultAddress() == ledger.VaultAuthority() {
		t.Error("vault account and its authority must differ")
	}
}

// --- Memory ledger ---

func TestMemory_NotFound(t *testing.T) {
	host := ledger.NewMemory()
	ctx := context.Background()

	if _, err := host.GetMarket(ctx, "nope"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("expected ErrNotFound for market, got %v", err)
	}
	if _, err := host.GetUserAccount(ctx, "nope"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("expected ErrNotFound for user, got %v", err)
	}
	if _, err := host.GetPosition(ctx, "nope"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("expected ErrNotFound for position, got %v", err)
	}
}

func TestMemory_CommitAndGet(t *testing.T) {
	host := ledger.NewMemory()
	ctx := context.Background()
	address := ledger.MarketAddress("BTC/USD")

	tx := ledger.NewTx()
	tx.PutMarket(address, &model.Market{Category: "BTC/USD", VaultBaseBalance: d(1000)})
	if err := host.Commit(ctx, tx); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	m, err := host.GetMarket(ctx, address)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if m.Category != "BTC/USD" || !m.VaultBaseBalance.Equal(d(1000)) {
		t.Errorf("unexpected record: %+v", m)
	}
}

func TestMemory_ReadsReturnCopies(t *testing.T) {
	host := ledger.NewMemory()
	ctx := context.Background()
	address := ledger.MarketAddress("BTC/USD")

	tx := ledger.NewTx()
	tx.PutMarket(address, &model.Market{Category: "BTC/USD", VaultBaseBalance: d(1000)})
	host.Commit(ctx, tx)

	m, _ := host.GetMarket(ctx, address)
	m.VaultBaseBalance = d(1)

	again, _ := host.GetMarket(ctx, address)
	if !again.VaultBaseBalance.Equal(d(1000)) {
		t.Errorf("mutating a read copy leaked into the store: %s", again.VaultBaseBalance)
	}
}

func TestMemory_UserSliceIsolation(t *testing.T) {
	host := ledger.NewMemory()
	ctx := context.Background()
	address := ledger.UserAddress("alice")

	u := &model.UserAccount{Authority: "alice"}
	u.OpenOffset(1)
	tx := ledger.NewTx()
	tx.PutUser(address, u)
	host.Commit(ctx, tx)

	read, _ := host.GetUserAccount(ctx, address)
	read.OpenPositionIndex[0] = 99
	read.OpenOffset(2)

	again, _ := host.GetUserAccount(ctx, address)
	if len(again.OpenPositionIndex) != 1 || again.OpenPositionIndex[0] != 1 {
		t.Errorf("slice mutation leaked into the store: %v", again.OpenPositionIndex)
	}
}

func TestMemory_CommitAppliesWholeTx(t *testing.T) {
	host := ledger.NewMemory()
	ctx := context.Background()
	marketAddr := ledger.MarketAddress("BTC/USD")
	userAddr := ledger.UserAddress("alice")
	positionAddr := ledger.PositionAddress("alice", marketAddr, 1)

	tx := ledger.NewTx()
	tx.PutMarket(marketAddr, &model.Market{Category: "BTC/USD"})
	tx.PutUser(userAddr, &model.UserAccount{Authority: "alice"})
	tx.PutPosition(positionAddr, &model.Position{Authority: "alice"})
	if err := host.Commit(ctx, tx); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if _, err := host.GetMarket(ctx, marketAddr); err != nil {
		t.Errorf("market missing after commit: %v", err)
	}
	if _, err := host.GetUserAccount(ctx, userAddr); err != nil {
		t.Errorf("user missing after commit: %v", err)
	}
	if _, err := host.GetPosition(ctx, positionAddr); err != nil {
		t.Errorf("position missing after commit: %v", err)
	}
}

func TestMemory_ArchiveMovesToHistory(t *testing.T) {
	host := ledger.NewMemory()
	ctx := context.Background()
	marketAddr := ledger.MarketAddress("BTC/USD")
	address := ledger.PositionAddress("alice", marketAddr, 1)

	tx := ledger.NewTx()
	tx.PutPosition(address, &model.Position{
		Authority:      "alice",
		PositionStatus: model.PositionNormal,
	})
	host.Commit(ctx, tx)

	closed := &model.Position{
		Authority:      "alice",
		PositionStatus: model.PositionNormalClosing,
		Profit:         d(12.5),
	}
	tx = ledger.NewTx()
	tx.ArchivePosition(address, closed)
	if err := host.Commit(ctx, tx); err != nil {
		t.Fatalf("archive commit failed: %v", err)
	}

	if _, err := host.GetPosition(ctx, address); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("archived position should leave the active namespace, got %v", err)
	}

	active, _ := host.ListPositions(ctx, "alice")
	if len(active) != 0 {
		t.Errorf("expected no active positions, got %d", len(active))
	}
	history, _ := host.ListHistoryPositions(ctx, "alice")
	if len(history) != 1 {
		t.Fatalf("expected 1 archived position, got %d", len(history))
	}
	if history[0].PositionStatus != model.PositionNormalClosing {
		t.Errorf("unexpected archived status: %v", history[0].PositionStatus)
	}
	if !history[0].Profit.Equal(d(12.5)) {
		t.Errorf("unexpected archived profit: %s", history[0].Profit)
	}
}

func TestMemory_ListPositionsByOwner(t *testing.T) {
	host := ledger.NewMemory()
	ctx := context.Background()
	marketAddr := ledger.MarketAddress("BTC/USD")

	tx := ledger.NewTx()
	tx.PutPosition(ledger.PositionAddress("alice", marketAddr, 1), &model.Position{Authority: "alice"})
	tx.PutPosition(ledger.PositionAddress("alice", marketAddr, 2), &model.Position{Authority: "alice"})
	tx.PutPosition(ledger.PositionAddress("bob", marketAddr, 1), &model.Position{Authority: "bob"})
	host.Commit(ctx, tx)

	alice, _ := host.ListPositions(ctx, "alice")
	if len(alice) != 2 {
		t.Errorf("expected 2 positions for alice, got %d", len(alice))
	}
	bob, _ := host.ListPositions(ctx, "bob")
	if len(bob) != 1 {
		t.Errorf("expected 1 position for bob, got %d", len(bob))
	}
}

func TestMemory_ListMarkets(t *testing.T) {
	host := ledger.NewMemory()
	ctx := context.Background()

	tx := ledger.NewTx()
	tx.PutMarket(ledger.MarketAddress("BTC/USD"), &model.Market{Category: "BTC/USD"})
	tx.PutMarket(ledger.MarketAddress("ETH/USD"), &model.Market{Category: "ETH/USD"})
	host.Commit(ctx, tx)

	markets, err := host.ListMarkets(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(markets) != 2 {
		t.Errorf("expected 2 markets, got %d", len(markets))
	}
}
