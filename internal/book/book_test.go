package book

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

const testOddsUnit = 1_000_000

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestMirror() *Mirror {
	return NewMirror("self", big.NewInt(testOddsUnit), testLogger)
}

func wireOdds(fraction float64) *big.Int {
	return big.NewInt(int64(fraction * testOddsUnit))
}

func wireStake(n int64) *big.Int {
	return big.NewInt(n * 100)
}

func order(id, makerID string, sideIsA bool, odds float64, total, filled int64) types.MakerOrder {
	return types.MakerOrder{
		ID:           id,
		MarketID:     "m1",
		MakerID:      makerID,
		TotalStake:   wireStake(total),
		FilledStake:  wireStake(filled),
		MakerOdds:    wireOdds(odds),
		MakerSideIsA: sideIsA,
	}
}

func TestApplySnapshotAndBestTakerOdds(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	m.ApplySnapshot("m1", []types.MakerOrder{
		order("o1", "other", false, 0.60, 100, 0), // side B, 0.60
		order("o2", "other", false, 0.55, 100, 0), // side B, 0.55, worse for bettor on A
	})

	metrics := m.MetricsFor("m1", MetricsQuery{
		ChosenSide: types.SideA,
		MinForOdds: big.NewInt(0),
		MinForVig:  big.NewInt(0),
	})

	if metrics.BestTakerOdds == nil {
		t.Fatal("expected a qualifying bestTakerOdds")
	}
	want := new(big.Int).Sub(big.NewInt(testOddsUnit), wireOdds(0.60))
	if metrics.BestTakerOdds.Cmp(want) != 0 {
		t.Errorf("bestTakerOdds = %s, want %s", metrics.BestTakerOdds, want)
	}
}

func TestSelfOwnedOrdersExcluded(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	m.ApplySnapshot("m1", []types.MakerOrder{
		order("o1", "self", false, 0.90, 100, 0), // best odds, but ours
		order("o2", "other", false, 0.60, 100, 0),
	})

	metrics := m.MetricsFor("m1", MetricsQuery{
		ChosenSide: types.SideA,
		MinForOdds: big.NewInt(0),
		MinForVig:  big.NewInt(0),
	})

	want := new(big.Int).Sub(big.NewInt(testOddsUnit), wireOdds(0.60))
	if metrics.BestTakerOdds.Cmp(want) != 0 {
		t.Errorf("bestTakerOdds = %s, want %s (self-owned order should be skipped)", metrics.BestTakerOdds, want)
	}
}

func TestNoQualifyingOrderReturnsNilBest(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	m.ApplySnapshot("m1", nil)

	metrics := m.MetricsFor("m1", MetricsQuery{
		ChosenSide: types.SideA,
		MinForOdds: big.NewInt(0),
		MinForVig:  big.NewInt(0),
	})

	if metrics.BestTakerOdds != nil {
		t.Errorf("bestTakerOdds = %s, want nil for empty mirror", metrics.BestTakerOdds)
	}
}

func TestMinForOddsFiltersSmallOrders(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	m.ApplySnapshot("m1", []types.MakerOrder{
		order("o1", "other", false, 0.90, 5, 0),   // best odds, but too small
		order("o2", "other", false, 0.60, 100, 0), // qualifies
	})

	metrics := m.MetricsFor("m1", MetricsQuery{
		ChosenSide: types.SideA,
		MinForOdds: wireStake(50),
		MinForVig:  big.NewInt(0),
	})

	want := new(big.Int).Sub(big.NewInt(testOddsUnit), wireOdds(0.60))
	if metrics.BestTakerOdds.Cmp(want) != 0 {
		t.Errorf("bestTakerOdds = %s, want %s (undersized order should not qualify)", metrics.BestTakerOdds, want)
	}
}

func TestVigRequiresBothSides(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	m.ApplySnapshot("m1", []types.MakerOrder{
		order("o1", "other", false, 0.60, 100, 0), // side B only
	})

	metrics := m.MetricsFor("m1", MetricsQuery{
		ChosenSide: types.SideA,
		MinForOdds: big.NewInt(0),
		MinForVig:  big.NewInt(0),
	})
	if metrics.Vig != nil {
		t.Errorf("vig = %s, want nil with only one side qualifying", metrics.Vig)
	}

	m.ApplySnapshot("m1", []types.MakerOrder{
		order("o1", "other", false, 0.60, 100, 0), // side B -> taker A gets 0.40
		order("o2", "other", true, 0.55, 100, 0),  // side A -> taker B gets 0.45
	})

	metrics = m.MetricsFor("m1", MetricsQuery{
		ChosenSide: types.SideA,
		MinForOdds: big.NewInt(0),
		MinForVig:  big.NewInt(0),
	})
	if metrics.Vig == nil {
		t.Fatal("expected vig once both sides qualify")
	}
	// vig = takerA + takerB - oddsUnit = 0.40 + 0.45 - 1.0 = -0.15.
	wantVig := new(big.Int).Sub(wireOdds(0.40+0.45), big.NewInt(testOddsUnit))
	if metrics.Vig.Cmp(wantVig) != 0 {
		t.Errorf("vig = %s, want %s", metrics.Vig, wantVig)
	}
}

func TestLiquiditySumsAllNonSelfOrders(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	m.ApplySnapshot("m1", []types.MakerOrder{
		order("o1", "other", false, 0.50, 100, 0), // remaining 100, odds 0.5 -> capacity 100
		order("o2", "other", false, 0.50, 50, 0),  // remaining 50 -> capacity 50
		order("o3", "self", false, 0.50, 1000, 0), // excluded
	})

	metrics := m.MetricsFor("m1", MetricsQuery{
		ChosenSide: types.SideA,
		MinForOdds: big.NewInt(0),
		MinForVig:  big.NewInt(0),
	})

	wantLiquidity := big.NewInt((100 + 50) * 100) // remainingStake * (1-odds)/odds = remaining when odds=0.5
	if metrics.LiquidityA.Cmp(wantLiquidity) != 0 {
		t.Errorf("liquidityA = %s, want %s", metrics.LiquidityA, wantLiquidity)
	}
}

func TestStaleDeltaDropped(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	m.ApplyDeltas("m1", []types.BookDelta{
		{Order: order("o1", "other", false, 0.60, 100, 0), Status: types.StatusActive, UpdateTime: 5},
	})
	// Stale update (UpdateTime <= stored) must be dropped.
	m.ApplyDeltas("m1", []types.BookDelta{
		{Order: order("o1", "other", false, 0.99, 100, 0), Status: types.StatusActive, UpdateTime: 5},
	})

	metrics := m.MetricsFor("m1", MetricsQuery{
		ChosenSide: types.SideA,
		MinForOdds: big.NewInt(0),
		MinForVig:  big.NewInt(0),
	})
	want := new(big.Int).Sub(big.NewInt(testOddsUnit), wireOdds(0.60))
	if metrics.BestTakerOdds.Cmp(want) != 0 {
		t.Errorf("bestTakerOdds = %s, want %s (stale delta should not have applied)", metrics.BestTakerOdds, want)
	}
}

func TestInactiveRemovesOrder(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	m.ApplyDeltas("m1", []types.BookDelta{
		{Order: order("o1", "other", false, 0.60, 100, 0), Status: types.StatusActive, UpdateTime: 1},
	})
	m.ApplyDeltas("m1", []types.BookDelta{
		{Order: order("o1", "other", false, 0.60, 100, 0), Status: types.StatusInactive, UpdateTime: 2},
	})

	metrics := m.MetricsFor("m1", MetricsQuery{
		ChosenSide: types.SideA,
		MinForOdds: big.NewInt(0),
		MinForVig:  big.NewInt(0),
	})
	if metrics.BestTakerOdds != nil {
		t.Errorf("bestTakerOdds = %s, want nil after order goes INACTIVE", metrics.BestTakerOdds)
	}
}

func TestMalformedDeltaDropped(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	bad := order("o1", "other", false, 0.60, 100, 200) // filled > total
	m.ApplyDeltas("m1", []types.BookDelta{
		{Order: bad, Status: types.StatusActive, UpdateTime: 1},
	})

	metrics := m.MetricsFor("m1", MetricsQuery{
		ChosenSide: types.SideA,
		MinForOdds: big.NewInt(0),
		MinForVig:  big.NewInt(0),
	})
	if metrics.BestTakerOdds != nil {
		t.Error("malformed delta should have been dropped, not applied")
	}
}

func TestSnapshotThenActiveDeltasConverge(t *testing.T) {
	t.Parallel()

	orders := []types.MakerOrder{
		order("o1", "other", false, 0.60, 100, 0),
		order("o2", "other", true, 0.55, 80, 0),
	}

	snapOnly := newTestMirror()
	snapOnly.ApplySnapshot("m1", orders)

	snapThenDeltas := newTestMirror()
	snapThenDeltas.ApplySnapshot("m1", orders)
	deltas := make([]types.BookDelta, 0, len(orders))
	for i, o := range orders {
		deltas = append(deltas, types.BookDelta{Order: o, Status: types.StatusActive, UpdateTime: int64(i + 1)})
	}
	snapThenDeltas.ApplyDeltas("m1", deltas)

	q := MetricsQuery{ChosenSide: types.SideA, MinForOdds: big.NewInt(0), MinForVig: big.NewInt(0)}
	a := snapOnly.MetricsFor("m1", q)
	b := snapThenDeltas.MetricsFor("m1", q)

	if a.BestTakerOdds.Cmp(b.BestTakerOdds) != 0 {
		t.Errorf("bestTakerOdds diverged: snapshot-only=%s, snapshot+deltas=%s", a.BestTakerOdds, b.BestTakerOdds)
	}
	if a.LiquidityA.Cmp(b.LiquidityA) != 0 {
		t.Errorf("liquidityA diverged: snapshot-only=%s, snapshot+deltas=%s", a.LiquidityA, b.LiquidityA)
	}
}

func TestOrderNeverInTwoBuckets(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	m.ApplyDeltas("m1", []types.BookDelta{
		{Order: order("o1", "other", false, 0.60, 100, 0), Status: types.StatusActive, UpdateTime: 1},
	})
	// Same orderId reposted on the opposite side (replacement).
	m.ApplyDeltas("m1", []types.BookDelta{
		{Order: order("o1", "other", true, 0.60, 100, 0), Status: types.StatusActive, UpdateTime: 2},
	})

	mb := m.marketFor("m1")
	mb.mu.RLock()
	_, inB := mb.sides[types.SideB].entries["o1"]
	_, inA := mb.sides[types.SideA].entries["o1"]
	mb.mu.RUnlock()

	if inB {
		t.Error("o1 should have been removed from side B after moving to side A")
	}
	if !inA {
		t.Error("o1 should be present in side A after the replacement delta")
	}
}
