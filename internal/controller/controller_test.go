package controller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/declansx/odds-maximizer-betting-bot/internal/book"
	"github.com/declansx/odds-maximizer-betting-bot/internal/coreerr"
	"github.com/declansx/odds-maximizer-betting-bot/internal/monitor"
	"github.com/declansx/odds-maximizer-betting-bot/internal/oddsmath"
	"github.com/declansx/odds-maximizer-betting-bot/internal/position"
	"github.com/declansx/odds-maximizer-betting-bot/internal/stakemath"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSub is a no-op monitor.Subscription.
type fakeSub struct{}

func (fakeSub) Unsubscribe() {}

// fakeTransport is an in-memory monitor.Transport: snapshots come from a
// map the test mutates directly, and pushDelta drives the onDeltas callback
// synchronously, so tests don't need a real network round trip.
type fakeTransport struct {
	mu       sync.Mutex
	orders   map[string][]types.MakerOrder
	onDeltas map[string]func([]types.BookDelta)
	onResync map[string]func()
	seq      int64
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		orders:   make(map[string][]types.MakerOrder),
		onDeltas: make(map[string]func([]types.BookDelta)),
		onResync: make(map[string]func()),
	}
}

func (f *fakeTransport) FetchSnapshot(ctx context.Context, marketID string) ([]types.MakerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.MakerOrder, len(f.orders[marketID]))
	copy(out, f.orders[marketID])
	return out, nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, marketID string, onDeltas func([]types.BookDelta), onResync func()) (monitor.Subscription, error) {
	f.mu.Lock()
	f.onDeltas[marketID] = onDeltas
	f.onResync[marketID] = onResync
	f.mu.Unlock()
	return fakeSub{}, nil
}

func (f *fakeTransport) pushDelta(marketID string, o types.MakerOrder, status types.DeltaStatus) {
	f.mu.Lock()
	f.seq++
	cb := f.onDeltas[marketID]
	seq := f.seq
	f.mu.Unlock()
	if cb != nil {
		cb([]types.BookDelta{{Order: o, Status: status, UpdateTime: seq}})
	}
}

type postCall struct {
	marketID string
	sideIsA  bool
	stake    *big.Int
	odds     *big.Int
}

// fakeGateway is a controller.OrderGateway test double.
type fakeGateway struct {
	mu        sync.Mutex
	posts     []postCall
	cancelled []string
	nextID    int
	failPost  bool
}

func (g *fakeGateway) PostMakerOrder(ctx context.Context, marketID string, sideIsA bool, stakeWire, oddsWire *big.Int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failPost {
		return "", coreerr.ErrOrderRejected
	}
	g.nextID++
	id := fmt.Sprintf("ord-%d", g.nextID)
	g.posts = append(g.posts, postCall{marketID, sideIsA, new(big.Int).Set(stakeWire), new(big.Int).Set(oddsWire)})
	return id, nil
}

func (g *fakeGateway) CancelOrders(ctx context.Context, orderIDs []string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, orderIDs...)
	return len(orderIDs), nil
}

func (g *fakeGateway) lastPost() (postCall, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.posts) == 0 {
		return postCall{}, false
	}
	return g.posts[len(g.posts)-1], true
}

func (g *fakeGateway) postCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.posts)
}

const selfMakerID = "self"

func newTestController(gw *fakeGateway) (*Controller, *fakeTransport) {
	oddsUnit := big.NewInt(1_000_000)
	ladderStep := big.NewInt(1_000)
	stakeUnit := big.NewInt(100)

	mirror := book.NewMirror(selfMakerID, oddsUnit, testLogger)
	tr := newFakeTransport()
	store := position.NewStore()
	serializer := position.NewSerializer(testLogger)

	odds := oddsmath.Params{OddsUnit: oddsUnit, LadderStep: ladderStep}
	stake := stakemath.Params{StakeUnit: stakeUnit}

	cfg := Config{CompleteFraction: 0.99, MinOrderUpdateInterval: 0}
	c := &Controller{
		store:      store,
		serializer: serializer,
		gateway:    gw,
		odds:       odds,
		stake:      stake,
		cfg:        cfg,
		logger:     testLogger,
	}
	mon := monitor.New(mirror, tr, serializer, c, 60*time.Second, testLogger)
	c.monitor = mon
	return c, tr
}

func counterOrder(id string, sideIsA bool, odds, total, filled int64) types.MakerOrder {
	return types.MakerOrder{
		ID:           id,
		MarketID:     "m1",
		MakerID:      "counterparty",
		MakerSideIsA: sideIsA,
		MakerOdds:    big.NewInt(odds),
		TotalStake:   big.NewInt(total),
		FilledStake:  big.NewInt(filled),
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition never became true")
	}
}

func TestCreatePositionPostsInitialQuote(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	c, tr := newTestController(gw)

	tr.orders["m1"] = []types.MakerOrder{counterOrder("c1", false, 600_000, 10_000, 0)}

	id, err := c.CreatePosition(context.Background(), types.PositionSpec{
		MarketID:   "m1",
		ChosenSide: types.SideA,
		MaxStake:   50,
	})
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}

	waitFor(t, time.Second, func() bool { return gw.postCount() == 1 })

	p, _ := c.GetPosition(id)
	if p.ActiveOrderID == "" {
		t.Fatal("expected an active order after initial attach")
	}
	if p.Status != types.PositionActive {
		t.Errorf("expected status Active after the first successful post, got %s", p.Status)
	}
	call, _ := gw.lastPost()
	if call.sideIsA != true {
		t.Errorf("expected to post on side A, got sideIsA=%v", call.sideIsA)
	}
}

func TestMarketMoveRepostsAtNewOdds(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	c, tr := newTestController(gw)
	tr.orders["m1"] = []types.MakerOrder{counterOrder("c1", false, 600_000, 10_000, 0)}

	id, err := c.CreatePosition(context.Background(), types.PositionSpec{
		MarketID: "m1", ChosenSide: types.SideA, MaxStake: 50,
	})
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}
	waitFor(t, time.Second, func() bool { return gw.postCount() == 1 })

	// Counterparty posts a better (higher odds, so lower takerOdds for us)
	// order on side B, which should move our desired maker odds.
	tr.pushDelta("m1", counterOrder("c2", false, 700_000, 10_000, 0), types.StatusActive)

	waitFor(t, time.Second, func() bool { return gw.postCount() == 2 })

	p, _ := c.GetPosition(id)
	if len(gw.cancelled) == 0 {
		t.Error("expected the stale order to be cancelled before reposting")
	}
	if p.ActiveOrderID == "" {
		t.Error("expected a fresh active order after the repost")
	}
}

func TestVigBreachPausesAndCancels(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	c, tr := newTestController(gw)
	tr.orders["m1"] = []types.MakerOrder{
		counterOrder("a1", true, 490_000, 10_000, 0),
		counterOrder("b1", false, 490_000, 10_000, 0),
	}

	id, err := c.CreatePosition(context.Background(), types.PositionSpec{
		MarketID: "m1", ChosenSide: types.SideA, MaxStake: 50, MaxVigBps: 100,
	})
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		p, _ := c.GetPosition(id)
		return p.Status == types.PositionRiskPaused
	})

	p, _ := c.GetPosition(id)
	if p.ActiveOrderID != "" {
		t.Error("risk-paused position must have no active order")
	}
}

func TestPartialFillReducesRemainingStake(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	c, tr := newTestController(gw)
	tr.orders["m1"] = []types.MakerOrder{counterOrder("c1", false, 600_000, 10_000, 0)}

	id, err := c.CreatePosition(context.Background(), types.PositionSpec{
		MarketID: "m1", ChosenSide: types.SideA, MaxStake: 50,
	})
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}
	waitFor(t, time.Second, func() bool { return gw.postCount() == 1 })

	p, _ := c.GetPosition(id)
	orderID := p.ActiveOrderID

	c.HandleFill(context.Background(), id, orderID, big.NewInt(1000))

	waitFor(t, time.Second, func() bool {
		p, _ := c.GetPosition(id)
		return p.FilledStake.Cmp(big.NewInt(1000)) == 0
	})

	p, _ = c.GetPosition(id)
	if p.Status.Terminal() {
		t.Error("a small partial fill should not complete the position")
	}
}

func TestFillPastCompleteFractionCompletesPosition(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	c, tr := newTestController(gw)
	tr.orders["m1"] = []types.MakerOrder{counterOrder("c1", false, 600_000, 10_000, 0)}

	id, err := c.CreatePosition(context.Background(), types.PositionSpec{
		MarketID: "m1", ChosenSide: types.SideA, MaxStake: 50,
	})
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}
	waitFor(t, time.Second, func() bool { return gw.postCount() == 1 })

	p, _ := c.GetPosition(id)
	// MaxStake is 50 nominal * stakeUnit(100) = 5000 wire.
	c.HandleFill(context.Background(), id, p.ActiveOrderID, big.NewInt(4999))

	waitFor(t, time.Second, func() bool {
		p, _ := c.GetPosition(id)
		return p.Status == types.PositionCompleted
	})
}

func TestClosePositionCancelsAndRemoves(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	c, tr := newTestController(gw)
	tr.orders["m1"] = []types.MakerOrder{counterOrder("c1", false, 600_000, 10_000, 0)}

	id, err := c.CreatePosition(context.Background(), types.PositionSpec{
		MarketID: "m1", ChosenSide: types.SideA, MaxStake: 50,
	})
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}
	waitFor(t, time.Second, func() bool { return gw.postCount() == 1 })

	if err := c.ClosePosition(context.Background(), id); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}

	if _, ok := c.GetPosition(id); ok {
		t.Error("closed position should be removed from the store")
	}
	if len(gw.cancelled) == 0 {
		t.Error("expected the active order to be cancelled on close")
	}
}

func TestLateFillAfterCancelStillCredits(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	c, tr := newTestController(gw)
	tr.orders["m1"] = []types.MakerOrder{counterOrder("c1", false, 600_000, 10_000, 0)}

	id, err := c.CreatePosition(context.Background(), types.PositionSpec{
		MarketID: "m1", ChosenSide: types.SideA, MaxStake: 50,
	})
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}
	waitFor(t, time.Second, func() bool { return gw.postCount() == 1 })

	p, _ := c.GetPosition(id)
	orderID := p.ActiveOrderID

	// Market moves, cancelling the order and reposting a new one.
	tr.pushDelta("m1", counterOrder("c2", false, 700_000, 10_000, 0), types.StatusActive)
	waitFor(t, time.Second, func() bool { return gw.postCount() == 2 })

	// A fill for the now-cancelled order arrives late.
	tr.pushDelta("m1", types.MakerOrder{
		ID: orderID, MarketID: "m1", MakerID: selfMakerID,
		MakerSideIsA: true, MakerOdds: big.NewInt(400_000),
		TotalStake: big.NewInt(5000), FilledStake: big.NewInt(500),
	}, types.StatusActive)

	waitFor(t, time.Second, func() bool {
		p, _ := c.GetPosition(id)
		return p.FilledStake.Cmp(big.NewInt(500)) == 0
	})
}
