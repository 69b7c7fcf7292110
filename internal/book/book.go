// Package book implements the Order Book Mirror: a per-market, in-memory
// projection of live maker orders fed by a snapshot plus an incremental
// delta stream, with derived metrics (best taker odds, vigorish, per-side
// liquidity) recomputed on every delta.
//
// Each market's two outcome sides are kept in a google/btree index ordered
// by makerOdds descending, so the best-qualifying-order queries that back
// bestTakerOdds/vig run in O(log N) instead of a full bucket scan; a
// parallel map gives O(1) lookup for delta application and removal.
package book

import (
	"log/slog"
	"math/big"
	"sync"

	"github.com/google/btree"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/declansx/odds-maximizer-betting-bot/internal/stakemath"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// DroppedDeltas counts malformed deltas dropped per market and reason.
// Malformed deltas are dropped with a warning and this counter; they must
// never crash or corrupt the mirror.
var DroppedDeltas = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "book_dropped_deltas_total",
		Help: "Order book deltas dropped for being malformed, by market and reason.",
	},
	[]string{"market_id", "reason"},
)

func init() {
	prometheus.MustRegister(DroppedDeltas)
}

// bookItem is the btree element: ordered by makerOdds descending (best
// first), orderID as a deterministic tiebreaker.
type bookItem struct {
	orderID   string
	makerOdds *big.Int
}

func (a bookItem) Less(b bookItem) bool {
	c := a.makerOdds.Cmp(b.makerOdds)
	if c != 0 {
		return c > 0 // larger makerOdds sorts first
	}
	return a.orderID < b.orderID
}

type entry struct {
	order      types.MakerOrder
	updateTime int64
}

// sideBucket holds every live maker order betting one outcome of one market.
type sideBucket struct {
	index   *btree.BTreeG[bookItem]
	entries map[string]*entry
}

func newSideBucket() *sideBucket {
	return &sideBucket{
		index:   btree.NewG(32, bookItem.Less),
		entries: make(map[string]*entry),
	}
}

func (b *sideBucket) upsert(e entry) {
	if old, ok := b.entries[e.order.ID]; ok {
		b.index.Delete(bookItem{orderID: old.order.ID, makerOdds: old.order.MakerOdds})
	}
	b.entries[e.order.ID] = &e
	b.index.ReplaceOrInsert(bookItem{orderID: e.order.ID, makerOdds: e.order.MakerOdds})
}

func (b *sideBucket) remove(orderID string) {
	old, ok := b.entries[orderID]
	if !ok {
		return
	}
	b.index.Delete(bookItem{orderID: orderID, makerOdds: old.order.MakerOdds})
	delete(b.entries, orderID)
}

// marketBook is the two-sided mirror for a single market.
type marketBook struct {
	mu       sync.RWMutex
	sides    map[types.Side]*sideBucket
}

func newMarketBook() *marketBook {
	return &marketBook{
		sides: map[types.Side]*sideBucket{
			types.SideA: newSideBucket(),
			types.SideB: newSideBucket(),
		},
	}
}

// MetricsQuery is the position-scoped context needed to compute Metrics
// from a market's mirror.
type MetricsQuery struct {
	ChosenSide types.Side
	MinForOdds *big.Int
	MinForVig  *big.Int
}

// Mirror owns the per-market order book mirrors. One writer (the owning
// Market Monitor) per market; readers (Position Controllers, via
// MetricsFor) see a consistent view behind the per-market RWMutex.
type Mirror struct {
	selfMakerID string
	oddsUnit    *big.Int
	logger      *slog.Logger

	mu      sync.RWMutex
	markets map[string]*marketBook
}

// NewMirror creates an Order Book Mirror. selfMakerID is excluded from every
// derived metric: orders whose makerId equals our own never count toward
// best taker odds, vig, or liquidity.
func NewMirror(selfMakerID string, oddsUnit *big.Int, logger *slog.Logger) *Mirror {
	return &Mirror{
		selfMakerID: selfMakerID,
		oddsUnit:    oddsUnit,
		logger:      logger.With("component", "book"),
		markets:     make(map[string]*marketBook),
	}
}

func (m *Mirror) marketFor(marketID string) *marketBook {
	m.mu.Lock()
	defer m.mu.Unlock()
	mb, ok := m.markets[marketID]
	if !ok {
		mb = newMarketBook()
		m.markets[marketID] = mb
	}
	return mb
}

// ApplySnapshot replaces all current entries for a market atomically.
func (m *Mirror) ApplySnapshot(marketID string, orders []types.MakerOrder) {
	mb := m.marketFor(marketID)

	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.sides[types.SideA] = newSideBucket()
	mb.sides[types.SideB] = newSideBucket()

	for _, o := range orders {
		if !m.validOrder(o) {
			DroppedDeltas.WithLabelValues(marketID, "malformed_snapshot_entry").Inc()
			continue
		}
		mb.sides[o.Side()].upsert(entry{order: o, updateTime: 0})
	}
}

// ApplyDeltas applies an ordered batch of deltas to a market's mirror. A
// delta for an orderId whose updateTime is <= the currently stored one is
// silently dropped (reorder protection); a structurally malformed delta is
// dropped with a warning counter increment.
func (m *Mirror) ApplyDeltas(marketID string, deltas []types.BookDelta) {
	mb := m.marketFor(marketID)

	mb.mu.Lock()
	defer mb.mu.Unlock()

	for _, d := range deltas {
		if d.Order.ID == "" {
			DroppedDeltas.WithLabelValues(marketID, "missing_order_id").Inc()
			continue
		}
		if d.Status != types.StatusActive && d.Status != types.StatusInactive {
			DroppedDeltas.WithLabelValues(marketID, "unknown_status").Inc()
			continue
		}

		if existing := m.find(mb, d.Order.ID); existing != nil && d.UpdateTime <= existing.updateTime {
			continue // stale reorder, silently dropped
		}

		if d.Status == types.StatusInactive {
			for _, side := range []types.Side{types.SideA, types.SideB} {
				mb.sides[side].remove(d.Order.ID)
			}
			continue
		}

		if !m.validOrder(d.Order) {
			DroppedDeltas.WithLabelValues(marketID, "malformed_order_fields").Inc()
			continue
		}

		// An ACTIVE delta might target a different side bucket than a stale
		// entry under the same orderId (replacement); remove from the other
		// bucket first so an order never lives in two buckets at once.
		for _, side := range []types.Side{types.SideA, types.SideB} {
			if side != d.Order.Side() {
				mb.sides[side].remove(d.Order.ID)
			}
		}
		mb.sides[d.Order.Side()].upsert(entry{order: d.Order, updateTime: d.UpdateTime})
	}
}

func (m *Mirror) find(mb *marketBook, orderID string) *entry {
	if e, ok := mb.sides[types.SideA].entries[orderID]; ok {
		return e
	}
	if e, ok := mb.sides[types.SideB].entries[orderID]; ok {
		return e
	}
	return nil
}

func (m *Mirror) validOrder(o types.MakerOrder) bool {
	if o.TotalStake == nil || o.FilledStake == nil || o.MakerOdds == nil {
		return false
	}
	if o.FilledStake.Sign() < 0 || o.FilledStake.Cmp(o.TotalStake) > 0 {
		return false
	}
	if o.MakerOdds.Sign() <= 0 || o.MakerOdds.Cmp(m.oddsUnit) >= 0 {
		return false
	}
	return true
}

// MetricsFor computes bestTakerOdds/vig/liquidity for the given market from
// the current mirror state, per the position-scoped thresholds in q.
func (m *Mirror) MetricsFor(marketID string, q MetricsQuery) types.Metrics {
	mb := m.marketFor(marketID)

	mb.mu.RLock()
	defer mb.mu.RUnlock()

	bestOdds := m.bestMakerOddsLocked(mb, q.ChosenSide.Opposite(), q.MinForOdds)
	var bestTakerOdds *big.Int
	if bestOdds != nil {
		bestTakerOdds = new(big.Int).Sub(m.oddsUnit, bestOdds)
	}

	bestAForVig := m.bestMakerOddsLocked(mb, types.SideB, q.MinForVig)
	bestBForVig := m.bestMakerOddsLocked(mb, types.SideA, q.MinForVig)

	var vig *big.Int
	if bestAForVig != nil && bestBForVig != nil {
		takerA := new(big.Int).Sub(m.oddsUnit, bestAForVig)
		takerB := new(big.Int).Sub(m.oddsUnit, bestBForVig)
		vig = new(big.Int).Add(takerA, takerB)
		vig.Sub(vig, m.oddsUnit)
	}

	return types.Metrics{
		BestTakerOdds: bestTakerOdds,
		Vig:           vig,
		LiquidityA:    m.liquidityLocked(mb, types.SideB),
		LiquidityB:    m.liquidityLocked(mb, types.SideA),
	}
}

// bestMakerOddsLocked returns the highest makerOdds in the given bucket
// among orders not owned by self and with remainingMakerStake >= minForOdds.
// Must be called with mb.mu held.
func (m *Mirror) bestMakerOddsLocked(mb *marketBook, side types.Side, minForStake *big.Int) *big.Int {
	bucket := mb.sides[side]
	var best *big.Int

	bucket.index.Ascend(func(item bookItem) bool {
		e, ok := bucket.entries[item.orderID]
		if !ok {
			return true
		}
		if e.order.MakerID == m.selfMakerID {
			return true
		}
		if e.order.RemainingMakerStake().Cmp(minForStake) < 0 {
			return true
		}
		best = e.order.MakerOdds
		return false // index is best-first; first qualifying hit wins
	})
	return best
}

// liquidityLocked sums remaining taker capacity over every non-self order in
// the given bucket, unconditional of any minimum-stake threshold: liquidity
// has no qualification floor.
func (m *Mirror) liquidityLocked(mb *marketBook, side types.Side) *big.Int {
	total := big.NewInt(0)
	for _, e := range mb.sides[side].entries {
		if e.order.MakerID == m.selfMakerID {
			continue
		}
		capacity := stakemath.RemainingTakerCapacity(e.order.RemainingMakerStake(), e.order.MakerOdds, m.oddsUnit)
		total.Add(total, capacity)
	}
	return total
}

// Drop removes a market's mirror entirely. Called by the Market Monitor
// when the last position attached to a market detaches.
func (m *Mirror) Drop(marketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.markets, marketID)
}
