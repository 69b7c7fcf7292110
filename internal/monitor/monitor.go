// Package monitor implements the Market Monitor: the glue between the
// Order Book Mirror and every Position Controller attached to a market. It
// owns the transport subscription per market (ref-counted across
// positions), detects fills against self-owned orders, and fans out
// MarketDataEvent/FillEvent through each position's Operation Serializer.
package monitor

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/declansx/odds-maximizer-betting-bot/internal/book"
	"github.com/declansx/odds-maximizer-betting-bot/internal/position"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// Transport is the narrow contract the monitor needs from whatever venue
// adapter is wired in: a one-shot snapshot fetch and a per-market delta
// subscription. internal/venue.Transport satisfies this structurally.
type Transport interface {
	FetchSnapshot(ctx context.Context, marketID string) ([]types.MakerOrder, error)
	Subscribe(ctx context.Context, marketID string, onDeltas func([]types.BookDelta), onResync func()) (Subscription, error)
}

// Subscription is returned by Transport.Subscribe.
type Subscription interface {
	Unsubscribe()
}

// EventHandler is how the monitor delivers events onward. The Position
// Controller implements this; the monitor never depends on controller
// internals.
type EventHandler interface {
	HandleMarketData(ctx context.Context, positionID uuid.UUID, metrics types.Metrics)
	HandleFill(ctx context.Context, positionID uuid.UUID, orderID string, newFilledStake *big.Int)
}

type recentCancelEntry struct {
	positionID uuid.UUID
	expiresAt  time.Time
}

type marketState struct {
	sub       Subscription
	refCount  int
	positions map[uuid.UUID]book.MetricsQuery

	owned             map[string]uuid.UUID // live orderId -> positionId, self-owned
	recentlyCancelled map[string]recentCancelEntry
}

// Monitor is the process-wide Market Monitor singleton.
type Monitor struct {
	mirror     *book.Mirror
	transport  Transport
	serializer *position.Serializer
	handler    EventHandler
	logger     *slog.Logger
	cancelTTL  time.Duration

	mu      sync.Mutex
	markets map[string]*marketState
}

func New(mirror *book.Mirror, transport Transport, serializer *position.Serializer, handler EventHandler, cancelTTL time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		mirror:     mirror,
		transport:  transport,
		serializer: serializer,
		handler:    handler,
		cancelTTL:  cancelTTL,
		logger:     logger.With("component", "monitor"),
		markets:    make(map[string]*marketState),
	}
}

// Attach subscribes a position to a market, sharing an existing transport
// subscription if another position is already attached to the same market.
// It fetches an initial snapshot, applies it, and enqueues the first
// MarketDataEvent on the position's serializer before returning.
func (m *Monitor) Attach(ctx context.Context, positionID uuid.UUID, marketID string, query book.MetricsQuery) error {
	ms, isNew, err := m.getOrCreateMarket(ctx, marketID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	ms.refCount++
	ms.positions[positionID] = query
	m.mu.Unlock()

	if isNew {
		// getOrCreateMarket already applied the initial snapshot.
	} else {
		orders, err := m.transport.FetchSnapshot(ctx, marketID)
		if err != nil {
			m.logger.Warn("attach: snapshot refetch failed, using existing mirror state", "market_id", marketID, "err", err)
		} else {
			m.mirror.ApplySnapshot(marketID, orders)
		}
	}

	metrics := m.mirror.MetricsFor(marketID, query)
	m.deliverMarketData(positionID, metrics)
	return nil
}

func (m *Monitor) getOrCreateMarket(ctx context.Context, marketID string) (*marketState, bool, error) {
	m.mu.Lock()
	ms, ok := m.markets[marketID]
	if ok {
		m.mu.Unlock()
		return ms, false, nil
	}
	ms = &marketState{
		positions:         make(map[uuid.UUID]book.MetricsQuery),
		owned:             make(map[string]uuid.UUID),
		recentlyCancelled: make(map[string]recentCancelEntry),
	}
	m.markets[marketID] = ms
	m.mu.Unlock()

	sub, err := m.transport.Subscribe(ctx, marketID,
		func(deltas []types.BookDelta) { m.onDeltas(marketID, deltas) },
		func() { m.onResync(marketID) },
	)
	if err != nil {
		m.mu.Lock()
		delete(m.markets, marketID)
		m.mu.Unlock()
		return nil, false, err
	}

	orders, err := m.transport.FetchSnapshot(ctx, marketID)
	if err != nil {
		sub.Unsubscribe()
		m.mu.Lock()
		delete(m.markets, marketID)
		m.mu.Unlock()
		return nil, false, err
	}
	m.mirror.ApplySnapshot(marketID, orders)

	m.mu.Lock()
	ms.sub = sub
	m.mu.Unlock()
	return ms, true, nil
}

// Detach decrements a position's reference on a market's subscription,
// tearing it down once the last position leaves. Also purges positionID from
// the recently-cancelled set so a late fill delta arriving inside cancelTTL
// after detach can't resolve ownerOf back to a position that is gone: that
// would hand deliverFill a tombstoned id and, absent this purge, depend
// solely on the serializer's tombstone to avoid leaking a queue.
func (m *Monitor) Detach(marketID string, positionID uuid.UUID) {
	m.mu.Lock()
	ms, ok := m.markets[marketID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(ms.positions, positionID)
	for orderID, pid := range ms.owned {
		if pid == positionID {
			delete(ms.owned, orderID)
		}
	}
	for orderID, entry := range ms.recentlyCancelled {
		if entry.positionID == positionID {
			delete(ms.recentlyCancelled, orderID)
		}
	}
	ms.refCount--
	done := ms.refCount <= 0
	if done {
		delete(m.markets, marketID)
	}
	sub := ms.sub
	m.mu.Unlock()

	if done {
		if sub != nil {
			sub.Unsubscribe()
		}
		m.mirror.Drop(marketID)
	}
}

// TrackOwnedOrder records that orderID belongs to positionID so a later
// fill delta can be attributed correctly. Called by the controller right
// after a successful post.
func (m *Monitor) TrackOwnedOrder(marketID, orderID string, positionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.markets[marketID]
	if !ok {
		return
	}
	ms.owned[orderID] = positionID
}

// MarkCancelled moves an order from the live-owned set into the
// recently-cancelled set, so a late fill arriving after the cancel is still
// credited to the right position for cancelTTL.
func (m *Monitor) MarkCancelled(marketID, orderID string, positionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.markets[marketID]
	if !ok {
		return
	}
	delete(ms.owned, orderID)
	ms.recentlyCancelled[orderID] = recentCancelEntry{positionID: positionID, expiresAt: time.Now().Add(m.cancelTTL)}
	m.sweepExpiredLocked(ms)
}

func (m *Monitor) sweepExpiredLocked(ms *marketState) {
	now := time.Now()
	for id, e := range ms.recentlyCancelled {
		if now.After(e.expiresAt) {
			delete(ms.recentlyCancelled, id)
		}
	}
}

func (m *Monitor) ownerOf(ms *marketState, orderID string) (uuid.UUID, bool) {
	if pid, ok := ms.owned[orderID]; ok {
		return pid, true
	}
	if e, ok := ms.recentlyCancelled[orderID]; ok && time.Now().Before(e.expiresAt) {
		return e.positionID, true
	}
	return uuid.UUID{}, false
}

func (m *Monitor) onDeltas(marketID string, deltas []types.BookDelta) {
	m.mirror.ApplyDeltas(marketID, deltas)

	m.mu.Lock()
	ms, ok := m.markets[marketID]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.sweepExpiredLocked(ms)

	var fills []struct {
		positionID uuid.UUID
		orderID    string
		filled     *big.Int
	}
	for _, d := range deltas {
		if pid, found := m.ownerOf(ms, d.Order.ID); found {
			fills = append(fills, struct {
				positionID uuid.UUID
				orderID    string
				filled     *big.Int
			}{pid, d.Order.ID, new(big.Int).Set(d.Order.FilledStake)})
		}
	}

	queries := make(map[uuid.UUID]book.MetricsQuery, len(ms.positions))
	for pid, q := range ms.positions {
		queries[pid] = q
	}
	m.mu.Unlock()

	for _, f := range fills {
		m.deliverFill(f.positionID, f.orderID, f.filled)
	}
	for pid, q := range queries {
		metrics := m.mirror.MetricsFor(marketID, q)
		m.deliverMarketData(pid, metrics)
	}
}

func (m *Monitor) onResync(marketID string) {
	orders, err := m.transport.FetchSnapshot(context.Background(), marketID)
	if err != nil {
		m.logger.Warn("resync snapshot fetch failed", "market_id", marketID, "err", err)
		return
	}
	m.mirror.ApplySnapshot(marketID, orders)

	m.mu.Lock()
	ms, ok := m.markets[marketID]
	if !ok {
		m.mu.Unlock()
		return
	}
	queries := make(map[uuid.UUID]book.MetricsQuery, len(ms.positions))
	for pid, q := range ms.positions {
		queries[pid] = q
	}
	m.mu.Unlock()

	for pid, q := range queries {
		metrics := m.mirror.MetricsFor(marketID, q)
		m.deliverMarketData(pid, metrics)
	}
}

func (m *Monitor) deliverMarketData(positionID uuid.UUID, metrics types.Metrics) {
	m.serializer.Enqueue(positionID, func(ctx context.Context) {
		if ctx.Err() != nil {
			return
		}
		m.handler.HandleMarketData(ctx, positionID, metrics)
	})
}

func (m *Monitor) deliverFill(positionID uuid.UUID, orderID string, filled *big.Int) {
	m.serializer.Enqueue(positionID, func(ctx context.Context) {
		if ctx.Err() != nil {
			return
		}
		m.handler.HandleFill(ctx, positionID, orderID, filled)
	})
}
