// Package controller implements the Position Controller: the state machine
// that decides when to post, cancel, or repost a position's single maker
// order, in reaction to market data, fills, and operator commands. Every
// method that mutates a position runs inside that position's Operation
// Serializer, so reads-then-writes of Position state are atomic without a
// global lock.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/declansx/odds-maximizer-betting-bot/internal/book"
	"github.com/declansx/odds-maximizer-betting-bot/internal/coreerr"
	"github.com/declansx/odds-maximizer-betting-bot/internal/monitor"
	"github.com/declansx/odds-maximizer-betting-bot/internal/oddsmath"
	"github.com/declansx/odds-maximizer-betting-bot/internal/position"
	"github.com/declansx/odds-maximizer-betting-bot/internal/stakemath"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// OrderGateway is the narrow contract the controller needs for order
// submission. internal/venue.Gateway satisfies this structurally.
type OrderGateway interface {
	PostMakerOrder(ctx context.Context, marketID string, sideIsA bool, stakeWire, oddsWire *big.Int) (string, error)
	CancelOrders(ctx context.Context, orderIDs []string) (int, error)
}

// OperatorSink receives a notification every time the controller changes a
// position's order or lifecycle status. internal/operator's Hub satisfies
// this structurally. A nil sink is valid: notifications are simply skipped.
type OperatorSink interface {
	Notify(types.PositionNotification)
}

// Config bundles the reconciliation tunables.
type Config struct {
	CompleteFraction       float64       // default 0.99
	MinOrderUpdateInterval time.Duration // default 2500ms
}

var DefaultConfig = Config{
	CompleteFraction:       0.99,
	MinOrderUpdateInterval: 2500 * time.Millisecond,
}

// Controller owns position reconciliation. It is the monitor.EventHandler
// implementation and the operator surface's backing for every position
// verb.
type Controller struct {
	store      *position.Store
	monitor    *monitor.Monitor
	serializer *position.Serializer
	gateway    OrderGateway
	odds       oddsmath.Params
	stake      stakemath.Params
	cfg        Config
	logger     *slog.Logger
	sink       OperatorSink
}

// New builds a Controller. serializer MUST be the same instance passed to
// monitor.New, so operator-triggered operations interleave correctly with
// monitor-delivered events for the same position. sink may be nil.
func New(store *position.Store, mon *monitor.Monitor, serializer *position.Serializer, gateway OrderGateway, odds oddsmath.Params, stake stakemath.Params, cfg Config, sink OperatorSink, logger *slog.Logger) *Controller {
	return &Controller{
		store:      store,
		monitor:    mon,
		serializer: serializer,
		gateway:    gateway,
		odds:       odds,
		stake:      stake,
		cfg:        cfg,
		sink:       sink,
		logger:     logger.With("component", "controller"),
	}
}

func (c *Controller) notify(p types.Position, kind types.NotificationKind) {
	if c.sink == nil {
		return
	}
	c.sink.Notify(types.PositionNotification{
		Kind:        kind,
		PositionID:  p.ID,
		MarketID:    p.MarketID,
		Status:      p.Status,
		OrderStatus: p.OrderStatus,
		FilledStake: p.FilledStake,
		Timestamp:   time.Now(),
	})
}

func (c *Controller) enqueue(id uuid.UUID, op position.Op) {
	c.serializer.Enqueue(id, op)
}

func (c *Controller) closeSerializerAsync(id uuid.UUID) {
	c.serializer.Close(id)
}

func (c *Controller) metricsQuery(p types.Position) book.MetricsQuery {
	return book.MetricsQuery{
		ChosenSide: p.ChosenSide,
		MinForOdds: p.MinForOdds,
		MinForVig:  p.MinForVig,
	}
}

// CreatePosition validates operator input, stores a new position in the
// Initializing status, and attaches it to its market's monitor. The attach path
// fetches a snapshot and delivers the first MarketDataEvent, which is what
// actually posts the position's first order — there is no separate
// "initial order" code path.
func (c *Controller) CreatePosition(ctx context.Context, spec types.PositionSpec) (uuid.UUID, error) {
	if err := validateSpec(spec); err != nil {
		return uuid.UUID{}, err
	}

	p := types.Position{
		ID:           uuid.New(),
		MarketID:     spec.MarketID,
		ChosenSide:   spec.ChosenSide,
		MaxStake:     c.stake.WireOfNominal(decimalOf(spec.MaxStake)),
		FilledStake:  big.NewInt(0),
		PremiumBps:   spec.PremiumBps,
		MaxVigBps:    spec.MaxVigBps,
		MinLiquidity: c.stake.WireOfNominal(decimalOf(spec.MinLiquidity)),
		MinForOdds:   c.stake.WireOfNominal(decimalOf(spec.MinForOdds)),
		MinForVig:    c.stake.WireOfNominal(decimalOf(spec.MinForVig)),
		Status:       types.PositionInitializing,
		OrderStatus:  types.OrderNone,
		CreatedAt:    time.Now(),
	}
	c.store.Insert(p)

	if err := c.monitor.Attach(ctx, p.ID, p.MarketID, c.metricsQuery(p)); err != nil {
		c.store.Delete(p.ID)
		return uuid.UUID{}, fmt.Errorf("attach to market: %w", err)
	}
	return p.ID, nil
}

func validateSpec(spec types.PositionSpec) error {
	if spec.MarketID == "" {
		return fmt.Errorf("marketId required: %w", coreerr.ErrConfigInvalid)
	}
	if spec.ChosenSide != types.SideA && spec.ChosenSide != types.SideB {
		return fmt.Errorf("chosenSide must be A or B: %w", coreerr.ErrConfigInvalid)
	}
	if spec.MaxStake <= 0 {
		return fmt.Errorf("maxStake must be positive: %w", coreerr.ErrConfigInvalid)
	}
	if spec.PremiumBps < 0 || spec.PremiumBps > 9999 {
		return fmt.Errorf("premiumBps out of range [0,9999]: %w", coreerr.ErrConfigInvalid)
	}
	if spec.MaxVigBps < 0 || spec.MaxVigBps > 10000 {
		return fmt.Errorf("maxVigBps out of range [0,10000]: %w", coreerr.ErrConfigInvalid)
	}
	if spec.MinLiquidity < 0 || spec.MinForOdds < 0 || spec.MinForVig < 0 {
		return fmt.Errorf("thresholds must be non-negative: %w", coreerr.ErrConfigInvalid)
	}
	return nil
}

func decimalOf(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func (c *Controller) GetPosition(id uuid.UUID) (types.Position, bool) {
	return c.store.Get(id)
}

func (c *Controller) ListPositions() []types.Position {
	return c.store.List()
}

// EditPosition applies an operator patch and re-reconciles, serialized
// against every other operation for this position.
func (c *Controller) EditPosition(ctx context.Context, id uuid.UUID, patch types.PositionPatch) error {
	return c.runSync(ctx, id, func(ctx context.Context) error {
		p, ok := c.store.Get(id)
		if !ok {
			return coreerr.ErrPositionGone
		}
		if p.Status.Terminal() {
			return fmt.Errorf("position %s is terminal: %w", id, coreerr.ErrConfigInvalid)
		}

		c.store.Mutate(id, func(p *types.Position) {
			if patch.PremiumBps != nil {
				p.PremiumBps = *patch.PremiumBps
			}
			if patch.MaxVigBps != nil {
				p.MaxVigBps = *patch.MaxVigBps
			}
			if patch.MinLiquidity != nil {
				p.MinLiquidity = c.stake.WireOfNominal(decimalOf(*patch.MinLiquidity))
			}
			if patch.MinForOdds != nil {
				p.MinForOdds = c.stake.WireOfNominal(decimalOf(*patch.MinForOdds))
			}
			if patch.MinForVig != nil {
				p.MinForVig = c.stake.WireOfNominal(decimalOf(*patch.MinForVig))
			}
			if patch.MaxStake != nil {
				p.MaxStake = c.stake.WireOfNominal(decimalOf(*patch.MaxStake))
			}
		})

		c.ensureOrderCurrent(ctx, id)
		return nil
	})
}

// ClosePosition cancels any active order, detaches from the market
// monitor, marks the position Closed, and removes it from the store.
func (c *Controller) ClosePosition(ctx context.Context, id uuid.UUID) error {
	err := c.runSync(ctx, id, func(ctx context.Context) error {
		p, ok := c.store.Get(id)
		if !ok {
			return coreerr.ErrPositionGone
		}
		if p.ActiveOrderID != "" {
			c.cancelActive(ctx, &p)
		}
		c.monitor.Detach(p.MarketID, id)

		now := time.Now()
		c.store.Mutate(id, func(p *types.Position) {
			p.Status = types.PositionClosed
			p.OrderStatus = types.OrderNone
			p.ActiveOrderID = ""
			p.ClosedAt = &now
		})
		c.store.Delete(id)
		return nil
	})
	if err == nil {
		// Tear down the position's serializer worker now that no further
		// operations for it are expected. Runs after this op has already
		// completed, so it never cancels the close itself.
		go c.closeSerializerAsync(id)
	}
	return err
}

// runSync enqueues fn on the position's serializer and blocks until it has
// run, returning whatever error it produced.
func (c *Controller) runSync(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	c.enqueue(id, func(ctx context.Context) {
		if ctx.Err() != nil {
			done <- coreerr.ErrPositionGone
			return
		}
		done <- fn(ctx)
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
