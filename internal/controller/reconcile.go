package controller

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// completeFractionBps converts the configured CompleteFraction (e.g. 0.99)
// into a basis-point integer so completion is tested with exact big.Int
// cross-multiplication instead of floats.
func (c *Controller) completeFractionBps() int64 {
	return int64(c.cfg.CompleteFraction*10000 + 0.5)
}

// HandleMarketData implements monitor.EventHandler for freshly recomputed
// metrics: the risk gate, then a fall-through into order reconciliation.
func (c *Controller) HandleMarketData(ctx context.Context, positionID uuid.UUID, metrics types.Metrics) {
	p, ok := c.store.Get(positionID)
	if !ok || p.Status.Terminal() {
		return
	}

	risk := c.computeRisk(p, metrics)
	switch {
	case risk != p.RiskBreached && risk:
		c.logger.Warn("risk breached, pausing position", "position_id", positionID, "market_id", p.MarketID)
		if p.ActiveOrderID != "" {
			c.cancelActive(ctx, &p)
		}
		c.store.Mutate(positionID, func(pp *types.Position) {
			pp.RiskBreached = true
			pp.Status = types.PositionRiskPaused
			pp.LastMetrics = metrics
		})
		if pp, ok := c.store.Get(positionID); ok {
			c.notify(pp, types.NotifyStatusChanged)
		}
		return
	case risk != p.RiskBreached && !risk:
		c.store.Mutate(positionID, func(pp *types.Position) {
			pp.RiskBreached = false
			pp.Status = types.PositionActive
			pp.LastMetrics = metrics
		})
		if pp, ok := c.store.Get(positionID); ok {
			c.notify(pp, types.NotifyStatusChanged)
		}
	case !risk && p.Status == types.PositionInitializing:
		// First healthy metrics for a brand-new position: no risk flag ever
		// flipped (it started false), but the position still needs to leave
		// Initializing before reconcile posts its first order.
		c.store.Mutate(positionID, func(pp *types.Position) {
			pp.Status = types.PositionActive
			pp.LastMetrics = metrics
		})
		if pp, ok := c.store.Get(positionID); ok {
			c.notify(pp, types.NotifyStatusChanged)
		}
	default:
		c.store.Mutate(positionID, func(pp *types.Position) { pp.LastMetrics = metrics })
	}

	c.reconcile(ctx, positionID, metrics)
}

// computeRisk implements: vig above maxVigBps, or either side's liquidity
// below minLiquidity.
func (c *Controller) computeRisk(p types.Position, metrics types.Metrics) bool {
	if metrics.Vig != nil && c.odds.VigBpsOf(metrics.Vig) > p.MaxVigBps {
		return true
	}
	if metrics.LiquidityA != nil && metrics.LiquidityA.Cmp(p.MinLiquidity) < 0 {
		return true
	}
	if metrics.LiquidityB != nil && metrics.LiquidityB.Cmp(p.MinLiquidity) < 0 {
		return true
	}
	return false
}

// ensureOrderCurrent re-reconciles a position against its last-seen market
// metrics without waiting for a fresh market data event. Used after an
// operator edit changes premium/vig/liquidity thresholds or maxStake.
func (c *Controller) ensureOrderCurrent(ctx context.Context, id uuid.UUID) {
	p, ok := c.store.Get(id)
	if !ok {
		return
	}
	c.reconcile(ctx, id, p.LastMetrics)
}

// reconcile decides whether the position's quote needs to change: risk
// gate already passed by the caller, rate-limit, premium+ladder the best
// taker price, cancel-then-repost if the desired odds moved, and complete
// once remaining capacity hits zero. Also invoked after a fill and after
// an operator edit, both times with the position's last known metrics.
func (c *Controller) reconcile(ctx context.Context, id uuid.UUID, metrics types.Metrics) {
	p, ok := c.store.Get(id)
	if !ok || p.RiskBreached || p.Status.Terminal() {
		return
	}

	if metrics.BestTakerOdds == nil {
		if p.ActiveOrderID != "" {
			c.cancelActive(ctx, &p)
		}
		return
	}

	if time.Since(p.LastOrderOpAt) < c.cfg.MinOrderUpdateInterval {
		return
	}

	premiumed, err := c.odds.ApplyPremium(metrics.BestTakerOdds, p.PremiumBps)
	if err != nil {
		c.logger.Warn("apply premium failed", "position_id", id, "err", err)
		return
	}
	desired, err := c.odds.QuantizeToLadder(premiumed)
	if err != nil {
		// Quantizes to 0 or above ODDS_UNIT: suppress the post and wait for
		// a viable quote, per the resolved open question.
		return
	}

	if p.ActiveOrderID != "" && p.LastQuotedMakerOdds != nil && desired.Cmp(p.LastQuotedMakerOdds) == 0 {
		return
	}

	if p.ActiveOrderID != "" {
		if !c.cancelActive(ctx, &p) {
			// Cancel returned zero cancelled: already filled or gone.
			// Rely on the pending fill event to trigger the next reconcile.
			return
		}
	}

	remaining := new(big.Int).Sub(p.MaxStake, p.FilledStake)
	if remaining.Sign() <= 0 {
		c.markCompleted(ctx, id)
		return
	}

	orderID, err := c.gateway.PostMakerOrder(ctx, p.MarketID, p.ChosenSide == types.SideA, remaining, desired)
	if err != nil {
		c.store.Mutate(id, func(pp *types.Position) {
			pp.OrderStatus = types.OrderError
			pp.ActiveOrderID = ""
		})
		c.logger.Warn("post maker order failed", "position_id", id, "market_id", p.MarketID, "err", err)
		return
	}

	c.monitor.TrackOwnedOrder(p.MarketID, orderID, id)
	c.store.Mutate(id, func(pp *types.Position) {
		pp.ActiveOrderID = orderID
		pp.LastQuotedMakerOdds = desired
		pp.OrderStatus = types.OrderActive
		pp.LastOrderOpAt = time.Now()
	})
	if pp, ok := c.store.Get(id); ok {
		c.notify(pp, types.NotifyOrderPosted)
	}
}

// cancelActive cancels p's active order and records it for late-fill
// crediting. Returns true if the venue actually cancelled it (false means
// it was already filled or gone).
func (c *Controller) cancelActive(ctx context.Context, p *types.Position) bool {
	orderID := p.ActiveOrderID
	_, err := c.gateway.CancelOrders(ctx, []string{orderID})
	c.monitor.MarkCancelled(p.MarketID, orderID, p.ID)

	c.store.Mutate(p.ID, func(pp *types.Position) {
		pp.OrderStatus = types.OrderCancelled
		pp.ActiveOrderID = ""
		pp.LastOrderOpAt = time.Now()
	})
	p.ActiveOrderID = ""
	p.OrderStatus = types.OrderCancelled
	if pp, ok := c.store.Get(p.ID); ok {
		c.notify(pp, types.NotifyOrderCancelled)
	}
	return err == nil
}

func (c *Controller) markCompleted(ctx context.Context, id uuid.UUID) {
	p, ok := c.store.Get(id)
	if ok && p.ActiveOrderID != "" {
		c.cancelActive(ctx, &p)
	}
	c.store.Mutate(id, func(pp *types.Position) {
		pp.Status = types.PositionCompleted
		pp.OrderStatus = types.OrderNone
	})
	if pp, ok := c.store.Get(id); ok {
		c.notify(pp, types.NotifyStatusChanged)
	}
}

// HandleFill implements monitor.EventHandler: credits a monotone fill and
// either completes the position or falls through into reconciliation using
// the last known market metrics.
func (c *Controller) HandleFill(ctx context.Context, positionID uuid.UUID, orderID string, newFilledStake *big.Int) {
	p, ok := c.store.Get(positionID)
	if !ok || p.Status.Terminal() {
		return
	}

	c.store.Mutate(positionID, func(pp *types.Position) {
		if newFilledStake.Cmp(pp.FilledStake) > 0 {
			pp.FilledStake = new(big.Int).Set(newFilledStake)
		}
	})

	p, ok = c.store.Get(positionID)
	if !ok {
		return
	}
	c.notify(p, types.NotifyFillCredited)

	if p.MaxStake.Sign() > 0 {
		lhs := new(big.Int).Mul(p.FilledStake, big.NewInt(10000))
		rhs := new(big.Int).Mul(p.MaxStake, big.NewInt(c.completeFractionBps()))
		if lhs.Cmp(rhs) >= 0 {
			c.markCompleted(ctx, positionID)
			return
		}
	}

	c.reconcile(ctx, positionID, p.LastMetrics)
}
