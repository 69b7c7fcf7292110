package venue

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/declansx/odds-maximizer-betting-bot/internal/coreerr"
)

// GatewayConfig bundles the retry schedule used for outbound order
// operations.
type GatewayConfig struct {
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMultiplier float64
}

// DefaultGatewayConfig is a conservative default retry schedule.
var DefaultGatewayConfig = GatewayConfig{
	MaxRetries:      3,
	RetryBaseDelay:  time.Second,
	RetryMultiplier: 2.0,
}

// Gateway wraps Client with the retry policy the Position Controller expects
// from an Order Gateway: transient failures (transport hiccups, rate
// limiting) are retried with exponential backoff up to MaxRetries;
// non-transient failures (rejected order, invalid odds) are returned
// immediately so the controller can react.
type Gateway struct {
	client *Client
	cfg    GatewayConfig
	logger *slog.Logger
}

func NewGateway(client *Client, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	return &Gateway{client: client, cfg: cfg, logger: logger.With("component", "venue.gateway")}
}

func (g *Gateway) backoffPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.RetryBaseDelay
	b.Multiplier = g.cfg.RetryMultiplier
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries instead
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.cfg.MaxRetries)), ctx)
}

// PostMakerOrder submits a signed maker order, retrying transient failures.
func (g *Gateway) PostMakerOrder(ctx context.Context, marketID string, sideIsA bool, stakeWire, oddsWire *big.Int) (string, error) {
	nonce := time.Now().UnixNano()

	var orderID string
	op := func() error {
		id, err := g.client.PostMakerOrder(ctx, marketID, sideIsA, stakeWire, oddsWire, nonce)
		if err != nil {
			if coreerr.Transient(err) {
				g.logger.Warn("post maker order failed, retrying", "market_id", marketID, "err", err)
				return err
			}
			return backoff.Permanent(err)
		}
		orderID = id
		return nil
	}

	if err := backoff.Retry(op, g.backoffPolicy(ctx)); err != nil {
		return "", unwrapPermanent(err)
	}
	return orderID, nil
}

// CancelOrders cancels the given orders, retrying transient failures.
// Returns coreerr.ErrOrderGone if the venue cancelled none of them.
func (g *Gateway) CancelOrders(ctx context.Context, orderIDs []string) (int, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}

	var cancelled int
	op := func() error {
		n, err := g.client.CancelOrders(ctx, orderIDs)
		if err != nil {
			if coreerr.Transient(err) {
				g.logger.Warn("cancel orders failed, retrying", "order_ids", orderIDs, "err", err)
				return err
			}
			return backoff.Permanent(err)
		}
		cancelled = n
		return nil
	}

	if err := backoff.Retry(op, g.backoffPolicy(ctx)); err != nil {
		return 0, unwrapPermanent(err)
	}
	if cancelled == 0 {
		return 0, fmt.Errorf("cancel orders: none cancelled: %w", coreerr.ErrOrderGone)
	}
	return cancelled, nil
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if pe, ok := err.(*backoff.PermanentError); ok {
		perm = pe
		return perm.Err
	}
	return err
}
