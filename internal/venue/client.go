// Package venue implements the venue adapter: the concrete Transport (push
// WebSocket feed with polling fallback) and Order Gateway (signed REST
// order submission with retry) behind the core's domain-agnostic
// interfaces. Nothing outside this package knows the wire format, the
// signing scheme, or the transport's reconnect mechanics.
package venue

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/declansx/odds-maximizer-betting-bot/internal/coreerr"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// Client is the REST half of the venue adapter: book snapshots, order
// submission, and cancellation. It never sees WebSocket state.
type Client struct {
	http     *resty.Client
	rl       *RateLimiter
	signer   Signer
	makerID  string
	dryRun   bool
	logger   *slog.Logger
}

// NewClient builds a REST client against the venue's base URL.
func NewClient(baseURL string, rl *RateLimiter, signer Signer, makerID string, dryRun bool, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    httpClient,
		rl:      rl,
		signer:  signer,
		makerID: makerID,
		dryRun:  dryRun,
		logger:  logger.With("component", "venue.client"),
	}
}

func fromWireOrder(w wireOrder) (types.MakerOrder, error) {
	total, err := parseBig(w.TotalStake)
	if err != nil {
		return types.MakerOrder{}, fmt.Errorf("total stake: %w", err)
	}
	filled, err := parseBig(w.FilledStake)
	if err != nil {
		return types.MakerOrder{}, fmt.Errorf("filled stake: %w", err)
	}
	odds, err := parseBig(w.MakerOdds)
	if err != nil {
		return types.MakerOrder{}, fmt.Errorf("maker odds: %w", err)
	}
	return types.MakerOrder{
		ID:           w.OrderID,
		MarketID:     w.MarketID,
		MakerID:      w.MakerID,
		TotalStake:   total,
		FilledStake:  filled,
		MakerOdds:    odds,
		MakerSideIsA: w.SideIsA,
	}, nil
}

// FetchSnapshot fetches the full set of live maker orders for a market.
func (c *Client) FetchSnapshot(ctx context.Context, marketID string) ([]types.MakerOrder, error) {
	if err := c.rl.Snapshot.Wait(ctx); err != nil {
		return nil, fmt.Errorf("snapshot rate limit: %w", err)
	}

	var result wireSnapshotResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("marketId", marketID).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w: %w", coreerr.ErrTransport, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, fmt.Errorf("fetch snapshot: %w", coreerr.ErrRateLimited)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: status %d: %s: %w", resp.StatusCode(), resp.String(), coreerr.ErrTransport)
	}

	orders := make([]types.MakerOrder, 0, len(result.Orders))
	for _, w := range result.Orders {
		o, err := fromWireOrder(w)
		if err != nil {
			c.logger.Warn("dropping malformed snapshot entry", "market_id", marketID, "err", err)
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// PostMakerOrder signs and submits a new maker order, returning its venue
// order ID. nonce should be unique per (makerID, marketID) submission.
func (c *Client) PostMakerOrder(ctx context.Context, marketID string, sideIsA bool, stakeWire, oddsWire *big.Int, nonce int64) (string, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would post maker order", "market_id", marketID, "side_a", sideIsA, "stake", stakeWire, "odds", oddsWire)
		return fmt.Sprintf("dry-run-%s-%d", marketID, nonce), nil
	}
	if err := c.rl.Post.Wait(ctx); err != nil {
		return "", fmt.Errorf("post rate limit: %w", err)
	}

	signed, err := c.signer.Sign(ctx, OrderPayload{
		MarketID:  marketID,
		MakerID:   c.makerID,
		SideIsA:   sideIsA,
		StakeWire: stakeWire,
		OddsWire:  oddsWire,
		Nonce:     nonce,
	})
	if err != nil {
		return "", fmt.Errorf("sign order: %w", err)
	}

	req := wirePostOrderRequest{
		MarketID:  marketID,
		SideIsA:   sideIsA,
		Stake:     stakeWire.String(),
		Odds:      oddsWire.String(),
		MakerID:   c.makerID,
		Nonce:     nonce,
		Signature: signed.Signature,
	}

	var result wirePostOrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/orders")
	if err != nil {
		return "", fmt.Errorf("post order: %w: %w", coreerr.ErrTransport, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		if result.OrderID == "" {
			return "", fmt.Errorf("post order: empty order id: %w", coreerr.ErrOrderRejected)
		}
		return result.OrderID, nil
	case http.StatusTooManyRequests:
		return "", fmt.Errorf("post order: %w", coreerr.ErrRateLimited)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "", fmt.Errorf("post order: %s: %w", result.Error, coreerr.ErrOrderRejected)
	default:
		return "", fmt.Errorf("post order: status %d: %s: %w", resp.StatusCode(), resp.String(), coreerr.ErrTransport)
	}
}

// CancelOrders cancels the given order IDs, returning how many the venue
// actually found and cancelled. Fewer cancelled than requested is not an
// error: those orders were already filled or already gone.
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string) (int, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel orders", "count", len(orderIDs))
		return len(orderIDs), nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return 0, fmt.Errorf("cancel rate limit: %w", err)
	}

	var result wireCancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(wireCancelRequest{OrderIDs: orderIDs}).
		SetResult(&result).
		Delete("/orders")
	if err != nil {
		return 0, fmt.Errorf("cancel orders: %w: %w", coreerr.ErrTransport, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return len(result.Cancelled), nil
	case http.StatusTooManyRequests:
		return 0, fmt.Errorf("cancel orders: %w", coreerr.ErrRateLimited)
	default:
		return 0, fmt.Errorf("cancel orders: status %d: %s: %w", resp.StatusCode(), resp.String(), coreerr.ErrTransport)
	}
}
