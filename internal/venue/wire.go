package venue

import (
	"fmt"
	"math/big"
)

// wireOrder mirrors the venue's REST/WS JSON representation of a maker
// order. Numeric wire-scale fields travel as decimal strings so precision
// survives JSON's float64 round-trip.
type wireOrder struct {
	OrderID     string `json:"orderId"`
	MarketID    string `json:"marketId"`
	MakerID     string `json:"makerId"`
	SideIsA     bool   `json:"sideIsA"`
	TotalStake  string `json:"totalStake"`
	FilledStake string `json:"filledStake"`
	MakerOdds   string `json:"makerOdds"`
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wire integer %q", s)
	}
	return v, nil
}

type wireDelta struct {
	Order      wireOrder `json:"order"`
	Status     string    `json:"status"`
	UpdateTime int64     `json:"updateTime"`
}

type wireSnapshotResponse struct {
	Orders []wireOrder `json:"orders"`
}

type wirePostOrderRequest struct {
	MarketID  string `json:"marketId"`
	SideIsA   bool   `json:"sideIsA"`
	Stake     string `json:"stake"`
	Odds      string `json:"odds"`
	MakerID   string `json:"makerId"`
	Nonce     int64  `json:"nonce"`
	Signature string `json:"signature"`
}

type wirePostOrderResponse struct {
	OrderID string `json:"orderId"`
	Error   string `json:"error,omitempty"`
}

type wireCancelRequest struct {
	OrderIDs []string `json:"orderIds"`
}

type wireCancelResponse struct {
	Cancelled []string `json:"cancelled"`
}

type wireWSEnvelope struct {
	EventType string    `json:"eventType"` // "snapshot" | "delta" | "ping"
	MarketID  string    `json:"marketId"`
	Orders    []wireOrder `json:"orders,omitempty"`
	Deltas    []wireDelta `json:"deltas,omitempty"`
}
