package operator

import (
	"time"

	"github.com/google/uuid"

	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// feedEvent is the envelope broadcast over the WebSocket feed.
type feedEvent struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// createPositionRequest is the body of POST /api/positions.
type createPositionRequest struct {
	MarketID     string  `json:"marketId"`
	ChosenSide   string  `json:"chosenSide"`
	MaxStake     float64 `json:"maxStake"`
	PremiumBps   int64   `json:"premiumBps"`
	MaxVigBps    int64   `json:"maxVigBps"`
	MinLiquidity float64 `json:"minLiquidity"`
	MinForOdds   float64 `json:"minForOdds"`
	MinForVig    float64 `json:"minForVig"`
}

func (r createPositionRequest) toSpec() types.PositionSpec {
	return types.PositionSpec{
		MarketID:     r.MarketID,
		ChosenSide:   types.Side(r.ChosenSide),
		MaxStake:     r.MaxStake,
		PremiumBps:   r.PremiumBps,
		MaxVigBps:    r.MaxVigBps,
		MinLiquidity: r.MinLiquidity,
		MinForOdds:   r.MinForOdds,
		MinForVig:    r.MinForVig,
	}
}

// editPositionRequest is the body of PATCH /api/positions/{id}. Absent
// fields leave the corresponding setting unchanged.
type editPositionRequest struct {
	PremiumBps   *int64   `json:"premiumBps,omitempty"`
	MaxVigBps    *int64   `json:"maxVigBps,omitempty"`
	MinLiquidity *float64 `json:"minLiquidity,omitempty"`
	MinForOdds   *float64 `json:"minForOdds,omitempty"`
	MinForVig    *float64 `json:"minForVig,omitempty"`
	MaxStake     *float64 `json:"maxStake,omitempty"`
}

func (r editPositionRequest) toPatch() types.PositionPatch {
	return types.PositionPatch{
		PremiumBps:   r.PremiumBps,
		MaxVigBps:    r.MaxVigBps,
		MinLiquidity: r.MinLiquidity,
		MinForOdds:   r.MinForOdds,
		MinForVig:    r.MinForVig,
		MaxStake:     r.MaxStake,
	}
}

// positionView is the JSON representation of a Position returned by the
// read endpoints. Wire-unit fields are surfaced as decimal strings so
// clients never need their own big.Int parsing.
type positionView struct {
	ID                  uuid.UUID `json:"id"`
	MarketID            string    `json:"marketId"`
	ChosenSide          string    `json:"chosenSide"`
	MaxStake            string    `json:"maxStake"`
	FilledStake         string    `json:"filledStake"`
	PremiumBps          int64     `json:"premiumBps"`
	MaxVigBps           int64     `json:"maxVigBps"`
	Status              string    `json:"status"`
	OrderStatus         string    `json:"orderStatus"`
	ActiveOrderID       string    `json:"activeOrderId,omitempty"`
	LastQuotedMakerOdds string    `json:"lastQuotedMakerOdds,omitempty"`
	RiskBreached        bool      `json:"riskBreached"`
	CreatedAt           time.Time `json:"createdAt"`
	ClosedAt            *time.Time `json:"closedAt,omitempty"`
}

func newPositionView(p types.Position) positionView {
	v := positionView{
		ID:            p.ID,
		MarketID:      p.MarketID,
		ChosenSide:    string(p.ChosenSide),
		MaxStake:      p.MaxStake.String(),
		FilledStake:   p.FilledStake.String(),
		PremiumBps:    p.PremiumBps,
		MaxVigBps:     p.MaxVigBps,
		Status:        string(p.Status),
		OrderStatus:   string(p.OrderStatus),
		ActiveOrderID: p.ActiveOrderID,
		RiskBreached:  p.RiskBreached,
		CreatedAt:     p.CreatedAt,
		ClosedAt:      p.ClosedAt,
	}
	if p.LastQuotedMakerOdds != nil {
		v.LastQuotedMakerOdds = p.LastQuotedMakerOdds.String()
	}
	return v
}
