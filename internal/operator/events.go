package operator

import "github.com/declansx/odds-maximizer-betting-bot/pkg/types"

type notificationView struct {
	Kind        string `json:"kind"`
	PositionID  string `json:"positionId"`
	MarketID    string `json:"marketId"`
	Status      string `json:"status"`
	OrderStatus string `json:"orderStatus"`
	FilledStake string `json:"filledStake"`
}

// Notify implements controller.OperatorSink: every position status or order
// transition is pushed to connected WebSocket clients as it happens.
func (h *Hub) Notify(n types.PositionNotification) {
	v := notificationView{
		Kind:        string(n.Kind),
		PositionID:  n.PositionID.String(),
		MarketID:    n.MarketID,
		Status:      string(n.Status),
		OrderStatus: string(n.OrderStatus),
	}
	if n.FilledStake != nil {
		v.FilledStake = n.FilledStake.String()
	}
	h.broadcastJSON(feedEvent{Type: "position_notification", Timestamp: n.Timestamp, Data: v})
}
