// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the agent — maker orders,
// positions, order book deltas, and the events exchanged between the market
// monitor and the position controller. It has no dependencies on internal
// packages, so it can be imported by any layer.
package types

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side identifies one of the two mutually exclusive outcomes of a market.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Opposite returns the other side of a binary market.
func (s Side) Opposite() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// DeltaStatus is the lifecycle tag carried by an order book delta.
type DeltaStatus string

const (
	StatusActive   DeltaStatus = "ACTIVE"
	StatusInactive DeltaStatus = "INACTIVE"
)

// PositionStatus is the lifecycle state of a Position.
type PositionStatus string

const (
	PositionCreated      PositionStatus = "Created"
	PositionInitializing PositionStatus = "Initializing"
	PositionActive       PositionStatus = "Active"
	PositionRiskPaused   PositionStatus = "RiskPaused"
	PositionCompleted    PositionStatus = "Completed"
	PositionClosed       PositionStatus = "Closed"
)

// Terminal reports whether a status admits no further transitions.
func (s PositionStatus) Terminal() bool {
	return s == PositionCompleted || s == PositionClosed
}

// OrderStatus tracks the state of a position's single outstanding order.
type OrderStatus string

const (
	OrderNone      OrderStatus = "None"
	OrderActive    OrderStatus = "Active"
	OrderCancelled OrderStatus = "Cancelled"
	OrderError     OrderStatus = "Error"
)

// ————————————————————————————————————————————————————————————————————————
// Maker orders and the book mirror
// ————————————————————————————————————————————————————————————————————————

// MakerOrder is the venue's resting-order entity as mirrored locally.
// TotalStake, FilledStake, and MakerOdds are wire-scale arbitrary-precision
// integers (see internal/stakemath, internal/oddsmath); they must never be
// nil on a value that has passed delta validation.
type MakerOrder struct {
	ID            string
	MarketID      string
	MakerID       string
	TotalStake    *big.Int
	FilledStake   *big.Int
	MakerOdds     *big.Int
	MakerSideIsA  bool
}

// Side returns which outcome this maker order is betting.
func (o MakerOrder) Side() Side {
	if o.MakerSideIsA {
		return SideA
	}
	return SideB
}

// RemainingMakerStake returns TotalStake - FilledStake.
func (o MakerOrder) RemainingMakerStake() *big.Int {
	return new(big.Int).Sub(o.TotalStake, o.FilledStake)
}

// BookDelta is one line of an incremental order book update.
type BookDelta struct {
	Order      MakerOrder
	Status     DeltaStatus
	UpdateTime int64 // monotone per orderId; used to break ties/drop stale deltas
}

// Metrics is the set of derived values the Order Book Mirror computes for a
// given position's view of a market.
type Metrics struct {
	BestTakerOdds *big.Int // nil == no qualifying order ("null")
	Vig           *big.Int // nil == not defined (needs both sides to qualify)
	LiquidityA    *big.Int
	LiquidityB    *big.Int
}

// ————————————————————————————————————————————————————————————————————————
// Positions
// ————————————————————————————————————————————————————————————————————————

// PositionSpec is operator input to createPosition. Stakes and thresholds
// are nominal (human) units; the controller converts to wire units.
type PositionSpec struct {
	MarketID     string
	ChosenSide   Side
	MaxStake     float64 // nominal
	PremiumBps   int64   // [0, 9999]
	MaxVigBps    int64   // [0, 10000], compared against vig in wire-fraction terms
	MinLiquidity float64 // nominal
	MinForOdds   float64 // nominal
	MinForVig    float64 // nominal
}

// PositionPatch carries an operator edit. Nil fields are left unchanged.
type PositionPatch struct {
	PremiumBps   *int64
	MaxVigBps    *int64
	MinLiquidity *float64
	MinForOdds   *float64
	MinForVig    *float64
	MaxStake     *float64
}

// Position is the full internal record tracked by the Position Store.
// All mutation must happen from inside this position's Operation Serializer.
type Position struct {
	ID         uuid.UUID
	MarketID   string
	ChosenSide Side

	MaxStake    *big.Int // wire units
	FilledStake *big.Int // wire units, monotone non-decreasing

	PremiumBps   int64
	MaxVigBps    int64
	MinLiquidity *big.Int // wire units
	MinForOdds   *big.Int // wire units
	MinForVig    *big.Int // wire units

	Status      PositionStatus
	OrderStatus OrderStatus

	ActiveOrderID       string
	LastQuotedMakerOdds *big.Int
	RiskBreached        bool

	LastOrderOpAt time.Time // rate-limit timestamp for MIN_ORDER_UPDATE_INTERVAL
	CreatedAt     time.Time
	ClosedAt      *time.Time

	// LastMetrics is the most recent market snapshot seen via a
	// MarketDataEvent, cached so a FillEvent can fall through into the same
	// "ensure order current" reconciliation without waiting for the next
	// market update.
	LastMetrics Metrics
}

// Clone returns a deep-enough copy safe for handing to readers outside the
// Operation Serializer (big.Int values are treated as immutable once set,
// so a shallow field copy plus pointer copy of immutable big.Ints suffices).
func (p *Position) Clone() Position {
	cp := *p
	return cp
}

// ————————————————————————————————————————————————————————————————————————
// Events dispatched through the Operation Serializer
// ————————————————————————————————————————————————————————————————————————

// MarketDataEvent carries freshly recomputed metrics for one position's view
// of its market.
type MarketDataEvent struct {
	PositionID uuid.UUID
	Metrics    Metrics
}

// FillEvent reports a new absolute FilledStake for an order, which may be
// the position's current active order or a recently-cancelled one.
type FillEvent struct {
	PositionID     uuid.UUID
	OrderID        string
	NewFilledStake *big.Int // wire units, absolute (not a delta)
}

// OperatorEditEvent carries an operator-requested change to position settings.
type OperatorEditEvent struct {
	PositionID uuid.UUID
	Patch      PositionPatch
}

// OperatorCloseEvent requests that a position cancel its order and terminate.
type OperatorCloseEvent struct {
	PositionID uuid.UUID
}

// NotificationKind tags what changed in a PositionNotification.
type NotificationKind string

const (
	NotifyOrderPosted     NotificationKind = "order_posted"
	NotifyOrderCancelled  NotificationKind = "order_cancelled"
	NotifyStatusChanged   NotificationKind = "status_changed"
	NotifyFillCredited    NotificationKind = "fill_credited"
)

// PositionNotification is pushed to the operator surface's live event feed
// whenever the controller changes a position's order or lifecycle status.
// It carries enough of the position to refresh a dashboard row without a
// follow-up getPosition call.
type PositionNotification struct {
	Kind        NotificationKind
	PositionID  uuid.UUID
	MarketID    string
	Status      PositionStatus
	OrderStatus OrderStatus
	FilledStake *big.Int
	Timestamp   time.Time
}
