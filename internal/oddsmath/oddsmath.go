// Package oddsmath implements the odds-arithmetic conversions used by the
// Order Book Mirror and the Position Controller: wire-scale fixed-point
// odds, ladder quantization, and premium application.
//
// Wire odds are integers in [0, OddsUnit), where OddsUnit is a venue
// constant representing 100% probability. All arithmetic that participates
// in order submission is done with math/big so it never overflows
// regardless of OddsUnit's magnitude; only the lossy, display-facing
// implied-probability conversion goes through shopspring/decimal.
package oddsmath

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/declansx/odds-maximizer-betting-bot/internal/coreerr"
)

// bpsUnit is the denominator basis-point premiums and vig-bps thresholds
// are expressed against.
const bpsUnit = 10_000

// Params bundles the venue constants every odds conversion needs.
type Params struct {
	OddsUnit   *big.Int
	LadderStep *big.Int
}

// ImpliedOfWire converts a wire-scale odds integer to an implied probability
// in [0, 1). Lossy; for display only, never for order submission.
func (p Params) ImpliedOfWire(x *big.Int) decimal.Decimal {
	num := decimal.NewFromBigInt(x, 0)
	den := decimal.NewFromBigInt(p.OddsUnit, 0)
	return num.Div(den)
}

// WireOfImplied converts an implied probability back to the nearest
// wire-scale integer. Lossy; the inverse of ImpliedOfWire used only for
// display round-tripping, never to produce an order's oddsWire directly.
func (p Params) WireOfImplied(prob decimal.Decimal) *big.Int {
	unit := decimal.NewFromBigInt(p.OddsUnit, 0)
	return prob.Mul(unit).Round(0).BigInt()
}

// QuantizeToLadder rounds x down to the nearest multiple of LadderStep.
// Fails with coreerr.ErrInvalidOdds if the result is 0 or >= OddsUnit.
func (p Params) QuantizeToLadder(x *big.Int) (*big.Int, error) {
	if x.Sign() <= 0 {
		return nil, fmt.Errorf("quantize %s: %w", x, coreerr.ErrInvalidOdds)
	}

	step := new(big.Int).Set(p.LadderStep)
	quantized := new(big.Int).Div(x, step)
	quantized.Mul(quantized, step)

	if quantized.Sign() <= 0 || quantized.Cmp(p.OddsUnit) >= 0 {
		return nil, fmt.Errorf("quantize %s to ladder step %s: %w", x, step, coreerr.ErrInvalidOdds)
	}
	return quantized, nil
}

// IsLadderValid reports whether x is a positive multiple of LadderStep
// strictly inside (0, OddsUnit).
func (p Params) IsLadderValid(x *big.Int) bool {
	if x.Sign() <= 0 || x.Cmp(p.OddsUnit) >= 0 {
		return false
	}
	mod := new(big.Int).Mod(x, p.LadderStep)
	return mod.Sign() == 0
}

// ApplyPremium computes takerOdds * (10000 - premiumBps) / 10000. The
// result is NOT guaranteed to be ladder-valid; callers must pass it through
// QuantizeToLadder before posting, per the controller's reconciliation
// algorithm.
func (p Params) ApplyPremium(takerOdds *big.Int, premiumBps int64) (*big.Int, error) {
	if premiumBps < 0 || premiumBps > bpsUnit-1 {
		return nil, fmt.Errorf("premiumBps %d out of range [0, %d): %w", premiumBps, bpsUnit, coreerr.ErrConfigInvalid)
	}

	factor := big.NewInt(bpsUnit - premiumBps)
	result := new(big.Int).Mul(takerOdds, factor)
	result.Div(result, big.NewInt(bpsUnit))
	return result, nil
}

// TakerOddsFromMakerOdds computes 1 - makerOdds in wire units, i.e.
// OddsUnit - makerOdds.
func (p Params) TakerOddsFromMakerOdds(makerOdds *big.Int) *big.Int {
	return new(big.Int).Sub(p.OddsUnit, makerOdds)
}

// VigBpsOf converts a wire-scale vig value (bestTakerOdds[A] + bestTakerOdds[B] - OddsUnit,
// scaled by OddsUnit) into basis points for comparison against a position's
// MaxVigBps threshold.
func (p Params) VigBpsOf(vig *big.Int) int64 {
	scaled := new(big.Int).Mul(vig, big.NewInt(bpsUnit))
	scaled.Div(scaled, p.OddsUnit)
	return scaled.Int64()
}
