// Package stakemath implements the stake-arithmetic conversions used by the
// Order Book Mirror and the Position Controller: nominal-to-wire stake
// conversion and the remaining-taker-capacity formula. All computation is
// done with math/big so intermediate products never truncate beyond the
// spec-mandated single final integer divide.
package stakemath

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Params bundles the venue constant nominal stake conversions need.
type Params struct {
	StakeUnit *big.Int
}

// WireOfNominal converts a human-facing stake amount to wire units.
func (p Params) WireOfNominal(nominal decimal.Decimal) *big.Int {
	unit := decimal.NewFromBigInt(p.StakeUnit, 0)
	return nominal.Mul(unit).Round(0).BigInt()
}

// NominalOfWire converts a wire-scale stake back to a human-facing amount.
// Lossy; display only.
func (p Params) NominalOfWire(wire *big.Int) decimal.Decimal {
	num := decimal.NewFromBigInt(wire, 0)
	den := decimal.NewFromBigInt(p.StakeUnit, 0)
	return num.Div(den)
}

// RemainingTakerCapacity computes the stake a taker could still absorb
// against a maker order: remainingMakerStake * (oddsUnit - makerOdds) / makerOdds,
// in stake wire units. oddsUnit is passed separately since stakemath has no
// dependency on oddsmath.Params.
func RemainingTakerCapacity(remainingMakerStake, makerOdds, oddsUnit *big.Int) *big.Int {
	if makerOdds.Sign() <= 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Sub(oddsUnit, makerOdds)
	numerator.Mul(numerator, remainingMakerStake)
	numerator.Div(numerator, makerOdds)
	return numerator
}
