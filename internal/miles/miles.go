// Package miles values frequent-flyer redemptions against cash prices.
package miles

import (
	"github.com/shopspring/decimal"

	"farewatch/internal/model"
)

// Bracket anchors the miles required at a given cash price.
type Bracket struct {
	Price decimal.Decimal
	Miles int64
}

// Program describes one mileage program's redemption table. Brackets must
// carry strictly increasing prices and non-decreasing miles.
type Program struct {
	Name       string
	PointValue decimal.Decimal
	Fees       decimal.Decimal
	MinMiles   int64
	Brackets   []Bracket
}

// DefaultPrograms returns the four Brazilian programs with their typical
// redemption rates.
func DefaultPrograms() []Program {
	return []Program{
		{
			Name:       "Smiles",
			PointValue: decimal.NewFromFloat(0.015),
			Fees:       decimal.NewFromInt(120),
			MinMiles:   15000,
			Brackets:   bracketTable(25),
		},
		{
			Name:       "TudoAzul",
			PointValue: decimal.NewFromFloat(0.016),
			Fees:       decimal.NewFromInt(140),
			MinMiles:   12000,
			Brackets:   bracketTable(22),
		},
		{
			Name:       "LATAM Pass",
			PointValue: decimal.NewFromFloat(0.018),
			Fees:       decimal.NewFromInt(100),
			MinMiles:   17000,
			Brackets:   bracketTable(20),
		},
		{
			Name:       "Livelo",
			PointValue: decimal.NewFromFloat(0.012),
			Fees:       decimal.NewFromInt(80),
			MinMiles:   20000,
			Brackets:   bracketTable(30),
		},
	}
}

// bracketTable derives anchors at round fare levels from a miles-per-unit
// rate.
func bracketTable(milesPerUnit int64) []Bracket {
	anchors := []int64{200, 400, 600, 800, 1000}
	brackets := make([]Bracket, 0, len(anchors))
	for _, price := range anchors {
		brackets = append(brackets, Bracket{
			Price: decimal.NewFromInt(price),
			Miles: price * milesPerUnit,
		})
	}
	return brackets
}

// Valuator evaluates configured programs against a cash price.
type Valuator struct {
	programs []Program
}

// NewValuator constructs a valuator over the given programs.
func NewValuator(programs []Program) *Valuator {
	return &Valuator{programs: programs}
}

// Evaluate returns one option per program plus the best worthwhile option,
// or nil when no redemption beats paying cash.
func (v *Valuator) Evaluate(cashPrice decimal.Decimal) ([]model.MilesOption, *model.MilesOption) {
	options := make([]model.MilesOption, 0, len(v.programs))
	var best *model.MilesOption

	for _, program := range v.programs {
		required := program.milesFor(cashPrice)
		effective := decimal.NewFromInt(required).Mul(program.PointValue).Add(program.Fees)

		option := model.MilesOption{
			Program:       program.Name,
			MilesRequired: required,
			CashFees:      program.Fees,
			EffectiveCost: effective,
			WorthIt:       effective.LessThan(cashPrice),
		}
		options = append(options, option)

		if option.WorthIt && (best == nil || option.EffectiveCost.LessThan(best.EffectiveCost)) {
			chosen := option
			best = &chosen
		}
	}

	return options, best
}

// milesFor interpolates the redemption table at the given cash price and
// clamps to the program minimum. Prices outside the table take the nearest
// anchor, which keeps the mapping monotonic.
func (p Program) milesFor(cashPrice decimal.Decimal) int64 {
	brackets := p.Brackets
	miles := int64(0)

	switch {
	case len(brackets) == 0:
		miles = 0
	case !cashPrice.GreaterThan(brackets[0].Price):
		miles = brackets[0].Miles
	case !cashPrice.LessThan(brackets[len(brackets)-1].Price):
		miles = brackets[len(brackets)-1].Miles
	default:
		for i := 1; i < len(brackets); i++ {
			lo, hi := brackets[i-1], brackets[i]
			if cashPrice.GreaterThan(hi.Price) {
				continue
			}
			span := hi.Price.Sub(lo.Price)
			offset := cashPrice.Sub(lo.Price)
			delta := decimal.NewFromInt(hi.Miles - lo.Miles).Mul(offset).Div(span)
			miles = lo.Miles + delta.IntPart()
			break
		}
	}

	if miles < p.MinMiles {
		miles = p.MinMiles
	}
	return miles
}
