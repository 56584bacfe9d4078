package miles

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEvaluateBestIsWorthIt(t *testing.T) {
	valuator := NewValuator(DefaultPrograms())

	options, best := valuator.Evaluate(decimal.NewFromInt(800))
	if len(options) != len(DefaultPrograms()) {
		t.Fatalf("每个计划应产生一个选项, 实际 %d", len(options))
	}
	if best == nil {
		t.Fatal("800 的票价应存在划算的里程兑换")
	}
	if !best.WorthIt {
		t.Fatal("best 选项必须是划算的")
	}
	for _, option := range options {
		if option.WorthIt && option.EffectiveCost.LessThan(best.EffectiveCost) {
			t.Fatalf("存在成本更低的划算选项: %s", option.Program)
		}
	}
}

func TestEvaluateNoneWorthIt(t *testing.T) {
	valuator := NewValuator(DefaultPrograms())

	_, best := valuator.Evaluate(decimal.NewFromInt(250))
	if best != nil {
		t.Fatalf("低票价下不应推荐里程兑换, 实际推荐 %s", best.Program)
	}
}

func TestMilesForClampedToMinimum(t *testing.T) {
	program := Program{
		Name:       "Test",
		PointValue: decimal.NewFromFloat(0.02),
		Fees:       decimal.NewFromInt(100),
		MinMiles:   30000,
		Brackets:   bracketTable(20),
	}

	if got := program.milesFor(decimal.NewFromInt(100)); got != 30000 {
		t.Fatalf("低于表格下限应钳制到 MinMiles, 实际 %d", got)
	}
}

func TestMilesForMonotonic(t *testing.T) {
	program := DefaultPrograms()[0]

	prev := int64(0)
	for price := int64(100); price <= 1200; price += 50 {
		got := program.milesFor(decimal.NewFromInt(price))
		if got < prev {
			t.Fatalf("里程需求应随价格单调不减: price=%d miles=%d prev=%d", price, got, prev)
		}
		prev = got
	}
}

func TestMilesForInterpolates(t *testing.T) {
	program := Program{
		Name:       "Test",
		PointValue: decimal.NewFromFloat(0.02),
		Fees:       decimal.NewFromInt(100),
		MinMiles:   1000,
		Brackets: []Bracket{
			{Price: decimal.NewFromInt(200), Miles: 4000},
			{Price: decimal.NewFromInt(400), Miles: 8000},
		},
	}

	if got := program.milesFor(decimal.NewFromInt(300)); got != 6000 {
		t.Fatalf("区间中点应线性插值为 6000, 实际 %d", got)
	}
}
