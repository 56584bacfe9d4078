package scoring

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/baseline"
	"farewatch/internal/model"
)

func seededBaseline(now time.Time, prices ...int64) *baseline.Baseline {
	b := baseline.New(30 * 24 * time.Hour)
	for i, price := range prices {
		b.Append(model.PriceQuote{
			Origin:      "GRU",
			Destination: "REC",
			Price:       decimal.NewFromInt(price),
			Currency:    "BRL",
			ObservedAt:  now.Add(time.Duration(-i-1) * time.Hour),
			SourceID:    "amadeus",
		})
	}
	return b
}

func sampleQuote(price int64, at time.Time) model.PriceQuote {
	return model.PriceQuote{
		Origin:      "GRU",
		Destination: "REC",
		Price:       decimal.NewFromInt(price),
		Currency:    "BRL",
		ObservedAt:  at,
		SourceID:    "amadeus",
	}
}

func TestScoreExcellent(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	b := seededBaseline(now, 420, 420, 420)

	offer, err := NewScorer(DefaultThresholds()).Score(sampleQuote(289, now), b)
	if err != nil {
		t.Fatalf("评分不应失败: %v", err)
	}

	if offer.Rating != model.RatingExcellent {
		t.Fatalf("289 对 420 应评为 EXCELLENT, 实际 %s", offer.Rating)
	}
	if !offer.SavingsAmount.Equal(decimal.NewFromInt(131)) {
		t.Fatalf("节省金额应为 131, 实际 %s", offer.SavingsAmount)
	}
}

func TestScoreGood(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	b := seededBaseline(now, 500, 500, 500)

	offer, err := NewScorer(DefaultThresholds()).Score(sampleQuote(410, now), b)
	if err != nil {
		t.Fatalf("评分不应失败: %v", err)
	}
	if offer.Rating != model.RatingGood {
		t.Fatalf("410 对 500 应评为 GOOD, 实际 %s", offer.Rating)
	}
}

func TestScoreRegularAndPoor(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	b := seededBaseline(now, 400, 400, 400)

	offer, err := NewScorer(DefaultThresholds()).Score(sampleQuote(395, now), b)
	if err != nil {
		t.Fatalf("评分不应失败: %v", err)
	}
	if offer.Rating != model.RatingRegular {
		t.Fatalf("小幅低于基准应评为 REGULAR, 实际 %s", offer.Rating)
	}

	offer, err = NewScorer(DefaultThresholds()).Score(sampleQuote(450, now), b)
	if err != nil {
		t.Fatalf("评分不应失败: %v", err)
	}
	if offer.Rating != model.RatingPoor {
		t.Fatalf("高于基准应评为 POOR, 实际 %s", offer.Rating)
	}
}

func TestScoreInsufficientHistory(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	b := baseline.New(30 * 24 * time.Hour)

	_, err := NewScorer(DefaultThresholds()).Score(sampleQuote(289, now), b)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("空基线应返回 ErrInsufficientHistory, 实际 %v", err)
	}
}
