package decision

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/dedupe"
	"farewatch/internal/model"
)

var testRoute = model.Route{Origin: "GRU", Destination: "REC"}

func offerWith(price, reference int64, rating model.Rating) model.Offer {
	p := decimal.NewFromInt(price)
	ref := decimal.NewFromInt(reference)
	savings := ref.Sub(p)
	return model.Offer{
		Quote: model.PriceQuote{
			Origin:      "GRU",
			Destination: "REC",
			CarrierCode: "G3",
			Price:       p,
			Currency:    "BRL",
			ObservedAt:  time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
			SourceID:    "amadeus",
		},
		Rating:         rating,
		ReferencePrice: ref,
		SavingsAmount:  savings,
		SavingsPercent: savings.Div(ref),
	}
}

func TestDecideEmits(t *testing.T) {
	decider := New(testRoute, DefaultGates(), dedupe.NopGate{})
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	outcome, err := decider.Decide(context.Background(), offerWith(289, 420, model.RatingExcellent), nil, nil, nil, now)
	if err != nil {
		t.Fatalf("决策不应失败: %v", err)
	}
	if !outcome.Emit {
		t.Fatalf("289 对 420 的 EXCELLENT 报价应触发告警, 实际原因 %s", outcome.Reason)
	}
	if outcome.Event == nil || outcome.Event.ID.String() == "" {
		t.Fatal("触发时应生成带 ID 的事件")
	}
	if !outcome.Event.DecidedAt.Equal(now) {
		t.Fatal("事件应携带决策时间")
	}
}

func TestDecideRatingTooLow(t *testing.T) {
	decider := New(testRoute, DefaultGates(), dedupe.NopGate{})

	outcome, err := decider.Decide(context.Background(), offerWith(380, 400, model.RatingRegular), nil, nil, nil, time.Now().UTC())
	if err != nil {
		t.Fatalf("决策不应失败: %v", err)
	}
	if outcome.Emit || outcome.Reason != ReasonRatingTooLow {
		t.Fatalf("REGULAR 评级应被抑制, 实际 %+v", outcome)
	}
}

func TestDecideInsufficientSavings(t *testing.T) {
	decider := New(testRoute, DefaultGates(), dedupe.NopGate{})

	outcome, err := decider.Decide(context.Background(), offerWith(260, 300, model.RatingGood), nil, nil, nil, time.Now().UTC())
	if err != nil {
		t.Fatalf("决策不应失败: %v", err)
	}
	if outcome.Emit || outcome.Reason != ReasonInsufficientSavings {
		t.Fatalf("节省 40 低于下限应被抑制, 实际 %+v", outcome)
	}
}

func TestDecidePriceTooHigh(t *testing.T) {
	decider := New(testRoute, DefaultGates(), dedupe.NopGate{})

	outcome, err := decider.Decide(context.Background(), offerWith(520, 700, model.RatingGood), nil, nil, nil, time.Now().UTC())
	if err != nil {
		t.Fatalf("决策不应失败: %v", err)
	}
	if outcome.Emit || outcome.Reason != ReasonPriceTooHigh {
		t.Fatalf("价格超过上限应被抑制, 实际 %+v", outcome)
	}
}

type denyGate struct{}

func (denyGate) ShouldEmit(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

func TestDecideDuplicate(t *testing.T) {
	decider := New(testRoute, DefaultGates(), denyGate{})

	outcome, err := decider.Decide(context.Background(), offerWith(289, 420, model.RatingExcellent), nil, nil, nil, time.Now().UTC())
	if err != nil {
		t.Fatalf("决策不应失败: %v", err)
	}
	if outcome.Emit || outcome.Reason != ReasonDuplicate {
		t.Fatalf("去重门拒绝时应返回 duplicate, 实际 %+v", outcome)
	}
}
