package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/model"
)

var testRoute = model.Route{Origin: "GRU", Destination: "REC"}

func TestFingerprintStableWithinBucket(t *testing.T) {
	bucket := decimal.NewFromInt(10)

	a := Fingerprint(testRoute, decimal.NewFromFloat(289.00), bucket, model.RatingExcellent)
	b := Fingerprint(testRoute, decimal.NewFromFloat(283.50), bucket, model.RatingExcellent)
	if a != b {
		t.Fatal("同一价格桶内指纹应一致")
	}

	c := Fingerprint(testRoute, decimal.NewFromFloat(295.00), bucket, model.RatingExcellent)
	if a == c {
		t.Fatal("跨价格桶指纹应不同")
	}
}

func TestFingerprintVariesByRating(t *testing.T) {
	bucket := decimal.NewFromInt(10)
	price := decimal.NewFromInt(289)

	a := Fingerprint(testRoute, price, bucket, model.RatingExcellent)
	b := Fingerprint(testRoute, price, bucket, model.RatingGood)
	if a == b {
		t.Fatal("评级不同指纹应不同")
	}
}

type memSeenStore struct {
	records map[string]model.SeenRecord
}

func newMemSeenStore() *memSeenStore {
	return &memSeenStore{records: make(map[string]model.SeenRecord)}
}

func (m *memSeenStore) GetSeen(_ context.Context, fingerprint string) (*model.SeenRecord, error) {
	record, ok := m.records[fingerprint]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *memSeenStore) UpsertSeen(_ context.Context, record model.SeenRecord) error {
	m.records[record.Fingerprint] = record
	return nil
}

func TestStoreGateSuppressesWithinWindow(t *testing.T) {
	store := newMemSeenStore()
	gate := NewStoreGate(store, 24*time.Hour)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	emit, err := gate.ShouldEmit(context.Background(), "fp", now)
	if err != nil || !emit {
		t.Fatalf("首次出现应放行: emit=%v err=%v", emit, err)
	}

	emit, err = gate.ShouldEmit(context.Background(), "fp", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("窗口内查询不应报错: %v", err)
	}
	if emit {
		t.Fatal("窗口内的重复指纹应被抑制")
	}

	emit, err = gate.ShouldEmit(context.Background(), "fp", now.Add(25*time.Hour))
	if err != nil || !emit {
		t.Fatalf("窗口过期后应重新放行: emit=%v err=%v", emit, err)
	}
}
