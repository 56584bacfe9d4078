package quota

import (
	"testing"
	"time"
)

func TestReserveUntilExhausted(t *testing.T) {
	tracker := NewTracker(map[string]int{"amadeus": 2})
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if !tracker.Reserve("amadeus", now) {
			t.Fatalf("第 %d 次调用前预算应充足", i+1)
		}
		tracker.Commit("amadeus", now)
	}

	if tracker.Reserve("amadeus", now) {
		t.Fatal("预算耗尽后 Reserve 应返回 false")
	}
}

func TestUnlimitedProvider(t *testing.T) {
	tracker := NewTracker(map[string]int{})
	now := time.Now().UTC()

	for i := 0; i < 100; i++ {
		if !tracker.Reserve("opensky", now) {
			t.Fatal("未配置限额的 provider 应视为无限制")
		}
		tracker.Commit("opensky", now)
	}
}

func TestMonthlyRollover(t *testing.T) {
	tracker := NewTracker(map[string]int{"amadeus": 1})
	june := time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC)
	july := time.Date(2025, 7, 1, 0, 30, 0, 0, time.UTC)

	if !tracker.Reserve("amadeus", june) {
		t.Fatal("六月首次调用应放行")
	}
	tracker.Commit("amadeus", june)

	if tracker.Reserve("amadeus", june) {
		t.Fatal("六月预算应已耗尽")
	}

	if !tracker.Reserve("amadeus", july) {
		t.Fatal("进入七月后计数应归零")
	}
}

func TestRestoreOverlaysCounters(t *testing.T) {
	tracker := NewTracker(map[string]int{"amadeus": 10})
	period := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tracker.Restore([]Usage{{Provider: "amadeus", Used: 10, PeriodStart: period}})

	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	if tracker.Reserve("amadeus", now) {
		t.Fatal("恢复后的计数应使预算耗尽")
	}

	snapshot := tracker.Snapshot()
	if len(snapshot) != 1 || snapshot[0].Used != 10 {
		t.Fatalf("快照不符合预期: %#v", snapshot)
	}
}
