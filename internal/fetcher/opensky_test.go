package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"farewatch/internal/model"
)

func statesPayload(count int) map[string]any {
	states := make([]any, 0, count)
	for i := 0; i < count; i++ {
		states = append(states, []any{"icao", "callsign"})
	}
	return map[string]any{"time": 0, "states": states}
}

func newTestOpenSky(baseURL string, quota QuotaGate) *OpenSky {
	return NewOpenSky(OpenSkyOptions{
		BaseURL: baseURL,
		Box:     BoundingBox{LatMin: -8.5, LatMax: -7.5, LonMin: -35.5, LonMax: -34.5},
		Timeout: time.Second,
		Retry:   RetryPolicy{MaxRetries: 0, Backoff: time.Millisecond},
	}, quota, noopLogger())
}

func TestOpenSkyFetchTraffic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("lamin") != "-8.5" || query.Get("lomax") != "-34.5" {
			t.Fatalf("边界框参数错误: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(statesPayload(9))
	}))
	defer srv.Close()

	o := newTestOpenSky(srv.URL, &stubQuota{allow: true})
	reading, err := o.FetchTraffic(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}

	if reading.AircraftCount != 9 {
		t.Fatalf("航班数应为 9, 实际 %d", reading.AircraftCount)
	}
	if reading.Congestion != model.CongestionModerate {
		t.Fatalf("9 架应归为 moderate, 实际 %s", reading.Congestion)
	}
}

func TestOpenSkyQuotaExhausted(t *testing.T) {
	o := newTestOpenSky("http://localhost:1", &stubQuota{allow: false})

	_, err := o.FetchTraffic(context.Background())
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("预算耗尽应返回 ErrQuotaExceeded, 实际 %v", err)
	}
}

func TestClassifyCongestion(t *testing.T) {
	cases := map[int]model.CongestionLevel{
		0:  model.CongestionQuiet,
		2:  model.CongestionQuiet,
		3:  model.CongestionLow,
		7:  model.CongestionLow,
		8:  model.CongestionModerate,
		14: model.CongestionModerate,
		15: model.CongestionHigh,
		40: model.CongestionHigh,
	}
	for count, want := range cases {
		if got := classifyCongestion(count); got != want {
			t.Fatalf("%d 架分类错误: 期望 %s 实际 %s", count, want, got)
		}
	}
}
