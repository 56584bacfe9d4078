package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/model"
)

var testRoute = model.Route{Origin: "GRU", Destination: "REC"}

func amadeusServer(t *testing.T, offersHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(amadeusTokenPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("token 请求应为 POST, 实际 %s", r.Method)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 1800})
	})
	mux.HandleFunc(amadeusOffersPath, offersHandler)
	return httptest.NewServer(mux)
}

func offersPayload(prices ...string) map[string]any {
	data := make([]map[string]any, 0, len(prices))
	for _, price := range prices {
		data = append(data, map[string]any{
			"price": map[string]string{"total": price},
			"itineraries": []map[string]any{
				{"segments": []map[string]string{{"carrierCode": "G3"}}},
			},
		})
	}
	return map[string]any{"data": data}
}

func newTestAmadeus(baseURL string, quota QuotaGate) *Amadeus {
	return NewAmadeus(AmadeusOptions{
		BaseURL:      baseURL,
		ClientID:     "id",
		ClientSecret: "secret",
		Currency:     "BRL",
		Timeout:      time.Second,
		Retry:        RetryPolicy{MaxRetries: 1, Backoff: time.Millisecond},
	}, quota, noopLogger())
}

func TestAmadeusMissingCredentials(t *testing.T) {
	a := NewAmadeus(AmadeusOptions{}, &stubQuota{allow: true}, noopLogger())

	_, err := a.FetchFare(context.Background(), testRoute)
	var failure *Failure
	if !errors.As(err, &failure) || failure.Kind != KindAuth {
		t.Fatalf("缺少凭据应返回认证失败, 实际 %v", err)
	}
}

func TestAmadeusQuotaExhausted(t *testing.T) {
	a := newTestAmadeus("http://localhost:1", &stubQuota{allow: false})

	_, err := a.FetchFare(context.Background(), testRoute)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("预算耗尽应返回 ErrQuotaExceeded, 实际 %v", err)
	}
}

func TestAmadeusFetchCheapestOffer(t *testing.T) {
	quota := &stubQuota{allow: true}
	srv := amadeusServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Fatalf("应携带 Bearer token, 实际 %q", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Get("originLocationCode") != "GRU" {
			t.Fatalf("出发地参数错误: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(offersPayload("412.30", "289.90", "305.00"))
	})
	defer srv.Close()

	a := newTestAmadeus(srv.URL, quota)
	quote, err := a.FetchFare(context.Background(), testRoute)
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}

	if !quote.Price.Equal(decimal.NewFromFloat(289.90)) {
		t.Fatalf("应选取最便宜报价 289.90, 实际 %s", quote.Price)
	}
	if quote.CarrierCode != "G3" || quote.SourceID != AmadeusProvider {
		t.Fatalf("报价元数据错误: %+v", quote)
	}
	if quota.commits != 1 {
		t.Fatalf("每次到达网络的调用应提交一次配额, 实际 %d", quota.commits)
	}
}

func TestAmadeusRetriesTransient(t *testing.T) {
	calls := 0
	srv := amadeusServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(offersPayload("300.00"))
	})
	defer srv.Close()

	a := newTestAmadeus(srv.URL, &stubQuota{allow: true})
	if _, err := a.FetchFare(context.Background(), testRoute); err != nil {
		t.Fatalf("5xx 后重试成功不应报错: %v", err)
	}
	if calls != 2 {
		t.Fatalf("期望重试一次共 2 次调用, 实际 %d", calls)
	}
}

func TestAmadeusNoRetryOnBadRequest(t *testing.T) {
	calls := 0
	srv := amadeusServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	})
	defer srv.Close()

	a := newTestAmadeus(srv.URL, &stubQuota{allow: true})
	_, err := a.FetchFare(context.Background(), testRoute)

	var failure *Failure
	if !errors.As(err, &failure) || failure.Kind != KindBadRequest {
		t.Fatalf("400 应分类为 BadRequest, 实际 %v", err)
	}
	if calls != 1 {
		t.Fatalf("永久失败不应重试, 实际 %d 次调用", calls)
	}
}

func TestAmadeusEmptyOffers(t *testing.T) {
	srv := amadeusServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})
	defer srv.Close()

	a := newTestAmadeus(srv.URL, &stubQuota{allow: true})
	if _, err := a.FetchFare(context.Background(), testRoute); err == nil {
		t.Fatal("空报价列表应返回错误")
	}
}

func TestNextDepartureDateIsMonday(t *testing.T) {
	for day := 0; day < 7; day++ {
		now := time.Date(2025, 6, 8+day, 10, 0, 0, 0, time.UTC)
		departure, err := time.Parse("2006-01-02", nextDepartureDate(now))
		if err != nil {
			t.Fatalf("日期格式错误: %v", err)
		}
		if departure.Weekday() != time.Monday {
			t.Fatalf("出发日应为周一, 实际 %s", departure.Weekday())
		}
		if !departure.After(now.Truncate(24 * time.Hour)) {
			t.Fatalf("出发日应在未来: now=%s departure=%s", now, departure)
		}
	}
}
