package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"farewatch/internal/model"
)

// OpenSkyProvider is the quota key for the traffic source.
const OpenSkyProvider = "opensky"

const openSkyStatesPath = "/api/states/all"

// BoundingBox frames the airspace watched around the destination airport.
type BoundingBox struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// OpenSkyOptions parameterise the traffic-context source.
type OpenSkyOptions struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Box          BoundingBox
	Timeout      time.Duration
	Retry        RetryPolicy
}

// OpenSky counts aircraft over the destination region and classifies the
// congestion level. Anonymous access works with a reduced data rate;
// credentials raise the budget.
type OpenSky struct {
	opts    OpenSkyOptions
	quota   QuotaGate
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewOpenSky constructs the traffic source.
func NewOpenSky(opts OpenSkyOptions, quota QuotaGate, logger zerolog.Logger) *OpenSky {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://opensky-network.org"
	}

	return &OpenSky{
		opts:    opts,
		quota:   quota,
		logger:  logger.With().Str("component", "opensky_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchTraffic retrieves a traffic reading for the watched region.
func (o *OpenSky) FetchTraffic(ctx context.Context) (model.TrafficReading, error) {
	var reading model.TrafficReading
	err := withRetry(ctx, o.opts.Retry, o.logger, func() error {
		r, err := o.fetchOnce(ctx)
		if err != nil {
			return err
		}
		reading = r
		return nil
	})
	if err != nil {
		return model.TrafficReading{}, err
	}
	return reading, nil
}

func (o *OpenSky) fetchOnce(ctx context.Context) (model.TrafficReading, error) {
	now := time.Now().UTC()
	if !o.quota.Reserve(OpenSkyProvider, now) {
		return model.TrafficReading{}, ErrQuotaExceeded
	}

	box := o.opts.Box
	endpoint := fmt.Sprintf("%s%s?lamin=%g&lamax=%g&lomin=%g&lomax=%g",
		o.baseURL, openSkyStatesPath, box.LatMin, box.LatMax, box.LonMin, box.LonMax)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.TrafficReading{}, err
	}
	req.Header.Set("Accept", "application/json")
	if o.opts.ClientID != "" {
		req.SetBasicAuth(o.opts.ClientID, o.opts.ClientSecret)
	}

	resp, err := o.client.Do(req)
	o.quota.Commit(OpenSkyProvider, now)
	if err != nil {
		return model.TrafficReading{}, transportFailure(OpenSkyProvider, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.TrafficReading{}, transportFailure(OpenSkyProvider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.TrafficReading{}, httpFailure(OpenSkyProvider, resp.StatusCode, payload)
	}

	var states statesResponse
	if err := json.Unmarshal(payload, &states); err != nil {
		return model.TrafficReading{}, &Failure{Provider: OpenSkyProvider, Kind: KindBadRequest, Err: err}
	}

	count := len(states.States)
	return model.TrafficReading{
		AircraftCount: count,
		Congestion:    classifyCongestion(count),
		ObservedAt:    now,
		SourceID:      OpenSkyProvider,
	}, nil
}

// classifyCongestion buckets the aircraft count over the region.
func classifyCongestion(count int) model.CongestionLevel {
	switch {
	case count >= 15:
		return model.CongestionHigh
	case count >= 8:
		return model.CongestionModerate
	case count >= 3:
		return model.CongestionLow
	default:
		return model.CongestionQuiet
	}
}

type statesResponse struct {
	States []json.RawMessage `json:"states"`
}

var _ TrafficSource = (*OpenSky)(nil)
