package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farewatch/internal/model"
)

// AmadeusProvider is the quota key for the fare source.
const AmadeusProvider = "amadeus"

const (
	amadeusTokenPath  = "/v1/security/oauth2/token"
	amadeusOffersPath = "/v2/shopping/flight-offers"

	// Refresh the cached token slightly before the provider expires it.
	tokenExpirySlack = 30 * time.Second
)

// AmadeusOptions parameterise the authenticated fare source.
type AmadeusOptions struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Currency     string
	Timeout      time.Duration
	Retry        RetryPolicy
	UserAgent    string
}

// Amadeus fetches the cheapest offer for the monitored route via the
// Amadeus flight-offers API.
type Amadeus struct {
	opts    AmadeusOptions
	quota   QuotaGate
	logger  zerolog.Logger
	client  *http.Client
	baseURL string

	tokenMux    sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewAmadeus constructs the fare source.
func NewAmadeus(opts AmadeusOptions, quota QuotaGate, logger zerolog.Logger) *Amadeus {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://test.api.amadeus.com"
	}

	return &Amadeus{
		opts:    opts,
		quota:   quota,
		logger:  logger.With().Str("component", "amadeus_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchFare retrieves the cheapest current offer as a PriceQuote.
func (a *Amadeus) FetchFare(ctx context.Context, route model.Route) (model.PriceQuote, error) {
	if a.opts.ClientID == "" || a.opts.ClientSecret == "" {
		return model.PriceQuote{}, &Failure{
			Provider: AmadeusProvider,
			Kind:     KindAuth,
			Err:      errors.New("client credentials not configured"),
		}
	}

	var quote model.PriceQuote
	err := withRetry(ctx, a.opts.Retry, a.logger, func() error {
		q, err := a.fetchOnce(ctx, route)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		return model.PriceQuote{}, err
	}
	return quote, nil
}

func (a *Amadeus) fetchOnce(ctx context.Context, route model.Route) (model.PriceQuote, error) {
	now := time.Now().UTC()
	if !a.quota.Reserve(AmadeusProvider, now) {
		return model.PriceQuote{}, ErrQuotaExceeded
	}

	token, err := a.ensureToken(ctx)
	if err != nil {
		return model.PriceQuote{}, err
	}

	query := url.Values{}
	query.Set("originLocationCode", route.Origin)
	query.Set("destinationLocationCode", route.Destination)
	query.Set("departureDate", nextDepartureDate(now))
	query.Set("adults", "1")
	query.Set("currencyCode", a.currency())
	query.Set("max", "10")

	endpoint := a.baseURL + amadeusOffersPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.PriceQuote{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if ua := strings.TrimSpace(a.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := a.client.Do(req)
	a.quota.Commit(AmadeusProvider, now)
	if err != nil {
		return model.PriceQuote{}, transportFailure(AmadeusProvider, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.PriceQuote{}, transportFailure(AmadeusProvider, err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			// Token may have been revoked server-side; drop the cache so
			// the next attempt re-authenticates.
			a.dropToken()
		}
		return model.PriceQuote{}, httpFailure(AmadeusProvider, resp.StatusCode, payload)
	}

	return a.cheapestOffer(payload, route, now)
}

func (a *Amadeus) cheapestOffer(payload []byte, route model.Route, observedAt time.Time) (model.PriceQuote, error) {
	var res offersResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return model.PriceQuote{}, &Failure{Provider: AmadeusProvider, Kind: KindBadRequest, Err: err}
	}
	if len(res.Data) == 0 {
		return model.PriceQuote{}, &Failure{
			Provider: AmadeusProvider,
			Kind:     KindBadRequest,
			Err:      errors.New("no offers returned for route"),
		}
	}

	var (
		bestPrice   decimal.Decimal
		bestCarrier string
		found       bool
	)
	for _, offer := range res.Data {
		price, err := decimal.NewFromString(offer.Price.Total)
		if err != nil || price.IsNegative() {
			continue
		}
		if !found || price.LessThan(bestPrice) {
			bestPrice = price
			bestCarrier = offer.firstCarrier()
			found = true
		}
	}
	if !found {
		return model.PriceQuote{}, &Failure{
			Provider: AmadeusProvider,
			Kind:     KindBadRequest,
			Err:      errors.New("offers carried no parsable price"),
		}
	}

	return model.PriceQuote{
		Origin:      route.Origin,
		Destination: route.Destination,
		CarrierCode: bestCarrier,
		Price:       bestPrice,
		Currency:    a.currency(),
		ObservedAt:  observedAt,
		SourceID:    AmadeusProvider,
	}, nil
}

func (a *Amadeus) ensureToken(ctx context.Context) (string, error) {
	a.tokenMux.Lock()
	defer a.tokenMux.Unlock()

	if a.token != "" && time.Now().Before(a.tokenExpiry) {
		return a.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.opts.ClientID)
	form.Set("client_secret", a.opts.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+amadeusTokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", transportFailure(AmadeusProvider, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportFailure(AmadeusProvider, err)
	}
	if resp.StatusCode != http.StatusOK {
		failure := httpFailure(AmadeusProvider, resp.StatusCode, payload)
		// A rejected credential grant is an auth failure regardless of the
		// exact 4xx the provider chooses.
		if failure.Kind == KindBadRequest {
			failure.Kind = KindAuth
		}
		return "", failure
	}

	var token tokenResponse
	if err := json.Unmarshal(payload, &token); err != nil {
		return "", &Failure{Provider: AmadeusProvider, Kind: KindAuth, Err: err}
	}
	if token.AccessToken == "" {
		return "", &Failure{Provider: AmadeusProvider, Kind: KindAuth, Err: errors.New("empty access token")}
	}

	a.token = token.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenExpirySlack)
	return a.token, nil
}

func (a *Amadeus) dropToken() {
	a.tokenMux.Lock()
	a.token = ""
	a.tokenMux.Unlock()
}

func (a *Amadeus) currency() string {
	if a.opts.Currency != "" {
		return a.opts.Currency
	}
	return "BRL"
}

// nextDepartureDate picks the upcoming Monday, when the route typically has
// the most scheduled flights.
func nextDepartureDate(now time.Time) string {
	daysAhead := (int(time.Monday) - int(now.Weekday()) + 7) % 7
	if daysAhead == 0 {
		daysAhead = 7
	}
	return now.AddDate(0, 0, daysAhead).Format("2006-01-02")
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type offersResponse struct {
	Data []flightOffer `json:"data"`
}

type flightOffer struct {
	Price struct {
		Total string `json:"total"`
	} `json:"price"`
	Itineraries []struct {
		Segments []struct {
			CarrierCode string `json:"carrierCode"`
		} `json:"segments"`
	} `json:"itineraries"`
}

func (o flightOffer) firstCarrier() string {
	if len(o.Itineraries) > 0 && len(o.Itineraries[0].Segments) > 0 {
		return o.Itineraries[0].Segments[0].CarrierCode
	}
	return ""
}

var _ FareSource = (*Amadeus)(nil)
