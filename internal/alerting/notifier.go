package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farewatch/internal/model"
)

// Notifier delivers an alert event to an external channel.
type Notifier interface {
	Notify(ctx context.Context, event model.AlertEvent) error
}

// TelegramNotifier pushes alert messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify renders the event and calls the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, event model.AlertEvent) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(event),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram responded with status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("event_id", event.ID.String()).
		Str("rating", string(event.Offer.Rating)).
		Msg("alert delivered via telegram")
	return nil
}

func renderMessage(event model.AlertEvent) string {
	offer := event.Offer
	quote := offer.Quote

	builder := strings.Builder{}
	builder.WriteString("[Fare Alert]\n")
	builder.WriteString(fmt.Sprintf("Route: %s-%s", quote.Origin, quote.Destination))
	if quote.CarrierCode != "" {
		builder.WriteString(fmt.Sprintf(" (%s)", quote.CarrierCode))
	}
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Price: %s %s (%s)\n", quote.Price.StringFixed(2), quote.Currency, offer.Rating))
	builder.WriteString(fmt.Sprintf("Reference: %s %s\n", offer.ReferencePrice.StringFixed(2), quote.Currency))
	builder.WriteString(fmt.Sprintf("Savings: %s %s (%s%%)\n",
		offer.SavingsAmount.StringFixed(2), quote.Currency,
		offer.SavingsPercent.Mul(percentFactor).StringFixed(1)))

	if event.BestMiles != nil {
		best := event.BestMiles
		builder.WriteString(fmt.Sprintf("Miles: %s, %d miles + %s %s fees\n",
			best.Program, best.MilesRequired, best.CashFees.StringFixed(0), quote.Currency))
	} else {
		builder.WriteString("Miles: not recommended, pay cash\n")
	}

	if event.Traffic != nil {
		builder.WriteString(fmt.Sprintf("Traffic at destination: %s (%d aircraft)\n",
			event.Traffic.Congestion, event.Traffic.AircraftCount))
	}

	builder.WriteString(fmt.Sprintf("Observed: %s UTC\n", quote.ObservedAt.UTC().Format(time.RFC3339)))
	return builder.String()
}

var percentFactor = decimal.NewFromInt(100)

var _ Notifier = (*TelegramNotifier)(nil)
