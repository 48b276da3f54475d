// Package notify announces settled trades.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trade-settlement/internal/trade"
)

// Settlement describes a trade that reached the settled state.
type Settlement struct {
	SessionID string
	Record    trade.Record
	SettledAt time.Time
}

// Notifier delivers settlement messages.
type Notifier interface {
	Notify(ctx context.Context, s Settlement) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
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
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Notify calls sendMessage with a rendered settlement summary.
func (n *TelegramNotifier) Notify(ctx context.Context, s Settlement) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(s),
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
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Info().Str("trade_id", s.Record.ID).Str("session_id", s.SessionID).Msg("settlement notification sent")
	return nil
}

func renderMessage(s Settlement) string {
	rec := s.Record
	builder := strings.Builder{}
	builder.WriteString("[Trade Settled]\n")
	builder.WriteString(fmt.Sprintf("Trade: %s\n", rec.ID))
	if s.SessionID != "" {
		builder.WriteString(fmt.Sprintf("Session: %s\n", s.SessionID))
	}
	builder.WriteString(fmt.Sprintf("Pair: %s/%s\n", rec.Base, rec.Quote))
	builder.WriteString(fmt.Sprintf("Amount: %s %s -> %s %s\n", rec.OriginalAmount.String(), rec.Base, rec.ConvertedAmount.StringFixed(trade.AmountPlaces), rec.Quote))
	builder.WriteString(fmt.Sprintf("Rate: %s\n", rec.Rate.String()))
	builder.WriteString(fmt.Sprintf("Settled: %s UTC\n", s.SettledAt.UTC().Format(time.RFC3339)))
	if rec.Fallback() {
		builder.WriteString("Note: fallback record, not confirmed by the executor\n")
	}
	return builder.String()
}

// Nop drops every notification.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Settlement) error { return nil }

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = Nop{}
)
