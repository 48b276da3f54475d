package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-settlement/internal/trade"
	"trade-settlement/internal/version"
)

const (
	latestPath      = "/latest"
	defaultBaseURL  = "https://api.exchangerate.host"
	defaultTimeout  = 5 * time.Second
	sourceName      = "exchangerate"
	maxErrorPayload = 512
)

// HTTPOptions parameterise the HTTP rate source.
type HTTPOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
	Clock     Clock
}

// HTTP fetches rates from an exchangerate.host style `latest` endpoint.
type HTTP struct {
	opts    HTTPOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string

	mu   sync.Mutex
	last *trade.Quote
}

// NewHTTP constructs an HTTP quoter.
func NewHTTP(opts HTTPOptions, logger zerolog.Logger) *HTTP {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &HTTP{
		opts:    opts,
		logger:  logger.With().Str("component", "rate_quoter").Logger(),
		client:  &http.Client{Timeout: opts.Timeout},
		baseURL: baseURL,
	}
}

// Quote fetches the rate for pair. Every failure matches trade.ErrRateUnavailable,
// except empty codes which match trade.ErrInvalidRequest and never leave the process.
func (h *HTTP) Quote(ctx context.Context, pair trade.Pair) (trade.Quote, error) {
	pair = trade.NewPair(pair.Base, pair.Quote)
	if err := pair.Validate(); err != nil {
		return trade.Quote{}, err
	}

	rates, fetchedAt, err := h.fetch(ctx, pair.Base, []string{pair.Quote})
	if err != nil {
		return trade.Quote{}, err
	}

	rate, ok := rates[pair.Quote]
	if !ok {
		return trade.Quote{}, trade.RateUnavailable("source has no rate for %s", pair)
	}
	if !rate.IsPositive() {
		return trade.Quote{}, trade.RateUnavailable("source returned non-positive rate %s for %s", rate, pair)
	}

	q := trade.Quote{Pair: pair, Rate: rate, FetchedAt: fetchedAt, Source: sourceName}

	h.mu.Lock()
	h.last = &q
	h.mu.Unlock()

	h.logger.Debug().Str("pair", pair.String()).Str("rate", rate.String()).Msg("quote fetched")
	return q, nil
}

// Last returns the most recently fetched quote.
func (h *HTTP) Last() (trade.Quote, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return trade.Quote{}, false
	}
	return *h.last, true
}

// Rates fetches several symbols against base. Symbols missing from the response are omitted.
func (h *HTTP) Rates(ctx context.Context, base string, symbols []string) (map[string]decimal.Decimal, time.Time, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		return nil, time.Time{}, &trade.ValidationError{Field: "base", Reason: "is required"}
	}
	return h.fetch(ctx, base, symbols)
}

func (h *HTTP) fetch(ctx context.Context, base string, symbols []string) (map[string]decimal.Decimal, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancel()

	query := url.Values{}
	query.Set("base", base)
	if len(symbols) > 0 {
		query.Set("symbols", strings.Join(upperAll(symbols), ","))
	}
	if h.opts.APIKey != "" {
		query.Set("access_key", h.opts.APIKey)
	}

	endpoint := h.baseURL + latestPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, time.Time{}, trade.RateUnavailable("build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, time.Time{}, trade.RateUnavailable("source unreachable: %v", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, time.Time{}, trade.RateUnavailable("read response: %v", err)
	}
	fetchedAt := h.opts.Clock.now()

	if resp.StatusCode != http.StatusOK {
		return nil, time.Time{}, parseHTTPError(resp.StatusCode, payload)
	}

	var body latestResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, time.Time{}, trade.RateUnavailable("decode response: %v", err)
	}
	if body.Success != nil && !*body.Success {
		return nil, time.Time{}, trade.RateUnavailable("source error: %s", body.Error.describe())
	}
	if body.Rates == nil {
		return nil, time.Time{}, trade.RateUnavailable("source response has no rates")
	}
	return body.Rates, fetchedAt, nil
}

type latestResponse struct {
	Success *bool                      `json:"success"`
	Base    string                     `json:"base"`
	Date    string                     `json:"date"`
	Rates   map[string]decimal.Decimal `json:"rates"`
	Error   sourceError                `json:"error"`
}

type sourceError struct {
	Code int    `json:"code"`
	Type string `json:"type"`
	Info string `json:"info"`
}

func (e sourceError) describe() string {
	switch {
	case e.Info != "":
		return e.Info
	case e.Type != "":
		return e.Type
	case e.Code != 0:
		return fmt.Sprintf("code %d", e.Code)
	default:
		return "unknown"
	}
}

func parseHTTPError(status int, payload []byte) error {
	var body struct {
		Error   sourceError `json:"error"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		if body.Message != "" {
			return trade.RateUnavailable("source status %d: %s", status, body.Message)
		}
		if desc := body.Error.describe(); desc != "unknown" {
			return trade.RateUnavailable("source status %d: %s", status, desc)
		}
	}
	text := strings.TrimSpace(string(payload))
	if len(text) > maxErrorPayload {
		text = text[:maxErrorPayload]
	}
	if text != "" {
		return trade.RateUnavailable("source status %d: %s", status, text)
	}
	return trade.RateUnavailable("source status %d", status)
}

func upperAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var (
	_ Quoter      = (*HTTP)(nil)
	_ BoardSource = (*HTTP)(nil)
)
