// Package execclient calls a remote trade execution endpoint.
package execclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trade-settlement/internal/auth"
	"trade-settlement/internal/trade"
	"trade-settlement/internal/version"
	"trade-settlement/internal/workflow"
)

const (
	tradesPath      = "/api/trades"
	defaultTimeout  = 10 * time.Second
	maxErrorPayload = 512
)

// Options configure the client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client posts trade requests with the caller's bearer credential.
type Client struct {
	endpoint  string
	userAgent string
	client    *http.Client
	logger    zerolog.Logger
}

// New constructs a Client for opts.BaseURL.
func New(opts Options, logger zerolog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("execclient: base url not configured")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = version.UserAgent()
	}
	return &Client{
		endpoint:  base + tradesPath,
		userAgent: opts.UserAgent,
		client:    &http.Client{Timeout: opts.Timeout},
		logger:    logger.With().Str("component", "exec_client").Logger(),
	}, nil
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field"`
}

// Execute submits req. Invalid requests never leave the process; transport
// failures and timeouts surface as trade.ErrExecutionFailed.
func (c *Client) Execute(ctx context.Context, cred auth.Credential, req trade.Request) (trade.Record, error) {
	if err := req.Validate(); err != nil {
		return trade.Record{}, err
	}
	if err := cred.Check(time.Now()); err != nil {
		return trade.Record{}, err
	}

	body, err := json.Marshal(req.Normalise())
	if err != nil {
		return trade.Record{}, fmt.Errorf("marshal trade request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return trade.Record{}, trade.ExecutionFailed(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", cred.Header())
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn().Err(err).Msg("executor unreachable")
		return trade.Record{}, trade.ExecutionFailed(fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return trade.Record{}, trade.ExecutionFailed(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return trade.Record{}, parseHTTPError(resp.StatusCode, payload)
	}

	var rec trade.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return trade.Record{}, trade.ExecutionFailed(fmt.Errorf("decode record: %w", err))
	}
	if rec.ID == "" {
		return trade.Record{}, trade.ExecutionFailed(fmt.Errorf("record without trade id"))
	}
	if !rec.Rate.IsPositive() {
		return trade.Record{}, trade.ExecutionFailed(fmt.Errorf("record %s without a positive rate", rec.ID))
	}

	c.logger.Info().Str("trade_id", rec.ID).Msg("remote trade executed")
	return rec, nil
}

func parseHTTPError(status int, payload []byte) error {
	var body errorBody
	_ = json.Unmarshal(payload, &body)

	switch {
	case status == http.StatusBadRequest:
		if body.Field != "" {
			return &trade.ValidationError{Field: body.Field, Reason: "rejected by executor"}
		}
		return fmt.Errorf("%w: rejected by executor", trade.ErrInvalidRequest)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: rejected by executor", auth.ErrInvalidCredential)
	case status == http.StatusServiceUnavailable || body.Code == "rate_unavailable":
		return trade.RateUnavailable("executor status %d", status)
	}

	text := body.Error
	if text == "" {
		text = strings.TrimSpace(string(payload))
		if len(text) > maxErrorPayload {
			text = text[:maxErrorPayload]
		}
	}
	return trade.ExecutionFailed(fmt.Errorf("executor status %d: %s", status, text))
}

var _ workflow.TradeExecutor = (*Client)(nil)
