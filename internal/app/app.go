package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"trade-settlement/internal/auth"
	"trade-settlement/internal/config"
	"trade-settlement/internal/events"
	"trade-settlement/internal/executor"
	"trade-settlement/internal/metrics"
	"trade-settlement/internal/notify"
	"trade-settlement/internal/quote"
	"trade-settlement/internal/session"
	"trade-settlement/internal/workflow"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newRateSource() *quote.HTTP {
	return quote.NewHTTP(quote.HTTPOptions{
		BaseURL:   a.Config.Quote.BaseURL,
		APIKey:    a.Config.Quote.APIKey,
		Timeout:   a.Config.Quote.RequestTimeout,
		UserAgent: a.Config.Quote.UserAgent,
	}, a.Logger)
}

func (a *App) newQuoter(m *metrics.Metrics) quote.Quoter {
	return metrics.InstrumentQuoter(a.newRateSource(), m)
}

func (a *App) newPublisher() (events.Publisher, error) {
	if !a.Config.Events.Enabled {
		return events.Nop{}, nil
	}
	pub, err := events.NewKafka(events.KafkaOptions{
		Brokers:      a.Config.Events.Brokers,
		Topic:        a.Config.Events.Topic,
		WriteTimeout: a.Config.Events.WriteTimeout,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("build kafka publisher: %w", err)
	}
	return pub, nil
}

func (a *App) newExecutor(q quote.Quoter, pub events.Publisher, m *metrics.Metrics) *executor.Executor {
	return executor.New(q, executor.Options{Publisher: pub, Metrics: m}, a.Logger)
}

func (a *App) newSessions(ctx context.Context) (session.Store, error) {
	cfg := a.Config.Session
	switch strings.ToLower(cfg.Backend) {
	case "redis":
		store, err := session.NewRedis(ctx, session.RedisOptions{
			URL:       cfg.RedisURL,
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.TTL,
			LockTTL:   cfg.LockTTL,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return session.NewMemory(cfg.TTL), nil
	}
}

func (a *App) newNotifier() notify.Notifier {
	if a.Config.Notify.Telegram.Enabled {
		cfg := a.Config.Notify.Telegram
		return notify.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return notify.Nop{}
}

func (a *App) newVerifier() (*auth.Verifier, error) {
	if a.Config.Auth.JWTSecret == "" {
		a.Logger.Warn().Msg("auth.jwt_secret not configured; authenticated routes will reject every request")
		return nil, nil
	}
	v, err := auth.NewVerifier(auth.VerifierOptions{
		Secret: a.Config.Auth.JWTSecret,
		Issuer: a.Config.Auth.Issuer,
		Leeway: a.Config.Auth.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("build verifier: %w", err)
	}
	return v, nil
}

func (a *App) workflowOptions(m *metrics.Metrics) workflow.Options {
	return workflow.Options{
		FreshnessWindow: a.Config.Workflow.FreshnessWindow,
		ExecutorTimeout: a.Config.Workflow.ExecutorTimeout,
		AllowFallback:   a.Config.Workflow.AllowFallback,
		Metrics:         m,
	}
}

func newMetrics() (*metrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return metrics.New(reg), reg
}

// TradeOptions configure the trade walkthrough.
type TradeOptions struct {
	From        string
	To          string
	Amount      string
	Interactive bool
}

// QuoteOptions configure a one-off quote.
type QuoteOptions struct {
	From string
	To   string
}

// RatesOptions configure the rate board.
type RatesOptions struct {
	Base      string
	Symbols   []string
	Watch     bool
	Count     int
	CSVPath   string
	PNGPath   string
	MaxPoints int
}

// SimulateOptions configure an offline walkthrough against a pinned rate.
type SimulateOptions struct {
	Rate         string
	From         string
	To           string
	Amount       string
	FailExecutor bool
}
