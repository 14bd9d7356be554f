// Package app wires configuration into the services shared by the CLI and
// the serverless entrypoint.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ogulcanaydogan/basket-guardian/internal/config"
	"github.com/ogulcanaydogan/basket-guardian/internal/server"
	"github.com/ogulcanaydogan/basket-guardian/internal/triggers"
	"github.com/ogulcanaydogan/basket-guardian/pkg/budget"
	"github.com/ogulcanaydogan/basket-guardian/pkg/credits"
	"github.com/ogulcanaydogan/basket-guardian/pkg/directory"
	"github.com/ogulcanaydogan/basket-guardian/pkg/docstore"
	"github.com/ogulcanaydogan/basket-guardian/pkg/lists"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
	"github.com/ogulcanaydogan/basket-guardian/pkg/notify"
	"github.com/ogulcanaydogan/basket-guardian/pkg/providers"
	"github.com/ogulcanaydogan/basket-guardian/pkg/receipt"
	"github.com/ogulcanaydogan/basket-guardian/pkg/users"
)

// App holds the wired services.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      docstore.Store
	Pricing    *providers.Registry
	Ledger     *credits.Ledger
	Notifier   *notify.Service
	Monitor    *budget.Monitor
	Lists      *lists.Service
	Users      *users.Service
	Scanner    *receipt.Service
	Dispatcher *triggers.Dispatcher
}

// NewLogger creates a structured logger from config.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

// New opens the store and builds every service. Optional integrations whose
// credentials are missing are logged and left disabled.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := docstore.Open(ctx, docstore.Config{
		Driver:           cfg.Storage.Driver,
		Path:             cfg.Storage.Path,
		MongoURI:         cfg.Storage.MongoURI,
		MongoDatabase:    cfg.Storage.MongoDatabase,
		FirestoreProject: cfg.Storage.FirestoreProject,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	a, err := build(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, store docstore.Store, logger *slog.Logger) (*App, error) {
	pricing, err := providers.DefaultRegistry(cfg.Pricing.Dir)
	if err != nil {
		return nil, fmt.Errorf("load pricing: %w", err)
	}
	loc, err := cfg.Budget.Location()
	if err != nil {
		return nil, err
	}

	dir := directory.New(store)
	ledger := credits.NewLedger(store, pricing, logger)

	var pusher notify.Pusher
	if cfg.Push.Enabled {
		var opts []notify.ExpoOption
		if cfg.Push.BaseURL != "" {
			opts = append(opts, notify.WithExpoURL(cfg.Push.BaseURL))
		}
		pusher = notify.NewExpo(cfg.Push.AccessToken, logger, opts...)
	}
	notifier := notify.NewService(store, pusher, logger)

	mailer, mailErr := newMailer(cfg)
	var monitorMailer notify.Mailer = unconfiguredMailer{}
	listOpts := []lists.Option{lists.WithConcurrency(cfg.Notify.Concurrency)}
	if mailErr != nil {
		logger.Warn("email disabled", "error", mailErr)
	} else {
		monitorMailer = mailer
		listOpts = append(listOpts, lists.WithMailer(mailer))
	}

	var monitorOpts []budget.Option
	if pubs := newPublishers(cfg.Webhook); len(pubs) > 0 {
		monitorOpts = append(monitorOpts, budget.WithPublisher(pubs))
	}
	monitor := budget.NewMonitor(store, dir, monitorMailer, budget.Config{
		ThresholdPct: cfg.Budget.ThresholdPct,
		RequireOptIn: cfg.Budget.RequireOptIn,
		Location:     loc,
	}, logger, monitorOpts...)

	listSvc := lists.NewService(store, dir, notifier, logger, listOpts...)
	userSvc := users.NewService(store, ledger, logger, users.WithSignupCredits(cfg.Credits.SignupGrant))

	var scanner *receipt.Service
	if ex, err := NewExtractor(cfg.AI); err != nil {
		logger.Warn("receipt scanning disabled", "error", err)
	} else {
		scanner = receipt.NewService(ex, ledger, logger)
	}

	return &App{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Pricing:    pricing,
		Ledger:     ledger,
		Notifier:   notifier,
		Monitor:    monitor,
		Lists:      listSvc,
		Users:      userSvc,
		Scanner:    scanner,
		Dispatcher: triggers.NewDispatcher(monitor, listSvc, userSvc, logger),
	}, nil
}

// NewExtractor builds the configured receipt extractor.
func NewExtractor(cfg config.AIConfig) (receipt.Extractor, error) {
	switch cfg.Provider {
	case "anthropic":
		return receipt.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.BaseURL)
	case "openai", "":
		return receipt.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.BaseURL)
	}
	return nil, fmt.Errorf("unknown ai provider %q: %w", cfg.Provider, model.ErrNotConfigured)
}

func newMailer(cfg *config.Config) (*notify.Resend, error) {
	var opts []notify.ResendOption
	if cfg.Email.BaseURL != "" {
		opts = append(opts, notify.WithResendURL(cfg.Email.BaseURL))
	}
	return notify.NewResend(cfg.Email.ResendAPIKey, cfg.Email.From, opts...)
}

// ServerDeps returns the HTTP API dependencies.
func (a *App) ServerDeps() server.Deps {
	deps := server.Deps{
		Members:  a.Lists,
		Balances: a.Ledger,
		Budgets:  a.Monitor,
		Push:     a.Notifier,
	}
	// Leave the interface nil rather than holding a nil pointer.
	if a.Scanner != nil {
		deps.Scanner = a.Scanner
	}
	return deps
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// unconfiguredMailer fails every send so budget alerts stay unrecorded and
// are retried once email is configured.
type unconfiguredMailer struct{}

func (unconfiguredMailer) Send(context.Context, string, string, string) (string, error) {
	return "", fmt.Errorf("email: %w", model.ErrNotConfigured)
}

// newPublishers builds the alert event sinks enabled in cfg.
func newPublishers(cfg config.WebhookConfig) notify.Publishers {
	if !cfg.Enabled {
		return nil
	}
	var pubs notify.Publishers
	if cfg.URL != "" {
		pubs = append(pubs, notify.NewWebhook(cfg.URL, cfg.Secret))
	}
	if cfg.SlackURL != "" {
		pubs = append(pubs, notify.NewSlack(cfg.SlackURL, cfg.SlackChannel))
	}
	return pubs
}
