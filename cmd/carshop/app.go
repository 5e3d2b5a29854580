package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/agent"
	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/booking"
	"github.com/MimeLyc/carshop-agent/internal/catalog"
	"github.com/MimeLyc/carshop-agent/internal/config"
	"github.com/MimeLyc/carshop-agent/internal/guardrail"
	"github.com/MimeLyc/carshop-agent/internal/identity"
	"github.com/MimeLyc/carshop-agent/internal/llm"
	"github.com/MimeLyc/carshop-agent/internal/metrics"
	"github.com/MimeLyc/carshop-agent/internal/notify"
	"github.com/MimeLyc/carshop-agent/internal/persistence"
	"github.com/MimeLyc/carshop-agent/internal/tools"
	"github.com/MimeLyc/carshop-agent/pkg/log"
)

// appStore is everything the commands need from a persistence backend.
type appStore interface {
	catalog.RepairStore
	booking.Store
	identity.ProfileStore
	identity.Resolver
	notify.Store

	ListBookings(ctx context.Context, userID string) ([]booking.Booking, error)
	PutPreferences(ctx context.Context, userID string, p identity.Preferences) error
	UpsertTrims(ctx context.Context, cards []catalog.CarCard) error
	CreateSession(ctx context.Context, userID string, ttl time.Duration) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

func openStore(ctx context.Context, cfg *config.Config) (appStore, error) {
	if cfg.Store.Driver == config.DriverPostgres {
		store, err := persistence.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	return store, nil
}

// app holds the wired components shared by the commands.
type app struct {
	cfg     *config.Config
	store   appStore
	metrics *metrics.Metrics

	cars           *catalog.Executor
	resolver       identity.Resolver
	bookingService booking.Collaborator
	scheduler      *booking.Scheduler
	outbox         *notify.Outbox
	composer       *notify.Composer
	sender         notify.Sender
	voice          *tools.Registry
	agent          *agent.LLMAgent
	auditor        *catalog.Auditor
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}

	a := &app{cfg: cfg, store: store, metrics: metrics.New()}
	if err := a.wire(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	a.cars = catalog.NewExecutor(a.store)

	a.resolver = a.store
	if cfg.Auth.BaseURL != "" {
		a.resolver = identity.NewHTTPResolver(cfg.Auth.BaseURL, cfg.Auth.APIKey)
	}

	a.sender = notify.NewEmailClient(cfg.Email.APIKey,
		notify.WithEmailBaseURL(cfg.Email.BaseURL),
		notify.WithFrom(cfg.Email.From),
	)
	a.composer = notify.NewComposer(cfg.Email.Organizer, cfg.BookingLocation())
	a.outbox = notify.NewOutbox(cfg.Email.Workers, a.store)
	a.metrics.WatchQueue("outbox_pending_jobs", "Confirmation emails waiting for a worker.", func() float64 {
		return float64(a.outbox.Counts()[notify.StatusPending])
	})
	a.metrics.WatchQueue("outbox_failed_jobs", "Confirmation emails that could not be sent.", func() float64 {
		return float64(a.outbox.Counts()[notify.StatusFailed])
	})

	a.bookingService = observedBookings{next: booking.NewService(a.store, a.store), observe: a.metrics.ObserveBooking}
	var collaborator booking.Collaborator = a.bookingService
	if cfg.Booking.BaseURL != "" {
		collaborator = observedBookings{next: booking.NewHTTPClient(cfg.Booking.BaseURL), observe: a.metrics.ObserveBooking}
	}
	zone := cfg.BookingLocation()
	a.scheduler = booking.NewScheduler(a.store, collaborator,
		booking.WithLocations(cfg.Dealerships),
		booking.WithConfirmer(a.outbox),
		booking.WithProfiles(a.store),
		booking.WithClock(func() time.Time { return time.Now().In(zone) }),
	)

	chatTools, err := tools.NewRegistry(tools.ChatTools(a.cars, a.scheduler), tools.WithObserver(a.metrics.ObserveTool))
	if err != nil {
		return fmt.Errorf("failed to build chat tools: %w", err)
	}
	a.voice, err = tools.NewRegistry(tools.VoiceTools(a.cars, a.sender), tools.WithObserver(a.metrics.ObserveTool))
	if err != nil {
		return fmt.Errorf("failed to build voice tools: %w", err)
	}

	model, err := newModel(ctx, cfg)
	if err != nil {
		return err
	}
	orchestrator := agent.NewOrchestrator(model, chatTools,
		agent.WithMaxSteps(cfg.Agent.MaxSteps),
		agent.WithLLMObserver(a.metrics.ObserveLLM),
	)
	guard := guardrail.NewSanitizer(guardrail.WithReporter(a.metrics.ObserveRedaction))
	a.agent = agent.NewLLMAgent(orchestrator, guard, agent.WithProfiles(a.store))

	if cfg.Audit.Enabled {
		a.auditor, err = catalog.NewAuditor(a.store, cfg.Audit.CronExpr, catalog.WithRepair(cfg.Audit.Repair))
		if err != nil {
			return fmt.Errorf("failed to create catalog auditor: %w", err)
		}
	}
	return nil
}

// newModel builds the LLM client. Without credentials the server still
// starts; chat endpoints answer 503 and the model reports the missing keys.
func newModel(ctx context.Context, cfg *config.Config) (agent.ChatModel, error) {
	if err := cfg.RequireLLM(); err != nil {
		log.Warn("assistant disabled: %v", err)
		return unavailableModel{err: err}, nil
	}
	client, err := llm.NewClient(ctx, &cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	log.Info("LLM client ready: model=%s auth=%s", client.Model(), client.AuthFormat())
	return client, nil
}

func (a *app) outboxService() backgroundService {
	return outboxService{outbox: a.outbox, exec: notify.Deliver(a.composer, a.sender)}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn("failed to close store: %v", err)
	}
}

type outboxService struct {
	outbox *notify.Outbox
	exec   notify.Executor
}

func (s outboxService) Start() error {
	s.outbox.Start(s.exec)
	return nil
}

func (s outboxService) Stop() { s.outbox.Stop() }

type unavailableModel struct {
	err error
}

func (m unavailableModel) ChatCompletionWithTools(context.Context, []llm.Message, []llm.ToolDefinition, *llm.ChatCompletionOptions) (*llm.ChatResponse, error) {
	return nil, m.err
}

func (m unavailableModel) StreamChatCompletion(context.Context, []llm.Message, *llm.ChatCompletionOptions) (<-chan llm.StreamEvent, error) {
	return nil, m.err
}

// observedBookings counts booking outcomes. Validation and auth rejections
// are not failures of the booking backend and are not counted.
type observedBookings struct {
	next    booking.Collaborator
	observe func(success bool)
}

func (o observedBookings) CreateBooking(ctx context.Context, user *identity.User, req booking.CreateRequest) (booking.Booking, error) {
	b, err := o.next.CreateBooking(ctx, user, req)
	switch {
	case err == nil:
		o.observe(true)
	case apperr.IsKind(err, apperr.KindValidation), apperr.IsKind(err, apperr.KindAuth):
	default:
		o.observe(false)
	}
	return b, err
}

func printJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(raw)
}
