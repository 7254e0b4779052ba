package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/BreederHQ/server/internal/api"
	"github.com/BreederHQ/server/internal/api/handlers"
	"github.com/BreederHQ/server/internal/audit"
	"github.com/BreederHQ/server/internal/auth"
	"github.com/BreederHQ/server/internal/config"
	"github.com/BreederHQ/server/internal/documents"
	"github.com/BreederHQ/server/internal/domain/animals"
	"github.com/BreederHQ/server/internal/domain/breeding"
	"github.com/BreederHQ/server/internal/domain/contacts"
	"github.com/BreederHQ/server/internal/domain/draftboard"
	"github.com/BreederHQ/server/internal/domain/invoices"
	"github.com/BreederHQ/server/internal/domain/marketplace"
	"github.com/BreederHQ/server/internal/domain/messaging"
	"github.com/BreederHQ/server/internal/domain/nutrition"
	"github.com/BreederHQ/server/internal/domain/offspring"
	"github.com/BreederHQ/server/internal/domain/tasks"
	"github.com/BreederHQ/server/internal/domain/tenants"
	"github.com/BreederHQ/server/internal/email"
	"github.com/BreederHQ/server/internal/jobs"
	"github.com/BreederHQ/server/internal/metrics"
	"github.com/BreederHQ/server/internal/payments"
	"github.com/BreederHQ/server/internal/realtime"
	"github.com/BreederHQ/server/internal/storage/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
)

// lateInserter lets the job queue adapter exist before the River client,
// which needs the workers, which need the services, which need the queue.
type lateInserter struct {
	mu     sync.RWMutex
	client *river.Client[pgx.Tx]
}

func (l *lateInserter) set(client *river.Client[pgx.Tx]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.client = client
}

func (l *lateInserter) Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	l.mu.RLock()
	client := l.client
	l.mu.RUnlock()
	if client == nil {
		return nil, errors.New("job client not initialized")
	}
	return client.Insert(ctx, args, opts)
}

// app holds everything a running server owns.
type app struct {
	pool    *pgxpool.Pool
	store   *postgres.Store
	river   *river.Client[pgx.Tx]
	pdf     *documents.RodPDF
	drafts  *draftboard.Service
	handler http.Handler
	logger  zerolog.Logger
}

type appOptions struct {
	// Work starts River workers and periodic jobs. Without it the client can
	// only enqueue.
	Work bool
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts appOptions) (*app, error) {
	pool, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	store, err := postgres.NewStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.Issuer)
	hub := realtime.NewHub(originChecker(cfg), logger)
	inserter := &lateInserter{}

	mailer, err := email.NewService(cfg.Email, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("email service: %w", err)
	}

	contactsSvc := contacts.NewService(store.Contacts(), logger)
	queue := jobs.NewQueue(inserter, contactsSvc, hub, cfg.Server.AppURL, logger)

	tenantsSvc := tenants.NewService(store.Tenants(), tokens, cfg.Auth.RefreshTTL, logger)
	animalsSvc := animals.NewService(store.Animals(), logger)
	breedingSvc := breeding.NewService(store.Breeding(), logger)
	offspringSvc := offspring.NewService(store.Offspring(), logger)
	listingsSvc := marketplace.NewService(store.Listings(), logger)
	draftSvc := draftboard.NewService(store.DraftBoards(), queue, queue, cfg.Draft.DefaultPickWindow, logger)
	invoicesSvc := invoices.NewService(store.Invoices(), tenantsSvc, logger)
	messagingSvc := messaging.NewService(store.Messaging(), queue, mailer, queue, messaging.Config{
		InboundDomain: cfg.Email.InboundDomain,
		FromAddress:   cfg.Email.From,
	}, logger)
	nutritionSvc := nutrition.NewService(store.Nutrition(), logger)
	tasksSvc := tasks.NewService(store.Tasks(), logger)

	pdf := documents.NewRodPDF(cfg.Documents.ChromeURL, cfg.Documents.PDFTimeout, logger)
	documentsSvc, err := documents.NewService(documents.Sources{
		Invoices:  invoicesSvc,
		Contacts:  contactsSvc,
		Tenants:   tenantsSvc,
		Offspring: offspringSvc,
		Plans:     breedingSvc,
	}, pdf, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("document templates: %w", err)
	}

	// A nil *payments.Service inside the interface would not compare equal to nil.
	var paymentsSvc handlers.PaymentsService
	if cfg.Stripe.APIKey != "" {
		paymentsSvc = payments.NewService(
			payments.NewClient(cfg.Stripe.APIKey, cfg.Stripe.APIBase, payments.WithLogger(logger)),
			tenantsSvc,
			payments.Config{ReturnURL: cfg.Stripe.ReturnURL, RefreshURL: cfg.Stripe.RefreshURL},
			logger,
		)
	} else {
		logger.Warn().Msg("STRIPE_API_KEY not set, payment onboarding disabled")
	}

	var riverClient *river.Client[pgx.Tx]
	if opts.Work {
		workers := jobs.NewWorkers(jobs.Deps{
			Drafts:          draftSvc,
			Messages:        messagingSvc,
			Notifications:   mailer,
			WebhookEvents:   store.WebhookEvents(),
			IdempotencyKeys: store.IdempotencyKeys(),
			Logger:          logger,
		})
		riverClient, err = jobs.NewClient(
			pool,
			workers,
			config.NewSlogLogger(logger, "river"),
			[]rivertype.Hook{metrics.NewJobHook()},
			jobs.NewPeriodicJobs(cfg.Draft.SweepInterval),
		)
	} else {
		riverClient, err = jobs.NewInsertOnlyClient(pool)
	}
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("river client: %w", err)
	}
	inserter.set(riverClient)

	auditLog := audit.NewLogger(logger)
	handler := api.NewRouter(api.Deps{
		Config:        cfg,
		Logger:        logger,
		Pool:          pool,
		Tokens:        tokens,
		Memberships:   tenantsSvc,
		Idempotency:   store.IdempotencyKeys(),
		WebhookEvents: store.WebhookEvents(),
		Hub:           hub,
		Audit:         auditLog,
		Health:        handlers.NewHealthChecker(pool, riverClient, Version, GitCommit),
		Version:       Version,
		GitCommit:     GitCommit,
		BuildDate:     BuildDate,
		Services: api.Services{
			Accounts:    tenantsSvc,
			Tenants:     tenantsSvc,
			Payments:    paymentsSvc,
			Contacts:    contactsSvc,
			Animals:     animalsSvc,
			Breeding:    breedingSvc,
			Offspring:   offspringSvc,
			Listings:    listingsSvc,
			DraftBoards: draftSvc,
			Invoices:    invoicesSvc,
			Documents:   documentsSvc,
			Messaging:   messagingSvc,
			Nutrition:   nutritionSvc,
			Tasks:       tasksSvc,
			Stripe:      invoicesSvc,
			Inbound:     messagingSvc,
		},
	})

	return &app{
		pool:    pool,
		store:   store,
		river:   riverClient,
		pdf:     pdf,
		drafts:  draftSvc,
		handler: handler,
		logger:  logger,
	}, nil
}

// Close releases the browser and the pool. River must already be stopped.
func (a *app) Close() {
	if a.pdf != nil {
		if err := a.pdf.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close pdf renderer")
		}
	}
	a.pool.Close()
}

// originChecker accepts websocket upgrades from the app and trusted origins.
// Requests without an Origin header are not from browsers and are allowed.
func originChecker(cfg config.Config) func(r *http.Request) bool {
	if cfg.IsDevelopment() {
		return func(*http.Request) bool { return true }
	}
	allowed := map[string]bool{}
	for _, raw := range append([]string{cfg.Server.AppURL, cfg.Server.BaseURL}, cfg.Auth.TrustedOrigin...) {
		if u, err := url.Parse(strings.TrimSpace(raw)); err == nil && u.Host != "" {
			allowed[strings.ToLower(u.Scheme+"://"+u.Host)] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		return allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}

func stopRiver(client *river.Client[pgx.Tx], logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("river workers shutdown error")
		return
	}
	logger.Info().Msg("river workers stopped")
}
