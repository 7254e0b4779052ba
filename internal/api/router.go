package api

import (
	"crypto/rand"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/BreederHQ/server/internal/api/handlers"
	"github.com/BreederHQ/server/internal/api/middleware"
	"github.com/BreederHQ/server/internal/audit"
	"github.com/BreederHQ/server/internal/auth"
	"github.com/BreederHQ/server/internal/config"
	"github.com/BreederHQ/server/internal/metrics"
	"github.com/BreederHQ/server/internal/webhooks"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Services are the domain operations the HTTP layer exposes. Payments may be
// nil when Stripe is not configured.
type Services struct {
	Accounts    handlers.AccountService
	Tenants     handlers.TenantService
	Payments    handlers.PaymentsService
	Contacts    handlers.ContactService
	Animals     handlers.AnimalService
	Breeding    handlers.BreedingService
	Offspring   handlers.OffspringService
	Listings    handlers.ListingService
	DraftBoards handlers.DraftBoardService
	Invoices    handlers.InvoiceService
	Documents   handlers.DocumentService
	Messaging   handlers.MessagingService
	Nutrition   handlers.NutritionService
	Tasks       handlers.TaskService
	Stripe      handlers.StripeEventHandler
	Inbound     handlers.InboundReceiver
}

type Deps struct {
	Config        config.Config
	Logger        zerolog.Logger
	Pool          *pgxpool.Pool
	Tokens        middleware.TokenValidator
	Memberships   middleware.MembershipResolver
	Idempotency   middleware.IdempotencyStore
	WebhookEvents handlers.EventLedger
	Hub           handlers.LiveHub
	Audit         *audit.Logger
	Health        *handlers.HealthChecker
	Version       string
	GitCommit     string
	BuildDate     string
	Services
}

type chain []func(http.Handler) http.Handler

func (c chain) then(h http.HandlerFunc) http.Handler {
	var out http.Handler = h
	for i := len(c) - 1; i >= 0; i-- {
		out = c[i](out)
	}
	return out
}

func (c chain) with(mw ...func(http.Handler) http.Handler) chain {
	out := make(chain, 0, len(c)+len(mw))
	out = append(out, c...)
	return append(out, mw...)
}

// NewRouter mounts every route and wraps the mux in the global middleware.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	env := cfg.Environment
	s := d.Services

	limiter := middleware.RateLimit(cfg.RateLimit, env)
	tier := func(t middleware.RateLimitTier) chain {
		return chain{middleware.WithRateLimitTierHandler(t), limiter}
	}

	public := tier(middleware.TierPublic).with(middleware.DefaultRequestSize())
	authRoutes := tier(middleware.TierAuth).with(middleware.DefaultRequestSize())
	webhook := tier(middleware.TierWebhook).with(middleware.WebhookRequestSize())

	authn := middleware.Authenticate(d.Tokens, cfg.Auth.CookieName, env)
	csrf := middleware.CSRFProtection(csrfKey(cfg.Auth), cfg.Auth.CookieSecure, cfg.Auth.TrustedOrigin, env)
	signedIn := tier(middleware.TierTenant).with(middleware.DefaultRequestSize(), authn, csrf)
	member := signedIn.with(middleware.TenantScope(d.Memberships, env))
	staff := member.with(middleware.RequireRole(auth.RoleStaff, env))
	admin := member.with(middleware.RequireRole(auth.RoleAdmin, env))
	idempotent := staff.with(middleware.Idempotency(d.Idempotency, env))

	authH := handlers.NewAuthHandler(s.Accounts, handlers.CookieSettings{Name: cfg.Auth.CookieName, Secure: cfg.Auth.CookieSecure}, env)
	tenantH := handlers.NewTenantHandler(s.Tenants, s.Payments, d.Audit, env)
	contactsH := handlers.NewContactsHandler(s.Contacts, env)
	animalsH := handlers.NewAnimalsHandler(s.Animals, d.Audit, env)
	breedingH := handlers.NewBreedingHandler(s.Breeding, env)
	offspringH := handlers.NewOffspringHandler(s.Offspring, env)
	listingsH := handlers.NewListingsHandler(s.Listings, env)
	draftH := handlers.NewDraftBoardsHandler(s.DraftBoards, d.Hub, d.Audit, d.Logger, env)
	invoicesH := handlers.NewInvoicesHandler(s.Invoices, d.Audit, env)
	documentsH := handlers.NewDocumentsHandler(s.Documents, env)
	messagingH := handlers.NewMessagingHandler(s.Messaging, d.Audit, env)
	nutritionH := handlers.NewNutritionHandler(s.Nutrition, env)
	tasksH := handlers.NewTasksHandler(s.Tasks, env)
	webhooksH := &handlers.WebhooksHandler{
		Stripe:         s.Stripe,
		Inbound:        s.Inbound,
		Events:         d.WebhookEvents,
		StripeVerifier: webhooks.NewVerifier(cfg.Webhooks.StripeSecret, cfg.Webhooks.Tolerance),
		ResendVerifier: webhooks.NewVerifier(cfg.Webhooks.ResendSecret, cfg.Webhooks.Tolerance),
		Logger:         d.Logger,
		Env:            env,
	}

	mux := http.NewServeMux()

	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz(d.Pool))
	if d.Health != nil {
		mux.Handle("/health", d.Health.Health())
	}
	mux.Handle("GET /version", VersionHandler(d.Version, d.GitCommit, d.BuildDate))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/api/v1/openapi.json", OpenAPIHandler())

	// Accounts
	mux.Handle("/api/v1/auth/register", methodMux(map[string]http.Handler{http.MethodPost: authRoutes.then(authH.Register)}))
	mux.Handle("/api/v1/auth/login", methodMux(map[string]http.Handler{http.MethodPost: authRoutes.then(authH.Login)}))
	mux.Handle("/api/v1/auth/refresh", methodMux(map[string]http.Handler{http.MethodPost: authRoutes.then(authH.Refresh)}))
	mux.Handle("/api/v1/auth/logout", methodMux(map[string]http.Handler{http.MethodPost: authRoutes.then(authH.Logout)}))
	mux.Handle("/api/v1/auth/me", methodMux(map[string]http.Handler{http.MethodGet: signedIn.then(authH.Me)}))

	// Tenant
	mux.Handle("/api/v1/tenant", methodMux(map[string]http.Handler{
		http.MethodGet:   member.then(tenantH.Get),
		http.MethodPatch: admin.then(tenantH.Update),
	}))
	mux.Handle("/api/v1/tenant/dashboard", methodMux(map[string]http.Handler{http.MethodGet: member.then(tenantH.Dashboard)}))
	mux.Handle("/api/v1/tenant/payments/onboarding", methodMux(map[string]http.Handler{http.MethodPost: admin.then(tenantH.StartOnboarding)}))
	mux.Handle("/api/v1/tenant/payments/status", methodMux(map[string]http.Handler{http.MethodGet: admin.then(tenantH.PaymentsStatus)}))

	// Contacts
	mux.Handle("/api/v1/contacts", methodMux(map[string]http.Handler{
		http.MethodGet:  member.then(contactsH.List),
		http.MethodPost: staff.then(contactsH.Create),
	}))
	mux.Handle("/api/v1/contacts/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    member.then(contactsH.Get),
		http.MethodPatch:  staff.then(contactsH.Update),
		http.MethodDelete: staff.then(contactsH.Archive),
	}))

	// Animals and cross-tenant links
	mux.Handle("/api/v1/animals", methodMux(map[string]http.Handler{
		http.MethodGet:  member.then(animalsH.List),
		http.MethodPost: staff.then(animalsH.Create),
	}))
	mux.Handle("/api/v1/animals/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    member.then(animalsH.Get),
		http.MethodPatch:  staff.then(animalsH.Update),
		http.MethodDelete: staff.then(animalsH.Archive),
	}))
	mux.Handle("/api/v1/animals/{id}/exchange-code", methodMux(map[string]http.Handler{http.MethodPost: admin.then(animalsH.RegenerateExchangeCode)}))
	mux.Handle("/api/v1/animals/{id}/nutrition-summary", methodMux(map[string]http.Handler{http.MethodGet: member.then(nutritionH.Summary)}))
	mux.Handle("/api/v1/animal-links", methodMux(map[string]http.Handler{
		http.MethodGet:  member.then(animalsH.ListLinks),
		http.MethodPost: staff.then(animalsH.RequestLink),
	}))
	mux.Handle("/api/v1/animal-links/{id}/approve", methodMux(map[string]http.Handler{http.MethodPost: admin.then(animalsH.ApproveLink)}))
	mux.Handle("/api/v1/animal-links/{id}/reject", methodMux(map[string]http.Handler{http.MethodPost: admin.then(animalsH.RejectLink)}))
	mux.Handle("/api/v1/animal-links/{id}/revoke", methodMux(map[string]http.Handler{http.MethodPost: admin.then(animalsH.RevokeLink)}))
	mux.Handle("/api/v1/linked-animals/{id}", methodMux(map[string]http.Handler{http.MethodGet: member.then(animalsH.Linked)}))

	// Breeding plans and offspring
	mux.Handle("/api/v1/breeding-plans", methodMux(map[string]http.Handler{
		http.MethodGet:  member.then(breedingH.List),
		http.MethodPost: staff.then(breedingH.Create),
	}))
	mux.Handle("/api/v1/breeding-plans/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:   member.then(breedingH.Get),
		http.MethodPatch: staff.then(breedingH.Update),
	}))
	mux.Handle("/api/v1/breeding-plans/{id}/transition", methodMux(map[string]http.Handler{http.MethodPost: staff.then(breedingH.Transition)}))
	mux.Handle("/api/v1/breeding-plans/{id}/birth", methodMux(map[string]http.Handler{http.MethodPost: staff.then(breedingH.RecordBirth)}))
	mux.Handle("/api/v1/breeding-plans/{id}/pricing", methodMux(map[string]http.Handler{http.MethodPost: staff.then(offspringH.ApplyPricing)}))
	mux.Handle("/api/v1/offspring", methodMux(map[string]http.Handler{http.MethodGet: member.then(offspringH.List)}))
	mux.Handle("/api/v1/offspring/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:   member.then(offspringH.Get),
		http.MethodPatch: staff.then(offspringH.Update),
	}))
	mux.Handle("/api/v1/offspring/{id}/placement", methodMux(map[string]http.Handler{http.MethodPost: staff.then(offspringH.SetPlacement)}))
	mux.Handle("/api/v1/offspring/{id}/assessments", methodMux(map[string]http.Handler{
		http.MethodGet:  member.then(offspringH.ListAssessments),
		http.MethodPost: staff.then(offspringH.AddAssessment),
	}))
	mux.Handle("/api/v1/offspring/{id}/contract", methodMux(map[string]http.Handler{http.MethodGet: member.then(documentsH.Contract)}))

	// Marketplace
	mux.Handle("/api/v1/listings", methodMux(map[string]http.Handler{
		http.MethodGet:  member.then(listingsH.List),
		http.MethodPost: staff.then(listingsH.Create),
	}))
	mux.Handle("/api/v1/listings/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:   member.then(listingsH.Get),
		http.MethodPatch: staff.then(listingsH.Update),
	}))
	mux.Handle("/api/v1/listings/{id}/publish", methodMux(map[string]http.Handler{http.MethodPost: staff.then(listingsH.Publish)}))
	mux.Handle("/api/v1/listings/{id}/archive", methodMux(map[string]http.Handler{http.MethodPost: staff.then(listingsH.Archive)}))
	mux.Handle("/api/v1/public/listings", methodMux(map[string]http.Handler{http.MethodGet: public.then(listingsH.PublicList)}))
	mux.Handle("/api/v1/public/listings/{id}", methodMux(map[string]http.Handler{http.MethodGet: public.then(listingsH.PublicGet)}))

	// Draft boards
	mux.Handle("/api/v1/draft-boards", methodMux(map[string]http.Handler{
		http.MethodGet:  member.then(draftH.List),
		http.MethodPost: staff.then(draftH.Create),
	}))
	mux.Handle("/api/v1/draft-boards/{id}", methodMux(map[string]http.Handler{http.MethodGet: member.then(draftH.Get)}))
	mux.Handle("/api/v1/draft-boards/{id}/participants", methodMux(map[string]http.Handler{http.MethodPut: staff.then(draftH.SetParticipants)}))
	mux.Handle("/api/v1/draft-boards/{id}/start", methodMux(map[string]http.Handler{http.MethodPost: staff.then(draftH.Start)}))
	mux.Handle("/api/v1/draft-boards/{id}/pause", methodMux(map[string]http.Handler{http.MethodPost: staff.then(draftH.Pause)}))
	mux.Handle("/api/v1/draft-boards/{id}/resume", methodMux(map[string]http.Handler{http.MethodPost: staff.then(draftH.Resume)}))
	mux.Handle("/api/v1/draft-boards/{id}/cancel", methodMux(map[string]http.Handler{http.MethodPost: admin.then(draftH.Cancel)}))
	mux.Handle("/api/v1/draft-boards/{id}/picks/{pickID}/select", methodMux(map[string]http.Handler{http.MethodPost: staff.then(draftH.Select)}))
	mux.Handle("/api/v1/draft-boards/{id}/picks/{pickID}/defer", methodMux(map[string]http.Handler{http.MethodPost: staff.then(draftH.Defer)}))
	mux.Handle("/api/v1/draft-boards/{id}/picks/{pickID}/pass", methodMux(map[string]http.Handler{http.MethodPost: staff.then(draftH.Pass)}))
	mux.Handle("/api/v1/draft-boards/{id}/live", methodMux(map[string]http.Handler{http.MethodGet: member.then(draftH.Live)}))

	// Invoices
	mux.Handle("/api/v1/invoices", methodMux(map[string]http.Handler{
		http.MethodGet:  member.then(invoicesH.List),
		http.MethodPost: staff.then(invoicesH.Create),
	}))
	mux.Handle("/api/v1/invoices/{id}", methodMux(map[string]http.Handler{http.MethodGet: member.then(invoicesH.Get)}))
	mux.Handle("/api/v1/invoices/{id}/issue", methodMux(map[string]http.Handler{http.MethodPost: staff.then(invoicesH.Issue)}))
	mux.Handle("/api/v1/invoices/{id}/void", methodMux(map[string]http.Handler{http.MethodPost: admin.then(invoicesH.Void)}))
	mux.Handle("/api/v1/invoices/{id}/payments", methodMux(map[string]http.Handler{
		http.MethodGet:  member.then(invoicesH.ListPayments),
		http.MethodPost: idempotent.then(invoicesH.RecordPayment),
	}))
	mux.Handle("/api/v1/invoices/{id}/document", methodMux(map[string]http.Handler{http.MethodGet: member.then(documentsH.Invoice)}))

	// Messaging
	mux.Handle("/api/v1/threads", methodMux(map[string]http.Handler{
		http.MethodGet:  member.then(messagingH.ListThreads),
		http.MethodPost: staff.then(messagingH.Compose),
	}))
	mux.Handle("/api/v1/threads/{id}", methodMux(map[string]http.Handler{http.MethodGet: member.then(messagingH.GetThread)}))
	mux.Handle("/api/v1/threads/{id}/messages", methodMux(map[string]http.Handler{
		http.MethodGet:  member.then(messagingH.ListMessages),
		http.MethodPost: staff.then(messagingH.Reply),
	}))
	mux.Handle("/api/v1/threads/{id}/read", methodMux(map[string]http.Handler{http.MethodPost: member.then(messagingH.MarkRead)}))
	mux.Handle("/api/v1/threads/{id}/archive", methodMux(map[string]http.Handler{http.MethodPost: staff.then(messagingH.Archive)}))
	mux.Handle("/api/v1/messages/{id}/release", methodMux(map[string]http.Handler{http.MethodPost: admin.then(messagingH.Release)}))

	// Nutrition and tasks
	mux.Handle("/api/v1/feedings", methodMux(map[string]http.Handler{
		http.MethodGet:  member.then(nutritionH.List),
		http.MethodPost: staff.then(nutritionH.Log),
	}))
	mux.Handle("/api/v1/feedings/{id}", methodMux(map[string]http.Handler{http.MethodDelete: staff.then(nutritionH.Delete)}))
	mux.Handle("/api/v1/tasks", methodMux(map[string]http.Handler{
		http.MethodGet:  member.then(tasksH.List),
		http.MethodPost: staff.then(tasksH.Create),
	}))
	mux.Handle("/api/v1/tasks/{id}/complete", methodMux(map[string]http.Handler{http.MethodPost: staff.then(tasksH.Complete)}))
	mux.Handle("/api/v1/tasks/{id}/reopen", methodMux(map[string]http.Handler{http.MethodPost: staff.then(tasksH.Reopen)}))

	// Provider webhooks
	mux.Handle("/api/v1/webhooks/stripe", methodMux(map[string]http.Handler{http.MethodPost: webhook.then(webhooksH.Stripe)}))
	mux.Handle("/api/v1/webhooks/resend/inbound", methodMux(map[string]http.Handler{http.MethodPost: webhook.then(webhooksH.ResendInbound)}))

	origins := append([]string{cfg.Server.AppURL}, cfg.Auth.TrustedOrigin...)
	global := chain{
		middleware.Tracing,
		middleware.CorrelationID(d.Logger),
		middleware.RequestLogging(d.Logger),
		metrics.HTTPMiddleware,
		middleware.SecurityHeaders(!cfg.IsDevelopment()),
		middleware.CORS(origins, cfg.IsDevelopment(), d.Logger),
	}
	return global.then(mux.ServeHTTP)
}

// csrfKey derives a 32-byte key from CSRF_KEY, falling back to the JWT secret.
func csrfKey(cfg config.AuthConfig) []byte {
	secret := cfg.CSRFKey
	if secret == "" {
		secret = cfg.JWTSecret
	}
	key, err := auth.DeriveCSRFKey([]byte(secret))
	if err != nil {
		// Only reachable without any configured secret; tokens then last
		// until restart.
		key = make([]byte, auth.DerivedKeyLength)
		_, _ = rand.Read(key)
	}
	return key
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	return strings.Join(slices.Sorted(maps.Keys(handlers)), ", ")
}
