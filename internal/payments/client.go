package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = rate.Limit(20)
	MaxRetries       = 2
)

// APIError is an error response from Stripe.
type APIError struct {
	Status  int
	Type    string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe %d %s: %s", e.Status, e.Type, e.Message)
}

// Client talks to Stripe for Connect accounts and account links. Retries,
// including Stripe-Should-Retry handling, are left to the stripe-go backend.
type Client struct {
	api     *client.API
	apiKey  string
	limiter *rate.Limiter
}

type clientOptions struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
	retries    int64
}

// Option configures a Client.
type Option func(*clientOptions)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

// WithRateLimit sets a custom rate limit (requests per second).
func WithRateLimit(rps float64) Option {
	return func(o *clientOptions) {
		o.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithLogger routes stripe-go's request logging through logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger.With().Str("component", "stripe").Logger()
	}
}

// WithMaxRetries overrides how often failed requests are repeated.
func WithMaxRetries(n int64) Option {
	return func(o *clientOptions) {
		o.retries = n
	}
}

// NewClient creates a Stripe client. An empty baseURL uses stripe.APIURL.
func NewClient(apiKey, baseURL string, opts ...Option) *Client {
	o := clientOptions{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(DefaultRateLimit, 5),
		logger:     zerolog.Nop(),
		retries:    MaxRetries,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &stripe.BackendConfig{
		HTTPClient:        o.httpClient,
		MaxNetworkRetries: stripe.Int64(o.retries),
		LeveledLogger:     stripeLogger{o.logger},
		EnableTelemetry:   stripe.Bool(false),
	}
	if baseURL != "" {
		cfg.URL = stripe.String(strings.TrimRight(baseURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	return &Client{
		api:     client.New(apiKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}),
		apiKey:  apiKey,
		limiter: o.limiter,
	}
}

type Account struct {
	ID               string            `json:"id"`
	Email            string            `json:"email"`
	ChargesEnabled   bool              `json:"charges_enabled"`
	PayoutsEnabled   bool              `json:"payouts_enabled"`
	DetailsSubmitted bool              `json:"details_submitted"`
	Metadata         map[string]string `json:"metadata"`
}

type AccountLink struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

type AccountParams struct {
	TenantID     string
	Email        string
	Country      string
	BusinessName string
}

// CreateAccount creates an Express Connect account. The tenant ID doubles as
// the idempotency key so a retried onboarding never creates two accounts.
func (c *Client) CreateAccount(ctx context.Context, p AccountParams) (*Account, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	if p.Country != "" {
		params.Country = stripe.String(p.Country)
	}
	if p.BusinessName != "" {
		params.BusinessProfile = &stripe.AccountBusinessProfileParams{Name: stripe.String(p.BusinessName)}
	}
	params.Context = ctx
	params.AddMetadata("tenant_id", p.TenantID)
	params.SetIdempotencyKey("account-" + p.TenantID)

	acct, err := c.api.Accounts.New(params)
	if err != nil {
		return nil, fmt.Errorf("create connect account: %w", apiError(err))
	}
	return toAccount(acct), nil
}

func (c *Client) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := c.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, fmt.Errorf("get connect account: %w", apiError(err))
	}
	return toAccount(acct), nil
}

// CreateAccountLink returns a single-use onboarding URL.
func (c *Client) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*AccountLink, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx
	link, err := c.api.AccountLinks.New(params)
	if err != nil {
		return nil, fmt.Errorf("create account link: %w", apiError(err))
	}
	return &AccountLink{URL: link.URL, ExpiresAt: link.ExpiresAt}, nil
}

func (c *Client) ready(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("stripe api key not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func toAccount(a *stripe.Account) *Account {
	return &Account{
		ID:               a.ID,
		Email:            a.Email,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
		Metadata:         a.Metadata,
	}
}

// apiError converts a *stripe.Error so callers do not import stripe-go.
func apiError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}
	return &APIError{
		Status:  se.HTTPStatusCode,
		Type:    string(se.Type),
		Code:    string(se.Code),
		Message: se.Msg,
	}
}

// stripeLogger satisfies stripe.LeveledLoggerInterface.
type stripeLogger struct {
	zerolog.Logger
}

func (l stripeLogger) Debugf(format string, v ...interface{}) { l.Debug().Msgf(format, v...) }
func (l stripeLogger) Infof(format string, v ...interface{})  { l.Debug().Msgf(format, v...) }
func (l stripeLogger) Warnf(format string, v ...interface{})  { l.Warn().Msgf(format, v...) }
func (l stripeLogger) Errorf(format string, v ...interface{}) { l.Error().Msgf(format, v...) }
