package email

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/mail"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/BreederHQ/server/internal/config"
	"github.com/BreederHQ/server/internal/domain/messaging"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html
var builtinTemplates embed.FS

// Service sends outbound thread messages and templated notifications through Resend.
type Service struct {
	config       config.EmailConfig
	resendClient *resend.Client
	templates    *template.Template
	logger       zerolog.Logger
}

// NewService parses the notification templates and builds the Resend client.
// cfg.TemplatesDir overrides the built-in templates when set.
func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
	}

	var (
		templates *template.Template
		err       error
	)
	if cfg.TemplatesDir != "" {
		templates, err = template.ParseGlob(filepath.Join(cfg.TemplatesDir, "*.html"))
	} else {
		templates, err = template.ParseFS(builtinTemplates, "templates/*.html")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	svc := &Service{
		config:    cfg,
		templates: templates,
		logger:    logger.With().Str("component", "email").Logger(),
	}
	if cfg.Enabled {
		svc.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return svc, nil
}

// Send delivers one outbound thread message and returns the provider's email ID.
func (s *Service) Send(ctx context.Context, msg messaging.OutboundEmail) (string, error) {
	if err := validateEmailAddress(msg.To); err != nil {
		return "", fmt.Errorf("invalid recipient email: %w", err)
	}
	if !s.config.Enabled {
		s.logger.Info().
			Str("to", msg.To).
			Str("subject", msg.Subject).
			Msg("email service disabled, skipping outbound message")
		return "", nil
	}

	from := msg.From
	if from == "" {
		from = s.config.From
	}
	params := &resend.SendEmailRequest{
		From:    from,
		To:      []string{msg.To},
		ReplyTo: msg.ReplyTo,
		Subject: msg.Subject,
		Text:    msg.Text,
		Html:    msg.HTML,
		Headers: threadingHeaders(msg),
	}
	for name, value := range msg.Tags {
		params.Tags = append(params.Tags, resend.Tag{Name: name, Value: value})
	}
	return s.deliver(ctx, params)
}

// SendNotification renders the notification's template and sends it.
func (s *Service) SendNotification(ctx context.Context, n Notification) error {
	if err := validateEmailAddress(n.To); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}
	if n.Link != "" {
		if err := validateLink(n.Link); err != nil {
			return fmt.Errorf("invalid notification link: %w", err)
		}
	}
	if !s.config.Enabled {
		s.logger.Info().
			Str("to", n.To).
			Str("template", n.Template).
			Msg("email service disabled, skipping notification")
		return nil
	}

	htmlBody, err := s.Render(n)
	if err != nil {
		return err
	}
	_, err = s.deliver(ctx, &resend.SendEmailRequest{
		From:    s.config.From,
		To:      []string{n.To},
		Subject: n.Subject,
		Html:    htmlBody,
	})
	if err != nil {
		return fmt.Errorf("failed to send %s notification: %w", n.Template, err)
	}
	return nil
}

// Render executes the notification's template.
func (s *Service) Render(n Notification) (string, error) {
	var b strings.Builder
	if err := s.templates.ExecuteTemplate(&b, n.Template+".html", n); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", n.Template, err)
	}
	return b.String(), nil
}

func threadingHeaders(msg messaging.OutboundEmail) map[string]string {
	headers := map[string]string{}
	if msg.MessageID != "" {
		headers["Message-ID"] = msg.MessageID
	}
	if msg.InReplyTo != "" {
		headers["In-Reply-To"] = msg.InReplyTo
	}
	if len(msg.References) > 0 {
		headers["References"] = strings.Join(msg.References, " ")
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

// validateEmailAddress validates an email address for format and header injection attempts
func validateEmailAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	return nil
}

// validateLink rejects anything but absolute http(s) URLs so templates never
// render javascript: or data: links.
func validateLink(link string) error {
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
