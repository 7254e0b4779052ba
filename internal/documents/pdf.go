package documents

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

const defaultPDFTimeout = 30 * time.Second

// RodPDF prints HTML through headless Chrome. The browser is started on first
// use and shared by every render; each render gets its own page.
type RodPDF struct {
	controlURL string
	timeout    time.Duration
	logger     zerolog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launched *launcher.Launcher
}

// NewRodPDF connects to controlURL, or launches a local headless browser when
// it is empty.
func NewRodPDF(controlURL string, timeout time.Duration, logger zerolog.Logger) *RodPDF {
	if timeout <= 0 {
		timeout = defaultPDFTimeout
	}
	return &RodPDF{
		controlURL: controlURL,
		timeout:    timeout,
		logger:     logger.With().Str("component", "pdf").Logger(),
	}
}

func (p *RodPDF) connect() (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != nil {
		return p.browser, nil
	}

	controlURL := p.controlURL
	if controlURL == "" {
		l := launcher.New().Headless(true).Set("disable-gpu")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		p.launched = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	p.browser = browser
	p.logger.Info().Bool("local", p.launched != nil).Msg("pdf browser connected")
	return browser, nil
}

// PDF renders html on a blank page and prints it on US Letter with backgrounds.
func (p *RodPDF) PDF(ctx context.Context, html string) ([]byte, error) {
	browser, err := p.connect()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		p.reset()
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = page.Close() }()

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("set document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for load: %w", err)
	}

	width, height := 8.5, 11.0
	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground: true,
		PaperWidth:      &width,
		PaperHeight:     &height,
	})
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	out, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	return out, nil
}

// reset drops a browser connection that stopped answering so the next render reconnects.
func (p *RodPDF) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != nil {
		_ = p.browser.Close()
		p.browser = nil
	}
}

// Close shuts the browser down, and the local Chrome process if one was launched.
func (p *RodPDF) Close() error {
	p.reset()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.launched != nil {
		p.launched.Kill()
		p.launched = nil
	}
	return nil
}
