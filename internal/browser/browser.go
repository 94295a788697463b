package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Session is one launched browser with a single working page.
// It is owned by exactly one run at a time.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	Locale         string
	Languages      []string
	Vendor         string
	Platform       string
	WebGLVendor    string
	Renderer       string
	ViewportWidth  int
	ViewportHeight int
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        15 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Locale:         "en-US",
		Languages:      []string{"en-US", "en"},
		Vendor:         "Google Inc.",
		Platform:       "Win32",
		WebGLVendor:    "Intel Inc.",
		Renderer:       "Intel Iris OpenGL Engine",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
	}
}

// launchArgs are the Chromium switches used to look like a regular desktop
// browser and to run inside containers.
func launchArgs(opts *Options) []string {
	return []string{
		"--no-sandbox",
		"--disable-setuid-sandbox",
		"--disable-dev-shm-usage",
		"--disable-gpu",
		"--disable-extensions",
		"--disable-blink-features=AutomationControlled",
		"--start-maximized",
		fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		"--user-agent=" + opts.UserAgent,
	}
}

// New launches Chromium and prepares a page with the evasion scripts
// installed. Launch failures are returned to the caller unchanged in kind.
func New(opts *Options, logger *slog.Logger) (*Session, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless:          &opts.Headless,
		Args:              launchArgs(opts),
		IgnoreDefaultArgs: []string{"--enable-automation"},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: map[string]string{
			"Accept-Language": acceptLanguage(opts.Languages),
		},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	s := &Session{
		pw:      pw,
		browser: browser,
		context: context,
		logger:  logger.With("component", "browser"),
	}

	for _, script := range evasionScripts(opts) {
		if err := context.AddInitScript(playwright.Script{Content: playwright.String(script)}); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to install evasion script: %w", err)
		}
	}

	timeout := float64(opts.Timeout.Milliseconds())
	context.SetDefaultTimeout(timeout)

	page, err := context.NewPage()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(timeout)
	s.page = page

	s.logger.Info("browser session ready",
		"headless", opts.Headless,
		"platform", opts.Platform,
		"timeout", opts.Timeout)

	return s, nil
}

// WithSession launches a session, hands it to fn and always closes it,
// including when fn panics or ctx is cancelled mid-run.
func WithSession(ctx context.Context, opts *Options, logger *slog.Logger, fn func(context.Context, *Session) error) (err error) {
	s, err := New(opts, logger)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			s.logger.Error("failed to close browser session", "error", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}()

	return fn(ctx, s)
}

// Page returns the session's working page.
func (s *Session) Page() playwright.Page {
	return s.page
}

func (s *Session) Close() error {
	var errs []error

	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
		s.page = nil
	}

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
		s.context = nil
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
		s.browser = nil
	}

	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		s.pw = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	s.logger.Info("browser session closed")
	return nil
}

func acceptLanguage(languages []string) string {
	if len(languages) == 0 {
		return "en-US,en;q=0.9"
	}

	parts := make([]string, 0, len(languages))
	for i, lang := range languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - float64(i)*0.1
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}
