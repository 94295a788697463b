package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Document is the part of a browser page the loader drives.
// playwright.Page satisfies it.
type Document interface {
	Goto(url string, options ...playwright.PageGotoOptions) (playwright.Response, error)
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
	Content() (string, error)
	AddInitScript(script playwright.Script) error
}

type LoaderOptions struct {
	ScrollPixels int
	ScrollPause  time.Duration
	PollInterval time.Duration
	StablePolls  int
}

func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		ScrollPixels: 500,
		ScrollPause:  100 * time.Millisecond,
		PollInterval: 250 * time.Millisecond,
		StablePolls:  3,
	}
}

// preloadScript fires load/resize once the document is parsed so that
// client-side rendering does not hold back JSON fragments.
const preloadScript = `document.addEventListener('DOMContentLoaded', function () {
	setTimeout(function () { window.dispatchEvent(new Event('load')); }, 50);
	setTimeout(function () { window.dispatchEvent(new Event('resize')); }, 100);
});`

// Loader navigates the session page and coaxes lazily rendered content
// into the DOM.
type Loader struct {
	doc       Document
	opts      LoaderOptions
	logger    *slog.Logger
	preloaded bool
}

func NewLoader(doc Document, opts LoaderOptions, logger *slog.Logger) *Loader {
	if opts.ScrollPixels <= 0 {
		opts.ScrollPixels = 500
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.StablePolls < 1 {
		opts.StablePolls = 1
	}
	return &Loader{
		doc:    doc,
		opts:   opts,
		logger: logger.With("component", "loader"),
	}
}

// Load navigates to url and scrolls down scrollSteps times. Scrolling past
// the end of the page has no effect and is not reported.
func (l *Loader) Load(ctx context.Context, url string, scrollSteps int) error {
	l.logger.Info("loading page", "url", url, "scroll_steps", scrollSteps)

	if _, err := l.doc.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	return l.Scroll(ctx, scrollSteps)
}

func (l *Loader) Scroll(ctx context.Context, steps int) error {
	script := fmt.Sprintf("window.scrollBy(0, %d)", l.opts.ScrollPixels)

	for i := 0; i < steps; i++ {
		if _, err := l.doc.Evaluate(script); err != nil {
			return fmt.Errorf("failed to scroll (step %d): %w", i+1, err)
		}

		if err := sleep(ctx, l.opts.ScrollPause); err != nil {
			return err
		}
	}

	return nil
}

// PreloadActivation registers the activation script for every document the
// page loads from now on. Repeated calls are no-ops.
func (l *Loader) PreloadActivation() error {
	if l.preloaded {
		return nil
	}

	if err := l.doc.AddInitScript(playwright.Script{Content: playwright.String(preloadScript)}); err != nil {
		return fmt.Errorf("failed to register preload script: %w", err)
	}

	l.preloaded = true
	l.logger.Debug("preload activation registered")
	return nil
}

// WaitStable polls the number of elements matching selector until it is
// non-zero and unchanged for the configured number of polls, or until
// timeout passes. Hitting the timeout is not an error; the last count is
// returned.
func (l *Loader) WaitStable(ctx context.Context, selector string, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	script := fmt.Sprintf("document.querySelectorAll(%s).length", jsValue(selector))

	last, stable := -1, 0
	for {
		raw, err := l.doc.Evaluate(script)
		if err != nil {
			return 0, fmt.Errorf("failed to count %q: %w", selector, err)
		}

		count := toInt(raw)
		if count > 0 && count == last {
			stable++
		} else {
			stable = 0
		}
		last = count

		if stable >= l.opts.StablePolls {
			l.logger.Debug("content settled", "selector", selector, "count", count)
			return count, nil
		}

		if time.Now().After(deadline) {
			l.logger.Warn("content did not settle before timeout",
				"selector", selector,
				"count", count,
				"timeout", timeout)
			return count, nil
		}

		if err := sleep(ctx, l.opts.PollInterval); err != nil {
			return count, err
		}
	}
}

// HTML returns the current page source.
func (l *Loader) HTML() (string, error) {
	html, err := l.doc.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return html, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
