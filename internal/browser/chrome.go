package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"toolharvest/internal/logger"
)

// conditionInterval is how often WaitForCondition re-evaluates its query.
const conditionInterval = 100 * time.Millisecond

// ChromeOptions configures the headless browser.
type ChromeOptions struct {
	Headless    bool
	UserAgent   string
	// EvalTimeout bounds every script evaluation and scroll; 0 means no bound.
	EvalTimeout time.Duration
}

// ChromeSession owns one Chrome process; each page is a tab in it.
type ChromeSession struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	evalTimeout   time.Duration
	log           *logger.Logger
}

// NewChromeSession starts Chrome.
func NewChromeSession(ctx context.Context, opts ChromeOptions, log *logger.Logger) (*ChromeSession, error) {
	if log == nil {
		log = logger.Discard()
	}

	chromeOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserAgent != "" {
		chromeOpts = append(chromeOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, chromeOpts...)

	// chromedp's own logging is noisy about unknown CDP events.
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...any) {}))

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()

		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &ChromeSession{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		evalTimeout:   opts.EvalTimeout,
		log:           log.With("component", "chrome"),
	}, nil
}

// OpenPage opens a new tab.
func (s *ChromeSession) OpenPage(ctx context.Context) (Page, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()

		return nil, nil, fmt.Errorf("failed to open tab: %w", err)
	}

	return &ChromePage{tab: tabCtx, evalTimeout: s.evalTimeout, log: s.log}, cancel, nil
}

// Close shuts the browser down.
func (s *ChromeSession) Close() error {
	s.browserCancel()
	s.allocCancel()

	return nil
}

// ChromePage drives one tab.
type ChromePage struct {
	tab         context.Context
	evalTimeout time.Duration
	log         *logger.Logger
}

// run executes actions in the tab, aborting when ctx ends or timeout elapses.
func (p *ChromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := boundedContext(p.tab, ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	return err
}

// Navigate loads url and waits for the requested lifecycle point.
func (p *ChromePage) Navigate(ctx context.Context, url string, opts NavigateOptions) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)

		defer cancel()
	}

	var action chromedp.Action = chromedp.Navigate(url)
	if opts.WaitUntil == WaitDOMContentLoaded {
		action = chromedp.Tasks{
			chromedp.ActionFunc(func(ctx context.Context) error {
				_, _, errorText, err := page.Navigate(url).Do(ctx)
				if err != nil {
					return err
				}

				if errorText != "" {
					return fmt.Errorf("navigation failed: %s", errorText)
				}

				return nil
			}),
			chromedp.WaitReady("body", chromedp.ByQuery),
		}
	}

	if err := p.run(ctx, 0, action); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	p.log.Debug("navigated", "url", url)

	return nil
}

// Evaluate runs the query's script with its JSON-encoded arguments.
func (p *ChromePage) Evaluate(ctx context.Context, q Query, out any) error {
	args := q.Args
	if args == nil {
		args = []any{}
	}

	encoded, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode query args: %w", err)
	}

	expr := fmt.Sprintf("(%s).apply(null, %s)", q.Script, encoded)

	if err := p.run(ctx, p.evalTimeout, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("query %s failed: %w", q.Name, err)
	}

	return nil
}

// ScrollTo scrolls the window to vertical offset y.
func (p *ChromePage) ScrollTo(ctx context.Context, y int) error {
	return p.run(ctx, p.evalTimeout, chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %d)", y), nil))
}

// Wait sleeps for d unless ctx ends first.
func (p *ChromePage) Wait(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

// WaitForCondition polls a boolean query until it holds or timeout elapses.
func (p *ChromePage) WaitForCondition(ctx context.Context, q Query, timeout time.Duration) (bool, error) {
	return pollCondition(ctx, timeout, conditionInterval, func(ctx context.Context, holds *bool) error {
		return p.Evaluate(ctx, q, holds)
	})
}
