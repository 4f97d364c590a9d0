// Package render loads pages in headless Chrome and returns the DOM after
// scripts have run.
package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagemark/internal/extract"
)

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const (
	defaultSettleDelay  = 2 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	defaultWidth        = 1920
	defaultHeight       = 1080
)

// hideWebdriver runs before any page script so navigator.webdriver reads as
// undefined.
const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined, configurable: true});`

// Config controls browser launch and page readiness.
type Config struct {
	UserAgent    string        `mapstructure:"user_agent"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	WindowWidth  int           `mapstructure:"window_width"`
	WindowHeight int           `mapstructure:"window_height"`
	ExecPath     string        `mapstructure:"exec_path"`
	Headless     bool          `mapstructure:"headless"`
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = defaultWidth
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = defaultHeight
	}
	return c
}

// DefaultConfig returns the launch settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		UserAgent:    DefaultUserAgent,
		SettleDelay:  defaultSettleDelay,
		PollInterval: defaultPollInterval,
		WindowWidth:  defaultWidth,
		WindowHeight: defaultHeight,
		Headless:     true,
	}
}

// Chromedp implements extract.Renderer. Every Render call owns a dedicated
// browser process, so nothing is shared between attempts or workers.
type Chromedp struct {
	cfg    Config
	logger *zap.Logger
}

// NewChromedp creates a renderer using the provided configuration.
func NewChromedp(cfg Config, logger *zap.Logger) *Chromedp {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chromedp{cfg: cfg.withDefaults(), logger: logger}
}

// Render launches a browser, navigates to rawURL, waits for the document to
// finish loading plus the settle delay, and returns the outer HTML. The
// browser is shut down before Render returns, whatever the outcome.
func (r *Chromedp) Render(ctx context.Context, rawURL string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return "", extract.FetchError(fmt.Errorf("render timeout must be > 0, got %s", timeout))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(r.debugf),
		chromedp.WithErrorf(r.debugf),
	)
	defer cancelBrowser()

	taskCtx, cancelTask := context.WithTimeout(browserCtx, timeout)
	defer cancelTask()

	r.logger.Debug("navigating", zap.String("url", rawURL), zap.Duration("timeout", timeout))
	start := time.Now()

	var html string
	if err := chromedp.Run(taskCtx, r.actions(rawURL, &html)...); err != nil {
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", extract.FetchError(fmt.Errorf("navigate %s: timed out after %s: %w", rawURL, timeout, err))
		}
		return "", extract.FetchError(fmt.Errorf("navigate %s: %w", rawURL, err))
	}
	if strings.TrimSpace(html) == "" {
		return "", extract.FetchError(fmt.Errorf("navigate %s: %w", rawURL, extract.ErrEmptyRender))
	}

	r.logger.Debug("rendered",
		zap.String("url", rawURL),
		zap.Int("bytes", len(html)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return html, nil
}

func (r *Chromedp) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", r.cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(r.cfg.WindowWidth, r.cfg.WindowHeight),
		chromedp.UserAgent(r.cfg.UserAgent),
	)
	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}
	return opts
}

func (r *Chromedp) actions(rawURL string, html *string) []chromedp.Action {
	var ready bool
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx); err != nil {
				return fmt.Errorf("inject webdriver override: %w", err)
			}
			return nil
		}),
		emulation.SetUserAgentOverride(r.cfg.UserAgent),
		emulation.SetDeviceMetricsOverride(int64(r.cfg.WindowWidth), int64(r.cfg.WindowHeight), 1, false),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Poll(`document.readyState === "complete"`, &ready,
			chromedp.WithPollingInterval(r.cfg.PollInterval),
		),
	}
	if r.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(r.cfg.SettleDelay))
	}
	return append(actions, chromedp.OuterHTML("html", html, chromedp.ByQuery))
}

func (r *Chromedp) debugf(format string, args ...any) {
	r.logger.Debug("chromedp", zap.String("msg", fmt.Sprintf(format, args...)))
}
