package commands

import (
	"context"
	"fmt"

	"toolharvest/internal/browser"
	"toolharvest/internal/config"
	"toolharvest/internal/crawler"
	"toolharvest/internal/logger"
	"toolharvest/internal/models"
	"toolharvest/internal/registry"
)

// openSession starts the page inspection driver selected by browser.driver.
func openSession(ctx context.Context, cfg *config.Config, log *logger.Logger) (browser.Session, error) {
	switch cfg.Browser.Driver {
	case config.DriverHTTP:
		loader := browser.NewHTTPLoader(&cfg.Retry, cfg.Browser.UserAgent, cfg.Browser.BodyLimitKb, log)

		return &browser.StaticSession{Loader: loader}, nil
	case config.DriverReplay:
		return &browser.StaticSession{Loader: browser.DirLoader{Dir: cfg.Browser.ReplayDir}}, nil
	default:
		session, err := browser.NewChromeSession(ctx, browser.ChromeOptions{
			Headless:    cfg.Headless(),
			UserAgent:   cfg.Browser.UserAgent,
			EvalTimeout: config.Millis(cfg.Browser.EvalTimeoutMs),
		}, log)
		if err != nil {
			return nil, err
		}

		return session, nil
	}
}

// newCrawler opens a session and builds a crawler client on it. The caller
// closes the session.
func newCrawler(ctx context.Context, rt *runtime) (*crawler.Client, browser.Session, error) {
	rt.log.Info("🌐 Opening browser session", "driver", rt.cfg.Browser.Driver)

	session, err := openSession(ctx, rt.cfg, rt.log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s session: %w", rt.cfg.Browser.Driver, err)
	}

	client, err := crawler.NewClient(rt.cfg, session, registry.New(rt.log), rt.log)
	if err != nil {
		_ = session.Close()

		return nil, nil, err
	}

	return client, session, nil
}

// seedRegistry replays the logo claims of an earlier discovery so a separate
// extract stage sees the same registry state.
func seedRegistry(reg *registry.Registry, items []models.DiscoveredItem, enabled bool) {
	for _, item := range items {
		reg.Claim(item.Identifier, item.CandidateLogoURL, enabled)
	}
}
