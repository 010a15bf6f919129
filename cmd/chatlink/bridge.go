package cli

import (
	"context"
	"sync"

	"github.com/chatlink/chatlink/internal/authpoll"
	"github.com/chatlink/chatlink/internal/browser"
	"github.com/chatlink/chatlink/internal/config"
	"github.com/chatlink/chatlink/internal/handoff"
)

// browserBridge lazily connects to the user's browser and adapts the session
// to the controller's interfaces. Lazy so that `chatlink status` and a purely
// credential-based login never require a running browser... except handoff,
// which always does.
type browserBridge struct {
	cfg *config.Config

	mu      sync.Mutex
	session *browser.Session
}

func newBrowserBridge(cfg *config.Config) *browserBridge {
	return &browserBridge{cfg: cfg}
}

func (b *browserBridge) get(ctx context.Context) (*browser.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session != nil {
		return b.session, nil
	}
	session, err := browser.Connect(ctx, b.cfg.Browser.CDPURL)
	if err != nil {
		return nil, err
	}
	b.session = session
	return session, nil
}

// Close disconnects from the browser if a connection was made.
func (b *browserBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}
	err := b.session.Close()
	b.session = nil
	return err
}

// OpenLogin implements controller.LoginOpener.
func (b *browserBridge) OpenLogin(ctx context.Context) error {
	session, err := b.get(ctx)
	if err != nil {
		return err
	}
	_, err = session.OpenPage(ctx, b.cfg.LoginURL())
	return err
}

// ActivePage implements controller.PageResolver.
func (b *browserBridge) ActivePage(ctx context.Context) (handoff.Page, error) {
	session, err := b.get(ctx)
	if err != nil {
		return nil, err
	}
	return session.ActivePage(ctx)
}

// Probe implements authpoll.Prober against the lazily connected session.
func (b *browserBridge) Probe(ctx context.Context) (*authpoll.Snapshot, error) {
	session, err := b.get(ctx)
	if err != nil {
		return nil, err
	}
	prober := authpoll.NewTabProber(session, b.cfg.App.BaseURL, b.cfg.App.DashboardPath)
	return prober.Probe(ctx)
}
