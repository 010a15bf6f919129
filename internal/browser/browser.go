// Package browser provides Playwright-based access to the user's running
// browser over the Chrome DevTools Protocol. chatlink never launches its own
// browser; it attaches to one already running with remote debugging enabled.
package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

var (
	// Playwright instance (singleton)
	pwOnce     sync.Once
	pwInstance *playwright.Playwright
	pwErr      error
)

// getPlaywright returns the singleton Playwright instance.
func getPlaywright() (*playwright.Playwright, error) {
	pwOnce.Do(func() {
		if err := playwright.Install(); err != nil {
			pwErr = fmt.Errorf("failed to install playwright driver: %w", err)
			return
		}
		pw, err := playwright.Run()
		if err != nil {
			pwErr = fmt.Errorf("failed to start playwright: %w", err)
			return
		}
		pwInstance = pw
	})
	return pwInstance, pwErr
}

// IsReachable checks whether a CDP endpoint responds.
func IsReachable(cdpURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	versionURL := strings.TrimSuffix(cdpURL, "/") + "/json/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Session is a connection to the user's browser.
type Session struct {
	mu      sync.RWMutex
	browser playwright.Browser
	closed  bool
}

// Connect attaches to the browser at cdpURL.
func Connect(ctx context.Context, cdpURL string) (*Session, error) {
	if !IsReachable(cdpURL, 2*time.Second) {
		return nil, fmt.Errorf("no browser listening at %s (start Chrome with --remote-debugging-port)", cdpURL)
	}

	pw, err := getPlaywright()
	if err != nil {
		return nil, err
	}

	browser, err := pw.Chromium.ConnectOverCDP(cdpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CDP at %s: %w", cdpURL, err)
	}

	return &Session{browser: browser}, nil
}

// Close disconnects from the browser. The browser itself is the user's and is
// left running.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.browser != nil {
		return s.browser.Close()
	}
	return nil
}

// pages returns all open pages across contexts.
func (s *Session) pagesLocked() []playwright.Page {
	var pages []playwright.Page
	for _, bctx := range s.browser.Contexts() {
		pages = append(pages, bctx.Pages()...)
	}
	return pages
}

// ActivePage returns the page the user is currently viewing. CDP exposes no
// reliable focus signal across contexts, so the last page whose document is
// visible wins, falling back to the most recently opened page.
func (s *Session) ActivePage(ctx context.Context) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("session is closed")
	}

	pages := s.pagesLocked()
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages open")
	}

	for i := len(pages) - 1; i >= 0; i-- {
		visible, err := pages[i].Evaluate(`document.visibilityState === "visible"`)
		if err != nil {
			continue
		}
		if v, ok := visible.(bool); ok && v {
			return &Page{page: pages[i]}, nil
		}
	}
	return &Page{page: pages[len(pages)-1]}, nil
}

// FindPage returns the first open page whose URL starts with urlPrefix, or
// nil if none matches.
func (s *Session) FindPage(urlPrefix string) *Page {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}

	for _, p := range s.pagesLocked() {
		if strings.HasPrefix(p.URL(), urlPrefix) {
			return &Page{page: p}
		}
	}
	return nil
}

// OpenPage opens url in a new tab and returns without waiting for the page to
// finish loading.
func (s *Session) OpenPage(ctx context.Context, url string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("session is closed")
	}

	var bctx playwright.BrowserContext
	if contexts := s.browser.Contexts(); len(contexts) > 0 {
		bctx = contexts[0]
	} else {
		var err error
		bctx, err = s.browser.NewContext()
		if err != nil {
			return nil, fmt.Errorf("failed to create browser context: %w", err)
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	// Fire the navigation but do not block on load completion.
	_, err = page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateCommit,
		Timeout:   playwright.Float(10_000),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", url, err)
	}

	return &Page{page: page}, nil
}

// Page wraps a Playwright page.
type Page struct {
	page playwright.Page
}

// URL returns the page's current URL.
func (p *Page) URL() string {
	return p.page.URL()
}

// Evaluate runs script in the page and returns its result.
func (p *Page) Evaluate(ctx context.Context, script string) (any, error) {
	result, err := p.page.Evaluate(script)
	if err != nil {
		return nil, fmt.Errorf("evaluate failed: %w", err)
	}
	return result, nil
}
