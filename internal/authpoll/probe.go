package authpoll

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chatlink/chatlink/internal/browser"
)

// TabProber probes the chatlink web-app tab through the browser session. The
// probe script only reads local storage and the DOM; it performs no writes.
type TabProber struct {
	session       *browser.Session
	appURL        string
	dashboardPath string
}

// NewTabProber creates a prober looking for a tab under appURL.
func NewTabProber(session *browser.Session, appURL, dashboardPath string) *TabProber {
	return &TabProber{
		session:       session,
		appURL:        appURL,
		dashboardPath: dashboardPath,
	}
}

// probeResult mirrors the probe script's return value.
type probeResult struct {
	Token             string          `json:"token"`
	User              json.RawMessage `json:"user"`
	CurrentURL        string          `json:"currentUrl"`
	IsDashboard       bool            `json:"isDashboard"`
	HasToast          bool            `json:"hasToast"`
	ToastText         string          `json:"toastText"`
	IsAlreadyLoggedIn bool            `json:"isAlreadyLoggedIn"`
}

// Probe implements Prober. A missing tab returns (nil, nil); a script failure
// (page mid-load, cross-origin frame) returns an error the poller treats as
// "not yet available".
func (t *TabProber) Probe(ctx context.Context) (*Snapshot, error) {
	page := t.session.FindPage(t.appURL)
	if page == nil {
		return nil, nil
	}

	result, err := page.Evaluate(ctx, t.script())
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", page.URL(), err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("probe result not serializable: %w", err)
	}
	var pr probeResult
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("decode probe result: %w", err)
	}

	return &Snapshot{
		Token:             pr.Token,
		User:              pr.User,
		CurrentURL:        pr.CurrentURL,
		IsDashboard:       pr.IsDashboard,
		HasToast:          pr.HasToast,
		ToastText:         pr.ToastText,
		IsAlreadyLoggedIn: pr.IsAlreadyLoggedIn,
	}, nil
}

// script builds the read-only probe. The already-logged-in detection scans
// visible notification text and is best-effort only: it depends on the app's
// copy and must not grow without checking the app side.
func (t *TabProber) script() string {
	return fmt.Sprintf(`(() => {
		const token = window.localStorage.getItem("token") || "";
		let user = null;
		try {
			const raw = window.localStorage.getItem("user");
			if (raw) user = JSON.parse(raw);
		} catch (e) {
			user = null;
		}

		const path = window.location.pathname;
		const isDashboard = path.startsWith(%q);

		let hasToast = false;
		let toastText = "";
		const toast = document.querySelector(
			'[role="alert"], .toast, .notification, .alert'
		);
		if (toast && toast.offsetParent !== null) {
			hasToast = true;
			toastText = (toast.textContent || "").trim();
		}

		const isAlreadyLoggedIn = hasToast &&
			/already logged in|already signed in/i.test(toastText);

		return {
			token: token,
			user: user,
			currentUrl: window.location.href,
			isDashboard: isDashboard,
			hasToast: hasToast,
			toastText: toastText,
			isAlreadyLoggedIn: isAlreadyLoggedIn,
		};
	})()`, t.dashboardPath)
}
