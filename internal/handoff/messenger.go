package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chatlink/chatlink/internal/logging"
)

// ErrNoListener means the page did not acknowledge the message: no listener
// installed, navigation mid-flight, or the tab went away. It is a recoverable
// outcome, not a fatal error; the caller falls back to injection.
var ErrNoListener = errors.New("no listener acknowledged the message")

// Page is the slice of the browser page the handoff path needs.
type Page interface {
	Evaluate(ctx context.Context, script string) (any, error)
	URL() string
}

// ackAction is the reply the page listener posts back on receipt.
const ackAction = "openChatbotAck"

// ackTimeoutMs bounds the in-page wait for an acknowledgment.
const ackTimeoutMs = 1500

// Messenger delivers Messages to a page.
type Messenger struct{}

// NewMessenger creates a Messenger.
func NewMessenger() *Messenger {
	return &Messenger{}
}

// Send posts msg into the page and waits for the listener's acknowledgment.
// Any failure to get an acknowledgment is reported as ErrNoListener.
func (m *Messenger) Send(ctx context.Context, page Page, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	script := fmt.Sprintf(`(() => new Promise((resolve) => {
		const payload = %s;
		let done = false;
		const finish = (ok) => {
			if (done) return;
			done = true;
			window.removeEventListener("message", onReply);
			resolve(ok);
		};
		const onReply = (event) => {
			if (event.data && event.data.action === %q) finish(true);
		};
		window.addEventListener("message", onReply);
		window.postMessage(payload, "*");
		setTimeout(() => finish(false), %d);
	}))()`, payload, ackAction, ackTimeoutMs)

	result, err := page.Evaluate(ctx, script)
	if err != nil {
		logging.Debugf("handoff: message delivery to %s failed: %v", page.URL(), err)
		return fmt.Errorf("%w: %v", ErrNoListener, err)
	}

	if acked, ok := result.(bool); !ok || !acked {
		return ErrNoListener
	}
	return nil
}
