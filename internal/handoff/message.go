// Package handoff delivers the selected organization/agent pair to the page
// the user is viewing. The primary path posts a message to a listener the
// page may have installed; the fallback injects a minimal self-contained chat
// panel directly so the user always gets a visible surface.
package handoff

import (
	"github.com/chatlink/chatlink/internal/backend"
)

// ActionOpenChatbot is the single message action the page listener handles.
const ActionOpenChatbot = "openChatbot"

// Message is the wire payload sent into the active tab. It crosses an
// execution-context boundary, so it must stay a plain serializable value.
type Message struct {
	Action       string               `json:"action"`
	Organization backend.Organization `json:"organization"`
	Agent        backend.Agent        `json:"agent"`
}

// NewMessage builds the openChatbot payload.
func NewMessage(org backend.Organization, agent backend.Agent) Message {
	return Message{
		Action:       ActionOpenChatbot,
		Organization: org,
		Agent:        agent,
	}
}
