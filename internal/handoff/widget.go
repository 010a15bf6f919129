package handoff

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PanelID is the fixed element id of the injected panel. Repeat injections
// find and remove the previous panel by this id, so at most one exists per
// page.
const PanelID = "chatlink-widget-panel"

// WidgetSpec declaratively describes the fallback panel. Keeping the "what"
// separate from the injection mechanism makes the rendered script testable
// without a browser.
type WidgetSpec struct {
	PanelID  string `json:"panelId"`
	Instance string `json:"instance"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Greeting string `json:"greeting"`
}

// SpecFromMessage derives the panel description from the handoff payload.
func SpecFromMessage(msg Message) WidgetSpec {
	return WidgetSpec{
		PanelID:  PanelID,
		Instance: uuid.New().String(),
		Title:    msg.Agent.Name,
		Subtitle: msg.Organization.Name,
		Greeting: fmt.Sprintf("Connected to %s. Messages typed here stay on this page.", msg.Agent.Name),
	}
}

// Injector renders a WidgetSpec directly into a page's document. It is the
// substitute delivery path when no listener acknowledges the message: the
// panel echoes sent messages locally and makes no network calls.
type Injector struct{}

// NewInjector creates an Injector.
func NewInjector() *Injector {
	return &Injector{}
}

// Inject builds the panel in the page, replacing any previous one.
func (i *Injector) Inject(ctx context.Context, page Page, spec WidgetSpec) error {
	script, err := RenderWidgetScript(spec)
	if err != nil {
		return err
	}
	if _, err := page.Evaluate(ctx, script); err != nil {
		return fmt.Errorf("inject widget: %w", err)
	}
	return nil
}

// RenderWidgetScript turns a WidgetSpec into the self-contained script that
// builds the panel. All user-derived strings travel as JSON and reach the DOM
// through textContent, never markup.
func RenderWidgetScript(spec WidgetSpec) (string, error) {
	if spec.PanelID == "" {
		spec.PanelID = PanelID
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("encode widget spec: %w", err)
	}

	return fmt.Sprintf(`(() => {
	const spec = %s;

	const existing = document.getElementById(spec.panelId);
	if (existing) existing.remove();

	const panel = document.createElement("div");
	panel.id = spec.panelId;
	panel.dataset.instance = spec.instance;
	panel.style.cssText = "position:fixed;bottom:20px;right:20px;width:320px;height:420px;" +
		"display:flex;flex-direction:column;background:#fff;border:1px solid #d0d0d0;" +
		"border-radius:10px;box-shadow:0 4px 16px rgba(0,0,0,0.2);z-index:2147483647;" +
		"font-family:system-ui,sans-serif;font-size:14px;color:#1a1a1a;";

	const header = document.createElement("div");
	header.style.cssText = "padding:10px 12px;border-bottom:1px solid #e5e5e5;";
	const title = document.createElement("div");
	title.style.fontWeight = "600";
	title.textContent = spec.title;
	const subtitle = document.createElement("div");
	subtitle.style.cssText = "font-size:12px;color:#777;";
	subtitle.textContent = spec.subtitle;
	header.appendChild(title);
	header.appendChild(subtitle);

	const log = document.createElement("div");
	log.style.cssText = "flex:1;overflow-y:auto;padding:10px 12px;";
	const addLine = (who, text) => {
		const line = document.createElement("div");
		line.style.marginBottom = "8px";
		const name = document.createElement("strong");
		name.textContent = who + ": ";
		line.appendChild(name);
		line.appendChild(document.createTextNode(text));
		log.appendChild(line);
		log.scrollTop = log.scrollHeight;
	};
	addLine(spec.title, spec.greeting);

	const footer = document.createElement("div");
	footer.style.cssText = "display:flex;gap:6px;padding:10px 12px;border-top:1px solid #e5e5e5;";
	const input = document.createElement("input");
	input.type = "text";
	input.placeholder = "Type a message";
	input.style.cssText = "flex:1;padding:6px 8px;border:1px solid #ccc;border-radius:6px;";
	const send = document.createElement("button");
	send.type = "button";
	send.textContent = "Send";
	send.style.cssText = "padding:6px 12px;border:none;border-radius:6px;background:#2563eb;color:#fff;cursor:pointer;";
	const submit = () => {
		const text = input.value.trim();
		if (!text) return;
		addLine("You", text);
		input.value = "";
	};
	send.addEventListener("click", submit);
	input.addEventListener("keydown", (e) => { if (e.key === "Enter") submit(); });
	footer.appendChild(input);
	footer.appendChild(send);

	panel.appendChild(header);
	panel.appendChild(log);
	panel.appendChild(footer);
	document.body.appendChild(panel);
	return true;
})()`, data), nil
}
