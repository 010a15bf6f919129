// Package tui renders the interactive screens: login, organization and agent
// selection, and flow status lines.
package tui

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/chatlink/chatlink/internal/backend"
)

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Login methods returned by ChooseLoginMethod.
const (
	MethodCredentials = "credentials"
	MethodBrowser     = "browser"
)

// Status prints a neutral status line.
func Status(msg string) {
	fmt.Println(statusStyle.Render(msg))
}

// Errorln prints an error line. Errors here are surfaced state, not crashes.
func Errorln(msg string) {
	fmt.Println(errorStyle.Render(msg))
}

// Success prints a confirmation line.
func Success(msg string) {
	fmt.Println(okStyle.Render(msg))
}

// ChooseLoginMethod asks how to authenticate.
func ChooseLoginMethod() (string, error) {
	var method string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("How do you want to log in?").
			Options(
				huh.NewOption("Email and password", MethodCredentials),
				huh.NewOption("Log in via the browser", MethodBrowser),
			).
			Value(&method),
	))
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return method, nil
}

// Credentials prompts for email and password.
func Credentials() (email, password string, err error) {
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Email").
			Placeholder("you@example.com").
			Value(&email),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&password),
	))
	if err := form.Run(); err != nil {
		return "", "", fmt.Errorf("prompt failed: %w", err)
	}
	return email, password, nil
}

// ConfirmRecheck asks whether to run another round of login checks.
func ConfirmRecheck() (bool, error) {
	return ConfirmRetry("No login detected yet. Check again?")
}

// ConfirmRetry asks a yes/no retry question.
func ConfirmRetry(title string) (bool, error) {
	confirmed := true
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}

// SelectOrganization shows the organization list. With no organizations it
// renders the empty state and returns ok=false — that is not an error.
func SelectOrganization(orgs []backend.Organization) (id int64, ok bool, err error) {
	if len(orgs) == 0 {
		fmt.Println(emptyStyle.Render("You don't belong to any organizations yet."))
		return 0, false, nil
	}

	options := make([]huh.Option[int64], len(orgs))
	for i, org := range orgs {
		label := org.Name
		if org.Description != "" {
			label = fmt.Sprintf("%s — %s", org.Name, org.Description)
		}
		options[i] = huh.NewOption(fmt.Sprintf("%s (%d members)", label, org.MemberCount), org.ID)
	}

	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int64]().
			Title("Select an organization").
			Options(options...).
			Value(&id),
	))
	if err := form.Run(); err != nil {
		return 0, false, fmt.Errorf("prompt failed: %w", err)
	}
	return id, true, nil
}

// backSentinel marks the "go back" option in the agent list.
const backSentinel = int64(-1)

// SelectAgent shows the agent list for the selected organization. back is
// true when the user chose to return to organization selection.
func SelectAgent(agents []backend.Agent) (id int64, back bool, err error) {
	options := make([]huh.Option[int64], 0, len(agents)+1)
	for _, agent := range agents {
		label := fmt.Sprintf("%s (%s)", agent.Name, agent.Model)
		if agent.Description != "" {
			label = fmt.Sprintf("%s — %s", label, agent.Description)
		}
		options = append(options, huh.NewOption(label, agent.ID))
	}
	if len(agents) == 0 {
		fmt.Println(emptyStyle.Render("This organization has no agents."))
	}
	options = append(options, huh.NewOption("← Back to organizations", backSentinel))

	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int64]().
			Title("Select an agent").
			Options(options...).
			Value(&id),
	))
	if err := form.Run(); err != nil {
		return 0, false, fmt.Errorf("prompt failed: %w", err)
	}
	if id == backSentinel {
		return 0, true, nil
	}
	return id, false, nil
}
