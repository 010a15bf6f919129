// Package controller owns the session state machine: logged out, through
// authentication (local or detected in an external tab), organization and
// agent selection, to the handoff into the active page. Every failure branch
// lands back in a valid state; errors become user-facing status text at the
// surface, never crashes.
package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatlink/chatlink/internal/authpoll"
	"github.com/chatlink/chatlink/internal/backend"
	"github.com/chatlink/chatlink/internal/handoff"
	"github.com/chatlink/chatlink/internal/logging"
)

// State is the controller's position in the flow.
type State int

const (
	StateLoggedOut State = iota
	StateAuthenticating
	StateOrgSelection
	StateAgentSelection
	StateHandoff
)

// String returns a readable state name.
func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged-out"
	case StateAuthenticating:
		return "authenticating"
	case StateOrgSelection:
		return "org-selection"
	case StateAgentSelection:
		return "agent-selection"
	case StateHandoff:
		return "handoff"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Storage is the slice of the store the controller uses.
type Storage interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	SetSelectedOrg(ctx context.Context, org *backend.Organization) error
	SetSelectedAgent(ctx context.Context, agent *backend.Agent) error
	Clear(ctx context.Context) error
}

// API is the slice of the backend client the controller uses.
type API interface {
	Authenticate(ctx context.Context, email, password string) (string, *backend.UserSummary, error)
	Me(ctx context.Context) (*backend.UserSummary, error)
	Organizations(ctx context.Context) ([]backend.Organization, error)
	OrganizationAgents(ctx context.Context, orgID int64) ([]backend.Agent, error)
}

// LoginOpener opens the web application's login page in a new tab. It must
// return once the tab has been requested, not when login completes.
type LoginOpener interface {
	OpenLogin(ctx context.Context) error
}

// Poller detects an externally completed login.
type Poller interface {
	Poll(ctx context.Context, report func(status string)) (*authpoll.Result, error)
}

// PageResolver finds the page the user is currently viewing, resolved at the
// moment of sending, never cached.
type PageResolver interface {
	ActivePage(ctx context.Context) (handoff.Page, error)
}

// Messenger is the primary delivery path.
type Messenger interface {
	Send(ctx context.Context, page handoff.Page, msg handoff.Message) error
}

// Injector is the fallback delivery path.
type Injector interface {
	Inject(ctx context.Context, page handoff.Page, spec handoff.WidgetSpec) error
}

// HandoffResult reports which delivery path reached the page.
type HandoffResult struct {
	Delivered bool // page listener acknowledged the message
	Injected  bool // widget was injected directly
}

// Controller drives the session flow. It is not safe for concurrent use; one
// interactive surface drives it at a time.
type Controller struct {
	store     Storage
	api       API
	opener    LoginOpener
	poller    Poller
	pages     PageResolver
	messenger Messenger
	injector  Injector

	state         State
	user          *backend.UserSummary
	orgs          []backend.Organization
	selectedOrg   *backend.Organization
	agents        []backend.Agent
	selectedAgent *backend.Agent
}

// New creates a Controller in StateLoggedOut.
func New(store Storage, api API, opener LoginOpener, poller Poller, pages PageResolver, messenger Messenger, injector Injector) *Controller {
	return &Controller{
		store:     store,
		api:       api,
		opener:    opener,
		poller:    poller,
		pages:     pages,
		messenger: messenger,
		injector:  injector,
		state:     StateLoggedOut,
	}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// User returns the authenticated user, if any.
func (c *Controller) User() *backend.UserSummary { return c.user }

// Organizations returns the loaded organization list.
func (c *Controller) Organizations() []backend.Organization { return c.orgs }

// Agents returns the agent list for the selected organization.
func (c *Controller) Agents() []backend.Agent { return c.agents }

// SelectedOrg returns the selected organization, if any.
func (c *Controller) SelectedOrg() *backend.Organization { return c.selectedOrg }

// SelectedAgent returns the selected agent, if any.
func (c *Controller) SelectedAgent() *backend.Agent { return c.selectedAgent }

// Resume validates a token left over from a previous run. A valid token
// skips straight to organization selection; anything else clears storage and
// lands in StateLoggedOut.
func (c *Controller) Resume(ctx context.Context) error {
	token, err := c.store.Token(ctx)
	if err != nil {
		c.state = StateLoggedOut
		return nil
	}
	if token == "" {
		c.state = StateLoggedOut
		return nil
	}

	c.state = StateAuthenticating
	user, err := c.api.Me(ctx)
	if err != nil {
		logging.Debugf("controller: stored token rejected: %v", err)
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			logging.Errorf("controller: clearing stale session: %v", clearErr)
		}
		c.state = StateLoggedOut
		return nil
	}

	c.user = user
	return c.enterOrgSelection(ctx)
}

// Login authenticates with credentials. On any failure the state remains
// StateLoggedOut and the error carries the user-facing message.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	c.state = StateAuthenticating

	token, user, err := c.api.Authenticate(ctx, email, password)
	if err != nil {
		c.state = StateLoggedOut
		return err
	}

	return c.finishLogin(ctx, token, user)
}

// LoginExternal opens the web application's login page in a new tab and
// polls for a completed login. The open request never blocks on the login
// itself. ErrNoSignal leaves the controller in StateAuthenticating so the
// user can trigger another round of checks.
func (c *Controller) LoginExternal(ctx context.Context, report func(status string)) error {
	c.state = StateAuthenticating

	if err := c.opener.OpenLogin(ctx); err != nil {
		c.state = StateLoggedOut
		return fmt.Errorf("could not open the login page: %w", err)
	}

	return c.CheckExternalLogin(ctx, report)
}

// CheckExternalLogin runs one round of login polling against the already
// opened tab. Reusable for the manual "check again" trigger.
func (c *Controller) CheckExternalLogin(ctx context.Context, report func(status string)) error {
	if c.state != StateAuthenticating {
		c.state = StateAuthenticating
	}

	result, err := c.poller.Poll(ctx, report)
	if err != nil {
		if errors.Is(err, authpoll.ErrNoSignal) {
			// Not a failure: the user may still be typing a password.
			return err
		}
		c.state = StateLoggedOut
		return err
	}

	return c.finishLogin(ctx, result.Token, result.User)
}

// finishLogin persists the token, resolves the user, and enters organization
// selection. A new login overwrites prior state, never merges with it.
func (c *Controller) finishLogin(ctx context.Context, token string, user *backend.UserSummary) error {
	if err := c.store.SetToken(ctx, token); err != nil {
		c.state = StateLoggedOut
		return fmt.Errorf("could not save the session: %w", err)
	}

	if user == nil {
		resolved, err := c.api.Me(ctx)
		if err != nil {
			logging.Warnf("controller: user lookup after login: %v", err)
		} else {
			user = resolved
		}
	}
	c.user = user

	return c.enterOrgSelection(ctx)
}

// enterOrgSelection loads organizations and moves to StateOrgSelection. A
// load failure still enters the state with an empty list; the error is
// surfaced alongside it.
func (c *Controller) enterOrgSelection(ctx context.Context) error {
	c.selectedOrg = nil
	c.selectedAgent = nil
	c.agents = nil
	c.state = StateOrgSelection

	orgs, err := c.api.Organizations(ctx)
	if err != nil {
		c.orgs = nil
		return fmt.Errorf("could not load organizations: %w", err)
	}
	c.orgs = orgs
	return nil
}

// ReloadOrganizations refetches the organization list after a load failure.
func (c *Controller) ReloadOrganizations(ctx context.Context) error {
	if c.state != StateOrgSelection {
		return fmt.Errorf("cannot reload organizations while %s", c.state)
	}
	return c.enterOrgSelection(ctx)
}

// SelectOrganization picks an organization and loads its agents. Re-invoking
// with the same id refetches; the agent list is always replaced, never
// merged. A fetch failure keeps StateAgentSelection with an empty list.
func (c *Controller) SelectOrganization(ctx context.Context, orgID int64) error {
	if c.state != StateOrgSelection && c.state != StateAgentSelection {
		return fmt.Errorf("cannot select an organization while %s", c.state)
	}

	org := c.findOrg(orgID)
	if org == nil {
		return fmt.Errorf("unknown organization: %d", orgID)
	}

	c.selectedOrg = org
	c.selectedAgent = nil
	c.state = StateAgentSelection

	agents, err := c.api.OrganizationAgents(ctx, orgID)
	if err != nil {
		c.agents = []backend.Agent{}
		return fmt.Errorf("could not load agents for %s: %w", org.Name, err)
	}
	c.agents = agents
	return nil
}

// Back returns from agent selection to organization selection, discarding
// the agent list.
func (c *Controller) Back() error {
	if c.state != StateAgentSelection {
		return fmt.Errorf("cannot go back while %s", c.state)
	}
	c.selectedOrg = nil
	c.selectedAgent = nil
	c.agents = nil
	c.state = StateOrgSelection
	return nil
}

// SelectAgent persists the selection and hands it off to the active page:
// first the message path, then — on a delivery failure only — direct widget
// injection with exactly the same organization/agent pair. There is never a
// second message attempt.
func (c *Controller) SelectAgent(ctx context.Context, agentID int64) (*HandoffResult, error) {
	if c.state != StateAgentSelection {
		return nil, fmt.Errorf("cannot select an agent while %s", c.state)
	}

	agent := c.findAgent(agentID)
	if agent == nil {
		return nil, fmt.Errorf("unknown agent: %d", agentID)
	}
	c.selectedAgent = agent

	// Persist the selection first so the target tab can read it
	// independently of this process's lifetime.
	if err := c.store.SetSelectedOrg(ctx, c.selectedOrg); err != nil {
		return nil, fmt.Errorf("could not save the selection: %w", err)
	}
	if err := c.store.SetSelectedAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("could not save the selection: %w", err)
	}

	page, err := c.pages.ActivePage(ctx)
	if err != nil {
		return nil, fmt.Errorf("no page to hand off to: %w", err)
	}

	msg := handoff.NewMessage(*c.selectedOrg, *agent)

	if err := c.messenger.Send(ctx, page, msg); err == nil {
		c.state = StateHandoff
		return &HandoffResult{Delivered: true}, nil
	} else if !errors.Is(err, handoff.ErrNoListener) {
		return nil, err
	}

	logging.Infof("controller: no listener on %s, injecting widget", page.URL())
	if err := c.injector.Inject(ctx, page, handoff.SpecFromMessage(msg)); err != nil {
		// Double failure: both delivery paths are down.
		logging.Errorf("controller: widget injection failed: %v", err)
		return nil, fmt.Errorf("could not reach the page: %w", err)
	}

	c.state = StateHandoff
	return &HandoffResult{Injected: true}, nil
}

// Logout clears the session, the selection, and all loaded lists from any
// state.
func (c *Controller) Logout(ctx context.Context) error {
	err := c.store.Clear(ctx)

	c.user = nil
	c.orgs = nil
	c.selectedOrg = nil
	c.agents = nil
	c.selectedAgent = nil
	c.state = StateLoggedOut

	if err != nil {
		return fmt.Errorf("could not clear stored session: %w", err)
	}
	return nil
}

func (c *Controller) findOrg(id int64) *backend.Organization {
	for i := range c.orgs {
		if c.orgs[i].ID == id {
			return &c.orgs[i]
		}
	}
	return nil
}

func (c *Controller) findAgent(id int64) *backend.Agent {
	for i := range c.agents {
		if c.agents[i].ID == id {
			return &c.agents[i]
		}
	}
	return nil
}
