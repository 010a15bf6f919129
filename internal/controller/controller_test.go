package controller

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlink/chatlink/internal/authpoll"
	"github.com/chatlink/chatlink/internal/backend"
	"github.com/chatlink/chatlink/internal/handoff"
)

// --- fakes ---

type fakeStore struct {
	token        string
	org          *backend.Organization
	agent        *backend.Agent
	clears       int
	setTokenErr  error
	tokenReadErr error
}

func (s *fakeStore) Token(ctx context.Context) (string, error) {
	if s.tokenReadErr != nil {
		return "", s.tokenReadErr
	}
	return s.token, nil
}

func (s *fakeStore) SetToken(ctx context.Context, token string) error {
	if s.setTokenErr != nil {
		return s.setTokenErr
	}
	s.token = token
	return nil
}

func (s *fakeStore) SetSelectedOrg(ctx context.Context, org *backend.Organization) error {
	s.org = org
	return nil
}

func (s *fakeStore) SetSelectedAgent(ctx context.Context, agent *backend.Agent) error {
	s.agent = agent
	return nil
}

func (s *fakeStore) Clear(ctx context.Context) error {
	s.clears++
	s.token = ""
	s.org = nil
	s.agent = nil
	return nil
}

type fakeAPI struct {
	authToken  string
	authUser   *backend.UserSummary
	authErr    error
	meUser     *backend.UserSummary
	meErr      error
	meCalls    int
	orgs       []backend.Organization
	orgsErr    error
	agentsByID map[int64][]backend.Agent
	agentsErr  error
	agentCalls []int64
}

func (a *fakeAPI) Authenticate(ctx context.Context, email, password string) (string, *backend.UserSummary, error) {
	return a.authToken, a.authUser, a.authErr
}

func (a *fakeAPI) Me(ctx context.Context) (*backend.UserSummary, error) {
	a.meCalls++
	return a.meUser, a.meErr
}

func (a *fakeAPI) Organizations(ctx context.Context) ([]backend.Organization, error) {
	return a.orgs, a.orgsErr
}

func (a *fakeAPI) OrganizationAgents(ctx context.Context, orgID int64) ([]backend.Agent, error) {
	a.agentCalls = append(a.agentCalls, orgID)
	if a.agentsErr != nil {
		return nil, a.agentsErr
	}
	return a.agentsByID[orgID], nil
}

type fakeOpener struct {
	opens int
	err   error
}

func (o *fakeOpener) OpenLogin(ctx context.Context) error {
	o.opens++
	return o.err
}

type fakePoller struct {
	result *authpoll.Result
	err    error
}

func (p *fakePoller) Poll(ctx context.Context, report func(string)) (*authpoll.Result, error) {
	return p.result, p.err
}

type fakePage struct{}

func (fakePage) Evaluate(ctx context.Context, script string) (any, error) { return true, nil }
func (fakePage) URL() string                                              { return "https://example.com" }

type fakeResolver struct {
	err error
}

func (r *fakeResolver) ActivePage(ctx context.Context) (handoff.Page, error) {
	if r.err != nil {
		return nil, r.err
	}
	return fakePage{}, nil
}

type fakeMessenger struct {
	err   error
	calls []handoff.Message
}

func (m *fakeMessenger) Send(ctx context.Context, page handoff.Page, msg handoff.Message) error {
	m.calls = append(m.calls, msg)
	return m.err
}

type fakeInjector struct {
	err   error
	calls []handoff.WidgetSpec
}

func (i *fakeInjector) Inject(ctx context.Context, page handoff.Page, spec handoff.WidgetSpec) error {
	i.calls = append(i.calls, spec)
	return i.err
}

// --- fixtures ---

type fixture struct {
	store     *fakeStore
	api       *fakeAPI
	opener    *fakeOpener
	poller    *fakePoller
	resolver  *fakeResolver
	messenger *fakeMessenger
	injector  *fakeInjector
	ctrl      *Controller
}

func newFixture() *fixture {
	f := &fixture{
		store:  &fakeStore{},
		opener: &fakeOpener{},
		poller: &fakePoller{},
		api: &fakeAPI{
			authToken: "tok",
			authUser:  &backend.UserSummary{ID: 1, Email: "u@example.com", Name: "U"},
			meUser:    &backend.UserSummary{ID: 1, Email: "u@example.com", Name: "U"},
			orgs: []backend.Organization{
				{ID: 3, Name: "Acme", MemberCount: 5},
				{ID: 4, Name: "Globex", MemberCount: 2},
			},
			agentsByID: map[int64][]backend.Agent{
				3: {{ID: 7, Name: "Support Bot", Model: "gpt-4o", OrganizationID: 3}},
				4: {{ID: 9, Name: "Globex Bot", Model: "claude", OrganizationID: 4}},
			},
		},
		resolver:  &fakeResolver{},
		messenger: &fakeMessenger{},
		injector:  &fakeInjector{},
	}
	f.ctrl = New(f.store, f.api, f.opener, f.poller, f.resolver, f.messenger, f.injector)
	return f
}

func (f *fixture) loginAndSelectOrg(t *testing.T, orgID int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.ctrl.Login(ctx, "u@example.com", "pw"))
	require.NoError(t, f.ctrl.SelectOrganization(ctx, orgID))
}

// --- tests ---

func TestLoginSuccess(t *testing.T) {
	f := newFixture()
	err := f.ctrl.Login(context.Background(), "u@example.com", "pw")
	require.NoError(t, err)

	assert.Equal(t, StateOrgSelection, f.ctrl.State())
	assert.Equal(t, "tok", f.store.token)
	assert.Equal(t, "U", f.ctrl.User().Name)
	assert.Len(t, f.ctrl.Organizations(), 2)
}

func TestLoginResponseWithoutUserFallsBackToMe(t *testing.T) {
	f := newFixture()
	f.api.authUser = nil

	require.NoError(t, f.ctrl.Login(context.Background(), "u@example.com", "pw"))
	assert.Equal(t, 1, f.api.meCalls)
	require.NotNil(t, f.ctrl.User())
	assert.Equal(t, "U", f.ctrl.User().Name)
}

func TestLoginFailureStaysLoggedOut(t *testing.T) {
	f := newFixture()
	f.api.authErr = fmt.Errorf("%w: wrong password", backend.ErrInvalidCredentials)

	err := f.ctrl.Login(context.Background(), "u@example.com", "bad")
	require.ErrorIs(t, err, backend.ErrInvalidCredentials)
	assert.Equal(t, StateLoggedOut, f.ctrl.State())
	assert.Empty(t, f.store.token)
}

func TestResumeValidToken(t *testing.T) {
	f := newFixture()
	f.store.token = "stored-tok"

	require.NoError(t, f.ctrl.Resume(context.Background()))
	assert.Equal(t, StateOrgSelection, f.ctrl.State())
	assert.Equal(t, 1, f.api.meCalls)
}

func TestResumeRejectedTokenClearsStorage(t *testing.T) {
	f := newFixture()
	f.store.token = "stale-tok"
	f.api.meErr = fmt.Errorf("%w: token expired", backend.ErrInvalidCredentials)

	require.NoError(t, f.ctrl.Resume(context.Background()))
	assert.Equal(t, StateLoggedOut, f.ctrl.State())
	assert.Equal(t, 1, f.store.clears)
}

func TestResumeWithoutToken(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.Resume(context.Background()))
	assert.Equal(t, StateLoggedOut, f.ctrl.State())
	assert.Zero(t, f.api.meCalls)
}

func TestLoginExternalSuccess(t *testing.T) {
	f := newFixture()
	f.poller.result = &authpoll.Result{Token: "ext-tok", User: &backend.UserSummary{ID: 2, Name: "Ext"}}

	require.NoError(t, f.ctrl.LoginExternal(context.Background(), nil))
	assert.Equal(t, 1, f.opener.opens)
	assert.Equal(t, StateOrgSelection, f.ctrl.State())
	assert.Equal(t, "ext-tok", f.store.token)
	assert.Equal(t, "Ext", f.ctrl.User().Name)
	assert.Zero(t, f.api.meCalls, "user came from the tab, no backend lookup needed")
}

func TestLoginExternalMissingUserFallsBackToMe(t *testing.T) {
	f := newFixture()
	f.poller.result = &authpoll.Result{Token: "ext-tok"}

	require.NoError(t, f.ctrl.LoginExternal(context.Background(), nil))
	assert.Equal(t, 1, f.api.meCalls)
	assert.Equal(t, "U", f.ctrl.User().Name)
}

func TestLoginExternalNoSignalKeepsAuthenticating(t *testing.T) {
	f := newFixture()
	f.poller.err = fmt.Errorf("%w after 20 checks", authpoll.ErrNoSignal)

	err := f.ctrl.LoginExternal(context.Background(), nil)
	require.ErrorIs(t, err, authpoll.ErrNoSignal)
	assert.Equal(t, StateAuthenticating, f.ctrl.State(), "user can trigger another check")
}

func TestLoginExternalOpenFailure(t *testing.T) {
	f := newFixture()
	f.opener.err = errors.New("browser unreachable")

	err := f.ctrl.LoginExternal(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, StateLoggedOut, f.ctrl.State())
}

func TestSelectOrganizationLoadsScopedAgents(t *testing.T) {
	f := newFixture()
	f.loginAndSelectOrg(t, 3)

	assert.Equal(t, StateAgentSelection, f.ctrl.State())
	require.Len(t, f.ctrl.Agents(), 1)
	assert.Equal(t, "Support Bot", f.ctrl.Agents()[0].Name)
}

func TestSwitchingOrganizationsReplacesAgents(t *testing.T) {
	f := newFixture()
	f.loginAndSelectOrg(t, 3)
	require.NoError(t, f.ctrl.SelectOrganization(context.Background(), 4))

	// Agent list is scoped only to the new organization, never merged.
	agents := f.ctrl.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, int64(4), agents[0].OrganizationID)
	assert.Equal(t, "Globex Bot", agents[0].Name)
}

func TestReselectingSameOrganizationRefetches(t *testing.T) {
	f := newFixture()
	f.loginAndSelectOrg(t, 3)
	require.NoError(t, f.ctrl.SelectOrganization(context.Background(), 3))

	assert.Equal(t, []int64{3, 3}, f.api.agentCalls)
	assert.Len(t, f.ctrl.Agents(), 1, "refetch replaces, does not duplicate")
}

func TestAgentFetchFailureShowsEmptyList(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.ctrl.Login(context.Background(), "u@example.com", "pw"))
	f.api.agentsErr = errors.New("boom")

	err := f.ctrl.SelectOrganization(context.Background(), 3)
	require.Error(t, err)
	assert.Equal(t, StateAgentSelection, f.ctrl.State(), "failure does not revert the state")
	assert.NotNil(t, f.ctrl.Agents())
	assert.Empty(t, f.ctrl.Agents())
}

func TestZeroOrganizations(t *testing.T) {
	f := newFixture()
	f.api.orgs = []backend.Organization{}

	require.NoError(t, f.ctrl.Login(context.Background(), "u@example.com", "pw"))
	assert.Equal(t, StateOrgSelection, f.ctrl.State())
	assert.Empty(t, f.ctrl.Organizations())
}

func TestReloadOrganizationsAfterFailure(t *testing.T) {
	f := newFixture()
	f.api.orgsErr = errors.New("boom")

	err := f.ctrl.Login(context.Background(), "u@example.com", "pw")
	require.Error(t, err)
	assert.Equal(t, StateOrgSelection, f.ctrl.State())
	assert.Nil(t, f.ctrl.Organizations())

	f.api.orgsErr = nil
	require.NoError(t, f.ctrl.ReloadOrganizations(context.Background()))
	assert.Len(t, f.ctrl.Organizations(), 2)
}

func TestBackDiscardsAgents(t *testing.T) {
	f := newFixture()
	f.loginAndSelectOrg(t, 3)

	require.NoError(t, f.ctrl.Back())
	assert.Equal(t, StateOrgSelection, f.ctrl.State())
	assert.Nil(t, f.ctrl.Agents())
	assert.Nil(t, f.ctrl.SelectedOrg())
}

func TestSelectAgentDelivers(t *testing.T) {
	f := newFixture()
	f.loginAndSelectOrg(t, 3)

	result, err := f.ctrl.SelectAgent(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, result.Delivered)
	assert.False(t, result.Injected)
	assert.Equal(t, StateHandoff, f.ctrl.State())

	// Selection persisted before delivery so the tab can read it on its own.
	require.NotNil(t, f.store.agent)
	assert.Equal(t, int64(7), f.store.agent.ID)
	require.NotNil(t, f.store.org)
	assert.Equal(t, int64(3), f.store.org.ID)

	require.Len(t, f.messenger.calls, 1)
	assert.Equal(t, handoff.ActionOpenChatbot, f.messenger.calls[0].Action)
}

func TestSelectAgentFallsBackToInjection(t *testing.T) {
	f := newFixture()
	f.loginAndSelectOrg(t, 3)
	f.messenger.err = handoff.ErrNoListener

	result, err := f.ctrl.SelectAgent(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, result.Injected)
	assert.False(t, result.Delivered)

	// Exactly one messenger attempt, then the injector with the same pair.
	require.Len(t, f.messenger.calls, 1)
	require.Len(t, f.injector.calls, 1)
	assert.Equal(t, "Support Bot", f.injector.calls[0].Title)
	assert.Equal(t, "Acme", f.injector.calls[0].Subtitle)
}

func TestSelectAgentDoubleFailure(t *testing.T) {
	f := newFixture()
	f.loginAndSelectOrg(t, 3)
	f.messenger.err = handoff.ErrNoListener
	f.injector.err = errors.New("document gone")

	_, err := f.ctrl.SelectAgent(context.Background(), 7)
	require.Error(t, err)
	assert.Len(t, f.messenger.calls, 1, "never a second message attempt")
	assert.Equal(t, StateAgentSelection, f.ctrl.State(), "selection can be retried")
}

func TestSelectAgentNoActivePage(t *testing.T) {
	f := newFixture()
	f.loginAndSelectOrg(t, 3)
	f.resolver.err = errors.New("no pages open")

	_, err := f.ctrl.SelectAgent(context.Background(), 7)
	require.Error(t, err)
	assert.Empty(t, f.messenger.calls)
	assert.Empty(t, f.injector.calls)
}

func TestSelectAgentUnknownID(t *testing.T) {
	f := newFixture()
	f.loginAndSelectOrg(t, 3)

	_, err := f.ctrl.SelectAgent(context.Background(), 999)
	require.Error(t, err)
	assert.Empty(t, f.messenger.calls)
}

func TestLogoutClearsEverything(t *testing.T) {
	f := newFixture()
	f.loginAndSelectOrg(t, 3)

	require.NoError(t, f.ctrl.Logout(context.Background()))
	assert.Equal(t, StateLoggedOut, f.ctrl.State())
	assert.Equal(t, 1, f.store.clears)
	assert.Nil(t, f.ctrl.User())
	assert.Nil(t, f.ctrl.Organizations())
	assert.Nil(t, f.ctrl.Agents())
	assert.Nil(t, f.ctrl.SelectedOrg())
	assert.Nil(t, f.ctrl.SelectedAgent())
	assert.Empty(t, f.store.token)
}

func TestSelectOrganizationWrongState(t *testing.T) {
	f := newFixture()
	err := f.ctrl.SelectOrganization(context.Background(), 3)
	require.Error(t, err)
	assert.Equal(t, StateLoggedOut, f.ctrl.State())
}
