// Package cli implements the chatlink command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatlink/chatlink/internal/authpoll"
	"github.com/chatlink/chatlink/internal/backend"
	"github.com/chatlink/chatlink/internal/config"
	"github.com/chatlink/chatlink/internal/controller"
	"github.com/chatlink/chatlink/internal/handoff"
	"github.com/chatlink/chatlink/internal/logging"
	"github.com/chatlink/chatlink/internal/store"
	"github.com/chatlink/chatlink/internal/tui"
)

// handoffGraceDelay gives the final send time to dispatch before the process
// exits. It is a hand-off grace period, not a correctness mechanism.
const handoffGraceDelay = 1500 * time.Millisecond

var (
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "chatlink",
	Short: "Hand an agent chat off to the page you're viewing",
	Long: `chatlink authenticates you against the chatlink web application (directly
or by detecting a login completed in a browser tab), lets you pick an
organization and agent, and opens a chat widget on the page you're viewing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBridge(cmd.Context())
	},
}

// Execute runs the CLI.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		tui.Errorln(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default <data dir>/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
}

// setup loads config and opens the store, shared by all commands.
func setup() (*config.Config, *store.Store, error) {
	if !flagVerbose {
		logging.Disable()
	}

	dataDir, err := config.EnsureDataDir()
	if err != nil {
		return nil, nil, err
	}

	path := flagConfig
	if path == "" {
		path = filepath.Join(dataDir, "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func runBridge(ctx context.Context) error {
	cfg, st, err := setup()
	if err != nil {
		return err
	}
	defer st.Close()

	bridge := newBrowserBridge(cfg)
	defer bridge.Close()

	api := backend.New(cfg.Backend.BaseURL, st)
	poller := authpoll.New(bridge)
	ctrl := controller.New(st, api, bridge, poller, bridge, handoff.NewMessenger(), handoff.NewInjector())

	if err := ctrl.Resume(ctx); err != nil {
		tui.Errorln(err.Error())
	}
	if ctrl.State() == controller.StateOrgSelection && ctrl.User() != nil {
		tui.Success(fmt.Sprintf("Welcome back, %s.", ctrl.User().Name))
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		switch ctrl.State() {
		case controller.StateLoggedOut:
			if err := loginScreen(ctx, ctrl); err != nil {
				return err
			}

		case controller.StateAuthenticating:
			again, err := tui.ConfirmRecheck()
			if err != nil {
				return err
			}
			if !again {
				if err := ctrl.Logout(ctx); err != nil {
					tui.Errorln(err.Error())
				}
				continue
			}
			if err := ctrl.CheckExternalLogin(ctx, tui.Status); err != nil {
				reportLoginError(err)
			}

		case controller.StateOrgSelection:
			if ctrl.Organizations() == nil {
				// Load failed earlier; a nil list is not the empty state.
				again, err := tui.ConfirmRetry("Organizations could not be loaded. Try again?")
				if err != nil {
					return err
				}
				if !again {
					return nil
				}
				if err := ctrl.ReloadOrganizations(ctx); err != nil {
					tui.Errorln(err.Error())
				}
				continue
			}
			orgID, ok, err := tui.SelectOrganization(ctrl.Organizations())
			if err != nil {
				return err
			}
			if !ok {
				// Empty state, not an error.
				return nil
			}
			if err := ctrl.SelectOrganization(ctx, orgID); err != nil {
				tui.Errorln(err.Error())
			}

		case controller.StateAgentSelection:
			agentID, back, err := tui.SelectAgent(ctrl.Agents())
			if err != nil {
				return err
			}
			if back {
				if err := ctrl.Back(); err != nil {
					tui.Errorln(err.Error())
				}
				continue
			}
			result, err := ctrl.SelectAgent(ctx, agentID)
			if err != nil {
				tui.Errorln(err.Error())
				continue
			}
			reportHandoff(ctrl, result)

		case controller.StateHandoff:
			// The flow is done; give the send a moment to dispatch.
			time.Sleep(handoffGraceDelay)
			return nil
		}
	}
}

func loginScreen(ctx context.Context, ctrl *controller.Controller) error {
	method, err := tui.ChooseLoginMethod()
	if err != nil {
		return err
	}

	switch method {
	case tui.MethodCredentials:
		email, password, err := tui.Credentials()
		if err != nil {
			return err
		}
		if err := ctrl.Login(ctx, email, password); err != nil {
			reportLoginError(err)
		}

	case tui.MethodBrowser:
		tui.Status("Opening the login page in your browser...")
		if err := ctrl.LoginExternal(ctx, tui.Status); err != nil {
			reportLoginError(err)
		}
	}
	return nil
}

// reportLoginError turns login failures into status text per the error
// taxonomy: credential errors verbatim, transport errors with a retry
// suggestion, poller silence as a plain status.
func reportLoginError(err error) {
	switch {
	case errors.Is(err, authpoll.ErrNoSignal):
		tui.Status("Still no login detected. You can check again once you've logged in.")
	case errors.Is(err, backend.ErrInvalidCredentials):
		tui.Errorln(err.Error())
	case errors.Is(err, backend.ErrUnavailable):
		tui.Errorln("The chatlink service is unreachable right now. Please try again.")
	default:
		tui.Errorln(err.Error())
	}
}

func reportHandoff(ctrl *controller.Controller, result *controller.HandoffResult) {
	agent := ctrl.SelectedAgent()
	org := ctrl.SelectedOrg()
	switch {
	case result.Delivered:
		tui.Success(fmt.Sprintf("Chat with %s (%s) opened on the current page.", agent.Name, org.Name))
	case result.Injected:
		tui.Success(fmt.Sprintf("Chat widget for %s (%s) injected into the current page.", agent.Name, org.Name))
	}
}
