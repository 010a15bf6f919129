package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatlink/chatlink/internal/browser"
	"github.com/chatlink/chatlink/internal/store"
	"github.com/chatlink/chatlink/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session, selection, and browser reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := setup()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()

		if _, err := st.Token(ctx); errors.Is(err, store.ErrNotFound) {
			tui.Status("Session: not logged in")
		} else if err != nil {
			return err
		} else {
			tui.Status("Session: logged in")
		}

		if org, err := st.SelectedOrg(ctx); err == nil {
			tui.Status(fmt.Sprintf("Organization: %s", org.Name))
		}
		if agent, err := st.SelectedAgent(ctx); err == nil {
			tui.Status(fmt.Sprintf("Agent: %s (%s)", agent.Name, agent.Model))
		}

		if browser.IsReachable(cfg.Browser.CDPURL, 2*time.Second) {
			tui.Status(fmt.Sprintf("Browser: reachable at %s", cfg.Browser.CDPURL))
		} else {
			tui.Status(fmt.Sprintf("Browser: not reachable at %s", cfg.Browser.CDPURL))
		}
		return nil
	},
}
