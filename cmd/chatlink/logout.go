package cli

import (
	"github.com/spf13/cobra"

	"github.com/chatlink/chatlink/internal/tui"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session and selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := setup()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Clear(cmd.Context()); err != nil {
			return err
		}
		tui.Success("Logged out.")
		return nil
	},
}
