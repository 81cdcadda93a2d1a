package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/piilink/internal/paths"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize piilink storage",
		Long:  "Create the configuration, data and audit directories and the entity database.",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if err := store.Close(); err != nil {
				return err
			}
			if _, err := a.auditLog(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "piilink initialized")
			fmt.Fprintf(out, "  config: %s\n", paths.ConfigFile(a.configDir))
			fmt.Fprintf(out, "  data:   %s\n", a.cfg.DataDir)
			fmt.Fprintf(out, "  audit:  %s\n", a.auditDir)
			return nil
		},
	}
}
