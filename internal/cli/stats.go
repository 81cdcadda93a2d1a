package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show entity, fragment and erasure counts",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := a.service()
			if err != nil {
				return err
			}
			defer closeFn()

			st, err := svc.Statistics(cmdContext(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, st)
			}
			fmt.Fprintf(out, "Entities:              %d\n", st.TotalEntities)
			fmt.Fprintf(out, "Fragments:             %d\n", st.TotalFragments)
			fmt.Fprintf(out, "Fragments per entity:  %s\n", formatFloat(st.AvgFragmentsPerEntity))
			fmt.Fprintf(out, "Erasures performed:    %d\n", st.ErasuresPerformed)
			return nil
		},
	}
}
