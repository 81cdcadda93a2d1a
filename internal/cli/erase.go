package cli

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/piilink/internal/pipeline"
	"github.com/mesh-intelligence/piilink/pkg/types"
)

func newFragmentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fragment",
		Short: "Manage single fragments",
	}

	var reason string
	del := &cobra.Command{
		Use:   "delete <frag_id>",
		Short: "Delete one fragment; an entity losing its last fragment is erased",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := a.service()
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := svc.DeleteFragment(cmdContext(cmd), args[0], reason)
			if err != nil {
				return notFoundHint(err)
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, res)
			}
			if res.EntityErased {
				fmt.Fprintf(out, "Deleted %s; entity %s had no fragments left and was erased (%s)\n", args[0], res.EntityID, res.ErasureID)
				return nil
			}
			fmt.Fprintf(out, "Deleted %s; entity %s has %d fragments left\n", args[0], res.EntityID, res.Remaining)
			return nil
		},
	}
	del.Flags().StringVar(&reason, "reason", pipeline.DefaultDeleteReason, "reason recorded with the deletion")
	cmd.AddCommand(del)
	return cmd
}

// eraseResult is the JSON form of an entity erasure.
type eraseResult struct {
	EntityID         string `json:"entity_id"`
	FragmentsDeleted int    `json:"fragments_deleted"`
}

func newEraseCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "erase <entity_id>",
		Short: "Erase an entity and all its fragments",
		Long: `Erase removes an entity with every fragment it owns in one transaction and
records the erasure in the erasure register and the audit log.

Example:
  piilink erase E-000001 --reason "GDPR Article 17 request #42"`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := a.service()
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := svc.EraseEntity(cmdContext(cmd), args[0], reason)
			if err != nil {
				return notFoundHint(err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), eraseResult{EntityID: args[0], FragmentsDeleted: n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Erased %s (%d fragments deleted)\n", args[0], n)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", pipeline.DefaultErasureReason, "reason recorded with the erasure")
	return cmd
}

func newErasuresCmd(a *app) *cobra.Command {
	var (
		limit  int
		export string
	)
	cmd := &cobra.Command{
		Use:   "erasures",
		Short: "List the erasure register, newest first",
		Long: `Erasures lists recorded erasures. With --export the full register is
written to a JSONL file instead.

Example:
  piilink erasures --limit 20
  piilink erasures --export register.jsonl`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			ctx := cmdContext(cmd)
			out := cmd.OutOrStdout()

			if export != "" {
				exp, ok := store.(types.ErasureExporter)
				if !ok {
					return errors.Newf("backend %q cannot export erasures", a.cfg.Backend)
				}
				n, err := exp.ExportErasures(ctx, export)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Exported %d erasures to %s\n", n, export)
				return nil
			}

			erasures, err := store.ListErasures(ctx, limit)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				if erasures == nil {
					erasures = []types.Erasure{}
				}
				return printJSON(out, erasures)
			}
			if len(erasures) == 0 {
				fmt.Fprintln(out, "No erasures recorded")
				return nil
			}
			t := newTable(out, "ERASURE", "ENTITY", "FRAGMENTS", "REQUESTED BY", "REASON", "TIMESTAMP")
			for _, e := range erasures {
				t.row(e.ErasureID, e.EntityID, strconv.Itoa(e.FragmentsDeleted), e.RequestedBy, e.Reason, formatStamp(e.Timestamp))
			}
			return t.flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of erasures (0 = no limit)")
	cmd.Flags().StringVar(&export, "export", "", "write the whole register to this JSONL file")
	return cmd
}
