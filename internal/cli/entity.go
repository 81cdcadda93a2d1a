package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/piilink/pkg/types"
)

func newEntityCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Look up stored entities",
	}
	cmd.AddCommand(newEntityGetCmd(a), newEntityListCmd(a))
	return cmd
}

func newEntityGetCmd(a *app) *cobra.Command {
	var purpose string
	cmd := &cobra.Command{
		Use:   "get <entity_id>",
		Short: "Show an entity and its fragments",
		Long: `Get shows an entity with every fragment it owns. The lookup is recorded in
the audit log with the given purpose.

Example:
  piilink entity get E-000001 --purpose "subject access request"`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := a.service()
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := svc.Lookup(cmdContext(cmd), args[0], purpose)
			if err != nil {
				return notFoundHint(err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), rec)
			}
			return writeEntity(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVar(&purpose, "purpose", "", "purpose recorded in the audit log (default: manual_lookup)")
	return cmd
}

func writeEntity(w io.Writer, rec *types.EntityRecord) error {
	e := rec.Entity
	fmt.Fprintf(w, "Entity:     %s\n", e.EntityID)
	fmt.Fprintf(w, "Fragments:  %d\n", e.FragmentCount)
	fmt.Fprintf(w, "Confidence: %s\n", formatFloat(e.Confidence))
	fmt.Fprintf(w, "Created:    %s\n", formatStamp(e.CreatedAt))
	fmt.Fprintf(w, "Updated:    %s\n\n", formatStamp(e.UpdatedAt))

	t := newTable(w, "FRAGMENT", "PII ID", "TYPE", "VALUE", "SOURCE", "CONFIDENCE")
	for _, f := range rec.Fragments {
		t.row(f.FragID, types.PIIID(f.EntityID, f.Type, f.Value), types.TypeLabel(f.Type), f.Value, f.Source, formatFloat(f.Confidence))
	}
	return t.flush()
}

func newEntityListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities, most recently updated first",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			entities, err := store.ListEntities(cmdContext(cmd), limit)
			if err != nil {
				return err
			}
			return writeEntities(cmd.OutOrStdout(), a.flags.jsonMode, entities)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entities (0 = no limit)")
	return cmd
}

func writeEntities(w io.Writer, jsonMode bool, entities []types.Entity) error {
	if jsonMode {
		if entities == nil {
			entities = []types.Entity{}
		}
		return printJSON(w, entities)
	}
	if len(entities) == 0 {
		fmt.Fprintln(w, "No entities found")
		return nil
	}
	t := newTable(w, "ENTITY", "FRAGMENTS", "CONFIDENCE", "UPDATED")
	for _, e := range entities {
		t.row(e.EntityID, strconv.Itoa(e.FragmentCount), formatFloat(e.Confidence), formatStamp(e.UpdatedAt))
	}
	return t.flush()
}

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find entities owning a fragment whose value or type contains query",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := a.service()
			if err != nil {
				return err
			}
			defer closeFn()

			entities, err := svc.Search(cmdContext(cmd), args[0])
			if err != nil {
				return err
			}
			return writeEntities(cmd.OutOrStdout(), a.flags.jsonMode, entities)
		},
	}
}

// notFoundHint points the user at the listing command for missing IDs.
func notFoundHint(err error) error {
	switch {
	case errors.Is(err, types.ErrEntityNotFound):
		return errors.WithHint(err, "run 'piilink entity list' or 'piilink search' to find entity IDs")
	case errors.Is(err, types.ErrFragmentNotFound):
		return errors.WithHint(err, "run 'piilink entity get <entity_id>' to see fragment IDs")
	}
	return err
}
