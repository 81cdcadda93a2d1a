package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/piilink/internal/audit"
)

func newAuditCmd(a *app) *cobra.Command {
	var (
		by       string
		entityID string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show audit log entries, newest first",
		Long: `Audit shows recorded scan, linking, access and erasure operations.

Example:
  piilink audit --limit 20
  piilink audit --by alice
  piilink audit --entity E-000001`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if by != "" && entityID != "" {
				return usageError(fmt.Errorf("--by and --entity are mutually exclusive"))
			}
			log, err := a.auditLog()
			if err != nil {
				return err
			}

			var entries []audit.Entry
			switch {
			case by != "":
				entries, err = log.ByUser(by)
			case entityID != "":
				entries, err = log.ByEntity(entityID)
			default:
				entries, err = log.Recent(limit)
			}
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			return writeAudit(cmd.OutOrStdout(), a.flags.jsonMode, entries)
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "only entries by or requested by this user")
	cmd.Flags().StringVar(&entityID, "entity", "", "only entries about this entity")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries (0 = no limit)")
	return cmd
}

func writeAudit(w io.Writer, jsonMode bool, entries []audit.Entry) error {
	if jsonMode {
		return printJSON(w, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No audit entries found")
		return nil
	}
	t := newTable(w, "TIMESTAMP", "OPERATION", "USER", "ENTITY", "DETAILS")
	for _, e := range entries {
		who := e.User
		if who == "" {
			who = e.RequestedBy
		}
		t.row(formatStamp(e.TimestampUTC), e.Operation, who, orDash(e.EntityID), auditDetails(e))
	}
	return t.flush()
}

func auditDetails(e audit.Entry) string {
	var parts []string
	switch e.Operation {
	case audit.OpScan:
		parts = append(parts, "fragments="+strconv.Itoa(e.FragmentsFound), "sources="+strconv.Itoa(len(e.SourceFiles)))
		if len(e.ProofHash) >= 12 {
			parts = append(parts, "proof="+e.ProofHash[:12])
		}
	case audit.OpLinking:
		parts = append(parts, "entities="+strconv.Itoa(e.EntitiesLinked), "threshold="+formatFloat(e.Threshold))
	case audit.OpAccess:
		parts = append(parts, "purpose="+e.Purpose)
	case audit.OpErasure:
		parts = append(parts, "deleted="+strconv.Itoa(e.FragmentsDeleted), "reason="+e.Reason)
	}
	return strings.Join(parts, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
