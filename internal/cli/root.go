// Package cli implements the piilink command-line interface.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/piilink/internal/logging"
	"github.com/mesh-intelligence/piilink/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	user      string
	jsonMode  bool
}

// NewRootCmd creates the top-level "piilink" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}
	a := &app{flags: flags}

	root := &cobra.Command{
		Use:   "piilink",
		Short: "Find, link and erase personal data across sources",
		Long: "piilink scans files, folders and databases for personal data, links the\n" +
			"fragments it finds into entities and keeps them for lookup, search and erasure.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "version", "help", "completion":
				return nil
			}
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: .piilink)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default: .piilink-db)")
	root.PersistentFlags().StringVar(&flags.user, "user", "", "user recorded in the audit log (default: $USER)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newScanCmd(a),
		newWatchCmd(a),
		newEntityCmd(a),
		newSearchCmd(a),
		newFragmentCmd(a),
		newEraseCmd(a),
		newStatsCmd(a),
		newErasuresCmd(a),
		newAuditCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	err := root.Execute()
	logging.Sync()
	os.Exit(report(os.Stderr, err))
}

// errUsage marks errors caused by how the command was invoked.
var errUsage = errors.New("usage error")

func usageError(err error) error {
	return errors.Mark(err, errUsage)
}

// userErrors are failures the caller can fix by changing the input.
var userErrors = []error{
	errUsage,
	types.ErrEntityNotFound,
	types.ErrFragmentNotFound,
	types.ErrInvalidID,
	types.ErrInvalidMapping,
	types.ErrNoSources,
	types.ErrNotLinked,
	types.ErrBackendEmpty,
	types.ErrBackendUnknown,
	types.ErrThresholdInvalid,
	types.ErrSampleInvalid,
	types.ErrWorkersInvalid,
	types.ErrPatternUnknown,
}

// exitCode maps err to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.IsAny(err, userErrors...):
		return exitUserError
	default:
		return exitSysError
	}
}

// report prints err with any hints to w and returns the exit code.
func report(w io.Writer, err error) int {
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	if hint := errors.FlattenHints(err); hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
	return exitCode(err)
}

// exactArgs is cobra.ExactArgs with the error marked as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}
