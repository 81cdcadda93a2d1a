package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/piilink/internal/logging"
	"github.com/mesh-intelligence/piilink/internal/source"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		folders  []string
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rescan folders whenever their files change",
		Long: `Watch scans the folders once, then rescans a folder and saves the linked
entities each time a file in it is created, written or renamed. Stop with Ctrl-C.

Example:
  piilink watch --folder ./inbox --debounce 2s`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(folders) == 0 {
				return usageError(fmt.Errorf("at least one --folder is required"))
			}
			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			rescan := func(ctx context.Context, changed []string) error {
				run, err := a.scan(ctx, a.cfg, source.Job{Folders: changed}, true)
				if err != nil {
					return err
				}
				return writeScan(out, a.flags.jsonMode, run, true, false)
			}
			if err := rescan(ctx, folders); err != nil {
				return err
			}
			return source.Watch(ctx, folders, debounce, rescan, logging.ComponentLogger("watch"))
		},
	}
	cmd.Flags().StringArrayVar(&folders, "folder", nil, "folder to watch (repeatable)")
	cmd.Flags().DurationVar(&debounce, "debounce", source.DefaultDebounce, "quiet period before a rescan")
	return cmd
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
