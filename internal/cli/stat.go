package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/virtfs/pkg/logger"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

func (a *app) newStatCommand() *cobra.Command {
	var (
		dereference bool
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "stat [flags] URL",
		Short: "Display file status",
		Long: `Display the status of the file named by URL.

The last path segment of URL is the file; the rest is the export.

Example:
  virtfs stat -L mem://localhost/export/readme.txt`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []virtfs.Option
			if debug {
				// Handle traces go through the default logger, which
				// would otherwise drop them at its own threshold.
				logger.Default().SetThreshold(logger.LevelDebug)
				extra = append(extra, virtfs.WithLogLevel(logger.LevelDebug))
			}

			fsys, err := virtfs.NewFile(args[0], a.handleOptions(extra...)...)
			if err != nil {
				return err
			}
			defer fsys.Close()

			if err := fsys.Connect(cmd.Context()); err != nil {
				return fmt.Errorf("failed to connect to `%s': %w", args[0], err)
			}

			if debug {
				fmt.Fprintln(cmd.OutOrStdout(), "FS initialized correctly:")
				if err := fsys.DumpInfo(0); err != nil {
					return err
				}
			}

			stat := fsys.Lstat
			if dereference {
				stat = fsys.Stat
			}
			st, err := stat(cmd.Context(), "")
			if err != nil {
				return fmt.Errorf("cannot stat `%s': %w", args[0], err)
			}

			u := fsys.URL()
			printStat(cmd.OutOrStdout(), u.FilePath(), st)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&dereference, "dereference", "L", false, "Follow links")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Print handle information after connecting")
	return cmd
}
