package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/marmos91/virtfs/pkg/virtfs"
)

type lsOptions struct {
	long  bool
	human bool
}

func (a *app) newLsCommand() *cobra.Command {
	var opts lsOptions

	cmd := &cobra.Command{
		Use:   "ls [flags] URL [PATH]",
		Short: "List directory contents",
		Long: `List the directory PATH (default: the export root) of the export
named by URL.

Example:
  virtfs ls -l mem://localhost/export /docs`,
		Args: rangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, err := virtfs.New(args[0], a.handleOptions()...)
			if err != nil {
				return err
			}
			defer fsys.Close()

			if err := fsys.Connect(cmd.Context()); err != nil {
				return fmt.Errorf("failed to connect to `%s': %w", args[0], err)
			}

			dir := "/"
			if len(args) == 2 {
				dir = args[1]
			}
			return listDir(cmd.Context(), cmd.OutOrStdout(), fsys, dir, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.long, "long", "l", false, "Use a long listing format")
	cmd.Flags().BoolVarP(&opts.human, "human-readable", "H", false, "With -l, print sizes in human readable format")
	return cmd
}

// listDir prints the entries of dir, one per line.
func listDir(ctx context.Context, w io.Writer, fsys *virtfs.FS, dir string, opts lsOptions) error {
	d, err := fsys.OpenDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("cannot open directory `%s': %w", dir, err)
	}

	for {
		ent, st, err := d.ReadDirPlus(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = d.Close()
			return fmt.Errorf("cannot read directory `%s': %w", dir, err)
		}

		if opts.long {
			printLong(w, ent.Name, st, opts.human)
		} else {
			fmt.Fprintln(w, ent.Name)
		}
	}

	return d.Close()
}
