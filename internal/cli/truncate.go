package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/virtfs/pkg/virtfs"
)

func (a *app) newTruncateCommand() *cobra.Command {
	var size int64

	cmd := &cobra.Command{
		Use:   "truncate -s SIZE URL",
		Short: "Shrink or extend a remote file to the given size",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < 0 {
				return usagef("invalid size %d", size)
			}

			f, err := virtfs.OpenURI(cmd.Context(), args[0], os.O_WRONLY, 0, a.handleOptions()...)
			if err != nil {
				return err
			}

			err = f.TruncateContext(cmd.Context(), size)
			cerr := f.CloseContext(cmd.Context())
			if err != nil {
				return err
			}
			return cerr
		},
	}

	cmd.Flags().Int64VarP(&size, "size", "s", 0, "Size in bytes")
	_ = cmd.MarkFlagRequired("size")
	return cmd
}
