package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/virtfs/pkg/virtfs"
)

func (a *app) newCatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cat URL...",
		Short: "Concatenate remote files to standard output",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usagef("missing required argument: URL\n\nUsage: %s", cmd.UseLine())
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, uri := range args {
				f, err := virtfs.OpenURI(cmd.Context(), uri, os.O_RDONLY, 0, a.handleOptions()...)
				if err != nil {
					return err
				}

				_, err = io.Copy(cmd.OutOrStdout(), f)
				cerr := f.Close()
				if err != nil {
					return fmt.Errorf("read error: %s: %w", uri, err)
				}
				if cerr != nil {
					return cerr
				}
			}
			return nil
		},
	}
}
