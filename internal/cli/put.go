package cli

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/virtfs/pkg/virtfs"
)

func (a *app) newPutCommand() *cobra.Command {
	var (
		appendMode bool
		overwrite  bool
		mode       string
	)

	cmd := &cobra.Command{
		Use:   "put [flags] URL",
		Short: "Write standard input to a remote file",
		Long: `Write data from standard input to the file named by URL.

An existing file is only replaced with --force, or extended with --append.

Example:
  echo hello | virtfs put --mode 0600 mem://localhost/export/hello.txt`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perm, err := strconv.ParseUint(mode, 8, 32)
			if err != nil || perm > virtfs.ModePermMask {
				return usagef("invalid mode %q", mode)
			}

			flags := os.O_WRONLY | os.O_CREATE
			switch {
			case appendMode:
				flags |= os.O_APPEND
			case overwrite:
				flags |= os.O_TRUNC
			default:
				flags |= os.O_EXCL
			}

			f, err := virtfs.OpenURI(cmd.Context(), args[0], flags, fs.FileMode(perm), a.handleOptions()...)
			if err != nil {
				return err
			}

			_, err = io.Copy(f, cmd.InOrStdin())
			cerr := f.Close()
			if err != nil {
				return fmt.Errorf("write error: %s: %w", args[0], err)
			}
			return cerr
		},
	}

	cmd.Flags().BoolVarP(&appendMode, "append", "a", false, "Append data to the end of the file")
	cmd.Flags().BoolVarP(&overwrite, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().StringVarP(&mode, "mode", "m", "0644", "Permission bits of a created file (octal)")
	cmd.MarkFlagsMutuallyExclusive("append", "force")
	return cmd
}
