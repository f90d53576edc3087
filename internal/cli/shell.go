package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/virtfs/pkg/logger"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

const shellHelp = `The following commands are supported:
* cat PATH
* close FD
* connect URL
* disconnect
* files
* help
* ls [-l] [-H] [PATH]
* open PATH
* quit
* stat [-L] PATH
`

var errQuit = errors.New("quit")

// session is the state of one interactive shell: at most one connected
// filesystem handle and the files opened through it.
type session struct {
	app    *app
	out    io.Writer
	errOut io.Writer

	fsys  *virtfs.FS
	url   string
	files map[int]*virtfs.File
}

func (a *app) newShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell [URL]",
		Short: "Start an interactive session",
		Long: `Start an interactive session reading commands from standard input.

Type 'help' at the prompt for the list of commands. A URL argument connects
before the first prompt.`,
		Args: rangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if a.metrics != nil && a.metrics.Server != nil {
				go func() {
					if err := a.metrics.Server.Start(ctx); err != nil {
						logger.Warn("%v", err)
					}
				}()
			}

			s := &session{
				app:    a,
				out:    cmd.OutOrStdout(),
				errOut: cmd.ErrOrStderr(),
				files:  make(map[int]*virtfs.File),
			}
			defer func() { _ = s.disconnect(ctx) }()

			if len(args) == 1 {
				if err := s.connect(ctx, args[0]); err != nil {
					return err
				}
			}
			return s.run(ctx, cmd.InOrStdin())
		},
	}
}

func (s *session) prompt() string {
	if s.fsys == nil {
		return "virtfs> "
	}
	u := s.fsys.URL()
	return fmt.Sprintf("virtfs (%s%s)> ", u.Authority, u.Export)
}

// run reads and executes lines until EOF or quit.
func (s *session) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, s.prompt())
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		err := s.execute(ctx, fields)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.errOut, "%s: %v\n", fields[0], err)
		}
	}
}

// execute runs one command line through a fresh command tree, so flags
// never leak from one line to the next.
func (s *session) execute(ctx context.Context, fields []string) error {
	root := s.commands()
	if _, _, err := root.Find(fields); err != nil {
		fmt.Fprintf(s.errOut, "Unknown command '%s'. Type 'help' for more.\n", fields[0])
		return nil
	}
	root.SetArgs(fields)
	return root.ExecuteContext(ctx)
}

func (s *session) commands() *cobra.Command {
	root := &cobra.Command{
		Use:           "virtfs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(s.out)
	root.SetErr(s.errOut)
	root.SetHelpCommand(&cobra.Command{
		Use: "help",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(s.out, shellHelp)
			return nil
		},
	})

	var (
		dereference bool
		ls          lsOptions
	)

	statCmd := &cobra.Command{
		Use:  "stat [-L] PATH",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, err := s.connected()
			if err != nil {
				return err
			}
			stat := fsys.Lstat
			if dereference {
				stat = fsys.Stat
			}
			st, err := stat(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("cannot stat `%s': %w", args[0], err)
			}
			printStat(s.out, args[0], st)
			return nil
		},
	}
	statCmd.Flags().BoolVarP(&dereference, "dereference", "L", false, "Follow links")

	lsCmd := &cobra.Command{
		Use:  "ls [-l] [-H] [PATH]",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, err := s.connected()
			if err != nil {
				return err
			}
			dir := "/"
			if len(args) == 1 {
				dir = args[0]
			}
			return listDir(cmd.Context(), s.out, fsys, dir, ls)
		},
	}
	lsCmd.Flags().BoolVarP(&ls.long, "long", "l", false, "Use a long listing format")
	lsCmd.Flags().BoolVarP(&ls.human, "human-readable", "H", false, "With -l, print sizes in human readable format")

	root.AddCommand(
		&cobra.Command{
			Use:  "connect URL",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return s.connect(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:  "disconnect",
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return s.disconnect(cmd.Context())
			},
		},
		statCmd,
		lsCmd,
		&cobra.Command{
			Use:  "cat PATH",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return s.cat(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:  "open PATH",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return s.open(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:  "close FD",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return s.closeFd(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:  "files",
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s.listFiles()
				return nil
			},
		},
		&cobra.Command{
			Use:     "quit",
			Aliases: []string{"exit"},
			RunE: func(cmd *cobra.Command, args []string) error {
				return errQuit
			},
		},
	)
	// Registered now so Find sees it before Execute.
	root.InitDefaultHelpCmd()
	return root
}

func (s *session) connected() (*virtfs.FS, error) {
	if s.fsys == nil {
		return nil, errors.New("not connected (use 'connect URL')")
	}
	return s.fsys, nil
}

// connect mounts url, then replaces the current connection.
func (s *session) connect(ctx context.Context, url string) error {
	fsys, err := virtfs.New(url, s.app.handleOptions()...)
	if err != nil {
		return err
	}
	if err := fsys.Connect(ctx); err != nil {
		_ = fsys.Close()
		return fmt.Errorf("failed to connect to URL %s: %w", url, err)
	}

	if err := s.disconnect(ctx); err != nil {
		logger.Warn("failed to terminate previous connection: %v", err)
	}
	s.fsys, s.url = fsys, url
	return nil
}

// disconnect closes every open file, then the filesystem handle.
func (s *session) disconnect(ctx context.Context) error {
	var first error
	for fd, f := range s.files {
		if err := f.CloseContext(ctx); err != nil && first == nil {
			first = err
		}
		delete(s.files, fd)
	}

	if s.fsys != nil {
		if err := s.fsys.Disconnect(ctx); err != nil && first == nil {
			first = err
		}
		s.fsys, s.url = nil, ""
	}
	return first
}

func (s *session) cat(ctx context.Context, path string) error {
	fsys, err := s.connected()
	if err != nil {
		return err
	}
	f, err := fsys.Open(ctx, path, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer func() { _ = f.CloseContext(ctx) }()

	buf := make([]byte, 32*1024)
	for {
		n, err := f.ReadContext(ctx, buf)
		if n > 0 {
			if _, werr := s.out.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read error: %s: %w", path, err)
		}
	}
}

// open opens path read-only and keeps it until close or disconnect.
func (s *session) open(ctx context.Context, path string) error {
	fsys, err := s.connected()
	if err != nil {
		return err
	}
	f, err := fsys.Open(ctx, path, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	fd := f.Fd()
	s.files[fd] = f
	fmt.Fprintf(s.out, "%d\n", fd)
	return nil
}

func (s *session) closeFd(ctx context.Context, arg string) error {
	fd, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid descriptor %q", arg)
	}
	if _, ok := s.files[fd]; !ok {
		return fmt.Errorf("descriptor %d is not open in this session", fd)
	}
	f, err := virtfs.FileFromFd(fd)
	if err != nil {
		return err
	}
	delete(s.files, fd)
	return f.CloseContext(ctx)
}

func (s *session) listFiles() {
	fds := make([]int, 0, len(s.files))
	for fd := range s.files {
		fds = append(fds, fd)
	}
	sort.Ints(fds)
	for _, fd := range fds {
		fmt.Fprintf(s.out, "%d\t%s\n", fd, s.files[fd].Name())
	}
}
