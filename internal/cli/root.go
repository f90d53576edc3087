// Package cli implements the virtfs command-line tools.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/virtfs/pkg/config"
	"github.com/marmos91/virtfs/pkg/logger"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

// Option customizes the command tree, mainly for tests and embedders.
type Option func(*app)

// WithRegistry makes every command use reg instead of the drivers
// registered from the configuration file.
func WithRegistry(reg *virtfs.Registry) Option {
	return func(a *app) { a.registry = reg }
}

// WithIO replaces the standard streams.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(a *app) {
		a.stdin, a.stdout, a.stderr = in, out, errOut
	}
}

// app carries the state shared by every command of one invocation.
type app struct {
	configPath string
	logLevel   string

	registry *virtfs.Registry
	cfg      *config.Config
	metrics  *config.MetricsResult
	drivers  *config.Drivers

	logCloser io.Closer

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand builds the virtfs command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:   "virtfs",
		Short: "Access remote volumes through virtfs URLs",
		Long: `virtfs reads and writes files on remote volumes addressed by URL:

  scheme://authority/export-path[/file]

The scheme selects the backend (mem, badger, s3); backends are enabled and
configured in $XDG_CONFIG_HOME/virtfs/config.yaml or with --config.

Exit Codes:
  0  - Success
  1  - Operation failed
  2  - CLI usage error (invalid arguments, flags or URL)
  3  - Panic or unexpected system error`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err}
	})

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to config file (default: $XDG_CONFIG_HOME/virtfs/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level (DEBUG, INFO, WARN, ERROR)")

	root.AddCommand(
		a.newStatCommand(),
		a.newLsCommand(),
		a.newCatCommand(),
		a.newPutCommand(),
		a.newTruncateCommand(),
		a.newShellCommand(),
		a.newConfigCommand(),
		newVersionCommand(),
	)

	return root
}

// Execute runs the command tree with os.Args and returns the exit code.
func Execute() int {
	root := NewRootCommand()
	cmd, err := root.ExecuteC()
	if err == nil {
		return ExitSuccess
	}

	code := ExitCodeForError(err)
	if cmd == nil || cmd == root {
		fmt.Fprintf(os.Stderr, "virtfs: %v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "virtfs %s: %v\n", cmd.Name(), err)
	}
	if code == ExitUsageError && cmd != nil {
		fmt.Fprint(os.Stderr, "\n"+cmd.UsageString())
	}
	return code
}

// setup loads the configuration and registers the configured drivers,
// unless a registry was injected.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if a.registry != nil {
		if a.logLevel != "" {
			logger.SetLevel(a.logLevel)
		}
		return nil
	}
	if skipSetup(cmd) {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return &usageError{err}
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	closer, err := config.ConfigureLogging(cfg.Logging)
	if err != nil {
		return &usageError{err}
	}
	a.logCloser = closer

	a.cfg = cfg
	a.metrics = config.InitializeMetrics(cfg)
	a.registry = virtfs.NewRegistry()

	drivers, err := config.RegisterDrivers(cfg, a.registry, a.metrics)
	if err != nil {
		return fmt.Errorf("failed to register backends: %w", err)
	}
	a.drivers = drivers

	logger.Debug("Backends enabled: %v", cfg.Backends.Enabled)
	return nil
}

func (a *app) teardown() error {
	if a.logCloser != nil {
		err := a.logCloser.Close()
		a.logCloser = nil
		return err
	}
	return nil
}

// skipSetup reports whether cmd works without backends.
func skipSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["setup"] == "none" {
			return true
		}
	}
	return false
}

// handleOptions returns the options every handle opened by a command uses.
func (a *app) handleOptions(extra ...virtfs.Option) []virtfs.Option {
	opts := []virtfs.Option{virtfs.WithRegistry(a.registry)}
	opts = append(opts, a.metrics.Options()...)
	return append(opts, extra...)
}
