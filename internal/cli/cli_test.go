package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/virtfs/pkg/backend/memory"
	"github.com/marmos91/virtfs/pkg/logger"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

type fixture struct {
	exp *memory.Export
	reg *virtfs.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	srv := memory.NewServer()
	exp := srv.AddExport("host", "/export")
	require.NoError(t, exp.MkdirAll("/docs", 0o755))
	require.NoError(t, exp.WriteFile("/hello.txt", []byte("hello world"), 0o644))
	require.NoError(t, exp.WriteFile("/docs/a.txt", []byte("aaa"), 0o600))

	reg := virtfs.NewRegistry()
	require.NoError(t, memory.Register(reg, srv))
	return &fixture{exp: exp, reg: reg}
}

// run executes one command line and returns its stdout, stderr and error.
func (f *fixture) run(stdin string, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	root := NewRootCommand(WithRegistry(f.reg), WithIO(strings.NewReader(stdin), &out, &errOut))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestStat(t *testing.T) {
	f := newFixture(t)

	t.Run("RegularFile", func(t *testing.T) {
		out, _, err := f.run("", "stat", "mem://host/export/hello.txt")
		require.NoError(t, err)
		assert.Contains(t, out, "  File: `/hello.txt'")
		assert.Contains(t, out, "Size: 11")
		assert.Contains(t, out, "regular file")
		assert.Contains(t, out, "(0644/-rw-r--r--)")
	})

	t.Run("Debug", func(t *testing.T) {
		var logs bytes.Buffer
		prev := logger.Default().Threshold()
		logger.SetSink(logger.WriterSink(&logs))
		t.Cleanup(func() {
			logger.SetSink(nil)
			logger.Default().SetThreshold(prev)
		})

		out, _, err := f.run("", "stat", "-d", "mem://host/export/hello.txt")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "FS initialized correctly:\n"))
		assert.Equal(t, logger.LevelDebug, logger.Default().Threshold())
		assert.Contains(t, logs.String(), "[DEBUG]")
	})

	t.Run("Missing", func(t *testing.T) {
		_, _, err := f.run("", "stat", "mem://host/export/nope")
		require.Error(t, err)
		assert.Equal(t, ExitGeneralError, ExitCodeForError(err))
	})

	t.Run("MalformedURL", func(t *testing.T) {
		_, _, err := f.run("", "stat", "mem://host")
		require.Error(t, err)
		assert.Equal(t, ExitUsageError, ExitCodeForError(err))
	})

	t.Run("MissingArgument", func(t *testing.T) {
		_, _, err := f.run("", "stat")
		require.Error(t, err)
		assert.Equal(t, ExitUsageError, ExitCodeForError(err))
	})
}

func TestLs(t *testing.T) {
	f := newFixture(t)

	t.Run("Root", func(t *testing.T) {
		out, _, err := f.run("", "ls", "mem://host/export")
		require.NoError(t, err)
		names := strings.Fields(out)
		assert.ElementsMatch(t, []string{"docs", "hello.txt"}, names)
	})

	t.Run("Subdirectory", func(t *testing.T) {
		out, _, err := f.run("", "ls", "mem://host/export", "/docs")
		require.NoError(t, err)
		assert.Equal(t, "a.txt\n", out)
	})

	t.Run("Long", func(t *testing.T) {
		out, _, err := f.run("", "ls", "-l", "mem://host/export", "/docs")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "-rw------- 1 "), out)
		assert.True(t, strings.HasSuffix(out, " a.txt\n"), out)
	})

	t.Run("NotADirectory", func(t *testing.T) {
		_, _, err := f.run("", "ls", "mem://host/export", "/hello.txt")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot open directory `/hello.txt'")
	})

	t.Run("UnknownScheme", func(t *testing.T) {
		_, _, err := f.run("", "ls", "nfs://host/export")
		require.Error(t, err)
	})
}

func TestCat(t *testing.T) {
	f := newFixture(t)

	out, _, err := f.run("", "cat", "mem://host/export/hello.txt", "mem://host/export/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello worldhello world", out)

	_, _, err = f.run("", "cat", "mem://host/export/missing.txt")
	assert.Error(t, err)
}

func TestPut(t *testing.T) {
	f := newFixture(t)

	t.Run("Create", func(t *testing.T) {
		_, _, err := f.run("new data", "put", "--mode", "0600", "mem://host/export/new.txt")
		require.NoError(t, err)

		out, _, err := f.run("", "cat", "mem://host/export/new.txt")
		require.NoError(t, err)
		assert.Equal(t, "new data", out)

		out, _, err = f.run("", "stat", "mem://host/export/new.txt")
		require.NoError(t, err)
		assert.Contains(t, out, "(0600/-rw-------)")
	})

	t.Run("ExistingWithoutForce", func(t *testing.T) {
		_, _, err := f.run("x", "put", "mem://host/export/hello.txt")
		require.Error(t, err)
		assert.Equal(t, syscall.EEXIST, virtfs.Errno(err))
		assert.Equal(t, ExitGeneralError, ExitCodeForError(err))
	})

	t.Run("Append", func(t *testing.T) {
		_, _, err := f.run("!", "put", "-a", "mem://host/export/hello.txt")
		require.NoError(t, err)

		out, _, err := f.run("", "cat", "mem://host/export/hello.txt")
		require.NoError(t, err)
		assert.Equal(t, "hello world!", out)
	})

	t.Run("Force", func(t *testing.T) {
		_, _, err := f.run("bye", "put", "-f", "mem://host/export/hello.txt")
		require.NoError(t, err)

		out, _, err := f.run("", "cat", "mem://host/export/hello.txt")
		require.NoError(t, err)
		assert.Equal(t, "bye", out)
	})

	t.Run("InvalidMode", func(t *testing.T) {
		_, _, err := f.run("", "put", "-m", "9999", "mem://host/export/bad.txt")
		require.Error(t, err)
		assert.Equal(t, ExitUsageError, ExitCodeForError(err))
	})

	t.Run("AppendAndForce", func(t *testing.T) {
		_, _, err := f.run("", "put", "-a", "-f", "mem://host/export/bad.txt")
		require.Error(t, err)
		assert.Equal(t, ExitUsageError, ExitCodeForError(err))
	})
}

func TestTruncate(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.run("", "truncate", "-s", "5", "mem://host/export/hello.txt")
	require.NoError(t, err)

	out, _, err := f.run("", "cat", "mem://host/export/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, _, err = f.run("", "truncate", "-s", "8", "mem://host/export/hello.txt")
	require.NoError(t, err)
	out, _, err = f.run("", "cat", "mem://host/export/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello\x00\x00\x00", out)

	_, _, err = f.run("", "truncate", "mem://host/export/hello.txt")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCodeForError(err))

	_, _, err = f.run("", "truncate", "-s", "-1", "mem://host/export/hello.txt")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCodeForError(err))
}

func TestVersion(t *testing.T) {
	f := newFixture(t)

	out, _, err := f.run("", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "virtfs dev "), out)
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.run("", "frobnicate")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCodeForError(err))
}

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"Nil", nil, ExitSuccess},
		{"Usage", usagef("bad flag"), ExitUsageError},
		{"WrappedUsage", fmt.Errorf("outer: %w", usagef("bad")), ExitUsageError},
		{"Parse", &virtfs.Error{Kind: virtfs.KindParse, Op: "parse", Err: errors.New("bad url")}, ExitUsageError},
		{"RequiredFlag", errors.New(`required flag(s) "size" not set`), ExitUsageError},
		{"Backend", &virtfs.Error{Kind: virtfs.KindBackend, Op: "stat", Err: io.ErrUnexpectedEOF}, ExitGeneralError},
		{"Plain", errors.New("boom"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeForError(tt.err))
		})
	}
}
