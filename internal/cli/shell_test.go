package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShell(t *testing.T) {
	f := newFixture(t)

	t.Run("Session", func(t *testing.T) {
		script := strings.Join([]string{
			"ls",
			"connect mem://host/export",
			"ls /docs",
			"cat /hello.txt",
			"stat -L /docs/a.txt",
			"open /docs/a.txt",
			"files",
			"disconnect",
			"files",
			"quit",
			"ls",
		}, "\n")

		out, errOut, err := f.run(script, "shell")
		require.NoError(t, err)

		assert.Contains(t, errOut, "ls: not connected")
		assert.Contains(t, out, "virtfs (host/export)> ")
		assert.Contains(t, out, "a.txt\n")
		assert.Contains(t, out, "hello world")
		assert.Contains(t, out, "  File: `/docs/a.txt'")
		assert.Contains(t, out, "\t/docs/a.txt\n")

		// Nothing runs after quit.
		assert.Equal(t, 1, strings.Count(errOut, "not connected"))
		assert.True(t, strings.HasSuffix(out, "virtfs> "), out)
	})

	t.Run("ConnectArgument", func(t *testing.T) {
		out, _, err := f.run("ls\n", "shell", "mem://host/export")
		require.NoError(t, err)
		assert.Contains(t, out, "hello.txt\n")
		assert.True(t, strings.HasSuffix(out, "virtfs (host/export)> \n"), out)
	})

	t.Run("ConnectFailure", func(t *testing.T) {
		_, _, err := f.run("", "shell", "mem://nohost/export")
		require.Error(t, err)
	})

	t.Run("UnknownCommand", func(t *testing.T) {
		_, errOut, err := f.run("frobnicate\nhelp\n", "shell")
		require.NoError(t, err)
		assert.Contains(t, errOut, "Unknown command 'frobnicate'. Type 'help' for more.")
	})

	t.Run("Help", func(t *testing.T) {
		out, _, err := f.run("help\n", "shell")
		require.NoError(t, err)
		assert.Contains(t, out, shellHelp)
	})

	t.Run("OpenAndClose", func(t *testing.T) {
		out, errOut, err := f.run("connect mem://host/export\nopen /hello.txt\n", "shell")
		require.NoError(t, err)
		assert.Empty(t, errOut)

		// The descriptor is printed on its own line after the prompt.
		lines := strings.Split(out, "\n")
		require.GreaterOrEqual(t, len(lines), 2)
		fd := strings.TrimPrefix(lines[0], "virtfs> virtfs (host/export)> ")
		require.NotEmpty(t, fd)

		out, errOut, err = f.run("connect mem://host/export\nclose "+fd+"\n", "shell")
		require.NoError(t, err)
		assert.Contains(t, errOut, "is not open in this session")
		assert.NotEmpty(t, out)

		_, errOut, err = f.run("close abc\n", "shell")
		require.NoError(t, err)
		assert.Contains(t, errOut, `invalid descriptor "abc"`)
	})
}
