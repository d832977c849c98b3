package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stackvity/to-utf/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

// executeCommand is a helper function to execute cobra command and capture output
func executeCommand(root *cobra.Command, args ...string) (stdout string, stderr string, err error) {
	stdoutBuf := new(bytes.Buffer)
	stderrBuf := new(bytes.Buffer)
	root.SetOut(stdoutBuf)
	root.SetErr(stderrBuf)
	root.SetArgs(args)

	err = root.Execute()

	return stdoutBuf.String(), stderrBuf.String(), err
}

// latin1Tree creates a directory holding one ISO-8859-1 encoded Java file.
// HOME is pointed at an empty directory so no user config file is picked up.
func latin1Tree(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	content, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte("// Müller\n"))
	require.NoError(t, err)
	testutil.CreateDummyBytes(t, filepath.Join(root, "A.java"), content)
	return root
}

func TestRootCmdHelp(t *testing.T) {
	cmd := newRootCmd()
	stdout, stderr, err := executeCommand(cmd, "--help")
	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Contains(t, stdout, "Usage:")
	assert.Contains(t, stdout, "to-utf [dir]")
	assert.Contains(t, stdout, "charsets")

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		assert.Contains(t, stdout, "--"+f.Name, "help should list --%s", f.Name)
		if f.Shorthand != "" {
			assert.Contains(t, stdout, "-"+f.Shorthand+",", "help should list -%s", f.Shorthand)
		}
	})
	cmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		assert.Contains(t, stdout, "--"+f.Name, "help should list persistent --%s", f.Name)
	})
}

func TestRootCmdVersion(t *testing.T) {
	originalVersion, originalCommit, originalDate := version, commit, date
	version, commit, date = "test-1.2.3", "testcommit123", "2024-01-01T10:00:00Z"
	defer func() {
		version, commit, date = originalVersion, originalCommit, originalDate
	}()

	expected := "to-utf version test-1.2.3 (commit: testcommit123, built: 2024-01-01T10:00:00Z)\n"

	stdout, stderr, err := executeCommand(newRootCmd(), "--version")
	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Equal(t, expected, stdout)

	stdout, _, err = executeCommand(newRootCmd(), "version")
	require.NoError(t, err)
	assert.Equal(t, expected, stdout)
}

func TestCharsetsCmd(t *testing.T) {
	t.Setenv("LC_ALL", "de_DE.ISO-8859-15@euro")
	stdout, _, err := executeCommand(newRootCmd(), "charsets")
	require.NoError(t, err)
	assert.Contains(t, stdout, "UTF-8\n")
	assert.Contains(t, stdout, "ISO-8859-1\n")
	assert.Contains(t, stdout, "windows-1252\n")
	assert.Contains(t, stdout, "ISO-8859-15 (system default)\n")
}

func TestRootCmdFlagParsingErrors(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		errorMsg string
	}{
		{name: "Unknown flag", args: []string{".", "--unknown-flag"}, errorMsg: "unknown flag: --unknown-flag"},
		{name: "Invalid int", args: []string{".", "--concurrency", "abc"}, errorMsg: `invalid argument "abc" for "--concurrency" flag`},
		{name: "Too many args", args: []string{"a", "b"}, errorMsg: "accepts at most 1 arg(s), received 2"},
		{name: "Charsets takes no args", args: []string{"charsets", "x"}, errorMsg: `unknown command "x"`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, stderr, err := executeCommand(newRootCmd(), tc.args...)
			require.Error(t, err)
			assert.Contains(t, stderr, tc.errorMsg)
		})
	}
}

func TestRootCmd_ConvertsTree(t *testing.T) {
	root := latin1Tree(t)

	stdout, _, err := executeCommand(newRootCmd(), root, "--no-tui", "--no-backup")
	require.NoError(t, err)
	assert.Contains(t, stdout, "A.java (assuming ISO-8859-1)")
	assert.Contains(t, stdout, "Converted 1 files")
	assert.Equal(t, "// Müller\n", string(testutil.ReadFile(t, filepath.Join(root, "A.java"))))
	assert.NoFileExists(t, filepath.Join(root, "A.java.backup"))
}

func TestRootCmd_DryRunWithInputFlag(t *testing.T) {
	root := latin1Tree(t)
	before := testutil.ReadFile(t, filepath.Join(root, "A.java"))

	stdout, _, err := executeCommand(newRootCmd(), "-i", root, "-n", "--no-tui", "--output-format", "json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"dryRun": true`)
	assert.Contains(t, stdout, `"listing": "A.java (assuming ISO-8859-1)"`)
	assert.Equal(t, before, testutil.ReadFile(t, filepath.Join(root, "A.java")))
}

func TestRootCmd_InputTwice(t *testing.T) {
	root := latin1Tree(t)
	_, stderr, err := executeCommand(newRootCmd(), root, "--input", root)
	require.Error(t, err)
	assert.Contains(t, stderr, "either as argument or with --input")
}

func TestRootCmd_InvalidConfiguration(t *testing.T) {
	root := latin1Tree(t)
	_, stderr, err := executeCommand(newRootCmd(), root, "--default-encoding", "klingon-8")
	require.Error(t, err)
	assert.Contains(t, stderr, "defaultEncoding")
}
