package converter_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stackvity/to-utf/internal/testutil"
	"github.com/stackvity/to-utf/pkg/converter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTree(t *testing.T) {
	root := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(root, "b", "B.java"), "b")
	testutil.CreateDummyFile(t, filepath.Join(root, "A.JAVA"), "a")
	testutil.CreateDummyFile(t, filepath.Join(root, "notes.txt"), "n")
	testutil.CreateDummyDir(t, filepath.Join(root, "empty.java"))

	files, err := converter.ListTree(root, []string{".java"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "A.JAVA"),
		filepath.Join(root, "b", "B.java"),
	}, files)

	all, err := converter.ListTree(root, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	blank, err := converter.ListTree(root, []string{""})
	require.NoError(t, err)
	assert.Equal(t, all, blank, "blank entries select every file")
}

func TestListTree_InvalidRoot(t *testing.T) {
	_, err := converter.ListTree("", nil)
	assert.ErrorIs(t, err, converter.ErrInvalidArgument)

	_, err = converter.ListTree(filepath.Join(t.TempDir(), "missing"), nil)
	assert.ErrorIs(t, err, converter.ErrInvalidArgument)

	file := filepath.Join(t.TempDir(), "file.java")
	testutil.CreateDummyFile(t, file, "x")
	_, err = converter.ListTree(file, nil)
	assert.ErrorIs(t, err, converter.ErrInvalidArgument)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "A.java")
	testutil.CreateDummyBytes(t, src, []byte{0xC4, 'p', 'f', 'e', 'l'})
	require.NoError(t, os.Chmod(src, 0600))

	dst := converter.BackupPath(src)
	assert.Equal(t, src+".backup", dst)
	require.NoError(t, converter.CopyFile(src, dst))
	assert.Equal(t, []byte{0xC4, 'p', 'f', 'e', 'l'}, testutil.ReadFile(t, dst))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(dst)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	// Overwrites an existing copy.
	testutil.CreateDummyFile(t, src, "new")
	require.NoError(t, converter.CopyFile(src, dst))
	assert.Equal(t, "new", string(testutil.ReadFile(t, dst)))

	err := converter.CopyFile(filepath.Join(dir, "missing"), dst)
	assert.ErrorIs(t, err, converter.ErrReadFailed)
}

func TestTempTargetAndReplace(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "A.java")
	testutil.CreateDummyFile(t, dst, "old")
	require.NoError(t, os.Chmod(dst, 0640))

	tmp, err := converter.TempTarget(dst)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(tmp))
	assert.True(t, strings.HasPrefix(filepath.Base(tmp), ".toutf-"))
	assert.True(t, strings.HasSuffix(tmp, ".tmp"))

	require.NoError(t, os.WriteFile(tmp, []byte("new"), 0600))
	require.NoError(t, converter.ReplaceFile(tmp, dst))
	assert.Equal(t, "new", string(testutil.ReadFile(t, dst)))
	assert.NoFileExists(t, tmp)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(dst)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
	}
}

func TestReplaceFile_MissingDestination(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "tmp")
	testutil.CreateDummyFile(t, tmp, "data")
	dst := filepath.Join(dir, "fresh.java")

	require.NoError(t, converter.ReplaceFile(tmp, dst))
	assert.Equal(t, "data", string(testutil.ReadFile(t, dst)))

	err := converter.ReplaceFile(filepath.Join(dir, "gone"), filepath.Join(dir, "other.java"))
	assert.ErrorIs(t, err, converter.ErrReplaceFailed)
}

func TestTempTarget_MissingDirectory(t *testing.T) {
	_, err := converter.TempTarget(filepath.Join(t.TempDir(), "missing", "A.java"))
	assert.ErrorIs(t, err, converter.ErrWriteFailed)
}
