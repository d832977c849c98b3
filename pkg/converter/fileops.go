package converter

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/stackvity/to-utf/pkg/util"
)

// ListTree returns the regular files below root whose names end in one of
// extensions, sorted. A nil list, or one holding only blank entries,
// selects every file.
func ListTree(root string, extensions []string) ([]string, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: root cannot be empty", ErrInvalidArgument)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidArgument, root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if util.MatchesExtension(d.Name(), extensions) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", ErrReadFailed, root, err)
	}
	sort.Strings(files)
	return files, nil
}

// BackupPath names the backup copy of path.
func BackupPath(path string) string {
	return path + BackupSuffix
}

// CopyFile copies src to dst byte for byte, keeping the file mode.
// An existing dst is overwritten.
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStatFailed, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %w", ErrWriteFailed, cerr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("%w: copying %s: %w", ErrWriteFailed, src, err)
	}
	return nil
}

// TempTarget creates an empty file next to path for a conversion to be
// written into, and returns its name.
func TempTarget(path string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), tempPattern)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return name, nil
}

// ReplaceFile moves tmp over dst, giving it dst's permissions.
// Both must be on the same filesystem for the rename to be atomic.
func ReplaceFile(tmp, dst string) error {
	info, err := os.Stat(dst)
	switch {
	case err == nil:
		if chmodErr := os.Chmod(tmp, info.Mode().Perm()); chmodErr != nil {
			return fmt.Errorf("%w: %w", ErrReplaceFailed, chmodErr)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrStatFailed, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("%w: %w", ErrReplaceFailed, err)
	}
	return nil
}

// isOwnArtifact reports whether name is a file the converter itself writes.
func isOwnArtifact(name string) bool {
	if name == CacheFileName || filepath.Ext(name) == BackupSuffix {
		return true
	}
	matched, _ := filepath.Match(tempPattern, name)
	return matched
}
