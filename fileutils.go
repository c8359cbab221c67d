package main

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// resolveLocalPath maps a remote file onto the target directory. Flattened
// mode keeps only the base name, so same-named files from different remote
// directories overwrite each other; preserve mode keeps the path relative to
// the source root.
func resolveLocalPath(remotePath, basePath, localBasePath string, preserve bool) (string, error) {
	if !preserve {
		return filepath.Join(localBasePath, path.Base(remotePath)), nil
	}

	relativePath, ok := relativeTo(path.Clean(remotePath), path.Clean(basePath))
	if !ok {
		return "", errors.Errorf("%s is outside %s", remotePath, basePath)
	}

	return filepath.Join(localBasePath, filepath.FromSlash(relativePath)), nil
}

// relativeTo strips base from p. A base of "." is the session's working
// directory, so any relative path below it qualifies.
func relativeTo(p, base string) (string, bool) {
	if base == "." {
		if p == "." || p == ".." || strings.HasPrefix(p, "../") || path.IsAbs(p) {
			return "", false
		}
		return p, true
	}
	prefix := strings.TrimSuffix(base, "/") + "/"
	if !strings.HasPrefix(p, prefix) {
		return "", false
	}
	return strings.TrimPrefix(p, prefix), true
}

// saveRemoteFile streams reader into localPath and returns the size of the
// file as it ended up on disk.
func saveRemoteFile(localPath string, reader io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return 0, errors.Wrap(err, "failed to create directory")
	}

	destFile, err := os.Create(localPath)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create destination file")
	}
	defer func() {
		_ = destFile.Close()
	}()

	if _, err := io.Copy(destFile, reader); err != nil {
		return 0, errors.Wrap(err, "failed to copy file contents")
	}
	if err := destFile.Close(); err != nil {
		return 0, errors.Wrap(err, "failed to close destination file")
	}

	fi, err := os.Stat(localPath)
	if err != nil {
		return 0, errors.Wrap(err, "failed to stat destination file")
	}
	return fi.Size(), nil
}
