package utils

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// CheckIfExistsAndIsRegular checks if the path exists and points to a regular file.
func CheckIfExistsAndIsRegular(path string) (os.FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !stat.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	return stat, nil
}

// CheckIfExistsAndIsDirectory checks if the path exists and points to a directory.
func CheckIfExistsAndIsDirectory(path string) (os.FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", path)
	}
	return stat, nil
}

// EnsureParentDirectory creates the parent directory of a file path, if it does not exist.
func EnsureParentDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// AtomicWriteFile writes data to a temporary file in the target directory and renames it
// over the target. If the target exists, its mode is preserved.
func AtomicWriteFile(target string, data []byte, defaultMode os.FileMode) error {
	mode := defaultMode
	if stat, err := os.Stat(target); err == nil {
		mode = stat.Mode().Perm()
	}

	tempFile, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return errors.Wrap(err, "failed creating temporary file")
	}
	tempName := tempFile.Name()
	defer os.Remove(tempName) // no-op after a successful rename

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return errors.Wrap(err, "failed writing temporary file")
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return errors.Wrap(err, "failed syncing temporary file")
	}
	if err := tempFile.Close(); err != nil {
		return errors.Wrap(err, "failed closing temporary file")
	}
	if err := os.Chmod(tempName, mode); err != nil {
		return errors.Wrap(err, "failed setting temporary file mode")
	}
	if err := os.Rename(tempName, target); err != nil {
		return errors.Wrap(err, "failed replacing target file")
	}
	return nil
}

// GunzipFile decompresses a gzip file into target.
func GunzipFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	reader, err := gzip.NewReader(in)
	if err != nil {
		return errors.Wrap(err, "failed opening gzip stream")
	}
	defer reader.Close()
	if err := EnsureParentDirectory(target); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		return errors.Wrap(err, "failed decompressing")
	}
	return out.Close()
}
