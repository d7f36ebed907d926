// Package fileutil provides small filesystem helpers shared by the
// conversion pipeline: extension handling, job-scoped naming, and safe
// file movement across directories.
package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// NormalizeExt lower-cases an extension token and strips a leading dot.
// "PDF", ".pdf" and "pdf" all normalize to "pdf".
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// Ext returns the normalized extension of a path, without the dot.
func Ext(path string) string {
	return NormalizeExt(filepath.Ext(path))
}

// Stem returns the base name of a path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReplaceExt returns path with its extension replaced by ext (dot optional).
func ReplaceExt(path, ext string) string {
	return filepath.Join(filepath.Dir(path), Stem(path)+"."+NormalizeExt(ext))
}

// JobScopedName builds a filename unique to a job so concurrent jobs
// converting identically-named sources never collide.
func JobScopedName(jobID, fileName string) string {
	return fmt.Sprintf("%s_%s", jobID, filepath.Base(fileName))
}

// EnsureDir creates dir (and parents) if it does not exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// MoveFile renames src to dst, falling back to copy+remove when the two
// paths live on different filesystems.
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	if err := CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// CopyFile streams src to dst with default permissions (0o644).
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

// RemoveIfExists deletes path, ignoring the not-exist case.
func RemoveIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
