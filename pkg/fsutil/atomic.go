// Package fsutil provides durable filesystem primitives. Every state
// file in the governance directory goes through AtomicWrite so a crash
// never leaves a half-written descriptor behind.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWrite replaces the file at path with data. The content is
// staged in a temp file in the same directory, fsynced, renamed over
// the target, and the directory entry is fsynced so the rename is
// durable.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	staged, err := stage(dir, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(staged, path); err != nil {
		os.Remove(staged)
		return fmt.Errorf("atomic write rename: %w", err)
	}
	if err := FsyncDir(dir); err != nil {
		return fmt.Errorf("atomic write fsync dir: %w", err)
	}
	return nil
}

// stage writes data to a new temp file in dir and returns its path.
// The temp file is removed on any failure.
func stage(dir string, data []byte, perm os.FileMode) (string, error) {
	tmp, err := os.CreateTemp(dir, ".mutgate-tmp-*")
	if err != nil {
		return "", fmt.Errorf("atomic write create tmp: %w", err)
	}
	name := tmp.Name()

	fail := func(step string, err error) (string, error) {
		tmp.Close()
		os.Remove(name)
		return "", fmt.Errorf("atomic write %s: %w", step, err)
	}

	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fail("chmod", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("fsync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("atomic write close: %w", err)
	}
	return name, nil
}

// FsyncDir fsyncs a directory so renames inside it survive a crash.
func FsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("fsync dir open: %w", err)
	}
	defer d.Close()
	return d.Sync()
}
