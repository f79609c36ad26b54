//go:build windows

package ledger

import "os"

// lockFile is a no-op on Windows; the in-process mutex provides
// sufficient protection for a single-writer ledger.
func lockFile(_ *os.File) error   { return nil }
func unlockFile(_ *os.File) error { return nil }
