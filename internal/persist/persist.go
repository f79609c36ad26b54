// Package persist abstracts the medium that holds governed resource
// content. The governance core treats it as an opaque key/value surface;
// resource ids are caller-defined keys resolved by the backend.
package persist

import "errors"

// ErrNotExist is returned by Read when a resource id has no content.
var ErrNotExist = errors.New("resource does not exist")

// Store is the persistence collaborator consumed by the backup store
// and the mutation executor.
type Store interface {
	// Read returns the current content of a resource, or ErrNotExist.
	Read(resourceID string) ([]byte, error)
	// Write replaces the content of a resource, creating it if absent.
	Write(resourceID string, content []byte) error
	// Delete removes a resource. Deleting an absent resource is not an error.
	Delete(resourceID string) error
	// Exists reports whether a resource currently has content.
	Exists(resourceID string) (bool, error)
	// Close releases backend handles.
	Close() error
}
