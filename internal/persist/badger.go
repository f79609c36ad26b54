package persist

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/mutgate-project/mutgate/pkg/pathutil"
)

// BadgerStore stores resource content in an embedded BadgerDB. Suited
// for governed state that is not naturally file-shaped.
type BadgerStore struct {
	db *badger.DB
}

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string
	// InMemory disables disk persistence. Useful for tests.
	InMemory bool
	// SyncWrites forces durable writes. Defaults to true for on-disk stores.
	SyncWrites bool
}

// NewBadgerStore opens a Badger-backed store.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Dir).WithSyncWrites(opts.SyncWrites)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Read returns the content stored for a resource id.
func (s *BadgerStore) Read(resourceID string) ([]byte, error) {
	if err := pathutil.ValidateResourceID(resourceID); err != nil {
		return nil, err
	}
	var content []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(resourceID))
		if err != nil {
			return err
		}
		content, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("read resource %s: %w", resourceID, err)
	}
	return content, nil
}

// Write replaces the content stored for a resource id.
func (s *BadgerStore) Write(resourceID string, content []byte) error {
	if err := pathutil.ValidateResourceID(resourceID); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(resourceID), content)
	})
	if err != nil {
		return fmt.Errorf("write resource %s: %w", resourceID, err)
	}
	return nil
}

// Delete removes a resource. Absent keys are not an error.
func (s *BadgerStore) Delete(resourceID string) error {
	if err := pathutil.ValidateResourceID(resourceID); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(resourceID))
	})
	if err != nil {
		return fmt.Errorf("delete resource %s: %w", resourceID, err)
	}
	return nil
}

// Exists reports whether a resource id has stored content.
func (s *BadgerStore) Exists(resourceID string) (bool, error) {
	if err := pathutil.ValidateResourceID(resourceID); err != nil {
		return false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(resourceID))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat resource %s: %w", resourceID, err)
	}
	return true, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
