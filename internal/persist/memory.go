package persist

import "sync"

// MemStore is an in-memory store for tests. The hook functions, when
// set, run before the corresponding operation and can inject failures.
type MemStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	ReadHook  func(resourceID string) error
	WriteHook func(resourceID string) error
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

// Read returns stored content or ErrNotExist.
func (s *MemStore) Read(resourceID string) ([]byte, error) {
	if s.ReadHook != nil {
		if err := s.ReadHook(resourceID); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.data[resourceID]
	if !ok {
		return nil, ErrNotExist
	}
	return append([]byte(nil), content...), nil
}

// Write replaces stored content.
func (s *MemStore) Write(resourceID string, content []byte) error {
	if s.WriteHook != nil {
		if err := s.WriteHook(resourceID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[resourceID] = append([]byte(nil), content...)
	return nil
}

// Delete removes a key. Absent keys are not an error.
func (s *MemStore) Delete(resourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, resourceID)
	return nil
}

// Exists reports key presence.
func (s *MemStore) Exists(resourceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[resourceID]
	return ok, nil
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }
