package contentstore

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// MemoryStore is an in-process content-addressed store for tests and local
// development. Ids are real CIDv1 sha2-256 digests, so identical bytes
// always produce identical ids, matching the network store's contract.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores data under its derived content id.
func (s *MemoryStore) Put(_ context.Context, data []byte, _ string) (string, error) {
	id, err := deriveContentID(data)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[id]; !exists {
		buf := make([]byte, len(data))
		copy(buf, data)
		s.objects[id] = buf
	}
	return id, nil
}

// Get returns the bytes behind contentID, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, contentID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[contentID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Forget drops contentID, simulating an unpinned or unresolvable object.
func (s *MemoryStore) Forget(contentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, contentID)
}

func deriveContentID(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}
