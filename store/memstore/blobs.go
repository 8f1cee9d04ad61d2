package memstore

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/screwyprof/luvsettle/claim"
)

// ErrBlobNotFound is returned for an unknown address
var ErrBlobNotFound = errors.New("blob not found")

// Blobs is a content-addressed blob store
type Blobs struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewBlobs creates an empty Blobs
func NewBlobs() *Blobs {
	return &Blobs{blobs: make(map[string][]byte)}
}

// Put stores body and returns its address. Storing the same body twice is a no-op.
func (b *Blobs) Put(_ context.Context, body []byte) (string, error) {
	address := claim.Address(body)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.blobs[address]; !ok {
		b.blobs[address] = slices.Clone(body)
	}
	return address, nil
}

// Get returns the body stored under address
func (b *Blobs) Get(_ context.Context, address string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	body, ok := b.blobs[address]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return slices.Clone(body), nil
}
