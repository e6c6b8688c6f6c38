// Package contentstore adapts a content-addressed storage network behind a
// put/get contract. The store never touches ledger state; writes are
// idempotent for identical bytes and reads are best-effort.
package contentstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
)

// ErrNotFound is returned by Get when the content id cannot be resolved.
// Callers on read paths degrade to fallback values; write flows treat any
// Put failure as fatal.
var ErrNotFound = errors.New("contentstore: content not found")

// Store is an opaque content-addressed store.
type Store interface {
	// Put stores data and returns its content id. nameHint is advisory
	// labelling for the pinning service and does not affect the id.
	Put(ctx context.Context, data []byte, nameHint string) (string, error)
	// Get retrieves the bytes behind contentID, or ErrNotFound.
	Get(ctx context.Context, contentID string) ([]byte, error)
}

// ValidateContentID checks that id parses as a CID (v0 or v1).
func ValidateContentID(id string) error {
	if _, err := cid.Decode(id); err != nil {
		return fmt.Errorf("invalid content id %q: %w", id, err)
	}
	return nil
}
