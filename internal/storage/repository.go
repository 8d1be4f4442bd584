package storage

import (
	"context"
)

// Fixed keys under which the reaction ledger is persisted.
const (
	LikedKey    = "userLikedStickers"
	DislikedKey = "userDislikedStickers"
)

// LedgerRepository defines durable storage for identifier lists.
// Implementations can be swapped (BadgerDB, in-memory) without changing the
// gallery logic that uses them.
type LedgerRepository interface {
	// LoadIDs returns the list stored under namespace and key.
	// A missing or unreadable value yields an empty list, not an error.
	LoadIDs(ctx context.Context, namespace, key string) ([]string, error)

	// SaveIDs replaces the list stored under namespace and key.
	SaveIDs(ctx context.Context, namespace, key string, ids []string) error

	// SaveLedger replaces both reaction lists of namespace in one write, so
	// readers never observe one list updated without the other.
	SaveLedger(ctx context.Context, namespace string, liked, disliked []string) error

	// Close gracefully shuts down the repository connection.
	Close() error
}
