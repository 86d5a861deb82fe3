// Package storage persists everything the posting pipeline must remember
// across restarts: announced identity keys, thread-root message IDs, and a
// small config map. It is owned exclusively by the delivery coordinator.
package storage

import (
	"context"
	"time"

	"dealsbot/internal/deal"
)

// Store is the persistence API used by the delivery coordinator.
//
// Every method surfaces storage errors to the caller: a masked lookup
// failure would risk a duplicate post, and a masked write failure would
// silently lose a deal. Callers decide how to degrade.
type Store interface {
	// HasPosted reports whether key was ever marked posted. Pure lookup.
	HasPosted(ctx context.Context, key string) (bool, error)

	// MarkPosted records key as announced. Insert-if-absent: repeating a
	// key is a no-op, which keeps at-least-once retries safe.
	MarkPosted(ctx context.Context, key string, source deal.Source, title string) error

	// Prune deletes posted records older than retention and returns the
	// number removed.
	Prune(ctx context.Context, retention time.Duration) (int64, error)

	// Thread returns the persisted thread-root message ID for a category.
	Thread(ctx context.Context, cat deal.Category) (messageID int, ok bool, err error)

	// PutThread persists the thread-root mapping for a category.
	PutThread(ctx context.Context, cat deal.Category, messageID int) error

	GetConfig(ctx context.Context, key string) (value string, ok bool, err error)
	SetConfig(ctx context.Context, key, value string) error

	Close() error
}

// Config selects and tunes the storage backend.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}
