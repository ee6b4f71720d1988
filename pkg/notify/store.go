package notify

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a missing record.
var ErrNotFound = errors.New("notify: not found")

// Store is the durable backing for the alarm inbox. Concrete drivers
// (sqlite) implement it. All records are scoped by member id so switching
// members never leaks one member's alarms to another.
type Store interface {
	Dismissals() Dismissals
	Notifications() Notifications

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error
}

// Dismissals holds the time-bounded suppression records: one timestamp per
// dedup key, updated on every suppression decision (first sighting or
// dismissal).
type Dismissals interface {
	// Get returns the record for key, or ErrNotFound.
	Get(ctx context.Context, memberID string, key Key) (time.Time, error)

	// Put inserts or refreshes the record for key.
	Put(ctx context.Context, memberID string, key Key, at time.Time) error

	// PutBatch refreshes every key in one transaction (dismiss-all).
	PutBatch(ctx context.Context, memberID string, keys []Key, at time.Time) error

	// DeleteBefore evicts records whose timestamp is older than cutoff.
	DeleteBefore(ctx context.Context, memberID string, cutoff time.Time) error
}

// Notifications persists the member's visible inbox list, newest first.
type Notifications interface {
	// Replace atomically swaps the stored list for memberID.
	Replace(ctx context.Context, memberID string, list []Notification) error

	// List returns the stored list for memberID, newest first.
	List(ctx context.Context, memberID string) ([]Notification, error)
}
