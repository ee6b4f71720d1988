// Package notify deduplicates and persists live alarms. The Inbox consumes
// events from the push channel, drops anything the member has already seen
// or dismissed inside the retention window, keeps a bounded visible list and
// fans distinct alarms out to subscribers and the host alert surface.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultRetention is how long a suppression record stays authoritative.
	DefaultRetention = 24 * time.Hour

	// DefaultLimit caps the visible list; the oldest entry is evicted first.
	DefaultLimit = 100
)

// Alerter is the host alert surface (system notification, terminal bell,
// browser alert). It is invoked once per distinct alarm.
type Alerter interface {
	Alert(n Notification)
}

// AlerterFunc adapts a function to the Alerter interface.
type AlerterFunc func(n Notification)

// Alert implements Alerter.
func (f AlerterFunc) Alert(n Notification) { f(n) }

// InboxConfig configures an Inbox.
type InboxConfig struct {
	// Store is the durable dedup/list backing.
	Store Store

	// MemberID scopes every record; an Inbox serves exactly one member.
	MemberID string

	// Alerter receives each distinct alarm. Optional.
	Alerter Alerter

	Logger *slog.Logger

	// Retention overrides DefaultRetention when positive.
	Retention time.Duration

	// Limit overrides DefaultLimit when positive.
	Limit int
}

// Inbox is the in-memory view over the member's alarm state.
type Inbox struct {
	store     Store
	memberID  string
	alerter   Alerter
	logger    *slog.Logger
	retention time.Duration
	limit     int
	now       func() time.Time

	mu     sync.Mutex
	list   []Notification
	subs   map[int]func(Notification)
	subSeq int
}

// NewInbox builds an Inbox. Call Restore before ingesting to pick up state
// persisted by a previous run.
func NewInbox(cfg InboxConfig) *Inbox {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}

	return &Inbox{
		store:     cfg.Store,
		memberID:  cfg.MemberID,
		alerter:   cfg.Alerter,
		logger:    cfg.Logger,
		retention: cfg.Retention,
		limit:     cfg.Limit,
		now:       time.Now,
		subs:      make(map[int]func(Notification)),
	}
}

// Restore loads the persisted list for the member, drops entries dismissed
// after they were received, and opportunistically evicts suppression
// records that have aged out of the retention window.
func (i *Inbox) Restore(ctx context.Context) error {
	now := i.now()

	if err := i.store.Dismissals().DeleteBefore(ctx, i.memberID, now.Add(-i.retention)); err != nil {
		i.logger.Warn("pruning dismissal records failed", "error", err)
	}

	stored, err := i.store.Notifications().List(ctx, i.memberID)
	if err != nil {
		return err
	}

	kept := make([]Notification, 0, len(stored))
	for _, n := range stored {
		at, err := i.store.Dismissals().Get(ctx, i.memberID, n.Key())
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		// A record newer than the event means it was dismissed after
		// delivery; drop it even if the stored list still carries it.
		if err == nil && at.After(n.ReceivedAt) {
			continue
		}
		kept = append(kept, n)
	}

	i.mu.Lock()
	i.list = kept
	i.mu.Unlock()

	return nil
}

// Ingest accepts one alarm delivery. A key suppressed inside the retention
// window is dropped silently; a distinct alarm is recorded, prepended to the
// visible list, persisted and fanned out. Ingest is idempotent under retry:
// redelivering the same alarm inside the window never produces a second
// visible notification or host alert.
func (i *Inbox) Ingest(ctx context.Context, key Key, n Notification) (bool, error) {
	now := i.now()
	if n.ReceivedAt.IsZero() {
		n.ReceivedAt = now
	}

	at, err := i.store.Dismissals().Get(ctx, i.memberID, key)
	switch {
	case err == nil && now.Sub(at) < i.retention:
		return false, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return false, err
	}

	// Record the suppression decision before surfacing anything, so a
	// crash between the two sides errs towards silence, not duplicates.
	// The record carries the event's own timestamp: a record newer than
	// ReceivedAt means "dismissed after delivery" to Restore, and a first
	// sighting must never read that way.
	if err := i.store.Dismissals().Put(ctx, i.memberID, key, n.ReceivedAt); err != nil {
		return false, err
	}

	i.mu.Lock()
	i.list = append([]Notification{n}, i.list...)
	if len(i.list) > i.limit {
		i.list = i.list[:i.limit]
	}
	snapshot := i.snapshotLocked()
	subs := i.subsLocked()
	i.mu.Unlock()

	if err := i.store.Notifications().Replace(ctx, i.memberID, snapshot); err != nil {
		i.logger.Warn("persisting notification list failed", "error", err)
	}

	for _, fn := range subs {
		fn(n)
	}
	if i.alerter != nil {
		i.alerter.Alert(n)
	}

	return true, nil
}

// IngestAlarm is Ingest with the key derived from the payload.
func (i *Inbox) IngestAlarm(ctx context.Context, n Notification) (bool, error) {
	return i.Ingest(ctx, n.Key(), n)
}

// Dismiss marks one key as handled now and removes it from the visible list.
func (i *Inbox) Dismiss(ctx context.Context, key Key) error {
	if err := i.store.Dismissals().Put(ctx, i.memberID, key, i.now()); err != nil {
		return err
	}

	i.mu.Lock()
	kept := i.list[:0]
	for _, n := range i.list {
		if n.Key() != key {
			kept = append(kept, n)
		}
	}
	i.list = kept
	snapshot := i.snapshotLocked()
	i.mu.Unlock()

	return i.store.Notifications().Replace(ctx, i.memberID, snapshot)
}

// DismissAll marks every currently-held key in one batch and clears the
// visible list with a single persist.
func (i *Inbox) DismissAll(ctx context.Context) error {
	i.mu.Lock()
	keys := make([]Key, 0, len(i.list))
	for _, n := range i.list {
		keys = append(keys, n.Key())
	}
	i.list = nil
	i.mu.Unlock()

	if len(keys) > 0 {
		if err := i.store.Dismissals().PutBatch(ctx, i.memberID, keys, i.now()); err != nil {
			return err
		}
	}
	return i.store.Notifications().Replace(ctx, i.memberID, nil)
}

// Notifications returns a copy of the visible list, newest first.
func (i *Inbox) Notifications() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.snapshotLocked()
}

// HasUnread reports whether any notification is visible, for badge
// rendering.
func (i *Inbox) HasUnread() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.list) > 0
}

// Subscribe registers fn for every distinct alarm accepted after this call
// and returns a function that removes the subscription.
func (i *Inbox) Subscribe(fn func(Notification)) func() {
	i.mu.Lock()
	id := i.subSeq
	i.subSeq++
	i.subs[id] = fn
	i.mu.Unlock()

	return func() {
		i.mu.Lock()
		delete(i.subs, id)
		i.mu.Unlock()
	}
}

func (i *Inbox) snapshotLocked() []Notification {
	out := make([]Notification, len(i.list))
	copy(out, i.list)
	return out
}

func (i *Inbox) subsLocked() []func(Notification) {
	out := make([]func(Notification), 0, len(i.subs))
	for _, fn := range i.subs {
		out = append(out, fn)
	}
	return out
}
