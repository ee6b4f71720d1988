package notify_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/HaejunJang/airbng/pkg/notify"
	"github.com/HaejunJang/airbng/pkg/notify/drivers/sqlite"
	"github.com/HaejunJang/airbng/pkg/push"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) notify.Store {
	t.Helper()

	s, err := sqlite.NewStore(sqlite.FileDSN(filepath.Join(t.TempDir(), "inbox.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func reminderAt(id int64, msg string, at time.Time) notify.Notification {
	return notify.Notification{
		Alarm:      push.Alarm{ID: id, Message: msg, Type: "REMINDER", RelatedID: 7, Receiver: "member-1"},
		ReceivedAt: at,
	}
}

func TestInbox_IngestDeduplicatesRedelivery(t *testing.T) {
	t.Parallel()

	var alerts int
	inbox := notify.NewInbox(notify.InboxConfig{
		Store:    newTestStore(t),
		MemberID: "member-1",
		Alerter:  notify.AlerterFunc(func(notify.Notification) { alerts++ }),
	})
	ctx := context.Background()

	n := reminderAt(1, "pickup in 30 minutes", time.Now())

	accepted, err := inbox.IngestAlarm(ctx, n)
	require.NoError(t, err)
	require.True(t, accepted)

	// The channel reconnected and replayed the same alarm.
	accepted, err = inbox.IngestAlarm(ctx, n)
	require.NoError(t, err)
	require.False(t, accepted)

	require.Len(t, inbox.Notifications(), 1)
	require.Equal(t, 1, alerts)
}

func TestInbox_DistinctKeysAreSeparateAlarms(t *testing.T) {
	t.Parallel()

	inbox := notify.NewInbox(notify.InboxConfig{Store: newTestStore(t), MemberID: "member-1"})
	ctx := context.Background()

	a := reminderAt(1, "pickup in 30 minutes", time.Now())
	b := a
	b.Alarm.Message = "pickup in 10 minutes"

	accepted, err := inbox.IngestAlarm(ctx, a)
	require.NoError(t, err)
	require.True(t, accepted)

	// Same id, different message: a different alarm.
	accepted, err = inbox.IngestAlarm(ctx, b)
	require.NoError(t, err)
	require.True(t, accepted)

	require.Len(t, inbox.Notifications(), 2)
}

func TestInbox_SuppressionExpiresAfterRetention(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	inbox := notify.NewInbox(notify.InboxConfig{Store: newTestStore(t), MemberID: "member-1"})
	notify.SetClock(inbox, func() time.Time { return now })
	ctx := context.Background()

	n := reminderAt(1, "review your reservation", now)
	accepted, err := inbox.IngestAlarm(ctx, n)
	require.NoError(t, err)
	require.True(t, accepted)

	require.NoError(t, inbox.Dismiss(ctx, n.Key()))
	require.Empty(t, inbox.Notifications())

	// Inside the window the redelivery stays suppressed.
	now = now.Add(23 * time.Hour)
	accepted, err = inbox.IngestAlarm(ctx, reminderAt(1, "review your reservation", now))
	require.NoError(t, err)
	require.False(t, accepted)

	// Past the window the same key is a fresh alarm again.
	now = now.Add(2 * time.Hour)
	accepted, err = inbox.IngestAlarm(ctx, reminderAt(1, "review your reservation", now))
	require.NoError(t, err)
	require.True(t, accepted)
	require.True(t, inbox.HasUnread())
}

func TestInbox_DismissRemovesOnlyThatKey(t *testing.T) {
	t.Parallel()

	inbox := notify.NewInbox(notify.InboxConfig{Store: newTestStore(t), MemberID: "member-1"})
	ctx := context.Background()

	a := reminderAt(1, "a", time.Now())
	b := reminderAt(2, "b", time.Now())
	_, err := inbox.IngestAlarm(ctx, a)
	require.NoError(t, err)
	_, err = inbox.IngestAlarm(ctx, b)
	require.NoError(t, err)

	require.NoError(t, inbox.Dismiss(ctx, a.Key()))

	got := inbox.Notifications()
	require.Len(t, got, 1)
	require.Equal(t, b.Alarm.ID, got[0].Alarm.ID)
}

func TestInbox_DismissAllSurvivesRestore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	inbox := notify.NewInbox(notify.InboxConfig{Store: store, MemberID: "member-1"})
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		_, err := inbox.IngestAlarm(ctx, reminderAt(id, "m", time.Now()))
		require.NoError(t, err)
	}
	require.NoError(t, inbox.DismissAll(ctx))
	require.False(t, inbox.HasUnread())

	// A new session over the same store sees the cleared state.
	reloaded := notify.NewInbox(notify.InboxConfig{Store: store, MemberID: "member-1"})
	require.NoError(t, reloaded.Restore(ctx))
	require.Empty(t, reloaded.Notifications())
}

func TestInbox_RestoreKeepsUndismissedAlarms(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	inbox := notify.NewInbox(notify.InboxConfig{Store: store, MemberID: "member-1"})

	// The caller stamps receipt a moment before Ingest runs, as a transport
	// callback naturally does.
	accepted, err := inbox.IngestAlarm(ctx, reminderAt(1, "pickup soon", time.Now().Add(-2*time.Second)))
	require.NoError(t, err)
	require.True(t, accepted)

	// A never-dismissed alarm must survive a reload.
	reloaded := notify.NewInbox(notify.InboxConfig{Store: store, MemberID: "member-1"})
	require.NoError(t, reloaded.Restore(ctx))
	require.Len(t, reloaded.Notifications(), 1)
}

func TestInbox_RestoreDropsEntriesDismissedElsewhere(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	kept := reminderAt(1, "kept", at)
	dismissed := reminderAt(2, "dismissed", at)
	require.NoError(t, store.Notifications().Replace(ctx, "member-1", []notify.Notification{dismissed, kept}))
	require.NoError(t, store.Dismissals().Put(ctx, "member-1", kept.Key(), at))
	// Dismissed after delivery, e.g. from another device.
	require.NoError(t, store.Dismissals().Put(ctx, "member-1", dismissed.Key(), at.Add(time.Minute)))

	inbox := notify.NewInbox(notify.InboxConfig{Store: store, MemberID: "member-1"})
	notify.SetClock(inbox, func() time.Time { return at.Add(2 * time.Minute) })
	require.NoError(t, inbox.Restore(ctx))

	got := inbox.Notifications()
	require.Len(t, got, 1)
	require.Equal(t, kept.Alarm.ID, got[0].Alarm.ID)
}

func TestInbox_ListIsBounded(t *testing.T) {
	t.Parallel()

	inbox := notify.NewInbox(notify.InboxConfig{Store: newTestStore(t), MemberID: "member-1", Limit: 3})
	ctx := context.Background()

	for id := int64(1); id <= 5; id++ {
		_, err := inbox.IngestAlarm(ctx, reminderAt(id, "m", time.Now()))
		require.NoError(t, err)
	}

	got := inbox.Notifications()
	require.Len(t, got, 3)
	// Newest first, oldest evicted.
	require.Equal(t, int64(5), got[0].Alarm.ID)
	require.Equal(t, int64(3), got[2].Alarm.ID)
}

func TestInbox_SubscribeAndUnsubscribe(t *testing.T) {
	t.Parallel()

	inbox := notify.NewInbox(notify.InboxConfig{Store: newTestStore(t), MemberID: "member-1"})
	ctx := context.Background()

	var seen []int64
	remove := inbox.Subscribe(func(n notify.Notification) { seen = append(seen, n.Alarm.ID) })

	_, err := inbox.IngestAlarm(ctx, reminderAt(1, "a", time.Now()))
	require.NoError(t, err)

	remove()

	_, err = inbox.IngestAlarm(ctx, reminderAt(2, "b", time.Now()))
	require.NoError(t, err)

	require.Equal(t, []int64{1}, seen)
}
