package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/HaejunJang/airbng/pkg/notify"
	"github.com/HaejunJang/airbng/pkg/push"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := FileDSN(filepath.Join(t.TempDir(), "inbox.db"))
	s, err := NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestStore_SecondHandleOverSameFile(t *testing.T) {
	t.Parallel()

	dsn := FileDSN(filepath.Join(t.TempDir(), "inbox.db"))
	first, err := NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })
	require.NoError(t, first.ApplyMigrations())

	// A reload opens a fresh handle over the same file while the previous
	// one is still live; the busy timeout makes their writes queue instead
	// of erroring.
	second, err := NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	ctx := context.Background()
	key := notify.Key{AlarmID: 1, Message: "m", Type: "REMINDER", RelatedID: 1}
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, first.Dismissals().Put(ctx, "member-1", key, at))
	require.NoError(t, second.Dismissals().Put(ctx, "member-1", key, at.Add(time.Minute)))

	got, err := first.Dismissals().Get(ctx, "member-1", key)
	require.NoError(t, err)
	require.True(t, got.Equal(at.Add(time.Minute)))
}

func TestDismissals_PutAndGet(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	key := notify.Key{AlarmID: 1, Message: "reservation confirmed", Type: "RESERVATION", RelatedID: 42}
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	_, err := s.Dismissals().Get(ctx, "member-1", key)
	require.ErrorIs(t, err, notify.ErrNotFound)

	require.NoError(t, s.Dismissals().Put(ctx, "member-1", key, at))

	got, err := s.Dismissals().Get(ctx, "member-1", key)
	require.NoError(t, err)
	require.True(t, got.Equal(at))

	// Refresh moves the timestamp forward.
	later := at.Add(time.Hour)
	require.NoError(t, s.Dismissals().Put(ctx, "member-1", key, later))

	got, err = s.Dismissals().Get(ctx, "member-1", key)
	require.NoError(t, err)
	require.True(t, got.Equal(later))
}

func TestDismissals_ScopedByMember(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	key := notify.Key{AlarmID: 7, Message: "m", Type: "REMINDER", RelatedID: 1}

	require.NoError(t, s.Dismissals().Put(ctx, "member-1", key, time.Now()))

	_, err := s.Dismissals().Get(ctx, "member-2", key)
	require.ErrorIs(t, err, notify.ErrNotFound)
}

func TestDismissals_PutBatch(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	keys := []notify.Key{
		{AlarmID: 1, Message: "a", Type: "REMINDER", RelatedID: 1},
		{AlarmID: 2, Message: "b", Type: "REMINDER", RelatedID: 2},
		{AlarmID: 3, Message: "c", Type: "RESERVATION", RelatedID: 3},
	}
	require.NoError(t, s.Dismissals().PutBatch(ctx, "member-1", keys, at))

	for _, key := range keys {
		got, err := s.Dismissals().Get(ctx, "member-1", key)
		require.NoError(t, err)
		require.True(t, got.Equal(at))
	}

	require.NoError(t, s.Dismissals().PutBatch(ctx, "member-1", nil, at))
}

func TestDismissals_DeleteBefore(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	old := notify.Key{AlarmID: 1, Message: "old", Type: "REMINDER", RelatedID: 1}
	fresh := notify.Key{AlarmID: 2, Message: "fresh", Type: "REMINDER", RelatedID: 2}

	require.NoError(t, s.Dismissals().Put(ctx, "member-1", old, base.Add(-25*time.Hour)))
	require.NoError(t, s.Dismissals().Put(ctx, "member-1", fresh, base.Add(-time.Hour)))

	require.NoError(t, s.Dismissals().DeleteBefore(ctx, "member-1", base.Add(-24*time.Hour)))

	_, err := s.Dismissals().Get(ctx, "member-1", old)
	require.ErrorIs(t, err, notify.ErrNotFound)

	_, err = s.Dismissals().Get(ctx, "member-1", fresh)
	require.NoError(t, err)
}

func TestNotifications_ReplaceAndList(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	list := []notify.Notification{
		{
			Alarm:      push.Alarm{ID: 2, Message: "locker opened", Type: "LOCKER", RelatedID: 9, Receiver: "member-1"},
			ReceivedAt: at.Add(time.Minute),
		},
		{
			Alarm:      push.Alarm{ID: 1, Message: "reservation confirmed", Type: "RESERVATION", RelatedID: 9, Receiver: "member-1"},
			ReceivedAt: at,
		},
	}
	require.NoError(t, s.Notifications().Replace(ctx, "member-1", list))

	got, err := s.Notifications().List(ctx, "member-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, list[0].Alarm, got[0].Alarm)
	require.Equal(t, list[1].Alarm, got[1].Alarm)
	require.True(t, got[0].ReceivedAt.Equal(list[0].ReceivedAt))
	require.True(t, got[1].ReceivedAt.Equal(list[1].ReceivedAt))

	// Replace swaps the whole list.
	require.NoError(t, s.Notifications().Replace(ctx, "member-1", list[:1]))
	got, err = s.Notifications().List(ctx, "member-1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Clearing is a Replace with nil.
	require.NoError(t, s.Notifications().Replace(ctx, "member-1", nil))
	got, err = s.Notifications().List(ctx, "member-1")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestNotifications_ScopedByMember(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	list := []notify.Notification{{
		Alarm:      push.Alarm{ID: 1, Message: "m", Type: "REMINDER", RelatedID: 1, Receiver: "member-1"},
		ReceivedAt: time.Now(),
	}}
	require.NoError(t, s.Notifications().Replace(ctx, "member-1", list))

	got, err := s.Notifications().List(ctx, "member-2")
	require.NoError(t, err)
	require.Empty(t, got)
}
