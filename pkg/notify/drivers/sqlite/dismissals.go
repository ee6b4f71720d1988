package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/HaejunJang/airbng/pkg/notify"
)

type dismissalsRepo struct {
	db *sql.DB
}

func (r *dismissalsRepo) Get(ctx context.Context, memberID string, key notify.Key) (time.Time, error) {
	const query = `
		SELECT dismissed_at FROM dismissed_alarms
		WHERE member_id = ? AND alarm_id = ? AND message = ? AND alarm_type = ? AND related_id = ?`

	var at int64
	err := r.db.QueryRowContext(ctx, query,
		memberID, key.AlarmID, key.Message, key.Type, key.RelatedID,
	).Scan(&at)
	if err != nil {
		return time.Time{}, mapNotFound(err)
	}
	return time.Unix(0, at), nil
}

func (r *dismissalsRepo) Put(ctx context.Context, memberID string, key notify.Key, at time.Time) error {
	_, err := r.db.ExecContext(ctx, upsertDismissal,
		memberID, key.AlarmID, key.Message, key.Type, key.RelatedID, at.UnixNano())
	return err
}

func (r *dismissalsRepo) PutBatch(ctx context.Context, memberID string, keys []notify.Key, at time.Time) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertDismissal)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, key := range keys {
		if _, err := stmt.ExecContext(ctx,
			memberID, key.AlarmID, key.Message, key.Type, key.RelatedID, at.UnixNano()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *dismissalsRepo) DeleteBefore(ctx context.Context, memberID string, cutoff time.Time) error {
	const query = `
		DELETE FROM dismissed_alarms
		WHERE member_id = ? AND dismissed_at < ?`

	_, err := r.db.ExecContext(ctx, query, memberID, cutoff.UnixNano())
	return err
}

const upsertDismissal = `
	INSERT INTO dismissed_alarms (member_id, alarm_id, message, alarm_type, related_id, dismissed_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (member_id, alarm_id, message, alarm_type, related_id)
	DO UPDATE SET dismissed_at = excluded.dismissed_at`
