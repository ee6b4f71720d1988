package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/HaejunJang/airbng/pkg/notify"
	"github.com/HaejunJang/airbng/pkg/push"
)

type notificationsRepo struct {
	db *sql.DB
}

func (r *notificationsRepo) Replace(ctx context.Context, memberID string, list []notify.Notification) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM notifications WHERE member_id = ?`, memberID); err != nil {
		return err
	}

	const insert = `
		INSERT INTO notifications (member_id, position, alarm_id, message, alarm_type, related_id, receiver_id, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for pos, n := range list {
		if _, err := stmt.ExecContext(ctx,
			memberID, pos,
			n.Alarm.ID, n.Alarm.Message, n.Alarm.Type, n.Alarm.RelatedID, string(n.Alarm.Receiver),
			n.ReceivedAt.UnixNano()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *notificationsRepo) List(ctx context.Context, memberID string) ([]notify.Notification, error) {
	const query = `
		SELECT alarm_id, message, alarm_type, related_id, receiver_id, received_at
		FROM notifications
		WHERE member_id = ?
		ORDER BY position ASC`

	rows, err := r.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []notify.Notification
	for rows.Next() {
		var (
			a          push.Alarm
			receiver   string
			receivedAt int64
		)
		if err := rows.Scan(&a.ID, &a.Message, &a.Type, &a.RelatedID, &receiver, &receivedAt); err != nil {
			return nil, err
		}
		a.Receiver = push.MemberID(receiver)
		list = append(list, notify.Notification{
			Alarm:      a,
			ReceivedAt: time.Unix(0, receivedAt),
		})
	}
	return list, rows.Err()
}
