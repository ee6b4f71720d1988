package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/HaejunJang/airbng/pkg/notify"

	_ "modernc.org/sqlite"
)

// FileDSN builds the DSN for an on-disk inbox database. The _pragma form is
// what the modernc driver applies to every pooled connection: WAL so a second
// handle over the same file can read while another writes, and a busy
// timeout so contended writes wait instead of failing with SQLITE_BUSY.
func FileDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

type Store struct {
	db  *sql.DB
	dsn string
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:  db,
		dsn: dsn,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Dismissals() notify.Dismissals       { return &dismissalsRepo{db: s.db} }
func (s *Store) Notifications() notify.Notifications { return &notificationsRepo{db: s.db} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notify.ErrNotFound
	}
	return err
}
