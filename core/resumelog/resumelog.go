// Package resumelog records the keys of records that have already been
// delivered, so an interrupted run can resume without re-delivering them.
//
// The log is a SQLite file held open exclusively by one process for the
// duration of a run. It only grows; keys are never removed.
package resumelog

import (
	"context"
	"database/sql"

	"github.com/oakenshield/TextImagerCassandraDriver/core/errors"
	"github.com/oakenshield/TextImagerCassandraDriver/core/sqlite"
)

// ErrLocked is returned by Open when another process holds the log.
var ErrLocked = errors.New("resume log is locked by another process")

const schema = `
CREATE TABLE IF NOT EXISTS delivered (
	key TEXT PRIMARY KEY
) WITHOUT ROWID;
CREATE TABLE IF NOT EXISTS meta (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
) WITHOUT ROWID;
`

// Log is an open resume log.
type Log struct {
	path string
	db   *sql.DB
	conn *sql.Conn
}

// Open opens or creates the log at path and takes an exclusive lock on it.
// The lock is held until Close.
func Open(ctx context.Context, path string) (*Log, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open resume log", path, err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, errors.NewIO("open resume log", path, err)
	}
	l := &Log{path: path, db: db, conn: conn}

	if err := l.init(ctx); err != nil {
		l.Close()
		if sqlite.IsBusy(err) {
			return nil, errors.Wrap(ErrLocked, path)
		}
		return nil, errors.NewIO("open resume log", path, err)
	}
	return l, nil
}

func (l *Log) init(ctx context.Context) error {
	for _, p := range []string{"busy_timeout=0", "locking_mode=EXCLUSIVE", "journal_mode=DELETE", "synchronous=FULL"} {
		if _, err := l.conn.ExecContext(ctx, "PRAGMA "+p); err != nil {
			return err
		}
	}
	if _, err := l.conn.ExecContext(ctx, schema); err != nil {
		return err
	}
	// The first write takes the exclusive lock; locking_mode=EXCLUSIVE keeps it.
	_, err := l.conn.ExecContext(ctx,
		`INSERT INTO meta (name, value) VALUES ('opened_at', datetime('now'))
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`)
	return err
}

// Path returns the file path of the log.
func (l *Log) Path() string {
	return l.path
}

// Contains reports whether key has been committed.
func (l *Log) Contains(ctx context.Context, key string) (bool, error) {
	var one int
	err := l.conn.QueryRowContext(ctx, `SELECT 1 FROM delivered WHERE key = ?`, key).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, errors.NewIO("query resume log", l.path, err)
	}
	return true, nil
}

// Commit durably records keys in a single transaction. Keys already in the
// log are left as they are.
func (l *Log) Commit(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewIO("commit resume log", l.path, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO delivered (key) VALUES (?)`)
	if err != nil {
		tx.Rollback()
		return errors.NewIO("commit resume log", l.path, err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k); err != nil {
			tx.Rollback()
			return errors.NewIO("commit resume log", l.path, errors.Wrapf(err, "key %s", k))
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewIO("commit resume log", l.path, err)
	}
	return nil
}

// Len returns the number of committed keys.
func (l *Log) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivered`).Scan(&n); err != nil {
		return 0, errors.NewIO("count resume log", l.path, err)
	}
	return n, nil
}

// Close releases the lock and closes the file.
func (l *Log) Close() error {
	var first error
	if l.conn != nil {
		first = l.conn.Close()
		l.conn = nil
	}
	if l.db != nil {
		if err := l.db.Close(); err != nil && first == nil {
			first = err
		}
		l.db = nil
	}
	return first
}
