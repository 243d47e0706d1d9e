package store

import (
	"context"
	"database/sql"

	"github.com/oakenshield/TextImagerCassandraDriver/core/errors"
	"github.com/oakenshield/TextImagerCassandraDriver/core/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS wikitextspannlp (
	dbname    TEXT    NOT NULL,
	raw       TEXT    NOT NULL,
	textlen   INTEGER NOT NULL DEFAULT 0,
	xmilen    INTEGER NOT NULL DEFAULT 0,
	processed INTEGER NOT NULL DEFAULT 0,
	xmi       TEXT,
	PRIMARY KEY (dbname, raw)
);
`

// SQLStore is a Source and Updater over a SQLite table laid out like the
// upstream wikitextspannlp table.
type SQLStore struct {
	db  *sql.DB
	dsn string
}

// Open opens the store at dsn and creates the table if it is missing.
func Open(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return nil, errors.NewSourceIO("open", dsn, err)
	}
	// One connection keeps pragmas in effect; scans hold no rows open
	// between pages so updates can interleave.
	db.SetMaxOpenConns(1)

	if err := sqlite.Pragma(ctx, db, "busy_timeout=5000", "journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.NewSourceIO("open", dsn, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.NewSourceIO("create schema", dsn, err)
	}
	return &SQLStore{db: db, dsn: dsn}, nil
}

// OpenReadOnly opens an existing store at path without write access. It does
// not create the table; writes through the returned store fail.
func OpenReadOnly(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return nil, errors.NewSourceIO("open", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := sqlite.Pragma(ctx, db, "busy_timeout=5000"); err != nil {
		db.Close()
		return nil, errors.NewSourceIO("open", path, err)
	}
	return &SQLStore{db: db, dsn: path}, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Put inserts or replaces a record.
func (s *SQLStore) Put(ctx context.Context, r Row) error {
	var payload sql.NullString
	if r.HasPayload {
		payload = sql.NullString{String: r.Payload, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wikitextspannlp (dbname, raw, textlen, xmilen, processed, xmi)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(dbname, raw) DO UPDATE SET
			textlen = excluded.textlen,
			xmilen = excluded.xmilen,
			processed = excluded.processed,
			xmi = excluded.xmi`,
		r.Collection, r.Key, r.TextLen, r.XMILen, r.Processed, payload)
	return errors.NewSourceIO("put", r.Collection+"/"+r.Key, err)
}

// Get returns one record with its payload.
func (s *SQLStore) Get(ctx context.Context, collection, key string) (Row, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT dbname, raw, textlen, xmilen, processed, xmi
		FROM wikitextspannlp WHERE dbname = ? AND raw = ?`, collection, key)
	r, err := scanRow(row, true)
	if err == sql.ErrNoRows {
		return Row{}, errors.NewNotFound("record", collection+"/"+key)
	}
	if err != nil {
		return Row{}, errors.NewSourceIO("get", collection+"/"+key, err)
	}
	return r, nil
}

// UpdatePayload implements Updater.
func (s *SQLStore) UpdatePayload(ctx context.Context, collection, key string, payload []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE wikitextspannlp SET xmi = ?, xmilen = ?, processed = 1
		WHERE dbname = ? AND raw = ?`,
		string(payload), len(payload), collection, key)
	if err != nil {
		return errors.NewSourceIO("update", collection+"/"+key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewSourceIO("update", collection+"/"+key, err)
	}
	if n == 0 {
		return errors.NewWriteConflict("update", collection, key)
	}
	return nil
}

// Scan implements Source with keyset pagination over (dbname, raw).
func (s *SQLStore) Scan(ctx context.Context, opts ScanOptions) (Scanner, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &sqlScanner{ctx: ctx, db: s.db, opts: opts}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(rs rowScanner, withPayload bool) (Row, error) {
	var (
		r       Row
		payload sql.NullString
	)
	dest := []any{&r.Collection, &r.Key, &r.TextLen, &r.XMILen, &r.Processed}
	if withPayload {
		dest = append(dest, &payload)
	}
	if err := rs.Scan(dest...); err != nil {
		return Row{}, err
	}
	r.Payload, r.HasPayload = payload.String, payload.Valid
	return r, nil
}

type sqlScanner struct {
	ctx  context.Context
	db   *sql.DB
	opts ScanOptions

	page    []Row
	idx     int
	started bool
	done    bool
	last    Row
	err     error
}

func (sc *sqlScanner) Next() bool {
	if sc.err != nil {
		return false
	}
	if sc.idx+1 < len(sc.page) {
		sc.idx++
		return true
	}
	if sc.done {
		return false
	}
	if err := sc.fetch(); err != nil {
		sc.err = err
		return false
	}
	if len(sc.page) == 0 {
		return false
	}
	sc.idx = 0
	return true
}

func (sc *sqlScanner) fetch() error {
	cols := "dbname, raw, textlen, xmilen, processed"
	if sc.opts.WithPayload {
		cols += ", xmi"
	}
	query := "SELECT " + cols + " FROM wikitextspannlp WHERE 1=1"
	var args []any
	if sc.opts.Collection != "" {
		query += " AND dbname = ?"
		args = append(args, sc.opts.Collection)
	}
	if sc.started {
		query += " AND (dbname > ? OR (dbname = ? AND raw > ?))"
		args = append(args, sc.last.Collection, sc.last.Collection, sc.last.Key)
	}
	query += " ORDER BY dbname, raw LIMIT ?"
	args = append(args, sc.opts.PageSize)

	rows, err := sc.db.QueryContext(sc.ctx, query, args...)
	if err != nil {
		return errors.NewSourceIO("scan", sc.last.Key, err)
	}
	defer rows.Close()

	sc.page = sc.page[:0]
	for rows.Next() {
		r, err := scanRow(rows, sc.opts.WithPayload)
		if err != nil {
			return errors.NewSourceIO("scan", sc.last.Key, err)
		}
		sc.page = append(sc.page, r)
	}
	if err := rows.Err(); err != nil {
		return errors.NewSourceIO("scan", sc.last.Key, err)
	}

	sc.started = true
	if len(sc.page) < sc.opts.PageSize {
		sc.done = true
	}
	if len(sc.page) > 0 {
		sc.last = sc.page[len(sc.page)-1]
	}
	return nil
}

func (sc *sqlScanner) Row() Row {
	if sc.idx < len(sc.page) {
		return sc.page[sc.idx]
	}
	return Row{}
}

func (sc *sqlScanner) Err() error {
	return sc.err
}

func (sc *sqlScanner) Close() error {
	sc.done = true
	sc.page = nil
	return nil
}
