// Package store defines the record source the cursor reads from and the
// updater the writer stores processed payloads through, together with a
// SQLite implementation of both.
package store

import (
	"context"
)

// Row is one record of the upstream table.
type Row struct {
	Collection string
	Key        string
	// TextLen is the declared length of the record's text; zero-length
	// records are skipped unless explicitly allowed.
	TextLen int
	// XMILen is the byte length of the encoded payload, used for pooling.
	XMILen     int
	Processed  bool
	Payload    string
	HasPayload bool
}

// ScanOptions restricts a scan.
type ScanOptions struct {
	// Collection limits the scan to one collection when non-empty.
	Collection string
	// WithPayload loads payloads; counting scans leave it off.
	WithPayload bool
	// PageSize is the number of rows fetched per round trip. Zero selects
	// DefaultPageSize.
	PageSize int
}

// DefaultPageSize is the page size used when ScanOptions.PageSize is zero.
const DefaultPageSize = 500

// Scanner iterates over rows in the source's natural order.
type Scanner interface {
	// Next advances to the next row. It returns false at the end of the
	// scan or on error; Err tells the two apart.
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// Source is a paginated record source.
type Source interface {
	Scan(ctx context.Context, opts ScanOptions) (Scanner, error)
}

// Updater stores processed payloads back under their record key.
type Updater interface {
	// UpdatePayload replaces the payload of an existing record and marks it
	// processed. It fails with *errors.WriteConflictError when the record
	// does not exist.
	UpdatePayload(ctx context.Context, collection, key string, payload []byte) error
}
