// Package cursor iterates over the relevant records of a store.Source with
// one record of lookahead, optionally pooling consecutive records into one
// joined document, and commits delivered keys to a resume log.
package cursor

import (
	"context"
	"io"
	"time"

	"github.com/oakenshield/TextImagerCassandraDriver/core/batch"
	"github.com/oakenshield/TextImagerCassandraDriver/core/errors"
	"github.com/oakenshield/TextImagerCassandraDriver/core/fastdoc"
	"github.com/oakenshield/TextImagerCassandraDriver/core/resumelog"
	"github.com/oakenshield/TextImagerCassandraDriver/core/store"
	"github.com/oakenshield/TextImagerCassandraDriver/core/xmi"
	"github.com/oakenshield/TextImagerCassandraDriver/internal/logging"
)

// Options configures a Cursor.
type Options struct {
	// Collection is the logical collection to read. Required.
	Collection string
	State      State
	// SkipZeroLength drops records whose declared text length is zero.
	SkipZeroLength bool
	// PoolMaxBytes enables pooling when positive: consecutive records are
	// joined while their total encoded size stays within this budget.
	PoolMaxBytes int
	// Log, when set, filters out keys already delivered and records newly
	// delivered keys. The caller owns it.
	Log *resumelog.Log
	// CountFirst runs a counting pass before iterating so that Total is
	// known.
	CountFirst bool
	Batch      batch.Options
	PageSize   int
	// ProgressInterval throttles progress logging during the counting
	// pass. Zero means one second.
	ProgressInterval time.Duration
}

func (o Options) pooled() bool {
	return o.PoolMaxBytes > 0
}

// Stats counts what the cursor has done since the iteration pass began.
type Stats struct {
	// Read is the number of records read from the source.
	Read int
	// Delivered is the number of records handed out in batches.
	Delivered int
	// Batches is the number of batches handed out.
	Batches int
	// SkippedByLog is the number of relevant records skipped because the
	// resume log already holds their key.
	SkippedByLog int
}

// Batch is one unit of work. Without pooling it holds one record's raw
// payload; with pooling it holds the joined document and its encoding.
type Batch struct {
	Keys    []string
	Payload []byte
	// Document is the decoded payload, nil when the record has none.
	Document *fastdoc.Document
	Pooled   bool
}

// Decode returns the batch's document, decoding the payload on first use.
func (b *Batch) Decode() (*fastdoc.Document, error) {
	if b.Document != nil {
		return b.Document, nil
	}
	if b.Payload == nil {
		return nil, errors.NewNotFound("payload", firstKey(b.Keys))
	}
	doc, err := xmi.DecodeBytes(b.Payload)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", firstKey(b.Keys))
	}
	b.Document = doc
	return doc, nil
}

func firstKey(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// Cursor is a single-pass iterator over relevant records. It is not safe
// for concurrent use.
type Cursor struct {
	src  store.Source
	opts Options
	sc   store.Scanner

	next *store.Row

	stats    Stats
	total    int
	language string
}

// Open starts iterating src. When opts.CountFirst is set the source is
// scanned twice: once to count relevant batches and once to deliver them.
func Open(ctx context.Context, src store.Source, opts Options) (*Cursor, error) {
	if opts.Collection == "" {
		return nil, errors.NewValidation("collection", "must not be empty")
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = time.Second
	}
	c := &Cursor{src: src, opts: opts, total: -1}

	if opts.CountFirst {
		_, batches, err := c.count(ctx)
		if err != nil {
			return nil, err
		}
		c.total = batches
		c.stats = Stats{}
	}

	sc, err := src.Scan(ctx, store.ScanOptions{
		Collection:  opts.Collection,
		WithPayload: true,
		PageSize:    opts.PageSize,
	})
	if err != nil {
		return nil, err
	}
	c.sc = sc
	if err := c.advance(ctx); err != nil {
		sc.Close()
		return nil, err
	}
	return c, nil
}

// Count runs only the counting pass and returns the number of relevant
// records.
func Count(ctx context.Context, src store.Source, opts Options) (int, error) {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = time.Second
	}
	c := &Cursor{src: src, opts: opts, total: -1}
	records, _, err := c.count(ctx)
	return records, err
}

// count scans without payloads and simulates pooling to count batches.
func (c *Cursor) count(ctx context.Context) (records, batches int, err error) {
	sc, err := c.src.Scan(ctx, store.ScanOptions{
		Collection: c.opts.Collection,
		PageSize:   c.opts.PageSize,
	})
	if err != nil {
		return 0, 0, err
	}
	defer sc.Close()

	var pool *batch.Pool
	lastReport := time.Now()
	for sc.Next() {
		row := sc.Row()
		c.stats.Read++
		ok, err := c.relevant(ctx, row)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			records++
			switch {
			case !c.opts.pooled():
				batches++
			case pool == nil || !pool.Fits(row.XMILen):
				batches++
				pool = batch.NewPool(c.opts.PoolMaxBytes)
				pool.Add(nil, row.XMILen)
			default:
				pool.Add(nil, row.XMILen)
			}
		}
		if time.Since(lastReport) >= c.opts.ProgressInterval {
			logging.Progress(ctx, "count", c.stats.Read, -1, "relevant", records)
			lastReport = time.Now()
		}
	}
	if err := sc.Err(); err != nil {
		return 0, 0, err
	}
	logging.InfoContext(ctx, "count finished",
		"read", c.stats.Read, "relevant", records, "batches", batches, "skipped_by_log", c.stats.SkippedByLog)
	return records, batches, nil
}

func (c *Cursor) relevant(ctx context.Context, row store.Row) (bool, error) {
	if row.Collection != c.opts.Collection {
		return false, nil
	}
	if c.opts.SkipZeroLength && row.TextLen == 0 {
		return false, nil
	}
	if !c.opts.State.Matches(row.Processed) {
		return false, nil
	}
	if c.opts.Log != nil {
		seen, err := c.opts.Log.Contains(ctx, row.Key)
		if err != nil {
			return false, err
		}
		if seen {
			c.stats.SkippedByLog++
			return false, nil
		}
	}
	return true, nil
}

// advance fills the lookahead with the next relevant record, or clears it
// at the end of the source.
func (c *Cursor) advance(ctx context.Context) error {
	c.next = nil
	for c.sc.Next() {
		row := c.sc.Row()
		c.stats.Read++
		ok, err := c.relevant(ctx, row)
		if err != nil {
			return err
		}
		if ok {
			c.next = &row
			return nil
		}
	}
	return c.sc.Err()
}

// HasNext reports whether another batch is available. It does not advance.
func (c *Cursor) HasNext() bool {
	return c.next != nil
}

// Next returns the next batch, or io.EOF when the source is exhausted. The
// batch's keys are committed to the resume log before Next returns.
func (c *Cursor) Next(ctx context.Context) (*Batch, error) {
	if c.next == nil {
		return nil, io.EOF
	}

	var (
		b   *Batch
		err error
	)
	if c.opts.pooled() {
		b, err = c.nextPooled(ctx)
	} else {
		b, err = c.nextSingle(ctx)
	}
	if err != nil {
		return nil, err
	}

	if c.opts.Log != nil {
		if err := c.opts.Log.Commit(ctx, b.Keys); err != nil {
			return nil, err
		}
	}
	c.stats.Batches++
	c.stats.Delivered += len(b.Keys)
	logging.BatchDelivered(ctx, len(b.Keys), len(b.Payload), "pooled", b.Pooled)
	return b, nil
}

func (c *Cursor) nextSingle(ctx context.Context) (*Batch, error) {
	row := *c.next
	doc, err := decodeRow(row)
	if err != nil {
		return nil, err
	}
	b := &Batch{Keys: []string{row.Key}}
	if doc != nil {
		b.Payload = []byte(row.Payload)
		b.Document = doc
		if c.language == "" {
			c.language = doc.Language()
		}
	}
	if err := c.advance(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Cursor) nextPooled(ctx context.Context) (*Batch, error) {
	pool := batch.NewPool(c.opts.PoolMaxBytes)
	var keys []string

	first := *c.next
	if !pool.Fits(first.XMILen) {
		logging.WarnContext(ctx, "record exceeds pool budget, delivering it alone",
			"key", first.Key, "xmilen", first.XMILen, "budget", c.opts.PoolMaxBytes)
		doc, err := decodeRow(first)
		if err != nil {
			return nil, err
		}
		keys = append(keys, first.Key)
		if err := c.advance(ctx); err != nil {
			return nil, err
		}
		return c.joined(keys, nonNil(doc))
	}

	for c.next != nil && pool.Fits(c.next.XMILen) {
		row := *c.next
		doc, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		keys = append(keys, row.Key)
		pool.Add(doc, row.XMILen)
		if err := c.advance(ctx); err != nil {
			return nil, err
		}
	}
	return c.joined(keys, pool.Documents())
}

func nonNil(doc *fastdoc.Document) []*fastdoc.Document {
	if doc == nil {
		return nil
	}
	return []*fastdoc.Document{doc}
}

func (c *Cursor) joined(keys []string, docs []*fastdoc.Document) (*Batch, error) {
	b := &Batch{Keys: keys, Pooled: true}
	if len(docs) == 0 {
		return b, nil
	}
	doc, err := batch.Join(docs, c.opts.Batch)
	if err != nil {
		return nil, errors.Wrapf(err, "pool starting at %s", keys[0])
	}
	payload, err := xmi.Encode(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "encode pool starting at %s", keys[0])
	}
	b.Document = doc
	b.Payload = payload
	if c.language == "" {
		c.language = doc.Language()
	}
	return b, nil
}

// decodeRow decodes a row's payload; rows without one yield nil.
func decodeRow(row store.Row) (*fastdoc.Document, error) {
	if !row.HasPayload {
		return nil, nil
	}
	doc, err := xmi.DecodeBytes([]byte(row.Payload))
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s/%s", row.Collection, row.Key)
	}
	return doc, nil
}

// Stats returns the counters of the iteration pass.
func (c *Cursor) Stats() Stats {
	return c.stats
}

// Total returns the number of batches found by the counting pass, or -1
// when no counting pass was run.
func (c *Cursor) Total() int {
	return c.total
}

// Language returns the language of the first delivered payload, or "" if
// none is known yet.
func (c *Cursor) Language() string {
	return c.language
}

// Close releases the underlying scan. The resume log stays open.
func (c *Cursor) Close() error {
	if c.sc == nil {
		return nil
	}
	err := c.sc.Close()
	c.sc = nil
	c.next = nil
	return err
}
