package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/oakenshield/TextImagerCassandraDriver/core/batch"
	"github.com/oakenshield/TextImagerCassandraDriver/core/cursor"
	"github.com/oakenshield/TextImagerCassandraDriver/core/resumelog"
	"github.com/oakenshield/TextImagerCassandraDriver/core/store"
	"github.com/oakenshield/TextImagerCassandraDriver/core/typeref"
)

// ByteSize is a byte count given in humanized form, such as 512KiB or 2MB.
type ByteSize int

// UnmarshalText parses a humanized byte count.
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(string(text))
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", text, err)
	}
	*b = ByteSize(n)
	return nil
}

// TypeFlags selects the annotation types used for pooling.
type TypeFlags struct {
	OrdinalType   typeref.Ref `name:"ordinal-type" default:"wikidragon:HtmlTag@order" help:"Ordinal-bearing annotation type and attribute, renumbered across pooled records."`
	DelimiterType typeref.Ref `name:"delimiter-type" default:"wikidragon:WikiTextSpan@uid" help:"Per-record delimiter annotation type and its record key attribute."`
}

func (t TypeFlags) batchOptions() (batch.Options, error) {
	if t.DelimiterType.Attr == "" {
		return batch.Options{}, fmt.Errorf("--delimiter-type needs a key attribute, e.g. %s", typeref.DelimiterRef)
	}
	return batch.Options{Ordinal: t.OrdinalType, Delimiter: t.DelimiterType}, nil
}

// SourceFlags are the flags shared by every command that reads records.
type SourceFlags struct {
	DB         string       `name:"db" env:"TEXTIMAGER_DB" required:"" help:"SQLite database holding the records."`
	Collection string       `short:"c" required:"" help:"Collection (dbname) to read."`
	State      cursor.State `default:"all" help:"Records to read: all, tagged or untagged."`
	SkipZero   bool         `name:"skip-zero" short:"z" help:"Skip records whose text length is zero."`
	PoolSize   ByteSize     `name:"pool-size" help:"Pool consecutive records into batches of at most this size, e.g. 1MiB."`
	PKB        int          `name:"pkb" help:"Pool size in kilobytes. Overrides --pool-size."`
	Log        string       `name:"log" type:"path" help:"Resume log. Keys delivered by earlier runs are skipped."`
	PageSize   int          `name:"page-size" default:"500" help:"Records fetched per query."`

	TypeFlags `embed:""`
}

func (s SourceFlags) poolBytes() int {
	if s.PKB > 0 {
		return s.PKB * 1024
	}
	return int(s.PoolSize)
}

// source holds what a command opened from SourceFlags.
type source struct {
	store *store.SQLStore
	log   *resumelog.Log
	opts  cursor.Options
}

// open opens the record store and resume log. Commands that never write
// records pass readOnly so the store must already exist.
func (s SourceFlags) open(ctx context.Context, readOnly bool) (*source, error) {
	bopts, err := s.batchOptions()
	if err != nil {
		return nil, err
	}

	var st *store.SQLStore
	if readOnly {
		st, err = store.OpenReadOnly(ctx, s.DB)
	} else {
		st, err = store.Open(ctx, s.DB)
	}
	if err != nil {
		return nil, err
	}
	src := &source{
		store: st,
		opts: cursor.Options{
			Collection:     s.Collection,
			State:          s.State,
			SkipZeroLength: s.SkipZero,
			PoolMaxBytes:   s.poolBytes(),
			Batch:          bopts,
			PageSize:       s.PageSize,
		},
	}
	if s.Log != "" {
		log, err := resumelog.Open(ctx, s.Log)
		if err != nil {
			st.Close()
			return nil, err
		}
		src.log = log
		src.opts.Log = log
	}
	return src, nil
}

func (s *source) Close() error {
	var first error
	if s.log != nil {
		first = s.log.Close()
	}
	if err := s.store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
