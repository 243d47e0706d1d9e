// Package writer stores processed documents back into the record store. A
// pooled document is split into its units first; each unit is written under
// the record key held by its delimiter annotation.
package writer

import (
	"context"

	"github.com/oakenshield/TextImagerCassandraDriver/core/batch"
	"github.com/oakenshield/TextImagerCassandraDriver/core/errors"
	"github.com/oakenshield/TextImagerCassandraDriver/core/fastdoc"
	"github.com/oakenshield/TextImagerCassandraDriver/core/store"
	"github.com/oakenshield/TextImagerCassandraDriver/core/xmi"
	"github.com/oakenshield/TextImagerCassandraDriver/internal/logging"
)

// Writer writes processed documents to one collection.
type Writer struct {
	upd        store.Updater
	collection string
	opts       batch.Options
}

// New returns a Writer that stores units through upd.
func New(upd store.Updater, collection string, opts batch.Options) *Writer {
	return &Writer{upd: upd, collection: collection, opts: opts}
}

// Write decodes an XMI payload and writes each of its units. It returns
// the number of units written.
func (w *Writer) Write(ctx context.Context, payload []byte) (int, error) {
	doc, err := xmi.DecodeBytes(payload)
	if err != nil {
		return 0, err
	}
	return w.WriteDocument(ctx, doc)
}

// WriteDocument splits doc and writes every unit that carries exactly one
// delimiter. Other units are skipped with a warning. A rejected update
// aborts the write; units written before it stay written.
func (w *Writer) WriteDocument(ctx context.Context, doc *fastdoc.Document) (int, error) {
	units, err := batch.Split(doc, w.opts)
	if err != nil {
		return 0, err
	}

	written := 0
	for i, unit := range units {
		delims := unit.AnnotationsOf(w.opts.Delimiter.URI, w.opts.Delimiter.Name, false)
		if len(delims) != 1 {
			logging.WarnContext(ctx, "skipping unit without a single delimiter",
				"unit", i, "delimiters", len(delims), "delimiter_type", w.opts.Delimiter.String())
			continue
		}
		key := delims[0].Attribute(w.opts.Delimiter.Attr, "")
		if key == "" {
			logging.WarnContext(ctx, "skipping unit with empty key",
				"unit", i, "attribute", w.opts.Delimiter.Attr)
			continue
		}

		data, err := xmi.Encode(unit)
		if err != nil {
			return written, errors.Wrapf(err, "encode %s/%s", w.collection, key)
		}
		if err := w.upd.UpdatePayload(ctx, w.collection, key, data); err != nil {
			return written, err
		}
		written++
	}
	logging.DebugContext(ctx, "units written", "collection", w.collection, "units", len(units), "written", written)
	return written, nil
}
