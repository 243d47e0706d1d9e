// Package pipeline drives the read, process, write-back loop: batches are
// pulled from a cursor, handed to a Processor and written back through a
// writer.
package pipeline

import (
	"context"
	"time"

	"github.com/oakenshield/TextImagerCassandraDriver/core/cursor"
	"github.com/oakenshield/TextImagerCassandraDriver/core/errors"
	"github.com/oakenshield/TextImagerCassandraDriver/core/fastdoc"
	"github.com/oakenshield/TextImagerCassandraDriver/internal/logging"
)

// Processor annotates a document in place.
type Processor interface {
	Process(ctx context.Context, doc *fastdoc.Document) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, doc *fastdoc.Document) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, doc *fastdoc.Document) error {
	return f(ctx, doc)
}

// Identity leaves documents unchanged. Running it rewrites every record in
// canonical form.
var Identity Processor = ProcessorFunc(func(context.Context, *fastdoc.Document) error {
	return nil
})

// Chain runs processors in order, stopping at the first error.
func Chain(ps ...Processor) Processor {
	return ProcessorFunc(func(ctx context.Context, doc *fastdoc.Document) error {
		for _, p := range ps {
			if err := p.Process(ctx, doc); err != nil {
				return err
			}
		}
		return nil
	})
}

// Batches is the part of *cursor.Cursor the runner uses.
type Batches interface {
	HasNext() bool
	Next(ctx context.Context) (*cursor.Batch, error)
}

// DocumentWriter is the part of *writer.Writer the runner uses.
type DocumentWriter interface {
	WriteDocument(ctx context.Context, doc *fastdoc.Document) (int, error)
}

// Report summarises a run.
type Report struct {
	Batches  int
	Records  int
	Written  int
	Skipped  int
	Duration time.Duration
}

// Runner connects a cursor, a processor and a writer.
type Runner struct {
	Cursor    Batches
	Processor Processor
	Writer    DocumentWriter
}

// Run processes batches until the cursor is exhausted, the context is
// cancelled or a step fails. The report covers the batches completed before
// the failure.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	var rep Report

	proc := r.Processor
	if proc == nil {
		proc = Identity
	}

	for r.Cursor.HasNext() {
		if err := r.step(ctx, proc, &rep); err != nil {
			rep.Duration = time.Since(start)
			return rep, err
		}
	}
	rep.Duration = time.Since(start)
	logging.InfoContext(ctx, "pipeline finished",
		"batches", rep.Batches, "records", rep.Records, "written", rep.Written,
		"skipped", rep.Skipped, "duration", rep.Duration.String())
	return rep, nil
}

func (r *Runner) step(ctx context.Context, proc Processor, rep *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := r.Cursor.Next(ctx)
	if err != nil {
		return err
	}
	rep.Batches++
	rep.Records += len(b.Keys)

	if b.Payload == nil && b.Document == nil {
		logging.WarnContext(ctx, "batch has no payload", "keys", b.Keys)
		rep.Skipped += len(b.Keys)
		return nil
	}
	doc, err := b.Decode()
	if err != nil {
		return err
	}
	if err := proc.Process(ctx, doc); err != nil {
		return errors.Wrapf(err, "process batch starting at %s", b.Keys[0])
	}
	n, err := r.Writer.WriteDocument(ctx, doc)
	rep.Written += n
	return err
}
