// Command textimager moves annotated text records between a SQLite record
// store and a batch NLP pipeline. It exports records as XMI files, imports
// XMI files as records, counts what a run would read and rewrites records
// through the processing pipeline.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/oakenshield/TextImagerCassandraDriver/core/batch"
	"github.com/oakenshield/TextImagerCassandraDriver/core/cursor"
	"github.com/oakenshield/TextImagerCassandraDriver/core/fastdoc"
	"github.com/oakenshield/TextImagerCassandraDriver/core/sqlite"
	"github.com/oakenshield/TextImagerCassandraDriver/core/store"
	"github.com/oakenshield/TextImagerCassandraDriver/core/writer"
	"github.com/oakenshield/TextImagerCassandraDriver/core/xmi"
	"github.com/oakenshield/TextImagerCassandraDriver/core/xml"
	"github.com/oakenshield/TextImagerCassandraDriver/internal/archive"
	"github.com/oakenshield/TextImagerCassandraDriver/internal/config"
	"github.com/oakenshield/TextImagerCassandraDriver/internal/export"
	"github.com/oakenshield/TextImagerCassandraDriver/internal/logging"
	"github.com/oakenshield/TextImagerCassandraDriver/internal/pipeline"
)

const version = "0.4.0"

// CLI defines the command-line interface for textimager.
type CLI struct {
	Config    kong.ConfigFlag `help:"YAML configuration file. Keys are flag names with '-' replaced by '_'."`
	LogLevel  string          `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Log level."`
	LogFormat string          `name:"log-format" default:"text" enum:"json,text" help:"Log format."`

	Exportfs  ExportfsCmd  `cmd:"" help:"Export records as numbered XMI files"`
	Countdocs CountdocsCmd `cmd:"" help:"Count the records a run would read"`
	Import    ImportCmd    `cmd:"" help:"Import XMI files as records"`
	Process   ProcessCmd   `cmd:"" help:"Rewrite records through the processing pipeline"`
	Inspect   InspectCmd   `cmd:"" help:"Summarize an XMI file"`
	Version   VersionCmd   `cmd:"" help:"Print version information"`
}

// ExportfsCmd writes the relevant records to a directory.
type ExportfsCmd struct {
	SourceFlags `embed:""`

	Dir         string              `required:"" type:"path" help:"Output directory."`
	Compression archive.Compression `default:"none" help:"Payload compression: none, xz or gzip."`
	Pretty      bool                `help:"Indent payloads, one element per line."`
	NoCount     bool                `name:"no-count" help:"Skip the counting pass."`
}

// Run executes the exportfs command.
func (c *ExportfsCmd) Run(ctx context.Context, out io.Writer) error {
	src, err := c.open(ctx, true)
	if err != nil {
		return err
	}
	defer src.Close()

	opts := src.opts
	opts.CountFirst = !c.NoCount
	cur, err := cursor.Open(ctx, src.store, opts)
	if err != nil {
		return err
	}
	defer cur.Close()
	if total := cur.Total(); total >= 0 {
		logging.InfoContext(ctx, "export starting", "dir", c.Dir, "batches", total)
	}

	exp, err := export.New(c.Dir, c.Collection, export.Options{
		Compression: c.Compression,
		Pretty:      c.Pretty,
		RunID:       logging.GetRunID(ctx),
	})
	if err != nil {
		return err
	}
	n, err := exp.Run(ctx, cur)
	if err != nil {
		return fmt.Errorf("export stopped after %d files: %w", n, err)
	}

	st := cur.Stats()
	fmt.Fprintf(out, "Exported %s records in %s files to %s (%s skipped by log)\n",
		humanize.Comma(int64(st.Delivered)), humanize.Comma(int64(n)), c.Dir,
		humanize.Comma(int64(st.SkippedByLog)))
	return nil
}

// CountdocsCmd prints the number of records a run would read.
type CountdocsCmd struct {
	SourceFlags `embed:""`
}

// Run executes the countdocs command.
func (c *CountdocsCmd) Run(ctx context.Context, out io.Writer) error {
	src, err := c.open(ctx, true)
	if err != nil {
		return err
	}
	defer src.Close()

	n, err := cursor.Count(ctx, src.store, src.opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, n)
	return nil
}

// ImportCmd loads XMI files into the record store. A file whose document
// holds delimiter annotations is split into one record per delimiter;
// any other file becomes one record keyed by its file name.
type ImportCmd struct {
	DB         string `name:"db" env:"TEXTIMAGER_DB" required:"" help:"SQLite database holding the records."`
	Collection string `short:"c" required:"" help:"Collection (dbname) to import into."`
	Dir        string `arg:"" type:"existingdir" help:"Directory of .xmi, .xmi.xz or .xmi.gz files."`
	Processed  bool   `help:"Mark imported records as processed."`
	Language   string `help:"Only import files whose document language matches."`

	TypeFlags `embed:""`
}

// Run executes the import command.
func (c *ImportCmd) Run(ctx context.Context, out io.Writer) error {
	opts, err := c.batchOptions()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, c.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	files, records, skipped := 0, 0, 0
	for _, e := range entries {
		if e.IsDir() || !archive.IsPayload(e.Name()) {
			continue
		}
		path := filepath.Join(c.Dir, e.Name())
		data, err := archive.ReadFile(path)
		if err != nil {
			return err
		}
		if c.Language != "" {
			if lang, _ := xmi.SniffLanguage(data); lang != c.Language {
				logging.InfoContext(ctx, "skipping file in another language", "file", path, "language", lang)
				skipped++
				continue
			}
		}
		n, err := c.importFile(ctx, st, path, data, opts)
		if err != nil {
			return err
		}
		files++
		records += n
	}
	fmt.Fprintf(out, "Imported %s records from %s files into %s\n",
		humanize.Comma(int64(records)), humanize.Comma(int64(files)), c.Collection)
	if skipped > 0 {
		fmt.Fprintf(out, "Skipped %s files not in language %s\n", humanize.Comma(int64(skipped)), c.Language)
	}
	return nil
}

func (c *ImportCmd) importFile(ctx context.Context, st *store.SQLStore, path string, data []byte, opts batch.Options) (int, error) {
	doc, err := xmi.DecodeBytes(data)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	units := []*fastdoc.Document{doc}
	if len(doc.AnnotationsOf(opts.Delimiter.URI, opts.Delimiter.Name, false)) == 0 {
		key := strings.TrimSuffix(archive.TrimExt(filepath.Base(path)), ".xmi")
		doc.AddAnnotation(opts.Delimiter.URI, opts.Delimiter.Name, 0, doc.Len()).SetAttribute(opts.Delimiter.Attr, key)
	} else if units, err = batch.Split(doc, opts); err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	n := 0
	for _, unit := range units {
		delims := unit.AnnotationsOf(opts.Delimiter.URI, opts.Delimiter.Name, false)
		key := ""
		if len(delims) == 1 {
			key = delims[0].Attribute(opts.Delimiter.Attr, "")
		}
		if key == "" {
			logging.WarnContext(ctx, "skipping unit without a record key", "file", path, "delimiters", len(delims))
			continue
		}
		payload, err := xmi.Encode(unit)
		if err != nil {
			return n, fmt.Errorf("%s: %w", path, err)
		}
		err = st.Put(ctx, store.Row{
			Collection: c.Collection,
			Key:        key,
			TextLen:    unit.Len(),
			XMILen:     len(payload),
			Processed:  c.Processed,
			Payload:    string(payload),
			HasPayload: true,
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ProcessCmd runs every relevant record through the pipeline and writes the
// result back.
type ProcessCmd struct {
	SourceFlags `embed:""`

	NoCount bool `name:"no-count" help:"Skip the counting pass."`
}

// Run executes the process command.
func (c *ProcessCmd) Run(ctx context.Context, out io.Writer) error {
	src, err := c.open(ctx, false)
	if err != nil {
		return err
	}
	defer src.Close()

	opts := src.opts
	opts.CountFirst = !c.NoCount
	cur, err := cursor.Open(ctx, src.store, opts)
	if err != nil {
		return err
	}
	defer cur.Close()

	r := &pipeline.Runner{
		Cursor:    cur,
		Processor: pipeline.Identity,
		Writer:    writer.New(src.store, c.Collection, opts.Batch),
	}
	rep, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("process stopped after %d batches: %w", rep.Batches, err)
	}
	fmt.Fprintf(out, "Processed %s records in %s batches, wrote %s (%s skipped) in %s\n",
		humanize.Comma(int64(rep.Records)), humanize.Comma(int64(rep.Batches)),
		humanize.Comma(int64(rep.Written)), humanize.Comma(int64(rep.Skipped)), rep.Duration.Round(time.Millisecond))
	return nil
}

// InspectCmd prints a summary of one XMI file.
type InspectCmd struct {
	File   string `arg:"" type:"existingfile" help:"XMI file, optionally .xz or .gz compressed."`
	Pretty bool   `help:"Print the payload indented instead of a summary."`
	XPath  string `name:"xpath" help:"Print the elements matching an XPath expression."`
}

// Run executes the inspect command.
func (c *InspectCmd) Run(out io.Writer) error {
	data, err := archive.ReadFile(c.File)
	if err != nil {
		return err
	}
	if res := xml.Validate(data); !res.Valid {
		e := res.Errors[0]
		return fmt.Errorf("%s: offset %d: %s", c.File, e.Offset, e.Message)
	}

	switch {
	case c.Pretty:
		formatted, err := xml.Format(data, xml.FormatOptions{})
		if err != nil {
			return err
		}
		_, err = out.Write(formatted)
		return err
	case c.XPath != "":
		doc, err := xml.Parse(data)
		if err != nil {
			return err
		}
		nodes, err := doc.XPath(c.XPath)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			fmt.Fprintln(out, describeNode(n))
		}
		return nil
	}

	sum, err := xml.Summarize(data)
	if err != nil {
		return err
	}
	if _, err := xmi.DecodeBytes(data); err != nil {
		return fmt.Errorf("%s: %w", c.File, err)
	}
	fmt.Fprintf(out, "File:        %s\n", c.File)
	fmt.Fprintf(out, "Size:        %s\n", humanize.IBytes(uint64(len(data))))
	fmt.Fprintf(out, "Language:    %s\n", sum.Language)
	fmt.Fprintf(out, "Text length: %s\n", humanize.Comma(int64(sum.TextLength)))
	fmt.Fprintf(out, "Annotations: %s\n", humanize.Comma(int64(sum.Annotations)))
	for _, name := range sum.TypeNames() {
		fmt.Fprintf(out, "  %-40s %d\n", name, sum.Types[name])
	}
	return nil
}

func describeNode(n *xml.Node) string {
	var b strings.Builder
	b.WriteString(n.QName())
	attrs := n.Attributes()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%q", k, attrs[k])
	}
	return b.String()
}

// VersionCmd prints version information.
type VersionCmd struct{}

// Run executes the version command.
func (c *VersionCmd) Run(out io.Writer) error {
	info := sqlite.GetInfo()
	fmt.Fprintf(out, "textimager version %s (sqlite: %s, %s)\n", version, info.Package, info.DriverType)
	return nil
}

func newParser(cli *CLI, out io.Writer) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("textimager"),
		kong.Description("Batch XMI export and import for annotated text records"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Configuration(config.Loader),
		kong.BindTo(out, (*io.Writer)(nil)),
		kong.Writers(out, os.Stderr),
	)
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var cli CLI
	parser, err := newParser(&cli, out)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cli.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cli.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)

	ctx = logging.WithRunID(ctx, uuid.NewString())
	kctx.BindTo(ctx, (*context.Context)(nil))
	return kctx.Run()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		logging.Error("textimager failed", "error", err)
		os.Exit(1)
	}
}
