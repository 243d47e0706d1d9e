// Package export writes cursor batches to a directory as numbered XMI
// files, 1.xmi, 2.xmi and so on, together with a manifest.json listing the
// record keys and digests of every file.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/oakenshield/TextImagerCassandraDriver/core/cursor"
	"github.com/oakenshield/TextImagerCassandraDriver/core/errors"
	"github.com/oakenshield/TextImagerCassandraDriver/core/xml"
	"github.com/oakenshield/TextImagerCassandraDriver/internal/archive"
	"github.com/oakenshield/TextImagerCassandraDriver/internal/logging"
)

// ManifestName is the manifest file written next to the payload files.
const ManifestName = "manifest.json"

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// Options configures an Exporter.
type Options struct {
	Compression archive.Compression
	// Pretty indents each payload, one element per line.
	Pretty bool
	// RunID identifies the export in the manifest. A random UUID is used
	// when empty.
	RunID string
}

// Digest holds the hashes of one written file.
type Digest struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// Entry describes one exported file.
type Entry struct {
	File string   `json:"file"`
	Keys []string `json:"keys"`
	Size int64    `json:"size"`
	Digest
}

// Manifest lists the files of one export run.
type Manifest struct {
	RunID       string    `json:"run_id"`
	Collection  string    `json:"collection,omitempty"`
	Created     time.Time `json:"created"`
	Compression string    `json:"compression"`
	Files       []Entry   `json:"files"`
}

// Batches is the part of *cursor.Cursor the exporter reads from.
type Batches interface {
	HasNext() bool
	Next(ctx context.Context) (*cursor.Batch, error)
}

// Exporter writes batches to a directory.
type Exporter struct {
	dir      string
	opts     Options
	manifest Manifest
}

// New prepares an export into dir, creating it if needed.
func New(dir, collection string, opts Options) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.NewIO("mkdir", dir, err)
	}
	if opts.Compression == "" {
		opts.Compression = archive.None
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return &Exporter{
		dir:  dir,
		opts: opts,
		manifest: Manifest{
			RunID:       opts.RunID,
			Collection:  collection,
			Created:     time.Now().UTC(),
			Compression: string(opts.Compression),
		},
	}, nil
}

// Manifest returns the manifest as built so far.
func (e *Exporter) Manifest() Manifest {
	return e.manifest
}

// Run exports every batch of src and then writes the manifest. It returns
// the number of files written.
func (e *Exporter) Run(ctx context.Context, src Batches) (int, error) {
	for src.HasNext() {
		if err := ctx.Err(); err != nil {
			return len(e.manifest.Files), err
		}
		b, err := src.Next(ctx)
		if err != nil {
			return len(e.manifest.Files), err
		}
		if _, err := e.Add(ctx, b); err != nil {
			return len(e.manifest.Files), err
		}
	}
	if err := e.WriteManifest(); err != nil {
		return len(e.manifest.Files), err
	}
	logging.InfoContext(ctx, "export finished",
		"dir", e.dir, "files", len(e.manifest.Files), "compression", e.manifest.Compression)
	return len(e.manifest.Files), nil
}

// Add writes one batch as the next numbered file. Batches without a payload
// are skipped and reported with ok false.
func (e *Exporter) Add(ctx context.Context, b *cursor.Batch) (ok bool, err error) {
	if b.Payload == nil {
		logging.WarnContext(ctx, "skipping batch without payload", "keys", b.Keys)
		return false, nil
	}

	data := b.Payload
	if e.opts.Pretty {
		data, err = xml.Format(data, xml.FormatOptions{})
		if err != nil {
			return false, errors.Wrapf(err, "format batch starting at %v", b.Keys)
		}
	}

	name := strconv.Itoa(len(e.manifest.Files)+1) + ".xmi" + e.opts.Compression.Ext()
	size, digest, err := e.writeFile(name, data)
	if err != nil {
		return false, err
	}
	e.manifest.Files = append(e.manifest.Files, Entry{
		File:   name,
		Keys:   append([]string(nil), b.Keys...),
		Size:   size,
		Digest: digest,
	})
	logging.DebugContext(ctx, "exported", "file", name, "keys", len(b.Keys), "size", size)
	return true, nil
}

// writeFile compresses data into dir/name through a temporary file that is
// synced and renamed into place. The digests cover the bytes on disk.
func (e *Exporter) writeFile(name string, data []byte) (int64, Digest, error) {
	path := filepath.Join(e.dir, name)
	tmp, err := os.CreateTemp(e.dir, "."+name+"-*")
	if err != nil {
		return 0, Digest{}, errors.NewIO("create", path, err)
	}
	tmpPath := tmp.Name()
	fail := func(op string, err error) (int64, Digest, error) {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, Digest{}, errors.NewIO(op, path, err)
	}

	sha := sha256.New()
	b3 := blake3.New()
	counter := &countingWriter{w: tmp}
	hashed := io.MultiWriter(counter, sha, b3)

	cw, err := archive.NewWriter(hashed, e.opts.Compression)
	if err != nil {
		return fail("compress", err)
	}
	if _, err := cw.Write(data); err != nil {
		return fail("write", err)
	}
	if err := cw.Close(); err != nil {
		return fail("compress", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, Digest{}, errors.NewIO("close", path, err)
	}
	if err := osRename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, Digest{}, errors.NewIO("rename", path, err)
	}

	return counter.n, Digest{
		SHA256: hex.EncodeToString(sha.Sum(nil)),
		BLAKE3: hex.EncodeToString(b3.Sum(nil)),
	}, nil
}

// WriteManifest writes manifest.json atomically.
func (e *Exporter) WriteManifest() error {
	data, err := json.MarshalIndent(e.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(e.dir, ManifestName)
	tmp, err := os.CreateTemp(e.dir, "."+ManifestName+"-*")
	if err != nil {
		return errors.NewIO("create", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIO("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("close", path, err)
	}
	if err := osRename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("rename", path, err)
	}
	return nil
}

// ReadManifest loads the manifest of an export directory.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("manifest", path)
		}
		return nil, errors.NewIO("read", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return &m, nil
}

// Verify recomputes the digests of a file and compares them with the entry.
func Verify(dir string, entry Entry) error {
	path := filepath.Join(dir, entry.File)
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.NewIO("read", path, err)
	}
	got := Sum(data)
	if got != entry.Digest || int64(len(data)) != entry.Size {
		return errors.NewValidation(entry.File, "digest mismatch")
	}
	return nil
}

// Sum returns the SHA-256 and BLAKE3 digests of data.
func Sum(data []byte) Digest {
	s := sha256.Sum256(data)
	b := blake3.Sum256(data)
	return Digest{
		SHA256: hex.EncodeToString(s[:]),
		BLAKE3: hex.EncodeToString(b[:]),
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
