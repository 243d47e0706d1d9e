// Package archive reads and writes single compressed payload files. The
// compression is chosen by file suffix: .xz, .gz or none.
package archive

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
)

// Reader decompresses one payload file.
type Reader struct {
	io.Reader
	file         *os.File
	decompressor io.Closer
}

// Open opens path and picks the decompressor from its suffix.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}

	var reader io.Reader = f
	var decompressor io.Closer

	switch FromPath(path) {
	case XZ:
		xzr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		reader = xzr
	case Gzip:
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		reader = gzr
		decompressor = gzr
	}

	return &Reader{
		Reader:       reader,
		file:         f,
		decompressor: decompressor,
	}, nil
}

// Close closes the decompressor and the underlying file.
func (r *Reader) Close() error {
	var errs []error
	if r.decompressor != nil {
		if err := r.decompressor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ReadFile returns the decompressed content of path.
func ReadFile(path string) ([]byte, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// IsPayload reports whether name looks like an XMI payload file, compressed
// or not.
func IsPayload(name string) bool {
	return strings.HasSuffix(TrimExt(name), ".xmi")
}

// TrimExt strips a compression suffix from name.
func TrimExt(name string) string {
	if c := FromPath(name); c != None {
		return strings.TrimSuffix(name, c.Ext())
	}
	return name
}
