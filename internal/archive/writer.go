package archive

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/ulikunitz/xz"
)

// xzNewWriter is a variable so tests can inject writer failures.
var xzNewWriter = xz.NewWriter

// Compression names a payload compression.
type Compression string

const (
	None Compression = "none"
	XZ   Compression = "xz"
	Gzip Compression = "gzip"
)

// ParseCompression accepts "", "none", "xz", "gz" and "gzip".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "xz":
		return XZ, nil
	case "gz", "gzip":
		return Gzip, nil
	}
	return None, fmt.Errorf("unsupported compression: %s", s)
}

// FromPath infers the compression of a file from its suffix.
func FromPath(path string) Compression {
	switch {
	case strings.HasSuffix(path, ".xz"):
		return XZ
	case strings.HasSuffix(path, ".gz"):
		return Gzip
	}
	return None
}

// Ext returns the file suffix for c, empty for None.
func (c Compression) Ext() string {
	switch c {
	case XZ:
		return ".xz"
	case Gzip:
		return ".gz"
	}
	return ""
}

// UnmarshalText lets kong and viper decode compression names.
func (c *Compression) UnmarshalText(text []byte) error {
	parsed, err := ParseCompression(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w in a compressor. Closing the returned writer flushes the
// compressor but leaves w open.
func NewWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case XZ:
		xzw, err := xzNewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return xzw, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case None, "":
		return nopWriteCloser{w}, nil
	}
	return nil, fmt.Errorf("unsupported compression: %s", c)
}
