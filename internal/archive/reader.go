// Package archive opens alignment sources for reading. It undoes xz and gzip
// compression, detected from magic bytes rather than file names, and walks
// tar bundles of alignment files.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/msakit/core/errors"
)

// Compression identifies the encoding of a source.
type Compression int

const (
	None Compression = iota
	Gzip
	XZ
)

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case XZ:
		return "xz"
	default:
		return "none"
	}
}

var (
	xzMagic   = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	gzipMagic = []byte{0x1F, 0x8B}
)

// Detect returns the compression whose magic number prefixes header.
func Detect(header []byte) Compression {
	switch {
	case bytes.HasPrefix(header, xzMagic):
		return XZ
	case bytes.HasPrefix(header, gzipMagic):
		return Gzip
	default:
		return None
	}
}

// tarMagicOffset is where the "ustar" marker sits in a tar header block.
const tarMagicOffset = 257

// Reader is an opened, decompressed source.
type Reader struct {
	io.Reader

	// Name is the path the source was opened from, "-" for stdin.
	Name        string
	Compression Compression

	// IsTar reports whether the decompressed stream is a tar archive.
	IsTar bool

	closers []io.Closer
}

// Stdin names standard input as a source path.
const Stdin = "-"

// Open opens path for reading. Stdin is read when path is "-". Compressed
// input is decompressed transparently.
func Open(path string) (*Reader, error) {
	if path == Stdin {
		return NewReader(os.Stdin, Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	r, err := NewReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closers = append(r.closers, f)
	return r, nil
}

// NewReader wraps r, decompressing it if it starts with a known magic
// number. Closing the returned Reader does not close r.
func NewReader(r io.Reader, name string) (*Reader, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF {
		return nil, errors.NewIO("read", name, err)
	}

	out := &Reader{Name: name, Compression: Detect(header)}
	var body io.Reader = br
	switch out.Compression {
	case XZ:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		body = xzr
	case Gzip:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		body = gzr
		out.closers = append(out.closers, gzr)
	}

	if out.Compression != None {
		br = bufio.NewReader(body)
	}
	block, _ := br.Peek(tarMagicOffset + 5)
	out.IsTar = len(block) == tarMagicOffset+5 &&
		string(block[tarMagicOffset:]) == "ustar"
	out.Reader = br
	return out, nil
}

// Close closes the decompressor and the underlying file, if any.
func (r *Reader) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}

// Visitor is a callback function for iterating archive entries.
// Return true to stop iteration, false to continue.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate calls visitor for every regular file of a tar source.
func (r *Reader) Iterate(visitor Visitor) error {
	if !r.IsTar {
		return errors.NewUnsupported("iterate", fmt.Sprintf("%s is not a tar archive", r.Name))
	}

	tr := tar.NewReader(r.Reader)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		stop, err := visitor(header, tr)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}
