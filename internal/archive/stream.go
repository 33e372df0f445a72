// Package archive streams document files from and to disk. Files named
// *.xz or *.gz are decompressed on read and compressed on write; writes
// become visible only when committed.
package archive

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// Compression is the codec implied by a file name.
type Compression int

// Codecs.
const (
	None Compression = iota
	XZ
	Gzip
)

// CompressionOf returns the codec of a file name.
func CompressionOf(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xz":
		return XZ
	case ".gz":
		return Gzip
	}
	return None
}

// TrimCompression removes a ".xz" or ".gz" suffix.
func TrimCompression(path string) string {
	if CompressionOf(path) == None {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// TooLargeError is returned by ReadFile when the decompressed content exceeds
// the limit.
type TooLargeError struct {
	Path  string
	Limit int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("%s: content exceeds %d bytes", e.Path, e.Limit)
}

// Reader reads a possibly compressed file.
type Reader struct {
	io.Reader
	file         *os.File
	decompressor io.Closer
}

// NewReader opens path, decompressing by extension.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	var reader io.Reader = bufio.NewReader(f)
	var decompressor io.Closer

	switch CompressionOf(path) {
	case XZ:
		xzr, err := xz.NewReader(reader)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		reader = xzr
	case Gzip:
		gzr, err := gzip.NewReader(reader)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		reader = gzr
		decompressor = gzr
	}

	return &Reader{Reader: reader, file: f, decompressor: decompressor}, nil
}

// Close closes the file and any decompressor.
func (r *Reader) Close() error {
	var first error
	if r.decompressor != nil {
		first = r.decompressor.Close()
	}
	if err := r.file.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// ReadFile reads at most limit decompressed bytes of path. Content over the
// limit is a *TooLargeError; the rest of the file is not read.
func ReadFile(path string, limit int) ([]byte, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > limit {
		return nil, &TooLargeError{Path: path, Limit: limit}
	}
	return data, nil
}

// Writer writes a file atomically: content goes to a temporary file in the
// target directory and replaces the target on Commit.
type Writer struct {
	path       string
	tmp        *os.File
	buf        *bufio.Writer
	compressor io.WriteCloser
	out        io.Writer
	done       bool
}

// NewWriter starts writing path, compressing by extension. Parent
// directories are created.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temporary file: %w", err)
	}

	w := &Writer{path: path, tmp: tmp, buf: bufio.NewWriter(tmp)}
	w.out = w.buf
	switch CompressionOf(path) {
	case XZ:
		xzw, err := xz.NewWriter(w.buf)
		if err != nil {
			w.Abort()
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		w.compressor, w.out = xzw, xzw
	case Gzip:
		gzw := gzip.NewWriter(w.buf)
		w.compressor, w.out = gzw, gzw
	}
	return w, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.out.Write(p)
}

// Commit flushes the content and renames it over the target.
func (w *Writer) Commit() error {
	if w.done {
		return fmt.Errorf("%s: writer already closed", w.path)
	}
	err := w.finish()
	if err == nil {
		err = os.Chmod(w.tmp.Name(), 0644)
	}
	if err == nil {
		err = os.Rename(w.tmp.Name(), w.path)
	}
	if err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	return nil
}

func (w *Writer) finish() error {
	w.done = true
	if w.compressor != nil {
		if err := w.compressor.Close(); err != nil {
			w.tmp.Close()
			return err
		}
	}
	if err := w.buf.Flush(); err != nil {
		w.tmp.Close()
		return err
	}
	if err := w.tmp.Sync(); err != nil {
		w.tmp.Close()
		return err
	}
	return w.tmp.Close()
}

// Abort discards the content. It is a no-op after Commit.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}

// WriteFile writes data to path atomically.
func WriteFile(path string, data []byte) error {
	w, err := NewWriter(path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Abort()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return w.Commit()
}
