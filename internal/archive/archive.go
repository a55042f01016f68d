// Package archive walks ZIP bundles of SPL labels. DailyMed bulk downloads
// nest one ZIP per label inside an outer ZIP; both levels are handled.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
)

// DefaultMaxEntryBytes bounds a single member when no limit is configured.
const DefaultMaxEntryBytes = 100 << 20

// Entry is one matching archive member, read fully into memory.
type Entry struct {
	// Name is the member path, prefixed by the enclosing archive names for
	// nested members ("outer.zip/inner.zip/label.xml").
	Name string
	Data []byte
}

type walker struct {
	exts     []string
	maxBytes int64
	maxDepth int
}

// Option configures Walk.
type Option func(*walker)

// WithExtensions replaces the matched member extensions (default ".xml").
func WithExtensions(exts ...string) Option {
	return func(w *walker) {
		w.exts = w.exts[:0]
		for _, e := range exts {
			w.exts = append(w.exts, strings.ToLower(e))
		}
	}
}

// WithMaxEntryBytes rejects members whose uncompressed size exceeds n.
func WithMaxEntryBytes(n int64) Option {
	return func(w *walker) {
		if n > 0 {
			w.maxBytes = n
		}
	}
}

// Walk calls fn for every matching member of the ZIP in r, descending into
// nested ZIP members. An error from fn stops the walk and is returned as is.
func Walk(r io.ReaderAt, size int64, fn func(Entry) error, opts ...Option) error {
	w := &walker{
		exts:     []string{".xml"},
		maxBytes: DefaultMaxEntryBytes,
		maxDepth: 4,
	}
	for _, o := range opts {
		o(w)
	}
	return w.walk(r, size, "", 0, fn)
}

// IsZip reports whether data starts with a ZIP local file header.
func IsZip(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], []byte("PK\x03\x04"))
}

func (w *walker) walk(r io.ReaderAt, size int64, prefix string, depth int, fn func(Entry) error) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		if prefix == "" {
			return fmt.Errorf("open archive: %w", err)
		}
		return fmt.Errorf("open archive %s: %w", strings.TrimSuffix(prefix, "/"), err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := prefix + f.Name
		ext := strings.ToLower(path.Ext(f.Name))

		nested := ext == ".zip"
		if !nested && !w.matches(ext) {
			continue
		}
		if nested && depth+1 >= w.maxDepth {
			return fmt.Errorf("archive %s: nesting deeper than %d", name, w.maxDepth)
		}

		data, err := w.read(f)
		if err != nil {
			return fmt.Errorf("read member %s: %w", name, err)
		}

		if nested {
			if err := w.walk(bytes.NewReader(data), int64(len(data)), name+"/", depth+1, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(Entry{Name: name, Data: data}); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) matches(ext string) bool {
	for _, e := range w.exts {
		if e == ext {
			return true
		}
	}
	return false
}

func (w *walker) read(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > uint64(w.maxBytes) {
		return nil, fmt.Errorf("size %d exceeds limit %d", f.UncompressedSize64, w.maxBytes)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// The header size can lie; cap the actual read too.
	data, err := io.ReadAll(io.LimitReader(rc, w.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > w.maxBytes {
		return nil, fmt.Errorf("size exceeds limit %d", w.maxBytes)
	}
	return data, nil
}
