// Package archive enumerates the entries of a ZIP container and exposes each
// one as a decompressed stream, without materializing entries in memory.
package archive

import (
	"archive/zip"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
)

// Entry describes one file inside the archive. It is valid only for the
// iteration step that produced it.
type Entry struct {
	Index int
	Name  string
	Size  int64 // declared uncompressed size
	IsDir bool
}

// EntryError reports a failure confined to a single archive entry. Callers
// can skip the entry and continue with the rest of the archive.
type EntryError struct {
	Index int
	Name  string
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("archive entry %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// Walker provides sequential access to the entries of a ZIP archive.
type Walker struct {
	zr *zip.Reader
}

// NewWalker validates the central directory of the archive held by r and
// returns a Walker over its entries. Fails if the container is not a ZIP or
// the central directory is corrupt.
func NewWalker(r io.ReaderAt, size int64) (*Walker, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, eris.Wrap(err, "archive: read central directory")
	}
	return &Walker{zr: zr}, nil
}

// Len returns the number of entries in the archive.
func (w *Walker) Len() int { return len(w.zr.File) }

// Entry returns the metadata for entry i.
func (w *Walker) Entry(i int) Entry {
	f := w.zr.File[i]
	return Entry{
		Index: i,
		Name:  f.Name,
		Size:  int64(f.UncompressedSize64),
		IsDir: f.FileInfo().IsDir(),
	}
}

// Open returns the decompressed stream for entry i. Reading past the entry's
// logical end yields io.EOF even when the container has more bytes. Failures,
// at open time or mid-stream, surface as *EntryError.
func (w *Walker) Open(i int) (io.ReadCloser, error) {
	f := w.zr.File[i]
	rc, err := f.Open()
	if err != nil {
		return nil, &EntryError{Index: i, Name: f.Name, Err: err}
	}
	return &entryReader{rc: rc, index: i, name: f.Name}, nil
}

// entryReader tags mid-stream decompression failures with the entry they
// belong to, so the orchestrator can skip the entry and keep going.
type entryReader struct {
	rc    io.ReadCloser
	index int
	name  string
}

func (r *entryReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if err != nil && err != io.EOF {
		return n, &EntryError{Index: r.index, Name: r.name, Err: err}
	}
	return n, err
}

func (r *entryReader) Close() error { return r.rc.Close() }
