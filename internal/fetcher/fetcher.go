// Package fetcher acquires the registration archive bytes, either from the
// DMR FTP drop directory or from a local file.
package fetcher

import (
	"context"
	"io"
	"time"
)

// Source is a readable byte stream of known total length. A Source is owned
// by exactly one reader at a time; the caller must close the stream returned
// by Open before the Source is reused.
type Source interface {
	// Name identifies the source for logging and reporting.
	Name() string

	// Open returns the stream and its total length in bytes (0 when unknown).
	Open(ctx context.Context) (io.ReadCloser, int64, error)
}

// FileSource is implemented by sources already materialized on disk. The
// ingest pipeline reads these in place instead of copying to a temp file.
type FileSource interface {
	Source

	// Path returns the on-disk location of the archive.
	Path() string
}

// Archive describes one candidate archive in the remote drop directory.
type Archive struct {
	Name    string
	Size    int64
	ModTime time.Time
}
