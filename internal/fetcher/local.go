package fetcher

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// NotFoundError reports a local archive path that does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("archive not found: %s", e.Path)
}

// LocalSource reads an archive from a path on disk.
type LocalSource struct {
	path string
	size int64
}

// NewLocal validates that path exists and returns a LocalSource for it.
func NewLocal(path string) (*LocalSource, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Path: path}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "local: stat %s", path)
	}
	if info.IsDir() {
		return nil, eris.Errorf("local: %s is a directory", path)
	}
	return &LocalSource{path: path, size: info.Size()}, nil
}

// Name returns the archive path.
func (s *LocalSource) Name() string { return s.path }

// Path returns the on-disk location of the archive.
func (s *LocalSource) Path() string { return s.path }

// Open opens the file for sequential reading.
func (s *LocalSource) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "local: open %s", s.path)
	}
	return f, s.size, nil
}
