// Package ingest wires the extraction pipeline: byte source, archive walk,
// per-entry scan, and the plate store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dmr-cli/internal/archive"
	"github.com/sells-group/dmr-cli/internal/fetcher"
	"github.com/sells-group/dmr-cli/internal/plates"
	"github.com/sells-group/dmr-cli/internal/progress"
	"github.com/sells-group/dmr-cli/internal/store"
)

// Options configures an ingest run.
type Options struct {
	Scan           plates.ScanOptions
	TempDir        string // working dir for downloaded archives; "" = OS default
	ProgressStep   int    // minimum percent between download progress lines
	MilestoneEvery int    // report running count every N insertions
	PreviewSize    int    // plates shown in the final report
	KeepTemp       bool   // keep the downloaded archive after the run
	Sink           *store.SQLite
	Out            io.Writer // console sink for progress and the report
}

// Result summarizes a completed run.
type Result struct {
	Source        string
	Inserted      int // insertions, duplicates included
	Plates        int // distinct plates in the store
	EntryWarnings int // entries skipped after a recoverable failure
}

// Ingestor runs the pipeline against a single byte source. Entries are
// processed strictly one at a time; the store is mutated only from the
// calling goroutine.
type Ingestor struct {
	store   *plates.Store
	scanner *plates.Scanner
	opts    Options
}

// New creates an Ingestor that inserts into st.
func New(st *plates.Store, opts Options) *Ingestor {
	if opts.MilestoneEvery <= 0 {
		opts.MilestoneEvery = 1000
	}
	if opts.PreviewSize <= 0 {
		opts.PreviewSize = 10
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Ingestor{
		store:   st,
		scanner: plates.NewScanner(opts.Scan),
		opts:    opts,
	}
}

// Run materializes the source, walks the archive, and scans every file entry
// into the store. A corrupt entry or malformed document is logged and
// skipped; records extracted from it before the failure are retained. All
// other errors abort the run.
func (g *Ingestor) Run(ctx context.Context, src fetcher.Source) (*Result, error) {
	log := zap.L().With(zap.String("component", "ingest"))
	result := &Result{Source: src.Name()}

	path, cleanup, err := g.materialize(ctx, src)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	var runID string
	if g.opts.Sink != nil {
		runID = g.startRun(ctx, src.Name())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open archive %s", path)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return nil, eris.Wrap(err, "ingest: stat archive")
	}

	walker, err := archive.NewWalker(f, info.Size())
	if err != nil {
		return nil, err
	}

	log.Info("archive opened", zap.String("path", path), zap.Int("entries", walker.Len()))

	for i := 0; i < walker.Len(); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		entry := walker.Entry(i)
		if entry.IsDir {
			continue
		}

		fmt.Fprintf(g.opts.Out, "Processing: %s (%.2f KB)\n", entry.Name, float64(entry.Size)/1024.0)

		if err := g.scanEntry(walker, entry, result); err != nil {
			if recoverable(err) {
				log.Warn("skipping entry",
					zap.String("entry", entry.Name),
					zap.Error(err),
				)
				result.EntryWarnings++
				continue
			}
			return nil, err
		}
	}

	result.Plates = g.store.Len()

	if g.opts.Sink != nil {
		g.persist(ctx, runID, result)
	}

	log.Info("ingest complete",
		zap.Int("inserted", result.Inserted),
		zap.Int("plates", result.Plates),
		zap.Int("entry_warnings", result.EntryWarnings),
	)

	return result, nil
}

// scanEntry streams one archive entry through the scanner into the store.
func (g *Ingestor) scanEntry(w *archive.Walker, entry archive.Entry, result *Result) error {
	rc, err := w.Open(entry.Index)
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck

	return g.scanner.Scan(rc, entry.Name, func(r plates.Record) {
		g.store.Insert(r)
		result.Inserted++
		if result.Inserted%g.opts.MilestoneEvery == 0 {
			fmt.Fprintf(g.opts.Out, "  processed %d plates...\n", result.Inserted)
		}
	})
}

// recoverable reports whether err is confined to a single entry.
func recoverable(err error) bool {
	var entryErr *archive.EntryError
	var scanErr *plates.ScanError
	return errors.As(err, &entryErr) || errors.As(err, &scanErr)
}

// materialize returns a path to a seekable copy of the source. Local sources
// are read in place; remote ones are downloaded to a temp file with progress
// reporting. cleanup is non-nil when a temp file was created.
func (g *Ingestor) materialize(ctx context.Context, src fetcher.Source) (string, func(), error) {
	if fs, ok := src.(fetcher.FileSource); ok {
		fmt.Fprintf(g.opts.Out, "Using local archive: %s\n", fs.Path())
		return fs.Path(), nil, nil
	}

	rc, total, err := src.Open(ctx)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(g.opts.TempDir, "dmr-*.zip")
	if err != nil {
		return "", nil, eris.Wrap(err, "ingest: create temp file")
	}

	pr := progress.NewReader(rc, total, g.opts.ProgressStep, func(pct int, cur, tot int64) {
		fmt.Fprintf(g.opts.Out, "\rDownloading: %d%% (%d / %d bytes)", pct, cur, tot)
	})

	written, err := io.Copy(tmp, pr)
	if total > 0 {
		fmt.Fprintln(g.opts.Out)
	}
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = eris.Wrap(cerr, "ingest: close temp file")
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", nil, eris.Wrapf(err, "ingest: download %s", src.Name())
	}

	fmt.Fprintf(g.opts.Out, "Downloaded %d bytes\n", written)

	cleanup := func() { os.Remove(tmp.Name()) }
	if g.opts.KeepTemp {
		zap.L().Info("keeping downloaded archive", zap.String("path", tmp.Name()))
		cleanup = nil
	}

	return tmp.Name(), cleanup, nil
}

// startRun opens the persistence run record. Sink failures never fail the
// run; the in-memory index is authoritative.
func (g *Ingestor) startRun(ctx context.Context, source string) string {
	if err := g.opts.Sink.Migrate(ctx); err != nil {
		zap.L().Warn("sink migrate failed, skipping persistence", zap.Error(err))
		g.opts.Sink = nil
		return ""
	}
	runID, err := g.opts.Sink.StartRun(ctx, source)
	if err != nil {
		zap.L().Warn("sink start run failed, skipping persistence", zap.Error(err))
		g.opts.Sink = nil
		return ""
	}
	return runID
}

// persist writes the store contents and run outcome to the sink.
func (g *Ingestor) persist(ctx context.Context, runID string, result *Result) {
	written, err := g.opts.Sink.UpsertPlates(ctx, g.store.Records())
	if err != nil {
		zap.L().Warn("sink upsert failed", zap.Error(err))
		return
	}
	if err := g.opts.Sink.FinishRun(ctx, runID, result.Plates, result.EntryWarnings); err != nil {
		zap.L().Warn("sink finish run failed", zap.Error(err))
		return
	}
	zap.L().Info("persisted plates", zap.Int64("written", written))
}

// Report writes the final count and a bounded sorted preview of the stored
// plates to w.
func (g *Ingestor) Report(w io.Writer) {
	sorted := g.store.Plates()

	fmt.Fprintf(w, "\n=== License Plates (%d total) ===\n", len(sorted))
	for i, plate := range sorted {
		if i >= g.opts.PreviewSize {
			fmt.Fprintf(w, "... and %d more\n", len(sorted)-g.opts.PreviewSize)
			break
		}
		fmt.Fprintf(w, "%d. %s\n", i+1, plate)
	}
}
