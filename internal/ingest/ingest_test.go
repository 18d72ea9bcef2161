package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dmr-cli/internal/fetcher"
	"github.com/sells-group/dmr-cli/internal/plates"
	"github.com/sells-group/dmr-cli/internal/store"
)

type zipEntry struct {
	name    string
	content string
}

func buildZIP(t *testing.T, entries []zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		fw, err := w.Create(e.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeZIP(t *testing.T, entries []zipEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(path, buildZIP(t, entries), 0o644))
	return path
}

func localSource(t *testing.T, path string) fetcher.Source {
	t.Helper()
	src, err := fetcher.NewLocal(path)
	require.NoError(t, err)
	return src
}

const entryA = `<VehicleList>
	<Vehicle><LicensePlate>AB12345</LicensePlate></Vehicle>
	<Vehicle><LicensePlate>AB12345</LicensePlate></Vehicle>
	<Vehicle><LicensePlate>CD67890</LicensePlate></Vehicle>
</VehicleList>`

// One valid record, then truncated mid-element.
const entryB = `<VehicleList>
	<Vehicle><LicensePlate>EF11111</LicensePlate></Vehicle>
	<Vehicle><LicensePlate>GH`

func TestRunLocalEndToEnd(t *testing.T) {
	path := writeZIP(t, []zipEntry{
		{"a.xml", entryA},
		{"b.xml", entryB},
	})

	var out bytes.Buffer
	st := plates.NewStore()
	ing := New(st, Options{Out: &out})

	result, err := ing.Run(context.Background(), localSource(t, path))
	require.NoError(t, err)

	assert.Equal(t, []string{"AB12345", "CD67890", "EF11111"}, st.Plates())
	assert.Equal(t, 4, result.Inserted)
	assert.Equal(t, 3, result.Plates)
	assert.Equal(t, 1, result.EntryWarnings)

	assert.Contains(t, out.String(), "Processing: a.xml")
	assert.Contains(t, out.String(), "Processing: b.xml")
}

func TestRunSkipsDirectories(t *testing.T) {
	path := writeZIP(t, []zipEntry{
		{"data/", ""},
		{"data/a.xml", entryA},
	})

	st := plates.NewStore()
	ing := New(st, Options{Out: io.Discard})

	result, err := ing.Run(context.Background(), localSource(t, path))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Plates)
	assert.Zero(t, result.EntryWarnings)
}

func TestRunDuplicateKeepsLaterObservation(t *testing.T) {
	path := writeZIP(t, []zipEntry{{"a.xml", entryA}})

	st := plates.NewStore()
	ing := New(st, Options{Out: io.Discard})

	_, err := ing.Run(context.Background(), localSource(t, path))
	require.NoError(t, err)

	require.Equal(t, 2, st.Len())
	first, ok := st.Get("AB12345")
	require.True(t, ok)
	second, ok := st.Get("CD67890")
	require.True(t, ok)
	// CD67890 was inserted after the AB12345 duplicate.
	assert.False(t, second.ObservedAt.Before(first.ObservedAt))
}

func TestRunMilestones(t *testing.T) {
	doc := `<L>
		<Vehicle><LicensePlate>P1</LicensePlate></Vehicle>
		<Vehicle><LicensePlate>P2</LicensePlate></Vehicle>
		<Vehicle><LicensePlate>P3</LicensePlate></Vehicle>
		<Vehicle><LicensePlate>P4</LicensePlate></Vehicle>
		<Vehicle><LicensePlate>P5</LicensePlate></Vehicle>
	</L>`
	path := writeZIP(t, []zipEntry{{"a.xml", doc}})

	var out bytes.Buffer
	st := plates.NewStore()
	ing := New(st, Options{MilestoneEvery: 2, Out: &out})

	_, err := ing.Run(context.Background(), localSource(t, path))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "processed 2 plates")
	assert.Contains(t, out.String(), "processed 4 plates")
	assert.NotContains(t, out.String(), "processed 5 plates")
}

func TestRunFatalOnNonArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	st := plates.NewStore()
	ing := New(st, Options{Out: io.Discard})

	_, err := ing.Run(context.Background(), localSource(t, path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "central directory")
}

type fakeRemote struct {
	data []byte
}

func (f *fakeRemote) Name() string { return "ftp://test/archive.zip" }

func (f *fakeRemote) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(f.data)), int64(len(f.data)), nil
}

func TestRunRemoteDownloadsWithProgress(t *testing.T) {
	data := buildZIP(t, []zipEntry{{"a.xml", entryA}})
	tempDir := t.TempDir()

	var out bytes.Buffer
	st := plates.NewStore()
	ing := New(st, Options{TempDir: tempDir, Out: &out})

	result, err := ing.Run(context.Background(), &fakeRemote{data: data})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Plates)
	assert.Equal(t, "ftp://test/archive.zip", result.Source)
	assert.Contains(t, out.String(), "Downloading: 100%")
	assert.Contains(t, out.String(), "Downloaded")

	// The temp copy is removed after the run.
	left, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRunRemoteKeepTemp(t *testing.T) {
	data := buildZIP(t, []zipEntry{{"a.xml", entryA}})
	tempDir := t.TempDir()

	st := plates.NewStore()
	ing := New(st, Options{TempDir: tempDir, KeepTemp: true, Out: io.Discard})

	_, err := ing.Run(context.Background(), &fakeRemote{data: data})
	require.NoError(t, err)

	left, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.True(t, strings.HasPrefix(left[0].Name(), "dmr-"))
}

func TestRunPersistsToSink(t *testing.T) {
	path := writeZIP(t, []zipEntry{
		{"a.xml", entryA},
		{"b.xml", entryB},
	})

	sink, err := store.NewSQLite(filepath.Join(t.TempDir(), "plates.db"))
	require.NoError(t, err)
	defer sink.Close() //nolint:errcheck

	st := plates.NewStore()
	ing := New(st, Options{Sink: sink, Out: io.Discard})

	_, err = ing.Run(context.Background(), localSource(t, path))
	require.NoError(t, err)

	count, err := sink.CountPlates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestReportPreview(t *testing.T) {
	st := plates.NewStore()
	ing := New(st, Options{Out: io.Discard})

	for _, p := range []string{"B", "A", "C"} {
		st.Insert(plates.Record{Plate: p})
	}

	var out bytes.Buffer
	ing.Report(&out)

	got := out.String()
	assert.Contains(t, got, "(3 total)")
	idxA := strings.Index(got, "1. A")
	idxB := strings.Index(got, "2. B")
	idxC := strings.Index(got, "3. C")
	require.GreaterOrEqual(t, idxA, 0)
	assert.Greater(t, idxB, idxA)
	assert.Greater(t, idxC, idxB)
	assert.NotContains(t, got, "more")
}

func TestReportPreviewBounded(t *testing.T) {
	st := plates.NewStore()
	ing := New(st, Options{PreviewSize: 3, Out: io.Discard})

	for _, p := range []string{"A", "B", "C", "D", "E"} {
		st.Insert(plates.Record{Plate: p})
	}

	var out bytes.Buffer
	ing.Report(&out)

	got := out.String()
	assert.Contains(t, got, "3. C")
	assert.NotContains(t, got, "4. D")
	assert.Contains(t, got, "... and 2 more")
}
