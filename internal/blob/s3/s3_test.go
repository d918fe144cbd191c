package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memWriter) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type fakeScans struct {
	runs      []domain.ScanResult
	deletedAt *time.Time
	deleteErr error
}

func (f *fakeScans) ListBefore(_ context.Context, before time.Time) ([]domain.ScanResult, error) {
	var out []domain.ScanResult
	for _, r := range f.runs {
		if r.StartedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeScans) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deletedAt = &before
	var n int64
	for _, r := range f.runs {
		if r.StartedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

type fakeAudit struct {
	events []string
}

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

var cutoff = time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)

func oldRuns() []domain.ScanResult {
	return []domain.ScanResult{
		{ID: "a", StartedAt: cutoff.Add(-48 * time.Hour)},
		{ID: "b", StartedAt: cutoff.Add(-time.Hour)},
		{ID: "c", StartedAt: cutoff.Add(time.Hour)},
	}
}

func TestArchiveScanRuns(t *testing.T) {
	w := newMemWriter()
	scans := &fakeScans{runs: oldRuns()}
	audit := &fakeAudit{}

	n, err := NewArchiver(w, w, scans, audit).ArchiveScanRuns(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	data, ok := w.objects["archive/scan_runs/2026-01-31.jsonl"]
	require.True(t, ok)
	assert.Equal(t, "application/x-ndjson", w.types["archive/scan_runs/2026-01-31.jsonl"])

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var r domain.ScanResult
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
	require.NotNil(t, scans.deletedAt)
	assert.Equal(t, []string{"archive.scan_runs"}, audit.events)
}

func TestArchiveScanRunsNothingToDo(t *testing.T) {
	w := newMemWriter()
	scans := &fakeScans{}
	n, err := NewArchiver(w, nil, scans, nil).ArchiveScanRuns(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
	assert.Nil(t, scans.deletedAt)
}

func TestArchiveScanRunsKeepsRowsOnUploadFailure(t *testing.T) {
	w := newMemWriter()
	w.err = errors.New("boom")
	scans := &fakeScans{runs: oldRuns()}

	_, err := NewArchiver(w, nil, scans, nil).ArchiveScanRuns(context.Background(), cutoff)
	require.Error(t, err)
	assert.Nil(t, scans.deletedAt)
}

func TestArchiveScanRunsAvoidsOverwrite(t *testing.T) {
	w := newMemWriter()
	w.objects["archive/scan_runs/2026-01-31.jsonl"] = []byte("old")
	scans := &fakeScans{runs: oldRuns()}

	_, err := NewArchiver(w, w, scans, nil).ArchiveScanRuns(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), w.objects["archive/scan_runs/2026-01-31.jsonl"])
	assert.Contains(t, w.objects, "archive/scan_runs/2026-01-31.1.jsonl")
}

func TestSnapshotWriter(t *testing.T) {
	w := newMemWriter()
	run := domain.ScanResult{ID: "run-9", StartedAt: cutoff}
	require.NoError(t, NewSnapshotWriter(w).WriteSnapshot(context.Background(), run))
	assert.Contains(t, w.objects, "snapshots/2026/01/31/run-9.json")

	assert.Error(t, NewSnapshotWriter(w).WriteSnapshot(context.Background(), domain.ScanResult{}))
}

func TestJoinKeyAndEndpoint(t *testing.T) {
	assert.Equal(t, "a/b.json", joinKey("", "/a/b.json"))
	assert.Equal(t, "pfx/a/b.json", joinKey("pfx", "a/b.json"))
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://minio.local", normaliseEndpoint("minio.local", false))
	assert.Equal(t, "https://x.io", normaliseEndpoint("https://x.io", false))
}
