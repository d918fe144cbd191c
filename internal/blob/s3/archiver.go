package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

// ScanArchiveStore is the slice of domain.ScanStore the archiver needs.
type ScanArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ScanResult, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ObjectChecker reports whether an object already exists.
type ObjectChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// ArchiveImpl implements domain.Archiver by moving old scan runs from the
// primary store into JSONL objects.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	checker ObjectChecker
	scans   ScanArchiveStore
	audit   domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl. checker and audit may be nil.
func NewArchiver(
	writer domain.BlobWriter,
	checker ObjectChecker,
	scans ScanArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		checker: checker,
		scans:   scans,
		audit:   audit,
	}
}

// ArchiveScanRuns uploads every run that started before the cutoff to
// archive/scan_runs/YYYY-MM-DD.jsonl and then deletes those rows. Rows are
// only deleted after the upload succeeded. The number of archived runs is
// returned.
func (a *ArchiveImpl) ArchiveScanRuns(ctx context.Context, before time.Time) (int64, error) {
	runs, err := a.scans.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive scan runs query: %w", err)
	}
	if len(runs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(runs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive scan runs marshal: %w", err)
	}

	path, err := a.freePath(ctx, archivePath("scan_runs", before))
	if err != nil {
		return 0, err
	}
	if err := putPayload(ctx, a.writer, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive scan runs upload: %w", err)
	}

	deleted, err := a.scans.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive scan runs delete: %w", err)
	}

	count := int64(len(runs))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.scan_runs", map[string]any{
			"path":    path,
			"count":   count,
			"deleted": deleted,
			"before":  before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive scan runs audit log: %w", err)
		}
	}
	return count, nil
}

// freePath returns path, or path with a numeric suffix when an object is
// already stored under it.
func (a *ArchiveImpl) freePath(ctx context.Context, path string) (string, error) {
	if a.checker == nil {
		return path, nil
	}
	base := path[:len(path)-len(".jsonl")]
	candidate := path
	for i := 1; i <= 100; i++ {
		exists, err := a.checker.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive path check: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s.%d.jsonl", base, i)
	}
	return "", fmt.Errorf("s3blob: no free archive path for %s", path)
}

// archivePath builds the key for an archive file, partitioned by the day of
// the cutoff.
//
//	archive/scan_runs/2026-01-31.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01-02"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
