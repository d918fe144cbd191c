package s3blob

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/polyrewards/internal/domain"
)

// SnapshotWriter uploads each completed scan result as one JSON object.
type SnapshotWriter struct {
	writer domain.BlobWriter
}

// NewSnapshotWriter creates a SnapshotWriter on top of w.
func NewSnapshotWriter(w domain.BlobWriter) *SnapshotWriter {
	return &SnapshotWriter{writer: w}
}

// WriteSnapshot stores run at snapshots/YYYY/MM/DD/<id>.json.
func (s *SnapshotWriter) WriteSnapshot(ctx context.Context, run domain.ScanResult) error {
	if run.ID == "" {
		return fmt.Errorf("s3blob: snapshot without run id")
	}
	return PutJSON(ctx, s.writer, snapshotPath(run), run)
}

func snapshotPath(run domain.ScanResult) string {
	return fmt.Sprintf("snapshots/%s/%s.json", run.StartedAt.UTC().Format("2006/01/02"), run.ID)
}
