package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ScanStore persists scan cycle history.
type ScanStore interface {
	SaveRun(ctx context.Context, run ScanResult) error
	GetRun(ctx context.Context, id string) (ScanResult, error)
	ListRuns(ctx context.Context, opts ListOpts) ([]ScanResult, error)
	ListBefore(ctx context.Context, before time.Time) ([]ScanResult, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
