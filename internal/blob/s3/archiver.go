package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/makerdao/market-maker-keeper/internal/domain"
)

// OrderEventArchiveStore provides read and delete access to the order-event
// audit log for archival purposes.
type OrderEventArchiveStore interface {
	// ListBefore returns all order events created strictly before cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.OrderEvent, error)
	// DeleteBefore removes all order events created strictly before cutoff.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver: it moves stale order-event rows to
// cold storage and snapshots each completed control-loop cycle for audit.
type ArchiveImpl struct {
	writer domain.BlobWriter
	events OrderEventArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, events OrderEventArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{writer: writer, events: events}
}

// ArchiveOrderEvents queries all order events before the cutoff, serializes
// them to JSONL, uploads the file to S3 at
// archive/order_events/YYYY-MM.jsonl, and deletes the archived rows from the
// primary store. The count of archived records is returned.
func (a *ArchiveImpl) ArchiveOrderEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive order events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive order events marshal: %w", err)
	}

	path := archivePath("order_events", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive order events upload: %w", err)
	}

	deleted, err := a.events.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive order events delete: %w", err)
	}

	return deleted, nil
}

// ArchiveCycleReport uploads a single control-loop cycle's report to S3 at
// archive/cycles/<pair>/<startedAt-unix>.json. Unlike ArchiveOrderEvents this
// is not a batch operation: it is called once per completed cycle so an
// operator can reconstruct the keeper's quoting history without querying the
// primary store at all.
func (a *ArchiveImpl) ArchiveCycleReport(ctx context.Context, report domain.CycleReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("s3blob: archive cycle report marshal: %w", err)
	}

	path := fmt.Sprintf("archive/cycles/%s/%d.json", report.Pair, report.StartedAt.Unix())
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive cycle report upload: %w", err)
	}
	return nil
}

// archivePath builds the S3 key for a batch archive file, partitioned by the
// year-month of the cutoff time, e.g. archive/order_events/2025-01.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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
