package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blockmart/marketd/internal/domain"
)

// SaleArchiveStore provides read access to sales for archival. The archiver
// only needs a time-ranged query, not the full sale store.
type SaleArchiveStore interface {
	ListSince(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.Sale, error)
}

// ActivityArchiveStore provides read access to the activity feed for
// archival.
type ActivityArchiveStore interface {
	List(ctx context.Context, f domain.ActivityFilter, opts domain.ListOpts) ([]domain.ActivityEntry, error)
}

// ArchiveImpl implements domain.Archiver by querying one UTC day of settled
// history, serializing it to JSONL, and uploading the result to S3.
//
// The primary store keeps its rows; cold storage is a redundant export, not a
// retention cutoff.
type ArchiveImpl struct {
	writer   domain.BlobWriter
	sales    SaleArchiveStore
	activity ActivityArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, sales SaleArchiveStore, activity ActivityArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:   writer,
		sales:    sales,
		activity: activity,
	}
}

const archiveBatch = 1000

// ArchiveSales exports the given UTC day's sales to
// archive/sales/YYYY-MM-DD.jsonl and returns how many records were written.
// A day with no sales uploads nothing.
func (a *ArchiveImpl) ArchiveSales(ctx context.Context, day time.Time) (int64, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var records []domain.Sale
	opts := domain.ListOpts{Limit: archiveBatch}
	for {
		batch, err := a.sales.ListSince(ctx, dayStart, opts)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive sales query: %w", err)
		}
		for _, s := range batch {
			if s.SettledAt.Before(dayEnd) {
				records = append(records, s)
			}
		}
		if len(batch) < archiveBatch {
			break
		}
		opts.Offset += archiveBatch
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive sales marshal: %w", err)
	}

	path := archivePath("sales", dayStart)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive sales upload: %w", err)
	}
	return int64(len(records)), nil
}

// ArchiveActivity exports the given UTC day's activity feed entries to
// archive/activity/YYYY-MM-DD.jsonl and returns how many records were
// written.
func (a *ArchiveImpl) ArchiveActivity(ctx context.Context, day time.Time) (int64, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var records []domain.ActivityEntry
	opts := domain.ListOpts{Limit: archiveBatch}
	for {
		batch, err := a.activity.List(ctx, domain.ActivityFilter{}, opts)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive activity query: %w", err)
		}
		for _, e := range batch {
			if !e.CreatedAt.Before(dayStart) && e.CreatedAt.Before(dayEnd) {
				records = append(records, e)
			}
		}
		if len(batch) < archiveBatch {
			break
		}
		opts.Offset += archiveBatch
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive activity marshal: %w", err)
	}

	path := archivePath("activity", dayStart)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive activity upload: %w", err)
	}
	return int64(len(records)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by day.
//
//	archive/sales/2025-01-15.jsonl
//	archive/activity/2025-01-15.jsonl
func archivePath(kind string, day time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, day.Format("2006-01-02"))
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

var _ domain.Archiver = (*ArchiveImpl)(nil)
