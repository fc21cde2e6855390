package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/polycollect/internal/domain"
)

// TradeArchiveStore is the read slice of the trade store the archiver
// needs; the Postgres store satisfies it through ListBefore.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

const jsonlContentType = "application/x-ndjson"

// multipartCutoff is the payload size above which the upload switches to
// the multipart path.
const multipartCutoff = 32 << 20

// ArchiveImpl implements domain.Archiver: aged trades are serialised to
// JSONL and uploaded ahead of the database retention drop. Deleting the
// archived rows is left to the retention policy; the archive cutoff runs
// a few days ahead of it so nothing is dropped unarchived.
type ArchiveImpl struct {
	writer domain.BlobWriter
	trades TradeArchiveStore
	logger *slog.Logger
}

// NewArchiver creates an ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		trades: trades,
		logger: logger.With("component", "archiver"),
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveTrades uploads all trades before the cutoff as JSONL at
// archive/trades/YYYY-MM.jsonl and returns the archived count. Re-running
// with the same cutoff month overwrites the object with a superset, so
// the operation is idempotent.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))
	a.logger.Info("trades archived",
		"path", path,
		"count", count,
		"before", before.Format(time.RFC3339))
	return count, nil
}

// upload sends the serialised archive, switching to a multipart upload
// when a heavy month pushes the payload over the cutoff.
func (a *ArchiveImpl) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) >= multipartCutoff {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
}

// archivePath builds the object key, partitioned by the year-month of the
// cutoff: archive/trades/2026-01.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
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
