package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/polycollect/internal/domain"
)

// ArchiveCollector periodically moves aged trades to cold storage, running
// a few days ahead of the database retention drop.
type ArchiveCollector struct {
	archiver  domain.Archiver
	afterDays int
	interval  time.Duration
	logger    *slog.Logger
}

// NewArchiveCollector creates the cold-storage archive loop.
func NewArchiveCollector(archiver domain.Archiver, afterDays int, interval time.Duration, logger *slog.Logger) *ArchiveCollector {
	return &ArchiveCollector{
		archiver:  archiver,
		afterDays: afterDays,
		interval:  interval,
		logger:    logger.With("collector", "trade_archive"),
	}
}

func (c *ArchiveCollector) Name() string            { return "trade_archive" }
func (c *ArchiveCollector) Interval() time.Duration { return c.interval }

// Collect archives every trade older than the configured age.
func (c *ArchiveCollector) Collect(ctx context.Context) error {
	before := time.Now().UTC().AddDate(0, 0, -c.afterDays)

	count, err := c.archiver.ArchiveTrades(ctx, before)
	if err != nil {
		return fmt.Errorf("collector: archive trades: %w", err)
	}
	if count > 0 {
		c.logger.Info("aged trades archived", "count", count, "before", before.Format(time.RFC3339))
	}
	return nil
}
