package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/gzip"

	"deedhive/internal/types"
)

// Retention maintenance defaults: archived assignments older than about six
// months are exported and removed, a thousand rows at a time.
const (
	DefaultHistoryRetention = 180 * 24 * time.Hour
	DefaultArchiveBatchSize = 1000
)

// MaintenanceHistoryRepo abstracts the history access the retention task
// needs.
type MaintenanceHistoryRepo interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*types.UserActionHistory, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// ArchiveStore receives exported history batches. Keys are date-stamped and
// unique per run so re-running maintenance never overwrites a prior export.
type ArchiveStore interface {
	Upload(ctx context.Context, key string, data []byte) error
}

// MaintenanceResult summarizes one retention run.
type MaintenanceResult struct {
	ExportedCount int `json:"exported_count"`
	DeletedCount  int `json:"deleted_count"`
	Batches       int `json:"batches"`
}

// HistoryMaintenance exports expired history rows to the archive store as
// gzipped JSON lines, then deletes them. Export-before-delete mirrors the
// rotation flow's archive-before-delete ordering: a row is only ever removed
// after its copy is durably elsewhere.
type HistoryMaintenance struct {
	history MaintenanceHistoryRepo
	store   ArchiveStore
	logger  *slog.Logger

	retention time.Duration
	batchSize int
	now       func() time.Time
}

// HistoryMaintenanceConfig holds the configuration for creating a
// HistoryMaintenance. Zero Retention/BatchSize take the defaults.
type HistoryMaintenanceConfig struct {
	History   MaintenanceHistoryRepo
	Store     ArchiveStore
	Logger    *slog.Logger
	Retention time.Duration
	BatchSize int
	Now       func() time.Time
}

// NewHistoryMaintenance creates a new HistoryMaintenance with the given
// configuration.
func NewHistoryMaintenance(cfg HistoryMaintenanceConfig) *HistoryMaintenance {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultHistoryRetention
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultArchiveBatchSize
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &HistoryMaintenance{
		history:   cfg.History,
		store:     cfg.Store,
		logger:    logger,
		retention: retention,
		batchSize: batchSize,
		now:       now,
	}
}

// Run pages through expired history rows until none remain, exporting then
// deleting each batch. A failure leaves already-processed batches done and
// unprocessed rows untouched for the next run.
func (m *HistoryMaintenance) Run(ctx context.Context) (*MaintenanceResult, error) {
	start := m.now().UTC()
	cutoff := start.Add(-m.retention)

	m.logger.InfoContext(ctx, "starting history maintenance",
		"cutoff", cutoff,
		"batch_size", m.batchSize,
	)

	result := &MaintenanceResult{}
	for {
		records, err := m.history.ListOlderThan(ctx, cutoff, m.batchSize)
		if err != nil {
			return result, fmt.Errorf("listing expired history: %w", err)
		}
		if len(records) == 0 {
			break
		}

		key := fmt.Sprintf("history/%s/batch-%04d.jsonl.gz",
			start.Format(types.DateFormat), result.Batches)
		data, err := encodeArchive(records)
		if err != nil {
			return result, fmt.Errorf("encoding archive batch: %w", err)
		}
		if err := m.store.Upload(ctx, key, data); err != nil {
			return result, fmt.Errorf("uploading archive batch %q: %w", key, err)
		}
		result.ExportedCount += len(records)

		ids := make([]string, len(records))
		for i, rec := range records {
			ids[i] = rec.ID
		}
		deleted, err := m.history.DeleteByIDs(ctx, ids)
		if err != nil {
			return result, fmt.Errorf("deleting exported history: %w", err)
		}
		result.DeletedCount += deleted
		result.Batches++

		m.logger.InfoContext(ctx, "archived history batch",
			"key", key,
			"exported", len(records),
			"deleted", deleted,
		)

		// A short page means the table is drained; looping again would only
		// issue an empty query.
		if len(records) < m.batchSize {
			break
		}
	}

	m.logger.InfoContext(ctx, "history maintenance complete",
		"exported", result.ExportedCount,
		"deleted", result.DeletedCount,
		"batches", result.Batches,
		"duration", m.now().UTC().Sub(start).String(),
	)
	return result, nil
}

// encodeArchive serializes history rows as gzipped JSON lines, one row per
// line.
func encodeArchive(records []*types.UserActionHistory) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
