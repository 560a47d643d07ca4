// This file implements the bulk rotation coordinator: the fan-out driver
// that rotates every user's daily deed in bounded batches under a soft
// wall-clock budget.
//
// Key behaviors:
//   - One batch at a time; batch members rotate concurrently with
//     parallelism bounded by the batch size, joined before the next batch.
//   - A single user's failure is caught and recorded, never aborting the
//     batch or the run.
//   - The elapsed-time budget is checked between batches only; when
//     exceeded, remaining batches are skipped and partial results returned.
//     The cron trigger re-runs the job, so missed users are picked up on a
//     later cycle.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultRotationBatchSize is both the partition size and the bound on
// per-batch parallelism.
const DefaultRotationBatchSize = 50

// DefaultRotationTimeBudget is the soft deadline checked between batches,
// kept under the host's 60s execution ceiling.
const DefaultRotationTimeBudget = 50 * time.Second

// RotationUserSource abstracts the user enumeration the coordinator fans
// out over.
type RotationUserSource interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// Rotator abstracts the per-user rotation. Satisfied by *RotationEngine.
type Rotator interface {
	Rotate(ctx context.Context, userID string) (*RotationResult, error)
}

// RotationStatsPublisher records run-level counters. Implementations must be
// best-effort: a metrics failure never fails the run.
type RotationStatsPublisher interface {
	PublishRotationStats(ctx context.Context, succeeded, failed int)
}

// BulkRotationError records one user's rotation failure.
type BulkRotationError struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// BulkRotationResult aggregates per-user outcomes for one coordinator run.
// The run as a whole succeeds even when individual users fail; callers
// inspect Errors for the detail.
type BulkRotationResult struct {
	SuccessCount int                 `json:"success_count"`
	ErrorCount   int                 `json:"error_count"`
	Errors       []BulkRotationError `json:"errors,omitempty"`
}

// BulkRotationCoordinator drives the rotation engine across all users.
type BulkRotationCoordinator struct {
	users   RotationUserSource
	rotator Rotator
	stats   RotationStatsPublisher
	logger  *slog.Logger

	batchSize  int
	timeBudget time.Duration
	now        func() time.Time
}

// BulkRotationCoordinatorConfig holds the configuration for creating a
// BulkRotationCoordinator. Zero BatchSize and TimeBudget take the defaults;
// Stats may be nil when no metrics backend is wired.
type BulkRotationCoordinatorConfig struct {
	Users      RotationUserSource
	Rotator    Rotator
	Stats      RotationStatsPublisher
	Logger     *slog.Logger
	BatchSize  int
	TimeBudget time.Duration
	Now        func() time.Time
}

// NewBulkRotationCoordinator creates a new BulkRotationCoordinator with the
// given configuration.
func NewBulkRotationCoordinator(cfg BulkRotationCoordinatorConfig) *BulkRotationCoordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultRotationBatchSize
	}
	timeBudget := cfg.TimeBudget
	if timeBudget <= 0 {
		timeBudget = DefaultRotationTimeBudget
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &BulkRotationCoordinator{
		users:      cfg.Users,
		rotator:    cfg.Rotator,
		stats:      cfg.Stats,
		logger:     logger,
		batchSize:  batchSize,
		timeBudget: timeBudget,
		now:        now,
	}
}

// RotateAll rotates every known user in batches. Only the initial user
// enumeration is fatal; everything after is isolated per user. Returns the
// aggregated counts and per-user error details.
func (c *BulkRotationCoordinator) RotateAll(ctx context.Context) (*BulkRotationResult, error) {
	start := c.now()

	userIDs, err := c.users.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users for rotation: %w", err)
	}
	if len(userIDs) == 0 {
		c.logger.InfoContext(ctx, "no users to rotate")
		return &BulkRotationResult{}, nil
	}

	c.logger.InfoContext(ctx, "starting bulk rotation",
		"users", len(userIDs),
		"batch_size", c.batchSize,
	)

	result := &BulkRotationResult{}
	var mu sync.Mutex

	for offset := 0; offset < len(userIDs); offset += c.batchSize {
		end := offset + c.batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		batch := userIDs[offset:end]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.batchSize)
		for _, userID := range batch {
			g.Go(func() error {
				if _, err := c.rotator.Rotate(gctx, userID); err != nil {
					c.logger.ErrorContext(gctx, "user rotation failed",
						"user_id", userID,
						"error", err,
					)
					mu.Lock()
					result.ErrorCount++
					result.Errors = append(result.Errors, BulkRotationError{
						UserID:  userID,
						Message: err.Error(),
					})
					mu.Unlock()
					return nil // isolation: never propagate per-user failures
				}
				mu.Lock()
				result.SuccessCount++
				mu.Unlock()
				return nil
			})
		}
		// The group never returns an error (per-user failures are recorded,
		// not propagated); Wait is the batch join barrier.
		_ = g.Wait()

		if end < len(userIDs) && c.now().Sub(start) > c.timeBudget {
			c.logger.WarnContext(ctx, "time budget exceeded, stopping batch scheduling",
				"processed", end,
				"remaining", len(userIDs)-end,
				"elapsed", c.now().Sub(start).String(),
			)
			break
		}
	}

	if c.stats != nil {
		c.stats.PublishRotationStats(ctx, result.SuccessCount, result.ErrorCount)
	}

	c.logger.InfoContext(ctx, "bulk rotation finished",
		"succeeded", result.SuccessCount,
		"failed", result.ErrorCount,
		"elapsed", c.now().Sub(start).String(),
	)

	return result, nil
}
