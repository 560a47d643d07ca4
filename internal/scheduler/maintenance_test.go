package scheduler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"deedhive/internal/types"
)

// --- Test Doubles ---

// mockMaintenanceRepo serves expired rows in pages and records deletions.
type mockMaintenanceRepo struct {
	rows      []*types.UserActionHistory
	listErr   error
	deleteErr error
	deleted   [][]string
}

func (m *mockMaintenanceRepo) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*types.UserActionHistory, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if limit > len(m.rows) {
		limit = len(m.rows)
	}
	return m.rows[:limit], nil
}

func (m *mockMaintenanceRepo) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.deleted = append(m.deleted, ids)
	m.rows = m.rows[len(ids):]
	return len(ids), nil
}

// mockArchiveStore keeps uploads in memory.
type mockArchiveStore struct {
	uploadErr error
	uploads   map[string][]byte
}

func (m *mockArchiveStore) Upload(ctx context.Context, key string, data []byte) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	if m.uploads == nil {
		m.uploads = map[string][]byte{}
	}
	m.uploads[key] = data
	return nil
}

func historyRows(n int) []*types.UserActionHistory {
	rows := make([]*types.UserActionHistory, n)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = &types.UserActionHistory{
			ID:           fmt.Sprintf("hist-%03d", i),
			UserID:       "user-1",
			ActionID:     fmt.Sprintf("act-%03d", i),
			AssignedDate: base.AddDate(0, 0, i),
			ArchivedAt:   base.AddDate(0, 0, i+1),
		}
	}
	return rows
}

func newTestMaintenance(repo *mockMaintenanceRepo, store *mockArchiveStore, batchSize int) *HistoryMaintenance {
	return NewHistoryMaintenance(HistoryMaintenanceConfig{
		History:   repo,
		Store:     store,
		Logger:    testLogger(),
		BatchSize: batchSize,
		Now:       func() time.Time { return time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC) },
	})
}

// --- Tests ---

func TestMaintenanceExportsThenDeletes(t *testing.T) {
	repo := &mockMaintenanceRepo{rows: historyRows(5)}
	store := &mockArchiveStore{}
	m := newTestMaintenance(repo, store, 10)

	result, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExportedCount != 5 || result.DeletedCount != 5 || result.Batches != 1 {
		t.Fatalf("expected 5 exported, 5 deleted, 1 batch, got %+v", result)
	}
	if len(store.uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(store.uploads))
	}
	if len(repo.deleted) != 1 || len(repo.deleted[0]) != 5 {
		t.Fatalf("expected one delete of 5 IDs, got %v", repo.deleted)
	}
	if repo.deleted[0][0] != "hist-000" {
		t.Errorf("expected deletion keyed by history IDs, got %v", repo.deleted[0])
	}
}

func TestMaintenancePagesThroughBatches(t *testing.T) {
	repo := &mockMaintenanceRepo{rows: historyRows(7)}
	store := &mockArchiveStore{}
	m := newTestMaintenance(repo, store, 3)

	result, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Batches != 3 {
		t.Errorf("expected 3 batches for 7 rows at size 3, got %d", result.Batches)
	}
	if result.ExportedCount != 7 || result.DeletedCount != 7 {
		t.Errorf("expected all 7 rows processed, got %+v", result)
	}
	for key := range store.uploads {
		if !strings.HasPrefix(key, "history/2026-03-15/") || !strings.HasSuffix(key, ".jsonl.gz") {
			t.Errorf("unexpected archive key %q", key)
		}
	}
}

func TestMaintenanceNothingExpired(t *testing.T) {
	repo := &mockMaintenanceRepo{}
	store := &mockArchiveStore{}
	m := newTestMaintenance(repo, store, 10)

	result, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExportedCount != 0 || result.Batches != 0 {
		t.Errorf("expected empty run, got %+v", result)
	}
	if len(store.uploads) != 0 {
		t.Errorf("expected no uploads, got %d", len(store.uploads))
	}
}

func TestMaintenanceUploadFailureLeavesRows(t *testing.T) {
	repo := &mockMaintenanceRepo{rows: historyRows(4)}
	store := &mockArchiveStore{uploadErr: fmt.Errorf("simulated upload failure")}
	m := newTestMaintenance(repo, store, 10)

	result, err := m.Run(context.Background())
	if err == nil {
		t.Fatal("expected error when upload fails")
	}
	if result.DeletedCount != 0 {
		t.Errorf("expected no deletions after failed upload, got %d", result.DeletedCount)
	}
	if len(repo.deleted) != 0 {
		t.Errorf("expected no delete calls, got %v", repo.deleted)
	}
}

func TestMaintenanceArchiveRoundTrips(t *testing.T) {
	rows := historyRows(3)
	rows[1].Completed = true
	rows[1].Notes = "held the elevator"

	data, err := encodeArchive(rows)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("expected valid gzip stream: %v", err)
	}
	defer zr.Close()

	var decoded []*types.UserActionHistory
	scanner := bufio.NewScanner(zr)
	for scanner.Scan() {
		var rec types.UserActionHistory
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("expected one JSON object per line: %v", err)
		}
		decoded = append(decoded, &rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}

	if len(decoded) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(decoded))
	}
	if decoded[1].ID != rows[1].ID || !decoded[1].Completed || decoded[1].Notes != rows[1].Notes {
		t.Errorf("expected row fields to survive the round trip, got %+v", decoded[1])
	}
}
