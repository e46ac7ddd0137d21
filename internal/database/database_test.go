package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"emptysweep/internal/cleanup"
	"emptysweep/internal/exclude"
)

// Compile-time check that the history database plugs into the cleaner
var _ cleanup.Recorder = (*DeletionDB)(nil)

func openTestDB(t *testing.T, name string) *DeletionDB {
	t.Helper()
	db, err := NewDeletionDB(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db
}

func removal(runID, path string, isDir bool, at time.Time) cleanup.Removal {
	return cleanup.Removal{
		Path:  path,
		Root:  "/sweep",
		IsDir: isDir,
		RunID: runID,
		Time:  at,
	}
}

// TestDatabaseCreation verifies database file creation in a missing directory
func TestDatabaseCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	db, err := NewDeletionDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	}()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file not created at %s", dbPath)
	}
}

// TestWALModeEnabled verifies that WAL mode is properly configured
func TestWALModeEnabled(t *testing.T) {
	db := openTestDB(t, "test_wal.db")

	var journalMode string
	if err := db.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}
}

// TestSchemaCreation verifies all tables and indexes are created
func TestSchemaCreation(t *testing.T) {
	db := openTestDB(t, "test_schema.db")

	for _, table := range []string{"deletions", "schema_version"} {
		var name string
		err := db.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not found: %v", table, err)
		}
	}

	var version int
	if err := db.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		t.Errorf("Failed to read schema version: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected schema version 1, got %d", version)
	}

	expectedIndexes := []string{
		"idx_run_id",
		"idx_timestamp",
		"idx_action",
		"idx_path",
		"idx_object_type",
	}
	for _, indexName := range expectedIndexes {
		var name string
		err := db.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", indexName).Scan(&name)
		if err != nil {
			t.Errorf("Index %s not found: %v", indexName, err)
		}
	}
}

// TestReopenKeepsRecords verifies schema init is idempotent across opens
func TestReopenKeepsRecords(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	db, err := NewDeletionDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if err := db.RecordRemoval(cleanup.ActionDelete, removal("run-1", "/sweep/a", true, time.Now()), ""); err != nil {
		t.Fatalf("Failed to record: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	db, err = NewDeletionDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	records, err := db.GetRecentDeletions(10)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record after reopen, got %d", len(records))
	}
}

// TestRecordRemoval verifies basic insertion functionality
func TestRecordRemoval(t *testing.T) {
	db := openTestDB(t, "test_record.db")

	now := time.Now()
	if err := db.RecordRemoval(cleanup.ActionDelete, removal("run-1", "/sweep/logs/empty.log", false, now), ""); err != nil {
		t.Fatalf("Failed to record removal: %v", err)
	}
	if err := db.RecordRemoval(cleanup.ActionError, removal("run-1", "/sweep/locked", true, now.Add(time.Second)), "permission denied"); err != nil {
		t.Fatalf("Failed to record error: %v", err)
	}

	records, err := db.GetRecentDeletions(10)
	if err != nil {
		t.Fatalf("Failed to retrieve records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	errRec, fileRec := records[0], records[1]

	if fileRec.Path != "/sweep/logs/empty.log" {
		t.Errorf("Expected path /sweep/logs/empty.log, got %s", fileRec.Path)
	}
	if fileRec.FileName != "empty.log" {
		t.Errorf("Expected file name empty.log, got %s", fileRec.FileName)
	}
	if fileRec.ObjectType != cleanup.ObjectFile {
		t.Errorf("Expected object type file, got %s", fileRec.ObjectType)
	}
	if fileRec.Root != "/sweep" {
		t.Errorf("Expected root /sweep, got %s", fileRec.Root)
	}
	if fileRec.RunID != "run-1" {
		t.Errorf("Expected run id run-1, got %s", fileRec.RunID)
	}
	if fileRec.ErrorMessage != "" {
		t.Errorf("Expected empty error message, got %q", fileRec.ErrorMessage)
	}
	if fileRec.Timestamp.Unix() != now.Unix() {
		t.Errorf("Expected timestamp %v, got %v", now, fileRec.Timestamp)
	}

	if errRec.Action != cleanup.ActionError || errRec.ObjectType != cleanup.ObjectEmptyDir {
		t.Errorf("Unexpected error record: %+v", errRec)
	}
	if errRec.ErrorMessage != "permission denied" {
		t.Errorf("Expected error message, got %q", errRec.ErrorMessage)
	}
}

// TestQueryMethods verifies the filtered queries
func TestQueryMethods(t *testing.T) {
	db := openTestDB(t, "test_query.db")

	base := time.Now().Add(-time.Hour)
	entries := []struct {
		action string
		r      cleanup.Removal
	}{
		{cleanup.ActionDelete, removal("run-1", "/sweep/a/empty.txt", false, base)},
		{cleanup.ActionDelete, removal("run-1", "/sweep/a", true, base.Add(time.Second))},
		{cleanup.ActionSkip, removal("run-1", "/sweep/keep", true, base.Add(2*time.Second))},
		{cleanup.ActionDryRun, removal("run-2", "/sweep/b/empty.txt", false, base.Add(3*time.Second))},
		{cleanup.ActionDryRun, removal("run-2", "/sweep/b", true, base.Add(4*time.Second))},
	}
	for _, e := range entries {
		if err := db.RecordRemoval(e.action, e.r, ""); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}

	t.Run("GetRecentDeletions", func(t *testing.T) {
		records, err := db.GetRecentDeletions(2)
		if err != nil {
			t.Fatalf("GetRecentDeletions failed: %v", err)
		}
		if len(records) != 2 || records[0].Path != "/sweep/b" {
			t.Errorf("unexpected recent records: %+v", records)
		}
	})

	t.Run("GetDeletionsByAction", func(t *testing.T) {
		records, err := db.GetDeletionsByAction(cleanup.ActionDryRun)
		if err != nil {
			t.Fatalf("GetDeletionsByAction failed: %v", err)
		}
		if len(records) != 2 {
			t.Errorf("Expected 2 DRY_RUN records, got %d", len(records))
		}
	})

	t.Run("GetDeletionsByPath", func(t *testing.T) {
		records, err := db.GetDeletionsByPath("/sweep/a%")
		if err != nil {
			t.Fatalf("GetDeletionsByPath failed: %v", err)
		}
		if len(records) != 2 {
			t.Errorf("Expected 2 records under /sweep/a, got %d", len(records))
		}
	})

	t.Run("GetDeletionsByRun", func(t *testing.T) {
		records, err := db.GetDeletionsByRun("run-1")
		if err != nil {
			t.Fatalf("GetDeletionsByRun failed: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("Expected 3 records for run-1, got %d", len(records))
		}
		if records[0].Path != "/sweep/a/empty.txt" || records[2].Path != "/sweep/keep" {
			t.Errorf("run records out of order: %+v", records)
		}
	})

	t.Run("GetDeletionsByDateRange", func(t *testing.T) {
		records, err := db.GetDeletionsByDateRange(base.Add(-time.Minute), base.Add(1500*time.Millisecond))
		if err != nil {
			t.Fatalf("GetDeletionsByDateRange failed: %v", err)
		}
		if len(records) != 2 {
			t.Errorf("Expected 2 records in range, got %d", len(records))
		}
	})

	t.Run("GetDeletionCountByAction", func(t *testing.T) {
		counts, err := db.GetDeletionCountByAction()
		if err != nil {
			t.Fatalf("GetDeletionCountByAction failed: %v", err)
		}
		if counts[cleanup.ActionDelete] != 2 || counts[cleanup.ActionDryRun] != 2 || counts[cleanup.ActionSkip] != 1 {
			t.Errorf("unexpected counts: %v", counts)
		}
	})

	t.Run("GetDeletionCountByObjectType", func(t *testing.T) {
		counts, err := db.GetDeletionCountByObjectType()
		if err != nil {
			t.Fatalf("GetDeletionCountByObjectType failed: %v", err)
		}
		if counts[cleanup.ObjectFile] != 1 || counts[cleanup.ObjectEmptyDir] != 1 {
			t.Errorf("unexpected counts: %v", counts)
		}
	})
}

// TestDeletionStats verifies aggregated statistics
func TestDeletionStats(t *testing.T) {
	db := openTestDB(t, "test_stats.db")

	now := time.Now()
	records := []struct {
		action string
		r      cleanup.Removal
	}{
		{cleanup.ActionDelete, removal("run-1", "/sweep/x.txt", false, now)},
		{cleanup.ActionDelete, removal("run-1", "/sweep/d", true, now)},
		{cleanup.ActionError, removal("run-2", "/sweep/e", true, now)},
		{cleanup.ActionDelete, removal("run-0", "/sweep/old.txt", false, now.AddDate(0, 0, -60))},
	}
	for _, e := range records {
		if err := db.RecordRemoval(e.action, e.r, ""); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}

	stats, err := db.GetDeletionStats(30)
	if err != nil {
		t.Fatalf("GetDeletionStats failed: %v", err)
	}

	if stats.TotalDeleted != 2 {
		t.Errorf("TotalDeleted = %d, want 2", stats.TotalDeleted)
	}
	if stats.FilesDeleted != 1 || stats.DirectoriesDeleted != 1 {
		t.Errorf("Files/Dirs = %d/%d, want 1/1", stats.FilesDeleted, stats.DirectoriesDeleted)
	}
	if stats.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1", stats.TotalErrors)
	}
	if stats.Runs != 2 {
		t.Errorf("Runs = %d, want 2", stats.Runs)
	}
	// Grouped counts cover all time
	if stats.ByAction[cleanup.ActionDelete] != 3 {
		t.Errorf("ByAction[DELETE] = %d, want 3", stats.ByAction[cleanup.ActionDelete])
	}
}

// TestDatabaseStats verifies size and date range reporting
func TestDatabaseStats(t *testing.T) {
	db := openTestDB(t, "test_dbstats.db")

	for i := 0; i < 5; i++ {
		r := removal("run-1", fmt.Sprintf("/sweep/f%d", i), false, time.Now().Add(time.Duration(i)*time.Minute))
		if err := db.RecordRemoval(cleanup.ActionDelete, r, ""); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}

	stats, err := db.GetDatabaseStats()
	if err != nil {
		t.Fatalf("GetDatabaseStats failed: %v", err)
	}

	if stats["total_records"].(int64) != 5 {
		t.Errorf("total_records = %v, want 5", stats["total_records"])
	}
	if stats["total_runs"].(int64) != 1 {
		t.Errorf("total_runs = %v, want 1", stats["total_runs"])
	}
	if stats["database_size_bytes"].(int64) <= 0 {
		t.Errorf("database_size_bytes = %v, want > 0", stats["database_size_bytes"])
	}
	if _, ok := stats["oldest_record"]; !ok {
		t.Error("oldest_record missing")
	}
	if _, ok := stats["newest_record"]; !ok {
		t.Error("newest_record missing")
	}
}

// TestDeleteOldRecords verifies history pruning
func TestDeleteOldRecords(t *testing.T) {
	db := openTestDB(t, "test_prune.db")

	now := time.Now()
	if err := db.RecordRemoval(cleanup.ActionDelete, removal("old", "/sweep/old", true, now.AddDate(0, 0, -40)), ""); err != nil {
		t.Fatalf("Failed to record: %v", err)
	}
	if err := db.RecordRemoval(cleanup.ActionDelete, removal("new", "/sweep/new", true, now), ""); err != nil {
		t.Fatalf("Failed to record: %v", err)
	}

	deleted, err := db.DeleteOldRecords(30)
	if err != nil {
		t.Fatalf("DeleteOldRecords failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 pruned record, got %d", deleted)
	}

	if err := db.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}

	records, err := db.GetRecentDeletions(10)
	if err != nil {
		t.Fatalf("GetRecentDeletions failed: %v", err)
	}
	if len(records) != 1 || records[0].Path != "/sweep/new" {
		t.Errorf("unexpected records after prune: %+v", records)
	}
}

// TestConcurrentReads verifies WAL allows concurrent readers
func TestConcurrentReads(t *testing.T) {
	db := openTestDB(t, "test_concurrent.db")

	for i := 0; i < 20; i++ {
		r := removal("run-1", fmt.Sprintf("/sweep/f%d", i), false, time.Now())
		if err := db.RecordRemoval(cleanup.ActionDelete, r, ""); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := db.GetRecentDeletions(20)
			if err != nil {
				errs <- err
				return
			}
			if len(records) != 20 {
				errs <- fmt.Errorf("expected 20 records, got %d", len(records))
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent read failed: %v", err)
	}
}

// TestCleanerRecordsHistory wires the database into a real sweep
func TestCleanerRecordsHistory(t *testing.T) {
	db := openTestDB(t, "test_sweep.db")

	root := t.TempDir()
	if exclude.Default().Match(root) {
		t.Skipf("temp dir %s matches the default exclusion set", root)
	}
	if err := os.MkdirAll(filepath.Join(root, "a", "b"), 0755); err != nil {
		t.Fatalf("Failed to create tree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a", "empty.txt"), nil, 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	cleaner := cleanup.NewCleaner(log.Default(), nil, false, db)
	removed, err := cleaner.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(removed) != 3 {
		t.Fatalf("Expected 3 removals, got %d", len(removed))
	}

	records, err := db.GetDeletionsByRun(removed[0].RunID)
	if err != nil {
		t.Fatalf("GetDeletionsByRun failed: %v", err)
	}
	if len(records) != len(removed) {
		t.Fatalf("Expected %d records, got %d", len(removed), len(records))
	}
	for i := range removed {
		if records[i].Path != removed[i].Path {
			t.Errorf("record %d path = %s, want %s", i, records[i].Path, removed[i].Path)
		}
		if records[i].Action != cleanup.ActionDelete {
			t.Errorf("record %d action = %s, want DELETE", i, records[i].Action)
		}
	}
}
