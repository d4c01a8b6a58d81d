package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arijanluiken/tradescript/pkg/exchanges"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew(t *testing.T) {
	t.Run("creates database and runs migrations", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := New(dbPath)
		if err != nil {
			t.Fatalf("expected no error creating database, got %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("expected database file to be created")
		}

		if db.SchemaVersion() != 3 {
			t.Errorf("expected schema version 3, got %d", db.SchemaVersion())
		}

		tables := []string{"scripts", "script_runs", "klines"}
		for _, table := range tables {
			var count int
			if err := db.conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
				t.Errorf("expected table %s to exist, got error: %v", table, err)
			}
		}
	})

	t.Run("reopens an existing database", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")
		first, err := New(dbPath)
		if err != nil {
			t.Fatalf("expected no error creating database, got %v", err)
		}
		first.Close()

		second, err := New(dbPath)
		if err != nil {
			t.Fatalf("expected no error reopening database, got %v", err)
		}
		defer second.Close()
		if second.SchemaVersion() != 3 {
			t.Errorf("expected schema version 3 after reopen, got %d", second.SchemaVersion())
		}
	})

	t.Run("fails with invalid path", func(t *testing.T) {
		if _, err := New("/nonexistent/directory/test.db"); err == nil {
			t.Error("expected error for invalid path, got nil")
		}
	})
}

func TestScripts(t *testing.T) {
	db := newTestDB(t)

	script := &Script{Name: "trend", Description: "sma cross", Source: "sma(close, 3)"}
	if err := db.SaveScript(script); err != nil {
		t.Fatalf("expected no error saving script, got %v", err)
	}
	if script.ID == 0 {
		t.Error("expected script ID to be set after save")
	}
	created := script.CreatedAt

	t.Run("updates existing script on conflict", func(t *testing.T) {
		update := &Script{Name: "trend", Source: "ema(close, 3)"}
		if err := db.SaveScript(update); err != nil {
			t.Fatalf("expected no error updating script, got %v", err)
		}
		if update.ID != script.ID {
			t.Errorf("expected id %d to be kept, got %d", script.ID, update.ID)
		}
		if !update.CreatedAt.Equal(created) {
			t.Errorf("expected created_at %v to be kept, got %v", created, update.CreatedAt)
		}

		got, err := db.GetScript("trend")
		if err != nil {
			t.Fatalf("expected no error getting script, got %v", err)
		}
		if got.Source != "ema(close, 3)" {
			t.Errorf("expected updated source, got %q", got.Source)
		}
	})

	t.Run("lists scripts by name", func(t *testing.T) {
		if err := db.SaveScript(&Script{Name: "alpha", Source: "1"}); err != nil {
			t.Fatalf("failed to save script: %v", err)
		}
		scripts, err := db.ListScripts()
		if err != nil {
			t.Fatalf("expected no error listing scripts, got %v", err)
		}
		if len(scripts) != 2 || scripts[0].Name != "alpha" {
			t.Errorf("expected [alpha trend], got %d scripts", len(scripts))
		}
	})

	t.Run("deletes scripts", func(t *testing.T) {
		if err := db.DeleteScript("alpha"); err != nil {
			t.Fatalf("expected no error deleting script, got %v", err)
		}
		if _, err := db.GetScript("alpha"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := db.DeleteScript("alpha"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound deleting twice, got %v", err)
		}
	})
}

func TestRuns(t *testing.T) {
	db := newTestDB(t)

	runs := []*Run{
		{ScriptName: "trend", Status: "success", DurationMs: 3, Result: `{"value":1}`},
		{ScriptName: "other", Status: "error", Error: "line 1:1: boom"},
		{ScriptName: "trend", Status: "success", DurationMs: 5},
	}
	for _, r := range runs {
		if err := db.SaveRun(r); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		if r.ID == 0 {
			t.Error("expected run ID to be set after save")
		}
	}

	t.Run("filters by script and orders newest first", func(t *testing.T) {
		got, err := db.ListRuns("trend", 10)
		if err != nil {
			t.Fatalf("expected no error listing runs, got %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(got))
		}
		if got[0].DurationMs != 5 {
			t.Errorf("expected newest run first, got duration %d", got[0].DurationMs)
		}
	})

	t.Run("lists every run with limit", func(t *testing.T) {
		got, err := db.ListRuns("", 2)
		if err != nil {
			t.Fatalf("expected no error listing runs, got %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 runs, got %d", len(got))
		}
		if got[1].Error != "line 1:1: boom" {
			t.Errorf("expected error run second, got %q", got[1].Error)
		}
	})
}

func TestKlines(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var klines []*exchanges.Kline
	for i := 0; i < 5; i++ {
		klines = append(klines, &exchanges.Kline{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      float64(i),
			High:      float64(i) + 1,
			Low:       float64(i) - 1,
			Close:     float64(i) + 0.5,
			Volume:    100,
		})
	}

	if err := db.SaveKlines("bybit", "BTCUSDT", "1h", klines); err != nil {
		t.Fatalf("expected no error saving klines, got %v", err)
	}
	// Saving again must not duplicate bars
	if err := db.SaveKlines("bybit", "BTCUSDT", "1h", klines[3:]); err != nil {
		t.Fatalf("expected no error re-saving klines, got %v", err)
	}

	got, err := db.GetKlines("bybit", "BTCUSDT", "1h", 3)
	if err != nil {
		t.Fatalf("expected no error getting klines, got %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 klines, got %d", len(got))
	}
	if got[0].Open != 2 || got[2].Open != 4 {
		t.Errorf("expected newest three bars oldest first, got opens %f..%f", got[0].Open, got[2].Open)
	}
	if !got[2].Timestamp.Equal(base.Add(4 * time.Hour)) {
		t.Errorf("expected timestamp %v, got %v", base.Add(4*time.Hour), got[2].Timestamp)
	}

	none, err := db.GetKlines("bitvavo", "BTCUSDT", "1h", 3)
	if err != nil {
		t.Fatalf("expected no error for empty cache, got %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no klines, got %d", len(none))
	}
}
