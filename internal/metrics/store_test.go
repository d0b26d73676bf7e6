package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewStoreWithPath(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_stats.db")

	store, err := NewStoreWithPath(dbPath)
	if err != nil {
		t.Fatalf("NewStoreWithPath failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestIncrement(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_stats.db")

	store, err := NewStoreWithPath(dbPath)
	if err != nil {
		t.Fatalf("NewStoreWithPath failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Increment(ModeMCP); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	today := time.Now().Format("2006-01-02")
	count, err := store.GetCountByDate(ModeMCP, today)
	if err != nil {
		t.Fatalf("GetCountByDate failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected count 1, got %d", count)
	}

	if err := store.Increment(ModeMCP); err != nil {
		t.Fatalf("Second increment failed: %v", err)
	}

	count, err = store.GetCountByDate(ModeMCP, today)
	if err != nil {
		t.Fatalf("GetCountByDate failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}
}

func TestGetTotalByMode(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_stats.db")

	store, err := NewStoreWithPath(dbPath)
	if err != nil {
		t.Fatalf("NewStoreWithPath failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	for i := 0; i < 5; i++ {
		if err := store.Increment(ModeMCP); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		if err := store.Increment(ModeCLI); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
	}

	mcpTotal, err := store.GetTotalByMode(ModeMCP)
	if err != nil {
		t.Fatalf("GetTotalByMode failed: %v", err)
	}
	if mcpTotal != 5 {
		t.Errorf("Expected MCP total 5, got %d", mcpTotal)
	}

	cliTotal, err := store.GetTotalByMode(ModeCLI)
	if err != nil {
		t.Fatalf("GetTotalByMode failed: %v", err)
	}
	if cliTotal != 3 {
		t.Errorf("Expected CLI total 3, got %d", cliTotal)
	}
}

func TestGetAllTotals(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_stats.db")

	store, err := NewStoreWithPath(dbPath)
	if err != nil {
		t.Fatalf("NewStoreWithPath failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	_ = store.Increment(ModeMCP)
	_ = store.Increment(ModeMCP)
	_ = store.Increment(ModeCLI)

	totals, err := store.GetAllTotals()
	if err != nil {
		t.Fatalf("GetAllTotals failed: %v", err)
	}

	expected := map[Mode]int64{
		ModeMCP: 2,
		ModeCLI: 1,
	}

	for mode, expectedCount := range expected {
		if totals[mode] != expectedCount {
			t.Errorf("Mode %s: expected %d, got %d", mode, expectedCount, totals[mode])
		}
	}
}

func TestIncrementOutcome(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_stats.db")

	store, err := NewStoreWithPath(dbPath)
	if err != nil {
		t.Fatalf("NewStoreWithPath failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	_ = store.IncrementOutcome("tavily", OutcomeFulfilled)
	_ = store.IncrementOutcome("tavily", OutcomeFulfilled)
	_ = store.IncrementOutcome("tavily", OutcomeTimedOut)
	_ = store.IncrementOutcome("brave", OutcomeFailed)

	totals, err := store.GetOutcomeTotals()
	if err != nil {
		t.Fatalf("GetOutcomeTotals failed: %v", err)
	}

	if totals["tavily"][OutcomeFulfilled] != 2 {
		t.Errorf("Expected tavily fulfilled 2, got %d", totals["tavily"][OutcomeFulfilled])
	}
	if totals["tavily"][OutcomeTimedOut] != 1 {
		t.Errorf("Expected tavily timed_out 1, got %d", totals["tavily"][OutcomeTimedOut])
	}
	if totals["brave"][OutcomeFailed] != 1 {
		t.Errorf("Expected brave failed 1, got %d", totals["brave"][OutcomeFailed])
	}
}

func TestModeConstants(t *testing.T) {
	if ModeMCP != "mcp" {
		t.Errorf("ModeMCP expected 'mcp', got '%s'", ModeMCP)
	}
	if ModeCLI != "cli" {
		t.Errorf("ModeCLI expected 'cli', got '%s'", ModeCLI)
	}
}
