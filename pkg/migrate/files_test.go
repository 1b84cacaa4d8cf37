package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateAtWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	path, err := createAt(dir, "Add Order Index!", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260501093000_add_order_index.sql" {
		t.Fatalf("unexpected file name %s", filepath.Base(path))
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := createAt(dir, "add order index", now); err == nil {
		t.Fatal("expected second create with same version to fail")
	}
}

func TestCreateAtRejectsEmptySlug(t *testing.T) {
	if _, err := createAt(t.TempDir(), " !!! ", time.Now()); err == nil {
		t.Fatal("expected error for unusable name")
	}
}

func TestValidateDirCatchesUnbalancedBlocks(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	if err := os.WriteFile(filepath.Join(dir, "20260501093000_broken.sql"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	err := ValidateDir(dir)
	if err == nil || !strings.Contains(err.Error(), "StatementBegin") {
		t.Fatalf("expected unbalanced block error, got %v", err)
	}
}

func TestNewRunnerRequiresInputs(t *testing.T) {
	if _, err := NewRunner(nil, DefaultDir); err == nil {
		t.Fatalf("expected error for nil db")
	}
}
