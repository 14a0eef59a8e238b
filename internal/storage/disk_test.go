package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "catalog.db")
	if err := os.WriteFile(db, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(db+"-wal", []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := DiskUsageBytes(db, db+"-wal", db+"-shm")
	if err != nil {
		t.Fatal(err)
	}
	if got != 8 {
		t.Errorf("got %d bytes, want 8 (missing -shm skipped)", got)
	}

	got, err = DiskUsageBytes("", db, dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("got %d bytes, want 5 (empty path and directory skipped)", got)
	}
}
