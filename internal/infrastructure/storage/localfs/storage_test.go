package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	storage, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	location, err := storage.Save(context.Background(), "aiparati_516807706.json", strings.NewReader(`{"ok":true}`), 11)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if location != filepath.Join(dir, "aiparati_516807706.json") {
		t.Fatalf("unexpected location %s", location)
	}

	rc, err := storage.Open(context.Background(), "aiparati_516807706.json")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != `{"ok":true}` {
		t.Fatalf("unexpected content %q", data)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left, got %d entries", len(entries))
	}
}

func TestSaveKeepsFilesInsideBase(t *testing.T) {
	dir := t.TempDir()
	storage, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	location, err := storage.Save(context.Background(), "../../etc/report.xlsx", strings.NewReader("x"), 1)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if filepath.Dir(location) != dir {
		t.Fatalf("expected file inside %s, got %s", dir, location)
	}

	if _, err := storage.Save(context.Background(), "..", strings.NewReader("x"), 1); err == nil {
		t.Fatalf("expected invalid key error")
	}
}
