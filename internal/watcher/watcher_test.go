// file: internal/watcher/watcher_test.go
// version: 2.0.0
// guid: a1b2c3d4-e5f6-7890-abcd-ef1234567890

package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestIsDocumentFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"catalog.json", true},
		{"catalog.JSON", true},
		{".json", true},
		{"catalog.json.tmp", false},
		{"catalog.yaml", false},
		{"catalog", false},
	}
	for _, tt := range tests {
		if got := IsDocumentFile(tt.name); got != tt.want {
			t.Errorf("IsDocumentFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDebounceSingleDocument(t *testing.T) {
	dir := t.TempDir()

	var calls atomic.Int32
	w := New(func(path string) {
		calls.Add(1)
	}, 100*time.Millisecond, nil)

	if err := w.Start(dir); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	f := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(f, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	// Wait for debounce + buffer.
	time.Sleep(300 * time.Millisecond)

	if c := calls.Load(); c != 1 {
		t.Errorf("expected 1 callback, got %d", c)
	}
}

func TestDebounceCollapsesBurstWrites(t *testing.T) {
	dir := t.TempDir()

	var calls atomic.Int32
	w := New(func(path string) {
		calls.Add(1)
	}, 200*time.Millisecond, nil)

	if err := w.Start(dir); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Rapid-fire writes to the same document within the debounce window.
	f := filepath.Join(dir, "catalog.json")
	for i := 0; i < 5; i++ {
		_ = os.WriteFile(f, []byte("{}"), 0644)
		time.Sleep(30 * time.Millisecond)
	}

	time.Sleep(400 * time.Millisecond)

	if c := calls.Load(); c != 1 {
		t.Errorf("expected exactly 1 debounced callback, got %d", c)
	}
}

func TestDistinctDocumentsDebounceIndependently(t *testing.T) {
	dir := t.TempDir()

	var calls atomic.Int32
	w := New(func(path string) {
		calls.Add(1)
	}, 100*time.Millisecond, nil)

	if err := w.Start(dir); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	_ = os.WriteFile(filepath.Join(dir, "first.json"), []byte("{}"), 0644)
	_ = os.WriteFile(filepath.Join(dir, "second.json"), []byte("{}"), 0644)

	time.Sleep(300 * time.Millisecond)

	if c := calls.Load(); c != 2 {
		t.Errorf("expected 2 callbacks for distinct documents, got %d", c)
	}
}

func TestNonDocumentFilesIgnored(t *testing.T) {
	dir := t.TempDir()

	var calls atomic.Int32
	w := New(func(path string) {
		calls.Add(1)
	}, 100*time.Millisecond, nil)

	if err := w.Start(dir); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	_ = os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0644)
	_ = os.WriteFile(filepath.Join(dir, "catalog.json.tmp"), []byte("{}"), 0644)

	time.Sleep(300 * time.Millisecond)

	if c := calls.Load(); c != 0 {
		t.Errorf("expected 0 callbacks for non-document files, got %d", c)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := New(func(string) {}, 100*time.Millisecond, nil)
	if err := w.Start(dir); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop() // should not panic
}

func TestStartIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := New(func(string) {}, 100*time.Millisecond, nil)
	if err := w.Start(dir); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	// Second start should be a no-op.
	if err := w.Start(dir); err != nil {
		t.Fatal(err)
	}
}

func TestRemovalDoesNotTrigger(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "catalog.json")
	_ = os.WriteFile(f, []byte("{}"), 0644)

	var calls atomic.Int32
	w := New(func(string) {
		calls.Add(1)
	}, 100*time.Millisecond, nil)

	if err := w.Start(dir); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Give watcher time to register.
	time.Sleep(50 * time.Millisecond)

	_ = os.Remove(f)
	time.Sleep(300 * time.Millisecond)

	// A removed document has nothing to import.
	if c := calls.Load(); c != 0 {
		t.Errorf("expected no callback on deletion, got %d", c)
	}
}
