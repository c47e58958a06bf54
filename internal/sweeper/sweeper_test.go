package sweeper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"adaptrix/internal/storage"
)

type stubRefs struct {
	referenced map[string]bool
	failures   map[string]int
	calls      map[string]int
}

func (s *stubRefs) PathReferenced(_ context.Context, path string) (bool, error) {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[path]++
	if s.failures[path] > 0 {
		s.failures[path]--
		return false, errors.New("connection reset")
	}
	return s.referenced[path], nil
}

func writeObject(t *testing.T, root, key string, age time.Duration) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	mod := time.Now().Add(-age)
	if err := os.Chtimes(full, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestSweepOnce(t *testing.T) {
	root := t.TempDir()
	store, err := storage.NewFileStore(root, "http://localhost/static")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	writeObject(t, root, "user-1/old-orphan.mp4", 2*time.Hour)
	writeObject(t, root, "user-1/old-kept.mp4", 2*time.Hour)
	writeObject(t, root, "user-1/fresh.mp4", time.Minute)
	writeObject(t, root, "user-1/flaky.mp4", 2*time.Hour)

	refs := &stubRefs{
		referenced: map[string]bool{"user-1/old-kept.mp4": true, "user-1/flaky.mp4": true},
		failures:   map[string]int{"user-1/flaky.mp4": 1},
	}
	sw, err := New(store, refs, Options{Grace: time.Hour, MaxTries: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := sw.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if res.Scanned != 4 || res.Deleted != 1 || res.Kept != 2 || res.Young != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, "user-1", "old-orphan.mp4")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("orphan still present: %v", err)
	}
	for _, key := range []string{"old-kept.mp4", "fresh.mp4", "flaky.mp4"} {
		if _, err := os.Stat(filepath.Join(root, "user-1", key)); err != nil {
			t.Fatalf("%s removed: %v", key, err)
		}
	}
	if refs.calls["user-1/flaky.mp4"] != 2 {
		t.Fatalf("flaky lookups = %d, want 2", refs.calls["user-1/flaky.mp4"])
	}
	if refs.calls["user-1/fresh.mp4"] != 0 {
		t.Fatal("young objects must not be checked")
	}
}

func TestSweepKeepsOnPersistentLookupFailure(t *testing.T) {
	root := t.TempDir()
	store, _ := storage.NewFileStore(root, "http://localhost/static")
	writeObject(t, root, "user-1/a.mp4", 2*time.Hour)
	refs := &stubRefs{failures: map[string]int{"user-1/a.mp4": 10}}
	sw, _ := New(store, refs, Options{Grace: time.Hour, MaxTries: 2})

	res, err := sw.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if res.Failed != 1 || res.Deleted != 0 {
		t.Fatalf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, "user-1", "a.mp4")); err != nil {
		t.Fatalf("object removed despite failed lookup: %v", err)
	}
}
