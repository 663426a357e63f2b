package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
)

// backends returns a fresh instance of every store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	file, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	bdg, err := OpenBadger(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { bdg.Close() })

	return map[string]Store{
		"file":   file,
		"memory": NewMemory(),
		"badger": bdg,
	}
}

// TestStoreRoundTrip verifies the shared contract across backends
func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, "mal_tokens.json"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := s.Put(ctx, "mal_tokens.json", []byte(`{"a":1}`)); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := s.Put(ctx, "mal_tokens.json", []byte(`{"a":2}`)); err != nil {
				t.Fatalf("Put overwrite: %v", err)
			}

			got, err := s.Get(ctx, "mal_tokens.json")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != `{"a":2}` {
				t.Errorf("expected overwritten value, got %s", got)
			}

			if err := s.Delete(ctx, "mal_tokens.json"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(ctx, "mal_tokens.json"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

// TestFileConcurrentPuts verifies concurrent writers never leave a torn blob
func TestFileConcurrentPuts(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			val := strings.Repeat(fmt.Sprintf("%02d", i), 2048)
			if err := s.Put(ctx, "blob", []byte(val)); err != nil {
				t.Errorf("Put: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, "blob")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 4096 || strings.Count(string(got), string(got[:2])) != 2048 {
		t.Errorf("blob is torn: %q...", got[:16])
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected no temp files left, found %d entries", len(entries))
	}
}

// TestFileRejectsPathKeys verifies keys cannot escape the directory
func TestFileRejectsPathKeys(t *testing.T) {
	s, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	for _, key := range []string{"", "..", "../x", "a/b"} {
		if err := s.Put(context.Background(), key, []byte("x")); err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
}
