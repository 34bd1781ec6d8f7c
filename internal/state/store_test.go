package state

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/barline/internal/block"
)

var _ block.StateStore = (*Store)(nil)

type toggle struct {
	Swap  bool   `json:"swap"`
	Label string `json:"label,omitempty"`
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreLoadMissing(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	var v toggle
	ok, err := s.Load(context.Background(), "0:memory", &v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Fatal("expected nothing stored")
	}
}

func TestStoreSaveReplaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)

	if err := s.Save(ctx, "2:memory", toggle{Swap: true, Label: "x"}); err != nil {
		t.Fatalf("Save (1): %v", err)
	}
	if err := s.Save(ctx, "2:memory", toggle{Swap: false}); err != nil {
		t.Fatalf("Save (2): %v", err)
	}

	var got toggle
	ok, err := s.Load(ctx, "2:memory", &got)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	// the whole value is replaced, not merged
	if got != (toggle{}) {
		t.Fatalf("unexpected state: %+v", got)
	}

	raw, err := s.Get(ctx, "2:memory")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(raw) != `{"swap":false}` {
		t.Fatalf("raw = %s", raw)
	}
}

func TestStoreKeysAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestStore(t)
	for _, k := range []string{"3:temperature", "1:memory"} {
		if err := s.Save(ctx, k, toggle{}); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if strings.Join(keys, ",") != "1:memory,3:temperature" {
		t.Fatalf("keys = %v", keys)
	}

	if err := s.Delete(ctx, "1:memory"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := s.Load(ctx, "1:memory", &toggle{}); ok {
		t.Fatal("deleted key still loads")
	}
}

func TestStoreStateSizeLimit(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	big := strings.Repeat("a", DefaultMaxStateBytes+1)
	if err := s.Save(context.Background(), "0:text", toggle{Label: big}); err == nil {
		t.Fatal("expected size limit error, got nil")
	}
}

func TestStoreEmptyKey(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if err := s.Save(context.Background(), "", toggle{}); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestStoreClosedByShared(t *testing.T) {
	t.Parallel()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	shared := block.NewShared(nil, s, block.Shared{}.Theme)
	if err := shared.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Save(context.Background(), "0:x", toggle{}); err == nil {
		t.Fatal("expected error after the shared context closed the store")
	}
}
