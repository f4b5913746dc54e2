package store

import (
	"bytes"
	"fmt"
	"testing"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	return s
}

func TestStore_ContextRoundTrip(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	ctx := bytes.Repeat([]byte("public context "), 100)

	if err := s.SaveContext(ctx); err != nil {
		t.Fatalf("save context: %v", err)
	}

	snap, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !bytes.Equal(snap.Context, ctx) {
		t.Errorf("context round-trip mismatch: got %d bytes, want %d", len(snap.Context), len(ctx))
	}
}

func TestStore_CiphertextOrder(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	const n = 20

	for i := 0; i < n; i++ {
		blob := []byte(fmt.Sprintf("ciphertext-%03d", i))
		if err := s.AppendCiphertext(uint64(i), blob); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	snap, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(snap.Ciphertexts) != n {
		t.Fatalf("expected %d ciphertexts, got %d", n, len(snap.Ciphertexts))
	}

	for i, blob := range snap.Ciphertexts {
		want := fmt.Sprintf("ciphertext-%03d", i)
		if string(blob) != want {
			t.Errorf("ciphertext %d: got %q, want %q", i, blob, want)
		}
	}
}

func TestStore_Reset(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	if err := s.SaveContext([]byte("ctx")); err != nil {
		t.Fatalf("save context: %v", err)
	}
	if err := s.AppendCiphertext(0, []byte("ct")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.MarkAggRequested(); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := s.SavePlaintext([]byte(`[1.0]`)); err != nil {
		t.Fatalf("save plaintext: %v", err)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	snap, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if snap.Context != nil || snap.Plaintext != nil || snap.AggRequested || len(snap.Ciphertexts) != 0 {
		t.Errorf("expected empty snapshot after reset, got %+v", snap)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s := openTestStore(t, dir)

	if err := s.SaveContext([]byte("persisted context")); err != nil {
		t.Fatalf("save context: %v", err)
	}
	if err := s.AppendCiphertext(0, []byte("persisted ct")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.MarkAggRequested(); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := s.SavePlaintext([]byte(`[3.14]`)); err != nil {
		t.Fatalf("save plaintext: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s = openTestStore(t, dir)
	defer s.Close()

	snap, err := s.Load()
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}

	if !bytes.Equal(snap.Context, []byte("persisted context")) {
		t.Errorf("context lost across reopen: got %q", snap.Context)
	}

	if len(snap.Ciphertexts) != 1 || !bytes.Equal(snap.Ciphertexts[0], []byte("persisted ct")) {
		t.Errorf("ciphertexts lost across reopen: got %v", snap.Ciphertexts)
	}

	if !snap.AggRequested {
		t.Error("readiness marker lost across reopen")
	}

	if string(snap.Plaintext) != `[3.14]` {
		t.Errorf("plaintext lost across reopen: got %q", snap.Plaintext)
	}
}
