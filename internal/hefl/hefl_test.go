package hefl

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
)

var (
	testCtxOnce sync.Once
	testCtx     *SecretContext
)

// testContext generates one secret context shared across tests; key
// generation is the expensive part.
func testContext(t *testing.T) *SecretContext {
	t.Helper()

	testCtxOnce.Do(func() {
		sc, err := GenSecretContext()
		if err != nil {
			t.Fatalf("generate secret context: %v", err)
		}
		testCtx = sc
	})

	if testCtx == nil {
		t.Fatal("secret context generation failed in an earlier test")
	}

	return testCtx
}

func TestPublicContext_RoundTrip(t *testing.T) {
	sc := testContext(t)

	data, err := sc.Public().MarshalBinary()
	if err != nil {
		t.Fatalf("marshal public context: %v", err)
	}

	if data[0] != tagPublic {
		t.Fatalf("expected public tag, got 0x%02x", data[0])
	}

	decoded := &PublicContext{}
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshal public context: %v", err)
	}

	// The decoded context must produce ciphertexts the original secret
	// context can decrypt.
	blob, err := EncryptVector(decoded, []float64{1.25, -0.5})
	if err != nil {
		t.Fatalf("encrypt under decoded context: %v", err)
	}

	got, err := DecryptAverage(sc, [][]byte{blob})
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}

	if len(got) != 2 || math.Abs(got[0]-1.25) > 1e-4 || math.Abs(got[1]+0.5) > 1e-4 {
		t.Errorf("round-trip mismatch: got %v", got)
	}
}

func TestPublicContext_RejectsSecretBytes(t *testing.T) {
	sc := testContext(t)

	data, err := sc.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal secret context: %v", err)
	}

	if data[0] != tagSecret {
		t.Fatalf("expected secret tag, got 0x%02x", data[0])
	}

	decoded := &PublicContext{}
	err = decoded.UnmarshalBinary(data)

	if !errors.Is(err, ErrSecretMaterial) {
		t.Errorf("expected ErrSecretMaterial, got %v", err)
	}
}

func TestSecretContext_RoundTrip(t *testing.T) {
	sc := testContext(t)

	data, err := sc.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal secret context: %v", err)
	}

	decoded := &SecretContext{}
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshal secret context: %v", err)
	}

	// The restored secret context must decrypt ciphertexts produced under
	// the original public context.
	blob, err := EncryptVector(sc.Public(), []float64{7.0})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := DecryptAverage(decoded, [][]byte{blob})
	if err != nil {
		t.Fatalf("decrypt under restored context: %v", err)
	}

	if len(got) != 1 || math.Abs(got[0]-7.0) > 1e-4 {
		t.Errorf("expected [7.0], got %v", got)
	}
}

func TestSecretContext_RejectsPublicBytes(t *testing.T) {
	sc := testContext(t)

	data, err := sc.Public().MarshalBinary()
	if err != nil {
		t.Fatalf("marshal public context: %v", err)
	}

	decoded := &SecretContext{}
	if err := decoded.UnmarshalBinary(data); err == nil {
		t.Error("expected error decoding public bytes as secret context")
	}
}

func TestDecryptAverage_TwoClients(t *testing.T) {
	sc := testContext(t)
	pc := sc.Public()

	a, b := 2.0, 4.0

	blobA, err := EncryptVector(pc, []float64{a})
	if err != nil {
		t.Fatalf("encrypt a: %v", err)
	}

	blobB, err := EncryptVector(pc, []float64{b})
	if err != nil {
		t.Fatalf("encrypt b: %v", err)
	}

	got, err := DecryptAverage(sc, [][]byte{blobA, blobB})
	if err != nil {
		t.Fatalf("decrypt average: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(got))
	}

	want := (a + b) / 2
	if math.Abs(got[0]-want) > 1e-3 {
		t.Errorf("average: got %v, want %v", got[0], want)
	}
}

func TestDecryptAverage_SingleCiphertext(t *testing.T) {
	sc := testContext(t)

	// A one-ciphertext round skips the reciprocal scaling; the decrypted
	// value must equal the uploaded vector, not a scale-corrupted residue.
	vec := []float64{7.0, -3.5}

	blob, err := EncryptVector(sc.Public(), vec)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := DecryptAverage(sc, [][]byte{blob})
	if err != nil {
		t.Fatalf("decrypt average: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(got))
	}

	for i := range vec {
		if math.Abs(got[i]-vec[i]) > 1e-4 {
			t.Errorf("slot %d: got %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestDecryptAverage_OversizedDimension(t *testing.T) {
	sc := testContext(t)

	blob, err := EncryptVector(sc.Public(), []float64{1.0})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Forge the dimension prefix beyond the slot capacity; the pass must
	// fail with a deserialization error, not panic on the slot slice.
	binary.BigEndian.PutUint32(blob[:4], uint32(sc.Params.MaxSlots()+1))

	if _, err := DecryptAverage(sc, [][]byte{blob}); err == nil {
		t.Error("expected error on oversized dimension prefix")
	}
}

func TestDecryptAverage_VectorValues(t *testing.T) {
	sc := testContext(t)
	pc := sc.Public()

	v1 := []float64{1.0, 2.0, 3.0}
	v2 := []float64{3.0, 2.0, 1.0}

	blob1, err := EncryptVector(pc, v1)
	if err != nil {
		t.Fatalf("encrypt v1: %v", err)
	}

	blob2, err := EncryptVector(pc, v2)
	if err != nil {
		t.Fatalf("encrypt v2: %v", err)
	}

	got, err := DecryptAverage(sc, [][]byte{blob1, blob2})
	if err != nil {
		t.Fatalf("decrypt average: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(got))
	}

	for i := range got {
		want := (v1[i] + v2[i]) / 2
		if math.Abs(got[i]-want) > 1e-3 {
			t.Errorf("slot %d: got %v, want %v", i, got[i], want)
		}
	}
}

func TestDecryptAverage_MalformedBlobAborts(t *testing.T) {
	sc := testContext(t)

	blob, err := EncryptVector(sc.Public(), []float64{1.0})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	garbage := bytes.Repeat([]byte{0x00, 0x00, 0x00, 0x01}, 3)

	if _, err := DecryptAverage(sc, [][]byte{blob, garbage}); err == nil {
		t.Error("expected error on malformed blob")
	}
}

func TestDecryptAverage_Empty(t *testing.T) {
	sc := testContext(t)

	if _, err := DecryptAverage(sc, nil); err == nil {
		t.Error("expected error on empty blob list")
	}
}

func TestEncryptVector_Empty(t *testing.T) {
	sc := testContext(t)

	if _, err := EncryptVector(sc.Public(), nil); err == nil {
		t.Error("expected error on empty vector")
	}
}
