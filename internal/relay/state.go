// Package relay implements the aggregator side of the federated round: an
// HTTP/JSON relay over one round of shared state. The relay stores opaque
// encrypted payloads and never holds secret-key material; all homomorphic
// computation happens on the keyholder.
package relay

import (
	"encoding/json"
	"sync"

	"fedrelay/internal/logger"
)

// Snapshot is the persisted round state returned by RoundStore.Load.
type Snapshot struct {
	Context      []byte   // Context is the public context bytes, nil if unset
	Ciphertexts  [][]byte // Ciphertexts is the stored blobs in append order
	AggRequested bool     // AggRequested is the aggregation-readiness marker
	Plaintext    []byte   // Plaintext is the raw plaintext aggregate JSON, nil if unset
}

// RoundStore persists round state across relay restarts.
// All writes are best-effort: the relay logs failures and keeps serving.
type RoundStore interface {
	SaveContext(ctx []byte) error
	AppendCiphertext(seq uint64, blob []byte) error
	MarkAggRequested() error
	SavePlaintext(raw []byte) error
	Reset() error
	Load() (*Snapshot, error)
}

// State holds one aggregation round. All access goes through the mutex; the
// relay offers no ordering guarantee beyond that between concurrent uploads
// and a concurrent re-initialization.
type State struct {
	mu            sync.Mutex
	publicContext []byte          // publicContext is the keyholder-published context, no secret key
	ciphertexts   [][]byte        // ciphertexts is the upload log in append order
	aggRequested  bool            // aggRequested marks that an aggregation pass was requested
	plaintext     json.RawMessage // plaintext is the last published aggregate, overwritten per publish

	store RoundStore // store is the optional durable backing, nil disables persistence
}

// NewState creates an empty round state. store may be nil.
func NewState(store RoundStore) *State {
	return &State{store: store}
}

// Restore loads persisted round state from the store, if any.
func (s *State) Restore() error {
	if s.store == nil {
		return nil
	}

	snap, err := s.store.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.publicContext = snap.Context
	s.ciphertexts = snap.Ciphertexts
	s.aggRequested = snap.AggRequested
	s.plaintext = snap.Plaintext

	if snap.Context != nil || len(snap.Ciphertexts) > 0 {
		logger.Info("restored round state",
			"context", snap.Context != nil,
			"ciphertexts", len(snap.Ciphertexts),
			"plaintext", snap.Plaintext != nil,
		)
	}

	return nil
}

// SetPublicContext stores the public context and starts a fresh round:
// previously stored ciphertexts, the readiness marker, and any prior
// plaintext result are cleared.
func (s *State) SetPublicContext(ctx []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.publicContext = ctx
	s.ciphertexts = nil
	s.aggRequested = false
	s.plaintext = nil

	if s.store != nil {
		if err := s.store.Reset(); err != nil {
			logger.Warn("reset round store", "error", err)
		}
		if err := s.store.SaveContext(ctx); err != nil {
			logger.Warn("persist public context", "error", err)
		}
	}
}

// PublicContext returns the stored context bytes, or false if uninitialized.
func (s *State) PublicContext() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.publicContext == nil {
		return nil, false
	}

	return s.publicContext, true
}

// AppendCiphertext appends one opaque blob and returns the new count.
// No deduplication, no per-client identity.
func (s *State) AppendCiphertext(blob []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := uint64(len(s.ciphertexts))
	s.ciphertexts = append(s.ciphertexts, blob)

	if s.store != nil {
		if err := s.store.AppendCiphertext(seq, blob); err != nil {
			logger.Warn("persist ciphertext", "seq", seq, "error", err)
		}
	}

	return len(s.ciphertexts)
}

// Ciphertexts returns a copy of the stored blob sequence in append order.
func (s *State) Ciphertexts() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]byte, len(s.ciphertexts))
	copy(out, s.ciphertexts)

	return out
}

// Count returns the number of stored ciphertexts.
func (s *State) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.ciphertexts)
}

// RequestAggregation sets the readiness marker and returns the ciphertext
// count. Returns false when no ciphertexts are stored; no computation is
// performed either way.
func (s *State) RequestAggregation() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ciphertexts) == 0 {
		return 0, false
	}

	s.aggRequested = true

	if s.store != nil {
		if err := s.store.MarkAggRequested(); err != nil {
			logger.Warn("persist readiness marker", "error", err)
		}
	}

	return len(s.ciphertexts), true
}

// AggregationRequested reports whether an aggregation pass was requested
// since the last context initialization.
func (s *State) AggregationRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.aggRequested
}

// SetPlaintext overwrites the stored plaintext aggregate unconditionally.
func (s *State) SetPlaintext(raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plaintext = raw

	if s.store != nil {
		if err := s.store.SavePlaintext(raw); err != nil {
			logger.Warn("persist plaintext aggregate", "error", err)
		}
	}
}

// Plaintext returns the stored plaintext aggregate, or false if none was
// published since the last context initialization.
func (s *State) Plaintext() (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.plaintext == nil {
		return nil, false
	}

	return s.plaintext, true
}
