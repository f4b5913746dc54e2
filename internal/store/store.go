// Package store is the optional durable backing for relay round state.
// Values are zstd-compressed; ciphertext blobs live under a sequence-keyed
// prefix so the upload order survives a restart.
package store

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"

	"fedrelay/internal/relay"
)

const (
	// syncInterval is the interval between WAL syncs.
	syncInterval = 100 * time.Millisecond
)

var (
	keyContext      = []byte("round/context")
	keyAggRequested = []byte("round/agg_requested")
	keyPlaintext    = []byte("round/plaintext")
	prefixCipher    = []byte("ct/")
)

// Store is a pebble-backed relay.RoundStore.
type Store struct {
	db       *pebble.DB    // db is the underlying Pebble database
	enc      *zstd.Encoder // enc compresses values at rest
	dec      *zstd.Decoder // dec decompresses values on read
	stopSync chan struct{} // stopSync signals the sync goroutine to stop
	wg       sync.WaitGroup
}

// Open creates a Store at the given path and starts the WAL sync loop.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(8 << 20), // 8 MB cache
		MemTableSize:                8 << 20,
		MemTableStopWritesThreshold: 2,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s:\n%w", path, err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd encoder:\n%w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd decoder:\n%w", err)
	}

	s := &Store{
		db:       db,
		enc:      enc,
		dec:      dec,
		stopSync: make(chan struct{}),
	}

	s.startSyncLoop()

	return s, nil
}

// SaveContext persists the public context bytes.
func (s *Store) SaveContext(ctx []byte) error {
	return s.set(keyContext, ctx)
}

// AppendCiphertext persists one blob under its upload sequence number.
func (s *Store) AppendCiphertext(seq uint64, blob []byte) error {
	return s.set(cipherKey(seq), blob)
}

// MarkAggRequested persists the aggregation-readiness marker.
func (s *Store) MarkAggRequested() error {
	return s.set(keyAggRequested, []byte{1})
}

// SavePlaintext persists the raw plaintext aggregate JSON.
func (s *Store) SavePlaintext(raw []byte) error {
	return s.set(keyPlaintext, raw)
}

// Reset deletes all round state. Called when a new context is published.
func (s *Store) Reset() error {
	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Delete(keyContext, nil); err != nil {
		return err
	}
	if err := batch.Delete(keyAggRequested, nil); err != nil {
		return err
	}
	if err := batch.Delete(keyPlaintext, nil); err != nil {
		return err
	}
	if err := batch.DeleteRange(prefixCipher, prefixUpperBound(prefixCipher), nil); err != nil {
		return err
	}

	return batch.Commit(pebble.NoSync)
}

// Load reads the persisted round state. Missing keys yield a zero snapshot.
func (s *Store) Load() (*relay.Snapshot, error) {
	snap := &relay.Snapshot{}

	ctx, err := s.get(keyContext)
	if err != nil {
		return nil, err
	}
	snap.Context = ctx

	marker, err := s.get(keyAggRequested)
	if err != nil {
		return nil, err
	}
	snap.AggRequested = marker != nil

	raw, err := s.get(keyPlaintext)
	if err != nil {
		return nil, err
	}
	snap.Plaintext = raw

	// Sequence keys are big-endian, so lexicographic iteration order is
	// upload order.
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefixCipher,
		UpperBound: prefixUpperBound(prefixCipher),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}

		blob, err := s.dec.DecodeAll(value, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress stored ciphertext:\n%w", err)
		}

		snap.Ciphertexts = append(snap.Ciphertexts, blob)
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return snap, nil
}

// Close stops the sync goroutine and closes the database after a final sync.
func (s *Store) Close() error {
	close(s.stopSync)
	s.wg.Wait()

	if err := s.sync(); err != nil {
		return err
	}

	s.enc.Close()
	s.dec.Close()

	return s.db.Close()
}

// set compresses and stores a value. Writes are NoSync; the background
// loop syncs the WAL.
func (s *Store) set(key, value []byte) error {
	return s.db.Set(key, s.enc.EncodeAll(value, nil), pebble.NoSync)
}

// get retrieves and decompresses a value. Returns nil if the key is absent.
func (s *Store) get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return s.dec.DecodeAll(value, nil)
}

// cipherKey builds the sequence key for one ciphertext blob.
func cipherKey(seq uint64) []byte {
	key := make([]byte, len(prefixCipher)+8)
	copy(key, prefixCipher)
	binary.BigEndian.PutUint64(key[len(prefixCipher):], seq)

	return key
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper
		}
	}

	return nil
}

// startSyncLoop starts the goroutine that periodically syncs the WAL.
func (s *Store) startSyncLoop() {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = s.sync()
			case <-s.stopSync:
				return
			}
		}
	}()
}

// sync forces a WAL sync to disk.
func (s *Store) sync() error {
	return s.db.LogData(nil, pebble.Sync)
}
