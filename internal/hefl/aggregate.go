package hefl

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// EncryptVector encrypts an update vector under the public context and
// returns the ciphertext blob uploaded to the relay. The blob prefixes the
// vector dimension so the keyholder can trim the decoded slots; the relay
// treats the whole blob as opaque bytes.
func EncryptVector(pc *PublicContext, vec []float64) ([]byte, error) {
	if len(vec) == 0 {
		return nil, errors.New("empty update vector")
	}

	if len(vec) > pc.Params.MaxSlots() {
		return nil, fmt.Errorf("vector dimension %d exceeds slot capacity %d", len(vec), pc.Params.MaxSlots())
	}

	pt := ckks.NewPlaintext(pc.Params, pc.Params.MaxLevel())

	encoder := ckks.NewEncoder(pc.Params)
	if err := encoder.Encode(vec, pt); err != nil {
		return nil, fmt.Errorf("encode update vector:\n%w", err)
	}

	ct, err := rlwe.NewEncryptor(pc.Params, pc.PK).EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("encrypt update vector:\n%w", err)
	}

	ctBytes, err := ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal ciphertext:\n%w", err)
	}

	blob := make([]byte, 4+len(ctBytes))
	binary.BigEndian.PutUint32(blob[:4], uint32(len(vec)))
	copy(blob[4:], ctBytes)

	return blob, nil
}

// DecryptAverage deserializes every uploaded blob under the secret context,
// sums them homomorphically, scales by the reciprocal of the count, decrypts,
// and returns the averaged vector. Any blob that fails to deserialize aborts
// the whole pass.
func DecryptAverage(sc *SecretContext, blobs [][]byte) ([]float64, error) {
	if len(blobs) == 0 {
		return nil, errors.New("no ciphertexts to aggregate")
	}

	cts := make([]*rlwe.Ciphertext, len(blobs))
	dim := 0

	for i, blob := range blobs {
		ct, d, err := decodeBlob(blob, sc.Params.MaxSlots())
		if err != nil {
			return nil, fmt.Errorf("deserialize ciphertext %d:\n%w", i, err)
		}

		cts[i] = ct
		if d > dim {
			dim = d
		}
	}

	eval := ckks.NewEvaluator(sc.Params, nil)

	agg := cts[0]
	for _, ct := range cts[1:] {
		if err := eval.Add(agg, ct, agg); err != nil {
			return nil, fmt.Errorf("homomorphic add:\n%w", err)
		}
	}

	// Average: multiply the encrypted sum by 1/n, then drop the extra scale.
	// A single ciphertext is already the average; multiplying it by the
	// integer constant 1 leaves the scale unchanged, so the rescale would
	// corrupt it.
	if len(cts) > 1 {
		if err := eval.Mul(agg, 1.0/float64(len(cts)), agg); err != nil {
			return nil, fmt.Errorf("scale by reciprocal:\n%w", err)
		}
		if err := eval.Rescale(agg, agg); err != nil {
			return nil, fmt.Errorf("rescale:\n%w", err)
		}
	}

	pt := rlwe.NewDecryptor(sc.Params, sc.SK).DecryptNew(agg)

	slots := make([]float64, sc.Params.MaxSlots())
	if err := ckks.NewEncoder(sc.Params).Decode(pt, slots); err != nil {
		return nil, fmt.Errorf("decode plaintext:\n%w", err)
	}

	return slots[:dim], nil
}

// decodeBlob splits a ciphertext blob into its Lattigo ciphertext and the
// vector dimension recorded at encryption time. The prefix comes from an
// unauthenticated upload and is validated against the slot capacity.
func decodeBlob(blob []byte, maxSlots int) (*rlwe.Ciphertext, int, error) {
	if len(blob) < 4 {
		return nil, 0, errors.New("blob too short")
	}

	dim := int(binary.BigEndian.Uint32(blob[:4]))
	if dim == 0 {
		return nil, 0, errors.New("zero vector dimension")
	}

	if dim > maxSlots {
		return nil, 0, fmt.Errorf("vector dimension %d exceeds slot capacity %d", dim, maxSlots)
	}

	ct := &rlwe.Ciphertext{}
	if err := ct.UnmarshalBinary(blob[4:]); err != nil {
		return nil, 0, err
	}

	return ct, dim, nil
}
