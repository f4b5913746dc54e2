// Package hefl wraps the homomorphic-encryption scheme used for federated
// averaging. The scheme itself (CKKS via Lattigo) is consumed as a black box;
// this package only fixes the parameter profile, the public/secret context
// split, and the byte formats exchanged through the relay.
//
// PublicContext and SecretContext are distinct types with distinct wire tags
// so that secret-bearing bytes cannot be decoded where public bytes are
// expected: the separation is structural, not conventional.
package hefl

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

const (
	// tagPublic marks a serialized context without secret-key material.
	tagPublic = 0x01

	// tagSecret marks a serialized context carrying the secret key.
	tagSecret = 0x02
)

// ErrSecretMaterial is returned when secret-bearing bytes are decoded where
// a public context is expected.
var ErrSecretMaterial = errors.New("context bytes carry secret-key material")

// PublicContext holds everything a client needs to produce compatible
// ciphertexts: scheme parameters and the encryption key. It cannot decrypt.
type PublicContext struct {
	Params ckks.Parameters // Params is the CKKS parameter set
	PK     *rlwe.PublicKey // PK is the encryption key
}

// SecretContext is a PublicContext plus the secret key. It never leaves the
// keyholder's local storage.
type SecretContext struct {
	Params ckks.Parameters // Params is the CKKS parameter set
	PK     *rlwe.PublicKey // PK is the encryption key
	SK     *rlwe.SecretKey // SK is the decryption key, local-only
}

// defaultParameters returns the fixed CKKS profile: ring degree 2^13,
// moduli 60/40/40/60, scale 2^40.
func defaultParameters() (ckks.Parameters, error) {
	return ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
		LogN:            13,
		LogQ:            []int{60, 40, 40, 60},
		LogP:            []int{61},
		LogDefaultScale: 40,
	})
}

// GenSecretContext generates a fresh context with secret-key material.
func GenSecretContext() (*SecretContext, error) {
	params, err := defaultParameters()
	if err != nil {
		return nil, fmt.Errorf("build parameters:\n%w", err)
	}

	kgen := rlwe.NewKeyGenerator(params)
	sk := kgen.GenSecretKeyNew()
	pk := kgen.GenPublicKeyNew(sk)

	return &SecretContext{Params: params, PK: pk, SK: sk}, nil
}

// Public derives the secret-free context for publication.
func (sc *SecretContext) Public() *PublicContext {
	return &PublicContext{Params: sc.Params, PK: sc.PK}
}

// MarshalBinary serializes the public context with the public tag.
func (pc *PublicContext) MarshalBinary() ([]byte, error) {
	return marshalSections(tagPublic, pc.Params, pc.PK)
}

// UnmarshalBinary decodes a public context. Secret-bearing bytes are
// rejected with ErrSecretMaterial.
func (pc *PublicContext) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty context bytes")
	}

	if data[0] == tagSecret {
		return ErrSecretMaterial
	}

	if data[0] != tagPublic {
		return fmt.Errorf("unknown context tag 0x%02x", data[0])
	}

	rest, err := unmarshalSection(data[1:], &pc.Params)
	if err != nil {
		return fmt.Errorf("decode parameters:\n%w", err)
	}

	pc.PK = &rlwe.PublicKey{}
	if _, err := unmarshalSection(rest, pc.PK); err != nil {
		return fmt.Errorf("decode public key:\n%w", err)
	}

	return nil
}

// MarshalBinary serializes the full secret-bearing context with the
// secret tag. Only ever written to the keyholder's local storage.
func (sc *SecretContext) MarshalBinary() ([]byte, error) {
	return marshalSections(tagSecret, sc.Params, sc.PK, sc.SK)
}

// UnmarshalBinary decodes a secret context.
func (sc *SecretContext) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty context bytes")
	}

	if data[0] != tagSecret {
		return fmt.Errorf("not a secret context (tag 0x%02x)", data[0])
	}

	rest, err := unmarshalSection(data[1:], &sc.Params)
	if err != nil {
		return fmt.Errorf("decode parameters:\n%w", err)
	}

	sc.PK = &rlwe.PublicKey{}
	rest, err = unmarshalSection(rest, sc.PK)
	if err != nil {
		return fmt.Errorf("decode public key:\n%w", err)
	}

	sc.SK = &rlwe.SecretKey{}
	if _, err := unmarshalSection(rest, sc.SK); err != nil {
		return fmt.Errorf("decode secret key:\n%w", err)
	}

	return nil
}

// binaryMarshaler is the subset of encoding implemented by all Lattigo
// objects carried in a context.
type binaryMarshaler interface {
	MarshalBinary() ([]byte, error)
}

// marshalSections concatenates a tag byte and u32-length-prefixed sections.
func marshalSections(tag byte, parts ...binaryMarshaler) ([]byte, error) {
	out := []byte{tag}

	for i, p := range parts {
		b, err := p.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("marshal section %d:\n%w", i, err)
		}

		var size [4]byte
		binary.BigEndian.PutUint32(size[:], uint32(len(b)))

		out = append(out, size[:]...)
		out = append(out, b...)
	}

	return out, nil
}

// unmarshalSection decodes one u32-length-prefixed section into dst and
// returns the remaining bytes.
func unmarshalSection(data []byte, dst interface{ UnmarshalBinary([]byte) error }) ([]byte, error) {
	if len(data) < 4 {
		return nil, errors.New("truncated section header")
	}

	size := binary.BigEndian.Uint32(data[:4])
	data = data[4:]

	if uint32(len(data)) < size {
		return nil, fmt.Errorf("truncated section: want %d bytes, have %d", size, len(data))
	}

	if err := dst.UnmarshalBinary(data[:size]); err != nil {
		return nil, err
	}

	return data[size:], nil
}
