// Package party implements the three mutually exclusive participant roles
// of an aggregation round: keyholder, client, and decryptor. Each role runs
// once and returns; orchestration across processes is by convention
// (keyholder first, then clients, then the keyholder again as decryptor).
package party

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"fedrelay/client"
	"fedrelay/internal/dataset"
	"fedrelay/internal/hefl"
	"fedrelay/internal/logger"
)

// DefaultSecretPath is where the keyholder persists its secret context.
const DefaultSecretPath = "local_secret_context.bin"

// RunKeyholder generates a fresh encryption context, publishes the public
// part to the aggregator, and persists the secret-bearing part locally.
// Must run before any client, once per round.
func RunKeyholder(cli *client.Client, secretPath string) error {
	sc, err := hefl.GenSecretContext()
	if err != nil {
		return fmt.Errorf("generate context:\n%w", err)
	}

	pubBytes, err := sc.Public().MarshalBinary()
	if err != nil {
		return fmt.Errorf("serialize public context:\n%w", err)
	}

	if err := cli.InitPublicContext(pubBytes); err != nil {
		return err
	}

	secretBytes, err := sc.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serialize secret context:\n%w", err)
	}

	if err := os.WriteFile(secretPath, secretBytes, 0600); err != nil {
		return fmt.Errorf("save secret context to %s:\n%w", secretPath, err)
	}

	logger.Info("public context published, secret context saved",
		"public_bytes", len(pubBytes),
		"secret_path", secretPath,
	)

	return nil
}

// RunClient builds a local update vector, encrypts it under the published
// public context, and uploads the ciphertext. dataURL points at the
// statistics API used as the sample data source.
//
// With insecureFallback set, encryption is skipped entirely and the raw
// vector is uploaded as JSON. This degraded mode exposes the update in
// plaintext and must be requested explicitly.
func RunClient(cli *client.Client, dataURL string, insecureFallback bool) error {
	vec := dataset.UpdateVector(dataURL)

	if insecureFallback {
		logger.Warn("INSECURE FALLBACK: uploading unencrypted update vector")
		return uploadPlainVector(cli, vec)
	}

	ctxBytes, err := cli.PublicContext()
	if errors.Is(err, client.ErrNoContext) {
		return fmt.Errorf("no public context available; run the keyholder role first:\n%w", err)
	}
	if err != nil {
		return err
	}

	pc := &hefl.PublicContext{}
	if err := pc.UnmarshalBinary(ctxBytes); err != nil {
		return fmt.Errorf("decode public context:\n%w", err)
	}

	blob, err := hefl.EncryptVector(pc, vec)
	if err != nil {
		return fmt.Errorf("encrypt update vector:\n%w", err)
	}

	stored, digest, err := cli.UploadCiphertext(blob)
	if err != nil {
		return err
	}

	logger.Info("encrypted update uploaded",
		"dim", len(vec),
		"stored", stored,
		"digest", digest[:16],
	)

	return nil
}

// RunDecryptor loads the locally retained secret context, fetches every
// uploaded ciphertext, averages them homomorphically, decrypts, and
// publishes the plaintext aggregate. A single undecodable ciphertext
// aborts the pass.
func RunDecryptor(cli *client.Client, secretPath string) error {
	secretBytes, err := os.ReadFile(secretPath)
	if err != nil {
		return fmt.Errorf("load secret context from %s:\n%w", secretPath, err)
	}

	sc := &hefl.SecretContext{}
	if err := sc.UnmarshalBinary(secretBytes); err != nil {
		return fmt.Errorf("decode secret context:\n%w", err)
	}

	blobs, err := cli.Ciphertexts()
	if errors.Is(err, client.ErrNoCiphertexts) {
		return fmt.Errorf("no ciphertexts ready on aggregator:\n%w", err)
	}
	if err != nil {
		return err
	}

	avg, err := hefl.DecryptAverage(sc, blobs)
	if err != nil {
		return err
	}

	if err := cli.PublishPlaintext(avg); err != nil {
		return err
	}

	logger.Info("plaintext aggregate published",
		"ciphertexts", len(blobs),
		"dim", len(avg),
	)

	return nil
}

// uploadPlainVector uploads a JSON-encoded raw vector in place of a
// ciphertext. The decryptor rejects such blobs; the degraded mode exists
// for transport testing against a relay, not for mixed rounds.
func uploadPlainVector(cli *client.Client, vec []float64) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal plain vector:\n%w", err)
	}

	stored, _, err := cli.UploadCiphertext(raw)
	if err != nil {
		return err
	}

	logger.Warn("plain vector uploaded (insecure)", "stored", stored)

	return nil
}
