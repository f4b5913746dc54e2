// Package client is a Go client for the aggregator relay HTTP API.
package client

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors for expected server-side absences.
var (
	// ErrNoContext means no public context has been published yet.
	ErrNoContext = errors.New("no public context on aggregator")

	// ErrNoCiphertexts means the aggregator holds no uploaded ciphertexts.
	ErrNoCiphertexts = errors.New("no ciphertexts on aggregator")

	// ErrNoPlaintext means no plaintext aggregate has been published yet.
	ErrNoPlaintext = errors.New("no plaintext aggregate on aggregator")
)

// Client talks to one aggregator relay.
type Client struct {
	baseURL string       // baseURL is the aggregator base URL without trailing slash
	http    *http.Client // http is the underlying HTTP client
}

// New creates a client for the given aggregator base URL,
// e.g. "http://127.0.0.1:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Ping checks the aggregator is reachable and returns its status message.
func (c *Client) Ping() (string, error) {
	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}

	code, err := c.getJSON("/ping", &resp)
	if err != nil {
		return "", fmt.Errorf("ping:\n%w", err)
	}

	if code != http.StatusOK {
		return "", fmt.Errorf("ping: status %d", code)
	}

	return resp.Message, nil
}

// InitPublicContext publishes the public context bytes, starting a fresh
// round on the aggregator.
func (c *Client) InitPublicContext(ctx []byte) error {
	body := map[string]string{
		"context": base64.StdEncoding.EncodeToString(ctx),
	}

	var resp struct {
		Status string `json:"status"`
	}

	code, err := c.postJSON("/init_public_context", body, &resp)
	if err != nil {
		return fmt.Errorf("init public context:\n%w", err)
	}

	if code != http.StatusOK || resp.Status != "public_context_saved" {
		return fmt.Errorf("init public context: status %d (%s)", code, resp.Status)
	}

	return nil
}

// PublicContext fetches the published context bytes.
// Returns ErrNoContext if none has been published.
func (c *Client) PublicContext() ([]byte, error) {
	var resp struct {
		Context string `json:"context"`
	}

	code, err := c.getJSON("/get_public_context", &resp)
	if err != nil {
		return nil, fmt.Errorf("get public context:\n%w", err)
	}

	if code == http.StatusNotFound {
		return nil, ErrNoContext
	}

	if code != http.StatusOK {
		return nil, fmt.Errorf("get public context: status %d", code)
	}

	ctx, err := base64.StdEncoding.DecodeString(resp.Context)
	if err != nil {
		return nil, fmt.Errorf("decode context base64:\n%w", err)
	}

	return ctx, nil
}

// UploadCiphertext submits one opaque ciphertext blob.
// Returns the aggregator's new stored count and the blob digest it computed.
func (c *Client) UploadCiphertext(blob []byte) (int, string, error) {
	body := map[string]string{
		"ciphertext": base64.StdEncoding.EncodeToString(blob),
	}

	var resp struct {
		Status string `json:"status"`
		Stored int    `json:"stored"`
		Digest string `json:"digest"`
	}

	code, err := c.postJSON("/upload_enc", body, &resp)
	if err != nil {
		return 0, "", fmt.Errorf("upload ciphertext:\n%w", err)
	}

	if code != http.StatusOK {
		return 0, "", fmt.Errorf("upload ciphertext: status %d (%s)", code, resp.Status)
	}

	return resp.Stored, resp.Digest, nil
}

// RequestAggregation marks the stored ciphertext set ready for the
// keyholder and returns the count. Returns ErrNoCiphertexts when empty.
func (c *Client) RequestAggregation() (int, error) {
	var resp struct {
		Status         string `json:"status"`
		NumCiphertexts int    `json:"num_ciphertexts"`
	}

	code, err := c.postJSON("/aggregate_enc", nil, &resp)
	if err != nil {
		return 0, fmt.Errorf("request aggregation:\n%w", err)
	}

	if code == http.StatusBadRequest {
		return 0, ErrNoCiphertexts
	}

	if code != http.StatusOK {
		return 0, fmt.Errorf("request aggregation: status %d", code)
	}

	return resp.NumCiphertexts, nil
}

// Ciphertexts fetches the full stored blob sequence in upload order.
// Returns ErrNoCiphertexts when empty.
func (c *Client) Ciphertexts() ([][]byte, error) {
	var resp struct {
		Status      string   `json:"status"`
		Ciphertexts []string `json:"ciphertexts"`
	}

	code, err := c.getJSON("/get_agg_cipher", &resp)
	if err != nil {
		return nil, fmt.Errorf("get ciphertexts:\n%w", err)
	}

	if code == http.StatusBadRequest {
		return nil, ErrNoCiphertexts
	}

	if code != http.StatusOK {
		return nil, fmt.Errorf("get ciphertexts: status %d", code)
	}

	blobs := make([][]byte, len(resp.Ciphertexts))
	for i, s := range resp.Ciphertexts {
		blob, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decode ciphertext %d base64:\n%w", i, err)
		}
		blobs[i] = blob
	}

	return blobs, nil
}

// PublishPlaintext publishes the decrypted aggregate, overwriting any
// prior result.
func (c *Client) PublishPlaintext(values []float64) error {
	body := map[string]any{
		"plaintext_aggregate": values,
	}

	var resp struct {
		Status string `json:"status"`
	}

	code, err := c.postJSON("/post_decrypted", body, &resp)
	if err != nil {
		return fmt.Errorf("publish plaintext:\n%w", err)
	}

	if code != http.StatusOK || resp.Status != "plaintext_stored" {
		return fmt.Errorf("publish plaintext: status %d (%s)", code, resp.Status)
	}

	return nil
}

// PlainAggregate fetches the published plaintext aggregate.
// Returns ErrNoPlaintext if none has been published.
func (c *Client) PlainAggregate() ([]float64, error) {
	var resp struct {
		Status             string    `json:"status"`
		PlaintextAggregate []float64 `json:"plaintext_aggregate"`
	}

	code, err := c.getJSON("/get_plain_aggregate", &resp)
	if err != nil {
		return nil, fmt.Errorf("get plaintext aggregate:\n%w", err)
	}

	if code == http.StatusNotFound {
		return nil, ErrNoPlaintext
	}

	if code != http.StatusOK {
		return nil, fmt.Errorf("get plaintext aggregate: status %d", code)
	}

	return resp.PlaintextAggregate, nil
}
