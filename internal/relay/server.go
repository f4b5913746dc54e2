package relay

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zeebo/blake3"

	"fedrelay/internal/logger"
)

const (
	// maxBodySize is the maximum request body size in bytes.
	maxBodySize = 20 << 20 // 20 MB
)

// Server is the aggregator HTTP server.
type Server struct {
	addr   string       // addr is the HTTP listen address
	state  *State       // state is the shared round state
	server *http.Server // server is the underlying HTTP server
}

// New creates an aggregator server over the given round state.
func New(addr string, state *State) *Server {
	return &Server{
		addr:  addr,
		state: state,
	}
}

// Routes returns the server's handler with all endpoints registered.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /init_public_context", s.handleInitContext)
	mux.HandleFunc("GET /get_public_context", s.handleGetContext)
	mux.HandleFunc("GET /get_context", s.handleGetContext)
	mux.HandleFunc("POST /upload_enc", s.handleUpload)
	mux.HandleFunc("POST /aggregate_enc", s.handleAggregate)
	mux.HandleFunc("GET /get_agg_cipher", s.handleGetCiphertexts)
	mux.HandleFunc("POST /post_decrypted", s.handlePostDecrypted)
	mux.HandleFunc("GET /get_plain_aggregate", s.handleGetPlaintext)
	mux.HandleFunc("GET /ping", s.handlePing)

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("aggregator http started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleInitContext handles POST /init_public_context.
// Storing a new context starts a fresh round: prior ciphertexts and any
// plaintext result are cleared.
func (s *Server) handleInitContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Context string `json:"context"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	if req.Context == "" {
		writeStatus(w, http.StatusBadRequest, map[string]string{
			"status": "error",
			"msg":    "missing context",
		})
		return
	}

	ctx, err := base64.StdEncoding.DecodeString(req.Context)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, map[string]string{
			"status": "error",
			"msg":    "malformed context: not base64",
		})
		return
	}

	s.state.SetPublicContext(ctx)

	logger.Info("public context saved", "bytes", len(ctx))

	writeStatus(w, http.StatusOK, map[string]string{
		"status": "public_context_saved",
	})
}

// handleGetContext handles GET /get_public_context and its /get_context alias.
func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	ctx, ok := s.state.PublicContext()
	if !ok {
		writeStatus(w, http.StatusNotFound, map[string]string{
			"status": "no_context",
		})
		return
	}

	writeStatus(w, http.StatusOK, map[string]string{
		"context": base64.StdEncoding.EncodeToString(ctx),
	})
}

// handleUpload handles POST /upload_enc.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ciphertext string `json:"ciphertext"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	if req.Ciphertext == "" {
		writeStatus(w, http.StatusBadRequest, map[string]string{
			"status": "missing_ciphertext",
		})
		return
	}

	blob, err := base64.StdEncoding.DecodeString(req.Ciphertext)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, map[string]string{
			"status": "error",
			"msg":    "malformed ciphertext: not base64",
		})
		return
	}

	stored := s.state.AppendCiphertext(blob)
	digest := blake3.Sum256(blob)

	logger.Debug("ciphertext stored",
		"stored", stored,
		"bytes", len(blob),
		"digest", hex.EncodeToString(digest[:8]),
	)

	writeStatus(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stored": stored,
		"digest": hex.EncodeToString(digest[:]),
	})
}

// handleAggregate handles POST /aggregate_enc. The relay performs no
// summation; it only marks the stored set ready for the keyholder.
func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	n, ok := s.state.RequestAggregation()
	if !ok {
		writeStatus(w, http.StatusBadRequest, map[string]string{
			"status": "no_ciphertexts",
		})
		return
	}

	writeStatus(w, http.StatusOK, map[string]any{
		"status":          "agg_ready",
		"num_ciphertexts": n,
	})
}

// handleGetCiphertexts handles GET /get_agg_cipher.
func (s *Server) handleGetCiphertexts(w http.ResponseWriter, r *http.Request) {
	blobs := s.state.Ciphertexts()
	if len(blobs) == 0 {
		writeStatus(w, http.StatusBadRequest, map[string]string{
			"status": "no_ciphertexts",
		})
		return
	}

	encoded := make([]string, len(blobs))
	for i, b := range blobs {
		encoded[i] = base64.StdEncoding.EncodeToString(b)
	}

	writeStatus(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"ciphertexts": encoded,
	})
}

// handlePostDecrypted handles POST /post_decrypted.
// The value is stored as raw JSON and overwrites any prior result.
func (s *Server) handlePostDecrypted(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlaintextAggregate json.RawMessage `json:"plaintext_aggregate"`
	}

	if !decodeBody(w, r, &req) {
		return
	}

	if len(req.PlaintextAggregate) == 0 {
		writeStatus(w, http.StatusBadRequest, map[string]string{
			"status": "error",
			"msg":    "missing plaintext_aggregate",
		})
		return
	}

	s.state.SetPlaintext(req.PlaintextAggregate)

	logger.Info("plaintext aggregate stored", "bytes", len(req.PlaintextAggregate))

	writeStatus(w, http.StatusOK, map[string]string{
		"status": "plaintext_stored",
	})
}

// handleGetPlaintext handles GET /get_plain_aggregate.
func (s *Server) handleGetPlaintext(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.state.Plaintext()
	if !ok {
		writeStatus(w, http.StatusNotFound, map[string]string{
			"status": "no_plaintext",
		})
		return
	}

	writeStatus(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"plaintext_aggregate": raw,
	})
}

// handleIndex handles GET /: a small landing page listing the read-only
// endpoints.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<h2>Federated aggregator is live.</h2>
<p>Endpoints:</p>
<ul>
  <li><a href="/get_context">/get_context</a></li>
  <li><a href="/get_plain_aggregate">/get_plain_aggregate</a></li>
  <li><a href="/ping">/ping</a></li>
</ul>
`)
}

// handlePing handles GET /ping.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "aggregator is running",
	})
}

// decodeBody decodes a size-limited JSON request body into dst.
// Writes a 400 response and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeStatus(w, http.StatusBadRequest, map[string]string{
			"status": "error",
			"msg":    "invalid request body",
		})
		return false
	}

	return true
}

// writeStatus writes a JSON response.
func writeStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
