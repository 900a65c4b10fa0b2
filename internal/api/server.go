// Package api provides the HTTP server for the backend functions and the
// resource queries of the component context.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/docconnector/internal/functions"
	"github.com/fruitsalade/docconnector/internal/hostctx"
	"github.com/fruitsalade/docconnector/internal/logging"
	"github.com/fruitsalade/docconnector/internal/metrics"
	"github.com/fruitsalade/docconnector/internal/protocol"
)

const maxBodySize = 1 << 20

// Server is the functions HTTP server.
type Server struct {
	functions      *functions.Service
	signer         *hostctx.Signer
	requestTimeout time.Duration
}

// NewServer creates a new server.
func NewServer(fns *functions.Service, signer *hostctx.Signer, requestTimeout time.Duration) *Server {
	return &Server{
		functions:      fns,
		signer:         signer,
		requestTimeout: requestTimeout,
	}
}

// Handler returns the HTTP handler with context-token, logging and metrics
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /health", s.handleHealth)

	// Endpoints requiring a component context
	protected := http.NewServeMux()
	protected.HandleFunc("POST /api/v1/functions/{name}", s.handleFunction)
	protected.HandleFunc("POST /api/v1/resources/query", s.handleResourceQuery)

	mux.Handle("/api/v1/", s.signer.Middleware(protected))

	return metrics.Middleware(logging.Middleware(mux), metrics.MuxRoute(protected, mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"functions": s.functions.Names(),
	})
}

func (s *Server) handleFunction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	claims, _ := hostctx.FromContext(r.Context())

	var req protocol.CallRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	result, err := s.functions.Invoke(ctx, name, claims, req.Payload)
	switch {
	case errors.Is(err, functions.ErrUnknownFunction):
		s.sendError(w, http.StatusNotFound, "function not found: "+name)
		return
	case errors.Is(err, functions.ErrBadPayload):
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logging.WithContext(r.Context()).Error("function failed",
			zap.String("function", name), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "function failed")
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "encode result")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.CallResponse{Data: data})
}

// handleResourceQuery answers selector queries from the verified component
// context. Each query matching a resource contributes one record.
func (s *Server) handleResourceQuery(w http.ResponseWriter, r *http.Request) {
	claims, _ := hostctx.FromContext(r.Context())

	var req protocol.ResourceQueryRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	records := []protocol.ResourceRecord{}
	if claims != nil {
		for _, q := range req.Queries {
			res := claims.Lookup(q.Selector)
			if res == nil {
				continue
			}
			records = append(records, protocol.ResourceRecord{
				Data: protocol.ResourceData{Name: res.Name},
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func decodeBody(r *http.Request, out any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
