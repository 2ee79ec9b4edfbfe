// Package httpapi is the REST boundary of the ring: it authenticates callers,
// validates request bodies and maps domain errors to wire codes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketmelee.ai/internal/auth"
	"marketmelee.ai/internal/persistence/store"
	"marketmelee.ai/internal/protocol"
	"marketmelee.ai/internal/ring"
	"marketmelee.ai/internal/sim/boxer"
)

const (
	maxBodyBytes    = 16 * 1024
	maxHistoryLimit = 1000
	requestTimeout  = 10 * time.Second
)

type Server struct {
	ring         *ring.Service
	auth         auth.Authenticator
	log          *log.Logger
	historyLimit int
}

// NewServer returns the REST handlers. historyLimit is the default page size
// for history reads.
func NewServer(svc *ring.Service, a auth.Authenticator, historyLimit int, logger *log.Logger) *Server {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Server{ring: svc, auth: a, log: logger, historyLimit: historyLimit}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/boxers", s.handleCreate)
	mux.HandleFunc("POST /v1/boxers/{token}/moves", s.handleMove)
	mux.HandleFunc("GET /v1/boxers/{token}", s.handleGet)
	mux.HandleFunc("GET /v1/boxers/{token}/history", s.handleHistory)
}

func (s *Server) handleCreate(rw http.ResponseWriter, r *http.Request) {
	body, ok := s.authenticated(rw, r)
	if !ok {
		return
	}
	if err := protocol.Validate(protocol.SchemaCreateBoxer, body); err != nil {
		writeError(rw, protocol.ErrBadRequest, err.Error())
		return
	}
	var req protocol.CreateBoxerReq
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(rw, protocol.ErrBadRequest, err.Error())
		return
	}

	ctx, cancel := contextFor(r)
	defer cancel()
	rec, err := s.ring.CreateBoxer(ctx, req.Token)
	if err != nil {
		s.writeDomainError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusCreated, boxerResp(rec))
}

func (s *Server) handleMove(rw http.ResponseWriter, r *http.Request) {
	body, ok := s.authenticated(rw, r)
	if !ok {
		return
	}
	if err := protocol.Validate(protocol.SchemaMarketMove, body); err != nil {
		writeError(rw, protocol.ErrBadRequest, err.Error())
		return
	}
	req, err := decodeMove(body)
	if errors.Is(err, boxer.ErrInvalidSignal) {
		s.writeDomainError(rw, r, err)
		return
	}
	if err != nil {
		writeError(rw, protocol.ErrBadRequest, err.Error())
		return
	}
	sig, err := signalFrom(req)
	if err != nil {
		s.writeDomainError(rw, r, err)
		return
	}

	ctx, cancel := contextFor(r)
	defer cancel()
	out, err := s.ring.ProcessMarketMove(ctx, r.PathValue("token"), sig)
	if err != nil {
		s.writeDomainError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.MoveResp{
		Boxer:        boxerResp(out.Record),
		TransitionID: out.TransitionID,
		Animation:    out.Animation.Move.String(),
	})
}

func (s *Server) handleGet(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextFor(r)
	defer cancel()
	rec, err := s.ring.Boxer(ctx, r.PathValue("token"))
	if err != nil {
		s.writeDomainError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, boxerResp(rec))
}

func (s *Server) handleHistory(rw http.ResponseWriter, r *http.Request) {
	limit := s.historyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			writeError(rw, protocol.ErrBadRequest, fmt.Sprintf("limit must be 1..%d", maxHistoryLimit))
			return
		}
		limit = n
	}

	ctx, cancel := contextFor(r)
	defer cancel()
	token := r.PathValue("token")
	entries, err := s.ring.History(ctx, token, limit)
	if err != nil {
		s.writeDomainError(rw, r, err)
		return
	}
	resp := protocol.HistoryResp{Token: token, Entries: make([]protocol.HistoryEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, protocol.HistoryEntry{
			TransitionID: e.TransitionID,
			Revision:     e.Revision,
			Signal: protocol.SignalBody{
				PriceDelta: e.Signal.PriceDelta,
				Volume:     e.Signal.Volume,
				Volatility: e.Signal.Volatility,
			},
			AttackPower:  e.AttackPower,
			DefensePower: e.DefensePower,
			Move:         e.Move.String(),
			RecordedAt:   e.RecordedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(rw, http.StatusOK, resp)
}

// authenticated reads the body and checks the caller. Nothing downstream runs
// unless it returns true.
func (s *Server) authenticated(rw http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxBodyBytes))
	if err != nil {
		writeError(rw, protocol.ErrBadRequest, "read body: "+err.Error())
		return nil, false
	}
	caller, err := s.auth.Authenticate(r, body)
	if err != nil {
		s.logf("auth %s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, err)
		writeError(rw, protocol.ErrUnauthorized, "unauthorized")
		return nil, false
	}
	s.logf("%s %s caller=%s/%s", r.Method, r.URL.Path, caller.Scheme, caller.ID)
	return body, true
}

func (s *Server) writeDomainError(rw http.ResponseWriter, r *http.Request, err error) {
	code := ring.ErrorCode(err)
	if code == protocol.ErrInternal || code == protocol.ErrStorageUnavailable {
		s.logf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	msg := err.Error()
	if code == protocol.ErrInternal {
		msg = "internal error"
	}
	writeError(rw, code, msg)
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func contextFor(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}

// decodeMove decodes a schema-checked move body. A number too large for a
// float64 is an invalid signal, not a malformed request.
func decodeMove(body []byte) (protocol.MarketMoveReq, error) {
	var req protocol.MarketMoveReq
	err := json.Unmarshal(body, &req)
	var typeErr *json.UnmarshalTypeError
	switch {
	case err == nil:
		return req, nil
	case errors.As(err, &typeErr) && strings.HasPrefix(typeErr.Value, "number"):
		return req, fmt.Errorf("%w: %s is out of range", boxer.ErrInvalidSignal, typeErr.Field)
	default:
		return req, err
	}
}

func signalFrom(req protocol.MarketMoveReq) (boxer.Signal, error) {
	switch {
	case req.Signal != nil:
		return boxer.Signal{
			PriceDelta: req.Signal.PriceDelta,
			Volume:     req.Signal.Volume,
			Volatility: req.Signal.Volatility,
		}, nil
	case req.Candle != nil:
		return boxer.SignalFromCandle(boxer.Candle{
			Open:   req.Candle.Open,
			High:   req.Candle.High,
			Low:    req.Candle.Low,
			Close:  req.Candle.Close,
			Volume: req.Candle.Volume,
		})
	default:
		return boxer.Signal{}, fmt.Errorf("%w: signal or candle is required", boxer.ErrInvalidSignal)
	}
}

func boxerResp(rec store.Record) protocol.BoxerResp {
	return protocol.BoxerResp{
		Token:        rec.State.Token,
		Health:       rec.State.Health,
		AttackPower:  rec.State.AttackPower,
		DefensePower: rec.State.DefensePower,
		LastMove:     rec.State.LastMove.String(),
		Revision:     rec.Revision,
		UpdatedAt:    rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func StatusFor(code string) int {
	switch code {
	case protocol.ErrBadRequest:
		return http.StatusBadRequest
	case protocol.ErrUnauthorized:
		return http.StatusUnauthorized
	case protocol.ErrAlreadyExists:
		return http.StatusConflict
	case protocol.ErrNotFound:
		return http.StatusNotFound
	case protocol.ErrInvalidSignal:
		return http.StatusUnprocessableEntity
	case protocol.ErrStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(rw http.ResponseWriter, code, msg string) {
	if code == protocol.ErrStorageUnavailable {
		rw.Header().Set("Retry-After", "1")
	}
	writeJSON(rw, StatusFor(code), protocol.ErrorResp{Code: code, Message: msg, Retryable: protocol.Retryable(code)})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
