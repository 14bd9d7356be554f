package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/basket-guardian/pkg/budget"
	"github.com/ogulcanaydogan/basket-guardian/pkg/credits"
	"github.com/ogulcanaydogan/basket-guardian/pkg/lists"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
	"github.com/ogulcanaydogan/basket-guardian/pkg/receipt"
)

const requestTimeout = 60 * time.Second

// Scanner runs paid receipt scans.
type Scanner interface {
	Scan(ctx context.Context, uid, imageURL string) (*receipt.Result, error)
}

// Members shares lists with other users.
type Members interface {
	AddMember(ctx context.Context, in lists.AddMemberInput) (*model.Identity, error)
}

// Balances reads AI credit balances.
type Balances interface {
	Balance(ctx context.Context, uid string) (int64, error)
}

// Budgets reports spending and re-checks budget alerts.
type Budgets interface {
	Summary(ctx context.Context, uid string, period model.Period) (*model.SpendingSummary, error)
	CheckUser(ctx context.Context, uid string) (budget.Decision, error)
}

// PushRegistrar stores device push tokens.
type PushRegistrar interface {
	RegisterPushToken(ctx context.Context, uid, token, platform string) error
}

// Deps are the services behind the API. A nil Scanner answers scans with 503.
type Deps struct {
	Scanner  Scanner
	Members  Members
	Balances Balances
	Budgets  Budgets
	Push     PushRegistrar
}

// Server exposes the HTTP API.
type Server struct {
	deps        Deps
	mux         *http.ServeMux
	logger      *slog.Logger
	maxBodySize int64
}

// Option configures a Server.
type Option func(*Server)

// WithMaxBodySize caps request bodies.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

// NewServer creates an API server.
func NewServer(deps Deps, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		deps:        deps,
		mux:         http.NewServeMux(),
		logger:      logger,
		maxBodySize: 1 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/v1/receipts/scan", s.handleScan)
	s.mux.HandleFunc("POST /api/v1/lists/{id}/members", s.handleAddMember)
	s.mux.HandleFunc("GET /api/v1/users/{id}/credits", s.handleCredits)
	s.mux.HandleFunc("GET /api/v1/users/{id}/spending", s.handleSpending)
	s.mux.HandleFunc("POST /api/v1/users/{id}/push-tokens", s.handlePushToken)
	s.mux.HandleFunc("POST /api/v1/budget/check", s.handleBudgetCheck)
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Response is the envelope of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]string{"status": "ok"}})
}

type scanRequest struct {
	UserID   string `json:"userId"`
	ImageURL string `json:"imageUrl"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scanner == nil {
		s.writeError(w, r, model.ErrNotConfigured)
		return
	}
	var req scanRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := s.deps.Scanner.Scan(ctx, req.UserID, req.ImageURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: res})
}

type addMemberRequest struct {
	InviterID string `json:"inviterId"`
	Email     string `json:"email"`
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	member, err := s.deps.Members.AddMember(ctx, lists.AddMemberInput{
		ListID:    r.PathValue("id"),
		InviterID: req.InviterID,
		Email:     req.Email,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "member added", Data: member})
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	uid := r.PathValue("id")
	balance, err := s.deps.Balances.Balance(ctx, uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]any{"userId": uid, "aiCredits": balance}})
}

func (s *Server) handleSpending(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	period := model.Period(r.URL.Query().Get("period"))
	summary, err := s.deps.Budgets.Summary(ctx, r.PathValue("id"), period)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: summary})
}

type pushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (s *Server) handlePushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := s.deps.Push.RegisterPushToken(ctx, r.PathValue("id"), req.Token, req.Platform); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "push token registered"})
}

type budgetCheckRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleBudgetCheck(w http.ResponseWriter, r *http.Request) {
	var req budgetCheckRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	decision, err := s.deps.Budgets.CheckUser(ctx, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: string(decision.Outcome), Data: decision})
}

// decode reads a JSON body, rejecting unknown fields. It writes the 400
// response itself and reports whether decoding succeeded.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return false
	}
	return true
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, credits.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	case http.StatusServiceUnavailable:
		msg = "feature not configured"
	case http.StatusPaymentRequired:
		msg = "insufficient AI credits"
	}
	writeJSON(w, status, Response{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
