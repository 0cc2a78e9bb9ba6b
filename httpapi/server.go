package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/tipgate"
	"github.com/MrEthical07/tipgate/middleware"
	"github.com/MrEthical07/tipgate/netpolicy"
)

// Authenticator is the slice of *tipgate.Engine the endpoints call.
type Authenticator interface {
	Login(ctx context.Context, req tipgate.LoginRequest) (*tipgate.SessionDescriptor, error)
	ReceiptLogin(ctx context.Context, req tipgate.ReceiptLoginRequest) (*tipgate.SessionDescriptor, error)
	RefreshSession(ctx context.Context, sessionID string) (*tipgate.SessionDescriptor, error)
	Logout(ctx context.Context, sessionID string) error
}

type Config struct {
	MaxBodySize     int64
	DefaultTenantID int
	TenantHeader    string
	// TrustProxyHeaders enables X-Forwarded-For and TorHeader. Enable it
	// only behind a proxy that overwrites both.
	TrustProxyHeaders bool
	// TorHeader, when trusted and set to "1" or "true", marks the request
	// as arriving over Tor.
	TorHeader string
}

func DefaultConfig() Config {
	return Config{
		MaxBodySize:     64 << 10,
		DefaultTenantID: 1,
		TenantHeader:    "X-Tenant-ID",
		TorHeader:       "X-Tor-Request",
	}
}

type Server struct {
	auth   Authenticator
	config Config
	logger *slog.Logger
	mux    *http.ServeMux
}

func New(auth Authenticator, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		auth:   auth,
		config: cfg,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /auth/receipt-login", s.handleReceiptLogin)
	s.mux.Handle("GET /auth/session", middleware.Guard(auth)(http.HandlerFunc(s.handleGetSession)))
	s.mux.HandleFunc("DELETE /auth/session", s.handleDeleteSession)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

type loginBody struct {
	TenantID int    `json:"tid"`
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

type receiptBody struct {
	TenantID int    `json:"tid"`
	Receipt  string `json:"receipt"`
}

type sessionResponse struct {
	SessionID            string `json:"session_id"`
	TenantID             int    `json:"tid"`
	Role                 string `json:"role"`
	UserID               string `json:"user_id"`
	SessionExpiration    int64  `json:"session_expiration"`
	Status               string `json:"status"`
	PasswordChangeNeeded *bool  `json:"password_change_needed,omitempty"`
}

func newSessionResponse(d *tipgate.SessionDescriptor, withPasswordChange bool) sessionResponse {
	out := sessionResponse{
		SessionID:         d.SessionID,
		TenantID:          d.TenantID,
		Role:              d.Role.String(),
		UserID:            d.UserID,
		SessionExpiration: d.SessionExpiration,
		Status:            d.Status,
	}
	if withPasswordChange {
		pcn := d.PasswordChangeNeeded
		out.PasswordChangeNeeded = &pcn
	}
	return out
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := s.decode(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Token == "" && body.Username == "" {
		s.fail(w, r, fmt.Errorf("%w: username or token required", middleware.ErrInvalidInput))
		return
	}

	tid, err := s.tenantID(r, body.TenantID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	origin := s.origin(r)
	ctx := s.requestContext(r, tid, origin)

	desc, err := s.auth.Login(ctx, tipgate.LoginRequest{
		TenantID: tid,
		Username: body.Username,
		Password: body.Password,
		Token:    body.Token,
		Origin:   origin,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(desc, true))
}

func (s *Server) handleReceiptLogin(w http.ResponseWriter, r *http.Request) {
	var body receiptBody
	if err := s.decode(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	tid, err := s.tenantID(r, body.TenantID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	origin := s.origin(r)
	ctx := s.requestContext(r, tid, origin)

	desc, err := s.auth.ReceiptLogin(ctx, tipgate.ReceiptLoginRequest{
		TenantID: tid,
		Receipt:  body.Receipt,
		Origin:   origin,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(desc, false))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	desc, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		s.fail(w, r, tipgate.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(desc, true))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.SessionID(r)
	if !ok {
		s.fail(w, r, tipgate.ErrSessionNotFound)
		return
	}
	ctx := tipgate.WithClientIP(r.Context(), s.origin(r).ClientIP)
	if err := s.auth.Logout(ctx, id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: content type %q", middleware.ErrInvalidInput, ct)
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", middleware.ErrInvalidInput, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", middleware.ErrInvalidInput)
	}
	return nil
}

// tenantID prefers the tenant named in the body, then the tenant header,
// then the configured default.
func (s *Server) tenantID(r *http.Request, fromBody int) (int, error) {
	if fromBody != 0 {
		if fromBody < 0 {
			return 0, fmt.Errorf("%w: tid", middleware.ErrInvalidInput)
		}
		return fromBody, nil
	}
	raw := strings.TrimSpace(r.Header.Get(s.config.TenantHeader))
	if raw == "" {
		return s.config.DefaultTenantID, nil
	}
	tid, err := strconv.Atoi(raw)
	if err != nil || tid <= 0 {
		return 0, fmt.Errorf("%w: %s", middleware.ErrInvalidInput, s.config.TenantHeader)
	}
	return tid, nil
}

func (s *Server) origin(r *http.Request) netpolicy.Origin {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	o := netpolicy.Origin{
		Tor:      strings.HasSuffix(strings.ToLower(host), ".onion"),
		ClientIP: remoteIP(r.RemoteAddr),
	}
	if !s.config.TrustProxyHeaders {
		return o
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		o.ClientIP = strings.TrimSpace(first)
	}
	if s.config.TorHeader != "" {
		switch strings.ToLower(r.Header.Get(s.config.TorHeader)) {
		case "1", "true":
			o.Tor = true
		}
	}
	return o
}

func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (s *Server) requestContext(r *http.Request, tid int, origin netpolicy.Origin) context.Context {
	ctx := tipgate.WithTenantID(r.Context(), tid)
	return tipgate.WithClientIP(ctx, origin.ClientIP)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := middleware.ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	middleware.WriteError(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
