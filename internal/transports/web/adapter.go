package web

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"deskfs/internal/core"
	"deskfs/internal/storage"
	"deskfs/internal/transports/common"
)

type contextKey string

const (
	ctxRequestID contextKey = "request_id"
	ctxSubjectID contextKey = "subject_id"
)

// TokenEntry описывает web bearer-токен.
type TokenEntry struct {
	ID          string
	TokenSHA256 string
	Subject     string
	Enabled     bool
}

// Config определяет параметры HTTP-транспорта.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RequestTimeout <= 0 отключает ограничение времени запроса.
	RequestTimeout time.Duration
	MaxRequestBody int64
	Tokens         []TokenEntry
	AllowedOrigins []string
}

// Adapter предоставляет команды webview по локальному HTTP.
type Adapter struct {
	svc      *common.Service
	registry *core.Registry
	store    storage.Store
	cfg      Config
	logger   *slog.Logger

	tokensByHash map[string]TokenEntry
	origins      map[string]struct{}

	mu     sync.Mutex
	server *http.Server
}

type invokeRequest struct {
	Command string    `json:"command"`
	Args    core.Args `json:"args"`
}

// NewAdapter создает web transport. store может быть nil: тогда /v1/audit недоступен.
func NewAdapter(svc *common.Service, registry *core.Registry, store storage.Store, cfg Config, logger *slog.Logger) *Adapter {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:7420"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.MaxRequestBody <= 0 {
		cfg.MaxRequestBody = 64 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}

	tokensByHash := make(map[string]TokenEntry, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		h := strings.ToLower(strings.TrimSpace(token.TokenSHA256))
		if len(h) != sha256.Size*2 {
			continue
		}
		tokensByHash[h] = token
	}
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins[trimmed] = struct{}{}
		}
	}

	return &Adapter{
		svc:          svc,
		registry:     registry,
		store:        store,
		cfg:          cfg,
		logger:       logger,
		tokensByHash: tokensByHash,
		origins:      origins,
	}
}

func (a *Adapter) Name() string { return "web" }

// Start запускает HTTP server.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return errors.New("web transport already started")
	}
	srv := &http.Server{
		Addr:         a.cfg.ListenAddr,
		Handler:      a.routes(),
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
	}
	a.server = srv

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("web transport stopped", "addr", a.cfg.ListenAddr, "err", err)
		}
	}()
	a.logger.Info("web transport listening", "addr", a.cfg.ListenAddr)
	return nil
}

// Stop завершает HTTP server.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.server
	a.server = nil
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(stopCtx)
}

type middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func (a *Adapter) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", a.handleHealth)
	mux.Handle("GET /v1/commands", chain(http.HandlerFunc(a.handleCommands), a.authMiddleware()))
	mux.Handle("POST /v1/invoke", chain(http.HandlerFunc(a.handleInvoke), a.authMiddleware(), a.timeoutMiddleware(), a.maxBodyMiddleware()))
	mux.Handle("GET /v1/audit", chain(http.HandlerFunc(a.handleAudit), a.authMiddleware()))
	return chain(mux, a.requestIDMiddleware(), a.corsMiddleware())
}

func (a *Adapter) requestIDMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := sanitizeRequestID(r.Header.Get("X-Request-ID"))
			if requestID == "" {
				requestID = common.NewRequestID()
			}
			w.Header().Set("X-Request-ID", requestID)
			ctx := context.WithValue(r.Context(), ctxRequestID, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Adapter) corsMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := a.origins[origin]; !ok {
				writeError(w, r, http.StatusForbidden, "cors_denied", "cors policy denied request")
				return
			}
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Adapter) authMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subjectID, code := a.resolveSubject(r)
			if code != "" {
				writeError(w, r, http.StatusUnauthorized, code, "authentication is required")
				return
			}
			ctx := context.WithValue(r.Context(), ctxSubjectID, subjectID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Adapter) resolveSubject(r *http.Request) (string, string) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return "", "auth_required"
	}
	token := strings.TrimSpace(authHeader[len("bearer "):])
	if token == "" {
		return "", "invalid_token"
	}
	sum := sha256.Sum256([]byte(token))
	entry, ok := a.tokensByHash[hex.EncodeToString(sum[:])]
	if !ok || !entry.Enabled || entry.Subject == "" {
		return "", "invalid_token"
	}
	return entry.Subject, ""
}

func (a *Adapter) timeoutMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		if a.cfg.RequestTimeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), a.cfg.RequestTimeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Adapter) maxBodyMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxRequestBody)
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Adapter) handleCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"request_id": requestIDFromContext(r.Context()),
		"items":      a.registry.Commands(),
		"modules":    a.registry.Providers(),
	})
}

func (a *Adapter) handleInvoke(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())

	var req invokeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "request payload is too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	resp, err := a.svc.Invoke(r.Context(), common.Invocation{
		RequestID: requestID,
		SubjectID: subjectIDFromContext(r.Context()),
		Command:   req.Command,
		Args:      req.Args,
	})
	if err != nil && errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		writeError(w, r, http.StatusGatewayTimeout, "request_timeout", "request timeout")
		return
	}
	writeJSON(w, r, statusFor(resp), map[string]interface{}{
		"request_id": requestID,
		"status":     resp.Status,
		"data":       resp.Data,
		"error_code": resp.ErrorCode,
		"message":    resp.Message,
	})
}

func (a *Adapter) handleAudit(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, r, http.StatusNotFound, "audit_disabled", "audit is disabled")
		return
	}
	q := storage.AuditQuery{
		Subject: r.URL.Query().Get("subject"),
		Source:  r.URL.Query().Get("source"),
		Limit:   parseLimit(r.URL.Query().Get("limit")),
	}
	for name, dst := range map[string]*time.Time{"from": &q.From, "to": &q.To} {
		v := r.URL.Query().Get(name)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_"+name, "timestamp must be RFC3339")
			return
		}
		*dst = ts
	}

	events, err := a.store.QueryAudit(r.Context(), q)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "audit query failed", "err", err)
		writeError(w, r, http.StatusInternalServerError, "query_failed", "audit query failed")
		return
	}

	type eventDTO struct {
		Subject   string          `json:"subject"`
		Action    string          `json:"action"`
		Source    string          `json:"source"`
		Status    string          `json:"status"`
		RequestID string          `json:"request_id"`
		Payload   json.RawMessage `json:"payload,omitempty"`
		TS        string          `json:"ts"`
	}
	items := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		items = append(items, eventDTO{
			Subject:   ev.Subject,
			Action:    ev.Action,
			Source:    ev.Source,
			Status:    ev.Status,
			RequestID: ev.RequestID,
			Payload:   json.RawMessage(ev.Payload),
			TS:        ev.TS.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"request_id": requestIDFromContext(r.Context()),
		"items":      items,
	})
}

func statusFor(resp core.Response) int {
	if resp.Status != "error" {
		return http.StatusOK
	}
	switch resp.ErrorCode {
	case "unknown_command", string(core.KindNotFound):
		return http.StatusNotFound
	case "access_denied", string(core.KindPermissionDenied):
		return http.StatusForbidden
	case "rate_limited":
		return http.StatusTooManyRequests
	case "bad_command", string(core.KindInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func sanitizeRequestID(v string) string {
	id := strings.TrimSpace(v)
	if id == "" || len(id) > 64 {
		return ""
	}
	for _, ch := range id {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-', ch == '_', ch == '.', ch == ':':
		default:
			return ""
		}
	}
	return id
}

func parseLimit(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func requestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxRequestID).(string)
	return v
}

func subjectIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxSubjectID).(string)
	return v
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	writeJSON(w, r, statusCode, map[string]string{
		"request_id": requestIDFromContext(r.Context()),
		"status":     "error",
		"error_code": code,
		"message":    message,
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
