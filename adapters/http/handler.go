// Package http provides the HTTP surface for the lead-capture service.
package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/leadline/leadline/adapters/metrics"
	"github.com/leadline/leadline/app"
	"github.com/leadline/leadline/domain/quota"
	"github.com/leadline/leadline/ports"
)

// Handler serves the public capture endpoints and the owner console feeds.
type Handler struct {
	guards  *app.GuardService
	quotas  *app.QuotaService
	users   ports.UserStore
	events  ports.EventStore
	msgs    ports.MessageStore
	prefs   ports.PrefStore
	captcha ports.CaptchaVerifier
	idGen   ports.IDGenerator
	clock   ports.Clock
	rings   *metrics.Rings
	logger  zerolog.Logger

	// captchaOnSignup gates signup on a solved challenge token.
	captchaOnSignup bool
}

// HandlerDeps contains dependencies for Handler.
type HandlerDeps struct {
	Guards   *app.GuardService
	Quotas   *app.QuotaService
	Users    ports.UserStore
	Events   ports.EventStore
	Messages ports.MessageStore
	Prefs    ports.PrefStore
	Captcha  ports.CaptchaVerifier
	IDGen    ports.IDGenerator
	Clock    ports.Clock
	Rings    *metrics.Rings
	Logger   zerolog.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(deps HandlerDeps, captchaOnSignup bool) *Handler {
	return &Handler{
		guards:          deps.Guards,
		quotas:          deps.Quotas,
		users:           deps.Users,
		events:          deps.Events,
		msgs:            deps.Messages,
		prefs:           deps.Prefs,
		captcha:         deps.Captcha,
		idGen:           deps.IDGen,
		clock:           deps.Clock,
		rings:           deps.Rings,
		logger:          deps.Logger,
		captchaOnSignup: captchaOnSignup,
	}
}

// RouterConfig holds optional router wiring.
type RouterConfig struct {
	Metrics     *metrics.Collector // Enables the /metrics endpoint
	MetricsPath string             // Defaults to /metrics
}

// NewRouter creates the main HTTP router.
func NewRouter(h *Handler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics, h.rings))
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Get("/healthz", h.Health)

	// Every guarded route passes the IP filter, cooldown check and global
	// limiter before its own narrow guard runs.
	r.Group(func(r chi.Router) {
		r.Use(NewGlobalGuardMiddleware(h.guards))

		r.Post("/api/contact", h.Contact)
		r.Post("/api/chat", h.Chat)
		r.Get("/api/chat/history", h.ChatHistory)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/signup", h.Signup)
		r.Get("/system/stats", h.Stats)
		r.Get("/system/events", h.RecentEvents)
		r.Get("/system/prefs", h.GetPrefs)
		r.Post("/system/prefs", h.SetPref)
	})

	return r
}

// Health handles liveness checks.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats serves the in-memory stats snapshot feeding the owner console.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rings.Stats())
}

// RecentEvents serves the owner console's lead inbox, newest first.
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.Recent(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		h.logger.Error().Err(err).Msg("read events")
		writeFail(w, http.StatusInternalServerError, "storage_error", 0)
		return
	}
	if events == nil {
		events = []ports.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "events": events})
}

// ChatHistory returns one session's transcript, oldest first, so the widget
// can restore the conversation on page reload.
func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeFail(w, http.StatusBadRequest, "invalid_request", 0)
		return
	}

	msgs, err := h.msgs.BySession(r.Context(), sessionID, queryInt(r, "limit", 50))
	if err != nil {
		h.logger.Error().Err(err).Msg("read messages")
		writeFail(w, http.StatusInternalServerError, "storage_error", 0)
		return
	}
	if msgs == nil {
		msgs = []ports.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "messages": msgs})
}

// GetPrefs returns an account's preference map.
func (h *Handler) GetPrefs(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeFail(w, http.StatusBadRequest, "invalid_request", 0)
		return
	}

	prefs, err := h.prefs.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("read prefs")
		writeFail(w, http.StatusInternalServerError, "storage_error", 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "prefs": prefs})
}

type prefRequest struct {
	UserID string `json:"userId"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// SetPref stores one account preference.
func (h *Handler) SetPref(w http.ResponseWriter, r *http.Request) {
	var req prefRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Key == "" {
		writeFail(w, http.StatusBadRequest, "invalid_request", 0)
		return
	}

	if err := h.prefs.Set(r.Context(), req.UserID, req.Key, req.Value); err != nil {
		h.logger.Error().Err(err).Msg("write prefs")
		writeFail(w, http.StatusInternalServerError, "storage_error", 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type contactRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
}

// Contact handles a contact-form submission from a visitor. The quota is
// metered against the account the capture widget belongs to.
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || (req.Name == "" && req.Phone == "") {
		writeFail(w, http.StatusBadRequest, "invalid_request", 0)
		return
	}

	ip := clientIP(r)
	if out := h.guards.CheckContact(ip, req.SessionID); !out.Allowed {
		writeReject(w, out)
		return
	}

	owner := h.accountFor(r, req.UserID)
	d, err := h.quotas.Hit(r.Context(), owner, quota.KindContactDaily)
	if err != nil {
		writeFail(w, http.StatusServiceUnavailable, "quota_unavailable", 0)
		return
	}
	if !d.Allowed {
		writeQuotaReject(w, quota.KindContactDaily, d)
		return
	}

	ev := ports.Event{
		ID:        "ev_" + h.idGen.New(),
		UserID:    owner.ID,
		Kind:      "contact",
		Name:      req.Name,
		Phone:     req.Phone,
		Detail:    req.Message,
		CreatedAt: h.clock.Now(),
	}
	if err := h.events.Append(r.Context(), ev); err != nil {
		h.logger.Error().Err(err).Msg("append contact event")
		h.rings.RecordError("events_append:" + err.Error())
		writeFail(w, http.StatusInternalServerError, "storage_error", 0)
		return
	}

	h.rings.IncCounter("contacts")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": ev.ID})
}

type chatRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// Chat handles one visitor chat turn.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.SessionID == "" || strings.TrimSpace(req.Text) == "" {
		writeFail(w, http.StatusBadRequest, "invalid_request", 0)
		return
	}

	ip := clientIP(r)
	if out := h.guards.CheckChat(ip, req.SessionID); !out.Allowed {
		writeReject(w, out)
		return
	}

	owner := h.accountFor(r, req.UserID)
	d, err := h.quotas.Hit(r.Context(), owner, quota.KindChatPerMinute)
	if err != nil {
		writeFail(w, http.StatusServiceUnavailable, "quota_unavailable", 0)
		return
	}
	if !d.Allowed {
		writeQuotaReject(w, quota.KindChatPerMinute, d)
		return
	}

	msg := ports.Message{
		ID:        "msg_" + h.idGen.New(),
		UserID:    owner.ID,
		SessionID: req.SessionID,
		Role:      "visitor",
		Text:      req.Text,
		CreatedAt: h.clock.Now(),
	}
	if err := h.msgs.Append(r.Context(), msg); err != nil {
		h.logger.Error().Err(err).Msg("append chat message")
		h.rings.RecordError("messages_append:" + err.Error())
		writeFail(w, http.StatusInternalServerError, "storage_error", 0)
		return
	}

	h.rings.IncCounter("chats")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": msg.ID})
}

type credentialsRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

// Login handles a login attempt, limiter-gated per IP.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ip := clientIP(r)
	if out := h.guards.CheckLogin(ip); !out.Allowed {
		writeReject(w, out)
		return
	}

	u, err := h.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			// Same response as a bad password, so usernames cannot be probed.
			writeFail(w, http.StatusUnauthorized, "invalid_credentials", 0)
			return
		}
		h.logger.Error().Err(err).Msg("user lookup")
		writeFail(w, http.StatusInternalServerError, "storage_error", 0)
		return
	}
	if bcrypt.CompareHashAndPassword(u.PassHash, []byte(req.Password)) != nil {
		writeFail(w, http.StatusUnauthorized, "invalid_credentials", 0)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"user": map[string]string{
			"id":       u.ID,
			"username": u.Username,
			"role":     u.Role,
			"plan":     u.Plan,
		},
	})
}

// Signup handles account creation, limiter-gated per IP with an optional
// captcha challenge.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || len(req.Password) < 8 {
		writeFail(w, http.StatusBadRequest, "invalid_request", 0)
		return
	}

	ip := clientIP(r)
	if out := h.guards.CheckSignup(ip); !out.Allowed {
		writeReject(w, out)
		return
	}

	if h.captchaOnSignup && !h.captcha.Verify(r.Context(), req.CaptchaToken, ip) {
		writeFail(w, http.StatusForbidden, "captcha_failed", 0)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error().Err(err).Msg("hash password")
		writeFail(w, http.StatusInternalServerError, "internal_error", 0)
		return
	}

	u := ports.User{
		Username: strings.TrimSpace(req.Username),
		PassHash: hash,
		Role:     "user",
		Plan:     "free",
	}
	if err := h.users.Create(r.Context(), u); err != nil {
		if errors.Is(err, ports.ErrExists) {
			writeFail(w, http.StatusConflict, "username_taken", 0)
			return
		}
		h.logger.Error().Err(err).Msg("create user")
		writeFail(w, http.StatusInternalServerError, "storage_error", 0)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

// accountFor resolves the capture widget's owner account. An id with no
// stored user still meters, at the default plan, so a deleted account does
// not turn its widget into an unmetered endpoint.
func (h *Handler) accountFor(r *http.Request, userID string) ports.User {
	users, err := h.users.List(r.Context())
	if err == nil {
		for _, u := range users {
			if u.ID == userID {
				return u
			}
		}
	}
	return ports.User{ID: userID}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid_json", 0)
		return false
	}
	return true
}

// clientIP returns the caller's IP. chi's RealIP middleware has already
// folded X-Forwarded-For / X-Real-IP into RemoteAddr, so the value may be a
// host:port pair or a bare address (IPv4 or IPv6).
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeFail(w http.ResponseWriter, status int, reason string, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	body := map[string]any{"ok": false, "error": reason}
	if retryAfter > 0 {
		body["retryAfter"] = retryAfter
	}
	writeJSON(w, status, body)
}

func writeReject(w http.ResponseWriter, out app.Outcome) {
	writeFail(w, out.Status, out.Reason, out.RetryAfter)
}

func writeQuotaReject(w http.ResponseWriter, kind quota.Kind, d quota.Decision) {
	writeFail(w, http.StatusTooManyRequests, string(kind)+" limit reached", d.RetryAfter)
}
