// Package fakeapi is an in-memory Cupid API server for tests. It follows
// the real server's contract closely enough to exercise the client: token
// format, permission rules, discriminator normalisation and error bodies.
package fakeapi

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	tokenVersion     = 0
	tokenTypeApp     = 1
	tokenTypeSession = 2

	sessionLifetime = 30 * 24 * time.Hour
)

type user struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	AvatarURL     string  `json:"avatar_url"`
	Gender        string  `json:"gender"`
	Discriminator *string `json:"discriminator"`
}

type relationship struct {
	ID         int64
	Initiator  int64
	Other      int64
	Kind       string
	CreatedAt  time.Time
	AcceptedAt *time.Time
}

type app struct {
	id     int64
	name   string
	secret []byte
}

type session struct {
	id        int64
	userID    int64
	expiresAt time.Time
	secret    []byte
}

type discordAccount struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Discriminator string `json:"discriminator"`
	AvatarURL     string `json:"avatar_url"`
}

// RecordedRequest is the part of a request tests usually assert on
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	ActingUser    string
	RequestID     string
	UserAgent     string
}

// Server is the fake API. The zero value is not usable; call New.
type Server struct {
	router *mux.Router
	logger zerolog.Logger

	mu            sync.Mutex
	testing       bool
	apps          map[int64]*app
	sessions      map[int64]*session
	users         map[int64]*user
	relationships map[int64]*relationship
	discord       map[string]discordAccount
	nextAppID     int64
	nextSessionID int64
	nextRelID     int64
	requests      []RecordedRequest
	now           func() time.Time
}

// New creates an empty server with testing mode enabled
func New(logger zerolog.Logger) *Server {
	s := &Server{
		logger:  logger,
		testing: true,
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.reset()
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.recordRequest)

	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", s.authenticated(s.handleGetAuth)).Methods(http.MethodGet)
	r.HandleFunc("/auth/me", s.authenticated(s.handleRefreshAuth)).Methods(http.MethodPatch)
	r.HandleFunc("/auth/me", s.authenticated(s.handleDeleteAuth)).Methods(http.MethodDelete)

	r.HandleFunc("/user/{id:[0-9]+}", s.authenticated(s.handleGetUser)).Methods(http.MethodGet)
	r.HandleFunc("/user/{id:[0-9]+}", s.authenticated(s.handleSetUser)).Methods(http.MethodPut)
	r.HandleFunc("/user/{id:[0-9]+}/relationship", s.acting(s.handleProposeRelationship)).Methods(http.MethodPost)
	r.HandleFunc("/user/{id:[0-9]+}/relationship", s.acting(s.handleGetRelationship)).Methods(http.MethodGet)
	r.HandleFunc("/user/{id:[0-9]+}/relationship", s.acting(s.handleLeaveRelationship)).Methods(http.MethodDelete)
	r.HandleFunc("/user/{id:[0-9]+}/relationship/accept", s.acting(s.handleAcceptProposal)).Methods(http.MethodPost)

	r.HandleFunc("/users/graph", s.authenticated(s.handleGraph)).Methods(http.MethodGet)
	r.HandleFunc("/users/list", s.authenticated(s.handleListUsers)).Methods(http.MethodGet)
	r.HandleFunc("/users/me/gender", s.acting(s.handleUpdateGender)).Methods(http.MethodPut)

	r.Handle("/testing", s.requireTesting(http.HandlerFunc(s.handleTestingStatus))).Methods(http.MethodGet)
	t := r.PathPrefix("/testing").Subrouter()
	t.Use(s.requireTesting)
	t.HandleFunc("/clear", s.handleClear).Methods(http.MethodPost)
	t.HandleFunc("/app", s.handleCreateApp).Methods(http.MethodPost)
	t.HandleFunc("/discord_user", s.handleRegisterDiscord).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "No such endpoint.")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed for this endpoint.")
	})
	return r
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetTesting turns the /testing endpoints on or off
func (s *Server) SetTesting(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testing = enabled
}

// Requests returns every request received so far
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// RequestsTo returns the requests whose path equals path
func (s *Server) RequestsTo(path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range s.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) reset() {
	s.apps = make(map[int64]*app)
	s.sessions = make(map[int64]*session)
	s.users = make(map[int64]*user)
	s.relationships = make(map[int64]*relationship)
	s.discord = make(map[string]discordAccount)
	s.nextAppID, s.nextSessionID, s.nextRelID = 1, 1, 1
}

func (s *Server) recordRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			ActingUser:    r.Header.Get("Cupid-User"),
			RequestID:     r.Header.Get("X-Request-Id"),
			UserAgent:     r.Header.Get("User-Agent"),
		}
		s.mu.Lock()
		s.requests = append(s.requests, rec)
		s.mu.Unlock()

		s.logger.Trace().Str("method", r.Method).Str("path", r.URL.Path).Msg("fake API request")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireTesting(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		enabled := s.testing
		s.mu.Unlock()
		if !enabled {
			writeError(w, http.StatusNotFound, "Testing mode is not enabled.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// newSecret returns the random part of a token: two random UUIDs
func newSecret() []byte {
	a, b := uuid.New(), uuid.New()
	return append(a[:], b[:]...)
}

// encodeToken builds version | type | big-endian id | secret, base64url encoded
func encodeToken(kind byte, id int64, secret []byte) string {
	buf := make([]byte, 6, 6+len(secret))
	buf[0] = tokenVersion
	buf[1] = kind
	binary.BigEndian.PutUint32(buf[2:6], uint32(id))
	buf = append(buf, secret...)
	return base64.URLEncoding.EncodeToString(buf)
}

// principal is whoever a valid token belongs to
type principal struct {
	app     *app
	session *session
}

// parseToken checks a bearer token against stored secrets. Callers hold s.mu.
func (s *Server) parseToken(header string) (principal, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return principal{}, false
	}
	raw, err := base64.URLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil || len(raw) <= 6 || raw[0] != tokenVersion {
		return principal{}, false
	}
	id := int64(binary.BigEndian.Uint32(raw[2:6]))
	secret := raw[6:]

	switch raw[1] {
	case tokenTypeApp:
		a, ok := s.apps[id]
		if !ok || subtle.ConstantTimeCompare(a.secret, secret) != 1 {
			return principal{}, false
		}
		return principal{app: a}, true
	case tokenTypeSession:
		sess, ok := s.sessions[id]
		if !ok || subtle.ConstantTimeCompare(sess.secret, secret) != 1 || s.now().After(sess.expiresAt) {
			return principal{}, false
		}
		return principal{session: sess}, true
	default:
		return principal{}, false
	}
}

type errorBody struct {
	Status      int            `json:"status"`
	Description string         `json:"description"`
	Message     string         `json:"message"`
	Errors      []fieldProblem `json:"errors,omitempty"`
}

type fieldProblem struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{
		Status:      status,
		Description: http.StatusText(status) + ".",
		Message:     message,
	})
}

func writeValidation(w http.ResponseWriter, problems ...fieldProblem) {
	writeJSON(w, http.StatusUnprocessableEntity, errorBody{
		Status:      http.StatusUnprocessableEntity,
		Description: "Validation error.",
		Message:     "The request data was invalid.",
		Errors:      problems,
	})
}

func bodyProblem(field, msg string) fieldProblem {
	return fieldProblem{Loc: []any{"body", field}, Msg: msg, Type: "value_error"}
}
