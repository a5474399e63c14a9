package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

var discriminatorPattern = regexp.MustCompile(`^[0-9]{1,4}$`)

type authHandler func(w http.ResponseWriter, r *http.Request, p principal)

type actingHandler func(w http.ResponseWriter, r *http.Request, p principal, actor *user)

// authenticated rejects requests without a valid token. The handler runs
// with s.mu held.
func (s *Server) authenticated(h authHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		p, ok := s.parseToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "Invalid or missing authentication token.")
			return
		}
		h(w, r, p)
	}
}

// acting resolves the user a request acts as: the session's user, or the
// user named by the Cupid-User header for apps.
func (s *Server) acting(h actingHandler) http.HandlerFunc {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, p principal) {
		var actorID int64
		if p.session != nil {
			actorID = p.session.userID
		} else {
			raw := r.Header.Get("Cupid-User")
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeValidation(w, fieldProblem{
					Loc:  []any{"header", "cupid-user"},
					Msg:  "A Cupid-User header is required when acting as an app.",
					Type: "value_error",
				})
				return
			}
			actorID = id
		}
		actor, ok := s.users[actorID]
		if !ok {
			writeError(w, http.StatusNotFound, "Acting user not found.")
			return
		}
		h(w, r, p, actor)
	})
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeValidation(w, fieldProblem{Loc: []any{"body"}, Msg: err.Error(), Type: "value_error.jsondecode"})
		return false
	}
	return true
}

// Wire shapes

type entityJSON struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name,omitempty"`
	User      *user      `json:"user,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Token     string     `json:"token,omitempty"`
}

type relationshipJSON struct {
	ID         int64      `json:"id"`
	Initiator  user       `json:"initiator"`
	Other      user       `json:"other"`
	Kind       string     `json:"kind"`
	Accepted   bool       `json:"accepted"`
	CreatedAt  time.Time  `json:"created_at"`
	AcceptedAt *time.Time `json:"accepted_at"`
}

type partialJSON struct {
	ID         int64     `json:"id"`
	Initiator  int64     `json:"initiator"`
	Other      int64     `json:"other"`
	Kind       string    `json:"kind"`
	CreatedAt  time.Time `json:"created_at"`
	AcceptedAt time.Time `json:"accepted_at"`
}

type relationshipsJSON struct {
	Accepted []relationshipJSON `json:"accepted"`
	Incoming []relationshipJSON `json:"incoming"`
	Outgoing []relationshipJSON `json:"outgoing"`
}

func (s *Server) entity(p principal, withToken bool) entityJSON {
	if p.session != nil {
		expires := p.session.expiresAt
		out := entityJSON{ID: p.session.id, User: s.users[p.session.userID], ExpiresAt: &expires}
		if withToken {
			out.Token = encodeToken(tokenTypeSession, p.session.id, p.session.secret)
		}
		return out
	}
	out := entityJSON{ID: p.app.id, Name: p.app.name}
	if withToken {
		out.Token = encodeToken(tokenTypeApp, p.app.id, p.app.secret)
	}
	return out
}

func (s *Server) relationshipJSON(rel *relationship) relationshipJSON {
	return relationshipJSON{
		ID:         rel.ID,
		Initiator:  *s.users[rel.Initiator],
		Other:      *s.users[rel.Other],
		Kind:       rel.Kind,
		Accepted:   rel.AcceptedAt != nil,
		CreatedAt:  rel.CreatedAt,
		AcceptedAt: rel.AcceptedAt,
	}
}

// between finds the relationship joining a and b in either direction
func (s *Server) between(a, b int64) *relationship {
	for _, rel := range s.relationships {
		if (rel.Initiator == a && rel.Other == b) || (rel.Initiator == b && rel.Other == a) {
			return rel
		}
	}
	return nil
}

func (s *Server) sortedRelationships() []*relationship {
	out := make([]*relationship, 0, len(s.relationships))
	for _, rel := range s.relationships {
		out = append(out, rel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// normaliseDiscriminator accepts a 1-4 digit string or an integer. All
// zeros means no discriminator.
func normaliseDiscriminator(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("discriminator must be a string or integer")
		}
		if n < 0 || n > 9999 {
			return nil, fmt.Errorf("discriminator must be between 0 and 9999")
		}
		text = strconv.Itoa(n)
	}
	if !discriminatorPattern.MatchString(text) {
		return nil, fmt.Errorf("discriminator must be 1-4 digits")
	}
	if strings.Trim(text, "0") == "" {
		return nil, nil
	}
	padded := strings.Repeat("0", 4-len(text)) + text
	return &padded, nil
}

func validGender(g string) bool {
	return g == "non_binary" || g == "female" || g == "male"
}

// Auth

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.discord[body.Token]
	if !ok {
		writeValidation(w, bodyProblem("token", "Invalid Discord token."))
		return
	}

	disc, _ := normaliseDiscriminator(json.RawMessage(strconv.Quote(account.Discriminator)))
	u, exists := s.users[account.ID]
	if !exists {
		u = &user{ID: account.ID, Gender: "non_binary"}
		s.users[account.ID] = u
	}
	u.Name, u.AvatarURL, u.Discriminator = account.Name, account.AvatarURL, disc

	sess := &session{
		id:        s.nextSessionID,
		userID:    u.ID,
		expiresAt: s.now().Add(sessionLifetime),
		secret:    newSecret(),
	}
	s.nextSessionID++
	s.sessions[sess.id] = sess

	writeJSON(w, http.StatusOK, s.entity(principal{session: sess}, true))
}

func (s *Server) handleGetAuth(w http.ResponseWriter, r *http.Request, p principal) {
	writeJSON(w, http.StatusOK, s.entity(p, false))
}

func (s *Server) handleRefreshAuth(w http.ResponseWriter, r *http.Request, p principal) {
	if p.session != nil {
		p.session.secret = newSecret()
		p.session.expiresAt = s.now().Add(sessionLifetime)
	} else {
		p.app.secret = newSecret()
	}
	writeJSON(w, http.StatusOK, s.entity(p, true))
}

func (s *Server) handleDeleteAuth(w http.ResponseWriter, r *http.Request, p principal) {
	if p.session != nil {
		delete(s.sessions, p.session.id)
	} else {
		delete(s.apps, p.app.id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Users

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, p principal) {
	id := pathID(r)
	u, ok := s.users[id]
	if !ok {
		writeError(w, http.StatusNotFound, "User not found.")
		return
	}

	rels := relationshipsJSON{
		Accepted: []relationshipJSON{},
		Incoming: []relationshipJSON{},
		Outgoing: []relationshipJSON{},
	}
	for _, rel := range s.sortedRelationships() {
		switch {
		case rel.Initiator != id && rel.Other != id:
			continue
		case rel.AcceptedAt != nil:
			rels.Accepted = append(rels.Accepted, s.relationshipJSON(rel))
		case rel.Other == id:
			rels.Incoming = append(rels.Incoming, s.relationshipJSON(rel))
		default:
			rels.Outgoing = append(rels.Outgoing, s.relationshipJSON(rel))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": u, "relationships": rels})
}

func (s *Server) handleSetUser(w http.ResponseWriter, r *http.Request, p principal) {
	if p.app == nil {
		writeError(w, http.StatusForbidden, "Only apps may create or edit users.")
		return
	}

	var body struct {
		Name          string          `json:"name"`
		AvatarURL     string          `json:"avatar_url"`
		Gender        string          `json:"gender"`
		Discriminator json.RawMessage `json:"discriminator"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	var problems []fieldProblem
	if n := len(body.Name); n < 1 || n > 255 {
		problems = append(problems, bodyProblem("name", "Name must be 1-255 characters."))
	}
	if n := len(body.AvatarURL); n < 7 || n > 255 {
		problems = append(problems, bodyProblem("avatar_url", "Avatar URL must be 7-255 characters."))
	}
	if !validGender(body.Gender) {
		problems = append(problems, bodyProblem("gender", "Gender must be non_binary, female or male."))
	}
	disc, err := normaliseDiscriminator(body.Discriminator)
	if err != nil {
		problems = append(problems, bodyProblem("discriminator", err.Error()))
	}
	if len(problems) > 0 {
		writeValidation(w, problems...)
		return
	}

	id := pathID(r)
	u := &user{ID: id, Name: body.Name, AvatarURL: body.AvatarURL, Gender: body.Gender, Discriminator: disc}
	s.users[id] = u
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request, p principal) {
	users := make(map[int64]*user)
	rels := []partialJSON{}
	for _, rel := range s.sortedRelationships() {
		if rel.AcceptedAt == nil {
			continue
		}
		for _, id := range []int64{rel.Initiator, rel.Other} {
			if u, ok := s.users[id]; ok {
				users[id] = u
			}
		}
		rels = append(rels, partialJSON{
			ID:         rel.ID,
			Initiator:  rel.Initiator,
			Other:      rel.Other,
			Kind:       rel.Kind,
			CreatedAt:  rel.CreatedAt,
			AcceptedAt: *rel.AcceptedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "relationships": rels})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, p principal) {
	q := r.URL.Query()
	perPage, err := strconv.Atoi(q.Get("per_page"))
	if err != nil || perPage < 1 || perPage > 100 {
		writeValidation(w, fieldProblem{Loc: []any{"query", "per_page"}, Msg: "per_page must be 1-100.", Type: "value_error"})
		return
	}
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 0 {
		writeValidation(w, fieldProblem{Loc: []any{"query", "page"}, Msg: "page must be a non-negative integer.", Type: "value_error"})
		return
	}
	search := strings.ToLower(q.Get("search"))

	matches := []*user{}
	for _, u := range s.users {
		if search == "" || strings.Contains(strings.ToLower(u.Name), search) {
			matches = append(matches, u)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })

	start := min(page*perPage, len(matches))
	end := min(start+perPage, len(matches))
	pages := (len(matches) + perPage - 1) / perPage

	writeJSON(w, http.StatusOK, map[string]any{
		"page":     page,
		"per_page": perPage,
		"pages":    pages,
		"total":    len(matches),
		"users":    matches[start:end],
	})
}

func (s *Server) handleUpdateGender(w http.ResponseWriter, r *http.Request, p principal, actor *user) {
	var body struct {
		Gender string `json:"gender"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if !validGender(body.Gender) {
		writeValidation(w, bodyProblem("gender", "Gender must be non_binary, female or male."))
		return
	}
	actor.Gender = body.Gender
	writeJSON(w, http.StatusOK, actor)
}

// Relationships

func (s *Server) handleProposeRelationship(w http.ResponseWriter, r *http.Request, p principal, actor *user) {
	var body struct {
		Kind string `json:"kind"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Kind != "marriage" && body.Kind != "adoption" {
		writeValidation(w, bodyProblem("kind", "Kind must be marriage or adoption."))
		return
	}

	otherID := pathID(r)
	if otherID == actor.ID {
		writeError(w, http.StatusConflict, "You cannot propose to yourself.")
		return
	}
	if _, ok := s.users[otherID]; !ok {
		writeError(w, http.StatusNotFound, "User not found.")
		return
	}
	if s.between(actor.ID, otherID) != nil {
		writeError(w, http.StatusConflict, "A relationship or proposal already exists.")
		return
	}

	rel := &relationship{
		ID:        s.nextRelID,
		Initiator: actor.ID,
		Other:     otherID,
		Kind:      body.Kind,
		CreatedAt: s.now(),
	}
	s.nextRelID++
	s.relationships[rel.ID] = rel
	writeJSON(w, http.StatusOK, s.relationshipJSON(rel))
}

func (s *Server) handleGetRelationship(w http.ResponseWriter, r *http.Request, p principal, actor *user) {
	rel := s.between(actor.ID, pathID(r))
	if rel == nil {
		writeError(w, http.StatusNotFound, "Relationship not found.")
		return
	}
	writeJSON(w, http.StatusOK, s.relationshipJSON(rel))
}

func (s *Server) handleLeaveRelationship(w http.ResponseWriter, r *http.Request, p principal, actor *user) {
	rel := s.between(actor.ID, pathID(r))
	if rel == nil {
		writeError(w, http.StatusNotFound, "Relationship not found.")
		return
	}
	delete(s.relationships, rel.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAcceptProposal(w http.ResponseWriter, r *http.Request, p principal, actor *user) {
	rel := s.between(actor.ID, pathID(r))
	switch {
	case rel == nil:
		writeError(w, http.StatusNotFound, "Proposal not found.")
		return
	case rel.AcceptedAt != nil:
		writeError(w, http.StatusConflict, "Relationship already accepted.")
		return
	case rel.Other != actor.ID:
		writeError(w, http.StatusForbidden, "Only the receiver may accept a proposal.")
		return
	}
	now := s.now()
	rel.AcceptedAt = &now
	writeJSON(w, http.StatusOK, s.relationshipJSON(rel))
}

// Testing

func (s *Server) handleTestingStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"testing": true})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.reset()
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateApp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Name == "" {
		writeValidation(w, bodyProblem("name", "Name is required."))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a := &app{id: s.nextAppID, name: body.Name, secret: newSecret()}
	s.nextAppID++
	s.apps[a.id] = a
	writeJSON(w, http.StatusOK, s.entity(principal{app: a}, true))
}

func (s *Server) handleRegisterDiscord(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
		discordAccount
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Token == "" {
		writeValidation(w, bodyProblem("token", "Token is required."))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.discord[body.Token] = body.discordAccount
	w.WriteHeader(http.StatusNoContent)
}

// Fault injection

// CorruptGraph adds an accepted relationship that names a user which does
// not exist, so the graph the server returns is inconsistent.
func (s *Server) CorruptGraph(existingUserID, missingUserID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.relationships[s.nextRelID] = &relationship{
		ID:         s.nextRelID,
		Initiator:  existingUserID,
		Other:      missingUserID,
		Kind:       "marriage",
		CreatedAt:  now,
		AcceptedAt: &now,
	}
	s.nextRelID++
}
