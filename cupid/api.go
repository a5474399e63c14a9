package cupid

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// AuthContext is implemented by *App and *UserSession. Users resolved
// through it are typed by who is asking: see App and UserSession for the
// variants each produces.
type AuthContext interface {
	// ID returns the ID of the app or session
	ID() int64

	// Token returns the current bearer token
	Token() string

	// GetUser fetches a user together with their relationships
	GetUser(ctx context.Context, id int64) (*UserWithRelationships, error)

	// Graph fetches every user and every accepted relationship
	Graph(ctx context.Context) (*Graph, error)

	// Users returns a lazily fetched list of users matching search
	Users(search string, perPage int) *UserList

	// RefreshToken replaces the token for this context and everything derived from it
	RefreshToken(ctx context.Context) error

	// Delete invalidates the app or session server-side
	Delete(ctx context.Context) error
}

// authClient issues authenticated requests. Clients acting for a user on
// behalf of an app also send the acting user's ID.
type authClient struct {
	t          *transport
	token      *tokenCell
	actingUser int64
	acting     bool
}

// forUser returns a client for an app acting as the given user. It shares
// the token cell with c.
func (c *authClient) forUser(id int64) *authClient {
	return &authClient{
		t:          c.t,
		token:      c.token,
		actingUser: id,
		acting:     true,
	}
}

func (c *authClient) do(ctx context.Context, cl call) error {
	cl.token = c.token.Load()
	if c.acting {
		cl.actingUser = strconv.FormatInt(c.actingUser, 10)
	}
	return c.t.do(ctx, cl)
}

func userPath(id int64, suffix string) string {
	return fmt.Sprintf("/user/%d%s", id, suffix)
}

func (c *authClient) getUser(ctx context.Context, id int64) (*UserWithRelationshipsRecord, error) {
	var out UserWithRelationshipsRecord
	err := c.do(ctx, call{method: http.MethodGet, route: "/user/{id}", path: userPath(id, ""), out: &out})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *authClient) setUser(ctx context.Context, id int64, data UserData) (*UserRecord, error) {
	var out UserRecord
	err := c.do(ctx, call{method: http.MethodPut, route: "/user/{id}", path: userPath(id, ""), body: data, out: &out})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *authClient) getGraph(ctx context.Context) (*GraphData, error) {
	var out GraphData
	if err := c.do(ctx, call{method: http.MethodGet, route: "/users/graph", path: "/users/graph", out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *authClient) getUserPage(ctx context.Context, search UserSearch) (*PaginatedUsers, error) {
	if err := recordValidate.Struct(search); err != nil {
		return nil, fmt.Errorf("invalid search: %w", err)
	}
	var out PaginatedUsers
	err := c.do(ctx, call{
		method: http.MethodGet,
		route:  "/users/list",
		path:   "/users/list",
		query:  search.Values(),
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *authClient) getAuth(ctx context.Context) (*AuthenticatedEntity, error) {
	var out AuthenticatedEntity
	if err := c.do(ctx, call{method: http.MethodGet, route: "/auth/me", path: "/auth/me", out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *authClient) deleteAuth(ctx context.Context) error {
	return c.do(ctx, call{method: http.MethodDelete, route: "/auth/me", path: "/auth/me"})
}

func (c *authClient) refreshToken(ctx context.Context) (*AuthenticatedEntity, error) {
	var out AuthenticatedEntity
	if err := c.do(ctx, call{method: http.MethodPatch, route: "/auth/me", path: "/auth/me", out: &out}); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, fmt.Errorf("%w: refreshed entity carries no token", ErrInvalidResponse)
	}
	return &out, nil
}

func (c *authClient) proposeRelationship(ctx context.Context, otherID int64, kind RelationshipKind) (*RelationshipRecord, error) {
	var out RelationshipRecord
	err := c.do(ctx, call{
		method: http.MethodPost,
		route:  "/user/{id}/relationship",
		path:   userPath(otherID, "/relationship"),
		body:   relationshipCreate{Kind: kind},
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *authClient) getRelationship(ctx context.Context, otherID int64) (*RelationshipRecord, error) {
	var out RelationshipRecord
	err := c.do(ctx, call{
		method: http.MethodGet,
		route:  "/user/{id}/relationship",
		path:   userPath(otherID, "/relationship"),
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *authClient) leaveRelationship(ctx context.Context, otherID int64) error {
	return c.do(ctx, call{
		method: http.MethodDelete,
		route:  "/user/{id}/relationship",
		path:   userPath(otherID, "/relationship"),
	})
}

func (c *authClient) acceptProposal(ctx context.Context, otherID int64) (*RelationshipRecord, error) {
	var out RelationshipRecord
	err := c.do(ctx, call{
		method: http.MethodPost,
		route:  "/user/{id}/relationship/accept",
		path:   userPath(otherID, "/relationship/accept"),
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *authClient) updateGender(ctx context.Context, gender Gender) (*UserRecord, error) {
	var out UserRecord
	err := c.do(ctx, call{
		method: http.MethodPut,
		route:  "/users/me/gender",
		path:   "/users/me/gender",
		body:   genderUpdate{Gender: gender},
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
