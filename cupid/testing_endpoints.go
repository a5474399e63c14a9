package cupid

import (
	"context"
	"fmt"
	"net/http"
)

// TestingClient calls the endpoints a Cupid server only serves when
// testing mode is enabled. They need no authentication.
type TestingClient struct {
	client *Client
}

type testingStatus struct {
	Testing bool `json:"testing"`
}

type appCreate struct {
	Name string `json:"name" validate:"required,max=255"`
}

// DiscordUser is a Discord account registered for a later DiscordAuthenticate
type DiscordUser struct {
	Token         string `json:"token" validate:"required"`
	ID            int64  `json:"id"`
	Name          string `json:"name" validate:"required,min=1,max=255"`
	Discriminator string `json:"discriminator" validate:"required,discriminator"`
	AvatarURL     string `json:"avatar_url" validate:"required,min=7,max=255"`
}

// Enabled reports whether testing mode is enabled
func (t *TestingClient) Enabled(ctx context.Context) (bool, error) {
	var out testingStatus
	err := t.client.t.do(ctx, call{method: http.MethodGet, route: "/testing", path: "/testing", out: &out})
	if err != nil {
		return false, err
	}
	return out.Testing, nil
}

// ClearDatabase deletes every app, session, user and relationship
func (t *TestingClient) ClearDatabase(ctx context.Context) error {
	return t.client.t.do(ctx, call{method: http.MethodPost, route: "/testing/clear", path: "/testing/clear"})
}

// CreateApp creates a new app and authenticates as it
func (t *TestingClient) CreateApp(ctx context.Context, name string) (*App, error) {
	var ent AuthenticatedEntity
	err := t.client.t.do(ctx, call{
		method: http.MethodPost,
		route:  "/testing/app",
		path:   "/testing/app",
		body:   appCreate{Name: name},
		out:    &ent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	if ent.Kind != EntityApp || ent.Token == "" {
		return nil, fmt.Errorf("%w: expected an app with a token", ErrInvalidResponse)
	}
	return newApp(t.client.authClient(ent.Token), *ent.App, t.client.logger), nil
}

// RegisterDiscordToken registers a Discord token and the account it belongs to
func (t *TestingClient) RegisterDiscordToken(ctx context.Context, user DiscordUser) error {
	return t.client.t.do(ctx, call{
		method: http.MethodPost,
		route:  "/testing/discord_user",
		path:   "/testing/discord_user",
		body:   user,
	})
}
