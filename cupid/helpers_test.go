package cupid

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/cupid/internal/fakeapi"
)

// newTestEnv starts a fake API and returns a client pointed at it
func newTestEnv(t *testing.T, opts ...Option) (*fakeapi.Server, *Client) {
	t.Helper()
	fake := fakeapi.New(zerolog.Nop())
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return fake, client
}

func newTestApp(t *testing.T, client *Client) *App {
	t.Helper()
	app, err := client.Testing().CreateApp(context.Background(), "Test App")
	require.NoError(t, err)
	return app
}

func createTestUser(t *testing.T, app *App, id int64, name string) *AppUser {
	t.Helper()
	user, err := app.CreateUser(context.Background(), id, UserData{
		Name:      name,
		AvatarURL: fmt.Sprintf("https://example.com/%d.png", id),
		Gender:    GenderNonBinary,
	})
	require.NoError(t, err)
	return user
}

// newTestSession registers a Discord account and logs in with it
func newTestSession(t *testing.T, client *Client, id int64, name string) *UserSession {
	t.Helper()
	ctx := context.Background()
	token := fmt.Sprintf("discord-token-%d", id)
	err := client.Testing().RegisterDiscordToken(ctx, DiscordUser{
		Token:         token,
		ID:            id,
		Name:          name,
		Discriminator: "0504",
		AvatarURL:     fmt.Sprintf("https://cdn.example.com/avatars/%d.png", id),
	})
	require.NoError(t, err)

	session, err := client.DiscordAuthenticate(ctx, token)
	require.NoError(t, err)
	return session
}
