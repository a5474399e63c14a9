package cupid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestingClient(t *testing.T) {
	fake, client := newTestEnv(t)
	ctx := context.Background()
	tc := client.Testing()

	enabled, err := tc.Enabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	app := newTestApp(t, client)
	createTestUser(t, app, 100, "Alice")

	require.NoError(t, tc.ClearDatabase(ctx))

	_, err = client.App(ctx, app.Token())
	assert.ErrorIs(t, err, ErrBadAuthentication, "clearing removes apps")

	fake.SetTesting(false)
	_, err = tc.Enabled(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tc.CreateApp(ctx, "Another App")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTestingClient_RegisterDiscordTokenValidation(t *testing.T) {
	_, client := newTestEnv(t)

	err := client.Testing().RegisterDiscordToken(context.Background(), DiscordUser{
		Token:         "token",
		ID:            1,
		Name:          "Ada",
		Discriminator: "12345",
		AvatarURL:     "https://example.com/a.png",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid request body")
}
