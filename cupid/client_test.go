package cupid

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	logger := zerolog.Nop()

	tests := []struct {
		name    string
		baseURL string
		wantErr bool
		errMsg  string
	}{
		{name: "valid config", baseURL: "http://localhost:8000"},
		{name: "trailing slash", baseURL: "http://localhost:8000/"},
		{name: "missing URL", baseURL: "", wantErr: true, errMsg: "URL is required"},
		{name: "no scheme", baseURL: "localhost:8000", wantErr: true, errMsg: "invalid cupid URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.baseURL, logger)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "http://localhost:8000", client.BaseURL())
		})
	}
}

func TestClientOptions(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("defaults", func(t *testing.T) {
		client, err := NewClient("http://localhost:8000", logger)
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, client.t.httpClient.Timeout)
		assert.Equal(t, DefaultUserAgent, client.t.userAgent)
		assert.Nil(t, client.t.limiter)
		assert.Nil(t, client.t.metrics)
	})

	t.Run("custom", func(t *testing.T) {
		client, err := NewClient("http://localhost:8000", logger,
			WithTimeout(5*time.Second),
			WithUserAgent("cupid-test/1.0"),
			WithRateLimit(10, 0),
		)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, client.t.httpClient.Timeout)
		assert.Equal(t, "cupid-test/1.0", client.t.userAgent)
		require.NotNil(t, client.t.limiter)
		assert.Equal(t, 1, client.t.limiter.Burst())
	})

	t.Run("http client wins", func(t *testing.T) {
		hc := &http.Client{Timeout: time.Minute}
		client, err := NewClient("http://localhost:8000", logger, WithHTTPClient(hc), WithTimeout(time.Second))
		require.NoError(t, err)
		assert.Same(t, hc, client.t.httpClient)
	})

	t.Run("duplicate metrics registration", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		_, err := NewClient("http://localhost:8000", logger, WithMetrics(reg))
		require.NoError(t, err)
		_, err = NewClient("http://localhost:8000", logger, WithMetrics(reg))
		assert.Error(t, err)
	})
}

func TestRequestHeaders(t *testing.T) {
	fake, client := newTestEnv(t, WithUserAgent("cupid-test/1.0"))
	ctx := context.Background()
	app := newTestApp(t, client)
	user := createTestUser(t, app, 100, "Alice")
	createTestUser(t, app, 200, "Bob")

	_, err := user.Propose(ctx, 200, KindMarriage)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, req := range fake.Requests() {
		assert.Equal(t, "cupid-test/1.0", req.UserAgent)
		_, err := uuid.Parse(req.RequestID)
		assert.NoError(t, err, "request id %q", req.RequestID)
		assert.False(t, seen[req.RequestID], "request id reused")
		seen[req.RequestID] = true
	}

	creates := fake.RequestsTo("/user/100")
	require.Len(t, creates, 1)
	assert.Equal(t, "Bearer "+app.Token(), creates[0].Authorization)
	assert.Empty(t, creates[0].ActingUser)

	proposals := fake.RequestsTo("/user/200/relationship")
	require.Len(t, proposals, 1)
	assert.Equal(t, "Bearer "+app.Token(), proposals[0].Authorization)
	assert.Equal(t, "100", proposals[0].ActingUser)

	created := fake.RequestsTo("/testing/app")
	require.Len(t, created, 1)
	assert.Empty(t, created[0].Authorization)
}

func badToken(version, kind byte, id uint32, secret []byte) string {
	buf := []byte{version, kind, 0, 0, 0, 0}
	binary.BigEndian.PutUint32(buf[2:], id)
	return base64.URLEncoding.EncodeToString(append(buf, secret...))
}

func TestBadTokens(t *testing.T) {
	_, client := newTestEnv(t)
	ctx := context.Background()
	app := newTestApp(t, client)
	secret := []byte("0123456789abcdef0123456789abcdef")

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "only padding", token: "===="},
		{name: "not base64", token: "this is not a token"},
		{name: "invalid version", token: badToken(100, 1, 5, secret)},
		{name: "no secret", token: badToken(0, 1, 2000, nil)},
		{name: "invalid type", token: badToken(0, 5, 60, secret)},
		{name: "wrong secret", token: badToken(0, 1, uint32(app.ID()), secret)},
	}

	operations := map[string]func(token string) error{
		"app": func(token string) error {
			_, err := client.App(ctx, token)
			return err
		},
		"session": func(token string) error {
			_, err := client.UserSession(ctx, token)
			return err
		},
		"get user": func(token string) error {
			_, err := app.withToken(token).GetUser(ctx, 1)
			return err
		},
		"graph": func(token string) error {
			_, err := app.withToken(token).Graph(ctx)
			return err
		},
		"list users": func(token string) error {
			_, err := app.withToken(token).Users("", 0).GetPage(ctx, 0)
			return err
		},
		"refresh": func(token string) error {
			return app.withToken(token).RefreshToken(ctx)
		},
	}

	for _, tt := range tests {
		for opName, op := range operations {
			t.Run(tt.name+"/"+opName, func(t *testing.T) {
				err := op(tt.token)
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrBadAuthentication)
			})
		}
	}
}

// withToken returns a copy of the app using its own token cell
func (a *App) withToken(token string) *App {
	client := &authClient{t: a.client.t, token: newTokenCell(token)}
	return newApp(client, a.record, zerolog.Nop())
}

func TestWrongEntityKind(t *testing.T) {
	_, client := newTestEnv(t)
	ctx := context.Background()
	app := newTestApp(t, client)
	session := newTestSession(t, client, 1245, "Artemis")

	_, err := client.UserSession(ctx, app.Token())
	assert.ErrorIs(t, err, ErrWrongEntityKind)

	_, err = client.App(ctx, session.Token())
	assert.ErrorIs(t, err, ErrWrongEntityKind)

	ent, err := client.Authenticate(ctx, session.Token())
	require.NoError(t, err)
	assert.IsType(t, &UserSession{}, ent)

	ent, err = client.Authenticate(ctx, app.Token())
	require.NoError(t, err)
	assert.IsType(t, &App{}, ent)
}

func TestInvalidResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html></html>"},
		{name: "missing app name", body: `{"id": 1}`},
		{name: "bad session user", body: `{"id": 1, "expires_at": "2030-01-01T00:00:00Z", "user": {"id": 2, "name": "", "avatar_url": "x", "gender": "robot"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewClient(server.URL, zerolog.Nop())
			require.NoError(t, err)

			_, err = client.Authenticate(context.Background(), "token")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

func TestServerErrorPassthrough(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, zerolog.Nop())
	require.NoError(t, err)

	_, err = client.App(context.Background(), "token")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServer)
	assert.NotErrorIs(t, err, ErrClient)
	assert.Equal(t, 1, calls, "failed requests are not retried")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, client := newTestEnv(t, WithMetrics(reg))
	ctx := context.Background()
	app := newTestApp(t, client)
	createTestUser(t, app, 100, "Alice")

	_, err := app.GetUser(ctx, 100)
	require.NoError(t, err)
	_, err = app.GetUser(ctx, 404)
	require.Error(t, err)

	requests := client.t.metrics.requests
	assert.Equal(t, float64(1), testutil.ToFloat64(requests.WithLabelValues("GET", "/user/{id}", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(requests.WithLabelValues("GET", "/user/{id}", "404")))
	assert.Equal(t, float64(1), testutil.ToFloat64(requests.WithLabelValues("PUT", "/user/{id}", "200")))
	// POST /testing/app, PUT /user/{id} and GET /user/{id}
	assert.Equal(t, 3, testutil.CollectAndCount(client.t.metrics.duration))
}

func TestRateLimitHonoursContext(t *testing.T) {
	_, client := newTestEnv(t, WithRateLimit(0.001, 1))

	enabled, err := client.Testing().Enabled(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Testing().Enabled(ctx)
	assert.Error(t, err)
}
