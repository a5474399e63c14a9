package cupid

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Client is the entry point to the Cupid API. It holds no credentials
// itself: authenticate with App, UserSession or DiscordAuthenticate to get
// an AuthContext.
type Client struct {
	t      *transport
	logger zerolog.Logger
}

// NewClient creates a new Cupid client
func NewClient(baseURL string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("cupid URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid cupid URL %q", baseURL)
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: options.timeout}
	}

	var metrics *clientMetrics
	if options.registerer != nil {
		metrics, err = newClientMetrics(options.registerer)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return &Client{
		t: &transport{
			baseURL:    strings.TrimRight(baseURL, "/"),
			httpClient: httpClient,
			logger:     logger,
			userAgent:  options.userAgent,
			limiter:    options.limiter,
			metrics:    metrics,
		},
		logger: logger,
	}, nil
}

// BaseURL returns the API URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.t.baseURL
}

func (c *Client) authClient(token string) *authClient {
	return &authClient{t: c.t, token: newTokenCell(token)}
}

// App authenticates with an app token
func (c *Client) App(ctx context.Context, token string) (*App, error) {
	client := c.authClient(token)
	ent, err := client.getAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate app: %w", err)
	}
	if ent.Kind != EntityApp {
		return nil, fmt.Errorf("%w: expected app, got %s", ErrWrongEntityKind, ent.Kind)
	}
	return newApp(client, *ent.App, c.logger), nil
}

// UserSession authenticates with a user session token
func (c *Client) UserSession(ctx context.Context, token string) (*UserSession, error) {
	client := c.authClient(token)
	ent, err := client.getAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate session: %w", err)
	}
	if ent.Kind != EntitySession {
		return nil, fmt.Errorf("%w: expected session, got %s", ErrWrongEntityKind, ent.Kind)
	}
	return newUserSession(client, *ent.Session, c.logger), nil
}

// Authenticate resolves a token of either kind
func (c *Client) Authenticate(ctx context.Context, token string) (AuthContext, error) {
	client := c.authClient(token)
	ent, err := client.getAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	if ent.Kind == EntitySession {
		return newUserSession(client, *ent.Session, c.logger), nil
	}
	return newApp(client, *ent.App, c.logger), nil
}

// DiscordAuthenticate exchanges a Discord OAuth2 bearer token for a new user session
func (c *Client) DiscordAuthenticate(ctx context.Context, discordToken string) (*UserSession, error) {
	var ent AuthenticatedEntity
	err := c.t.do(ctx, call{
		method: http.MethodPost,
		route:  "/auth/login",
		path:   "/auth/login",
		body:   discordAuthenticate{Token: discordToken},
		out:    &ent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to log in with discord: %w", err)
	}
	if ent.Kind != EntitySession || ent.Token == "" {
		return nil, fmt.Errorf("%w: login did not return a session token", ErrInvalidResponse)
	}
	return newUserSession(c.authClient(ent.Token), *ent.Session, c.logger), nil
}

// Testing returns a client for the endpoints only served in testing mode
func (c *Client) Testing() *TestingClient {
	return &TestingClient{client: c}
}
