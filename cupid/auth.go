package cupid

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentFetches bounds App.GetUsers
const maxConcurrentFetches = 4

var (
	_ AuthContext = (*App)(nil)
	_ AuthContext = (*UserSession)(nil)
)

// authBase holds what apps and sessions share: the authenticated client
// and the resolution rule of the concrete context.
type authBase struct {
	client  *authClient
	resolve resolveFunc
	logger  zerolog.Logger
}

// Token returns the current bearer token
func (b *authBase) Token() string {
	return b.client.token.Load()
}

// GetUser fetches a user and their relationships
func (b *authBase) GetUser(ctx context.Context, id int64) (*UserWithRelationships, error) {
	rec, err := b.client.getUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return resolveWithRelationships(*rec, b.resolve), nil
}

// Graph fetches the accepted-relationship graph
func (b *authBase) Graph(ctx context.Context) (*Graph, error) {
	data, err := b.client.getGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get graph: %w", err)
	}
	g, err := newGraph(data, b.resolve)
	if err != nil {
		return nil, err
	}
	b.logger.Debug().
		Int("users", len(g.Users)).
		Int("relationships", len(g.Relationships)).
		Msg("Retrieved relationship graph")
	return g, nil
}

// Users returns a list of users matching search. A perPage of zero or
// less uses DefaultPerPage.
func (b *authBase) Users(search string, perPage int) *UserList {
	return newUserList(b.client, b.resolve, search, perPage)
}

// refresh swaps the token in the shared cell
func (b *authBase) refresh(ctx context.Context) (*AuthenticatedEntity, error) {
	ent, err := b.client.refreshToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	b.client.token.Store(ent.Token)
	b.logger.Debug().Int64("id", ent.ID()).Msg("Refreshed token")
	return ent, nil
}

// Delete deletes the app or session. The token stops working; nothing is
// checked locally, so later calls fail with ErrBadAuthentication.
func (b *authBase) Delete(ctx context.Context) error {
	if err := b.client.deleteAuth(ctx); err != nil {
		return fmt.Errorf("failed to delete authenticated entity: %w", err)
	}
	return nil
}

// App is an authenticated API application.
//
// Every user an App resolves is a new *AppUser acting for that user, so
// two resolutions of the same ID never share an instance.
type App struct {
	authBase
	record AppRecord
}

func newApp(client *authClient, rec AppRecord, logger zerolog.Logger) *App {
	a := &App{record: rec}
	a.authBase = authBase{
		client:  client,
		resolve: a.resolveUser,
		logger:  logger.With().Str("entity", EntityApp.String()).Int64("app_id", rec.ID).Logger(),
	}
	return a
}

// ID returns the app's ID
func (a *App) ID() int64 {
	return a.record.ID
}

// Name returns the app's name
func (a *App) Name() string {
	return a.record.Name
}

func (a *App) resolveUser(rec UserRecord) User {
	return a.newAppUser(rec)
}

func (a *App) newAppUser(rec UserRecord) *AppUser {
	return &AppUser{SelfUser{
		userData: userData{record: rec},
		client:   a.client.forUser(rec.ID),
		resolve:  a.resolve,
	}}
}

// RefreshToken replaces the app's token. Users resolved earlier use the new token.
func (a *App) RefreshToken(ctx context.Context) error {
	_, err := a.refresh(ctx)
	return err
}

// CreateUser creates or overwrites the user with the given ID
func (a *App) CreateUser(ctx context.Context, id int64, data UserData) (*AppUser, error) {
	if data.Discriminator != nil {
		d, err := ParseDiscriminator(*data.Discriminator)
		if err != nil {
			return nil, err
		}
		data.Discriminator = d
	}
	rec, err := a.client.setUser(ctx, id, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %d: %w", id, err)
	}
	a.logger.Debug().Int64("user_id", rec.ID).Msg("Created user")
	return a.newAppUser(*rec), nil
}

// GetUsers fetches several users concurrently. Results are in the order
// of ids; the first failure cancels the rest.
func (a *App) GetUsers(ctx context.Context, ids ...int64) ([]*UserWithRelationships, error) {
	users := make([]*UserWithRelationships, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	for i, id := range ids {
		g.Go(func() error {
			u, err := a.GetUser(gctx, id)
			if err != nil {
				return err
			}
			users[i] = u
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return users, nil
}

// UserSession is an authenticated user session.
//
// The session owns one *SelfUser for its bound user. Any call that
// returns data for that user updates it in place and returns the same
// pointer; every other user is a new *ForeignUser.
type UserSession struct {
	authBase
	id        int64
	expiresAt time.Time
	self      *SelfUser
}

func newUserSession(client *authClient, rec SessionRecord, logger zerolog.Logger) *UserSession {
	s := &UserSession{
		id:        rec.ID,
		expiresAt: rec.ExpiresAt,
	}
	s.authBase = authBase{
		client:  client,
		resolve: s.resolveUser,
		logger:  logger.With().Str("entity", EntitySession.String()).Int64("session_id", rec.ID).Logger(),
	}
	s.self = &SelfUser{
		userData: userData{record: rec.User},
		client:   client,
		resolve:  s.resolve,
	}
	return s
}

// ID returns the session's ID
func (s *UserSession) ID() int64 {
	return s.id
}

// User returns the session's canonical user
func (s *UserSession) User() *SelfUser {
	return s.self
}

// ExpiresAt returns when the session stops being valid
func (s *UserSession) ExpiresAt() time.Time {
	return s.expiresAt
}

func (s *UserSession) resolveUser(rec UserRecord) User {
	if rec.ID == s.self.ID() {
		s.self.record = rec
		return s.self
	}
	return &ForeignUser{userData{record: rec}}
}

// RefreshToken replaces the session's token and updates its expiry
func (s *UserSession) RefreshToken(ctx context.Context) error {
	ent, err := s.refresh(ctx)
	if err != nil {
		return err
	}
	if ent.Kind == EntitySession {
		s.expiresAt = ent.Session.ExpiresAt
		s.resolveUser(ent.Session.User)
	}
	return nil
}
