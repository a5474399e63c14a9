// Package cupid provides a client for the Cupid relationship graph API.
//
// Cupid stores users and the marriages and adoptions between them. Apps
// manage users on behalf of their platform, and users log in with Discord
// to manage their own relationships. This package turns the raw records
// the API returns into objects whose capabilities match who is asking.
//
// # Architecture
//
// The package is organized into several components:
//
//   - Client: The unauthenticated entry point that produces auth contexts
//   - App, UserSession: Auth contexts that fetch and resolve users
//   - User variants: ForeignUser, SelfUser and AppUser, typed by permissions
//   - Relationship: A relationship seen from one party's side
//   - UserList: Lazy pagination over user search results
//   - Errors: APIError with a Kind for every failed status
//
// # Usage
//
// Create a client and authenticate with an app token:
//
//	logger := zerolog.New(os.Stdout)
//	client, err := cupid.NewClient(
//		"https://cupid.example.com",
//		logger,
//		cupid.WithTimeout(30*time.Second),
//		cupid.WithRateLimit(10, 5),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	app, err := client.App(ctx, token)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	alice, err := app.CreateUser(ctx, 100, cupid.UserData{
//		Name:      "Alice",
//		AvatarURL: "https://example.com/alice.png",
//		Gender:    cupid.GenderFemale,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	proposal, err := alice.Propose(ctx, 200, cupid.KindMarriage)
//
// # Identity
//
// A UserSession owns a single *SelfUser for its bound user. Whenever the
// API returns that user again, from GetUser, a graph, a search or a
// relationship, the same pointer is updated in place and returned, so a
// reference held anywhere sees the latest data. Other users are new values
// on every call.
//
// An App has no user of its own. Every user it resolves is a fresh
// *AppUser whose requests carry a Cupid-User header naming that user.
//
// Tokens live in a cell shared by a context and everything derived from
// it. After RefreshToken, users resolved earlier use the new token.
//
// # Pagination
//
// Users returns a UserList. Pages are fetched one at a time until an empty
// page; the total reported by the server is informational only:
//
//	list := app.Users("ali", 50)
//	for user, err := range list.All(ctx) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(user.Name())
//	}
//
// # Error Handling
//
// Every non-2xx response becomes one *APIError. Match its kind with the
// sentinel errors:
//
//   - ErrBadAuthentication: 401, missing or invalid token
//   - ErrForbidden: 403
//   - ErrNotFound: 404
//   - ErrConflict: 409, e.g. accepting an accepted relationship
//   - ErrValidation: 422, with per-field Problems
//   - ErrClient: any 4xx, including all of the above
//   - ErrServer: any 5xx
//
//	if errors.Is(err, cupid.ErrConflict) {
//		// already accepted
//	}
//
// The client never retries.
package cupid
