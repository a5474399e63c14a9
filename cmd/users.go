package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/s0up4200/cupid/cupid"
	"github.com/s0up4200/cupid/filter"
)

var (
	actAs int64

	editName          string
	editAvatarURL     string
	editGender        string
	editDiscriminator string

	searchPerPage int
	searchLimit   int
	searchWhere   string
	searchFilters []string
)

// userCmd groups commands on single users
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Look up or edit users",
}

var userGetCmd = &cobra.Command{
	Use:   "get ID...",
	Short: "Show users and their relationships",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUserGet,
}

var userSetCmd = &cobra.Command{
	Use:   "set ID",
	Short: "Create or update a user (app only)",
	Long: `Create or update a user. Only apps may write users. When the user
exists, flags that are not given keep their current value. A discriminator
of 0 removes it.`,
	Args: cobra.ExactArgs(1),
	RunE: runUserSet,
}

// usersCmd groups commands on lists of users
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List and search users",
}

var usersSearchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search users by name",
	Long: `Search users whose name contains QUERY, or list every user when no
query is given. Results can be narrowed further with an expression:

  cupid users search --where 'gender == "female" and has_discriminator'
  cupid users search ali --where 'prefixFold(name, "al")'

Available variables: id, name, tag, discriminator, has_discriminator,
avatar_url, gender. Named expressions from the filters section of the config
file are used with --filter NAME. Given several names, the users matching
each filter are listed separately:

  cupid users search --filter women,tagged`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUsersSearch,
}

// genderCmd groups gender commands
var genderCmd = &cobra.Command{
	Use:   "gender",
	Short: "Manage the acting user's gender",
}

var genderSetCmd = &cobra.Command{
	Use:   "set GENDER",
	Short: "Set the acting user's gender (non_binary, female or male)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gender, err := cupid.ParseGender(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		auth, err := authenticate(ctx)
		if err != nil {
			return err
		}
		actor, err := actingUser(ctx, auth, actAs)
		if err != nil {
			return err
		}
		if err := actor.SetGender(ctx, gender); err != nil {
			return fmt.Errorf("failed to set gender: %w", err)
		}
		return newPrinter(cmd.OutOrStdout()).users([]userView{newUserView(actor)})
	},
}

func init() {
	userSetCmd.Flags().StringVar(&editName, "name", "", "display name")
	userSetCmd.Flags().StringVar(&editAvatarURL, "avatar-url", "", "avatar URL")
	userSetCmd.Flags().StringVar(&editGender, "gender", "", "gender: non_binary, female or male")
	userSetCmd.Flags().StringVar(&editDiscriminator, "discriminator", "", "four digit discriminator, 0 to remove")
	userCmd.AddCommand(userGetCmd)
	userCmd.AddCommand(userSetCmd)

	usersSearchCmd.Flags().IntVar(&searchPerPage, "per-page", 0, "page size used when fetching (default from config)")
	usersSearchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of users to show, 0 for all")
	usersSearchCmd.Flags().StringVarP(&searchWhere, "where", "w", "", "filter expression")
	usersSearchCmd.Flags().StringSliceVarP(&searchFilters, "filter", "f", nil, "named filters from config, comma separated")
	usersCmd.AddCommand(usersSearchCmd)

	genderSetCmd.Flags().Int64Var(&actAs, "as", 0, "user to act as (required for apps)")
	genderCmd.AddCommand(genderSetCmd)
}

func runUserGet(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	auth, err := authenticate(ctx)
	if err != nil {
		return err
	}

	var fetched []*cupid.UserWithRelationships
	if app, ok := auth.(*cupid.App); ok {
		fetched, err = app.GetUsers(ctx, ids...)
		if err != nil {
			return fmt.Errorf("failed to get users: %w", err)
		}
	} else {
		for _, id := range ids {
			u, err := auth.GetUser(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to get user %d: %w", id, err)
			}
			fetched = append(fetched, u)
		}
	}

	profiles := make([]profileView, 0, len(fetched))
	for _, u := range fetched {
		profiles = append(profiles, newProfileView(u))
	}
	return newPrinter(cmd.OutOrStdout()).profiles(profiles)
}

func runUserSet(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	id := ids[0]

	var gender cupid.Gender
	if editGender != "" {
		if gender, err = cupid.ParseGender(editGender); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	app, err := requireApp(ctx)
	if err != nil {
		return err
	}

	var user *cupid.AppUser
	existing, err := app.GetUser(ctx, id)
	switch {
	case errors.Is(err, cupid.ErrNotFound):
		user, err = createUser(ctx, app, id, gender)
		if err != nil {
			return err
		}
		logger.Info().Int64("user", id).Msg("Created user")
	case err != nil:
		return fmt.Errorf("failed to get user %d: %w", id, err)
	default:
		user = existing.User.(*cupid.AppUser)
		edit := cupid.UserEdit{
			Name:      editName,
			AvatarURL: editAvatarURL,
			Gender:    gender,
		}
		if cmd.Flags().Changed("discriminator") {
			edit.Discriminator = &editDiscriminator
		}
		if err := user.Edit(ctx, edit); err != nil {
			return err
		}
		logger.Info().Int64("user", id).Msg("Updated user")
	}

	return newPrinter(cmd.OutOrStdout()).users([]userView{newUserView(user)})
}

func createUser(ctx context.Context, app *cupid.App, id int64, gender cupid.Gender) (*cupid.AppUser, error) {
	if editName == "" || editAvatarURL == "" {
		return nil, fmt.Errorf("user %d does not exist: --name and --avatar-url are required to create it", id)
	}
	if gender == "" {
		gender = cupid.GenderNonBinary
	}
	data := cupid.UserData{
		Name:      editName,
		AvatarURL: editAvatarURL,
		Gender:    gender,
	}
	if editDiscriminator != "" {
		d, err := cupid.ParseDiscriminator(editDiscriminator)
		if err != nil {
			return nil, err
		}
		data.Discriminator = d
	}
	return app.CreateUser(ctx, id, data)
}

func runUsersSearch(cmd *cobra.Command, args []string) error {
	var query string
	if len(args) > 0 {
		query = args[0]
	}
	perPage := searchPerPage
	if perPage <= 0 {
		perPage = cfg.API.PerPage
	}

	if searchWhere != "" && len(searchFilters) > 0 {
		return fmt.Errorf("--where and --filter can not be combined")
	}
	names := uniqueNames(searchFilters)
	if len(names) > 1 {
		return runFilterGroups(cmd, query, perPage, names)
	}

	compiled, err := searchExpression(names)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	auth, err := authenticate(ctx)
	if err != nil {
		return err
	}
	list := auth.Users(query, perPage)

	var users []cupid.User
	if compiled == nil {
		users, err = list.Flatten(ctx, searchLimit)
	} else {
		users, err = filterPages(ctx, list, compiled, searchLimit)
	}
	if err != nil {
		return fmt.Errorf("failed to search users: %w", err)
	}

	if total, err := list.Total(); err == nil {
		logger.Debug().Int("total", total).Int("shown", len(users)).Msg("Search complete")
	}
	return newPrinter(cmd.OutOrStdout()).users(newUserViews(users))
}

// searchExpression returns the filter selected by --where or a single
// --filter, or nil when neither is given
func searchExpression(names []string) (filter.CompiledFilter, error) {
	switch {
	case searchWhere != "":
		compiled, err := filters.Compile(searchWhere)
		if err != nil {
			return nil, fmt.Errorf("invalid --where expression: %w", err)
		}
		return compiled, nil
	case len(names) == 1:
		compiled, ok := filters.GetFilter(names[0])
		if !ok {
			return nil, fmt.Errorf("filter %q not found in config (known: %v)", names[0], filters.ListFilters())
		}
		return compiled, nil
	default:
		return nil, nil
	}
}

// runFilterGroups fetches every search result once and lists the matches of
// each named filter. --limit applies per filter.
func runFilterGroups(cmd *cobra.Command, query string, perPage int, names []string) error {
	ctx := cmd.Context()
	auth, err := authenticate(ctx)
	if err != nil {
		return err
	}

	users, err := auth.Users(query, perPage).Flatten(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to search users: %w", err)
	}

	results, err := filters.EvaluateSelected(ctx, names, users)
	if err != nil {
		return fmt.Errorf("%w (known: %v)", err, filters.ListFilters())
	}

	groups := make([]filterMatchesView, 0, len(names))
	for _, name := range names {
		result := results[name]
		if result.Error != nil {
			return fmt.Errorf("filter '%s' failed: %w", name, result.Error)
		}
		matches := result.Matches
		if searchLimit > 0 && len(matches) > searchLimit {
			matches = matches[:searchLimit]
		}
		groups = append(groups, filterMatchesView{Filter: name, Users: newUserViews(matches)})
	}

	logger.Debug().Int("users", len(users)).Strs("filters", names).Msg("Filters evaluated")
	return newPrinter(cmd.OutOrStdout()).filterMatches(groups)
}

// uniqueNames drops empty and repeated filter names, keeping the first
// occurrence
func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// filterPages walks the list page by page, keeping users matching the
// filter until limit users are found. A limit of zero walks every page.
func filterPages(ctx context.Context, list *cupid.UserList, compiled filter.CompiledFilter, limit int) ([]cupid.User, error) {
	var matches []cupid.User
	for page := 0; ; page++ {
		users, err := list.GetPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(users) == 0 {
			return matches, nil
		}

		found, err := filters.Evaluate(ctx, compiled, users)
		if err != nil {
			return nil, err
		}
		matches = append(matches, found...)
		if limit > 0 && len(matches) >= limit {
			return matches[:limit], nil
		}
	}
}
