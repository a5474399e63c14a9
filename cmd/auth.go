package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/s0up4200/cupid/cupid"
)

var discordToken string

type identityView struct {
	Kind      string     `json:"kind" yaml:"kind"`
	ID        int64      `json:"id" yaml:"id"`
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
	User      *userView  `json:"user,omitempty" yaml:"user,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Token     string     `json:"token,omitempty" yaml:"token,omitempty"`
}

func newIdentityView(auth cupid.AuthContext, withToken bool) identityView {
	view := identityView{ID: auth.ID()}
	switch a := auth.(type) {
	case *cupid.App:
		view.Kind = cupid.EntityApp.String()
		view.Name = a.Name()
	case *cupid.UserSession:
		view.Kind = cupid.EntitySession.String()
		user := newUserView(a.User())
		view.User = &user
		expires := a.ExpiresAt()
		view.ExpiresAt = &expires
	}
	if withToken {
		view.Token = auth.Token()
	}
	return view
}

func printIdentity(cmd *cobra.Command, view identityView) error {
	return newPrinter(cmd.OutOrStdout()).print(view, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "Kind:\t%s\n", view.Kind)
		fmt.Fprintf(w, "ID:\t%d\n", view.ID)
		if view.Name != "" {
			fmt.Fprintf(w, "Name:\t%s\n", view.Name)
		}
		if view.User != nil {
			fmt.Fprintf(w, "User:\t%d (%s)\n", view.User.ID, view.User.Name)
		}
		if view.ExpiresAt != nil {
			fmt.Fprintf(w, "Expires:\t%s\n", view.ExpiresAt.Format(time.RFC3339))
		}
		if view.Token != "" {
			fmt.Fprintf(w, "Token:\t%s\n", view.Token)
		}
	})
}

// whoamiCmd shows who the configured token belongs to
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the app or user session the configured token belongs to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		auth, err := authenticate(cmd.Context())
		if err != nil {
			return err
		}
		return printIdentity(cmd, newIdentityView(auth, false))
	},
}

// loginCmd exchanges a Discord OAuth token for a user session
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with a Discord OAuth token and print the session token",
	Long: `Exchange a Discord OAuth token for a Cupid user session. The session
token is printed; store it as auth.session_token to use it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if discordToken == "" {
			return fmt.Errorf("--discord-token is required")
		}
		session, err := client.DiscordAuthenticate(cmd.Context(), discordToken)
		if err != nil {
			return fmt.Errorf("failed to log in: %w", err)
		}
		logger.Info().Int64("user", session.User().ID()).Msg("Logged in")
		return printIdentity(cmd, newIdentityView(session, true))
	},
}

// tokenCmd groups token management commands
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the configured token",
}

var tokenRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Replace the configured token with a new one and print it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		auth, err := authenticate(cmd.Context())
		if err != nil {
			return err
		}
		if err := auth.RefreshToken(cmd.Context()); err != nil {
			return fmt.Errorf("failed to refresh token: %w", err)
		}
		logger.Warn().Msg("The previous token no longer works, update your configuration")
		return printIdentity(cmd, newIdentityView(auth, true))
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Invalidate the configured token",
	Long:  `Invalidate the configured token. For an app this deletes the app.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		auth, err := authenticate(cmd.Context())
		if err != nil {
			return err
		}
		if err := auth.Delete(cmd.Context()); err != nil {
			return fmt.Errorf("failed to revoke token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Token revoked.")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&discordToken, "discord-token", "", "Discord OAuth access token")

	tokenCmd.AddCommand(tokenRefreshCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)
}
