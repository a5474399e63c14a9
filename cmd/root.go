package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/s0up4200/cupid/config"
	"github.com/s0up4200/cupid/cupid"
	"github.com/s0up4200/cupid/filter"
)

var (
	cfgFile      string
	outputFormat string
	cfg          *config.Config
	logger       zerolog.Logger
	client       *cupid.Client
	filters      *filter.Manager
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cupid",
	Short: "Command line client for the Cupid relationship API",
	Long: `cupid talks to a Cupid server: look up users, browse the relationship
graph, and propose, accept or leave relationships.

Authenticate with an app token or a user session token in the config file
or the CUPID_AUTH_APP_TOKEN / CUPID_AUTH_SESSION_TOKEN environment variables.`,
	SilenceUsage:       true,
	PersistentPreRunE:  initializeApp,
	PersistentPostRunE: closeApp,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: table, json or yaml")

	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(relationshipCmd)
	rootCmd.AddCommand(genderCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(updateCmd)
}

// initializeApp loads the configuration and creates the API client
func initializeApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("output") {
		switch outputFormat {
		case config.OutputTable, config.OutputJSON, config.OutputYAML:
			cfg.Output.Format = outputFormat
		default:
			return fmt.Errorf("invalid output format: %s", outputFormat)
		}
	}

	logger = setupLogger(cfg.Logging)

	client, err = cupid.NewClient(cfg.API.URL, logger,
		cupid.WithTimeout(cfg.API.Timeout),
		cupid.WithUserAgent("cupid-cli/"+version),
		cupid.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
	)
	if err != nil {
		return fmt.Errorf("failed to create Cupid client: %w", err)
	}

	// PersistentPostRunE is skipped when a command fails
	if err := closeApp(cmd, args); err != nil {
		return err
	}
	filters = filter.NewManager(
		filter.WithCompiler(filter.NewExprCompiler(filter.WithCache(cfg.Evaluation.CacheSize))),
		filter.WithEvaluator(filter.NewConcurrentEvaluator(
			filter.WithWorkers(cfg.Evaluation.Workers),
			filter.WithBatchSize(cfg.Evaluation.BatchSize),
		)),
	)
	if err := filters.RegisterFilters(cfg.Filters); err != nil {
		return fmt.Errorf("invalid filter in config: %w", err)
	}

	logger.Debug().Str("url", client.BaseURL()).Msg("Client initialised")
	return nil
}

// closeApp releases what initializeApp created
func closeApp(cmd *cobra.Command, args []string) error {
	if filters == nil {
		return nil
	}
	err := filters.Close(cmd.Context())
	filters = nil
	return err
}

// setupLogger configures the zerolog logger
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "trace":
		level = zerolog.TraceLevel
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	fd := os.Stderr.Fd()
	terminal := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !cfg.Color || !terminal,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

// authenticate resolves the configured token to an app or user session
func authenticate(ctx context.Context) (cupid.AuthContext, error) {
	token := cfg.Auth.Token()
	if token == "" {
		return nil, fmt.Errorf("no token configured: set auth.app_token or auth.session_token, or run 'cupid login'")
	}
	return client.Authenticate(ctx, token)
}

// requireApp authenticates and fails unless the token belongs to an app
func requireApp(ctx context.Context) (*cupid.App, error) {
	auth, err := authenticate(ctx)
	if err != nil {
		return nil, err
	}
	app, ok := auth.(*cupid.App)
	if !ok {
		return nil, fmt.Errorf("this command needs an app token")
	}
	return app, nil
}

// actingUser returns the user commands act as. Sessions act as their own
// user. Apps must name the user with --as.
func actingUser(ctx context.Context, auth cupid.AuthContext, as int64) (cupid.Actor, error) {
	switch a := auth.(type) {
	case *cupid.UserSession:
		if as != 0 && as != a.User().ID() {
			return nil, fmt.Errorf("a user session can only act as itself (user %d)", a.User().ID())
		}
		return a.User(), nil
	case *cupid.App:
		if as == 0 {
			return nil, fmt.Errorf("--as is required when authenticated as an app")
		}
		fetched, err := a.GetUser(ctx, as)
		if err != nil {
			return nil, fmt.Errorf("failed to get user %d: %w", as, err)
		}
		actor, ok := fetched.User.(cupid.Actor)
		if !ok {
			return nil, fmt.Errorf("can not act as user %d", as)
		}
		return actor, nil
	default:
		return nil, fmt.Errorf("unsupported authentication context %T", auth)
	}
}

// parseIDs parses user IDs given as arguments
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
