package cmd

import (
	"fmt"
	"runtime"

	"github.com/blang/semver"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/s0up4200/cupid/config"
)

const repository = "s0up4200/cupid"

var (
	version   = "dev"
	buildTime = "unknown"

	checkOnly bool
)

// SetVersion sets the version information reported by the CLI
func SetVersion(v, bt string) {
	version = v
	buildTime = bt
}

// skipConfig is used by commands that work without a configuration
func skipConfig(cmd *cobra.Command, args []string) error {
	logger = setupLogger(config.LoggingConfig{Level: "info", Format: "console", Color: true})
	return nil
}

// releaseVersion parses the build version, reporting false for development builds
func releaseVersion() (semver.Version, bool) {
	v, err := semver.ParseTolerant(version)
	if err != nil {
		return semver.Version{}, false
	}
	return v, true
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print the version",
	Args:              cobra.NoArgs,
	PersistentPreRunE: skipConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if v, ok := releaseVersion(); ok {
			fmt.Fprintf(out, "cupid %s\n", v)
		} else {
			fmt.Fprintf(out, "cupid %s (development build)\n", version)
		}
		fmt.Fprintf(out, "built:   %s\n", buildTime)
		fmt.Fprintf(out, "go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:               "update",
	Short:             "Update cupid to the latest release",
	Args:              cobra.NoArgs,
	PersistentPreRunE: skipConfig,
	RunE:              runUpdate,
}

func init() {
	updateCmd.Flags().BoolVar(&checkOnly, "check", false, "only check whether an update is available")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	current, ok := releaseVersion()
	if !ok {
		return fmt.Errorf("development builds can not be updated, install a release instead")
	}

	ctx := cmd.Context()
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(repository))
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	if !found {
		return fmt.Errorf("no release found for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	out := cmd.OutOrStdout()
	if latest.LessOrEqual(current.String()) {
		fmt.Fprintf(out, "cupid %s is the latest version\n", current)
		return nil
	}

	if checkOnly {
		fmt.Fprintf(out, "cupid %s is available (current: %s)\n", latest.Version(), current)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	logger.Info().Str("from", current.String()).Str("to", latest.Version()).Msg("Updating")
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}

	fmt.Fprintf(out, "Updated to cupid %s\n", latest.Version())
	return nil
}
