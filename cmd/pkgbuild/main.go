package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buckos/pkgbuild/internal/buildinfo"
	"github.com/buckos/pkgbuild/internal/config"
	"github.com/buckos/pkgbuild/internal/log"
)

var (
	quietFlag   bool
	verboseFlag bool
	debugFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "pkgbuild",
	Short: "Build distribution packages in stage-isolated environments",
	Long: `pkgbuild builds one package from a resolved build request. It composes
the compiler and search-path environment for the requested bootstrap stage
from the dependency roots on disk, runs the build phases under isolation,
verifies the installed image and records provenance.`,
	Version:       buildinfo.Version(),
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetDefault(log.NewText(os.Stderr, logLevel()))
	},
}

// logLevel maps the verbosity flags and PKGBUILD_DEBUG onto a level.
func logLevel() slog.Level {
	switch {
	case debugFlag || config.IsTruthy(os.Getenv(config.EnvDebug)):
		return slog.LevelDebug
	case verboseFlag:
		return slog.LevelInfo
	case quietFlag:
		return slog.LevelError
	}
	return slog.LevelWarn
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Only print errors")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log phase boundaries and fetch progress")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Log everything, including search path decisions")
	rootCmd.MarkFlagsMutuallyExclusive("quiet", "verbose", "debug")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(locksCmd)
	rootCmd.AddCommand(provenanceCmd)
	rootCmd.AddCommand(pkgConfigProxyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	var exit *exitError
	if errors.As(err, &exit) {
		exitWithCode(exit.code)
	}
	if err != nil {
		printError(err)
		exitWithCode(exitCodeFor(err))
	}
}
