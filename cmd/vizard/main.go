package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/app"
	"github.com/ternarybob/vizard/internal/common"
)

// errTestsFailed exits non-zero without logging a second error; the run
// already reported its failures.
var errTestsFailed = errors.New("at least one test failed")

var (
	// Persistent flags
	configFiles []string
	verbose     bool
	silent      bool

	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "vizard",
	Short:         "Visual regression testing for UI components",
	Long:          `Renders every registered test in headless browsers, captures a screenshot per viewport and compares it against an approved golden screenshot.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be repeated, later files override earlier ones)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log debug output")
	rootCmd.PersistentFlags().BoolVar(&silent, "silent", false, "Only log errors")

	rootCmd.AddCommand(makeGoldenCmd, testCmd, compileCmd, historyCmd, versionCmd)
}

func main() {
	defer common.RecoverWithCrashFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, errTestsFailed) {
			l := logger
			if l == nil {
				l = common.GetLogger()
			}
			l.Error().Err(err).Msg("Error while running Vizard")
		}
		os.Exit(1)
	}
}

// loadConfig resolves the configuration (defaults -> files -> env -> flags)
// and initializes the logger.
func loadConfig() (*common.Config, error) {
	paths := configFiles
	var discovered []string
	if len(paths) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		discovered = common.DiscoverConfigFiles(cwd)
		if len(discovered) > 0 {
			paths = discovered[:1]
		}
	}

	config, err := common.LoadFromFiles(paths...)
	if err != nil {
		return nil, err
	}
	common.ApplyFlagOverrides(config, verbose, silent)

	logger = common.InitLogger(config)
	common.InstallCrashHandler(filepath.Join(config.TmpDir, "logs"))
	if len(discovered) > 1 {
		logger.Warn().
			Strs("found", discovered).
			Str("using", discovered[0]).
			Msg("Multiple config files found")
	}
	logger.Debug().Strs("config_files", paths).Msg("Configuration loaded")

	return config, nil
}

// withApp loads the configuration, builds the app and closes it after fn
func withApp(fn func(a *app.App) error) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	common.PrintBanner(common.GetVersion(), config, logger)

	application, err := app.New(config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	return fn(application)
}
