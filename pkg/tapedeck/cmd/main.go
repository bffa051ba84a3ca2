package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/retr0680/tapedeck/pkg/tapedeck"
)

var (
	gitCommit  string
	versionTag string
	buildType  string
)

var opts tapedeck.Options

var rootCmd = &cobra.Command{
	Use:   "tapedeck [paths...]",
	Short: "tapedeck plays a playlist of local audio files.",
	Long: "tapedeck plays a playlist built from local audio files and folders. Paths given on the\n" +
		"command line replace the library from the configuration file for this run.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts.Paths = args
		return run()
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "show verbose logs (useful for debugging serial)")
	rootCmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", tapedeck.DefaultConfigFilepath, "path to the configuration file")
	rootCmd.Flags().BoolVar(&opts.NoTray, "no-tray", false, "run without a tray icon")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// first we need a logger
	logger, err := tapedeck.NewLogger(buildType, opts.Verbose)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	named := logger.Named("main")
	named.Debug("Created logger")

	if versionTag != "" || gitCommit != "" {
		named.Infow("Version info", "gitCommit", gitCommit, "versionTag", versionTag, "buildType", buildType)
	}

	if opts.Verbose {
		named.Debug("Verbose mode enabled, all log messages will be shown")
	}

	t, err := tapedeck.NewTapedeck(logger, opts)
	if err != nil {
		named.Errorw("Failed to create tapedeck instance", "error", err)
		return err
	}

	if versionTag != "" || gitCommit != "" {
		identifier := versionTag
		if identifier == "" {
			identifier = gitCommit
		}

		t.SetVersion(fmt.Sprintf("Version %s-%s", buildType, identifier))
	}

	if err := t.Initialize(); err != nil {
		if errors.Is(err, tapedeck.ErrAlreadyRunning) {
			named.Info("Exiting, another instance owns playback")
		} else {
			named.Errorw("Failed to initialize tapedeck", "error", err)
		}
		return err
	}

	return nil
}
