// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/config"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/pkg/build"
	"github.com/spf13/cobra"
)

// defaultName is used when the binary was built without ldflags.
const defaultName = "mmrphys"

// options holds the flags shared by every subcommand.
type options struct {
	ConfigPath string
	Verbose    bool
}

// Execute builds the command tree and runs it against os.Args.
func Execute() error {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(os.Args[1:])
	return rootCmd.Execute()
}

// NewRootCmd returns the root command with serve, analyze and simulate
// attached.
func NewRootCmd() *cobra.Command {
	buildInfo := build.GetBuildFlags()
	name := buildInfo.Name
	if name == "" || name == "unknown" {
		name = defaultName
	}
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "",
		"Path to a YAML configuration file (default: ./config.yaml when present)")
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newAnalyzeCmd(opts),
		newSimulateCmd(opts),
	)
	return rootCmd
}

// loadConfig reads the configuration and applies its log level. --verbose
// and debug mode both force debug logging.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	level, ok := log.ParseLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	if cfg.Debug || opts.Verbose {
		level = log.LevelDebug
	}
	log.SetLevel(level)
	return cfg, nil
}
