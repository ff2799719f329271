package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ess-dmsc/events-nmx-classify-sub001/pkg/conditions"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Verbose    int
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "nmxcluster",
		Short:         "Decode and cluster NMX readout data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "configuration file path (json or yaml)")
	cmd.PersistentFlags().CountVarP(&opts.Verbose, "verbose", "v", "increase verbosity")
	_ = cmd.MarkPersistentFlagRequired("config")

	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewDecodeCommand(opts))
	cmd.AddCommand(NewClusterCommand(opts))

	return cmd
}

func setup(opts *RootOptions) error {
	var err error
	configuration, err = LoadConfiguration(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("error reading configuration file: %w", err)
	}
	configuration.Verbosity = max(configuration.Verbosity, opts.Verbose)
	VerbosityLevel = configuration.Verbosity
	conditions.SetVerbosity(VerbosityLevel)

	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", opts.ConfigFile)
		logger.Info(message, "main")
		printConfiguration(configuration, logger)
	}
	return nil
}
