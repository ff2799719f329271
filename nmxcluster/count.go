package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count the records of the input file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return countRecords(cmd.OutOrStdout())
		},
	}
}

func countRecords(out io.Writer) error {
	if err := loadConditions(&configuration); err != nil {
		return err
	}
	input, err := openInput(configuration)
	if err != nil {
		return err
	}
	defer input.Close()

	_, err = fmt.Fprintf(out, "%s: %d records\n", configuration.FileIn, input.Reader.Count())
	return err
}
