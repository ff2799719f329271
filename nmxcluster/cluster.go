package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	nmx "github.com/ess-dmsc/events-nmx-classify-sub001/pkg"
	"github.com/ess-dmsc/events-nmx-classify-sub001/pkg/archive"
)

type ClusterOptions struct {
	*RootOptions
	Output string
}

func NewClusterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClusterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Reconstruct events and write them to an HDF5 file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Output != "" {
				configuration.FileOut = opts.Output
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return clusterRecords(ctx)
		},
	}
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file, overrides file_out")
	return cmd
}

func clusterRecords(ctx context.Context) (err error) {
	if err := loadConditions(&configuration); err != nil {
		return err
	}
	if configuration.FileOut == "" {
		return errors.New("no output file configured")
	}
	input, err := openInput(configuration)
	if err != nil {
		return err
	}
	defer input.Close()

	writer, err := archive.NewEventWriter(configuration.FileOut, configuration)
	if err != nil {
		return fmt.Errorf("error creating writer: %w", err)
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("error closing %s: %w", configuration.FileOut, closeErr))
		}
	}()
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Writing %s with run id %s", configuration.FileOut, writer.RunID)
		logger.Info(message, "main")
	}

	start := time.Now()
	pipeline := nmx.NewPipeline(input.Reader, configuration, configuration.NewPool())
	stats, err := pipeline.Run(ctx, writer.WriteEvent)
	logPipelineStats(stats, time.Since(start))
	if errors.Is(err, context.Canceled) {
		logger.Warn("Interrupted, events held in the pipeline were not written", "main")
		return nil
	}
	return err
}

func logPipelineStats(stats nmx.PipelineStats, elapsed time.Duration) {
	logDecodeStats(stats.Decode)
	message := fmt.Sprintf("Records processed %d, skipped %d, packets %d, eventlets %d, late %d",
		stats.Records, stats.Skipped, stats.Packets, stats.Eventlets, stats.Late)
	logger.Info(message, "pipeline")
	cluster := stats.Cluster
	message = fmt.Sprintf("Clusters %d, merges %d, events %d (incomplete %d), dropped %d with %d eventlets, ignored %d",
		cluster.Clusters, cluster.Merges, cluster.Events, cluster.Incomplete,
		cluster.Dropped, cluster.DroppedEventlets, cluster.Ignored)
	logger.Info(message, "pipeline")
	logger.Info(fmt.Sprintf("Total time: %d ms", elapsed.Milliseconds()), "main")
}
