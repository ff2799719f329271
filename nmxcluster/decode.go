package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"

	nmx "github.com/ess-dmsc/events-nmx-classify-sub001/pkg"
)

type eventletJSON struct {
	Record        int    `json:"record"`
	Time          uint64 `json:"time"`
	Plane         uint8  `json:"plane"`
	Strip         uint16 `json:"strip"`
	ADC           uint16 `json:"adc"`
	Flag          bool   `json:"flag,omitempty"`
	OverThreshold bool   `json:"over_threshold,omitempty"`
}

type DecodeOptions struct {
	*RootOptions
	Packed bool
}

func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Print the decoded eventlets as JSON lines or as a packed stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			write := writeJSONRecord
			if opts.Packed {
				write = writePackedRecord
			}
			return decodeRecords(cmd.OutOrStdout(), write)
		},
	}
	cmd.Flags().BoolVar(&opts.Packed, "packed", false, "write the packed stream format read back by format packed")
	return cmd
}

// recordWriter writes the eventlets of the record at position record.
type recordWriter func(out io.Writer, record int, eventlets []nmx.Eventlet) error

func decodeRecords(out io.Writer, write recordWriter) error {
	if err := loadConditions(&configuration); err != nil {
		return err
	}
	input, err := openInput(configuration)
	if err != nil {
		return err
	}
	defer input.Close()

	buffer := bufio.NewWriter(out)
	defer buffer.Flush()
	if err := writeEventlets(buffer, input.Reader, configuration.Skip, configuration.MaxRecords, write); err != nil {
		return err
	}
	if VerbosityLevel > 0 {
		logDecodeStats(input.Reader.Stats())
	}
	return buffer.Flush()
}

// writeEventlets writes the decodable records in [skip, maxRecords). Written
// records carry their position in the file, malformed ones included.
func writeEventlets(out io.Writer, reader nmx.Reader, skip, maxRecords int, write recordWriter) error {
	for index := 0; maxRecords <= 0 || index < maxRecords; index++ {
		eventlets, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading record %d: %w", index, err)
		}
		if index < skip {
			continue
		}
		if err := write(out, reader.Record(), eventlets); err != nil {
			return fmt.Errorf("error writing record %d: %w", index, err)
		}
	}
	return nil
}

// writeJSONRecord writes one JSON object per eventlet.
func writeJSONRecord(out io.Writer, record int, eventlets []nmx.Eventlet) error {
	for _, e := range eventlets {
		line, err := sonnet.Marshal(eventletJSON{
			Record:        record,
			Time:          e.Time,
			Plane:         e.Plane,
			Strip:         e.Strip,
			ADC:           e.ADC,
			Flag:          e.Flag,
			OverThreshold: e.OverThreshold,
		})
		if err != nil {
			return err
		}
		if _, err := out.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func writePackedRecord(out io.Writer, _ int, eventlets []nmx.Eventlet) error {
	return nmx.WritePacked(out, eventlets)
}
