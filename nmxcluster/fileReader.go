package main

import (
	"errors"
	"fmt"
	"os"

	sqlx "github.com/jmoiron/sqlx"

	nmx "github.com/ess-dmsc/events-nmx-classify-sub001/pkg"
	"github.com/ess-dmsc/events-nmx-classify-sub001/pkg/conditions"
)

// Input is an open readout file and its decoder.
type Input struct {
	File   *os.File
	Reader nmx.Reader
}

func (in *Input) Close() error {
	return in.File.Close()
}

func connectConditions(config nmx.Configuration) (*sqlx.DB, error) {
	if config.DBDriver == "mysql" {
		return conditions.Connect(config.User, config.Passwd, config.Host, config.DBName)
	}
	return conditions.Open(config.DBDriver, config.DBName)
}

// loadConditions completes the configuration with the plane mapping and
// time calibration of the run.
func loadConditions(config *nmx.Configuration) error {
	if config.NoDB || config.Format != nmx.FormatVMM {
		return nil
	}
	dbConn, err := connectConditions(*config)
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	defer dbConn.Close()

	planes, err := conditions.LoadPlanes(dbConn, config.RunNumber)
	if err != nil {
		return fmt.Errorf("error loading plane mapping: %w", err)
	}
	if len(planes) > 0 {
		config.Planes = planes
	}
	calibration, err := conditions.LoadTimeCalibration(dbConn, config.RunNumber)
	switch {
	case errors.Is(err, conditions.ErrNoCalibration):
		logger.Warn(fmt.Sprintf("Using configured time calibration for run %d", config.RunNumber), "database")
	case err != nil:
		return fmt.Errorf("error loading time calibration: %w", err)
	default:
		config.Time = calibration
	}
	return nil
}

func openInput(config nmx.Configuration) (*Input, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	var geometry *nmx.Geometry
	if config.Format == nmx.FormatVMM {
		var err error
		if geometry, err = config.Geometry(); err != nil {
			return nil, fmt.Errorf("invalid plane mapping: %w", err)
		}
	}

	file, err := os.Open(config.FileIn)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	reader, err := nmx.NewReader(file, config.ReaderConfig(geometry))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("error indexing %s: %w", config.FileIn, err)
	}
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Number of records: %d", reader.Count())
		logger.Info(message, "fileReader")
	}
	return &Input{File: file, Reader: reader}, nil
}

func logDecodeStats(stats nmx.DecodeStats) {
	message := fmt.Sprintf("Records %d, eventlets %d, malformed %d, truncated %d, unmapped hits %d",
		stats.Records, stats.Eventlets, stats.Malformed, stats.Truncated, stats.InvalidMapping)
	logger.Info(message, "fileReader")
}
