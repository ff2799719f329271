package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sugawarayuuta/sonnet"
	"gopkg.in/yaml.v3"

	nmx "github.com/ess-dmsc/events-nmx-classify-sub001/pkg"
)

// LoadConfiguration reads a JSON or, for .yaml and .yml files, YAML
// configuration on top of the defaults.
func LoadConfiguration(filename string) (nmx.Configuration, error) {
	config := nmx.DefaultConfiguration()

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&config); err != nil && err != io.EOF {
			return config, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		if err := sonnet.Unmarshal(data, &config); err != nil {
			return config, fmt.Errorf("failed to parse JSON: %w", err)
		}
	}
	return config, nil
}

func printConfiguration(config nmx.Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "config")
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "config")
	logger.Info(fmt.Sprintf("Format: %s", config.Format), "config")
	logger.Info(fmt.Sprintf("Skip: %d", config.Skip), "config")
	logger.Info(fmt.Sprintf("Max records: %d", config.MaxRecords), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Packet size: %d", config.PacketSize), "config")
	logger.Info(fmt.Sprintf("Latency packets: %d", config.LatencyPackets), "config")
	logger.Info(fmt.Sprintf("Latency eventlets: %d", config.LatencyEventlets), "config")
	logger.Info(fmt.Sprintf("Strict order: %t", config.StrictOrder), "config")
	logger.Info(fmt.Sprintf("Time slack: %d", config.TimeSlack), "config")
	logger.Info(fmt.Sprintf("Strip slack: %d", config.StripSlack), "config")
	logger.Info(fmt.Sprintf("Correlation time slack: %d", config.CorrelationTimeSlack), "config")
	logger.Info(fmt.Sprintf("Weighted: %t", config.Weighted), "config")
	logger.Info(fmt.Sprintf("Max timebins: %d", config.MaxTimebins), "config")
	logger.Info(fmt.Sprintf("Max timedif: %d", config.MaxTimedif), "config")
	logger.Info(fmt.Sprintf("Emit incomplete: %t", config.EmitIncomplete), "config")
	logger.Info(fmt.Sprintf("Pool: %d x %d, dynamic %t, growable %t",
		config.PoolSize, config.PoolCapacity, config.PoolDynamic, config.PoolGrowable), "config")
	if config.Format == nmx.FormatAPV {
		logger.Info(fmt.Sprintf("APV record stride: %d", config.ApvRecordStride), "config")
	}
	if config.Format == nmx.FormatVMM {
		logger.Info(fmt.Sprintf("Time calibration: %+v", config.Time), "config")
		logger.Info(fmt.Sprintf("Planes: %d", len(config.Planes)), "config")
	}
	logger.Info(fmt.Sprintf("No DB: %t", config.NoDB), "config")
	if !config.NoDB {
		logger.Info(fmt.Sprintf("DB driver: %s", config.DBDriver), "config")
		logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
		logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
		logger.Info(fmt.Sprintf("Run number: %d", config.RunNumber), "config")
	}
	logger.Info(fmt.Sprintf("Compression level: %d", config.CompressionLevel), "config")
	logger.Info(fmt.Sprintf("Write eventlets: %t", config.WriteEventlets), "config")
}
