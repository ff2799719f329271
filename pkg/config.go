package nmx

import (
	"errors"
	"fmt"
)

type Configuration struct {
	FileIn     string `json:"file_in" yaml:"file_in"`
	FileOut    string `json:"file_out" yaml:"file_out"`
	Format     string `json:"format" yaml:"format"`
	MaxRecords int    `json:"max_records" yaml:"max_records"`
	Skip       int    `json:"skip" yaml:"skip"`
	Verbosity  int    `json:"verbosity" yaml:"verbosity"`

	PacketSize       int    `json:"packet_size" yaml:"packet_size"`
	LatencyPackets   uint64 `json:"latency_packets" yaml:"latency_packets"`
	LatencyEventlets uint64 `json:"latency_eventlets" yaml:"latency_eventlets"`
	// StrictOrder fails the run on an eventlet the reorder stages released
	// too late instead of counting and dropping it
	StrictOrder bool `json:"strict_order" yaml:"strict_order"`

	TimeSlack            uint64 `json:"time_slack" yaml:"time_slack"`
	StripSlack           uint16 `json:"strip_slack" yaml:"strip_slack"`
	CorrelationTimeSlack uint64 `json:"correlation_time_slack" yaml:"correlation_time_slack"`
	Weighted             bool   `json:"weighted" yaml:"weighted"`
	MaxTimebins          int    `json:"max_timebins" yaml:"max_timebins"`
	MaxTimedif           uint64 `json:"max_timedif" yaml:"max_timedif"`
	EmitIncomplete       bool   `json:"emit_incomplete" yaml:"emit_incomplete"`

	PoolSize     int  `json:"pool_size" yaml:"pool_size"`
	PoolCapacity int  `json:"pool_capacity" yaml:"pool_capacity"`
	PoolDynamic  bool `json:"pool_dynamic" yaml:"pool_dynamic"`
	PoolGrowable bool `json:"pool_growable" yaml:"pool_growable"`

	ApvRecordStride uint64            `json:"apv_record_stride" yaml:"apv_record_stride"`
	Time            Time              `json:"time" yaml:"time"`
	Planes          []PlaneDefinition `json:"planes" yaml:"planes"`

	NoDB      bool   `json:"no_db" yaml:"no_db"`
	DBDriver  string `json:"db_driver" yaml:"db_driver"`
	Host      string `json:"host" yaml:"host"`
	User      string `json:"user" yaml:"user"`
	Passwd    string `json:"pass" yaml:"pass"`
	DBName    string `json:"dbname" yaml:"dbname"`
	RunNumber int    `json:"run_number" yaml:"run_number"`

	CompressionLevel int  `json:"compression_level" yaml:"compression_level"`
	WriteEventlets   bool `json:"write_eventlets" yaml:"write_eventlets"`
}

func DefaultConfiguration() Configuration {
	params := DefaultClusterParams()
	return Configuration{
		Format:               FormatVMM,
		MaxRecords:           1000000000,
		PacketSize:           128,
		LatencyPackets:       20,
		LatencyEventlets:     10,
		TimeSlack:            params.TimeSlack,
		StripSlack:           params.StripSlack,
		CorrelationTimeSlack: params.CorrelationTimeSlack,
		Weighted:             params.Weighted,
		MaxTimebins:          params.MaxTimebins,
		MaxTimedif:           params.MaxTimedif,
		EmitIncomplete:       params.EmitIncomplete,
		PoolSize:             256,
		PoolCapacity:         64,
		PoolDynamic:          true,
		PoolGrowable:         true,
		ApvRecordStride:      DefaultApvStride,
		Time:                 DefaultTime(),
		NoDB:                 true,
		DBDriver:             "mysql",
		Host:                 "localhost",
		User:                 "nmxreader",
		Passwd:               "readonly",
		DBName:               "NMX",
		CompressionLevel:     4,
		WriteEventlets:       true,
	}
}

func (c Configuration) Validate() error {
	var errs []error
	switch c.Format {
	case FormatAPV, FormatVMM, FormatPacked:
	default:
		errs = append(errs, fmt.Errorf("format %q: %w", c.Format, ErrUnknownFormat))
	}
	if c.PacketSize < 1 {
		errs = append(errs, fmt.Errorf("packet_size must be positive, got %d", c.PacketSize))
	}
	if c.PoolSize < 1 && !c.PoolGrowable {
		errs = append(errs, fmt.Errorf("pool_size must be positive for a fixed pool, got %d", c.PoolSize))
	}
	if c.PoolCapacity < 1 {
		errs = append(errs, fmt.Errorf("pool_capacity must be positive, got %d", c.PoolCapacity))
	}
	if c.Skip < 0 || c.MaxRecords < 0 {
		errs = append(errs, fmt.Errorf("skip and max_records must not be negative"))
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
		errs = append(errs, fmt.Errorf("compression_level must be in [0, 9], got %d", c.CompressionLevel))
	}
	if err := c.ClusterParams().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Format == FormatVMM {
		if err := c.Time.Validate(); err != nil {
			errs = append(errs, err)
		}
		if c.NoDB && len(c.Planes) == 0 {
			errs = append(errs, errors.New("vmm input needs planes in the configuration or a conditions database"))
		}
	}
	return errors.Join(errs...)
}

func (c Configuration) ClusterParams() ClusterParams {
	return ClusterParams{
		TimeSlack:            c.TimeSlack,
		StripSlack:           c.StripSlack,
		CorrelationTimeSlack: c.CorrelationTimeSlack,
		Weighted:             c.Weighted,
		MaxTimebins:          c.MaxTimebins,
		MaxTimedif:           c.MaxTimedif,
		EmitIncomplete:       c.EmitIncomplete,
	}
}

// ReaderConfig builds the decoder settings. geometry may be nil for formats
// that carry plane and strip in the data.
func (c Configuration) ReaderConfig(geometry *Geometry) ReaderConfig {
	return ReaderConfig{
		Format:          c.Format,
		ApvRecordStride: c.ApvRecordStride,
		Time:            c.Time,
		Geometry:        geometry,
	}
}

// Geometry builds the chip mapping from the configured planes.
func (c Configuration) Geometry() (*Geometry, error) {
	geometry := NewGeometry()
	if err := geometry.ApplyPlanes(c.Planes); err != nil {
		return nil, err
	}
	return geometry, nil
}

func (c Configuration) NewPool() *MicroclusterPool {
	return NewMicroclusterPool(c.PoolSize, c.PoolCapacity, c.PoolDynamic, c.PoolGrowable)
}
