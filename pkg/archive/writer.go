package archive

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/jmbenlloch/go-hdf5"

	nmx "github.com/ess-dmsc/events-nmx-classify-sub001/pkg"
)

const (
	EventletsGroup = "Eventlets"
	EventsGroup    = "Events"
	RunGroup       = "Run"

	EventletsDataset = "Eventlets/eventlets"
	IndexDataset     = "Eventlets/index"
)

type eventHDF5 struct {
	evt_number     int32
	time_start     uint64
	x_center       float64
	x_uncert_lower int32
	x_uncert_upper int32
	x_integral     uint64
	x_density      float64
	x_time_center  float64
	x_strip_center float64
	x_entries      int32
	y_center       float64
	y_uncert_lower int32
	y_uncert_upper int32
	y_integral     uint64
	y_density      float64
	y_time_center  float64
	y_strip_center float64
	y_entries      int32
}

type runInfoHDF5 struct {
	run_number int32
	run_id     [STRLEN]byte
}

type parameterHDF5 struct {
	param_name [STRLEN]byte
	value      float64
}

// EventWriter appends reconstructed events, and optionally their eventlets,
// to an HDF5 file.
type EventWriter struct {
	File           *File
	EventsTable    *hdf5.Dataset
	RunInfoTable   *hdf5.Dataset
	ParamsTable    *hdf5.Dataset
	RunID          uuid.UUID
	EvtCounter     int
	EventletCount  uint
	writeEventlets bool
}

func NewEventWriter(filename string, config nmx.Configuration) (*EventWriter, error) {
	file, err := Create(filename, config.CompressionLevel)
	if err != nil {
		return nil, err
	}
	writer := &EventWriter{File: file, RunID: uuid.New(), writeEventlets: config.WriteEventlets}
	if err := writer.init(config); err != nil {
		return nil, errors.Join(err, file.Close())
	}
	return writer, nil
}

func (w *EventWriter) init(config nmx.Configuration) error {
	var err error
	if w.EventsTable, err = w.File.createTable(EventsGroup, "events", eventHDF5{}); err != nil {
		return err
	}
	if w.RunInfoTable, err = w.File.createTable(RunGroup, "runInfo", runInfoHDF5{}); err != nil {
		return err
	}
	if w.ParamsTable, err = w.File.createTable(RunGroup, "parameters", parameterHDF5{}); err != nil {
		return err
	}

	info := []runInfoHDF5{{
		run_number: int32(config.RunNumber),
		run_id:     convertToHdf5String(w.RunID.String()),
	}}
	if err := writeRows(w.RunInfoTable, &info, 0, 1, nil); err != nil {
		return fmt.Errorf("error writing run info: %w", err)
	}
	if err := w.writeParameters(config.ClusterParams()); err != nil {
		return err
	}

	if !w.writeEventlets {
		return nil
	}
	if err := w.File.CreateDataset(EventletsGroup, "eventlets", len(nmx.PackedEventlet{})); err != nil {
		return err
	}
	if err := w.File.CreateDataset(EventletsGroup, "index", 3); err != nil {
		return err
	}
	// Packed times are in units of the target resolution
	if config.Format == nmx.FormatVMM {
		if err := w.File.SetAttribute(EventletsDataset, "time_resolution_ns", config.Time.TargetResolution); err != nil {
			return err
		}
	}
	return nil
}

// writeParameters stores every numeric and boolean clustering parameter by
// its json name.
func (w *EventWriter) writeParameters(params nmx.ClusterParams) error {
	t := reflect.TypeOf(params)
	v := reflect.ValueOf(params)
	entries := make([]parameterHDF5, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		field := v.Field(i)
		var value float64
		switch field.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			value = float64(field.Uint())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			value = float64(field.Int())
		case reflect.Bool:
			if field.Bool() {
				value = 1
			}
		default:
			continue
		}
		entries = append(entries, parameterHDF5{param_name: convertToHdf5String(name), value: value})
	}
	if err := writeRows(w.ParamsTable, &entries, 0, uint(len(entries)), nil); err != nil {
		return fmt.Errorf("error writing parameters: %w", err)
	}
	return nil
}

func planeColumns(p *nmx.SimplePlane) (float64, int32, int32, uint64, float64, float64, float64, int32) {
	return p.Center, int32(p.UncertLower), int32(p.UncertUpper), p.Integral,
		p.Density, p.TimeCenter, p.StripCenter, int32(len(p.Eventlets))
}

// WriteEvent appends one event. It matches the sink of nmx.Pipeline.Run.
func (w *EventWriter) WriteEvent(event nmx.SimpleEvent) error {
	row := eventHDF5{evt_number: int32(w.EvtCounter), time_start: event.TimeStart()}
	row.x_center, row.x_uncert_lower, row.x_uncert_upper, row.x_integral,
		row.x_density, row.x_time_center, row.x_strip_center, row.x_entries = planeColumns(&event.X)
	row.y_center, row.y_uncert_lower, row.y_uncert_upper, row.y_integral,
		row.y_density, row.y_time_center, row.y_strip_center, row.y_entries = planeColumns(&event.Y)

	rows := []eventHDF5{row}
	if err := writeRows(w.EventsTable, &rows, uint(w.EvtCounter), 1, nil); err != nil {
		return fmt.Errorf("error writing event %d: %w", w.EvtCounter, err)
	}

	if w.writeEventlets {
		if err := w.writeEventEventlets(event); err != nil {
			return fmt.Errorf("error writing eventlets of event %d: %w", w.EvtCounter, err)
		}
	}
	w.EvtCounter++
	return nil
}

func (w *EventWriter) writeEventEventlets(event nmx.SimpleEvent) error {
	count := len(event.X.Eventlets) + len(event.Y.Eventlets)
	data := make([]uint32, 0, count*len(nmx.PackedEventlet{}))
	for _, plane := range [2][]nmx.Eventlet{event.X.Eventlets, event.Y.Eventlets} {
		for _, e := range plane {
			packed, err := e.ToPacket()
			if err != nil {
				return err
			}
			data = append(data, packed[:]...)
		}
	}
	if err := w.File.Write(EventletsDataset, data, w.EventletCount); err != nil {
		return err
	}
	index := []uint32{uint32(w.EvtCounter), uint32(w.EventletCount), uint32(count)}
	if err := w.File.Write(IndexDataset, index, uint(w.EvtCounter)); err != nil {
		return err
	}
	w.EventletCount += uint(count)
	return nil
}

func (w *EventWriter) Close() error {
	return w.File.Close()
}
