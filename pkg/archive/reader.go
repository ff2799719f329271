package archive

import (
	"fmt"

	"github.com/google/uuid"

	nmx "github.com/ess-dmsc/events-nmx-classify-sub001/pkg"
)

type PlaneSummary struct {
	Center      float64
	UncertLower int
	UncertUpper int
	Integral    uint64
	Density     float64
	TimeCenter  float64
	StripCenter float64
	Entries     int
}

// EventSummary is one row of the events table.
type EventSummary struct {
	Event     int
	TimeStart uint64
	X         PlaneSummary
	Y         PlaneSummary
}

func readTable[T any](f *File, group, name string) ([]T, error) {
	table, err := f.openTable(group, name)
	if err != nil {
		return nil, err
	}
	rows, err := datasetRows(table)
	if err != nil {
		return nil, err
	}
	data := make([]T, rows)
	if rows == 0 {
		return data, nil
	}
	if err := readRows(table, &data, 0, rows, nil); err != nil {
		return nil, fmt.Errorf("error reading table %s/%s: %w", group, name, err)
	}
	return data, nil
}

func ReadEvents(f *File) ([]EventSummary, error) {
	rows, err := readTable[eventHDF5](f, EventsGroup, "events")
	if err != nil {
		return nil, err
	}
	events := make([]EventSummary, len(rows))
	for i, row := range rows {
		events[i] = EventSummary{
			Event:     int(row.evt_number),
			TimeStart: row.time_start,
			X: PlaneSummary{
				Center:      row.x_center,
				UncertLower: int(row.x_uncert_lower),
				UncertUpper: int(row.x_uncert_upper),
				Integral:    row.x_integral,
				Density:     row.x_density,
				TimeCenter:  row.x_time_center,
				StripCenter: row.x_strip_center,
				Entries:     int(row.x_entries),
			},
			Y: PlaneSummary{
				Center:      row.y_center,
				UncertLower: int(row.y_uncert_lower),
				UncertUpper: int(row.y_uncert_upper),
				Integral:    row.y_integral,
				Density:     row.y_density,
				TimeCenter:  row.y_time_center,
				StripCenter: row.y_strip_center,
				Entries:     int(row.y_entries),
			},
		}
	}
	return events, nil
}

// ReadEventlets returns the eventlets stored for one event, plane 0 first.
func ReadEventlets(f *File, event int) ([]nmx.Eventlet, error) {
	index, err := f.Read(IndexDataset, uint(event), 1)
	if err != nil {
		return nil, err
	}
	first, count := uint(index[1]), uint(index[2])
	data, err := f.Read(EventletsDataset, first, count)
	if err != nil {
		return nil, err
	}
	eventlets := make([]nmx.Eventlet, count)
	for i := range eventlets {
		var packed nmx.PackedEventlet
		copy(packed[:], data[3*i:3*i+3])
		eventlets[i] = nmx.FromPacket(packed)
	}
	return eventlets, nil
}

func ReadRunInfo(f *File) (int, uuid.UUID, error) {
	rows, err := readTable[runInfoHDF5](f, RunGroup, "runInfo")
	if err != nil {
		return 0, uuid.Nil, err
	}
	if len(rows) == 0 {
		return 0, uuid.Nil, fmt.Errorf("empty run info in %s", f.Filename())
	}
	id, err := uuid.Parse(convertFromHdf5String(rows[0].run_id))
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("error parsing run id: %w", err)
	}
	return int(rows[0].run_number), id, nil
}

// ReadParameters returns the clustering parameters stored with the run.
func ReadParameters(f *File) (map[string]float64, error) {
	rows, err := readTable[parameterHDF5](f, RunGroup, "parameters")
	if err != nil {
		return nil, err
	}
	params := make(map[string]float64, len(rows))
	for _, row := range rows {
		params[convertFromHdf5String(row.param_name)] = row.value
	}
	return params, nil
}
