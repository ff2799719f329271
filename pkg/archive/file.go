// Package archive stores eventlets and reconstructed events in HDF5 files.
package archive

import (
	"errors"
	"fmt"
	"path"

	"github.com/jmbenlloch/go-hdf5"
)

// File is an HDF5 file of extensible uint32 datasets addressed as
// "group/name".
type File struct {
	file        *hdf5.File
	filename    string
	compression int
	groups      map[string]*hdf5.Group
	datasets    map[string]*hdf5.Dataset
	columns     map[string]uint
	readOnly    bool
}

// Create truncates or creates filename for writing. compression is the
// deflate level, 0 disables it.
func Create(filename string, compression int) (*File, error) {
	f, err := hdf5.CreateFile(filename, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	return newFile(f, filename, compression, false), nil
}

// Open opens an existing file read only.
func Open(filename string) (*File, error) {
	f, err := hdf5.OpenFile(filename, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	return newFile(f, filename, 0, true), nil
}

func newFile(f *hdf5.File, filename string, compression int, readOnly bool) *File {
	return &File{
		file:        f,
		filename:    filename,
		compression: compression,
		groups:      make(map[string]*hdf5.Group),
		datasets:    make(map[string]*hdf5.Dataset),
		columns:     make(map[string]uint),
		readOnly:    readOnly,
	}
}

func (f *File) Filename() string {
	return f.filename
}

func (f *File) CreateGroup(name string) error {
	if _, ok := f.groups[name]; ok {
		return nil
	}
	g, err := f.file.CreateGroup(name)
	if err != nil {
		return &ErrCreateGroup{GroupName: name, Err: err}
	}
	f.groups[name] = g
	return nil
}

func (f *File) group(name string) (*hdf5.Group, error) {
	if g, ok := f.groups[name]; ok {
		return g, nil
	}
	if !f.readOnly {
		if err := f.CreateGroup(name); err != nil {
			return nil, err
		}
		return f.groups[name], nil
	}
	g, err := f.file.OpenGroup(name)
	if err != nil {
		return nil, fmt.Errorf("error opening group %q: %w", name, err)
	}
	f.groups[name] = g
	return g, nil
}

// CreateDataset adds an empty rows x columns uint32 dataset to group.
func (f *File) CreateDataset(group, name string, columns int) error {
	if columns < 1 {
		return &ErrCreateDataset{DatasetName: name, Err: errors.New("at least one column is required")}
	}
	g, err := f.group(group)
	if err != nil {
		return err
	}
	dataset, err := create2dArray(g, name, columns, f.compression)
	if err != nil {
		return err
	}
	key := path.Join(group, name)
	f.datasets[key] = dataset
	f.columns[key] = uint(columns)
	return nil
}

// createTable adds an empty compound table owned by the file.
func (f *File) createTable(group, name string, datatype interface{}) (*hdf5.Dataset, error) {
	g, err := f.group(group)
	if err != nil {
		return nil, err
	}
	table, err := createTable(g, name, datatype, f.compression)
	if err != nil {
		return nil, err
	}
	key := path.Join(group, name)
	f.datasets[key] = table
	f.columns[key] = 0
	return table, nil
}

// openTable opens a compound table of a file opened for reading.
func (f *File) openTable(group, name string) (*hdf5.Dataset, error) {
	key := path.Join(group, name)
	if table, ok := f.datasets[key]; ok {
		return table, nil
	}
	g, err := f.group(group)
	if err != nil {
		return nil, err
	}
	table, err := g.OpenDataset(name)
	if err != nil {
		return nil, fmt.Errorf("error opening table %q: %w", key, err)
	}
	f.datasets[key] = table
	f.columns[key] = 0
	return table, nil
}

func (f *File) dataset(key string) (*hdf5.Dataset, uint, error) {
	if dataset, ok := f.datasets[key]; ok {
		return dataset, f.columns[key], nil
	}
	group, name := path.Split(key)
	if group == "" || !f.readOnly {
		return nil, 0, &ErrUnknownDataset{DatasetName: key}
	}
	g, err := f.group(path.Clean(group))
	if err != nil {
		return nil, 0, err
	}
	dataset, err := g.OpenDataset(name)
	if err != nil {
		return nil, 0, fmt.Errorf("error opening dataset %q: %w", key, err)
	}
	space := dataset.Space()
	dims, _, err := space.SimpleExtentDims()
	space.Close()
	if err != nil || len(dims) != 2 {
		dataset.Close()
		return nil, 0, fmt.Errorf("dataset %q is not a two dimensional array", key)
	}
	f.datasets[key] = dataset
	f.columns[key] = dims[1]
	return dataset, dims[1], nil
}

// Write stores data, a whole number of rows, starting at row offset.
func (f *File) Write(key string, data []uint32, offset uint) error {
	dataset, columns, err := f.dataset(key)
	if err != nil {
		return err
	}
	if columns == 0 {
		return fmt.Errorf("%q is a table, not an array", key)
	}
	if len(data) == 0 {
		return nil
	}
	if uint(len(data))%columns != 0 {
		return fmt.Errorf("writing %d values to %q: not a multiple of %d columns", len(data), key, columns)
	}
	rows := uint(len(data)) / columns
	return writeRows(dataset, &data, offset, rows, []uint{columns})
}

// Read returns rows rows starting at offset.
func (f *File) Read(key string, offset, rows uint) ([]uint32, error) {
	dataset, columns, err := f.dataset(key)
	if err != nil {
		return nil, err
	}
	if columns == 0 {
		return nil, fmt.Errorf("%q is a table, not an array", key)
	}
	total, err := datasetRows(dataset)
	if err != nil {
		return nil, err
	}
	if offset+rows > total {
		return nil, fmt.Errorf("reading rows %d+%d of %q: only %d rows", offset, rows, key, total)
	}
	data := make([]uint32, rows*columns)
	if rows == 0 {
		return data, nil
	}
	if err := readRows(dataset, &data, offset, rows, []uint{columns}); err != nil {
		return nil, err
	}
	return data, nil
}

func (f *File) Rows(key string) (uint, error) {
	dataset, _, err := f.dataset(key)
	if err != nil {
		return 0, err
	}
	return datasetRows(dataset)
}

// SetAttribute attaches a scalar double to a dataset.
func (f *File) SetAttribute(key, name string, value float64) error {
	dataset, _, err := f.dataset(key)
	if err != nil {
		return err
	}
	space, err := hdf5.CreateSimpleDataspace([]uint{1}, nil)
	if err != nil {
		return fmt.Errorf("error creating attribute space: %w", err)
	}
	defer space.Close()
	attribute, err := dataset.CreateAttribute(name, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return fmt.Errorf("error creating attribute %q on %q: %w", name, key, err)
	}
	defer attribute.Close()
	if err := attribute.Write(&value, hdf5.T_NATIVE_DOUBLE); err != nil {
		return fmt.Errorf("error writing attribute %q on %q: %w", name, key, err)
	}
	return nil
}

func (f *File) Attribute(key, name string) (float64, error) {
	dataset, _, err := f.dataset(key)
	if err != nil {
		return 0, err
	}
	attribute, err := dataset.OpenAttribute(name)
	if err != nil {
		return 0, fmt.Errorf("error opening attribute %q on %q: %w", name, key, err)
	}
	defer attribute.Close()
	var value float64
	if err := attribute.Read(&value, hdf5.T_NATIVE_DOUBLE); err != nil {
		return 0, fmt.Errorf("error reading attribute %q on %q: %w", name, key, err)
	}
	return value, nil
}

// Close releases every dataset, group and the file itself.
func (f *File) Close() error {
	var errs []error
	for key, dataset := range f.datasets {
		if err := dataset.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing dataset %q: %w", key, err))
		}
	}
	for name, g := range f.groups {
		if err := g.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing group %q: %w", name, err))
		}
	}
	if err := f.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing file: %w", err))
	}
	f.datasets = nil
	f.groups = nil
	return errors.Join(errs...)
}
