package archive

import "fmt"

// ErrOpenFile represents an error when creating or opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error {
	return e.Err
}

// ErrCreateGroup represents an error when creating a group.
type ErrCreateGroup struct {
	GroupName string
	Err       error
}

func (e *ErrCreateGroup) Error() string {
	return fmt.Sprintf("error creating group %q: %v", e.GroupName, e.Err)
}

func (e *ErrCreateGroup) Unwrap() error {
	return e.Err
}

// ErrCreateDataset represents an error when creating a table or an array.
type ErrCreateDataset struct {
	DatasetName string
	Err         error
}

func (e *ErrCreateDataset) Error() string {
	return fmt.Sprintf("error creating dataset %q: %v", e.DatasetName, e.Err)
}

func (e *ErrCreateDataset) Unwrap() error {
	return e.Err
}

// ErrUnknownDataset is returned when addressing a dataset the file does not hold.
type ErrUnknownDataset struct {
	DatasetName string
}

func (e *ErrUnknownDataset) Error() string {
	return fmt.Sprintf("unknown dataset %q", e.DatasetName)
}
