package archive

import (
	"fmt"

	"github.com/jmbenlloch/go-hdf5"
)

const STRLEN = 40

// H5S_UNLIMITED is -1L
const unlimited = ^uint(0)

const chunkRows = 4096

func convertToHdf5String(s string) [STRLEN]byte {
	var byteArray [STRLEN]byte
	copy(byteArray[:], s)
	return byteArray
}

func convertFromHdf5String(b [STRLEN]byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func datasetProperties(chunks []uint, compression int) (*hdf5.PropList, error) {
	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, fmt.Errorf("error creating property list: %w", err)
	}
	if err := plist.SetChunk(chunks); err != nil {
		plist.Close()
		return nil, fmt.Errorf("error setting chunks: %w", err)
	}
	if compression > 0 {
		if err := plist.SetDeflate(compression); err != nil {
			plist.Close()
			return nil, fmt.Errorf("error setting deflate: %w", err)
		}
	}
	return plist, nil
}

// create2dArray makes an extensible rows x columns uint32 dataset.
func create2dArray(group *hdf5.Group, name string, columns int, compression int) (*hdf5.Dataset, error) {
	dims := []uint{0, uint(columns)}
	maxDims := []uint{unlimited, uint(columns)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, &ErrCreateDataset{DatasetName: name, Err: err}
	}
	defer fileSpace.Close()

	plist, err := datasetProperties([]uint{chunkRows, uint(columns)}, compression)
	if err != nil {
		return nil, &ErrCreateDataset{DatasetName: name, Err: err}
	}
	defer plist.Close()

	dataset, err := group.CreateDatasetWith(name, hdf5.T_NATIVE_UINT32, fileSpace, plist)
	if err != nil {
		return nil, &ErrCreateDataset{DatasetName: name, Err: err}
	}
	return dataset, nil
}

// createTable makes an extensible one dimensional dataset of the compound
// type of datatype.
func createTable(group *hdf5.Group, name string, datatype interface{}, compression int) (*hdf5.Dataset, error) {
	fileSpace, err := hdf5.CreateSimpleDataspace([]uint{0}, []uint{unlimited})
	if err != nil {
		return nil, &ErrCreateDataset{DatasetName: name, Err: err}
	}
	defer fileSpace.Close()

	plist, err := datasetProperties([]uint{chunkRows}, compression)
	if err != nil {
		return nil, &ErrCreateDataset{DatasetName: name, Err: err}
	}
	defer plist.Close()

	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, &ErrCreateDataset{DatasetName: name, Err: err}
	}
	dataset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, &ErrCreateDataset{DatasetName: name, Err: err}
	}
	return dataset, nil
}

// writeRows extends dataset to hold count rows starting at offset and
// writes data there. rowShape is the shape of one row.
func writeRows(dataset *hdf5.Dataset, data interface{}, offset, count uint, rowShape []uint) error {
	newSize := append([]uint{offset + count}, rowShape...)
	if err := dataset.Resize(newSize); err != nil {
		return fmt.Errorf("error extending dataset to %v: %w", newSize, err)
	}
	fileSpace := dataset.Space()
	defer fileSpace.Close()

	start := make([]uint, len(newSize))
	start[0] = offset
	counts := append([]uint{count}, rowShape...)
	if err := fileSpace.SelectHyperslab(start, nil, counts, nil); err != nil {
		return fmt.Errorf("error selecting rows %d+%d: %w", offset, count, err)
	}

	memSpace, err := hdf5.CreateSimpleDataspace(counts, nil)
	if err != nil {
		return fmt.Errorf("error creating memory space: %w", err)
	}
	defer memSpace.Close()

	if err := dataset.WriteSubset(data, memSpace, fileSpace); err != nil {
		return fmt.Errorf("error writing rows %d+%d: %w", offset, count, err)
	}
	return nil
}

// readRows reads count rows starting at offset into data, which must be
// allocated to hold them.
func readRows(dataset *hdf5.Dataset, data interface{}, offset, count uint, rowShape []uint) error {
	fileSpace := dataset.Space()
	defer fileSpace.Close()

	start := make([]uint, len(rowShape)+1)
	start[0] = offset
	counts := append([]uint{count}, rowShape...)
	if err := fileSpace.SelectHyperslab(start, nil, counts, nil); err != nil {
		return fmt.Errorf("error selecting rows %d+%d: %w", offset, count, err)
	}

	memSpace, err := hdf5.CreateSimpleDataspace(counts, nil)
	if err != nil {
		return fmt.Errorf("error creating memory space: %w", err)
	}
	defer memSpace.Close()

	if err := dataset.ReadSubset(data, memSpace, fileSpace); err != nil {
		return fmt.Errorf("error reading rows %d+%d: %w", offset, count, err)
	}
	return nil
}

func datasetRows(dataset *hdf5.Dataset) (uint, error) {
	space := dataset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return 0, err
	}
	if len(dims) == 0 {
		return 0, nil
	}
	return dims[0], nil
}
