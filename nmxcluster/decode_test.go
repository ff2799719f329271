package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nmx "github.com/ess-dmsc/events-nmx-classify-sub001/pkg"
)

func packedFile(t *testing.T, records ...[]nmx.Eventlet) string {
	var buffer bytes.Buffer
	for _, record := range records {
		require.NoError(t, nmx.WritePacked(&buffer, record))
	}
	path := filepath.Join(t.TempDir(), "run.packed")
	require.NoError(t, os.WriteFile(path, buffer.Bytes(), 0o644))
	return path
}

func TestWriteEventlets(t *testing.T) {
	path := packedFile(t,
		[]nmx.Eventlet{{Time: 1, Plane: 0, Strip: 2, ADC: 3}},
		[]nmx.Eventlet{{Time: 4, Plane: 1, Strip: 5, ADC: 6, Flag: true}},
		[]nmx.Eventlet{{Time: 7, Plane: 1, Strip: 8, ADC: 9}},
	)
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	reader, err := nmx.NewPackedReader(file)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writeEventlets(&out, reader, 1, 2, writeJSONRecord))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		`{"record":1,"time":4,"plane":1,"strip":5,"adc":6,"flag":true}`,
	}, lines)
}

func TestWriteEventletsNumbersFileRecords(t *testing.T) {
	var buffer bytes.Buffer
	require.NoError(t, nmx.WritePacked(&buffer, []nmx.Eventlet{{Time: 1, Strip: 2, ADC: 3}}))
	// one eventlet without its END word
	require.NoError(t, binary.Write(&buffer, binary.LittleEndian,
		[]uint32{1, 10, 0, 5<<16 | 1, 0xDEADBEEF, nmx.EndOfRecord}))
	require.NoError(t, nmx.WritePacked(&buffer, []nmx.Eventlet{{Time: 4, Strip: 5, ADC: 6}}))

	reader, err := nmx.NewPackedReader(bytes.NewReader(buffer.Bytes()))
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, writeEventlets(&out, reader, 0, 0, writeJSONRecord))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		`{"record":0,"time":1,"plane":0,"strip":2,"adc":3}`,
		`{"record":2,"time":4,"plane":0,"strip":5,"adc":6}`,
	}, lines)
}

func TestWritePackedRecordsReadBack(t *testing.T) {
	records := [][]nmx.Eventlet{
		{{Time: 1, Plane: 0, Strip: 2, ADC: 3}, {Time: 2, Plane: 1, Strip: 4, ADC: 5, OverThreshold: true}},
		{},
	}
	file, err := os.Open(packedFile(t, records...))
	require.NoError(t, err)
	defer file.Close()
	reader, err := nmx.NewPackedReader(file)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writeEventlets(&out, reader, 0, 0, writePackedRecord))

	again, err := nmx.NewPackedReader(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, again.Count())
	first, err := again.Next()
	require.NoError(t, err)
	assert.Equal(t, records[0], first)
	second, err := again.Next()
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestCountRecords(t *testing.T) {
	configuration = nmx.DefaultConfiguration()
	configuration.Format = nmx.FormatPacked
	configuration.FileIn = packedFile(t, []nmx.Eventlet{{Time: 1, ADC: 1}}, nil)

	var out bytes.Buffer
	require.NoError(t, countRecords(&out))
	assert.Contains(t, out.String(), ": 2 records")
}
