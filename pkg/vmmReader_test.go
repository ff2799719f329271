package nmx

import (
	"io"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeVmmHit(hit VmmHit) (uint32, uint32) {
	gray := uint32(hit.BCID) ^ uint32(hit.BCID)>>1
	data1 := gray&0x0FFF | uint32(hit.ADC&0x03FF)<<12
	data2 := uint32(hit.Channel&0x3F)<<2 | uint32(hit.TDC)<<8
	if hit.Flag {
		data2 |= 1
	}
	if hit.OverThreshold {
		data2 |= 2
	}
	return bits.Reverse32(data1), bits.Reverse32(data2)
}

func vmmRecord(fec, chip uint8, trigger uint64, hits ...VmmHit) []uint32 {
	words := []uint32{
		uint32(trigger>>32&0x0F)<<28 | uint32(fec)<<20 | 1,
		vmmDataTag<<8 | uint32(chip),
		uint32(trigger & 0xFFFFFFFF),
	}
	for _, hit := range hits {
		data1, data2 := encodeVmmHit(hit)
		words = append(words, data1, data2)
	}
	return append(words, EndOfRecord)
}

func testGeometry(t *testing.T) *Geometry {
	geometry := NewGeometry()
	require.NoError(t, geometry.ApplyPlanes([]PlaneDefinition{
		{Plane: 0, Chips: []ChipID{{FEC: 1, Chip: 0}, {FEC: 1, Chip: 1}}},
		{Plane: 1, Chips: []ChipID{{FEC: 1, Chip: 2}}},
	}))
	return geometry
}

func TestParseVmmHit(t *testing.T) {
	hit := VmmHit{BCID: 1234, TDC: 200, ADC: 777, Channel: 63, Flag: true, OverThreshold: true}
	assert.Equal(t, hit, ParseVmmHit(encodeVmmHit(hit)))
}

func TestVmmDecode(t *testing.T) {
	words := vmmRecord(1, 1, 1000,
		VmmHit{BCID: 4, ADC: 300, Channel: 3, OverThreshold: true},
		VmmHit{BCID: 4, ADC: 20, Channel: 60},
	)
	words = append(words, vmmRecord(1, 2, 1000, VmmHit{BCID: 8, TDC: 128, ADC: 50, Channel: 0})...)
	reader, err := NewVmmReader(wordStream(words...), testGeometry(t), DefaultTime())
	require.NoError(t, err)
	assert.Equal(t, 2, reader.Count())

	eventlets, err := reader.Next()
	require.NoError(t, err)
	require.Len(t, eventlets, 2)
	// (1000*3.125 + 4/40*1000) ns in 0.5 ns units
	assert.Equal(t, Eventlet{Time: 6450, Plane: 0, Strip: 67, ADC: 300, OverThreshold: true}, eventlets[0])
	assert.Equal(t, uint16(124), eventlets[1].Strip)

	eventlets, err = reader.Next()
	require.NoError(t, err)
	require.Len(t, eventlets, 1)
	// (3125 + 200 + 62.5) ns
	assert.Equal(t, uint64(6775), eventlets[0].Time)
	assert.Equal(t, uint8(1), eventlets[0].Plane)

	_, err = reader.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 3, reader.Stats().Eventlets)
}

func TestVmmUnmappedChipIsDropped(t *testing.T) {
	words := vmmRecord(1, 5, 10, VmmHit{BCID: 1, ADC: 10, Channel: 1})
	reader, err := NewVmmReader(wordStream(words...), testGeometry(t), DefaultTime())
	require.NoError(t, err)

	eventlets, err := reader.Next()
	require.NoError(t, err)
	assert.Empty(t, eventlets)
	assert.Equal(t, 1, reader.Stats().InvalidMapping)
	assert.Zero(t, reader.Stats().Malformed)
}

func TestVmmMalformed(t *testing.T) {
	good := vmmRecord(1, 0, 10, VmmHit{BCID: 1, ADC: 10, Channel: 1})
	words := []uint32{1 << 20, 0x11223344, 0, EndOfRecord}
	// odd payload
	words = append(words, 1<<20, vmmDataTag<<8, 10, 0x1, EndOfRecord)
	// stray header
	words = append(words, 1<<20, vmmDataTag<<8, 10, vmmDataTag<<8|1, 0, EndOfRecord)
	words = append(words, good...)

	reader, err := NewVmmReader(wordStream(words...), testGeometry(t), DefaultTime())
	require.NoError(t, err)
	eventlets, err := reader.Next()
	require.NoError(t, err)
	assert.Len(t, eventlets, 1)
	assert.Equal(t, 3, reader.Stats().Malformed)
	assert.Equal(t, 3, reader.Record())
}

func TestVmmTriggerRollover(t *testing.T) {
	words := vmmRecord(1, 0, 1<<36-1, VmmHit{ADC: 10})
	words = append(words, vmmRecord(1, 0, 2, VmmHit{ADC: 10})...)
	reader, err := NewVmmReader(wordStream(words...), testGeometry(t), Time{
		TacSlope: 0, BCClock: 40, TriggerResolution: 1, TargetResolution: 1,
	})
	require.NoError(t, err)

	first, err := reader.Next()
	require.NoError(t, err)
	firstTime := first[0].Time
	second, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<36-1), firstTime)
	assert.Equal(t, uint64(1<<36+2), second[0].Time)
}

func TestVmmMalformedRecordKeepsTrigger(t *testing.T) {
	words := vmmRecord(1, 0, 100, VmmHit{ADC: 10})
	// trigger 5 would look like a rollover, the stray header rejects it
	words = append(words, 1<<20, vmmDataTag<<8, 5, vmmDataTag<<8|1, 0, EndOfRecord)
	words = append(words, vmmRecord(1, 0, 200, VmmHit{ADC: 10})...)
	reader, err := NewVmmReader(wordStream(words...), testGeometry(t), Time{
		TacSlope: 0, BCClock: 40, TriggerResolution: 1, TargetResolution: 1,
	})
	require.NoError(t, err)

	_, err = reader.Next()
	require.NoError(t, err)
	second, err := reader.Next()
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, uint64(200), second[0].Time)
	assert.Equal(t, 1, reader.Stats().Malformed)
}

func TestVmmRejectsBadCalibration(t *testing.T) {
	_, err := NewVmmReader(wordStream(), testGeometry(t), Time{})
	assert.Error(t, err)
}
