package nmx

import (
	"fmt"
	"io"
	"math/bits"
)

const (
	vmmDataTag  = 0x564D32
	vmmEmptyTag = 0x564132
)

// VmmHit is one decoded VMM hit before geometry and time interpretation.
type VmmHit struct {
	BCID          uint16
	TDC           uint8
	ADC           uint16
	Channel       uint16
	Flag          bool
	OverThreshold bool
}

// VmmReader decodes SRS VMM records.
type VmmReader struct {
	scanner  *wordScanner
	geometry *Geometry
	time     Time
	trigger  TriggerCounter
	stats    DecodeStats
	out      []Eventlet
}

func NewVmmReader(source io.ReadSeeker, geometry *Geometry, time Time) (*VmmReader, error) {
	if err := time.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vmm time calibration: %w", err)
	}
	reader := &VmmReader{
		scanner:  newWordScanner(source),
		geometry: geometry,
		time:     time,
	}
	if err := reader.scanner.indexSentinels(); err != nil {
		return nil, err
	}
	return reader, nil
}

func (r *VmmReader) Count() int {
	return len(r.scanner.offsets)
}

func (r *VmmReader) Stats() DecodeStats {
	return r.stats
}

func (r *VmmReader) Record() int {
	return r.scanner.returned
}

// Next returns the eventlets of the next well formed record. The returned
// slice is only valid until the following call.
func (r *VmmReader) Next() ([]Eventlet, error) {
	for {
		record := r.scanner.record
		words, offset, err := r.scanner.nextRecord()
		if err == io.ErrUnexpectedEOF {
			warnTruncated(&r.stats, record, offset, "vmm")
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		r.stats.Records++

		kind, word := r.decodeRecord(words, record)
		if kind != recordOK {
			warnRecord(&r.stats, record, offset, kind, word, "vmm")
			continue
		}
		r.stats.Eventlets += len(r.out)
		r.scanner.returned = record
		return r.out, nil
	}
}

// ParseVmmHit extracts the hit fields from a pair of raw hit words. Both
// words are bit reversed by the front end.
func ParseVmmHit(data1, data2 uint32) VmmHit {
	data1 = bits.Reverse32(data1)
	data2 = bits.Reverse32(data2)
	return VmmHit{
		BCID:          uint16(GrayToBinary(data1 & 0x0FFF)),
		ADC:           uint16((data1 >> 12) & 0x03FF),
		Flag:          data2&0x01 != 0,
		OverThreshold: (data2>>1)&0x01 != 0,
		Channel:       uint16((data2 >> 2) & 0x3F),
		TDC:           uint8((data2 >> 8) & 0xFF),
	}
}

func isVmmHeader(word uint32) bool {
	tag := word >> 8
	return tag == vmmDataTag || tag == vmmEmptyTag
}

func (r *VmmReader) decodeRecord(words []uint32, record int) (RecordErrorKind, uint32) {
	r.out = r.out[:0]
	if len(words) < 2 {
		return BadPayload, 0
	}

	// Frame word
	timestampHigh := uint64(words[0]>>28) & 0x0F
	fec := uint16((words[0] >> 20) & 0xFF)

	// Data ID
	dataID := words[1]
	tag := dataID >> 8
	chip := uint16(dataID & 0xFF)
	if tag != vmmDataTag && tag != vmmEmptyTag {
		return UnknownTag, dataID
	}
	if len(words) < 3 {
		if tag == vmmEmptyTag {
			return recordOK, 0
		}
		return BadPayload, dataID
	}

	// The rollover state only moves for records that decode cleanly
	raw := timestampHigh<<32 | uint64(words[2])
	trigger := r.trigger.Peek(raw)
	if tag == vmmEmptyTag {
		if len(words) > 3 {
			return BadPayload, words[3]
		}
		r.trigger.Advance(raw)
		return recordOK, 0
	}

	payload := words[3:]
	if len(payload)%2 != 0 {
		return BadPayload, payload[len(payload)-1]
	}
	for _, word := range payload {
		if isVmmHeader(word) {
			return StrayHeader, word
		}
	}
	r.trigger.Advance(raw)

	plane := r.geometry.PlaneID(fec, chip)
	for position := 0; position < len(payload); position += 2 {
		hit := ParseVmmHit(payload[position], payload[position+1])
		strip := r.geometry.StripID(fec, chip, hit.Channel)
		if plane == InvalidPlane || strip == InvalidStrip {
			r.stats.InvalidMapping++
			message := fmt.Sprintf("record %d: no strip for fec %d chip %d channel %d, hit dropped",
				record, fec, chip, hit.Channel)
			logger.Warn(message, "vmm")
			continue
		}
		r.out = append(r.out, Eventlet{
			Time:          r.time.Timestamp(trigger, hit.BCID, hit.TDC),
			Plane:         plane,
			Strip:         strip,
			ADC:           hit.ADC,
			Flag:          hit.Flag,
			OverThreshold: hit.OverThreshold,
		})
	}
	return recordOK, 0
}
