package nmx

import "io"

const (
	apvHeaderTag     = 0x41505A
	apvChannels      = 128
	apvChannelMask   = 0x7F
	apvAdcMask       = 0x0FFF
	apvAdcSignBit    = 0x0800
	recordOK         = RecordErrorKind(0)
	DefaultApvStride = 100
)

// ApvReader decodes zero suppressed APV records.
type ApvReader struct {
	scanner *wordScanner
	stride  uint64
	stats   DecodeStats
	out     []Eventlet
}

func NewApvReader(source io.ReadSeeker, stride uint64) (*ApvReader, error) {
	if stride == 0 {
		stride = DefaultApvStride
	}
	reader := &ApvReader{scanner: newWordScanner(source), stride: stride}
	if err := reader.scanner.indexSentinels(); err != nil {
		return nil, err
	}
	return reader, nil
}

func (r *ApvReader) Count() int {
	return len(r.scanner.offsets)
}

func (r *ApvReader) Stats() DecodeStats {
	return r.stats
}

func (r *ApvReader) Record() int {
	return r.scanner.returned
}

// Next returns the eventlets of the next well formed record. The returned
// slice is only valid until the following call.
func (r *ApvReader) Next() ([]Eventlet, error) {
	for {
		record := r.scanner.record
		words, offset, err := r.scanner.nextRecord()
		if err == io.ErrUnexpectedEOF {
			warnTruncated(&r.stats, record, offset, "apv")
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		r.stats.Records++

		var kind RecordErrorKind
		var word uint32
		r.out, kind, word = decodeApvRecord(words, uint64(record)*r.stride, r.out[:0])
		if kind != recordOK {
			warnRecord(&r.stats, record, offset, kind, word, "apv")
			continue
		}
		r.stats.Eventlets += len(r.out)
		r.scanner.returned = record
		return r.out, nil
	}
}

// ApvPlane maps an APV chip to its plane: chips 0 and 1 read plane 0,
// chips 2 and 3 read plane 1.
func ApvPlane(chip uint8) uint8 {
	if chip > 3 {
		return InvalidPlane
	}
	return chip / 2
}

// ApvStrip maps a raw APV channel to a strip. The odd chip of a pair reads
// the upper 128 strips.
func ApvStrip(chip uint8, channel uint16) uint16 {
	strip := 32*(channel%4) + 8*(channel/4) - 31*(channel/16)
	if chip%2 == 1 {
		strip += apvChannels
	}
	return strip
}

// ApvAmplitude converts a raw 12 bit two's complement sample to a positive
// amplitude. Samples at or above the baseline give 0.
func ApvAmplitude(raw uint16) uint16 {
	value := int32(raw & apvAdcMask)
	if value&apvAdcSignBit != 0 {
		value -= apvAdcMask + 1
	}
	value = -value
	if value <= 0 {
		return 0
	}
	return uint16(value)
}

func decodeApvRecord(words []uint32, timeOffset uint64, out []Eventlet) ([]Eventlet, RecordErrorKind, uint32) {
	if len(words) < 2 {
		return out, BadPayload, 0
	}
	header := words[0]
	if header>>8 != apvHeaderTag {
		return out, UnknownTag, header
	}
	chip := uint8(header & 0xFF)
	plane := ApvPlane(chip)
	if plane == InvalidPlane {
		return out, BadChip, header
	}
	timebins := uint16(words[1] & 0xFF)
	if timebins == 0 {
		return out, BadPayload, words[1]
	}

	expectChannel := true
	var channel, timebin uint16
	nHalves := 2 * (len(words) - 2)
	for position := 2; position < len(words); position++ {
		word := words[position]
		if word>>8 == apvHeaderTag {
			return out, StrayHeader, word
		}
		halves := [2]uint16{uint16(word >> 16), uint16(word & 0xFFFF)}
		for h, value := range halves {
			if expectChannel {
				// Padding of an odd half word count
				last := 2*(position-2)+h == nHalves-1
				if last && value == 0 {
					continue
				}
				if value > apvChannelMask {
					return out, BadPayload, word
				}
				channel = value
				timebin = 0
				expectChannel = false
				continue
			}
			if value > apvAdcMask {
				return out, BadPayload, word
			}
			if adc := ApvAmplitude(value); adc > 0 {
				out = append(out, Eventlet{
					Time:  timeOffset + uint64(timebin),
					Plane: plane,
					Strip: ApvStrip(chip, channel),
					ADC:   adc,
				})
			}
			timebin++
			if timebin == timebins {
				expectChannel = true
			}
		}
	}
	if !expectChannel {
		return out, BadPayload, words[len(words)-1]
	}
	return out, recordOK, 0
}

