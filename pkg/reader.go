package nmx

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// EndOfRecord terminates every APV, VMM and packed record.
const EndOfRecord uint32 = 0xFAFAFAFA

const (
	FormatAPV    = "apv"
	FormatVMM    = "vmm"
	FormatPacked = "packed"
)

// Reader is a lazy, non restartable source of decoded records.
type Reader interface {
	// Count returns the number of records found by the index pass.
	Count() int
	// Next returns the eventlets of the next decodable record, or io.EOF.
	Next() ([]Eventlet, error)
	// Record is the position in the file of the record last returned by
	// Next, counting malformed records. It is -1 before the first one.
	Record() int
	Stats() DecodeStats
}

type DecodeStats struct {
	Records        int
	Malformed      int
	Truncated      int
	InvalidMapping int
	Eventlets      int
}

type ReaderConfig struct {
	Format          string
	ApvRecordStride uint64
	Time            Time
	Geometry        *Geometry
}

// NewReader runs the index pass over source and returns the decoder for format.
func NewReader(source io.ReadSeeker, config ReaderConfig) (Reader, error) {
	switch config.Format {
	case FormatAPV:
		return NewApvReader(source, config.ApvRecordStride)
	case FormatVMM:
		if config.Geometry == nil {
			return nil, errors.New("vmm reader requires a geometry")
		}
		return NewVmmReader(source, config.Geometry, config.Time)
	case FormatPacked:
		return NewPackedReader(source)
	default:
		return nil, fmt.Errorf("%q: %w", config.Format, ErrUnknownFormat)
	}
}

// wordScanner reads little endian 32 bit words and splits them into records
// at EndOfRecord.
type wordScanner struct {
	source   io.ReadSeeker
	buffer   *bufio.Reader
	offsets  []int64
	position int64
	record   int
	returned int
	words    []uint32
	scratch  [4]byte
}

func newWordScanner(source io.ReadSeeker) *wordScanner {
	return &wordScanner{
		source:   source,
		buffer:   bufio.NewReaderSize(source, 1<<16),
		returned: -1,
		words:    make([]uint32, 0, 1024),
	}
}

// rewind positions the scanner at the beginning of the stream.
func (s *wordScanner) rewind() error {
	if _, err := s.source.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to start of stream: %w", err)
	}
	s.buffer.Reset(s.source)
	s.position = 0
	s.record = 0
	return nil
}

func (s *wordScanner) readWord() (uint32, error) {
	_, err := io.ReadFull(s.buffer, s.scratch[:])
	if err != nil {
		return 0, err
	}
	s.position += 4
	return binary.LittleEndian.Uint32(s.scratch[:]), nil
}

// indexSentinels records the start offset of every record terminated by
// EndOfRecord and rewinds the stream.
func (s *wordScanner) indexSentinels() error {
	if err := s.rewind(); err != nil {
		return err
	}
	start := int64(0)
	for {
		word, err := s.readWord()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return fmt.Errorf("error indexing records: %w", err)
		}
		if word == EndOfRecord {
			s.offsets = append(s.offsets, start)
			start = s.position
		}
	}
	return s.rewind()
}

// nextRecord returns the words of the next record without the END word.
// The slice is reused by the following call. A record cut by the end of the
// stream yields io.ErrUnexpectedEOF.
func (s *wordScanner) nextRecord() ([]uint32, int64, error) {
	s.words = s.words[:0]
	start := s.position
	for {
		word, err := s.readWord()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				if len(s.words) == 0 && err == io.EOF {
					return nil, start, io.EOF
				}
				return nil, start, io.ErrUnexpectedEOF
			}
			return nil, start, fmt.Errorf("error reading record %d: %w", s.record, err)
		}
		if word == EndOfRecord {
			s.record++
			return s.words, start, nil
		}
		s.words = append(s.words, word)
	}
}

// warnRecord logs and counts a malformed record.
func warnRecord(stats *DecodeStats, record int, offset int64, kind RecordErrorKind, word uint32, module string) {
	stats.Malformed++
	recordErr := RecordError{Record: record, Offset: offset, Kind: kind, Word: word}
	logger.Warn(recordErr.Error(), module)
}

func warnTruncated(stats *DecodeStats, record int, offset int64, module string) {
	stats.Truncated++
	message := fmt.Sprintf("record %d at offset %d cut by end of stream, discarded", record, offset)
	logger.Warn(message, module)
}
