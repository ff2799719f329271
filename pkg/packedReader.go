package nmx

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// PackedReader reads records written by WritePacked: a count word, that many
// packed eventlets and the END word.
type PackedReader struct {
	scanner *wordScanner
	stats   DecodeStats
	out     []Eventlet
}

func NewPackedReader(source io.ReadSeeker) (*PackedReader, error) {
	reader := &PackedReader{scanner: newWordScanner(source)}
	if err := reader.index(); err != nil {
		return nil, err
	}
	return reader, nil
}

func (r *PackedReader) index() error {
	s := r.scanner
	if err := s.rewind(); err != nil {
		return err
	}
	for {
		start := s.position
		count, err := s.readWord()
		if err != nil {
			break
		}
		skip := int64(count) * 12
		if _, err := s.buffer.Discard(int(skip)); err != nil {
			break
		}
		s.position += skip
		end, err := s.readWord()
		if err != nil {
			break
		}
		if end == EndOfRecord {
			s.offsets = append(s.offsets, start)
		}
	}
	return s.rewind()
}

func (r *PackedReader) Count() int {
	return len(r.scanner.offsets)
}

func (r *PackedReader) Stats() DecodeStats {
	return r.stats
}

func (r *PackedReader) Record() int {
	return r.scanner.returned
}

func (r *PackedReader) Next() ([]Eventlet, error) {
	s := r.scanner
	for {
		record := s.record
		start := s.position
		count, err := s.readWord()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			warnTruncated(&r.stats, record, start, "packed")
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("error reading record %d: %w", record, err)
		}

		r.out = r.out[:0]
		truncated := false
		var packed PackedEventlet
		for i := uint32(0); i < count && !truncated; i++ {
			for w := range packed {
				packed[w], err = s.readWord()
				if err != nil {
					truncated = true
					break
				}
			}
			if !truncated {
				r.out = append(r.out, FromPacket(packed))
			}
		}
		var end uint32
		if !truncated {
			end, err = s.readWord()
			truncated = err != nil
		}
		if truncated {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				return nil, fmt.Errorf("error reading record %d: %w", record, err)
			}
			warnTruncated(&r.stats, record, start, "packed")
			return nil, io.EOF
		}

		s.record++
		r.stats.Records++
		if end != EndOfRecord {
			// Without a valid END the record boundary is lost; resynchronise on
			// the next END word.
			warnRecord(&r.stats, record, start, MissingEnd, end, "packed")
			if err := r.resync(); err != nil {
				return nil, err
			}
			continue
		}
		r.stats.Eventlets += len(r.out)
		r.scanner.returned = record
		return r.out, nil
	}
}

func (r *PackedReader) resync() error {
	for {
		word, err := r.scanner.readWord()
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
		if word == EndOfRecord {
			return nil
		}
	}
}

// WritePacked writes one record of eventlets in the packed stream format.
func WritePacked(w io.Writer, eventlets []Eventlet) error {
	buffer := bufio.NewWriter(w)
	var word [4]byte
	put := func(value uint32) error {
		binary.LittleEndian.PutUint32(word[:], value)
		_, err := buffer.Write(word[:])
		return err
	}

	if err := put(uint32(len(eventlets))); err != nil {
		return err
	}
	for _, e := range eventlets {
		packed, err := e.ToPacket()
		if err != nil {
			return err
		}
		for _, value := range packed {
			if err := put(value); err != nil {
				return err
			}
		}
	}
	if err := put(EndOfRecord); err != nil {
		return err
	}
	return buffer.Flush()
}
