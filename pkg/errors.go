package nmx

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfOrder is returned by Clusterer.Insert when an eventlet is older
	// than the last one inserted.
	ErrOutOfOrder = errors.New("eventlet inserted out of chronological order")
	// ErrInvalidPlane is returned for eventlets whose plane is neither 0 nor 1.
	ErrInvalidPlane = errors.New("invalid plane")
	// ErrPoolExhausted is returned by a fixed-size MicroclusterPool with no free slot.
	ErrPoolExhausted = errors.New("microcluster pool exhausted")
	// ErrNotRequisitioned is returned when releasing or accessing a slot that is not in use.
	ErrNotRequisitioned = errors.New("microcluster slot not requisitioned")
	// ErrCapacity is returned by a static Microcluster when writing past its capacity.
	ErrCapacity = errors.New("microcluster capacity exceeded")
	// ErrTimeOutOfRange is returned when packing a time beyond MaxPackedTime.
	ErrTimeOutOfRange = errors.New("time out of packed range")
	// ErrUnknownFormat is returned by NewReader for an unsupported data format.
	ErrUnknownFormat = errors.New("unknown data format")
)

// RecordErrorKind classifies a recoverable decoding failure.
type RecordErrorKind int

const (
	StrayHeader RecordErrorKind = iota + 1
	UnknownTag
	BadPayload
	BadChip
	MissingEnd
)

func (k RecordErrorKind) String() string {
	switch k {
	case StrayHeader:
		return "stray header"
	case UnknownTag:
		return "unknown tag"
	case BadPayload:
		return "bad payload"
	case BadChip:
		return "bad chip"
	case MissingEnd:
		return "missing end"
	default:
		return "unknown"
	}
}

// RecordError describes a malformed record. Decoding continues at the next record.
type RecordError struct {
	Record int
	Offset int64
	Kind   RecordErrorKind
	Word   uint32
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("malformed record %d at offset %d: %v (word 0x%08x)", e.Record, e.Offset, e.Kind, e.Word)
}
