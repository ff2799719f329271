package nmx

import "fmt"

const (
	InvalidPlane uint8  = 0xFF
	InvalidStrip uint16 = 0xFFFF

	// MaxPackedTime is the largest time that survives ToPacket.
	MaxPackedTime uint64 = 1<<61 - 1
)

// Eventlet is a single hit on one strip of one readout plane.
type Eventlet struct {
	Time          uint64
	Plane         uint8
	Strip         uint16
	ADC           uint16
	Flag          bool
	OverThreshold bool
}

// PackedEventlet is the fixed width representation written to archives and
// packed streams.
//
//	word 0: time bits 0..31
//	word 1: time bits 32..60, bit 29 plane, bit 30 flag, bit 31 over threshold
//	word 2: strip << 16 | adc
type PackedEventlet [3]uint32

// LessTimeStrip orders by time and then by strip.
func LessTimeStrip(a, b Eventlet) bool {
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	return a.Strip < b.Strip
}

// LessTime orders by time only.
func LessTime(a, b Eventlet) bool {
	return a.Time < b.Time
}

func (e Eventlet) ToPacket() (PackedEventlet, error) {
	var p PackedEventlet
	if e.Time > MaxPackedTime {
		return p, fmt.Errorf("eventlet time %d: %w", e.Time, ErrTimeOutOfRange)
	}
	if e.Plane > 1 {
		return p, fmt.Errorf("eventlet plane %d: %w", e.Plane, ErrInvalidPlane)
	}
	p[0] = uint32(e.Time & 0xFFFFFFFF)
	p[1] = uint32((e.Time >> 32) & 0x1FFFFFFF)
	p[1] |= uint32(e.Plane) << 29
	if e.Flag {
		p[1] |= 1 << 30
	}
	if e.OverThreshold {
		p[1] |= 1 << 31
	}
	p[2] = uint32(e.Strip)<<16 | uint32(e.ADC)
	return p, nil
}

func FromPacket(p PackedEventlet) Eventlet {
	return Eventlet{
		Time:          uint64(p[0]) | uint64(p[1]&0x1FFFFFFF)<<32,
		Plane:         uint8((p[1] >> 29) & 0x01),
		Flag:          (p[1]>>30)&0x01 != 0,
		OverThreshold: (p[1]>>31)&0x01 != 0,
		Strip:         uint16(p[2] >> 16),
		ADC:           uint16(p[2] & 0xFFFF),
	}
}

func (e Eventlet) String() string {
	return fmt.Sprintf("t=%d plane=%d strip=%d adc=%d flag=%t ot=%t",
		e.Time, e.Plane, e.Strip, e.ADC, e.Flag, e.OverThreshold)
}
