package nmx

import (
	"fmt"
	"math"
)

const triggerCounterBits = 36

// Time holds the VMM timing calibration. All values are in nanoseconds
// except BCClock, which is in MHz.
type Time struct {
	TacSlope          float64 `json:"tac_slope" yaml:"tac_slope"`
	BCClock           float64 `json:"bc_clock" yaml:"bc_clock"`
	TriggerResolution float64 `json:"trigger_resolution" yaml:"trigger_resolution"`
	TargetResolution  float64 `json:"target_resolution" yaml:"target_resolution"`
}

func DefaultTime() Time {
	return Time{
		TacSlope:          125,
		BCClock:           40,
		TriggerResolution: 3.125,
		TargetResolution:  0.5,
	}
}

func (t Time) Validate() error {
	if t.BCClock <= 0 {
		return fmt.Errorf("bc_clock must be positive, got %v", t.BCClock)
	}
	if t.TargetResolution <= 0 {
		return fmt.Errorf("target_resolution must be positive, got %v", t.TargetResolution)
	}
	if t.TriggerResolution <= 0 {
		return fmt.Errorf("trigger_resolution must be positive, got %v", t.TriggerResolution)
	}
	if t.TacSlope < 0 {
		return fmt.Errorf("tac_slope must not be negative, got %v", t.TacSlope)
	}
	return nil
}

func GrayToBinary(gray uint32) uint32 {
	binary := gray
	for shift := gray >> 1; shift != 0; shift >>= 1 {
		binary ^= shift
	}
	return binary
}

// SubTick returns the hit offset from its trigger in nanoseconds.
func (t Time) SubTick(bcid uint16, tdc uint8) float64 {
	bcTime := float64(bcid) / t.BCClock
	return bcTime*1000 + t.TacSlope*float64(tdc)/256
}

// Timestamp combines an unwrapped trigger count with the hit BCID and TDC
// into an absolute time in units of TargetResolution.
func (t Time) Timestamp(trigger uint64, bcid uint16, tdc uint8) uint64 {
	ns := float64(trigger)*t.TriggerResolution + t.SubTick(bcid, tdc)
	return uint64(math.Round(ns / t.TargetResolution))
}

// TriggerCounter unwraps the 36 bit trigger timestamp register.
type TriggerCounter struct {
	offset   uint64
	previous uint64
	started  bool
}

// Peek returns the count Advance would return for raw without recording it.
func (c *TriggerCounter) Peek(raw uint64) uint64 {
	raw &= 1<<triggerCounterBits - 1
	offset := c.offset
	if c.started && raw < c.previous {
		offset += 1 << triggerCounterBits
	}
	return offset + raw
}

// Advance returns the monotonic trigger count for a raw register value.
func (c *TriggerCounter) Advance(raw uint64) uint64 {
	count := c.Peek(raw)
	raw &= 1<<triggerCounterBits - 1
	if c.started && raw < c.previous {
		c.offset += 1 << triggerCounterBits
	}
	c.previous = raw
	c.started = true
	return count
}

func (c *TriggerCounter) Reset() {
	*c = TriggerCounter{}
}
