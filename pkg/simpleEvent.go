package nmx

import "golang.org/x/exp/slices"

// SimplePlane is the analysed content of one plane of an event.
type SimplePlane struct {
	Eventlets []Eventlet

	TimeStart  uint64
	TimeEnd    uint64
	StripStart uint16
	StripEnd   uint16

	// Center is the entry strip estimate, -1 for an empty plane
	Center      float64
	UncertLower int
	UncertUpper int
	Integral    uint64
	Density     float64
	TimeCenter  float64
	StripCenter float64
}

// NewSimplePlane copies eventlets and sorts them by time.
func NewSimplePlane(eventlets []Eventlet) SimplePlane {
	plane := SimplePlane{Eventlets: slices.Clone(eventlets), Center: -1}
	slices.SortStableFunc(plane.Eventlets, func(a, b Eventlet) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		default:
			return 0
		}
	})
	if len(plane.Eventlets) > 0 {
		plane.TimeStart = plane.Eventlets[0].Time
		plane.TimeEnd = plane.Eventlets[len(plane.Eventlets)-1].Time
	}
	return plane
}

func (p *SimplePlane) Empty() bool {
	return len(p.Eventlets) == 0
}

// Analyze computes the entry strip and its uncertainties. Charge drifts
// towards the readout so the latest timebin marks the track entry: Center
// is the mean strip of the latest timebin, UncertLower its strip span and
// UncertUpper the span of up to maxTimebins distinct timebins within
// maxTimedif of the latest one.
func (p *SimplePlane) Analyze(weighted bool, maxTimebins int, maxTimedif uint64) {
	if p.Empty() {
		return
	}
	first := p.Eventlets[0]
	last := p.Eventlets[len(p.Eventlets)-1]
	p.TimeStart, p.TimeEnd = first.Time, last.Time
	p.StripStart, p.StripEnd = first.Strip, first.Strip

	var integral, weightedTime, weightedStrip, sumTime, sumStrip float64
	strips := make(map[uint16]struct{})
	for _, e := range p.Eventlets {
		p.StripStart = min(p.StripStart, e.Strip)
		p.StripEnd = max(p.StripEnd, e.Strip)
		strips[e.Strip] = struct{}{}
		integral += float64(e.ADC)
		weightedTime += float64(e.Time) * float64(e.ADC)
		weightedStrip += float64(e.Strip) * float64(e.ADC)
		sumTime += float64(e.Time)
		sumStrip += float64(e.Strip)
	}
	p.Integral = uint64(integral)
	if integral > 0 {
		p.TimeCenter = weightedTime / integral
		p.StripCenter = weightedStrip / integral
	} else {
		n := float64(len(p.Eventlets))
		p.TimeCenter = sumTime / n
		p.StripCenter = sumStrip / n
	}
	p.Density = float64(len(strips)) / float64(int(p.StripEnd)-int(p.StripStart)+1)

	// Latest timebin
	latest := last.Time
	var sum, weight float64
	lower, upper := last.Strip, last.Strip
	i := len(p.Eventlets) - 1
	for ; i >= 0 && p.Eventlets[i].Time == latest; i-- {
		e := p.Eventlets[i]
		w := 1.0
		if weighted {
			w = float64(e.ADC)
		}
		sum += w * float64(e.Strip)
		weight += w
		lower = min(lower, e.Strip)
		upper = max(upper, e.Strip)
	}
	if weight == 0 {
		// all amplitudes zero, fall back to the plain mean
		sum, weight = 0, 0
		for j := len(p.Eventlets) - 1; j > i; j-- {
			sum += float64(p.Eventlets[j].Strip)
			weight++
		}
	}
	p.Center = sum / weight
	p.UncertLower = int(upper) - int(lower) + 1

	// Earlier timebins, scanning backwards
	timebins := 1
	for i >= 0 {
		t := p.Eventlets[i].Time
		if timebins >= maxTimebins || latest-t > maxTimedif {
			break
		}
		timebins++
		for ; i >= 0 && p.Eventlets[i].Time == t; i-- {
			lower = min(lower, p.Eventlets[i].Strip)
			upper = max(upper, p.Eventlets[i].Strip)
		}
	}
	p.UncertUpper = int(upper) - int(lower) + 1
}

// SimpleEvent is one reconstructed track: one analysed plane per axis.
type SimpleEvent struct {
	X SimplePlane
	Y SimplePlane
}

// Good is true when both planes contributed.
func (e SimpleEvent) Good() bool {
	return !e.X.Empty() && !e.Y.Empty()
}

// TimeStart is the earlier start of the non empty planes.
func (e SimpleEvent) TimeStart() uint64 {
	switch {
	case e.X.Empty() && e.Y.Empty():
		return 0
	case e.X.Empty():
		return e.Y.TimeStart
	case e.Y.Empty():
		return e.X.TimeStart
	default:
		return min(e.X.TimeStart, e.Y.TimeStart)
	}
}

func (e SimpleEvent) Eventlets() int {
	return len(e.X.Eventlets) + len(e.Y.Eventlets)
}

func (e *SimpleEvent) Analyze(weighted bool, maxTimebins int, maxTimedif uint64) {
	e.X.Analyze(weighted, maxTimebins, maxTimedif)
	e.Y.Analyze(weighted, maxTimebins, maxTimedif)
}
