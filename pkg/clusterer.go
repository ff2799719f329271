package nmx

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// ClusterParams bounds adjacency and correlation, and configures the
// analysis of every emitted event.
type ClusterParams struct {
	TimeSlack            uint64 `json:"time_slack" yaml:"time_slack"`
	StripSlack           uint16 `json:"strip_slack" yaml:"strip_slack"`
	CorrelationTimeSlack uint64 `json:"correlation_time_slack" yaml:"correlation_time_slack"`
	Weighted             bool   `json:"weighted" yaml:"weighted"`
	MaxTimebins          int    `json:"max_timebins" yaml:"max_timebins"`
	MaxTimedif           uint64 `json:"max_timedif" yaml:"max_timedif"`
	// EmitIncomplete turns clusters without a partner into single plane
	// events instead of dropping them
	EmitIncomplete bool `json:"emit_incomplete" yaml:"emit_incomplete"`
}

func DefaultClusterParams() ClusterParams {
	return ClusterParams{
		TimeSlack:            1,
		StripSlack:           2,
		CorrelationTimeSlack: 5,
		Weighted:             true,
		MaxTimebins:          3,
		MaxTimedif:           7,
		EmitIncomplete:       true,
	}
}

func (p ClusterParams) Validate() error {
	if p.MaxTimebins < 1 {
		return fmt.Errorf("max_timebins must be at least 1, got %d", p.MaxTimebins)
	}
	return nil
}

type ClustererStats struct {
	Inserted         int
	Ignored          int
	Clusters         int
	Merges           int
	Events           int
	Incomplete       int
	Dropped          int
	DroppedEventlets int
}

// Clusterer groups chronologically ordered eventlets into per plane macro
// clusters and correlates the clusters of both planes into events.
type Clusterer struct {
	params ClusterParams
	pool   *MicroclusterPool

	open   [2][]*MacroCluster
	closed [2][]*MacroCluster // ordered by TimeStart
	events []SimpleEvent

	latest  uint64
	started bool
	stats   ClustererStats
}

func NewClusterer(params ClusterParams, pool *MicroclusterPool) *Clusterer {
	return &Clusterer{params: params, pool: pool}
}

func (c *Clusterer) Params() ClusterParams {
	return c.params
}

func (c *Clusterer) Stats() ClustererStats {
	return c.stats
}

// Insert adds the next eventlet. Eventlets must come in non decreasing time
// order; an older one is rejected with ErrOutOfOrder. A rejected eventlet,
// including one refused for lack of pool or cluster capacity, leaves the
// clusterer untouched. Eventlets with zero amplitude are ignored.
func (c *Clusterer) Insert(e Eventlet) error {
	if e.Plane > 1 {
		return fmt.Errorf("eventlet %v: %w", e, ErrInvalidPlane)
	}
	if c.started && e.Time < c.latest {
		return fmt.Errorf("eventlet time %d after %d: %w", e.Time, c.latest, ErrOutOfOrder)
	}
	if e.ADC == 0 {
		c.latest = e.Time
		c.started = true
		c.stats.Ignored++
		return nil
	}

	// Stale clusters are never adjacent to e, so the target is known before
	// anything is closed. Every check that can fail runs first.
	var target *MacroCluster
	var bridged []*MacroCluster
	need := 1
	for _, cluster := range c.open[e.Plane] {
		if !cluster.Belongs(e) {
			continue
		}
		if target == nil {
			target = cluster
			continue
		}
		// e bridges target and cluster
		bridged = append(bridged, cluster)
		need += cluster.Len()
	}
	slot := -1
	if target == nil {
		var err error
		if slot, err = c.pool.Requisition(); err != nil {
			return err
		}
	} else if !target.Fits(need) {
		return fmt.Errorf("adding %d eventlets to a cluster of %d: %w", need, target.Len(), ErrCapacity)
	}

	c.latest = e.Time
	c.started = true
	c.closeStale(e.Time)

	for _, cluster := range bridged {
		if err := target.Merge(cluster); err != nil {
			return err
		}
		if err := c.pool.Release(cluster.slot); err != nil {
			return err
		}
		open := c.open[e.Plane]
		if i := slices.Index(open, cluster); i >= 0 {
			c.open[e.Plane] = slices.Delete(open, i, i+1)
		}
		c.stats.Merges++
	}

	if target == nil {
		members, err := c.pool.Get(slot)
		if err != nil {
			return err
		}
		target = newMacroCluster(c.params.TimeSlack, c.params.StripSlack, slot, members)
		c.open[e.Plane] = append(c.open[e.Plane], target)
	}
	if err := target.Insert(e); err != nil {
		return err
	}
	c.stats.Inserted++

	return c.correlate(false)
}

// closeStale moves clusters no future eventlet can join to the correlation
// pools.
func (c *Clusterer) closeStale(now uint64) {
	for plane := range c.open {
		kept := c.open[plane][:0]
		for _, cluster := range c.open[plane] {
			if cluster.TimeEnd+c.params.TimeSlack < now {
				c.closeCluster(uint8(plane), cluster)
			} else {
				kept = append(kept, cluster)
			}
		}
		clear(c.open[plane][len(kept):])
		c.open[plane] = kept
	}
}

func (c *Clusterer) closeCluster(plane uint8, cluster *MacroCluster) {
	closed := c.closed[plane]
	position, _ := slices.BinarySearchFunc(closed, cluster.TimeStart, func(e *MacroCluster, t uint64) int {
		if e.TimeStart <= t {
			return -1
		}
		return 1
	})
	c.closed[plane] = slices.Insert(closed, position, cluster)
	c.stats.Clusters++
}

// resolvable reports whether every cluster that could still pair with
// cluster is already closed.
func (c *Clusterer) resolvable(plane uint8, cluster *MacroCluster) bool {
	horizon := cluster.TimeEnd + c.params.CorrelationTimeSlack
	if c.latest <= horizon {
		return false
	}
	for _, other := range c.open[1-plane] {
		if other.TimeStart <= horizon {
			return false
		}
	}
	return true
}

// partner returns the index of the closed cluster of the other plane with
// the largest time overlap, or -1.
func (c *Clusterer) partner(plane uint8, cluster *MacroCluster) int {
	slack := c.params.CorrelationTimeSlack
	best := -1
	var bestOverlap int64
	for i, other := range c.closed[1-plane] {
		if other.TimeStart > cluster.TimeEnd+slack {
			break
		}
		if cluster.TimeStart > other.TimeEnd+slack {
			continue
		}
		overlap := int64(min(cluster.TimeEnd, other.TimeEnd)) - int64(max(cluster.TimeStart, other.TimeStart))
		if best < 0 || overlap > bestOverlap {
			best = i
			bestOverlap = overlap
		}
	}
	return best
}

func (c *Clusterer) correlate(force bool) error {
	for {
		plane := -1
		for p := range c.closed {
			if len(c.closed[p]) == 0 {
				continue
			}
			if plane < 0 || c.closed[p][0].TimeStart < c.closed[plane][0].TimeStart {
				plane = p
			}
		}
		if plane < 0 {
			return nil
		}
		cluster := c.closed[plane][0]
		if !force && !c.resolvable(uint8(plane), cluster) {
			return nil
		}
		c.closed[plane] = slices.Delete(c.closed[plane], 0, 1)

		var clusters [2]*MacroCluster
		clusters[plane] = cluster
		if index := c.partner(uint8(plane), cluster); index >= 0 {
			clusters[1-plane] = c.closed[1-plane][index]
			c.closed[1-plane] = slices.Delete(c.closed[1-plane], index, index+1)
		}

		if clusters[1-plane] == nil && !c.params.EmitIncomplete {
			c.stats.Dropped++
			c.stats.DroppedEventlets += cluster.Len()
		} else {
			c.events = append(c.events, c.buildEvent(clusters))
			c.stats.Events++
			if clusters[1-plane] == nil {
				c.stats.Incomplete++
			}
		}

		for _, done := range clusters {
			if done == nil {
				continue
			}
			if err := c.pool.Release(done.slot); err != nil {
				return err
			}
		}
	}
}

func (c *Clusterer) buildEvent(clusters [2]*MacroCluster) SimpleEvent {
	var event SimpleEvent
	if clusters[0] != nil {
		event.X = NewSimplePlane(clusters[0].Eventlets())
	} else {
		event.X = NewSimplePlane(nil)
	}
	if clusters[1] != nil {
		event.Y = NewSimplePlane(clusters[1].Eventlets())
	} else {
		event.Y = NewSimplePlane(nil)
	}
	event.Analyze(c.params.Weighted, c.params.MaxTimebins, c.params.MaxTimedif)
	return event
}

func (c *Clusterer) EventsReady() bool {
	return len(c.events) > 0
}

// PopEvents returns and forgets the events ready for emission.
func (c *Clusterer) PopEvents() []SimpleEvent {
	events := c.events
	c.events = nil
	return events
}

// Dump closes every open cluster and correlates everything held. It can be
// called repeatedly.
func (c *Clusterer) Dump() error {
	for plane := range c.open {
		for _, cluster := range c.open[plane] {
			c.closeCluster(uint8(plane), cluster)
		}
		c.open[plane] = nil
	}
	return c.correlate(true)
}

// OpenClusters is the number of clusters still accepting eventlets.
func (c *Clusterer) OpenClusters() int {
	return len(c.open[0]) + len(c.open[1])
}

// Clear discards all held clusters and events and returns their slots.
func (c *Clusterer) Clear() error {
	for plane := range c.open {
		for _, cluster := range append(c.open[plane], c.closed[plane]...) {
			if err := c.pool.Release(cluster.slot); err != nil {
				return err
			}
		}
		c.open[plane] = nil
		c.closed[plane] = nil
	}
	c.events = nil
	c.started = false
	c.latest = 0
	return nil
}
