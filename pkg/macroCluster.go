package nmx

import "fmt"

// MacroCluster groups time and strip adjacent eventlets of one plane. Its
// bounding box only grows as members are added.
type MacroCluster struct {
	TimeStart  uint64
	TimeEnd    uint64
	StripStart uint16
	StripEnd   uint16
	// Planes has bit p set when plane p contributed
	Planes uint8

	timeSlack  uint64
	stripSlack uint16
	slot       int
	members    *Microcluster
}

func newMacroCluster(timeSlack uint64, stripSlack uint16, slot int, members *Microcluster) *MacroCluster {
	return &MacroCluster{
		timeSlack:  timeSlack,
		stripSlack: stripSlack,
		slot:       slot,
		members:    members,
	}
}

func (c *MacroCluster) Empty() bool {
	return c.members.Size() == 0
}

func (c *MacroCluster) Len() int {
	return c.members.Size()
}

func (c *MacroCluster) Eventlets() []Eventlet {
	return c.members.Eventlets()
}

func (c *MacroCluster) TimeAdjacent(e Eventlet) bool {
	if c.Empty() {
		return false
	}
	return e.Time+c.timeSlack >= c.TimeStart && e.Time <= c.TimeEnd+c.timeSlack
}

func (c *MacroCluster) StripAdjacent(e Eventlet) bool {
	if c.Empty() {
		return false
	}
	strip := int(e.Strip)
	slack := int(c.stripSlack)
	return strip+slack >= int(c.StripStart) && strip <= int(c.StripEnd)+slack
}

func (c *MacroCluster) Belongs(e Eventlet) bool {
	return c.TimeAdjacent(e) && c.StripAdjacent(e)
}

func (c *MacroCluster) Insert(e Eventlet) error {
	if err := c.members.Insert(e); err != nil {
		return err
	}
	if c.members.Size() == 1 {
		c.TimeStart, c.TimeEnd = e.Time, e.Time
		c.StripStart, c.StripEnd = e.Strip, e.Strip
	} else {
		c.TimeStart = min(c.TimeStart, e.Time)
		c.TimeEnd = max(c.TimeEnd, e.Time)
		c.StripStart = min(c.StripStart, e.Strip)
		c.StripEnd = max(c.StripEnd, e.Strip)
	}
	c.Planes |= 1 << e.Plane
	return nil
}

// Fits reports whether n more eventlets can be added without exceeding a
// static capacity.
func (c *MacroCluster) Fits(n int) bool {
	return c.members.Dynamic() || c.members.Size()+n <= c.members.ReservedSize()
}

// Merge moves every member of other into c. Nothing is copied when c cannot
// hold them all.
func (c *MacroCluster) Merge(other *MacroCluster) error {
	if !c.Fits(other.Len()) {
		return fmt.Errorf("merging %d eventlets into %d: %w", other.Len(), c.Len(), ErrCapacity)
	}
	for _, e := range other.Eventlets() {
		if err := c.Insert(e); err != nil {
			return err
		}
	}
	c.Planes |= other.Planes
	return nil
}
