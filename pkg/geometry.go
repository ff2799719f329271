package nmx

import "fmt"

// ChannelsPerChip is the number of VMM channels read out per chip.
const ChannelsPerChip = 64

type ChipID struct {
	FEC  uint16 `json:"fec" yaml:"fec"`
	Chip uint16 `json:"chip" yaml:"chip"`
}

// PlaneDefinition lists the chips of one plane in strip order.
type PlaneDefinition struct {
	Plane uint8    `json:"plane" yaml:"plane"`
	Chips []ChipID `json:"chips" yaml:"chips"`
}

type chipLocation struct {
	plane  uint8
	offset uint16
}

// Geometry maps hardware (fec, chip, channel) to (plane, strip).
type Geometry struct {
	chips map[ChipID]chipLocation
}

func NewGeometry() *Geometry {
	return &Geometry{chips: make(map[ChipID]chipLocation)}
}

// DefinePlane assigns chips to a plane. The k-th chip covers strips
// k*64 to k*64+63. Calling it again for the same plane replaces its chips.
func (g *Geometry) DefinePlane(plane uint8, chips []ChipID) error {
	if plane > 1 {
		return fmt.Errorf("define plane %d: %w", plane, ErrInvalidPlane)
	}
	for _, chip := range chips {
		if location, ok := g.chips[chip]; ok && location.plane != plane {
			return fmt.Errorf("fec %d chip %d already assigned to plane %d", chip.FEC, chip.Chip, location.plane)
		}
	}
	for id, location := range g.chips {
		if location.plane == plane {
			delete(g.chips, id)
		}
	}
	for k, chip := range chips {
		g.chips[chip] = chipLocation{plane: plane, offset: uint16(k * ChannelsPerChip)}
	}
	return nil
}

func (g *Geometry) StripID(fec, chip, channel uint16) uint16 {
	location, ok := g.chips[ChipID{FEC: fec, Chip: chip}]
	if !ok || channel >= ChannelsPerChip {
		return InvalidStrip
	}
	return location.offset + channel
}

func (g *Geometry) PlaneID(fec, chip uint16) uint8 {
	location, ok := g.chips[ChipID{FEC: fec, Chip: chip}]
	if !ok {
		return InvalidPlane
	}
	return location.plane
}

// ApplyPlanes defines every plane in defs.
func (g *Geometry) ApplyPlanes(defs []PlaneDefinition) error {
	for _, def := range defs {
		if err := g.DefinePlane(def.Plane, def.Chips); err != nil {
			return err
		}
	}
	return nil
}
