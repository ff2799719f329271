package nmx

import "fmt"

// Microcluster is a reusable eventlet buffer. Size is the logical occupancy,
// ReservedSize the backing capacity. A static microcluster refuses writes
// past its capacity instead of growing.
type Microcluster struct {
	eventlets []Eventlet
	size      int
	dynamic   bool
}

func NewMicrocluster(capacity int, dynamic bool) *Microcluster {
	if capacity < 1 {
		capacity = 1
	}
	return &Microcluster{eventlets: make([]Eventlet, capacity), dynamic: dynamic}
}

func (m *Microcluster) Size() int {
	return m.size
}

func (m *Microcluster) ReservedSize() int {
	return len(m.eventlets)
}

func (m *Microcluster) Dynamic() bool {
	return m.dynamic
}

// Reserve grows the backing storage to at least n eventlets. It never shrinks.
func (m *Microcluster) Reserve(n int) {
	if n <= len(m.eventlets) {
		return
	}
	grown := make([]Eventlet, n)
	copy(grown, m.eventlets[:m.size])
	m.eventlets = grown
}

func (m *Microcluster) Insert(e Eventlet) error {
	if m.size == len(m.eventlets) {
		if !m.dynamic {
			return fmt.Errorf("insert at %d: %w", m.size, ErrCapacity)
		}
		m.Reserve(2 * len(m.eventlets))
	}
	m.eventlets[m.size] = e
	m.size++
	return nil
}

// Set writes position i, extending the size when i is past the end.
func (m *Microcluster) Set(i int, e Eventlet) error {
	if i < 0 {
		return fmt.Errorf("set at %d: %w", i, ErrCapacity)
	}
	if i >= len(m.eventlets) {
		if !m.dynamic {
			return fmt.Errorf("set at %d: %w", i, ErrCapacity)
		}
		capacity := len(m.eventlets)
		for capacity <= i {
			capacity *= 2
		}
		m.Reserve(capacity)
	}
	m.eventlets[i] = e
	if i >= m.size {
		m.size = i + 1
	}
	return nil
}

func (m *Microcluster) At(i int) (Eventlet, error) {
	if i < 0 || i >= m.size {
		return Eventlet{}, fmt.Errorf("read at %d of %d: %w", i, m.size, ErrCapacity)
	}
	return m.eventlets[i], nil
}

// Eventlets returns a view of the occupied part of the buffer. It is
// invalidated by Reset and by growth.
func (m *Microcluster) Eventlets() []Eventlet {
	return m.eventlets[:m.size]
}

// Reset empties the buffer keeping its capacity.
func (m *Microcluster) Reset() {
	m.size = 0
}

// MicroclusterPool hands out microclusters by index.
type MicroclusterPool struct {
	slots    []*Microcluster
	inUse    []bool
	free     []int
	capacity int
	dynamic  bool
	growable bool
}

// NewMicroclusterPool builds a pool of slots microclusters of the given
// capacity. A growable pool adds a slot when exhausted, a fixed one fails.
func NewMicroclusterPool(slots, capacity int, dynamic, growable bool) *MicroclusterPool {
	pool := &MicroclusterPool{
		slots:    make([]*Microcluster, slots),
		inUse:    make([]bool, slots),
		free:     make([]int, 0, slots),
		capacity: capacity,
		dynamic:  dynamic,
		growable: growable,
	}
	for i := range pool.slots {
		pool.slots[i] = NewMicrocluster(capacity, dynamic)
	}
	// Low indices are handed out first
	for i := slots - 1; i >= 0; i-- {
		pool.free = append(pool.free, i)
	}
	return pool
}

func (p *MicroclusterPool) Requisition() (int, error) {
	if len(p.free) == 0 {
		if !p.growable {
			return -1, fmt.Errorf("%d slots in use: %w", len(p.slots), ErrPoolExhausted)
		}
		p.slots = append(p.slots, NewMicrocluster(p.capacity, p.dynamic))
		p.inUse = append(p.inUse, true)
		return len(p.slots) - 1, nil
	}
	last := len(p.free) - 1
	index := p.free[last]
	p.free = p.free[:last]
	p.inUse[index] = true
	return index, nil
}

func (p *MicroclusterPool) Release(index int) error {
	if index < 0 || index >= len(p.slots) || !p.inUse[index] {
		return fmt.Errorf("release slot %d: %w", index, ErrNotRequisitioned)
	}
	p.slots[index].Reset()
	p.inUse[index] = false
	p.free = append(p.free, index)
	return nil
}

// Get returns the microcluster held by a requisitioned slot.
func (p *MicroclusterPool) Get(index int) (*Microcluster, error) {
	if index < 0 || index >= len(p.slots) || !p.inUse[index] {
		return nil, fmt.Errorf("get slot %d: %w", index, ErrNotRequisitioned)
	}
	return p.slots[index], nil
}

func (p *MicroclusterPool) Len() int {
	return len(p.slots)
}

func (p *MicroclusterPool) Free() int {
	return len(p.free)
}
