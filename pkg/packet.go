package nmx

// EventletPacket is a bounded batch of eventlets. TimeStart and TimeEnd are
// the minimum and maximum time of its contents.
type EventletPacket struct {
	Eventlets []Eventlet
	TimeStart uint64
	TimeEnd   uint64
}

func NewEventletPacket(capacity int) EventletPacket {
	return EventletPacket{Eventlets: make([]Eventlet, 0, capacity)}
}

// Add appends an eventlet, returning false if the packet is full.
func (p *EventletPacket) Add(e Eventlet) bool {
	if p.Full() {
		return false
	}
	if len(p.Eventlets) == 0 {
		p.TimeStart = e.Time
		p.TimeEnd = e.Time
	} else {
		p.TimeStart = min(p.TimeStart, e.Time)
		p.TimeEnd = max(p.TimeEnd, e.Time)
	}
	p.Eventlets = append(p.Eventlets, e)
	return true
}

func (p *EventletPacket) Full() bool {
	return len(p.Eventlets) == cap(p.Eventlets)
}

func (p *EventletPacket) Len() int {
	return len(p.Eventlets)
}

// Packetize splits a record into packets of at most capacity eventlets.
func Packetize(eventlets []Eventlet, capacity int) []EventletPacket {
	if capacity < 1 {
		capacity = 1
	}
	packets := make([]EventletPacket, 0, (len(eventlets)+capacity-1)/capacity)
	packet := NewEventletPacket(capacity)
	for _, e := range eventlets {
		if !packet.Add(e) {
			packets = append(packets, packet)
			packet = NewEventletPacket(capacity)
			packet.Add(e)
		}
	}
	if packet.Len() > 0 {
		packets = append(packets, packet)
	}
	return packets
}
