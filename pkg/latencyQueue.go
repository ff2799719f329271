package nmx

import "golang.org/x/exp/slices"

// LatencyQueue releases packets in order of their end time once no packet
// arriving within the latency window could end earlier.
type LatencyQueue struct {
	latency       uint64
	currentLatest uint64
	// sorted by descending TimeEnd, the earliest ending packet is last
	packets []EventletPacket
}

func NewLatencyQueue(latency uint64) *LatencyQueue {
	return &LatencyQueue{latency: latency}
}

func (q *LatencyQueue) Push(packet EventletPacket) {
	position, _ := slices.BinarySearchFunc(q.packets, packet, func(e, t EventletPacket) int {
		switch {
		case e.TimeEnd > t.TimeEnd:
			return -1
		case e.TimeEnd < t.TimeEnd:
			return 1
		default:
			return 0
		}
	})
	q.packets = slices.Insert(q.packets, position, packet)
	q.currentLatest = max(q.currentLatest, packet.TimeStart)
}

// Ready is true when the gap between the newest start seen and the earliest
// end held exceeds the latency.
func (q *LatencyQueue) Ready() bool {
	if len(q.packets) == 0 {
		return false
	}
	earliest := q.packets[len(q.packets)-1].TimeEnd
	if q.currentLatest <= earliest {
		return false
	}
	return q.currentLatest-earliest > q.latency
}

// Pop removes the packet with the smallest end time.
func (q *LatencyQueue) Pop() (EventletPacket, bool) {
	if len(q.packets) == 0 {
		return EventletPacket{}, false
	}
	last := len(q.packets) - 1
	packet := q.packets[last]
	q.packets[last] = EventletPacket{}
	q.packets = q.packets[:last]
	return packet, true
}

func (q *LatencyQueue) Len() int {
	return len(q.packets)
}

func (q *LatencyQueue) Empty() bool {
	return len(q.packets) == 0
}

func (q *LatencyQueue) CurrentLatest() uint64 {
	return q.currentLatest
}
