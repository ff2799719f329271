package nmx

import "container/heap"

type eventletHeap []Eventlet

func (h eventletHeap) Len() int           { return len(h) }
func (h eventletHeap) Less(i, j int) bool { return LessTimeStrip(h[i], h[j]) }
func (h eventletHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *eventletHeap) Push(x any) {
	*h = append(*h, x.(Eventlet))
}

func (h *eventletHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// ChronoQ reorders eventlets into strict (time, strip) order within a
// bounded latency.
type ChronoQ struct {
	latency       uint64
	currentLatest uint64
	eventlets     eventletHeap
}

func NewChronoQ(latency uint64) *ChronoQ {
	return &ChronoQ{latency: latency}
}

func (q *ChronoQ) Push(e Eventlet) {
	heap.Push(&q.eventlets, e)
	q.currentLatest = max(q.currentLatest, e.Time)
}

func (q *ChronoQ) PushPacket(packet EventletPacket) {
	for _, e := range packet.Eventlets {
		q.Push(e)
	}
}

func (q *ChronoQ) Ready() bool {
	if len(q.eventlets) == 0 {
		return false
	}
	earliest := q.eventlets[0].Time
	if q.currentLatest <= earliest {
		return false
	}
	return q.currentLatest-earliest > q.latency
}

func (q *ChronoQ) Pop() (Eventlet, bool) {
	if len(q.eventlets) == 0 {
		return Eventlet{}, false
	}
	return heap.Pop(&q.eventlets).(Eventlet), true
}

// Drain pops every held eventlet in order, stopping at the first error.
func (q *ChronoQ) Drain(fn func(Eventlet) error) error {
	for len(q.eventlets) > 0 {
		e, _ := q.Pop()
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (q *ChronoQ) Len() int {
	return len(q.eventlets)
}

func (q *ChronoQ) Empty() bool {
	return len(q.eventlets) == 0
}
