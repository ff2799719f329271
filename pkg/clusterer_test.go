package nmx

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClusterParams() ClusterParams {
	return ClusterParams{
		TimeSlack:            1,
		StripSlack:           2,
		CorrelationTimeSlack: 5,
		Weighted:             false,
		MaxTimebins:          3,
		MaxTimedif:           7,
		EmitIncomplete:       true,
	}
}

func insertAll(t *testing.T, c *Clusterer, eventlets ...Eventlet) {
	t.Helper()
	for _, e := range eventlets {
		require.NoError(t, c.Insert(e))
	}
}

func TestMacroClusterAdjacency(t *testing.T) {
	pool := NewMicroclusterPool(1, 4, true, false)
	slot, err := pool.Requisition()
	require.NoError(t, err)
	members, err := pool.Get(slot)
	require.NoError(t, err)

	cluster := newMacroCluster(1, 2, slot, members)
	assert.False(t, cluster.Belongs(Eventlet{Time: 0, Strip: 0}))

	require.NoError(t, cluster.Insert(Eventlet{Time: 10, Strip: 20, ADC: 1}))
	assert.True(t, cluster.Belongs(Eventlet{Time: 11, Strip: 22}))
	assert.True(t, cluster.Belongs(Eventlet{Time: 9, Strip: 18}))
	assert.False(t, cluster.TimeAdjacent(Eventlet{Time: 12, Strip: 20}))
	assert.False(t, cluster.StripAdjacent(Eventlet{Time: 10, Strip: 23}))
	assert.False(t, cluster.StripAdjacent(Eventlet{Time: 10, Strip: 17}))

	require.NoError(t, cluster.Insert(Eventlet{Time: 8, Strip: 25, Plane: 1, ADC: 1}))
	assert.Equal(t, uint64(8), cluster.TimeStart)
	assert.Equal(t, uint64(10), cluster.TimeEnd)
	assert.Equal(t, uint16(20), cluster.StripStart)
	assert.Equal(t, uint16(25), cluster.StripEnd)
	assert.Equal(t, uint8(3), cluster.Planes)
	assert.Equal(t, 2, cluster.Len())
}

func TestClustererMergesBridgedClusters(t *testing.T) {
	pool := NewMicroclusterPool(4, 4, true, false)
	c := NewClusterer(testClusterParams(), pool)

	insertAll(t, c,
		Eventlet{Time: 0, Strip: 10, ADC: 5},
		Eventlet{Time: 0, Strip: 14, ADC: 5},
	)
	assert.Equal(t, 2, c.OpenClusters())

	insertAll(t, c, Eventlet{Time: 0, Strip: 12, ADC: 5})
	assert.Equal(t, 1, c.OpenClusters())
	assert.Equal(t, 1, c.Stats().Merges)
	assert.Equal(t, 3, pool.Free())

	require.NoError(t, c.Dump())
	events := c.PopEvents()
	require.Len(t, events, 1)
	assert.Len(t, events[0].X.Eventlets, 3)
	assert.True(t, events[0].Y.Empty())
	assert.False(t, events[0].Good())
	assert.Equal(t, 1, c.Stats().Incomplete)
	assert.Equal(t, 4, pool.Free())
}

func TestClustererRejectsOutOfOrder(t *testing.T) {
	c := NewClusterer(testClusterParams(), NewMicroclusterPool(4, 4, true, false))
	insertAll(t, c, Eventlet{Time: 5, Strip: 1, ADC: 1})

	err := c.Insert(Eventlet{Time: 4, Strip: 1, ADC: 1})
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.Equal(t, 1, c.Stats().Inserted)

	err = c.Insert(Eventlet{Time: 6, Plane: 2, ADC: 1})
	assert.ErrorIs(t, err, ErrInvalidPlane)
}

func TestClustererIgnoresZeroAmplitude(t *testing.T) {
	c := NewClusterer(testClusterParams(), NewMicroclusterPool(4, 4, true, false))
	insertAll(t, c, Eventlet{Time: 5, Strip: 1})
	assert.Equal(t, 1, c.Stats().Ignored)
	assert.Zero(t, c.OpenClusters())
}

func TestClustererCorrelatesPlanes(t *testing.T) {
	pool := NewMicroclusterPool(8, 4, true, false)
	c := NewClusterer(testClusterParams(), pool)

	insertAll(t, c,
		Eventlet{Time: 10, Plane: 0, Strip: 5, ADC: 10},
		Eventlet{Time: 10, Plane: 1, Strip: 30, ADC: 10},
		Eventlet{Time: 11, Plane: 0, Strip: 6, ADC: 10},
		Eventlet{Time: 11, Plane: 1, Strip: 31, ADC: 10},
	)
	assert.False(t, c.EventsReady())

	insertAll(t, c, Eventlet{Time: 30, Plane: 0, Strip: 100, ADC: 10})
	require.True(t, c.EventsReady())
	events := c.PopEvents()
	require.Len(t, events, 1)
	event := events[0]
	assert.True(t, event.Good())
	assert.Equal(t, 4, event.Eventlets())
	assert.Equal(t, uint64(10), event.TimeStart())
	assert.Equal(t, 6.0, event.X.Center)
	assert.Equal(t, 31.0, event.Y.Center)
	assert.False(t, c.EventsReady())

	require.NoError(t, c.Dump())
	events = c.PopEvents()
	require.Len(t, events, 1)
	assert.Equal(t, 100.0, events[0].X.Center)
	assert.Equal(t, -1.0, events[0].Y.Center)

	stats := c.Stats()
	assert.Equal(t, 3, stats.Clusters)
	assert.Equal(t, 2, stats.Events)
	assert.Equal(t, 1, stats.Incomplete)
	assert.Equal(t, 8, pool.Free())
}

func TestClustererWaitsForOpenPartner(t *testing.T) {
	c := NewClusterer(testClusterParams(), NewMicroclusterPool(8, 4, true, false))

	insertAll(t, c,
		Eventlet{Time: 10, Plane: 0, Strip: 5, ADC: 10},
		// keeps a plane 1 cluster open near the end of the plane 0 cluster
		Eventlet{Time: 14, Plane: 1, Strip: 40, ADC: 10},
		Eventlet{Time: 15, Plane: 1, Strip: 40, ADC: 10},
		Eventlet{Time: 16, Plane: 1, Strip: 40, ADC: 10},
	)
	assert.False(t, c.EventsReady())

	insertAll(t, c, Eventlet{Time: 40, Plane: 0, Strip: 5, ADC: 10})
	events := c.PopEvents()
	require.Len(t, events, 1)
	assert.True(t, events[0].Good())
	assert.Len(t, events[0].Y.Eventlets, 3)
}

func TestClustererPicksLargestOverlap(t *testing.T) {
	c := NewClusterer(testClusterParams(), NewMicroclusterPool(8, 4, true, false))

	insertAll(t, c,
		Eventlet{Time: 10, Plane: 0, Strip: 5, ADC: 10},
		Eventlet{Time: 10, Plane: 1, Strip: 50, ADC: 10},
		Eventlet{Time: 11, Plane: 0, Strip: 5, ADC: 10},
		Eventlet{Time: 12, Plane: 0, Strip: 5, ADC: 10},
		Eventlet{Time: 12, Plane: 1, Strip: 10, ADC: 10},
		Eventlet{Time: 13, Plane: 1, Strip: 10, ADC: 10},
		Eventlet{Time: 14, Plane: 1, Strip: 10, ADC: 10},
	)
	require.NoError(t, c.Dump())
	events := c.PopEvents()
	require.Len(t, events, 2)
	// plane 0 [10, 12] overlaps [10, 10] by 0 and [12, 14] by 0, ties go to
	// the earlier start
	assert.True(t, events[0].Good())
	assert.Equal(t, 50.0, events[0].Y.Center)
	assert.True(t, events[1].X.Empty())
}

func TestClustererDropsIncomplete(t *testing.T) {
	params := testClusterParams()
	params.EmitIncomplete = false
	c := NewClusterer(params, NewMicroclusterPool(4, 4, true, false))

	insertAll(t, c,
		Eventlet{Time: 1, Plane: 1, Strip: 3, ADC: 1},
		Eventlet{Time: 2, Plane: 1, Strip: 4, ADC: 1},
	)
	require.NoError(t, c.Dump())
	assert.False(t, c.EventsReady())
	assert.Equal(t, 1, c.Stats().Dropped)
	assert.Equal(t, 2, c.Stats().DroppedEventlets)
}

func TestClustererDumpKeepsEveryEventlet(t *testing.T) {
	pool := NewMicroclusterPool(2, 2, true, true)
	c := NewClusterer(testClusterParams(), pool)

	total := 0
	for i := 0; i < 50; i++ {
		e := Eventlet{
			Time:  uint64(i / 3 * 4),
			Plane: uint8(i % 2),
			Strip: uint16((i * 37) % 200),
			ADC:   uint16(1 + i%7),
		}
		insertAll(t, c, e)
		total++
	}
	require.NoError(t, c.Dump())
	require.NoError(t, c.Dump())

	emitted := 0
	for _, event := range c.PopEvents() {
		emitted += event.Eventlets()
	}
	assert.Equal(t, total, emitted)
	assert.Zero(t, c.OpenClusters())
	assert.Equal(t, pool.Len(), pool.Free())
}

func TestClustererFixedPoolExhausted(t *testing.T) {
	c := NewClusterer(testClusterParams(), NewMicroclusterPool(1, 4, true, false))
	insertAll(t, c, Eventlet{Time: 1, Strip: 1, ADC: 1})
	err := c.Insert(Eventlet{Time: 1, Strip: 100, ADC: 1})
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestClustererStaticClusterFull(t *testing.T) {
	pool := NewMicroclusterPool(4, 4, false, false)
	c := NewClusterer(testClusterParams(), pool)
	insertAll(t, c,
		Eventlet{Time: 0, Strip: 10, ADC: 1},
		Eventlet{Time: 0, Strip: 11, ADC: 1},
		Eventlet{Time: 0, Strip: 9, ADC: 1},
		Eventlet{Time: 0, Strip: 15, ADC: 1},
		Eventlet{Time: 0, Strip: 16, ADC: 1},
	)
	require.Equal(t, 2, c.OpenClusters())

	// strip 13 bridges both clusters, 3+2+1 eventlets do not fit in 4
	err := c.Insert(Eventlet{Time: 0, Strip: 13, ADC: 1})
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, 2, c.OpenClusters())
	assert.Equal(t, 5, c.Stats().Inserted)
	assert.Zero(t, c.Stats().Merges)
	assert.Equal(t, 2, pool.Free())

	// the clusterer keeps working after the refusal
	insertAll(t, c, Eventlet{Time: 1, Strip: 16, ADC: 1})
	require.NoError(t, c.Dump())
	emitted := 0
	for _, event := range c.PopEvents() {
		emitted += event.Eventlets()
	}
	assert.Equal(t, 6, emitted)
	assert.Equal(t, 4, pool.Free())
}

func TestClustererStaticMerge(t *testing.T) {
	pool := NewMicroclusterPool(4, 8, false, false)
	c := NewClusterer(testClusterParams(), pool)
	insertAll(t, c,
		Eventlet{Time: 0, Strip: 10, ADC: 1},
		Eventlet{Time: 0, Strip: 11, ADC: 1},
		Eventlet{Time: 0, Strip: 15, ADC: 1},
		Eventlet{Time: 0, Strip: 13, ADC: 1},
	)
	assert.Equal(t, 1, c.OpenClusters())
	assert.Equal(t, 1, c.Stats().Merges)
	assert.Equal(t, 3, pool.Free())
}

func TestMacroClusterMergeFull(t *testing.T) {
	pool := NewMicroclusterPool(2, 2, false, false)
	clusters := make([]*MacroCluster, 2)
	for i := range clusters {
		slot, err := pool.Requisition()
		require.NoError(t, err)
		members, err := pool.Get(slot)
		require.NoError(t, err)
		clusters[i] = newMacroCluster(1, 2, slot, members)
	}
	require.NoError(t, clusters[0].Insert(Eventlet{Time: 1, Strip: 1, ADC: 1}))
	require.NoError(t, clusters[1].Insert(Eventlet{Time: 1, Strip: 3, ADC: 1}))
	require.NoError(t, clusters[1].Insert(Eventlet{Time: 2, Strip: 4, ADC: 1, Plane: 1}))

	err := clusters[0].Merge(clusters[1])
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, 1, clusters[0].Len())
	assert.Equal(t, uint16(1), clusters[0].StripEnd)
	assert.Equal(t, uint8(1), clusters[0].Planes)
}

func TestClustererClear(t *testing.T) {
	pool := NewMicroclusterPool(4, 4, true, false)
	c := NewClusterer(testClusterParams(), pool)
	insertAll(t, c,
		Eventlet{Time: 1, Strip: 1, ADC: 1},
		Eventlet{Time: 9, Strip: 1, ADC: 1},
	)
	require.NoError(t, c.Clear())
	assert.Equal(t, 4, pool.Free())
	assert.Zero(t, c.OpenClusters())

	// earlier times are accepted again after a clear
	assert.NoError(t, c.Insert(Eventlet{Time: 0, Strip: 1, ADC: 1}))
}

func randomEventlets(r *rand.Rand, n int) []Eventlet {
	type key struct {
		time  uint64
		plane uint8
		strip uint16
	}
	seen := make(map[key]bool)
	eventlets := make([]Eventlet, 0, n)
	var now uint64
	for len(eventlets) < n {
		now += uint64(r.Intn(3))
		e := Eventlet{
			Time:  now,
			Plane: uint8(r.Intn(2)),
			Strip: uint16(r.Intn(48)),
			ADC:   uint16(1 + r.Intn(100)),
		}
		k := key{e.Time, e.Plane, e.Strip}
		if seen[k] {
			continue
		}
		seen[k] = true
		eventlets = append(eventlets, e)
	}
	return eventlets
}

func TestClustererKeepsAdjacentEventletsTogether(t *testing.T) {
	params := testClusterParams()
	for _, seed := range []int64{3, 11, 2024} {
		t.Run(fmt.Sprint(seed), func(t *testing.T) {
			eventlets := randomEventlets(rand.New(rand.NewSource(seed)), 400)
			pool := NewMicroclusterPool(8, 4, true, true)
			c := NewClusterer(params, pool)
			insertAll(t, c, eventlets...)
			require.NoError(t, c.Dump())

			// cluster identifies the event and plane every eventlet ended in
			cluster := make(map[Eventlet]int)
			emitted := 0
			for i, event := range c.PopEvents() {
				emitted += event.Eventlets()
				for _, e := range event.X.Eventlets {
					cluster[e] = 2 * i
				}
				for _, e := range event.Y.Eventlets {
					cluster[e] = 2*i + 1
				}
			}
			require.Equal(t, len(eventlets), emitted)
			require.Len(t, cluster, len(eventlets))

			for i, a := range eventlets {
				for _, b := range eventlets[i+1:] {
					if b.Time > a.Time+params.TimeSlack {
						break
					}
					strips := int(a.Strip) - int(b.Strip)
					if a.Plane != b.Plane || strips > int(params.StripSlack) || -strips > int(params.StripSlack) {
						continue
					}
					assert.Equal(t, cluster[a], cluster[b], "%v and %v", a, b)
				}
			}
			assert.Equal(t, pool.Len(), pool.Free())
		})
	}
}
