package nmx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticMicrocluster(t *testing.T) {
	m := NewMicrocluster(2, false)
	require.NoError(t, m.Insert(Eventlet{Strip: 1}))
	require.NoError(t, m.Insert(Eventlet{Strip: 2}))
	assert.ErrorIs(t, m.Insert(Eventlet{Strip: 3}), ErrCapacity)
	assert.ErrorIs(t, m.Set(2, Eventlet{}), ErrCapacity)
	assert.Equal(t, 2, m.Size())
	assert.Equal(t, 2, m.ReservedSize())
	assert.False(t, m.Dynamic())

	e, err := m.At(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), e.Strip)
	_, err = m.At(2)
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestDynamicMicrocluster(t *testing.T) {
	m := NewMicrocluster(2, true)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.Insert(Eventlet{Strip: uint16(i)}))
	}
	assert.Equal(t, 3, m.Size())
	assert.Equal(t, 4, m.ReservedSize())

	require.NoError(t, m.Set(10, Eventlet{Strip: 10}))
	assert.Equal(t, 11, m.Size())
	assert.Equal(t, 16, m.ReservedSize())
	assert.Equal(t, uint16(2), m.Eventlets()[2].Strip)

	m.Reset()
	assert.Zero(t, m.Size())
	assert.Equal(t, 16, m.ReservedSize())

	m.Reserve(8)
	assert.Equal(t, 16, m.ReservedSize())
}

func TestFixedPool(t *testing.T) {
	pool := NewMicroclusterPool(2, 4, false, false)
	first, err := pool.Requisition()
	require.NoError(t, err)
	second, err := pool.Requisition()
	require.NoError(t, err)
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)

	_, err = pool.Requisition()
	assert.ErrorIs(t, err, ErrPoolExhausted)

	m, err := pool.Get(first)
	require.NoError(t, err)
	require.NoError(t, m.Insert(Eventlet{ADC: 1}))

	require.NoError(t, pool.Release(first))
	assert.Equal(t, 1, pool.Free())
	_, err = pool.Get(first)
	assert.ErrorIs(t, err, ErrNotRequisitioned)

	again, err := pool.Requisition()
	require.NoError(t, err)
	assert.Equal(t, first, again)
	m, err = pool.Get(again)
	require.NoError(t, err)
	assert.Zero(t, m.Size())

	require.NoError(t, pool.Release(second))
	assert.ErrorIs(t, pool.Release(second), ErrNotRequisitioned)
	assert.ErrorIs(t, pool.Release(7), ErrNotRequisitioned)
}

func TestGrowablePool(t *testing.T) {
	pool := NewMicroclusterPool(1, 4, true, true)
	_, err := pool.Requisition()
	require.NoError(t, err)
	index, err := pool.Requisition()
	require.NoError(t, err)
	assert.Equal(t, 1, index)
	assert.Equal(t, 2, pool.Len())
	assert.Zero(t, pool.Free())

	m, err := pool.Get(index)
	require.NoError(t, err)
	assert.True(t, m.Dynamic())
}
