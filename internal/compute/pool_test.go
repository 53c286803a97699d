package compute_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/forest-guardian/flood-mapper/internal/compute"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunVisitsEveryIndex(t *testing.T) {
	pool := compute.NewPool(3)
	defer pool.Stop()

	seen := make([]int32, 50)
	err := pool.Run(len(seen), func(i int) error {
		atomic.AddInt32(&seen[i], 1)
		return nil
	})
	require.NoError(t, err)
	for i, n := range seen {
		assert.Equalf(t, int32(1), n, "index %d", i)
	}
}

func TestPool_RunReturnsError(t *testing.T) {
	pool := compute.NewPool(2)
	defer pool.Stop()

	boom := errors.New("boom")
	err := pool.Run(10, func(i int) error {
		if i == 7 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestPool_RunRecoversPanics(t *testing.T) {
	pool := compute.NewPool(1)
	defer pool.Stop()

	err := pool.Run(2, func(i int) error {
		if i == 1 {
			panic("index out of range")
		}
		return nil
	})
	assert.ErrorContains(t, err, "panicked")
}

func TestNewPool_ClampsSize(t *testing.T) {
	pool := compute.NewPool(0)
	defer pool.Stop()
	assert.Equal(t, 1, pool.Size())
}
