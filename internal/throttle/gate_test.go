package throttle

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateAdmitRelease(t *testing.T) {
	var g Gate

	assert.False(t, g.Busy())
	assert.True(t, g.Admit())
	assert.True(t, g.Busy())
	assert.False(t, g.Admit())
	assert.False(t, g.Admit())

	g.Release()
	assert.False(t, g.Busy())
	assert.True(t, g.Admit())

	admitted, dropped := g.Stats()
	assert.Equal(t, uint64(2), admitted)
	assert.Equal(t, uint64(2), dropped)
}

func TestGateReleaseOnOpenGatePanics(t *testing.T) {
	var g Gate
	assert.Panics(t, g.Release)
}

func TestGateConcurrentAdmit(t *testing.T) {
	const callers = 64

	for round := 0; round < 20; round++ {
		var g Gate
		var wins atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if g.Admit() {
					wins.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load(), "round %d", round)
		g.Release()
		assert.True(t, g.Admit(), "gate should reopen after release")
	}
}

func TestGateHandOffAcrossGoroutines(t *testing.T) {
	var g Gate
	const frames = 200

	var processed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < frames; i++ {
		if !g.Admit() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer g.Release()
			processed.Add(1)
		}()
		wg.Wait()
	}

	assert.Equal(t, int32(frames), processed.Load())
	assert.False(t, g.Busy())
}
