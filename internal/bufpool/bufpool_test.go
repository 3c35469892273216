package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClampsToMinMax(t *testing.T) {
	p := New(0)
	assert.Len(t, p.free, MinBuffers)

	p2 := New(1000)
	assert.Len(t, p2.free, MaxBuffers)
}

func TestAcquireReusesFreeBuffers(t *testing.T) {
	p := New(MinBuffers)
	b, fellBack := p.Acquire()
	require.NotNil(t, b)
	assert.False(t, fellBack)
	assert.Len(t, b.Data, Capacity)
}

func TestAcquireFallsBackOnExhaustion(t *testing.T) {
	p := New(MinBuffers)
	acquired := make([]*Buffer, 0, MinBuffers)
	for i := 0; i < MinBuffers; i++ {
		b, fellBack := p.Acquire()
		assert.False(t, fellBack)
		acquired = append(acquired, b)
	}

	_, fellBack := p.Acquire()
	assert.True(t, fellBack)
	assert.Equal(t, int64(1), p.Fallbacks())

	for _, b := range acquired {
		p.Release(b)
	}
}

func TestReleaseReturnsBufferForReuse(t *testing.T) {
	p := New(MinBuffers)
	b, _ := p.Acquire()
	b.Size = 42
	p.Release(b)
	assert.Equal(t, 0, b.Size)

	b2, fellBack := p.Acquire()
	assert.False(t, fellBack)
	assert.Same(t, b, b2, "the released buffer is handed out again")
}
