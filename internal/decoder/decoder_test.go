package decoder

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sickgreg/pixelpilot-go/internal/collab"
)

func TestFeedRequiresStart(t *testing.T) {
	d := New(zerolog.Nop())
	_, err := d.Feed(collab.AccessUnit{Data: []byte{1}})
	assert.Error(t, err)
}

func TestFeedCountsAcceptedUnits(t *testing.T) {
	d := New(zerolog.Nop())
	require.NoError(t, d.Start())

	res, err := d.Feed(collab.AccessUnit{Data: []byte{1, 2, 3}})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, res.Busy)
	assert.EqualValues(t, 1, d.FedCount())

	require.NoError(t, d.Stop())
	assert.False(t, d.Running())
}

func TestMaxPacketSizeFallback(t *testing.T) {
	d := New(zerolog.Nop())
	assert.Equal(t, DefaultMaxPacketSize, d.MaxPacketSize())
}
