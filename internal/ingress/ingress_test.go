package ingress

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestIngress(expectedPT int) *Ingress {
	return New(zerolog.Nop(), nil, nil, nil, expectedPT)
}

func TestPassesFilterAcceptsMatchingPT(t *testing.T) {
	ig := newTestIngress(97)
	datagram := []byte{0x80, 0x61, 0x00, 0x00} // byte[1] low 7 bits = 0x61 = 97
	assert.True(t, ig.passesFilter(datagram))
}

func TestPassesFilterRejectsMismatchedPT(t *testing.T) {
	ig := newTestIngress(97)
	datagram := []byte{0x80, 0x60, 0x00, 0x00} // PT = 96
	assert.False(t, ig.passesFilter(datagram))
}

func TestPassesFilterRejectsTooShort(t *testing.T) {
	ig := newTestIngress(97)
	assert.False(t, ig.passesFilter([]byte{0x80}))
	assert.False(t, ig.passesFilter(nil))
}

func TestPassesFilterAcceptsAllWhenDisabled(t *testing.T) {
	ig := newTestIngress(-1)
	assert.True(t, ig.passesFilter([]byte{0x80, 0x60}))
	assert.True(t, ig.passesFilter(nil))
}

func TestPassesFilterIgnoresMarkerBit(t *testing.T) {
	ig := newTestIngress(97)
	// marker bit set (top bit of byte[1]) but PT still matches
	datagram := []byte{0x80, 0x80 | 0x61, 0x00, 0x00}
	assert.True(t, ig.passesFilter(datagram))
}
