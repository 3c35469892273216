// Package stats holds the atomic counters exposed by the pipeline so tests
// and operators can observe drop behaviour without tapping the data path.
package stats

import "sync/atomic"

// Counters is the live, concurrently-updated counter set. Every field is
// an atomic int64 so producers on different goroutines never need a lock
// to bump a counter.
type Counters struct {
	DatagramsReceived           atomic.Int64
	DatagramsDroppedShort       atomic.Int64
	DatagramsFilteredPT         atomic.Int64
	DatagramsDroppedBackpressure atomic.Int64
	PoolFallbackAllocs          atomic.Int64
	AUSkippedOversized          atomic.Int64
	DecoderFeeds                atomic.Int64
	DecoderBusy                 atomic.Int64
}

// Snapshot is a point-in-time copy of Counters, safe to pass by value.
type Snapshot struct {
	DatagramsReceived            int64
	DatagramsDroppedShort        int64
	DatagramsFilteredPT          int64
	DatagramsDroppedBackpressure int64
	PoolFallbackAllocs           int64
	AUSkippedOversized           int64
	DecoderFeeds                 int64
	DecoderBusy                  int64
}

// Snapshot copies the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		DatagramsReceived:            c.DatagramsReceived.Load(),
		DatagramsDroppedShort:        c.DatagramsDroppedShort.Load(),
		DatagramsFilteredPT:          c.DatagramsFilteredPT.Load(),
		DatagramsDroppedBackpressure: c.DatagramsDroppedBackpressure.Load(),
		PoolFallbackAllocs:           c.PoolFallbackAllocs.Load(),
		AUSkippedOversized:           c.AUSkippedOversized.Load(),
		DecoderFeeds:                 c.DecoderFeeds.Load(),
		DecoderBusy:                  c.DecoderBusy.Load(),
	}
}
