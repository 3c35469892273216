// Package auconsumer implements the AU Consumer of spec.md §4.5: a
// dedicated worker that try-pulls samples from the AU Sink, demultiplexes
// each access unit to the decoder and (if recording is active) to the
// recorder under the recorder lock, and sends EOS downstream on exit.
package auconsumer

import (
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/rs/zerolog"

	"github.com/sickgreg/pixelpilot-go/internal/collab"
	"github.com/sickgreg/pixelpilot-go/internal/stats"
)

const pullTimeout = 100 * time.Millisecond

// RecorderHolder exposes the recorder lock/slot the consumer must respect:
// the lock is held only for the duration of a single sample delivery, per
// spec.md §4.5 and §5 (recorder delivery happens-before decoder delivery).
type RecorderHolder interface {
	WithRecorder(fn func(rec collab.Recorder))
}

// Consumer runs the AU demultiplex loop on its own goroutine.
type Consumer struct {
	log      zerolog.Logger
	appsink  *app.Sink
	decoder  collab.Decoder
	recorder RecorderHolder
	counters *stats.Counters

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Consumer. decoder.Running() is polled each iteration so
// the loop exits as soon as the decoder stops, per spec.md §4.5's loop
// condition "not (stop requested OR decoder not running)".
func New(log zerolog.Logger, appsink *app.Sink, decoder collab.Decoder, recorder RecorderHolder, counters *stats.Counters) *Consumer {
	return &Consumer{
		log:      log.With().Str("component", "au-consumer").Logger(),
		appsink:  appsink,
		decoder:  decoder,
		recorder: recorder,
		counters: counters,
		stopCh:   make(chan struct{}),
	}
}

// Start spawns the consumer goroutine.
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop signals the loop to exit and waits for it to join.
func (c *Consumer) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	c.wg.Wait()
}

func (c *Consumer) run() {
	defer c.wg.Done()
	maxPacket := c.decoder.MaxPacketSize()
	if maxPacket <= 0 {
		maxPacket = 1 << 20 // 1 MiB fallback, per spec.md §4.5 step 4
	}

	for {
		select {
		case <-c.stopCh:
			c.decoder.SendEOS()
			return
		default:
		}
		if !c.decoder.Running() {
			c.decoder.SendEOS()
			return
		}

		sample := c.tryPullSample()
		if sample == nil {
			continue
		}

		au, ok := c.extractAU(sample, maxPacket)
		if !ok {
			continue
		}

		c.recorder.WithRecorder(func(rec collab.Recorder) {
			if rec == nil {
				return
			}
			if err := rec.HandleSample(au); err != nil {
				c.log.Debug().Err(err).Msg("recorder delivery failed")
			}
		})

		result, err := c.decoder.Feed(au)
		if err != nil {
			c.log.Debug().Err(err).Msg("decoder feed error")
			continue
		}
		c.counters.DecoderFeeds.Add(1)
		if result.Busy {
			c.counters.DecoderBusy.Add(1)
			c.log.Debug().Msg("decoder busy, dropping this AU (drop-newest at decoder boundary)")
		}
	}
}

// tryPullSample pulls one sample with a bounded wait, using the same
// TimedPop(ClockTime)-style bounded primitive busmonitor uses on the bus:
// gst_app_sink_try_pull_sample returns nil on timeout without leaving
// anything pending, so there is exactly one call per iteration and nothing
// to leak or drop across idle gaps.
func (c *Consumer) tryPullSample() *gst.Sample {
	return c.appsink.TryPullSample(gst.ClockTime(pullTimeout))
}

// extractAU implements spec.md §4.5 steps 2-4: compute PTS, map the
// buffer read-only, and skip AUs of size 0 or larger than maxPacket.
func (c *Consumer) extractAU(sample *gst.Sample, maxPacket int) (collab.AccessUnit, bool) {
	buffer := sample.GetBuffer()
	if buffer == nil {
		return collab.AccessUnit{}, false
	}

	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return collab.AccessUnit{}, false
	}
	defer buffer.Unmap()

	size := len(mapInfo.Bytes())
	if size == 0 || size > maxPacket {
		c.counters.AUSkippedOversized.Add(1)
		return collab.AccessUnit{}, false
	}

	data := make([]byte, size)
	copy(data, mapInfo.Bytes())

	pts, valid := ptsOrDTS(buffer)

	return collab.AccessUnit{Data: data, PTS: pts, PTSValid: valid}, true
}

// ptsOrDTS computes PTS = buffer.PTS if valid, else buffer.DTS, else
// invalid, per spec.md §3.
func ptsOrDTS(buffer *gst.Buffer) (time.Duration, bool) {
	if d := buffer.PresentationTimestamp().AsDuration(); d != nil {
		return *d, true
	}
	if d := buffer.DecodingTimestamp().AsDuration(); d != nil {
		return *d, true
	}
	return 0, false
}
