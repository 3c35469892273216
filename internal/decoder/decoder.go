// Package decoder provides a software-fallback implementation of
// collab.Decoder so the ingest core can run and be tested without real
// hardware. It does not decode anything -- it only accounts for access
// units fed to it, standing in for the out-of-scope hardware decoder
// named in spec.md §1 and §6.
package decoder

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sickgreg/pixelpilot-go/internal/collab"
	"github.com/sickgreg/pixelpilot-go/internal/errs"
)

// DefaultMaxPacketSize is the fallback reported in spec.md §4.5 step 4
// when the decoder itself doesn't report a bound.
const DefaultMaxPacketSize = 1 << 20

// Software is a no-op decoder that counts fed access units. Feed never
// reports Busy; it always accepts (the point is to exercise the
// producer/consumer boundary, not to model real backpressure).
type Software struct {
	log zerolog.Logger

	running atomic.Bool
	fed     atomic.Int64
	eos     atomic.Bool
}

// New constructs a Software decoder.
func New(log zerolog.Logger) *Software {
	return &Software{log: log.With().Str("component", "decoder").Logger()}
}

func (s *Software) Init(modeset collab.ModesetResult) error {
	s.log.Debug().Int("width", modeset.Width).Int("height", modeset.Height).Msg("decoder init")
	return nil
}

func (s *Software) MaxPacketSize() int {
	return DefaultMaxPacketSize
}

func (s *Software) Start() error {
	if s.running.Load() {
		return errs.Wrap(errs.KindDecoderStart, "decoder already started")
	}
	s.running.Store(true)
	s.eos.Store(false)
	return nil
}

func (s *Software) Feed(au collab.AccessUnit) (collab.FeedResult, error) {
	if !s.running.Load() {
		return collab.FeedResult{}, errs.Wrap(errs.KindDecoderStart, "feed called while decoder not running")
	}
	s.fed.Add(1)
	return collab.FeedResult{OK: true}, nil
}

func (s *Software) SendEOS() {
	s.eos.Store(true)
}

func (s *Software) Stop() error {
	s.running.Store(false)
	return nil
}

func (s *Software) Deinit() error {
	return nil
}

// Running reports whether Start has been called without a matching Stop,
// used by the AU Consumer's loop condition in spec.md §4.5.
func (s *Software) Running() bool {
	return s.running.Load()
}

// FedCount returns the number of access units accepted so far.
func (s *Software) FedCount() int64 {
	return s.fed.Load()
}
