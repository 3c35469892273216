// Package busmonitor implements the Bus Monitor of spec.md §4.6: a
// background goroutine that polls the streaming graph's message bus for
// error/EOS events and flags the supervisor, following the teacher's
// watchBus pattern in api/pkg/desktop/gst_pipeline.go almost verbatim
// (TimedPop with a 100ms granularity, switch on message type).
package busmonitor

import (
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/rs/zerolog"
)

const pollInterval = 100 * time.Millisecond

// Monitor watches a pipeline's bus and reports error/EOS exits.
type Monitor struct {
	log zerolog.Logger
	bus *gst.Bus

	mu              sync.Mutex
	cond            *sync.Cond
	stopRequested   bool
	encounteredErr  bool
	lastErr         error
	exited          bool

	wg sync.WaitGroup
}

// New creates a Monitor for the given bus.
func New(log zerolog.Logger, bus *gst.Bus) *Monitor {
	m := &Monitor{log: log.With().Str("component", "bus-monitor").Logger(), bus: bus}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Start spawns the polling goroutine.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

func (m *Monitor) run() {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		stop := m.stopRequested
		m.mu.Unlock()
		if stop {
			m.finish()
			return
		}

		msg := m.bus.TimedPop(gst.ClockTime(pollInterval))
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			m.mu.Lock()
			if gerr != nil {
				m.lastErr = gerr
			}
			m.encounteredErr = true
			m.stopRequested = true
			m.mu.Unlock()
			m.finish()
			return
		case gst.MessageEOS:
			m.mu.Lock()
			m.stopRequested = true
			m.mu.Unlock()
			m.finish()
			return
		default:
			// ignored
		}
	}
}

func (m *Monitor) finish() {
	m.mu.Lock()
	m.exited = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

// RequestStop asks the monitor to exit at its next poll boundary.
func (m *Monitor) RequestStop() {
	m.mu.Lock()
	m.stopRequested = true
	m.mu.Unlock()
}

// WaitExit blocks until the monitor has exited or waitMs elapses, whatever
// comes first, matching the supervisor's condition-variable wait in
// spec.md §4.7.
func (m *Monitor) WaitExit(waitMs int) {
	done := make(chan struct{})
	go func() {
		m.mu.Lock()
		for !m.exited {
			m.cond.Wait()
		}
		m.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Duration(waitMs) * time.Millisecond):
	}
}

// Join blocks until the monitor goroutine has actually returned.
func (m *Monitor) Join() {
	m.wg.Wait()
}

// EncounteredError reports whether the bus surfaced an error message.
func (m *Monitor) EncounteredError() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.encounteredErr, m.lastErr
}

// Exited reports whether the monitor goroutine has returned.
func (m *Monitor) Exited() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exited
}
