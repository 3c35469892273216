// Package supervisor implements the Pipeline Supervisor of spec.md §4.7:
// constructs the streaming graph, starts/stops components in order,
// guarantees every worker goroutine joins, handles restart, and exposes
// the recording toggle. State transitions follow spec.md §3's
// STOPPED -> RUNNING -> STOPPING -> STOPPED lifecycle exactly.
package supervisor

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/sickgreg/pixelpilot-go/internal/auconsumer"
	"github.com/sickgreg/pixelpilot-go/internal/bufpool"
	"github.com/sickgreg/pixelpilot-go/internal/busmonitor"
	"github.com/sickgreg/pixelpilot-go/internal/collab"
	"github.com/sickgreg/pixelpilot-go/internal/config"
	"github.com/sickgreg/pixelpilot-go/internal/errs"
	"github.com/sickgreg/pixelpilot-go/internal/ingress"
	"github.com/sickgreg/pixelpilot-go/internal/pipelinegst"
	"github.com/sickgreg/pixelpilot-go/internal/stats"
)

// State is the externally observable pipeline lifecycle fact of spec.md §3.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// DefaultStopWaitMs is the soft deadline of spec.md §5.
const DefaultStopWaitMs = 700

// DecoderFactory and RecorderFactory let the supervisor construct fresh
// collaborator instances on each start/enable-recording call without
// taking a compile-time dependency on one concrete implementation.
type DecoderFactory func() collab.Decoder
type RecorderFactory func(collab.RecordConfig) (collab.Recorder, error)
type ModesetFunc func() (collab.ModesetResult, error)

// Supervisor owns the full pipeline lifecycle.
type Supervisor struct {
	log      zerolog.Logger
	cfg      config.Config
	pool     *bufpool.Pool
	counters *stats.Counters

	newDecoder  DecoderFactory
	newRecorder RecorderFactory
	modeset     ModesetFunc

	mu    sync.Mutex
	state State

	graph    *pipelinegst.Graph
	ig       *ingress.Ingress
	consumer *auconsumer.Consumer
	monitor  *busmonitor.Monitor
	decoder  collab.Decoder

	recMu    sync.Mutex
	recorder collab.Recorder
}

// New constructs a Supervisor in the STOPPED state.
func New(log zerolog.Logger, cfg config.Config, newDecoder DecoderFactory, newRecorder RecorderFactory, modeset ModesetFunc) *Supervisor {
	s := &Supervisor{
		log:         log.With().Str("component", "supervisor").Logger(),
		cfg:         cfg,
		pool:        bufpool.New(bufpool.MinBuffers),
		counters:    &stats.Counters{},
		newDecoder:  newDecoder,
		newRecorder: newRecorder,
		modeset:     modeset,
		state:       StateStopped,
	}
	return s
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the drop/feed counters.
func (s *Supervisor) Stats() stats.Snapshot {
	return s.counters.Snapshot()
}

// Start constructs the graph and all workers, transitioning
// STOPPED -> RUNNING. Any failure unwinds whatever was already created and
// leaves the supervisor STOPPED, per spec.md §4.7 and §7.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return errs.Wrap(errs.KindGraphState, "pipeline_start called while not STOPPED (state=%s)", s.state)
	}
	s.mu.Unlock()

	graph, err := pipelinegst.Build(pipelinegst.Options{
		VideoPT:           s.cfg.VideoPT,
		AppsinkMaxBuffers: s.cfg.AppsinkMaxBuffers,
	}, s.pool)
	if err != nil {
		return err
	}

	ig := ingress.New(s.log, s.pool, graph.Source, s.counters, s.cfg.VideoPT)
	if err := ig.Start(s.cfg.UDPPort); err != nil {
		graph.Stop()
		return err
	}

	if err := graph.Play(); err != nil {
		ig.Stop()
		graph.Stop()
		return err
	}

	modesetResult, err := s.modeset()
	if err != nil {
		ig.Stop()
		graph.Stop()
		return errs.Wrap(errs.KindDisplay, "modeset: %w", err)
	}

	decoder := s.newDecoder()
	if err := decoder.Init(modesetResult); err != nil {
		ig.Stop()
		graph.Stop()
		return errs.Wrap(errs.KindDecoderInit, "decoder init: %w", err)
	}
	if err := decoder.Start(); err != nil {
		decoder.Deinit()
		ig.Stop()
		graph.Stop()
		return errs.Wrap(errs.KindDecoderStart, "decoder start: %w", err)
	}

	consumer := auconsumer.New(s.log, graph.AppSink, decoder, s, s.counters)
	consumer.Start()

	monitor := busmonitor.New(s.log, graph.Bus())
	monitor.Start()

	s.mu.Lock()
	s.graph = graph
	s.ig = ig
	s.decoder = decoder
	s.consumer = consumer
	s.monitor = monitor
	s.state = StateRunning
	s.mu.Unlock()

	s.log.Info().Int("udp_port", s.cfg.UDPPort).Int("vid_pt", s.cfg.VideoPT).Msg("pipeline started")
	return nil
}

// Stop tears the pipeline down per spec.md §4.7: mark STOPPING, EOS the
// graph, stop ingress, join the AU consumer, wait up to waitMs for the bus
// monitor, then release all owned resources and transition to STOPPED.
// No-op if already STOPPED.
func (s *Supervisor) Stop(waitMs int) {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	graph, ig, consumer, monitor, decoder := s.graph, s.ig, s.consumer, s.monitor, s.decoder
	s.mu.Unlock()

	if monitor != nil {
		monitor.RequestStop()
	}
	if graph != nil {
		graph.Source.EndStream()
		graph.Stop()
	}
	if ig != nil {
		ig.Stop()
	}
	if consumer != nil {
		consumer.Stop()
	}
	if monitor != nil {
		monitor.WaitExit(waitMs)
		monitor.Join()
	}

	if decoder != nil {
		decoder.SendEOS()
		decoder.Stop()
		decoder.Deinit()
	}

	s.recMu.Lock()
	if s.recorder != nil {
		s.recorder.Close()
		s.recorder = nil
	}
	s.recMu.Unlock()

	s.mu.Lock()
	s.graph = nil
	s.ig = nil
	s.consumer = nil
	s.monitor = nil
	s.decoder = nil
	s.state = StateStopped
	s.mu.Unlock()

	s.log.Info().Msg("pipeline stopped")
}

// Restart stops then starts the pipeline; recording, if it was enabled,
// is re-attached after the restart per spec.md §4.7.
func (s *Supervisor) Restart(waitMs int) error {
	s.recMu.Lock()
	var reattach *collab.RecordConfig
	if s.recorder != nil {
		stats := s.recorder.GetStats()
		reattach = &collab.RecordConfig{OutputPath: stats.OutputPath, Mode: s.cfg.RecordMode}
	}
	s.recMu.Unlock()

	s.Stop(waitMs)
	if err := s.Start(); err != nil {
		return err
	}
	if reattach != nil {
		return s.EnableRecording(*reattach)
	}
	return nil
}

// EnableRecording constructs a recorder and installs it if none exists.
// Enabling twice with no intervening disable is a no-op: the second
// writer is discarded without side effects, per spec.md §4.7 and §8.
func (s *Supervisor) EnableRecording(cfg collab.RecordConfig) error {
	if cfg.OutputPath == "" {
		return errs.Wrap(errs.KindConfig, "enable_recording requires a non-empty output path")
	}

	rec, err := s.newRecorder(cfg)
	if err != nil {
		return err
	}

	s.recMu.Lock()
	defer s.recMu.Unlock()
	if s.recorder != nil {
		rec.Close()
		return nil
	}
	s.recorder = rec
	return nil
}

// DisableRecording detaches and destroys the writer outside the lock, per
// spec.md §4.7: the writer is never destroyed concurrently with a sample
// delivery, but the lock itself is held only long enough to detach it.
func (s *Supervisor) DisableRecording() {
	s.recMu.Lock()
	rec := s.recorder
	s.recorder = nil
	s.recMu.Unlock()

	if rec != nil {
		rec.Close()
	}
}

// GetRecordingStats snapshots the writer's stats under the recorder lock.
func (s *Supervisor) GetRecordingStats() collab.RecordStats {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	if s.recorder == nil {
		return collab.RecordStats{}
	}
	return s.recorder.GetStats()
}

// WithRecorder implements auconsumer.RecorderHolder: the lock is held only
// for the duration of fn, matching spec.md §4.5's per-AU locking.
func (s *Supervisor) WithRecorder(fn func(rec collab.Recorder)) {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	fn(s.recorder)
}

// PollChild is the non-blocking bus-monitor check of spec.md §4.7: if the
// monitor has exited, join it, tear down, and transition to STOPPED.
// Returns (exited, encounteredError).
func (s *Supervisor) PollChild() (bool, bool) {
	s.mu.Lock()
	monitor := s.monitor
	state := s.state
	s.mu.Unlock()

	if monitor == nil || state != StateRunning {
		return false, false
	}
	if !monitor.Exited() {
		return false, false
	}

	encountered, _ := monitor.EncounteredError()
	s.Stop(DefaultStopWaitMs)
	return true, encountered
}
