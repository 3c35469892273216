package supervisor

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sickgreg/pixelpilot-go/internal/collab"
	"github.com/sickgreg/pixelpilot-go/internal/config"
)

type fakeRecorder struct {
	closed bool
	path   string
}

func (f *fakeRecorder) HandleSample(collab.AccessUnit) error { return nil }
func (f *fakeRecorder) GetStats() collab.RecordStats {
	return collab.RecordStats{Active: !f.closed, OutputPath: f.path}
}
func (f *fakeRecorder) Close() error {
	f.closed = true
	return nil
}

func newTestSupervisor(t *testing.T) (*Supervisor, *int) {
	calls := 0
	newRecorder := func(rc collab.RecordConfig) (collab.Recorder, error) {
		calls++
		return &fakeRecorder{path: rc.OutputPath}, nil
	}
	s := New(zerolog.Nop(), config.Defaults(), nil, newRecorder, nil)
	return s, &calls
}

func TestInitialStateIsStopped(t *testing.T) {
	s, _ := newTestSupervisor(t)
	assert.Equal(t, StateStopped, s.State())
}

func TestEnableRecordingTwiceIsIdempotent(t *testing.T) {
	s, calls := newTestSupervisor(t)

	require.NoError(t, s.EnableRecording(collab.RecordConfig{OutputPath: "/tmp/a.mp4"}))
	require.NoError(t, s.EnableRecording(collab.RecordConfig{OutputPath: "/tmp/b.mp4"}))

	// Both factory calls happen (constructing the second writer is part of
	// spec.md's "discarded without side effects", not "never constructed"),
	// but only one writer remains installed.
	assert.Equal(t, 2, *calls)
	stats := s.GetRecordingStats()
	assert.Equal(t, "/tmp/a.mp4", stats.OutputPath, "first writer must remain installed")
}

func TestDisableRecordingTwiceIsNoop(t *testing.T) {
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.EnableRecording(collab.RecordConfig{OutputPath: "/tmp/a.mp4"}))

	s.DisableRecording()
	assert.NotPanics(t, func() { s.DisableRecording() })

	stats := s.GetRecordingStats()
	assert.False(t, stats.Active)
}

func TestEnableRecordingRejectsEmptyPath(t *testing.T) {
	s, _ := newTestSupervisor(t)
	err := s.EnableRecording(collab.RecordConfig{OutputPath: ""})
	assert.Error(t, err)
}

func TestWithRecorderLocksForDurationOfCallback(t *testing.T) {
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.EnableRecording(collab.RecordConfig{OutputPath: "/tmp/a.mp4"}))

	called := false
	s.WithRecorder(func(rec collab.Recorder) {
		called = true
		require.NotNil(t, rec)
		assert.False(t, s.recMu.TryLock(), "recorder lock must be held during the callback")
	})
	assert.True(t, called)
	require.True(t, s.recMu.TryLock(), "recorder lock must be released after the callback")
	s.recMu.Unlock()
}

func TestStartFailsWhenNotStopped(t *testing.T) {
	s, _ := newTestSupervisor(t)
	s.state = StateRunning
	err := s.Start()
	assert.Error(t, err)
}
