// Package recorder provides a software-fallback implementation of
// collab.Recorder, standing in for the out-of-scope MP4 writer named in
// spec.md §1 and §6. It writes raw Annex-B access units to the configured
// output path and tracks rolling byte/time statistics, without any real
// MP4 muxing.
package recorder

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sickgreg/pixelpilot-go/internal/collab"
	"github.com/sickgreg/pixelpilot-go/internal/errs"
)

// File is a minimal recorder that appends access-unit bytes to a file and
// tracks RecordStats.
type File struct {
	log zerolog.Logger
	cfg collab.RecordConfig
	f   *os.File

	startedAt time.Time
	bytes     atomic.Int64
	lastPTS   atomic.Int64
	havePTS   atomic.Bool
	firstPTS  atomic.Int64
}

// New opens the output file for the given config.
func New(log zerolog.Logger, cfg collab.RecordConfig) (*File, error) {
	if cfg.OutputPath == "" {
		return nil, errs.Wrap(errs.KindConfig, "recorder requires a non-empty output path")
	}
	f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "open recording output %s: %w", cfg.OutputPath, err)
	}
	return &File{
		log:       log.With().Str("component", "recorder").Str("mode", cfg.Mode.String()).Logger(),
		cfg:       cfg,
		f:         f,
		startedAt: time.Now(),
	}, nil
}

// HandleSample writes one access unit's bytes and updates statistics.
func (r *File) HandleSample(au collab.AccessUnit) error {
	n, err := r.f.Write(au.Data)
	if err != nil {
		return err
	}
	r.bytes.Add(int64(n))

	if au.PTSValid {
		if !r.havePTS.Swap(true) {
			r.firstPTS.Store(int64(au.PTS))
		}
		r.lastPTS.Store(int64(au.PTS))
	}
	return nil
}

// GetStats snapshots the recorder's rolling statistics per spec.md §4.7's
// "get recording stats".
func (r *File) GetStats() collab.RecordStats {
	var mediaDur int64
	if r.havePTS.Load() {
		mediaDur = r.lastPTS.Load() - r.firstPTS.Load()
	}
	return collab.RecordStats{
		Active:          true,
		Bytes:           r.bytes.Load(),
		ElapsedNs:       int64(time.Since(r.startedAt)),
		MediaDurationNs: mediaDur,
		OutputPath:      r.cfg.OutputPath,
	}
}

// Close closes the output file. The Pipeline Supervisor closes the writer
// synchronously: DisableRecording does so after detaching it, outside the
// recorder lock; Stop and a redundant EnableRecording do so while holding
// the lock.
func (r *File) Close() error {
	return r.f.Close()
}
