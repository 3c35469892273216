// Command pixelpilot ingests an RTP/H.265 stream over UDP and feeds it to
// a hardware decoder rendering on a DRM/KMS overlay plane, with optional
// concurrent MP4 recording. See spec.md and SPEC_FULL.md for the full
// design; this file wires the components together and drives the
// top-level supervisor loop described in spec.md §4.8 and §5.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/sickgreg/pixelpilot-go/internal/collab"
	"github.com/sickgreg/pixelpilot-go/internal/config"
	"github.com/sickgreg/pixelpilot-go/internal/decoder"
	"github.com/sickgreg/pixelpilot-go/internal/drmkms"
	"github.com/sickgreg/pixelpilot-go/internal/errs"
	"github.com/sickgreg/pixelpilot-go/internal/lock"
	"github.com/sickgreg/pixelpilot-go/internal/recorder"
	"github.com/sickgreg/pixelpilot-go/internal/signals"
	"github.com/sickgreg/pixelpilot-go/internal/supervisor"
)

// hardShutdownDeadline is the process-level backstop of spec.md §5: if a
// graceful stop does not complete in time, the process exits immediately
// with status 128.
const hardShutdownDeadline = 5 * time.Second

// pollCadence is the ≤200ms cadence spec.md §4.8 requires for polling
// signal intents in the main loop.
const pollCadence = 150 * time.Millisecond

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cli, err := config.ParseCLI(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if cli.Help {
		cli.FlagSet.PrintDefaults()
		return 0
	}

	cfg, err := config.Resolve(cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	log := newLogger(cfg.Verbose)

	if cfg.GstLog {
		if _, set := os.LookupEnv("GST_DEBUG"); !set {
			os.Setenv("GST_DEBUG", "3")
		}
	}

	guard, err := lock.Acquire(lock.DefaultPath)
	if err != nil {
		log.Error().Err(err).Msg("single-instance guard failed")
		return 1
	}
	defer guard.Release()

	if err := signals.BlockAll(); err != nil {
		log.Warn().Err(err).Msg("failed to block signals on main thread")
	}
	sigSup := signals.New(log)
	sigSup.Start()
	defer sigSup.Stop()

	newDecoder := func() collab.Decoder { return decoder.New(log) }
	newRecorder := func(rc collab.RecordConfig) (collab.Recorder, error) { return recorder.New(log, rc) }
	modeset := func() (collab.ModesetResult, error) {
		return doModeset(log, cfg)
	}

	sup := supervisor.New(log, cfg, newDecoder, newRecorder, modeset)

	if err := sup.Start(); err != nil {
		log.Error().Err(err).Msg("pipeline start failed")
		return exitCodeFor(err)
	}

	if cfg.RecordEnable {
		if err := sup.EnableRecording(collab.RecordConfig{OutputPath: cfg.RecordPath, Mode: cfg.RecordMode}); err != nil {
			log.Error().Err(err).Msg("initial recording enable failed")
		}
	}

	exitCode := mainLoop(log, sup, &sigSup.Intents, cfg)

	stopDone := make(chan struct{})
	go func() {
		sup.Stop(supervisor.DefaultStopWaitMs)
		close(stopDone)
	}()
	select {
	case <-stopDone:
	case <-time.After(hardShutdownDeadline):
		log.Error().Msg("hard shutdown deadline exceeded, forcing exit")
		os.Exit(128)
	}

	return exitCode
}

// mainLoop polls signal intents and the bus-monitor child state on a
// bounded cadence until an exit intent is observed or a fatal pipeline
// error is seen, per spec.md §4.7/§4.8/§7.
func mainLoop(log zerolog.Logger, sup *supervisor.Supervisor, intents *signals.Intents, cfg config.Config) int {
	ticker := time.NewTicker(pollCadence)
	defer ticker.Stop()

	for range ticker.C {
		if intents.Exit.Load() {
			log.Info().Msg("exit intent received")
			return 0
		}

		if intents.ConsumeRestart() {
			log.Info().Msg("restart intent received")
			if err := sup.Restart(supervisor.DefaultStopWaitMs); err != nil {
				log.Error().Err(err).Msg("restart failed")
				return 1
			}
			continue
		}

		if intents.ConsumeRecordingOn() {
			// SIGUSR1 carries no payload; the output path comes from the
			// resolved config's record_path (set via --record-video/INI
			// output_path ahead of sending the signal).
			if cfg.RecordPath == "" {
				log.Info().Msg("recording-enable intent has no configured output path; ignoring")
			} else if err := sup.EnableRecording(collab.RecordConfig{OutputPath: cfg.RecordPath, Mode: cfg.RecordMode}); err != nil {
				log.Error().Err(err).Msg("enable recording failed")
			}
		}

		if intents.ConsumeRecordingOff() {
			sup.DisableRecording()
		}

		exited, encounteredErr := sup.PollChild()
		if exited {
			if encounteredErr {
				log.Error().Msg("pipeline stopped due to bus error")
			} else {
				log.Info().Msg("pipeline reached end-of-stream")
			}
			return 0
		}
	}
	return 0
}

func doModeset(log zerolog.Logger, cfg config.Config) (collab.ModesetResult, error) {
	target, err := drmkms.Open(cfg.CardPath)
	if err != nil {
		return collab.ModesetResult{}, err
	}
	defer target.Close()

	result, err := target.Modeset(collab.ModesetConfig{
		CardPath:  cfg.CardPath,
		Connector: cfg.Connector,
		PlaneID:   cfg.PlaneID,
	})
	if err != nil {
		return collab.ModesetResult{}, err
	}
	log.Info().Int("width", result.Width).Int("height", result.Height).Msg("modeset resolved")
	return result, nil
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// exitCodeFor maps a start-path failure to the process exit codes of
// spec.md §6: config errors are a usage error (2), everything else is a
// runtime failure (1).
func exitCodeFor(err error) int {
	var e *errs.Error
	if errors.As(err, &e) && e.Kind == errs.KindConfig {
		return 2
	}
	return 1
}
