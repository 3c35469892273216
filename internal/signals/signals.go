// Package signals implements the Signal Supervisor of spec.md §4.8: a
// dedicated OS thread that synchronously waits on a masked signal set and
// translates each signal into an intent flag polled by the main
// supervisor loop.
//
// spec.md requires signals to be blocked in every other thread so only
// this one delivers them, which is only expressible with
// runtime.LockOSThread plus a blocking sigwait -- Go's channel-based
// os/signal.Notify cannot give that guarantee. unix.PthreadSigmask covers
// the mask half directly; the wait half has no high-level wrapper in
// x/sys/unix, so it goes straight through unix.Syscall6(SYS_RT_SIGTIMEDWAIT,
// ...), following the same raw-syscall-against-the-kernel-ABI idiom the
// teacher uses for its DRM ioctls (unix.Syscall(unix.SYS_IOCTL, ...)).
package signals

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// sigsetKernelBytes is the sigsetsize the kernel's rt_sig* syscalls expect:
// 8 bytes (64 signal bits), independent of glibc's larger Sigset_t struct.
// x/sys/unix's own PthreadSigmask wrapper passes this same width through to
// SYS_RT_SIGPROCMASK internally.
const sigsetKernelBytes = 8

// Intents is the shared, atomics-guarded flag set the main supervisor loop
// polls, per the design note in spec.md §9 ("model as a small shared state
// object with atomics... never as free-floating module variables").
type Intents struct {
	Exit            atomic.Bool
	Restart         atomic.Bool
	RecordingOn     atomic.Bool
	RecordingOff    atomic.Bool
}

// Supervisor owns the dedicated signal-waiting goroutine.
type Supervisor struct {
	log     zerolog.Logger
	Intents Intents

	done chan struct{}
}

// New constructs a Supervisor. It does not start the waiting thread.
func New(log zerolog.Logger) *Supervisor {
	return &Supervisor{
		log:  log.With().Str("component", "signal-supervisor").Logger(),
		done: make(chan struct{}),
	}
}

// watchedSet returns the signal mask of spec.md §4.8.
func watchedSet() unix.Sigset_t {
	var set unix.Sigset_t
	for _, s := range []unix.Signal{unix.SIGINT, unix.SIGTERM, unix.SIGHUP, unix.SIGUSR1, unix.SIGUSR2} {
		sigsetAdd(&set, s)
	}
	return set
}

// sigsetAdd sets bit (s-1) in a Sigset_t, matching sigaddset(3).
func sigsetAdd(set *unix.Sigset_t, s unix.Signal) {
	set.Val[(s-1)/64] |= 1 << (uint(s-1) % 64)
}

// BlockAll blocks the watched signal set on the calling OS thread. It must
// be called on every thread except the one running Start, so the process
// as a whole only ever has the dedicated supervisor thread receive them.
// Go starts goroutines on arbitrary OS threads, so this is called from
// main before any other goroutine that cares is spawned; it affects the
// whole process's signal mask as inherited by subsequently created
// threads.
func BlockAll() error {
	set := watchedSet()
	return unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil)
}

// sigtimedwait wraps SYS_RT_SIGTIMEDWAIT directly: unix.Sigwaitinfo has no
// guaranteed-present high-level binding, but the raw syscall is stable
// kernel ABI. A nil timeout blocks indefinitely, matching sigwaitinfo(2).
func sigtimedwait(set *unix.Sigset_t, info *unix.Siginfo) (unix.Signal, error) {
	r1, _, errno := unix.Syscall6(
		unix.SYS_RT_SIGTIMEDWAIT,
		uintptr(unsafe.Pointer(set)),
		uintptr(unsafe.Pointer(info)),
		0, // timeout *timespec == nil: block indefinitely
		sigsetKernelBytes,
		0, 0,
	)
	if errno != 0 {
		return 0, errno
	}
	return unix.Signal(r1), nil
}

// Start launches the dedicated signal-waiting goroutine. The goroutine
// locks itself to its OS thread and calls sigtimedwait in a loop until
// Stop is called.
func (s *Supervisor) Start() {
	go s.run()
}

func (s *Supervisor) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	set := watchedSet()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		var info unix.Siginfo
		sig, err := sigtimedwait(&set, &info)
		if err != nil {
			continue
		}
		switch sig {
		case unix.SIGINT, unix.SIGTERM:
			s.log.Info().Str("signal", sig.String()).Msg("exit intent")
			s.Intents.Exit.Store(true)
		case unix.SIGHUP:
			s.log.Info().Msg("restart intent")
			s.Intents.Restart.Store(true)
		case unix.SIGUSR1:
			if !s.Intents.RecordingOn.Load() {
				s.log.Info().Msg("recording-enable intent")
				s.Intents.RecordingOn.Store(true)
			}
		case unix.SIGUSR2:
			if !s.Intents.RecordingOff.Load() {
				s.log.Info().Msg("recording-disable intent")
				s.Intents.RecordingOff.Store(true)
			}
		}
	}
}

// Stop ends the supervisor goroutine. Because sigtimedwait blocks
// indefinitely (spec.md §5), Stop does not join; the goroutine exits on
// its next delivered signal or process exit, whichever comes first -- it
// carries no resources that need releasing before the process exits.
func (s *Supervisor) Stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// ConsumeRestart atomically reads and clears the restart intent.
func (i *Intents) ConsumeRestart() bool {
	return i.Restart.CompareAndSwap(true, false)
}

// ConsumeRecordingOn atomically reads and clears the recording-enable intent.
func (i *Intents) ConsumeRecordingOn() bool {
	return i.RecordingOn.CompareAndSwap(true, false)
}

// ConsumeRecordingOff atomically reads and clears the recording-disable intent.
func (i *Intents) ConsumeRecordingOff() bool {
	return i.RecordingOff.CompareAndSwap(true, false)
}
