// Package lock implements the single-instance guard of spec.md §4.9: an
// O_EXCL PID-file with a liveness probe, distinct from the flock-based
// advisory lock the audio-supervisor example in the retrieval pack uses --
// spec.md specifies the PID-file protocol exactly, so it's followed
// verbatim rather than substituting the flock approach.
package lock

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/sickgreg/pixelpilot-go/internal/errs"
)

// DefaultPath is the PID file path named in spec.md §6.
const DefaultPath = "/tmp/pixelpilot_mini_rk.pid"

// Guard holds the acquired PID file so it can be released on exit.
type Guard struct {
	path string
}

// Acquire attempts to atomically create the PID file. On EEXIST it reads
// the stored PID and probes liveness via kill(pid, 0); if the process is
// alive (or the probe fails with EPERM, meaning it exists but isn't ours
// to signal), Acquire fails with ErrSingleInstance. If the stored PID is
// stale, the file is unlinked and creation is retried once.
func Acquire(path string) (*Guard, error) {
	if path == "" {
		path = DefaultPath
	}

	g, err := tryCreate(path)
	if err == nil {
		return g, nil
	}
	if !os.IsExist(err) {
		return nil, errs.Wrap(errs.KindSingleInstance, "create pid file %s: %w", path, err)
	}

	stale, probeErr := isStale(path)
	if probeErr != nil {
		return nil, errs.Wrap(errs.KindSingleInstance, "probe existing pid file %s: %w", path, probeErr)
	}
	if !stale {
		return nil, errs.Wrap(errs.KindSingleInstance, "another instance is already running (pid file %s)", path)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errs.Wrap(errs.KindSingleInstance, "remove stale pid file %s: %w", path, err)
	}

	g, err = tryCreate(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindSingleInstance, "create pid file %s after removing stale one: %w", path, err)
	}
	return g, nil
}

func tryCreate(path string) (*Guard, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		os.Remove(path)
		return nil, err
	}
	return &Guard{path: path}, nil
}

// isStale reads the PID from an existing lock file and probes whether
// that process is still alive with kill(pid, 0). A readable-but-garbage
// file, or one whose process no longer exists, is considered stale.
func isStale(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return true, nil // unreadable PID: treat as stale
	}

	err = unix.Kill(pid, 0)
	switch err {
	case nil:
		return false, nil // alive
	case unix.EPERM:
		return false, nil // exists, but owned by another user
	case unix.ESRCH:
		return true, nil // no such process: stale
	default:
		return false, err
	}
}

// Release removes the PID file. Safe to call once; callers should
// register it as an unlink-at-exit hook per spec.md §4.9.
func (g *Guard) Release() error {
	if g == nil {
		return nil
	}
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
