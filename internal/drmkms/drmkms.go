// Package drmkms is the out-of-scope DRM/KMS atomic-modeset collaborator
// named in spec.md §1 and §6: it resolves a connector/CRTC/plane on a DRM
// card to an opaque display target handle plus resolved mode info. It is
// grounded on the ioctl-wrapper style of the teacher's api/pkg/drm
// package (raw unix.Syscall(unix.SYS_IOCTL, ...) calls against fixed-size
// structs matching the kernel ABI), simplified to what the ingest core
// actually needs: enumerate resources and pick a connector/CRTC/mode. It
// does not perform an atomic commit or own the decoder's render path --
// that belongs to the hardware decoder collaborator, also out of scope.
package drmkms

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sickgreg/pixelpilot-go/internal/collab"
	"github.com/sickgreg/pixelpilot-go/internal/errs"
)

const (
	ioctlSetMaster        = 0x641e
	ioctlModeGetResources  = 0xc04064a0
	ioctlModeGetConnector  = 0xc05064a7
)

const connectorStatusConnected = 1

type drmModeCardRes struct {
	FbIDPtr         uint64
	CrtcIDPtr       uint64
	ConnectorIDPtr  uint64
	EncoderIDPtr    uint64
	CountFbs        uint32
	CountCrtcs      uint32
	CountConnectors uint32
	CountEncoders   uint32
	MinWidth        uint32
	MaxWidth        uint32
	MinHeight       uint32
	MaxHeight       uint32
}

type drmModeModeinfo struct {
	Clock      uint32
	Hdisplay   uint16
	HsyncStart uint16
	HsyncEnd   uint16
	Htotal     uint16
	Hskew      uint16
	Vdisplay   uint16
	VsyncStart uint16
	VsyncEnd   uint16
	Vtotal     uint16
	Vscan      uint16
	Vrefresh   uint32
	Flags      uint32
	Type       uint32
	Name       [32]byte
}

type drmModeGetConnector struct {
	EncodersPtr     uint64
	ModesPtr        uint64
	PropsPtr        uint64
	PropValuesPtr   uint64
	CountModes      uint32
	CountProps      uint32
	CountEncoders   uint32
	EncoderID       uint32
	ConnectorID     uint32
	ConnectorType   uint32
	ConnectorTypeID uint32
	Connection      uint32
	MmWidth         uint32
	MmHeight        uint32
	Subpixel        uint32
	Pad             uint32
}

// Target implements collab.ModesetTarget against a real DRM card.
type Target struct {
	f *os.File
}

// Open opens the DRM card and becomes master, matching the teacher's
// openDRM/setMaster sequence.
func Open(cardPath string) (*Target, error) {
	f, err := os.OpenFile(cardPath, os.O_RDWR, 0)
	if err != nil {
		return nil, errs.Wrap(errs.KindDisplay, "open %s: %w", cardPath, err)
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), ioctlSetMaster, 0); errno != 0 {
		f.Close()
		return nil, errs.Wrap(errs.KindDisplay, "DRM_IOCTL_SET_MASTER: %w", errno)
	}
	return &Target{f: f}, nil
}

// Modeset picks the first connected connector and its preferred mode,
// producing a ModesetResult. cfg.Connector is not consulted: a named
// connector is not looked up, so the choice is always the first connected
// one. The CRTC/plane atomic commit
// itself is performed by the hardware decoder collaborator, which is
// handed this result.
func (t *Target) Modeset(cfg collab.ModesetConfig) (collab.ModesetResult, error) {
	connectorIDs, err := t.connectedConnectors()
	if err != nil {
		return collab.ModesetResult{}, errs.Wrap(errs.KindDisplay, "enumerate connectors: %w", err)
	}
	if len(connectorIDs) == 0 {
		return collab.ModesetResult{}, errs.Wrap(errs.KindDisplay, "no connected connectors found")
	}

	connID := connectorIDs[0]
	mode, err := t.preferredMode(connID)
	if err != nil {
		return collab.ModesetResult{}, errs.Wrap(errs.KindDisplay, "get mode for connector %d: %w", connID, err)
	}

	return collab.ModesetResult{
		Handle:    uintptr(connID)<<32 | uintptr(cfg.PlaneID),
		Width:     int(mode.Hdisplay),
		Height:    int(mode.Vdisplay),
		RefreshHz: int(mode.Vrefresh),
	}, nil
}

// Close releases the DRM card handle.
func (t *Target) Close() error {
	return t.f.Close()
}

func (t *Target) connectedConnectors() ([]uint32, error) {
	var res drmModeCardRes
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, t.f.Fd(), ioctlModeGetResources, uintptr(unsafe.Pointer(&res))); errno != 0 {
		return nil, fmt.Errorf("MODE_GETRESOURCES (count): %w", errno)
	}
	if res.CountConnectors == 0 {
		return nil, fmt.Errorf("no connectors reported")
	}

	connectorIDs := make([]uint32, res.CountConnectors)
	res2 := drmModeCardRes{
		ConnectorIDPtr:  uint64(uintptr(unsafe.Pointer(&connectorIDs[0]))),
		CountConnectors: res.CountConnectors,
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, t.f.Fd(), ioctlModeGetResources, uintptr(unsafe.Pointer(&res2))); errno != 0 {
		return nil, fmt.Errorf("MODE_GETRESOURCES (fill): %w", errno)
	}

	connected := make([]uint32, 0, len(connectorIDs))
	for _, id := range connectorIDs {
		conn := drmModeGetConnector{ConnectorID: id}
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, t.f.Fd(), ioctlModeGetConnector, uintptr(unsafe.Pointer(&conn))); errno != 0 {
			continue
		}
		if conn.Connection == connectorStatusConnected {
			connected = append(connected, id)
		}
	}
	return connected, nil
}

func (t *Target) preferredMode(connectorID uint32) (drmModeModeinfo, error) {
	conn := drmModeGetConnector{ConnectorID: connectorID}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, t.f.Fd(), ioctlModeGetConnector, uintptr(unsafe.Pointer(&conn))); errno != 0 {
		return drmModeModeinfo{}, fmt.Errorf("MODE_GETCONNECTOR (count): %w", errno)
	}
	if conn.CountModes == 0 {
		return drmModeModeinfo{}, fmt.Errorf("connector %d has no modes", connectorID)
	}

	modes := make([]drmModeModeinfo, conn.CountModes)
	conn2 := drmModeGetConnector{
		ConnectorID: connectorID,
		ModesPtr:    uint64(uintptr(unsafe.Pointer(&modes[0]))),
		CountModes:  conn.CountModes,
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, t.f.Fd(), ioctlModeGetConnector, uintptr(unsafe.Pointer(&conn2))); errno != 0 {
		return drmModeModeinfo{}, fmt.Errorf("MODE_GETCONNECTOR (fill): %w", errno)
	}
	return modes[0], nil
}
