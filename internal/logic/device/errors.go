package device

import "errors"

var (
	// ErrLockTimeout means the device lock was never released: the device is
	// considered un-closable. Fatal for the process.
	ErrLockTimeout = errors.New("device: timed out waiting for open/close lock")

	// Recoverable: the controller is back in Closed and a later open may succeed.
	ErrDeviceUnavailable = errors.New("device: no device manager available")
	ErrDeviceAccess      = errors.New("device: cannot read camera characteristics")
	ErrOpenFailed        = errors.New("device: open failed")
	ErrPreviewSetup      = errors.New("device: preview setup failed")
	ErrDisconnected      = errors.New("device: disconnected")

	// ErrNotClosed is returned by Open when a device is already open or in flight.
	ErrNotClosed = errors.New("device: open requested while not closed")
)

// IsFatal reports whether err must end the process.
func IsFatal(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
