package overlay

import "fmt"

// MountError is returned when an overlay filesystem cannot be mounted
type MountError struct {
	Mountpoint string
	Message    string
}

func (e MountError) Error() string {
	return fmt.Sprintf("failed to mount overlay on %s: %s", e.Mountpoint, e.Message)
}

// UnmountError is returned when an overlay filesystem cannot be unmounted
type UnmountError struct {
	Mountpoint string
	Message    string
}

func (e UnmountError) Error() string {
	return fmt.Sprintf("failed to unmount %s: %s", e.Mountpoint, e.Message)
}
