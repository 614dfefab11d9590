package command

import "errors"

var (
	// ErrDeviceNotConnected is returned by Send when the target IMEI has
	// no authenticated session.
	ErrDeviceNotConnected = errors.New("command: device not connected")
	// ErrChannelClosed is returned when the write to the device's
	// connection fails because the peer is gone.
	ErrChannelClosed = errors.New("command: channel closed")
	// ErrCannotCancel is returned by Cancel once a command has left the
	// CREATED/PENDING states.
	ErrCannotCancel = errors.New("command: cannot cancel a command that is no longer created or pending")
	// ErrNotFound is returned when a command_id is unknown.
	ErrNotFound = errors.New("command: command not found")
)
