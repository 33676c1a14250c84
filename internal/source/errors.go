package source

import "errors"

// Open errors
var (
	// ErrEmptySource indicates that the opened stream has zero length.
	ErrEmptySource = errors.New("source is empty")

	// ErrClosed indicates use of a source after Close.
	ErrClosed = errors.New("source is closed")
)

// Access errors
var (
	// ErrOutOfRange indicates a read or position at or beyond the stream length.
	ErrOutOfRange = errors.New("position out of range")

	// ErrReadOnlyViolation indicates a flush of modified bytes on a readonly source.
	ErrReadOnlyViolation = errors.New("modified readonly source")
)

// Device errors
var (
	// ErrDeviceAccessDenied indicates insufficient privilege to open or read a raw device.
	ErrDeviceAccessDenied = errors.New("device access denied")

	// ErrDeviceIO indicates any other raw device failure.
	ErrDeviceIO = errors.New("device I/O error")

	// ErrAlignment indicates a device window that is not sector aligned.
	// Seeing it means the window placement is broken.
	ErrAlignment = errors.New("device window not sector aligned")
)
