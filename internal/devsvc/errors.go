package devsvc

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotConnected is returned when an operation needs a live service
	// handle and none is held
	ErrNotConnected = errors.New("device service not connected")

	// ErrUnsupported is returned by backends that cannot perform an operation
	ErrUnsupported = errors.New("operation not supported by device service")
)

// ConnectionError means the device service could not be reached. It is
// fatal to a topology build.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("device service unreachable: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Cause lets errors.Cause see through to the transport error
func (e *ConnectionError) Cause() error { return e.Err }

// ProbeError is a failed query for a single object. It is logged and the
// object skipped.
type ProbeError struct {
	Op   string
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

func (e *ProbeError) Cause() error { return e.Err }

func probeErr(op, path string, err error) error {
	return &ProbeError{Op: op, Path: path, Err: err}
}
