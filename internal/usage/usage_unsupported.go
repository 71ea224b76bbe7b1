//go:build !linux && !windows

package usage

import (
	"context"
	"fmt"
)

// UnsupportedReader is a fallback for unsupported platforms
type UnsupportedReader struct{}

// newPlatformReader creates a fallback usage reader for unsupported platforms
func newPlatformReader() Reader {
	return &UnsupportedReader{}
}

// Load returns an error for unsupported platforms
func (r *UnsupportedReader) Load(ctx context.Context) ([]*Usage, error) {
	return nil, fmt.Errorf("usage table not supported on this platform")
}
