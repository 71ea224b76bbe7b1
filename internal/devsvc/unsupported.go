//go:build !linux && !windows

package devsvc

import "context"

func connectPlatform(ctx context.Context) (Client, error) {
	return nil, &ConnectionError{Err: ErrUnsupported}
}
