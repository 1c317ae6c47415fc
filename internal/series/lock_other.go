//go:build !unix

package series

import "context"

// lockPath is a no-op where flock is unavailable; overlapping runs must be
// prevented by the caller's scheduler.
func lockPath(context.Context, string) (func(), error) {
	return func() {}, nil
}
