// Package context holds context helpers shared by the bucket, the refiller
// and the HTTP server.
package context

import (
	"context"
	"errors"
	"time"
)

// WithOptionalTimeout bounds parent by timeout. A non-positive timeout returns
// a cancelable child of parent without a deadline.
func WithOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// IsCancellation reports whether err was caused by a cancelled or expired
// context, however deeply wrapped.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
