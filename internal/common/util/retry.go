package util

import "context"

// RetryUntilSuccess calls action until it returns nil or ctx is cancelled.
// onError is invoked after each failed attempt and may sleep to back off.
func RetryUntilSuccess(ctx context.Context, action func() error, onError func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := action(); err == nil {
				return
			} else {
				onError(err)
			}
		}
	}
}
