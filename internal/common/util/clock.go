package util

import "time"

// Clock abstracts time.Now so tests can control lease expiry.
type Clock interface {
	Now() time.Time
}

type DefaultClock struct{}

func (c *DefaultClock) Now() time.Time { return time.Now() }

// DummyClock always reports the fixed time T.
type DummyClock struct {
	T time.Time
}

func (c *DummyClock) Now() time.Time { return c.T }
