package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Matches the interface of errors produced by github.com/pkg/errors.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

type causer interface {
	Cause() error
}

// WithStacktrace adds err and, when the error carries one, its stack trace
// as fields on the entry.
func WithStacktrace(entry *logrus.Entry, err error) *logrus.Entry {
	entry = entry.WithError(err)
	if stack := extractStack(err); stack != nil {
		entry = entry.WithField("stacktrace", stack)
	}
	return entry
}

// extractStack returns the deepest stack trace attached to err or its causes.
func extractStack(err error) errors.StackTrace {
	if withStack, ok := err.(stackTracer); ok {
		return withStack.StackTrace()
	}
	if withCause, ok := err.(causer); ok {
		return extractStack(withCause.Cause())
	}
	return nil
}
