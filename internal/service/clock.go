package service

import (
	"context"
	"time"
)

// Clock supplies the current time for an operation.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

func (SystemClock) Now(context.Context) (time.Time, error) {
	return time.Now().UTC(), nil
}

// ClockFunc adapts a function to Clock.
type ClockFunc func(ctx context.Context) (time.Time, error)

func (f ClockFunc) Now(ctx context.Context) (time.Time, error) {
	return f(ctx)
}
