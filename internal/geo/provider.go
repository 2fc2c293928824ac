package geo

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned when the platform refuses location access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrLocationUnavailable covers every other acquisition failure.
	ErrLocationUnavailable = errors.New("location unavailable")
)

// Provider acquires the device position. Implementations do not cache
// and do not retry; each call is one acquisition attempt.
type Provider interface {
	CurrentLocation(ctx context.Context) (Point, error)
}

// Func adapts a plain function to Provider.
type Func func(ctx context.Context) (Point, error)

func (f Func) CurrentLocation(ctx context.Context) (Point, error) {
	return f(ctx)
}

// Static always answers with the same point or the same error.
type Static struct {
	Point Point
	Err   error
}

// CurrentLocation returns s.Point, or s.Err when set. A done context
// reports ErrLocationUnavailable.
func (s Static) CurrentLocation(ctx context.Context) (Point, error) {
	if ctx.Err() != nil {
		return Point{}, errors.Join(ErrLocationUnavailable, ctx.Err())
	}
	if s.Err != nil {
		return Point{}, s.Err
	}
	return s.Point, nil
}
