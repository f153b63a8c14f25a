// Package signal pairs a spatial array with its time axis and an optional
// trigger mask, and keeps the three aligned on the record axis.
package signal

import (
	"context"
	"fmt"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/slicealg"
)

// Signal is an immutable space/time/trigger triple. Every method that
// changes a channel returns a new, revalidated Signal.
type Signal struct {
	space   lao.Array
	time    lao.Array
	trigger lao.Array
	length  int
}

// New validates the channels and builds a Signal. A time array of shape
// [n, 1] is squeezed to [n]. trigger may be nil.
func New(ctx context.Context, space, time, trigger lao.Array) (*Signal, error) {
	if space == nil || time == nil {
		return nil, fmt.Errorf("%w: space and time are required", apperr.ErrSignalShape)
	}

	ts, err := time.Shape(ctx)
	if err != nil {
		return nil, err
	}
	if len(ts) == 2 && ts[1] == 1 {
		time, err = lao.Index(ctx, time, slicealg.Desc(slicealg.All(), slicealg.At(0)))
		if err != nil {
			return nil, err
		}
		ts = slicealg.Shape{ts[0]}
	}
	if len(ts) != 1 {
		return nil, fmt.Errorf("%w: time must be one-dimensional, got shape %s", apperr.ErrSignalShape, ts)
	}

	ss, err := space.Shape(ctx)
	if err != nil {
		return nil, err
	}
	if len(ss) == 0 || ss[0] != ts[0] {
		return nil, fmt.Errorf("%w: space shape %s does not match time length %d", apperr.ErrSignalShape, ss, ts[0])
	}

	if trigger != nil {
		gs, err := trigger.Shape(ctx)
		if err != nil {
			return nil, err
		}
		if len(gs) == 0 || gs[0] != ts[0] {
			return nil, fmt.Errorf("%w: trigger shape %s does not match time length %d", apperr.ErrSignalShape, gs, ts[0])
		}
	}

	return &Signal{space: space, time: time, trigger: trigger, length: ts[0]}, nil
}

// Len is the number of records.
func (s *Signal) Len() int { return s.length }

// Space returns the spatial channel.
func (s *Signal) Space() lao.Array { return s.space }

// Time returns the one-dimensional time channel.
func (s *Signal) Time() lao.Array { return s.time }

// Trigger returns the trigger mask, or nil.
func (s *Signal) Trigger() lao.Array { return s.trigger }

// HasTrigger reports whether the signal carries a trigger mask.
func (s *Signal) HasTrigger() bool { return s.trigger != nil }

// Index applies d to space and the first item of d to time and trigger.
// The first item must be a slice: an integer would remove the record axis.
func (s *Signal) Index(ctx context.Context, d slicealg.Descriptor) (*Signal, error) {
	if len(d) == 0 {
		return s, nil
	}
	if d[0].IsInt() {
		return nil, fmt.Errorf("%w: indexing a signal with integer %d removes its record axis", apperr.ErrSignalShape, d[0].Int())
	}

	space, err := lao.Index(ctx, s.space, d)
	if err != nil {
		return nil, fmt.Errorf("space: %w", err)
	}
	records := slicealg.Desc(d[0])
	time, err := lao.Index(ctx, s.time, records)
	if err != nil {
		return nil, fmt.Errorf("time: %w", err)
	}
	var trigger lao.Array
	if s.trigger != nil {
		trigger, err = lao.Index(ctx, s.trigger, records)
		if err != nil {
			return nil, fmt.Errorf("trigger: %w", err)
		}
	}
	return New(ctx, space, time, trigger)
}

// Cut keeps records [start, stop).
func (s *Signal) Cut(ctx context.Context, start, stop int) (*Signal, error) {
	return s.Index(ctx, slicealg.Desc(slicealg.Range(start, stop)))
}

// Extend appends other after s on every channel. Both signals must agree on
// whether they carry a trigger.
func (s *Signal) Extend(ctx context.Context, other *Signal) (*Signal, error) {
	if s.HasTrigger() != other.HasTrigger() {
		return nil, fmt.Errorf("%w: cannot extend a signal with trigger=%t by one with trigger=%t", apperr.ErrSignalShape, s.HasTrigger(), other.HasTrigger())
	}
	space, err := lao.NewConcat(ctx, s.space, other.space)
	if err != nil {
		return nil, fmt.Errorf("space: %w", err)
	}
	time, err := lao.NewConcat(ctx, s.time, other.time)
	if err != nil {
		return nil, fmt.Errorf("time: %w", err)
	}
	var trigger lao.Array
	if s.trigger != nil {
		trigger, err = lao.NewConcat(ctx, s.trigger, other.trigger)
		if err != nil {
			return nil, fmt.Errorf("trigger: %w", err)
		}
	}
	return New(ctx, space, time, trigger)
}

// WithSpace returns a copy of s with another spatial channel.
func (s *Signal) WithSpace(ctx context.Context, space lao.Array) (*Signal, error) {
	return New(ctx, space, s.time, s.trigger)
}

// WithTime returns a copy of s with another time channel.
func (s *Signal) WithTime(ctx context.Context, time lao.Array) (*Signal, error) {
	return New(ctx, s.space, time, s.trigger)
}

// WithTrigger returns a copy of s with another trigger mask. A nil trigger
// removes it.
func (s *Signal) WithTrigger(ctx context.Context, trigger lao.Array) (*Signal, error) {
	return New(ctx, s.space, s.time, trigger)
}

func (s *Signal) String() string {
	return fmt.Sprintf("Signal(len=%d, trigger=%t)", s.length, s.HasTrigger())
}
