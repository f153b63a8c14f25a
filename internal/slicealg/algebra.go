package slicealg

import (
	"fmt"

	"github.com/vk/detflow/internal/apperr"
)

// Normalize resolves a slice against an axis of the given length. Missing
// fields default to 0, axisLen and 1; negative start and stop count from the
// end; the result is clamped to the axis. Negative steps are not supported.
func Normalize(axisLen int, s Slice) (Bounds, error) {
	step := 1
	if s.Step != nil {
		step = *s.Step
	}
	if step == 0 {
		return Bounds{}, fmt.Errorf("%w: step must not be zero", apperr.ErrInvalidSlice)
	}
	if step < 0 {
		return Bounds{}, fmt.Errorf("%w: negative step %d", apperr.ErrUnsupportedSlice, step)
	}

	start := 0
	if s.Start != nil {
		start = *s.Start
		if start < 0 {
			start += axisLen
		}
	}
	stop := axisLen
	if s.Stop != nil {
		stop = *s.Stop
		if stop < 0 {
			stop += axisLen
		}
	}

	start = clamp(start, 0, axisLen)
	stop = clamp(stop, 0, axisLen)
	if stop < start {
		stop = start
	}
	return Bounds{Start: start, Stop: stop, Step: step}, nil
}

// SizeOf is the number of elements s yields on an axis of length axisLen.
func SizeOf(axisLen int, s Slice) (int, error) {
	b, err := Normalize(axisLen, s)
	if err != nil {
		return 0, err
	}
	return b.Len(), nil
}

// ResolveInt turns a possibly negative position into an absolute one.
func ResolveInt(axisLen, n int) (int, error) {
	pos := n
	if pos < 0 {
		pos += axisLen
	}
	if pos < 0 || pos >= axisLen {
		return 0, fmt.Errorf("%w: index %d on axis of length %d", apperr.ErrIndexOutOfRange, n, axisLen)
	}
	return pos, nil
}

// ShapeAfter is the shape produced by applying d to an array of shape s.
func ShapeAfter(s Shape, d Descriptor) (Shape, error) {
	if len(d) > len(s) {
		return nil, fmt.Errorf("%w: %d indices for %d axes", apperr.ErrIndexOutOfRange, len(d), len(s))
	}
	out := make(Shape, 0, len(s))
	for axis, it := range d {
		if it.IsInt() {
			if _, err := ResolveInt(s[axis], it.Int()); err != nil {
				return nil, fmt.Errorf("axis %d: %w", axis, err)
			}
			continue
		}
		n, err := SizeOf(s[axis], it.Slice())
		if err != nil {
			return nil, fmt.Errorf("axis %d: %w", axis, err)
		}
		out = append(out, n)
	}
	return append(out, s[len(d):]...), nil
}

// Compose maps a request made against the view outer[axis] back onto the
// original axis of length outerLen. The result selects the same elements the
// two-step request would.
func Compose(outerLen int, outer Slice, inner Index) (Index, error) {
	ob, err := Normalize(outerLen, outer)
	if err != nil {
		return Index{}, err
	}
	filtered := ob.Len()

	if inner.IsInt() {
		b, err := ResolveInt(filtered, inner.Int())
		if err != nil {
			return Index{}, err
		}
		pos := ob.Start + b*ob.Step
		if pos < ob.Start || pos >= ob.Stop {
			return Index{}, fmt.Errorf("%w: composed position %d outside [%d, %d)", apperr.ErrIndexOutOfRange, pos, ob.Start, ob.Stop)
		}
		return At(pos), nil
	}

	ib, err := Normalize(filtered, inner.Slice())
	if err != nil {
		return Index{}, err
	}
	start := ob.Start + ib.Start*ob.Step
	stop := ob.Start + ib.Stop*ob.Step
	if stop > ob.Stop {
		stop = ob.Stop
	}
	if start > stop {
		start = stop
	}
	return Step(start, stop, ob.Step*ib.Step), nil
}

// ComposeDescriptor folds a request inner, made against the view source[outer],
// into a single descriptor against source. shape is the shape of source.
// Integer entries of outer have already removed their axis from the view, so
// they pass through untouched and consume nothing from inner.
func ComposeDescriptor(shape Shape, outer, inner Descriptor) (Descriptor, error) {
	if len(outer) > len(shape) {
		return nil, fmt.Errorf("%w: %d indices for %d axes", apperr.ErrIndexOutOfRange, len(outer), len(shape))
	}
	out := make(Descriptor, 0, len(shape))
	next := 0
	for axis, o := range outer {
		if o.IsInt() {
			out = append(out, o)
			continue
		}
		in := All()
		if next < len(inner) {
			in = inner[next]
			next++
		}
		c, err := Compose(shape[axis], o.Slice(), in)
		if err != nil {
			return nil, fmt.Errorf("axis %d: %w", axis, err)
		}
		out = append(out, c)
	}
	rest := inner[min(next, len(inner)):]
	if len(outer)+len(rest) > len(shape) {
		return nil, fmt.Errorf("%w: %d indices for %d axes", apperr.ErrIndexOutOfRange, len(outer)+len(rest), len(shape))
	}
	return append(out, rest...), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
