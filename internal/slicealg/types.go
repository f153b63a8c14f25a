package slicealg

import (
	"fmt"
	"strconv"
	"strings"
)

// Shape is the extent of every axis of an array. Axis 0 is the record axis.
type Shape []int

// Clone returns a copy that can be modified without aliasing s.
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// Equal reports whether both shapes have the same extents.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Size is the number of elements an array of this shape holds.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Slice selects a strided range along one axis. Nil fields take their
// defaults (0, axis length, 1) during normalization.
type Slice struct {
	Start *int
	Stop  *int
	Step  *int
}

func (s Slice) String() string {
	f := func(p *int) string {
		if p == nil {
			return ""
		}
		return strconv.Itoa(*p)
	}
	if s.Step == nil {
		return f(s.Start) + ":" + f(s.Stop)
	}
	return f(s.Start) + ":" + f(s.Stop) + ":" + f(s.Step)
}

// Bounds is a slice normalized against a known axis length:
// 0 <= Start <= Stop <= length and Step > 0.
type Bounds struct {
	Start int
	Stop  int
	Step  int
}

// Len is the number of positions the bounds select.
func (b Bounds) Len() int {
	if b.Start >= b.Stop {
		return 0
	}
	return (b.Stop - b.Start + b.Step - 1) / b.Step
}

// Slice turns the bounds back into a fully specified slice.
func (b Bounds) Slice() Slice {
	return Step(b.Start, b.Stop, b.Step).Slice()
}

// Index is a single entry of a descriptor: either an integer that selects and
// drops an axis or a slice that keeps it.
type Index struct {
	isInt bool
	n     int
	s     Slice
}

// IsInt reports whether the index selects a single position.
func (i Index) IsInt() bool { return i.isInt }

// Int returns the position of an integer index.
func (i Index) Int() int { return i.n }

// Slice returns the slice of a slice index.
func (i Index) Slice() Slice { return i.s }

func (i Index) String() string {
	if i.isInt {
		return strconv.Itoa(i.n)
	}
	return i.s.String()
}

// At builds an integer index.
func At(n int) Index {
	return Index{isInt: true, n: n}
}

// FromSlice wraps a slice as an index.
func FromSlice(s Slice) Index {
	return Index{s: s}
}

// All selects a whole axis.
func All() Index {
	return Index{}
}

// Range selects [start, stop) with step 1.
func Range(start, stop int) Index {
	return Index{s: Slice{Start: &start, Stop: &stop}}
}

// From selects [start, end of axis).
func From(start int) Index {
	return Index{s: Slice{Start: &start}}
}

// Step selects [start, stop) with the given step.
func Step(start, stop, step int) Index {
	return Index{s: Slice{Start: &start, Stop: &stop, Step: &step}}
}

// Descriptor addresses leading axes of an array in order. An empty
// descriptor selects everything.
type Descriptor []Index

// Desc is shorthand for building a descriptor.
func Desc(items ...Index) Descriptor {
	return Descriptor(items)
}

func (d Descriptor) String() string {
	parts := make([]string, len(d))
	for i, it := range d {
		parts[i] = it.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Encode renders the descriptor in a plain form made of ints and
// [start, stop, step] triples, with nil for missing slice fields.
func (d Descriptor) Encode() []any {
	out := make([]any, len(d))
	for i, it := range d {
		if it.isInt {
			out[i] = it.n
			continue
		}
		triple := make([]any, 3)
		for j, p := range []*int{it.s.Start, it.s.Stop, it.s.Step} {
			if p != nil {
				triple[j] = *p
			}
		}
		out[i] = triple
	}
	return out
}

// DecodeDescriptor parses the form produced by Encode. Numbers may arrive as
// any Go integer or float type, which is what JSON and msgpack decoders hand
// back.
func DecodeDescriptor(raw []any) (Descriptor, error) {
	d := make(Descriptor, 0, len(raw))
	for i, item := range raw {
		if n, ok := asInt(item); ok {
			d = append(d, At(n))
			continue
		}
		triple, ok := item.([]any)
		if !ok || len(triple) != 3 {
			return nil, fmt.Errorf("descriptor item %d: expected int or [start, stop, step], got %T", i, item)
		}
		var s Slice
		for j, dst := range []**int{&s.Start, &s.Stop, &s.Step} {
			if triple[j] == nil {
				continue
			}
			n, ok := asInt(triple[j])
			if !ok {
				return nil, fmt.Errorf("descriptor item %d: slice field %d is %T", i, j, triple[j])
			}
			*dst = &n
		}
		d = append(d, FromSlice(s))
	}
	return d, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	case float32:
		if n == float32(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
