package lao

import (
	"context"
	"fmt"

	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
	"github.com/vmihailenco/msgpack/v5"
)

// Node kinds in an encoded tree.
const (
	kindMemory = "memory"
	kindSource = "source"
	kindView   = "view"
	kindUnary  = "unary"
	kindBinary = "binary"
	kindScalar = "scalar"
	kindConcat = "concat"
	kindMoving = "moving_mean"
	kindDown   = "downsample"
	kindMarg   = "marginal"
	kindAllOf  = "all_of"
	kindWiden  = "widen"
	kindFrame  = "framewise"
)

// spec is the wire form of one tree node. Sources travel as locators only
// and reopen lazily on the receiving side.
type spec struct {
	Kind     string    `msgpack:"kind"`
	Op       Op        `msgpack:"op,omitempty"`
	Value    float64   `msgpack:"value,omitempty"`
	Window   int       `msgpack:"window,omitempty"`
	Sum      bool      `msgpack:"sum,omitempty"`
	Length   int       `msgpack:"length,omitempty"`
	Locator  *Locator  `msgpack:"locator,omitempty"`
	Shape    []int     `msgpack:"shape,omitempty"`
	Data     []float64 `msgpack:"data,omitempty"`
	Desc     []any     `msgpack:"desc,omitempty"`
	Children []spec    `msgpack:"children,omitempty"`
}

// Encode serializes a tree so another worker or a later run can rebuild it
// with Decode. Generated leaves are materialized; every other leaf must be a
// Memory or a Source.
func Encode(ctx context.Context, a Array) ([]byte, error) {
	s, err := toSpec(ctx, a)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(s)
}

// Decode rebuilds a tree encoded by Encode. Sources are bound to openers but
// not opened.
func Decode(b []byte, openers *Openers) (Array, error) {
	var s spec
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decoding array tree: %w", err)
	}
	return fromSpec(s, openers)
}

func toSpec(ctx context.Context, a Array) (spec, error) {
	switch v := a.(type) {
	case *Memory:
		return spec{Kind: kindMemory, Shape: v.arr.Shape(), Data: v.arr.Data()}, nil
	case *Generated:
		arr, err := Materialize(ctx, v)
		if err != nil {
			return spec{}, err
		}
		return spec{Kind: kindMemory, Shape: arr.Shape(), Data: arr.Data()}, nil
	case *Source:
		loc := v.Locator()
		return spec{Kind: kindSource, Locator: &loc}, nil
	case *View:
		child, err := toSpec(ctx, v.source)
		if err != nil {
			return spec{}, err
		}
		return spec{Kind: kindView, Desc: v.desc.Encode(), Children: []spec{child}}, nil
	case *Unary:
		child, err := toSpec(ctx, v.child)
		if err != nil {
			return spec{}, err
		}
		return spec{Kind: kindUnary, Op: v.op, Children: []spec{child}}, nil
	case *Scalar:
		child, err := toSpec(ctx, v.child)
		if err != nil {
			return spec{}, err
		}
		return spec{Kind: kindScalar, Op: v.op, Value: v.k, Children: []spec{child}}, nil
	case *Binary:
		return pairSpec(ctx, kindBinary, v.op, v.left, v.right)
	case *Concat:
		return pairSpec(ctx, kindConcat, "", v.left, v.right)
	case *AllOf:
		return pairSpec(ctx, kindAllOf, "", v.first, v.second)
	case *MovingMean:
		return childSpec(ctx, spec{Kind: kindMoving, Window: v.window}, v.child)
	case *Downsample:
		return childSpec(ctx, spec{Kind: kindDown, Window: v.factor, Sum: v.sum}, v.child)
	case *Marginal:
		return childSpec(ctx, spec{Kind: kindMarg}, v.child)
	case *Widen:
		return childSpec(ctx, spec{Kind: kindWiden, Window: v.window, Length: v.n}, v.child)
	case *Framewise:
		return childSpec(ctx, spec{Kind: kindFrame, Op: v.op, Shape: v.frame.Shape(), Data: v.frame.Data()}, v.child)
	default:
		return spec{}, fmt.Errorf("cannot encode array of type %T", a)
	}
}

// Sources lists the Source leaves of a tree, left to right.
func Sources(a Array) []*Source {
	switch v := a.(type) {
	case *Source:
		return []*Source{v}
	case *View:
		return Sources(v.source)
	case *Unary:
		return Sources(v.child)
	case *Scalar:
		return Sources(v.child)
	case *MovingMean:
		return Sources(v.child)
	case *Downsample:
		return Sources(v.child)
	case *Marginal:
		return Sources(v.child)
	case *Widen:
		return Sources(v.child)
	case *Framewise:
		return Sources(v.child)
	case *Binary:
		return append(Sources(v.left), Sources(v.right)...)
	case *Concat:
		return append(Sources(v.left), Sources(v.right)...)
	case *AllOf:
		return append(Sources(v.first), Sources(v.second)...)
	default:
		return nil
	}
}

func childSpec(ctx context.Context, s spec, child Array) (spec, error) {
	c, err := toSpec(ctx, child)
	if err != nil {
		return spec{}, err
	}
	s.Children = []spec{c}
	return s, nil
}

func pairSpec(ctx context.Context, kind string, op Op, left, right Array) (spec, error) {
	l, err := toSpec(ctx, left)
	if err != nil {
		return spec{}, err
	}
	r, err := toSpec(ctx, right)
	if err != nil {
		return spec{}, err
	}
	return spec{Kind: kind, Op: op, Children: []spec{l, r}}, nil
}

func fromSpec(s spec, openers *Openers) (Array, error) {
	want := map[string]int{
		kindMemory: 0, kindSource: 0, kindView: 1, kindUnary: 1,
		kindScalar: 1, kindBinary: 2, kindConcat: 2,
		kindMoving: 1, kindDown: 1, kindMarg: 1, kindWiden: 1, kindFrame: 1,
		kindAllOf: 2,
	}
	n, ok := want[s.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown array node kind %q", s.Kind)
	}
	if len(s.Children) != n {
		return nil, fmt.Errorf("array node %q has %d children, want %d", s.Kind, len(s.Children), n)
	}
	children := make([]Array, n)
	for i, c := range s.Children {
		child, err := fromSpec(c, openers)
		if err != nil {
			return nil, err
		}
		children[i] = child
	}

	switch s.Kind {
	case kindMemory:
		m, err := FromValues(slicealg.Shape(s.Shape), s.Data)
		if err != nil {
			return nil, err
		}
		return m, nil
	case kindSource:
		if s.Locator == nil {
			return nil, fmt.Errorf("source node without locator")
		}
		return NewSource(openers, *s.Locator), nil
	case kindView:
		d, err := slicealg.DecodeDescriptor(s.Desc)
		if err != nil {
			return nil, err
		}
		return &View{source: children[0], desc: d}, nil
	case kindUnary:
		if _, ok := unaryOps[s.Op]; !ok {
			return nil, fmt.Errorf("unknown unary operation %q", s.Op)
		}
		return &Unary{op: s.Op, child: children[0]}, nil
	case kindScalar:
		if _, ok := scalarOps[s.Op]; !ok {
			return nil, fmt.Errorf("unknown scalar operation %q", s.Op)
		}
		return &Scalar{op: s.Op, k: s.Value, child: children[0]}, nil
	case kindBinary:
		if _, ok := binaryOps[s.Op]; !ok {
			return nil, fmt.Errorf("unknown binary operation %q", s.Op)
		}
		return &Binary{op: s.Op, left: children[0], right: children[1]}, nil
	case kindMoving:
		if s.Window < 1 {
			return nil, fmt.Errorf("moving mean window must be positive, got %d", s.Window)
		}
		return &MovingMean{child: children[0], window: s.Window}, nil
	case kindDown:
		if s.Window < 1 {
			return nil, fmt.Errorf("downsample factor must be positive, got %d", s.Window)
		}
		return &Downsample{child: children[0], factor: s.Window, sum: s.Sum}, nil
	case kindMarg:
		return &Marginal{child: children[0]}, nil
	case kindWiden:
		if s.Window < 1 {
			return nil, fmt.Errorf("widen window must be positive, got %d", s.Window)
		}
		return &Widen{child: children[0], window: s.Window, n: s.Length}, nil
	case kindFrame:
		if _, ok := binaryOps[s.Op]; !ok {
			return nil, fmt.Errorf("unknown binary operation %q", s.Op)
		}
		frame, err := ndarray.New(slicealg.Shape(s.Shape), s.Data)
		if err != nil {
			return nil, err
		}
		return &Framewise{op: s.Op, child: children[0], frame: frame}, nil
	case kindAllOf:
		return &AllOf{first: children[0], second: children[1]}, nil
	default:
		return &Concat{left: children[0], right: children[1]}, nil
	}
}

// compile-time checks
var (
	_ Array   = (*Memory)(nil)
	_ Array   = (*Generated)(nil)
	_ Indexer = (*Generated)(nil)
	_ Array   = (*Source)(nil)
	_ Array   = (*View)(nil)
	_ Array   = (*Unary)(nil)
	_ Array   = (*Binary)(nil)
	_ Array   = (*Scalar)(nil)
	_ Array   = (*Concat)(nil)

	_ Indexer = (*MovingMean)(nil)
	_ Indexer = (*Downsample)(nil)
	_ Indexer = (*Marginal)(nil)
	_ Indexer = (*Widen)(nil)
	_ Indexer = (*Framewise)(nil)
	_ Array   = (*MovingMean)(nil)
	_ Array   = (*Downsample)(nil)
	_ Array   = (*Marginal)(nil)
	_ Array   = (*AllOf)(nil)
	_ Array   = (*Widen)(nil)
	_ Array   = (*Framewise)(nil)
)
