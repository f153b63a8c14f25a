// Package arith provides elementwise array arithmetic and logic nodes. Every
// array node only builds a lazy operation; no data is read until a sink
// requests it.
package arith

import (
	"context"
	"fmt"

	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/registry"
)

// Namespace is the schema namespace of every node in this package.
const Namespace = "arith"

// Module implements the registry.Module interface for this package.
type Module struct{}

func binary(op lao.Op) node.ComputeFunc {
	return func(ctx context.Context, in *node.Inputs, _ node.Constants, _ node.Namespace) (node.Outputs, error) {
		a, err := node.Get[lao.Array](in, "a")
		if err != nil {
			return nil, err
		}
		b, err := node.Get[lao.Array](in, "b")
		if err != nil {
			return nil, err
		}
		out, err := lao.NewBinary(ctx, op, a, b)
		if err != nil {
			return nil, err
		}
		return node.Outputs{"result": lao.Array(out)}, nil
	}
}

func unary(op lao.Op) node.ComputeFunc {
	return func(_ context.Context, in *node.Inputs, _ node.Constants, _ node.Namespace) (node.Outputs, error) {
		v, err := node.Get[lao.Array](in, "value")
		if err != nil {
			return nil, err
		}
		out, err := lao.NewUnary(op, v)
		if err != nil {
			return nil, err
		}
		return node.Outputs{"result": lao.Array(out)}, nil
	}
}

// Scale multiplies an array by a constant factor.
func Scale(_ context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	v, err := node.Get[lao.Array](in, "value")
	if err != nil {
		return nil, err
	}
	k, err := c.Float("factor")
	if err != nil {
		return nil, err
	}
	out, err := lao.NewScalar(lao.OpScale, k, v)
	if err != nil {
		return nil, err
	}
	return node.Outputs{"result": lao.Array(out)}, nil
}

// Offset adds a constant to every element of an array.
func Offset(_ context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	v, err := node.Get[lao.Array](in, "value")
	if err != nil {
		return nil, err
	}
	k, err := c.Float("amount")
	if err != nil {
		return nil, err
	}
	out, err := lao.NewScalar(lao.OpShift, k, v)
	if err != nil {
		return nil, err
	}
	return node.Outputs{"result": lao.Array(out)}, nil
}

// AddNumber adds a constant to a number.
func AddNumber(_ context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	raw, err := in.Require("value")
	if err != nil {
		return nil, err
	}
	v, err := number(raw)
	if err != nil {
		return nil, err
	}
	k, err := c.Float("amount")
	if err != nil {
		return nil, err
	}
	return node.Outputs{"result": v + k}, nil
}

// number accepts both float and int port values, since int ports may feed
// float inputs.
func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

// Register registers the node types with the engine.
func (m *Module) Register(r *registry.Registry) {
	binaries := []struct {
		class, desc string
		op          lao.Op
	}{
		{"Add", "Elementwise a + b.", lao.OpAdd},
		{"Subtract", "Elementwise a - b.", lao.OpSub},
		{"Multiply", "Elementwise a * b.", lao.OpMul},
		{"Divide", "Elementwise a / b, 0 where b is 0.", lao.OpDiv},
		{"And", "Elementwise logical and.", lao.OpAnd},
		{"Or", "Elementwise logical or.", lao.OpOr},
		{"Max", "Elementwise maximum of a and b.", lao.OpMax},
		{"Min", "Elementwise minimum of a and b.", lao.OpMin},
	}
	for _, b := range binaries {
		r.Register(node.NewSchema(Namespace, b.class).
			Describe(b.desc).
			Input("a", porttype.Array).
			Input("b", porttype.Array).
			Output("result", porttype.Array).
			Compute(binary(b.op)).
			MustBuild())
	}

	unaries := []struct {
		class, desc string
		op          lao.Op
	}{
		{"Not", "Elementwise logical not.", lao.OpNot},
		{"Negate", "Elementwise -x.", lao.OpNeg},
		{"Abs", "Elementwise |x|.", lao.OpAbs},
	}
	for _, u := range unaries {
		r.Register(node.NewSchema(Namespace, u.class).
			Describe(u.desc).
			Input("value", porttype.Array).
			Output("result", porttype.Array).
			Compute(unary(u.op)).
			MustBuild())
	}

	r.Register(node.NewSchema(Namespace, "Scale").
		Describe("Multiplies an array by a factor.").
		Input("value", porttype.Array).
		Output("result", porttype.Array).
		Constant("factor", porttype.Float, 1, node.External()).
		Compute(Scale).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "Offset").
		Describe("Adds a constant to an array.").
		Input("value", porttype.Array).
		Output("result", porttype.Array).
		Constant("amount", porttype.Float, 0, node.External()).
		Compute(Offset).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "AddNumber").
		Describe("Adds a constant to a number.").
		Input("value", porttype.Float).
		Output("result", porttype.Float).
		Constant("amount", porttype.Float, 0, node.External()).
		Compute(AddNumber).
		MustBuild())
}
