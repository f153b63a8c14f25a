package node

import (
	"fmt"
	"reflect"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/porttype"
	"github.com/zclconf/go-cty/cty"
)

// Binding is how a constant gets its value: a Literal or a Linked port.
type Binding interface {
	isBinding()
}

// Literal holds the constant value directly.
type Literal struct {
	Value cty.Value
}

// Linked redirects the constant to an extra input port.
type Linked struct {
	Port string
}

func (Literal) isBinding() {}
func (Linked) isBinding()  {}

// Inputs are the resolved input values of one node for one run.
type Inputs struct {
	node   string
	ports  map[string]Port
	linked map[string]bool
	values map[string]any
}

// NewInputs builds the input view of node for one run. linked names the
// ports that have an incoming link; values holds what those links carried.
func NewInputs(node string, ports []Port, linked map[string]bool, values map[string]any) *Inputs {
	pm := make(map[string]Port, len(ports))
	for _, p := range ports {
		pm[p.Name] = p
	}
	return &Inputs{node: node, ports: pm, linked: linked, values: values}
}

// Linked reports whether the port has an incoming link.
func (in *Inputs) Linked(name string) bool { return in.linked[name] }

// Require returns the value on a port. It fails with ErrMissingInput when the
// port is unlinked and ErrNullInput when the linked value is nil, unless the
// port is optional, in which case the value is nil.
func (in *Inputs) Require(name string) (any, error) {
	p, declared := in.ports[name]
	if !declared {
		return nil, fmt.Errorf("%w: node '%s' has no input '%s'", apperr.ErrUnknownPort, in.node, name)
	}
	if !in.linked[name] {
		if p.Optional {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: node '%s' input '%s' is not linked", apperr.ErrMissingInput, in.node, name)
	}
	v := in.values[name]
	if isNil(v) {
		if p.Optional {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: node '%s' input '%s' received no value", apperr.ErrNullInput, in.node, name)
	}
	return v, nil
}

// Optional returns the value on a port, or nil when it is unlinked or empty,
// whatever the port declaration says.
func (in *Inputs) Optional(name string) any {
	if !in.linked[name] {
		return nil
	}
	v := in.values[name]
	if isNil(v) {
		return nil
	}
	return v
}

// Get is Require with a type assertion.
func Get[T any](in *Inputs, name string) (T, error) {
	var zero T
	v, err := in.Require(name)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("node '%s' input '%s': expected %T, got %T", in.node, name, zero, v)
	}
	return t, nil
}

// GetOptional is Optional with a type assertion. ok is false when there is
// no value.
func GetOptional[T any](in *Inputs, name string) (value T, ok bool, err error) {
	v := in.Optional(name)
	if v == nil {
		return value, false, nil
	}
	t, isT := v.(T)
	if !isT {
		return value, false, fmt.Errorf("node '%s' input '%s': expected %T, got %T", in.node, name, value, v)
	}
	return t, true, nil
}

// isNil reports whether v carries no value at all. Empty but present values,
// such as "" or an array with zero records, are values.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Constants are the resolved constant values of one node for one run.
type Constants map[string]cty.Value

// Has reports whether the constant resolved to a non-null value.
func (c Constants) Has(name string) bool {
	v, ok := c[name]
	return ok && !v.IsNull()
}

func (c Constants) decode(name string, target any) error {
	if !c.Has(name) {
		return fmt.Errorf("%w: constant '%s' has no value", apperr.ErrNullInput, name)
	}
	if err := porttype.FromCty(c[name], target); err != nil {
		return fmt.Errorf("constant '%s': %w", name, err)
	}
	return nil
}

// Float decodes a numeric constant.
func (c Constants) Float(name string) (float64, error) {
	var f float64
	err := c.decode(name, &f)
	return f, err
}

// Int decodes a whole-number constant.
func (c Constants) Int(name string) (int, error) {
	var n int
	err := c.decode(name, &n)
	return n, err
}

// String decodes a string constant.
func (c Constants) String(name string) (string, error) {
	var s string
	err := c.decode(name, &s)
	return s, err
}

// Bool decodes a boolean constant.
func (c Constants) Bool(name string) (bool, error) {
	var b bool
	err := c.decode(name, &b)
	return b, err
}
