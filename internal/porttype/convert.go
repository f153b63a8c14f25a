package porttype

import (
	"fmt"
	"reflect"

	"github.com/vk/detflow/internal/apperr"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Conform converts val to the constant type of t and checks the value
// constraints the cty type cannot express, such as Int being whole. Null
// values pass through typed.
func Conform(t Type, val cty.Value) (cty.Value, error) {
	if !t.HasConstants() {
		return cty.NilVal, fmt.Errorf("%w: type '%s' has no constant values", apperr.ErrInvalidConstant, t.Name)
	}
	if val.IsNull() {
		return cty.NullVal(t.Value), nil
	}
	out, err := convert.Convert(val, t.Value)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%w: cannot convert %s to %s: %v", apperr.ErrInvalidConstant, val.Type().FriendlyName(), t.Name, err)
	}
	if t.Equal(Int) && out.IsKnown() && !out.AsBigFloat().IsInt() {
		return cty.NilVal, fmt.Errorf("%w: %s is not a whole number", apperr.ErrInvalidConstant, out.AsBigFloat().String())
	}
	return out, nil
}

// ToCty converts a Go value into a constant of type t. A nil v gives a
// typed null.
func ToCty(t Type, v any) (cty.Value, error) {
	if v == nil {
		return Conform(t, cty.NullVal(cty.DynamicPseudoType))
	}
	implied, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%w: unable to infer cty type of %T: %v", apperr.ErrInvalidConstant, v, err)
	}
	val, err := gocty.ToCtyValue(v, implied)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%w: %v", apperr.ErrInvalidConstant, err)
	}
	return Conform(t, val)
}

// FromCty decodes val into the Go value target points at, converting through
// the cty type implied by target first.
func FromCty(val cty.Value, target any) error {
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() {
		return fmt.Errorf("target for decoding must be a non-nil pointer, got %T", target)
	}
	implied, err := gocty.ImpliedType(ptr.Elem().Interface())
	if err != nil {
		return gocty.FromCtyValue(val, target)
	}
	converted, err := convert.Convert(val, implied)
	if err != nil {
		return fmt.Errorf("cannot convert %s to %s: %w", val.Type().FriendlyName(), implied.FriendlyName(), err)
	}
	return gocty.FromCtyValue(converted, target)
}
