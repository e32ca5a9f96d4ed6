package hcl

import (
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/pingcap/errors"
	"github.com/vk/viewgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// isExprDefined reports whether an optional attribute was present in the
// source. gohcl fills omitted hcl.Expression fields with a zero-width
// placeholder.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}

// stringMap converts an object or map of primitives into strings. Numbers
// are rendered in plain decimal notation.
func stringMap(v cty.Value) (map[string]string, error) {
	out := make(map[string]string)
	if v.IsNull() {
		return out, nil
	}
	if !v.IsKnown() || !(v.Type().IsObjectType() || v.Type().IsMapType()) {
		return nil, errors.Errorf("expected an object, got %s", v.Type().FriendlyName())
	}
	for it := v.ElementIterator(); it.Next(); {
		k, elem := it.Element()
		s, err := primitiveString(elem)
		if err != nil {
			return nil, errors.Annotatef(err, "key %q", k.AsString())
		}
		out[k.AsString()] = s
	}
	return out, nil
}

func properties(v cty.Value) (value.Properties, error) {
	m, err := stringMap(v)
	if err != nil {
		return value.Properties{}, err
	}
	return value.NewProperties(m), nil
}

func primitiveString(v cty.Value) (string, error) {
	if v.IsNull() || !v.IsKnown() {
		return "", errors.New("value must be known and not null")
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Number:
		return v.AsBigFloat().Text('f', -1), nil
	case cty.Bool:
		if v.True() {
			return "true", nil
		}
		return "false", nil
	default:
		return "", errors.Errorf("expected a string, number or bool, got %s", v.Type().FriendlyName())
	}
}

// ctyToGo converts a cty value into plain Go values: float64, string, bool,
// []any and map[string]any.
func ctyToGo(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, errors.New("value is not known")
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			g, err := ctyToGo(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
		return out, nil
	case ty.IsMapType() || ty.IsObjectType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, elem := it.Element()
			g, err := ctyToGo(elem)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = g
		}
		return out, nil
	default:
		return nil, errors.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}

// attributesValue is the `target.attributes` object in scope of input
// expressions. Attributes that parse as numbers are exposed as numbers.
func attributesValue(attrs value.Attributes) cty.Value {
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	m := make(map[string]cty.Value, len(attrs))
	for k, s := range attrs {
		if f, ok := new(big.Float).SetString(s); ok {
			m[k] = cty.NumberVal(f)
			continue
		}
		m[k] = cty.StringVal(s)
	}
	return cty.ObjectVal(m)
}
