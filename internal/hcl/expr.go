package hcl

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/pingcap/errors"
	"github.com/vk/viewgrid/internal/config"
	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/value"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"
)

// functions available to input target expressions.
var functions = map[string]function.Function{
	"split":     stdlib.SplitFunc,
	"join":      stdlib.JoinFunc,
	"upper":     stdlib.UpperFunc,
	"lower":     stdlib.LowerFunc,
	"trimspace": stdlib.TrimSpaceFunc,
	"format":    stdlib.FormatFunc,
}

// targetExpr is an input target expression.
type targetExpr struct {
	expr hcl.Expression
}

var _ config.TargetExpr = (*targetExpr)(nil)

// Evaluate implements config.TargetExpr.
func (e *targetExpr) Evaluate(target value.Target, attrs value.Attributes) ([]value.Target, error) {
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"target": cty.ObjectVal(map[string]cty.Value{
				"type":       cty.StringVal(string(target.Type)),
				"id":         cty.StringVal(target.ID),
				"attributes": attributesValue(attrs),
			}),
		},
		Functions: functions,
	}
	v, diags := e.expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, errors.Trace(diags)
	}

	var raw []string
	switch {
	case v.Type() == cty.String:
		raw = []string{v.AsString()}
	case v.Type().IsListType() || v.Type().IsTupleType() || v.Type().IsSetType():
		list, err := convert.Convert(v, cty.List(cty.String))
		if err != nil {
			return nil, errors.Annotate(err, "input target list")
		}
		if err := gocty.FromCtyValue(list, &raw); err != nil {
			return nil, errors.Annotate(err, "input target list")
		}
	default:
		return nil, errors.Errorf("input target must be a string or a list of strings, got %s", v.Type().FriendlyName())
	}

	out := make([]value.Target, 0, len(raw))
	for _, s := range raw {
		t, err := value.ParseTarget(s)
		if err != nil {
			return nil, cerrors.ErrInvalidTarget.GenWithStackByArgs(s)
		}
		out = append(out, t)
	}
	return out, nil
}
