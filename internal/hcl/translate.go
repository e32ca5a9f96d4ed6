// This file translates decoded HCL blocks into the format-agnostic view
// model defined in the config package.

package hcl

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/vk/viewgrid/internal/config"
	"github.com/vk/viewgrid/internal/ctxlog"
	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/marketdata"
	"github.com/vk/viewgrid/internal/value"
	"github.com/zclconf/go-cty/cty/convert"
)

func translate(ctx context.Context, root *fileRoot, view *config.View) error {
	for _, b := range root.Targets {
		t := value.NewTarget(value.TargetType(b.Type), b.ID)
		if _, dup := view.Targets[t]; dup {
			return errors.Errorf("target %s is declared twice", t)
		}
		attrs, err := stringMap(b.Attributes)
		if err != nil {
			return errors.Annotatef(err, "attributes of target %s", t)
		}
		view.Targets[t] = value.Attributes(attrs)
	}

	for _, b := range root.Functions {
		fn, err := translateFunction(ctx, b)
		if err != nil {
			return errors.Annotatef(err, "function %s", b.ID)
		}
		view.Functions = append(view.Functions, fn)
	}

	for _, b := range root.Requirements {
		t, err := value.ParseTarget(b.Target)
		if err != nil {
			return cerrors.ErrInvalidTarget.GenWithStackByArgs(b.Target)
		}
		props, err := properties(b.Constraints)
		if err != nil {
			return errors.Annotatef(err, "constraints of requirement %s on %s", b.Name, t)
		}
		view.Requirements = append(view.Requirements, value.NewRequirement(t, b.Name, props))
	}

	for _, b := range root.MarketData {
		spec, v, err := translateMarketData(ctx, b)
		if err != nil {
			return errors.Annotatef(err, "market data %s on %s", b.Name, b.Target)
		}
		view.MarketData[spec] = v
	}
	return nil
}

func translateFunction(ctx context.Context, b *functionBlock) (*config.Function, error) {
	logger := ctxlog.FromContext(ctx)
	if len(b.Outputs) == 0 {
		return nil, errors.New("a function declares at least one output")
	}

	fn := &config.Function{
		ID:             b.ID,
		TargetType:     value.TargetType(b.TargetType),
		Implementation: b.Implementation,
		Priority:       b.Priority,
		Affinity:       b.Affinity,
		Cost:           b.Cost,
	}
	for _, out := range b.Outputs {
		props, err := properties(out.Properties)
		if err != nil {
			return nil, errors.Annotatef(err, "properties of output %s", out.Name)
		}
		fn.Outputs = append(fn.Outputs, config.Output{Name: out.Name, Properties: props})
	}
	for _, in := range b.Inputs {
		props, err := properties(in.Constraints)
		if err != nil {
			return nil, errors.Annotatef(err, "constraints of input %s", in.Name)
		}
		input := config.Input{Name: in.Name, Constraints: props}
		if isExprDefined(in.Target) {
			input.Target = &targetExpr{expr: in.Target}
		}
		fn.Inputs = append(fn.Inputs, input)
	}
	logger.Debug("Translated function.", "function", fn.ID, "target_type", fn.TargetType,
		"outputs", len(fn.Outputs), "inputs", len(fn.Inputs))
	return fn, nil
}

func translateMarketData(ctx context.Context, b *marketDataBlock) (value.Specification, any, error) {
	t, err := value.ParseTarget(b.Target)
	if err != nil {
		return value.Specification{}, nil, cerrors.ErrInvalidTarget.GenWithStackByArgs(b.Target)
	}
	props, err := properties(b.Properties)
	if err != nil {
		return value.Specification{}, nil, errors.Annotate(err, "properties")
	}

	val := b.Value
	if isExprDefined(b.Type) {
		ty, err := typeExprToCtyType(ctx, b.Type)
		if err != nil {
			return value.Specification{}, nil, err
		}
		if val, err = convert.Convert(val, ty); err != nil {
			return value.Specification{}, nil, errors.Annotatef(err, "value is not a %s", ty.FriendlyName())
		}
	}
	v, err := ctyToGo(val)
	if err != nil {
		return value.Specification{}, nil, err
	}
	return marketdata.Leaf(t, b.Name, props), v, nil
}
