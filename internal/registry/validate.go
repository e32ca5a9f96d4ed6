package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/pingcap/errors"
	"github.com/vk/viewgrid/internal/ctxlog"
	cerrors "github.com/vk/viewgrid/internal/errors"
)

// ValidateRegistry checks that every function refers to a registered
// implementation and that no two functions compete for the same output with
// the same priority. The first problem found is returned, annotated with the
// full list.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []error
	logger := ctxlog.FromContext(ctx)

	functions := r.Functions()
	for _, d := range functions {
		if _, ok := r.invokers[d.Implementation]; !ok {
			errs = append(errs, cerrors.ErrUnknownImplementation.GenWithStackByArgs(d.ID, d.Implementation))
		}
		if len(d.Outputs) == 0 {
			logger.Warn("Function declares no outputs and can never be selected.", "function", d.ID)
		}
	}

	for i, a := range functions {
		for _, b := range functions[i+1:] {
			if a.TargetType != b.TargetType || a.Priority != b.Priority {
				continue
			}
			for _, oa := range a.Outputs {
				for _, ob := range b.Outputs {
					if oa.Name == ob.Name && oa.Properties == ob.Properties {
						errs = append(errs, cerrors.ErrAmbiguousFunction.GenWithStackByArgs(
							a.ID, b.ID, oa.Name, a.TargetType, a.Priority))
					}
				}
			}
		}
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = err.Error()
	}
	return errors.Annotate(errs[0], fmt.Sprintf("registry validation failed:\n- %s", strings.Join(lines, "\n- ")))
}
