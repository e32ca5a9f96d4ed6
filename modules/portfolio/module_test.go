package portfolio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/value"
)

func TestSum(t *testing.T) {
	port := value.NewTarget("PORTFOLIO", "P")
	pv := func(id string) value.Specification {
		return value.NewSpecification(value.NewTarget("SWAP", id), "PresentValue", value.Properties{}, "swap-pv")
	}
	inv := &registry.Invocation{
		Target:  port,
		Inputs:  map[value.Specification]any{pv("A"): 10.0, pv("B"): 2.5, pv("C"): 1},
		Outputs: []value.Specification{value.NewSpecification(port, "PresentValue", value.Properties{}, "portfolio-pv")},
	}

	out, err := Sum(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"PresentValue": 13.5}, out)

	inv.Inputs[pv("D")] = "not a number"
	_, err = Sum(context.Background(), inv)
	assert.Error(t, err)
}
