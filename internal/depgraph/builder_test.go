package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/marketdata"
	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/testutil"
	"github.com/vk/viewgrid/internal/value"
)

func buildGraph(t *testing.T, reqs []value.Requirement, avail Availability) (*Graph, error) {
	t.Helper()
	ctx, _ := testutil.NewContext(t)
	b := NewBuilder(testutil.SwapRegistry(t), testutil.SwapTargets())
	return b.Build(ctx, reqs, avail)
}

func TestBuild_PresentValueOnMarketDataLeaf(t *testing.T) {
	pv := testutil.Req("SWAP~A", "PresentValue")

	g, err := buildGraph(t, []value.Requirement{pv}, testutil.DiscountFactors(0.98, 0.97))
	require.NoError(t, err)
	require.Equal(t, 2, g.Len())

	leaf := g.Node(0)
	assert.True(t, leaf.MarketData)
	assert.Equal(t, marketdata.FunctionID, leaf.FunctionID)
	assert.Equal(t, []value.Specification{testutil.Leaf("CURVE~X", "DiscountFactor")}, leaf.Outputs)
	assert.Empty(t, leaf.Inputs)

	root := g.Node(1)
	assert.Equal(t, testutil.SwapPV, root.FunctionID)
	assert.Equal(t, []NodeID{0}, root.InputNodes)
	assert.Equal(t, "1000000", root.Attributes["notional"])

	spec, ok := g.Terminal(pv)
	require.True(t, ok)
	assert.Equal(t, testutil.SwapPV, spec.FunctionID)
	id, ok := g.Producer(spec)
	require.True(t, ok)
	assert.Equal(t, NodeID(1), id)
	assert.Equal(t, []value.Specification{testutil.Leaf("CURVE~X", "DiscountFactor")}, g.MarketDataLeaves())
}

func TestBuild_SharesSubRequirements(t *testing.T) {
	reqs := []value.Requirement{
		testutil.Req("PORTFOLIO~P", "PresentValue"),
		testutil.Req("SWAP~A", "PresentValue"),
		testutil.Req("SWAP~C", "PresentValue"),
	}

	g, err := buildGraph(t, reqs, testutil.DiscountFactors(0.98, 0.97))
	require.NoError(t, err)
	// DF X, PV A, DF Y, PV B, PV C, PV P
	require.Equal(t, 6, g.Len())

	seen := make(map[value.Key]NodeID)
	for _, n := range g.Nodes() {
		for _, out := range n.Outputs {
			prev, dup := seen[out.Key()]
			assert.False(t, dup, "%s is produced by nodes %d and %d", out, prev, n.ID)
			seen[out.Key()] = n.ID
		}
	}

	dfX, _ := g.Producer(testutil.Leaf("CURVE~X", "DiscountFactor"))
	assert.Len(t, g.Dependents(dfX), 2, "both swaps on CURVE~X consume the same leaf")
	assert.Equal(t, reqs, g.Requirements())
	assert.Len(t, g.TerminalOutputs(), 3)
}

func TestBuild_Orders(t *testing.T) {
	g, err := buildGraph(t, []value.Requirement{testutil.Req("PORTFOLIO~P", "PresentValue")}, testutil.DiscountFactors(0.98, 0.97))
	require.NoError(t, err)

	pos := make(map[NodeID]int)
	for i, id := range g.ExecutionOrder() {
		pos[id] = i
	}
	for _, n := range g.Nodes() {
		for _, dep := range g.Dependencies(n.ID) {
			assert.Less(t, pos[dep], pos[n.ID], "inputs execute before their dependents")
		}
	}

	topo := g.TopologicalOrder()
	assert.Equal(t, NodeID(g.Len()-1), topo[0], "the portfolio is the root")
	assert.Equal(t, NodeID(0), topo[len(topo)-1])
}

func TestBuild_ResolvesThroughFunctionsWhenNoMarketData(t *testing.T) {
	snap := marketdata.NewSnapshot(map[value.Specification]any{
		testutil.Leaf("CURVE~X", "ZeroRate"): 0.02,
	})

	g, err := buildGraph(t, []value.Requirement{testutil.Req("SWAP~A", "PresentValue")}, snap)
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())
	assert.True(t, g.Node(0).MarketData)
	assert.Equal(t, testutil.CurveDF, g.Node(1).FunctionID)
	assert.Equal(t, testutil.SwapPV, g.Node(2).FunctionID)
}

func TestBuild_Unsatisfiable(t *testing.T) {
	_, err := buildGraph(t, []value.Requirement{testutil.Req("SWAP~A", "PresentValue")}, marketdata.NewSnapshot(nil))
	require.Error(t, err)
	assert.True(t, cerrors.ErrUnsatisfiableRequirement.Equal(err))
	assert.Contains(t, err.Error(), "ZeroRate(CURVE~X)")

	_, err = buildGraph(t, []value.Requirement{testutil.Req("SWAP~A", "Gamma")}, nil)
	require.Error(t, err)
	assert.True(t, cerrors.ErrUnsatisfiableRequirement.Equal(err))
}

func cyclicRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	on := func(name string) registry.InputsFunc {
		return func(target value.Target, _ value.Attributes) ([]value.Requirement, error) {
			return []value.Requirement{value.NewRequirement(target, name, value.Properties{})}, nil
		}
	}
	require.NoError(t, r.Register(&registry.Descriptor{ID: "a", TargetType: "T", Outputs: []registry.Output{{Name: "A"}}, Inputs: on("B")}))
	require.NoError(t, r.Register(&registry.Descriptor{ID: "b", TargetType: "T", Outputs: []registry.Output{{Name: "B"}}, Inputs: on("C")}))
	require.NoError(t, r.Register(&registry.Descriptor{ID: "c", TargetType: "T", Outputs: []registry.Output{{Name: "C"}}, Inputs: on("A")}))
	require.NoError(t, r.Register(&registry.Descriptor{ID: "self", TargetType: "T", Outputs: []registry.Output{{Name: "S"}}, Inputs: on("S")}))
	return r
}

func TestBuild_CyclicDependency(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	b := NewBuilder(cyclicRegistry(t), nil)

	t.Run("three step cycle", func(t *testing.T) {
		_, err := b.Build(ctx, []value.Requirement{testutil.Req("T~1", "A")}, nil)
		require.Error(t, err)
		assert.True(t, cerrors.ErrCyclicDependency.Equal(err))
		assert.Contains(t, err.Error(), "A(T~1) -> B(T~1) -> C(T~1)")
	})

	t.Run("self reference", func(t *testing.T) {
		_, err := b.Build(ctx, []value.Requirement{testutil.Req("T~1", "S")}, nil)
		require.Error(t, err)
		assert.True(t, cerrors.ErrCyclicDependency.Equal(err))
	})

	t.Run("cycle broken by market data", func(t *testing.T) {
		snap := marketdata.NewSnapshot(map[value.Specification]any{testutil.Leaf("T~1", "C"): 1.0})
		g, err := b.Build(ctx, []value.Requirement{testutil.Req("T~1", "A")}, snap)
		require.NoError(t, err)
		assert.Equal(t, 3, g.Len())
	})
}

func TestBuild_CandidateSelection(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	usd := value.NewProperties(map[string]string{"currency": "USD"})
	eur := value.NewProperties(map[string]string{"currency": "EUR"})

	r := registry.New()
	require.NoError(t, r.Register(&registry.Descriptor{ID: "eur-low", TargetType: "T", Outputs: []registry.Output{{Name: "V", Properties: eur}}}))
	require.NoError(t, r.Register(&registry.Descriptor{ID: "usd-high", TargetType: "T", Priority: 10, Outputs: []registry.Output{{Name: "V", Properties: usd}}}))
	require.NoError(t, r.Register(&registry.Descriptor{
		ID: "broken-top", TargetType: "T", Priority: 20,
		Outputs: []registry.Output{{Name: "W"}},
		Inputs: func(target value.Target, _ value.Attributes) ([]value.Requirement, error) {
			return []value.Requirement{value.NewRequirement(target, "Missing", value.Properties{})}, nil
		},
	}))
	require.NoError(t, r.Register(&registry.Descriptor{ID: "fallback", TargetType: "T", Outputs: []registry.Output{{Name: "W"}}}))
	b := NewBuilder(r, nil)

	t.Run("highest priority wins", func(t *testing.T) {
		g, err := b.Build(ctx, []value.Requirement{testutil.Req("T~1", "V")}, nil)
		require.NoError(t, err)
		spec, _ := g.Terminal(testutil.Req("T~1", "V"))
		assert.Equal(t, "usd-high", spec.FunctionID)
	})

	t.Run("constraints filter candidates", func(t *testing.T) {
		req := value.NewRequirement(testutil.Target("T~1"), "V", eur)
		g, err := b.Build(ctx, []value.Requirement{req}, nil)
		require.NoError(t, err)
		spec, _ := g.Terminal(req)
		assert.Equal(t, "eur-low", spec.FunctionID)
		assert.Equal(t, eur, spec.Properties)
	})

	t.Run("first match is not backtracked", func(t *testing.T) {
		_, err := b.Build(ctx, []value.Requirement{testutil.Req("T~1", "W")}, nil)
		require.Error(t, err)
		assert.True(t, cerrors.ErrUnsatisfiableRequirement.Equal(err))
	})
}

func TestBuild_MultiOutputNode(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	r := registry.New()
	require.NoError(t, r.Register(&registry.Descriptor{
		ID: "greeks", TargetType: "OPTION",
		Outputs: []registry.Output{{Name: "Delta"}, {Name: "Gamma"}},
	}))

	reqs := []value.Requirement{testutil.Req("OPTION~O", "Delta"), testutil.Req("OPTION~O", "Gamma")}
	g, err := NewBuilder(r, nil).Build(ctx, reqs, nil)
	require.NoError(t, err)
	require.Equal(t, 1, g.Len())
	assert.Len(t, g.Node(0).Outputs, 2)

	delta, _ := g.Terminal(reqs[0])
	gamma, _ := g.Terminal(reqs[1])
	dp, _ := g.Producer(delta)
	gp, _ := g.Producer(gamma)
	assert.Equal(t, dp, gp)
}

func TestBuild_InputsError(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	_, err := NewBuilder(testutil.SwapRegistry(t), testutil.SwapTargets()).
		Build(ctx, []value.Requirement{testutil.Req("PORTFOLIO~Q", "PresentValue")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "computing inputs of portfolio-pv on PORTFOLIO~Q")
}
