package app

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/vk/viewgrid/internal/depgraph"
	"github.com/vk/viewgrid/internal/value"
	"github.com/vk/viewgrid/internal/viewcycle"
)

// printCycle writes the outcome of every top-level requirement of c.
func printCycle(w io.Writer, c *viewcycle.Cycle) {
	meta := c.Metadata()
	fmt.Fprintf(w, "cycle %s (%s, snapshot %d, %d nodes)\n", meta.ID, meta.Kind, meta.SnapshotVersion, meta.Nodes)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REQUIREMENT\tVALUE\tCOMPUTE NODE")
	for _, r := range c.Graph().Requirements() {
		spec, o, ok := c.Lookup(r)
		switch {
		case !ok:
			fmt.Fprintf(tw, "%s\t-\t-\n", r)
		case o.Failed():
			fmt.Fprintf(tw, "%s\tFAILED: %s\t%s\n", r, o.Failure, computeNode(c, spec))
		default:
			fmt.Fprintf(tw, "%s\t%s\t%s\n", r, formatValue(o.Value), computeNode(c, spec))
		}
	}
	_ = tw.Flush()
}

func computeNode(c *viewcycle.Cycle, spec value.Specification) string {
	e, ok := c.Execution(spec)
	if !ok || e.ComputeNode.IsZero() {
		return "-"
	}
	return e.ComputeNode.String()
}

// formatValue renders floats to six decimals without trailing zeros.
func formatValue(v any) string {
	f, ok := v.(float64)
	if !ok {
		return fmt.Sprint(v)
	}
	s := strconv.FormatFloat(f, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// printGraph writes the nodes of g in execution order.
func printGraph(w io.Writer, g *depgraph.Graph) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tFUNCTION\tTARGET\tOUTPUTS\tDEPENDS ON")
	for _, id := range g.ExecutionOrder() {
		n := g.Node(id)
		outputs := make([]string, len(n.Outputs))
		for i, out := range n.Outputs {
			outputs[i] = out.Name
		}
		deps := make([]string, 0, len(g.Dependencies(id)))
		for _, d := range g.Dependencies(id) {
			deps = append(deps, fmt.Sprint(d))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", id, n.FunctionID, n.Target, strings.Join(outputs, ","), strings.Join(deps, ","))
	}
	_ = tw.Flush()
}
