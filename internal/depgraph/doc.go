// Package depgraph builds and represents the dependency graph of one view
// cycle.
//
// A Graph is an arena of nodes addressed by NodeID. A node is only added
// once the producers of all of its inputs exist, so ascending NodeID order is
// a valid execution order (leaves first) and descending order is a valid
// topological order (roots first). Edges are kept as adjacency lists in both
// directions; nodes hold no pointers to each other.
package depgraph
