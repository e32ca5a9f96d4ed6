// Package config defines the format-agnostic model of a view definition,
// along with the Loader interface for reading it from various sources.
//
// A View lists the targets it prices, the functions it declares on top of
// the Go implementations modules register, the top-level requirements and
// the initial market data. Concrete loaders, such as for HCL, are provided
// in separate packages.
package config
