// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the run modes of a view (one full cycle,
// live recomputation, graph inspection), decoupled from any specific
// entrypoint like a CLI or server.
package app
