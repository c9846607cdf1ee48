// Package types defines the vertex and edge types of the build graph, the
// rule and runner contracts, and the standard errors shared by the engine
// packages.
package types
