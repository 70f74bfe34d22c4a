// Package hcl implements the HCL-specific definition loader. It discovers
// and parses component manifests and pipeline files, then translates them
// into the format-agnostic model consumed by the graph builder.
package hcl
