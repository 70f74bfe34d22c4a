// Package model holds the format-agnostic representation of everything the
// compiler consumes: component specifications and the pipeline definition.
// Binding values stay as raw hcl.Expression here; classifying them into
// literals and references is the graph builder's job, which keeps the loader
// free of dependency analysis. Component specs are immutable once loaded.
package model
