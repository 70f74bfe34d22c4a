/*
Package graph reconstructs the explicit dependency graph of a pipeline from
its traced definition.

The builder performs a single left-to-right trace over the pipeline body.
Each op invocation becomes a Node; data-dependency edges are inferred from
bindings that reference an upstream operation's output, and ordering-only
edges come from explicit `after` directives. Control-flow brackets
(condition, loop, exit_handler) become Scopes forming an exclusive-ownership
tree around their operations.

Forward references are rejected: a binding may only reference operations
already traced in the current or an enclosing scope. Duplicate human-chosen
names within a scope do not fail compilation; they are deterministically
suffixed (-2, -3, ...).
*/
package graph
