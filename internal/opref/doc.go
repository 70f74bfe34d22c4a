/*
Package opref provides a structured, type-safe representation for the
references a pipeline author may write inside a binding expression:

	op.<name>.output.<output>   an upstream operation's declared output
	param.<name>                a pipeline-level parameter
	loop.<name>                 the current loop item binding

The package centralizes the traversal-shape rules so that the graph builder
and flattener agree on exactly which expressions count as references.
*/
package opref
