/*
Package flatten converts a validated pipeline graph into the set of
independent, referenceable templates that make up the workflow specification
document.

Each operation node becomes a container template and each scope group becomes
a dag template. The walk is post-order: a template is appended only after
every template it references, so the emitted document is ordered and acyclic
by construction, with the entry template last.

References that cross a scope boundary are threaded as scope inputs: the
inner template declares a parameter and the invoking task binds it in the
enclosing scope, recursively, until the scope that can see the producer. The
same mechanism carries pipeline parameters and loop item bindings downward.
*/
package flatten
