/*
Package search narrows a list of attribute checks to the per-attribute
range each one implies, the reduction pkg/client's dispatch uses to decide
which regions a search must visit instead of scanning every region in a
space.

Grounded directly on the original implementation's range-search reduction:
comparable predicates (EQUALS/LESS_THAN/LESS_EQUAL/GREATER_EQUAL/
GREATER_THAN) each contribute a one-sided or closed bound, bounds on the
same attribute are intersected, and a crossed intersection (start > end)
is reported as Invalid rather than silently treated as empty, so callers
can short-circuit a search that can never match.
*/
package search
