/*
Package hyperspace turns attribute values into the coordinates a subspace's
regions are keyed by, and answers the box-containment and tiling questions
the coordinator and client both need: which region owns a given point, and
whether a range could intersect a given region at all.

Grounded on the original implementation's space/subspace/region structures
(coordinate boxes with inclusive per-attribute bounds) but holds no state
of its own — callers pass in a *types.Subspace snapshot from the current
Configuration and get back answers, matching the pointer-swap-immutability
discipline the rest of the tree follows.
*/
package hyperspace
