/*
Package datatype implements the closed set of attribute types and the
predicate evaluation that runs against them.

Six leaf types (string, int64, float, timestamp, document, macaroon_secret)
and twelve container instantiations (list/set of string|int64|float, and
six string/int64-keyed maps) are each a Handler registered in a package
level table under their Type tag. Nothing in this package or its callers
ever type-switches on a Go interface to tell datatypes apart — a caller
looks up the tag once via Lookup or MustLookup and holds the Handler for
the life of the operation.

Leaf scalars are encoded big-endian; the int64, timestamp and float
handlers decode both operands in Compare, while string compares raw
bytes. Container elements follow the wire's own
little-endian layout, because containers are written once in prepare and
read once in storage — there is no per-element comparison fast path to
protect.
*/
package datatype
