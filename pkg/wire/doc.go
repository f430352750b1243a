// Package wire implements the on-the-wire byte layout of request/response
// headers and bodies: field order fixed, field widths power-of-two,
// big-endian, matching spec §6's literal contract. It replaces a
// generated gRPC/protobuf stub (unavailable in this pack) with hand-rolled
// encoding/binary framing over net.Conn. The little-endian container
// element layout is pkg/datatype's, not this package's.
package wire
