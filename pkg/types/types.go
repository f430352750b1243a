package types

import (
	"fmt"
	"regexp"
	"strings"
)

// ServerID, VirtualServerID, RegionID, SubspaceID, SpaceID, TransferID and
// IndexID are distinct identifier kinds. Zero is reserved to mean "none" in
// every kind; the coordinator's internal counter never reuses a value.
type (
	ServerID        uint64
	VirtualServerID uint64
	RegionID        uint64
	SubspaceID      uint64
	SpaceID         uint64
	TransferID      uint64
	IndexID         uint64
)

// ReturnCode is the small result vocabulary every coordinator command
// handler returns. It is never a bare Go error: handlers that fail still
// return a typed code, and state is left untouched on anything but Success.
type ReturnCode string

const (
	Success       ReturnCode = "SUCCESS"
	Malformed     ReturnCode = "MALFORMED"
	Duplicate     ReturnCode = "DUPLICATE"
	NotFound      ReturnCode = "NOT_FOUND"
	NoCanDo       ReturnCode = "NO_CAN_DO"
	Uninitialized ReturnCode = "UNINITIALIZED"
)

// ResultCode is the vocabulary a client surfaces to its caller.
type ResultCode string

const (
	RSuccess      ResultCode = "SUCCESS"
	RNotFound     ResultCode = "NOTFOUND"
	RSearchDone   ResultCode = "SEARCHDONE"
	RCmpFail      ResultCode = "CMPFAIL"
	RReadOnly     ResultCode = "READONLY"
	RUnknownSpace ResultCode = "UNKNOWNSPACE"
	RCoordFail    ResultCode = "COORDFAIL"
	RServerError  ResultCode = "SERVERERROR"
	RPollFailed   ResultCode = "POLLFAILED"
	ROverflow     ResultCode = "OVERFLOW"
	RReconfigure  ResultCode = "RECONFIGURE"
	RTimeout      ResultCode = "TIMEOUT"
	RUnknownAttr  ResultCode = "UNKNOWNATTR"
	RDupeAttr     ResultCode = "DUPEATTR"
	RNonePending  ResultCode = "NONEPENDING"
	RDontUseKey   ResultCode = "DONTUSEKEY"
	RWrongType    ResultCode = "WRONGTYPE"
	RNoMem        ResultCode = "NOMEM"
	RBadConfig    ResultCode = "BADCONFIG"
	RDuplicate    ResultCode = "DUPLICATE"
	RInterrupted  ResultCode = "INTERRUPTED"
	RClusterJump  ResultCode = "CLUSTER_JUMP"
	RCoordLogged  ResultCode = "COORD_LOGGED"
	ROffline      ResultCode = "OFFLINE"
	RInternal     ResultCode = "INTERNAL"
	RException    ResultCode = "EXCEPTION"
	RGarbage      ResultCode = "GARBAGE"
)

// ServerState is the lifecycle state of a physical server. Only Available
// servers may appear in a region's replica chain.
type ServerState string

const (
	ServerAssigned     ServerState = "ASSIGNED"
	ServerNotAvailable ServerState = "NOT_AVAILABLE"
	ServerAvailable    ServerState = "AVAILABLE"
	ServerShutdown     ServerState = "SHUTDOWN"
	ServerKilled       ServerState = "KILLED"
)

// Server is a physical storage daemon known to the coordinator.
type Server struct {
	ID     ServerID
	BindTo string
	State  ServerState
}

// Predicate is the comparison an AttributeCheck applies to a value.
type Predicate string

const (
	PredicateEquals             Predicate = "EQUALS"
	PredicateLessThan           Predicate = "LESS_THAN"
	PredicateLessEqual          Predicate = "LESS_EQUAL"
	PredicateGreaterEqual       Predicate = "GREATER_EQUAL"
	PredicateGreaterThan        Predicate = "GREATER_THAN"
	PredicateRegex              Predicate = "REGEX"
	PredicateLengthEquals       Predicate = "LENGTH_EQ"
	PredicateLengthLessEqual    Predicate = "LENGTH_LE"
	PredicateLengthGreaterEqual Predicate = "LENGTH_GE"
	PredicateContains           Predicate = "CONTAINS"
	PredicateContainsLessThan   Predicate = "CONTAINS_LESS_THAN"
	PredicateFail               Predicate = "FAIL"
)

// AttributeCheck is a single predicate clause used by conditional puts and
// by searches. Value carries the wire-level encoding defined by pkg/wire;
// Attr is the attribute's schema position.
type AttributeCheck struct {
	Attr      int
	DataType  string
	Value     []byte
	Predicate Predicate
}

// FuncallName is one of the mutation primitives a keyed write may apply.
type FuncallName string

const (
	FuncSet           FuncallName = "SET"
	FuncNumAdd        FuncallName = "NUM_ADD"
	FuncNumSub        FuncallName = "NUM_SUB"
	FuncNumMul        FuncallName = "NUM_MUL"
	FuncNumDiv        FuncallName = "NUM_DIV"
	FuncNumMod        FuncallName = "NUM_MOD"
	FuncNumAnd        FuncallName = "NUM_AND"
	FuncNumOr         FuncallName = "NUM_OR"
	FuncNumXor        FuncallName = "NUM_XOR"
	FuncStringPrepend FuncallName = "STRING_PREPEND"
	FuncStringAppend  FuncallName = "STRING_APPEND"
	FuncListLPush     FuncallName = "LIST_LPUSH"
	FuncListRPush     FuncallName = "LIST_RPUSH"
	FuncSetAdd        FuncallName = "SET_ADD"
	FuncSetRemove     FuncallName = "SET_REMOVE"
	FuncSetIntersect  FuncallName = "SET_INTERSECT"
	FuncSetUnion      FuncallName = "SET_UNION"
	FuncMapAdd        FuncallName = "MAP_ADD"
	FuncMapRemove     FuncallName = "MAP_REMOVE"
)

// Funcall is a single mutation applied to one attribute of a keyed write.
// Funcalls targeting the same attribute must form a contiguous run once
// sorted by Attr, since the primitives are not in general commutative.
type Funcall struct {
	Attr     int
	Name     FuncallName
	Arg1     []byte
	Arg1Type string
	Arg2     []byte
	Arg2Type string
}

// AuthWallet is zero or more opaque capability tokens shipped alongside a
// key change. Verification lives in pkg/wallet; this package only carries
// the bytes.
type AuthWallet struct {
	Tokens [][]byte
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is a valid C-identifier that does
// not begin with the reserved "__" prefix.
func ValidIdentifier(name string) bool {
	if strings.HasPrefix(name, "__") {
		return false
	}
	return identifierPattern.MatchString(name)
}

// Attribute is a single named, typed field of a space's schema. Position 0
// in a Schema's Attributes is always the key.
type Attribute struct {
	Name string
	Type string
}

// Schema is the ordered attribute list of a space. It is immutable within
// a space version: changing it means creating a new space version via
// space_add/space_rm, not mutating one in place.
type Schema struct {
	Attributes    []Attribute
	Authorization bool
}

// Key returns the schema's key attribute (position 0).
func (s Schema) Key() Attribute {
	return s.Attributes[0]
}

// SecondaryAttrs returns the schema's secondary attributes (positions >= 1).
func (s Schema) SecondaryAttrs() []Attribute {
	if len(s.Attributes) <= 1 {
		return nil
	}
	return s.Attributes[1:]
}

// AttrIndex returns the schema position of the named attribute, or -1.
func (s Schema) AttrIndex(name string) int {
	for i, a := range s.Attributes {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Validate checks the schema invariants from the data model: unique
// non-"__" identifiers, and that the key's type is hashable.
func (s Schema) Validate(hashableTypes map[string]bool) error {
	if len(s.Attributes) == 0 {
		return fmt.Errorf("schema has no attributes")
	}
	seen := make(map[string]bool, len(s.Attributes))
	for _, a := range s.Attributes {
		if !ValidIdentifier(a.Name) {
			return fmt.Errorf("attribute name %q is not a valid identifier", a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate attribute name %q", a.Name)
		}
		seen[a.Name] = true
	}
	if !hashableTypes[s.Attributes[0].Type] {
		return fmt.Errorf("key attribute %q has non-hashable type %q", s.Attributes[0].Name, s.Attributes[0].Type)
	}
	return nil
}

// Subspace is a projection of a space's schema onto a chosen list of
// secondary attribute indices, partitioned into regions. The first
// subspace of every space is implicit and keyed on the primary key alone:
// Attrs is empty and the region tiling degenerates to a single full-volume
// region keyed on the hashed primary key.
type Subspace struct {
	ID      SubspaceID
	Attrs   []int
	Regions []*Region
}

// Region is an axis-aligned box in a subspace's hashing volume, replicated
// by a chain of servers. LowerCoord/UpperCoord are inclusive per hashing
// dimension, one entry per Subspace.Attrs (or a single synthetic dimension
// for the implicit key subspace).
type Region struct {
	ID         RegionID
	LowerCoord []uint64
	UpperCoord []uint64
	Replicas   []Replica
}

// Replica is one link of a region's replica chain.
type Replica struct {
	Server  ServerID
	Virtual VirtualServerID
}

// PointLeader returns the head of the chain, the router target for any
// keyed operation on the region. ok is false for an offline region (an
// empty Replicas chain).
func (r *Region) PointLeader() (rep Replica, ok bool) {
	if len(r.Replicas) == 0 {
		return Replica{}, false
	}
	return r.Replicas[0], true
}

// Tail returns the last replica of the chain, the router target for
// search and aggregation operations.
func (r *Region) Tail() (rep Replica, ok bool) {
	if len(r.Replicas) == 0 {
		return Replica{}, false
	}
	return r.Replicas[len(r.Replicas)-1], true
}

// HasServer reports whether id already appears somewhere in the chain.
func (r *Region) HasServer(id ServerID) bool {
	for _, rep := range r.Replicas {
		if rep.Server == id {
			return true
		}
	}
	return false
}

// Index is a cached secondary index over one attribute, declared
// alongside a space. index_add/index_rm mutate a space's Indices list
// without moving any data (see SPEC_FULL.md §5).
type Index struct {
	ID   IndexID
	Attr int
}

// Space is a named, schema'd partition of the keyspace.
type Space struct {
	ID               SpaceID
	Name             string
	Schema           Schema
	FaultTolerance   int // R: replica chain length
	PredecessorWidth int // P: used to derive scatter width S = R*P
	Subspaces        []*Subspace
	Indices          []Index
}

// Validate checks the Space-level invariants from the data model.
func (sp *Space) Validate() error {
	if !ValidIdentifier(sp.Name) {
		return fmt.Errorf("space name %q is not a valid identifier", sp.Name)
	}
	if sp.FaultTolerance < 1 {
		return fmt.Errorf("fault_tolerance must be >= 1, got %d", sp.FaultTolerance)
	}
	secondary := sp.Schema.SecondaryAttrs()
	for _, ss := range sp.Subspaces {
		seen := make(map[int]bool, len(ss.Attrs))
		for _, idx := range ss.Attrs {
			if idx < 1 || idx > len(secondary) {
				return fmt.Errorf("subspace attribute index %d out of range", idx)
			}
			if seen[idx] {
				return fmt.Errorf("subspace has duplicate attribute index %d", idx)
			}
			seen[idx] = true
		}
	}
	return nil
}

// Transfer is created when the coordinator decides a region must gain,
// lose, or replace a replica. It becomes "live" once the chain's tail is
// DstVirtual; the older SrcVirtual can then be retired.
type Transfer struct {
	ID         TransferID
	RegionID   RegionID
	SrcServer  ServerID
	SrcVirtual VirtualServerID
	DstServer  ServerID
	DstVirtual VirtualServerID
}

// RegionIntent is the coordinator's declarative wish for a region's
// composition; transfers converge reality toward it.
type RegionIntent struct {
	RegionID        RegionID
	DesiredReplicas []Replica
	Checkpoint      uint64
}

// ConfigFlags carries configuration-wide boolean state.
type ConfigFlags struct {
	ReadOnly bool
}

// Configuration is the sole authoritative input to every routing decision
// in the system: an immutable snapshot emitted by the coordinator. Version
// strictly increases from one configuration to the next.
type Configuration struct {
	Cluster   uint64
	Version   uint64
	Flags     ConfigFlags
	Servers   []Server
	Spaces    []*Space
	Transfers []*Transfer
}

// SpaceByName returns the named space, or nil.
func (c *Configuration) SpaceByName(name string) *Space {
	for _, s := range c.Spaces {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// ServerByID returns the server, or ok=false if unknown.
func (c *Configuration) ServerByID(id ServerID) (srv Server, ok bool) {
	for _, s := range c.Servers {
		if s.ID == id {
			return s, true
		}
	}
	return Server{}, false
}
