package gc

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ID is the opaque identity of a host object. The engine compares and hashes
// it but never dereferences it; the host may reuse a value after Untrack.
type ID uintptr

// String formats the identity as a hexadecimal address.
func (id ID) String() string {
	return fmt.Sprintf("%#x", uintptr(id))
}

// NumGenerations is the number of generations the engine maintains.
const NumGenerations = 3

// DefaultTypeTag is used when the host tracks an object without a type name.
const DefaultTypeTag = "object"

// header is the engine's metadata record for one tracked identity.
type header struct {
	generation int
	refcount   int
	finalizer  bool
	inGarbage  bool
	size       int
	typeTag    string
	trackSeq   uint64 // monotonically increasing per collector, for stable ordering

	// scanning is set while the header belongs to an admitted collection;
	// mutators refuse to touch it until the pass is over.
	scanning bool
}

// Info is a copy of a tracked object's metadata.
type Info struct {
	ID         ID
	Generation int
	Refcount   int
	Finalizer  bool
	InGarbage  bool
	Size       int
	TypeTag    string
}

func (h *header) info(id ID) Info {
	return Info{
		ID:         id,
		Generation: h.generation,
		Refcount:   h.refcount,
		Finalizer:  h.finalizer,
		InGarbage:  h.inGarbage,
		Size:       h.size,
		TypeTag:    h.typeTag,
	}
}

// String renders the tracked-info line handed to the host.
func (i Info) String() string {
	return fmt.Sprintf("Object: %s (ID: %s, Gen: %d, Refs: %d, Size: %d, Finalizer: %t, Garbage: %t)",
		i.TypeTag, i.ID, i.Generation, i.Refcount, i.Size, i.Finalizer, i.InGarbage)
}

// normalizeTypeTag trims and NFC-normalises a host-supplied type name, so
// that tags arriving as decomposed UTF-8 compare equal to composed ones.
func normalizeTypeTag(tag string) string {
	tag = strings.TrimSpace(norm.NFC.String(tag))
	if tag == "" {
		return DefaultTypeTag
	}
	return tag
}
