// Package gc implements a generational collection engine for a host that
// does its own allocation and reference counting.
//
// The host registers object identities with Track, mirrors reference counts
// with SetRefcount, flags finalizers with SetFinalizer and asks the engine to
// Collect. The engine never dereferences an identity: it only decides, from
// the metadata it was told about, which objects survive (and get promoted to
// an older generation), which are collectable (and are dropped from the
// registry), and which are uncollectable because they carry a finalizer
// (and are parked in the garbage set for the host to deal with).
//
// A Collector is safe for concurrent use. Mutations are serialised by one
// lock; collection admission is non-blocking, so a Collect that arrives while
// another is running fails with ErrCollectionInProgress instead of waiting.
package gc
