// Command libgengc builds the engine as a C shared library:
//
//	go build -buildmode=c-shared -o libgengc.so ./cmd/libgengc
//
// Hosts include include/gengc.h. Object pointers are used as identities
// only and are never dereferenced.
package main

/*
#include <stdint.h>
#include <stddef.h>

typedef struct {
    int32_t total_tracked;
    int32_t generation_counts[3];
    int32_t uncollectable;
} gengc_stats_t;
*/
import "C"

import (
	"unsafe"

	"gengc/internal/abi"
)

func main() {}

func status(s abi.Status) C.int32_t { return C.int32_t(s) }

func boolean(b bool) C.int32_t {
	if b {
		return 1
	}
	return 0
}

func buffer(buf *C.char, size C.size_t) []byte {
	if buf == nil || size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(size))
}

// ids views a host array of object pointers. Only integers are stored into
// it, so the Go collector never sees a foreign pointer.
func ids(out *unsafe.Pointer, capacity C.size_t) []uintptr {
	if out == nil || capacity == 0 {
		return nil
	}
	return unsafe.Slice((*uintptr)(unsafe.Pointer(out)), int(capacity))
}

func listed(n int, st abi.Status, count *C.size_t) C.int32_t {
	if count != nil {
		*count = C.size_t(n)
	}
	return status(st)
}

//export gengc_init
func gengc_init() C.int32_t { return status(abi.Default.Init()) }

//export gengc_cleanup
func gengc_cleanup() C.int32_t { return status(abi.Default.Cleanup()) }

//export gengc_is_initialized
func gengc_is_initialized() C.int32_t { return boolean(abi.Default.IsInitialized()) }

//export gengc_enable
func gengc_enable() C.int32_t { return status(abi.Default.Enable()) }

//export gengc_disable
func gengc_disable() C.int32_t { return status(abi.Default.Disable()) }

//export gengc_is_enabled
func gengc_is_enabled() C.int32_t { return boolean(abi.Default.IsEnabled()) }

//export gengc_track
func gengc_track(obj unsafe.Pointer) C.int32_t {
	return status(abi.Default.Track(uintptr(obj)))
}

//export gengc_track_typed
func gengc_track_typed(obj unsafe.Pointer, typeName *C.char, size C.size_t) C.int32_t {
	name := ""
	if typeName != nil {
		name = C.GoString(typeName)
	}
	return status(abi.Default.TrackTyped(uintptr(obj), name, uint64(size)))
}

//export gengc_untrack
func gengc_untrack(obj unsafe.Pointer) C.int32_t {
	return status(abi.Default.Untrack(uintptr(obj)))
}

//export gengc_is_tracked
func gengc_is_tracked(obj unsafe.Pointer) C.int32_t {
	return boolean(abi.Default.IsTracked(uintptr(obj)))
}

//export gengc_get_object_size
func gengc_get_object_size(obj unsafe.Pointer) C.size_t {
	return C.size_t(abi.Default.ObjectSize(uintptr(obj)))
}

//export gengc_get_object_type_name
func gengc_get_object_type_name(obj unsafe.Pointer, buf *C.char, size C.size_t) C.int32_t {
	return status(abi.Default.ObjectTypeName(uintptr(obj), buffer(buf, size)))
}

//export gengc_get_tracked_info
func gengc_get_tracked_info(obj unsafe.Pointer, buf *C.char, size C.size_t) C.int32_t {
	return status(abi.Default.TrackedInfo(uintptr(obj), buffer(buf, size)))
}

//export gengc_set_finalizer
func gengc_set_finalizer(obj unsafe.Pointer, has C.int32_t) C.int32_t {
	return status(abi.Default.SetFinalizer(uintptr(obj), has != 0))
}

//export gengc_has_finalizer
func gengc_has_finalizer(obj unsafe.Pointer) C.int32_t {
	return boolean(abi.Default.HasFinalizer(uintptr(obj)))
}

//export gengc_set_refcount
func gengc_set_refcount(obj unsafe.Pointer, refcount C.int64_t) C.int32_t {
	return status(abi.Default.SetRefcount(uintptr(obj), int64(refcount)))
}

//export gengc_get_refcount
func gengc_get_refcount(obj unsafe.Pointer) C.int64_t {
	return C.int64_t(abi.Default.Refcount(uintptr(obj)))
}

//export gengc_refcount_changed
func gengc_refcount_changed(obj unsafe.Pointer, refcount C.int64_t) C.int32_t {
	return status(abi.Default.RefcountChanged(uintptr(obj), int64(refcount)))
}

//export gengc_add_reference
func gengc_add_reference(from, to unsafe.Pointer) C.int32_t {
	return status(abi.Default.AddReference(uintptr(from), uintptr(to)))
}

//export gengc_remove_reference
func gengc_remove_reference(from, to unsafe.Pointer) C.int32_t {
	return status(abi.Default.RemoveReference(uintptr(from), uintptr(to)))
}

//export gengc_set_threshold
func gengc_set_threshold(generation, threshold C.int32_t) C.int32_t {
	return status(abi.Default.SetThreshold(int32(generation), int32(threshold)))
}

//export gengc_get_threshold
func gengc_get_threshold(generation C.int32_t) C.int32_t {
	return C.int32_t(abi.Default.Threshold(int32(generation)))
}

//export gengc_collect
func gengc_collect() C.int32_t { return status(abi.Default.Collect()) }

//export gengc_collect_generation
func gengc_collect_generation(generation C.int32_t) C.int32_t {
	return status(abi.Default.CollectGeneration(int32(generation)))
}

//export gengc_collect_if_needed
func gengc_collect_if_needed() C.int32_t { return status(abi.Default.CollectIfNeeded()) }

//export gengc_needs_collection
func gengc_needs_collection() C.int32_t { return boolean(abi.Default.NeedsCollection()) }

//export gengc_get_last_collected
func gengc_get_last_collected() C.int32_t { return C.int32_t(abi.Default.LastCollected()) }

//export gengc_get_stats
func gengc_get_stats(out *C.gengc_stats_t) C.int32_t {
	if out == nil {
		return status(abi.StatusInternal)
	}
	var st abi.Stats
	if s := abi.Default.Stats(&st); s != abi.StatusSuccess {
		return status(s)
	}
	out.total_tracked = C.int32_t(st.TotalTracked)
	for g, n := range st.GenerationCounts {
		out.generation_counts[g] = C.int32_t(n)
	}
	out.uncollectable = C.int32_t(st.Uncollectable)
	return status(abi.StatusSuccess)
}

//export gengc_get_count
func gengc_get_count() C.int32_t { return C.int32_t(abi.Default.Count()) }

//export gengc_get_generation_count
func gengc_get_generation_count(generation C.int32_t) C.int32_t {
	return C.int32_t(abi.Default.GenerationCount(int32(generation)))
}

//export gengc_get_uncollectable_count
func gengc_get_uncollectable_count() C.int32_t {
	return C.int32_t(abi.Default.UncollectableCount())
}

//export gengc_is_uncollectable
func gengc_is_uncollectable(obj unsafe.Pointer) C.int32_t {
	return boolean(abi.Default.IsUncollectable(uintptr(obj)))
}

//export gengc_mark_uncollectable
func gengc_mark_uncollectable(obj unsafe.Pointer) C.int32_t {
	return status(abi.Default.MarkUncollectable(uintptr(obj)))
}

//export gengc_unmark_uncollectable
func gengc_unmark_uncollectable(obj unsafe.Pointer) C.int32_t {
	return status(abi.Default.UnmarkUncollectable(uintptr(obj)))
}

//export gengc_clear_uncollectable
func gengc_clear_uncollectable() C.int32_t { return status(abi.Default.ClearUncollectable()) }

//export gengc_get_collection_count
func gengc_get_collection_count(generation C.int32_t) C.int32_t {
	return C.int32_t(abi.Default.CollectionCount(int32(generation)))
}

//export gengc_get_state_string
func gengc_get_state_string(buf *C.char, size C.size_t) C.int32_t {
	return status(abi.Default.StateString(buffer(buf, size)))
}

//export gengc_debug_state
func gengc_debug_state() C.int32_t { return status(abi.Default.DebugState()) }

//export gengc_set_debug_flags
func gengc_set_debug_flags(flags C.int32_t) C.int32_t {
	return status(abi.Default.SetDebugFlags(int32(flags)))
}

//export gengc_get_debug_flags
func gengc_get_debug_flags() C.int32_t { return C.int32_t(abi.Default.DebugFlags()) }

//export gengc_save_snapshot
func gengc_save_snapshot(path *C.char) C.int32_t {
	if path == nil {
		return status(abi.StatusInternal)
	}
	return status(abi.Default.SaveSnapshot(C.GoString(path)))
}

//export gengc_load_snapshot
func gengc_load_snapshot(path *C.char) C.int32_t {
	if path == nil {
		return status(abi.StatusInternal)
	}
	return status(abi.Default.LoadSnapshot(C.GoString(path)))
}

//export gengc_get_objects
func gengc_get_objects(generation C.int32_t, out *unsafe.Pointer, capacity C.size_t, count *C.size_t) C.int32_t {
	n, st := abi.Default.GetObjects(int32(generation), ids(out, capacity))
	return listed(n, st, count)
}

//export gengc_get_garbage
func gengc_get_garbage(out *unsafe.Pointer, capacity C.size_t, count *C.size_t) C.int32_t {
	n, st := abi.Default.GetGarbage(ids(out, capacity))
	return listed(n, st, count)
}

//export gengc_get_referents
func gengc_get_referents(obj unsafe.Pointer, out *unsafe.Pointer, capacity C.size_t, count *C.size_t) C.int32_t {
	n, st := abi.Default.GetReferents(uintptr(obj), ids(out, capacity))
	return listed(n, st, count)
}

//export gengc_get_referrers
func gengc_get_referrers(obj unsafe.Pointer, out *unsafe.Pointer, capacity C.size_t, count *C.size_t) C.int32_t {
	n, st := abi.Default.GetReferrers(uintptr(obj), ids(out, capacity))
	return listed(n, st, count)
}
