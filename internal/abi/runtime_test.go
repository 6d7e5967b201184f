package abi_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gengc/internal/abi"
	"gengc/internal/gc"
	"gengc/internal/trace"
)

func initRuntime(t *testing.T) *abi.Runtime {
	t.Helper()
	t.Setenv(abi.ConfigEnv, "")
	r := &abi.Runtime{}
	require.Equal(t, abi.StatusSuccess, r.Init())
	t.Cleanup(func() { r.Cleanup() })
	return r
}

func cstring(buf []byte) string {
	if i := strings.IndexByte(string(buf), 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}

func TestUninitialisedRuntime(t *testing.T) {
	r := &abi.Runtime{}
	buf := make([]byte, 64)
	buf[0] = 'x'

	assert.False(t, r.IsInitialized())
	assert.Equal(t, abi.StatusSuccess, r.Cleanup(), "cleanup is idempotent")
	assert.Equal(t, abi.StatusInternal, r.Track(1))
	assert.Equal(t, abi.StatusInternal, r.Collect())
	assert.Equal(t, abi.StatusInternal, r.Enable())
	assert.Equal(t, abi.StatusInternal, r.StateString(buf))
	assert.Equal(t, "", cstring(buf))
	assert.False(t, r.IsTracked(1))
	assert.False(t, r.IsEnabled())
	assert.False(t, r.NeedsCollection())
	assert.Equal(t, int32(-1), r.Count())
	assert.Equal(t, int32(-1), r.GenerationCount(0))
	assert.Equal(t, int32(-1), r.Threshold(0))
	assert.Equal(t, int32(-1), r.UncollectableCount())
	assert.Equal(t, int64(abi.StatusInternal), r.Refcount(1))
	assert.Equal(t, uint64(0), r.ObjectSize(1))

	var st abi.Stats
	assert.Equal(t, abi.StatusInternal, r.Stats(&st))
}

func TestStatusMapping(t *testing.T) {
	r := initRuntime(t)

	require.Equal(t, abi.StatusSuccess, r.Track(0x1000))
	assert.Equal(t, abi.StatusAlreadyTracked, r.Track(0x1000))
	assert.Equal(t, abi.StatusNotTracked, r.Untrack(0x2000))
	assert.Equal(t, abi.StatusInvalidGeneration, r.CollectGeneration(3))
	assert.Equal(t, abi.StatusInvalidGeneration, r.SetThreshold(3, 1))
	assert.Equal(t, int32(-1), r.Threshold(3))
	assert.Equal(t, abi.StatusInternal, r.Track(0), "null pointer")
	assert.Equal(t, abi.StatusInternal, r.SetRefcount(0x1000, -1))
	assert.Equal(t, abi.StatusInternal, r.SetThreshold(0, -1))
	assert.Equal(t, abi.StatusInternal, r.SetDebugFlags(-1))
	assert.Equal(t, "GENGC_ERROR_NOT_TRACKED", abi.StatusNotTracked.String())
	assert.Equal(t, abi.StatusCollectionInProgress, abi.StatusOf(gc.ErrCollectionInProgress))
}

func TestScenarioThroughRuntime(t *testing.T) {
	r := initRuntime(t)

	require.Equal(t, abi.StatusSuccess, r.TrackTyped(0x10, "list", 64))
	require.Equal(t, abi.StatusSuccess, r.TrackTyped(0x20, "file", 32))
	require.Equal(t, abi.StatusSuccess, r.SetFinalizer(0x20, true))
	require.Equal(t, abi.StatusSuccess, r.Collect())

	assert.Equal(t, int32(1), r.LastCollected())
	assert.False(t, r.IsTracked(0x10))
	assert.True(t, r.IsTracked(0x20))
	assert.True(t, r.IsUncollectable(0x20))
	assert.True(t, r.HasFinalizer(0x20))
	assert.Equal(t, int32(1), r.UncollectableCount())
	assert.Equal(t, uint64(32), r.ObjectSize(0x20))
	assert.Equal(t, int32(1), r.CollectionCount(2))

	var st abi.Stats
	require.Equal(t, abi.StatusSuccess, r.Stats(&st))
	assert.Equal(t, abi.Stats{TotalTracked: 1, GenerationCounts: [3]int32{1, 0, 0}, Uncollectable: 1}, st)

	require.Equal(t, abi.StatusSuccess, r.ClearUncollectable())
	assert.Equal(t, int32(0), r.UncollectableCount())
}

func TestBuffers(t *testing.T) {
	r := initRuntime(t)
	require.Equal(t, abi.StatusSuccess, r.TrackTyped(0x2a, "dict", 8))

	buf := make([]byte, 5)
	require.Equal(t, abi.StatusSuccess, r.ObjectTypeName(0x2a, buf))
	assert.Equal(t, []byte("dict\x00"), buf)

	small := []byte("zzzz")
	assert.Equal(t, abi.StatusInternal, r.ObjectTypeName(0x2a, small))
	assert.Equal(t, byte(0), small[0], "too-small buffer must hold an empty string")

	info := make([]byte, 256)
	require.Equal(t, abi.StatusSuccess, r.TrackedInfo(0x2a, info))
	assert.Equal(t, "Object: dict (ID: 0x2a, Gen: 0, Refs: 0, Size: 8, Finalizer: false, Garbage: false)", cstring(info))
	assert.Equal(t, abi.StatusNotTracked, r.TrackedInfo(0x99, info))
	assert.Equal(t, "", cstring(info))

	state := make([]byte, 256)
	require.Equal(t, abi.StatusSuccess, r.StateString(state))
	assert.Equal(t, "gc: enabled=true collecting=false tracked=1 gen0=1 gen1=0 gen2=0 uncollectable=0 thresholds=700/10/10", cstring(state))

	assert.Equal(t, abi.StatusInternal, r.StateString(nil))
}

func TestRefcountChangedTriggersCollection(t *testing.T) {
	r := initRuntime(t)
	require.Equal(t, abi.StatusSuccess, r.SetThreshold(0, 2))
	require.Equal(t, abi.StatusSuccess, r.Track(1))
	require.Equal(t, abi.StatusSuccess, r.Track(2))
	require.Equal(t, abi.StatusSuccess, r.SetRefcount(1, 1))
	require.True(t, r.NeedsCollection())

	require.Equal(t, abi.StatusSuccess, r.RefcountChanged(2, 3))
	assert.True(t, r.NeedsCollection(), "a non-zero count must not collect")

	require.Equal(t, abi.StatusSuccess, r.Disable())
	require.Equal(t, abi.StatusSuccess, r.RefcountChanged(2, 0))
	assert.True(t, r.IsTracked(2), "disabled runtime must not collect")

	require.Equal(t, abi.StatusSuccess, r.Enable())
	require.Equal(t, abi.StatusSuccess, r.RefcountChanged(2, 0))
	assert.False(t, r.IsTracked(2))
	assert.Equal(t, int32(1), r.LastCollected())
	assert.Equal(t, int32(1), r.GenerationCount(1))
	assert.Equal(t, int64(1), r.Refcount(1))
}

func TestGettersOnUnknownObjects(t *testing.T) {
	r := initRuntime(t)
	assert.Equal(t, int64(abi.StatusNotTracked), r.Refcount(0x99))
	assert.Equal(t, int64(abi.StatusInternal), r.Refcount(0))
	assert.Equal(t, uint64(0), r.ObjectSize(0x99))
	assert.False(t, r.IsTracked(0x99))

	require.Equal(t, abi.StatusSuccess, r.Track(0x99))
	assert.Equal(t, int64(0), r.Refcount(0x99), "fresh objects start at zero")
	require.Equal(t, abi.StatusSuccess, r.SetRefcount(0x99, 4))
	assert.Equal(t, int64(4), r.Refcount(0x99))
}

func TestReferencesAndEdgesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gengc.toml")
	require.NoError(t, os.WriteFile(path, []byte("reachability = \"edges\"\n[debug]\noutput = \"discard\"\n"), 0o600))
	t.Setenv(abi.ConfigEnv, path)

	r := &abi.Runtime{}
	require.Equal(t, abi.StatusSuccess, r.Init())
	defer r.Cleanup()

	for _, id := range []uintptr{1, 2} {
		require.Equal(t, abi.StatusSuccess, r.Track(id))
		require.Equal(t, abi.StatusSuccess, r.SetRefcount(id, 1))
	}
	require.Equal(t, abi.StatusSuccess, r.AddReference(1, 2))
	require.Equal(t, abi.StatusSuccess, r.AddReference(2, 1))
	require.Equal(t, abi.StatusSuccess, r.Collect())
	assert.Equal(t, int32(2), r.LastCollected())
	assert.Equal(t, abi.StatusInternal, r.AddReference(0, 1))
	assert.Equal(t, abi.StatusSuccess, r.DebugState())
}

func TestInitWithBrokenConfigKeepsState(t *testing.T) {
	r := initRuntime(t)
	require.Equal(t, abi.StatusSuccess, r.Track(7))

	t.Setenv(abi.ConfigEnv, filepath.Join(t.TempDir(), "missing.toml"))
	assert.Equal(t, abi.StatusInternal, r.Init())
	assert.True(t, r.IsTracked(7))

	t.Setenv(abi.ConfigEnv, "")
	require.Equal(t, abi.StatusSuccess, r.Init())
	assert.False(t, r.IsTracked(7), "init replaces the instance")
}

type closeCounter struct {
	trace.Tracer
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestStartReleasesTracerOnFailure(t *testing.T) {
	r := initRuntime(t)
	require.Equal(t, abi.StatusSuccess, r.Track(7))

	bad := gc.DefaultConfig()
	bad.Thresholds[1] = -1
	rejected := &closeCounter{Tracer: trace.Nop}
	bad.Tracer = rejected
	assert.Equal(t, abi.StatusInternal, r.Start(bad))
	assert.Equal(t, 1, rejected.closed)
	assert.True(t, r.IsTracked(7), "failed start keeps the previous collector")

	kept := &closeCounter{Tracer: trace.Nop}
	good := gc.DefaultConfig()
	good.Tracer = kept
	require.Equal(t, abi.StatusSuccess, r.Start(good))
	assert.Zero(t, kept.closed)
	require.Equal(t, abi.StatusSuccess, r.Cleanup())
	assert.Equal(t, 1, kept.closed)
}

func TestDebugFlagsAndSnapshot(t *testing.T) {
	r := initRuntime(t)
	require.Equal(t, abi.StatusSuccess, r.SetDebugFlags(int32(gc.FlagStats|gc.FlagLeak)))
	assert.Equal(t, int32(65), r.DebugFlags())
	require.Equal(t, abi.StatusSuccess, r.SetDebugFlags(0))

	require.Equal(t, abi.StatusSuccess, r.TrackTyped(3, "tuple", 24))
	path := filepath.Join(t.TempDir(), "state.gcsnap")
	require.Equal(t, abi.StatusSuccess, r.SaveSnapshot(path))

	snap, err := gc.ReadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, snap.Objects, 1)
	assert.Equal(t, "tuple", snap.Objects[0].Type)
	assert.Equal(t, abi.StatusInternal, r.SaveSnapshot(""))
}

func TestListings(t *testing.T) {
	r := initRuntime(t)
	for _, id := range []uintptr{0x10, 0x20, 0x30} {
		require.Equal(t, abi.StatusSuccess, r.Track(id))
		require.Equal(t, abi.StatusSuccess, r.SetRefcount(id, 1))
	}
	require.Equal(t, abi.StatusSuccess, r.CollectGeneration(0))
	require.Equal(t, abi.StatusSuccess, r.Track(0x40))
	require.Equal(t, abi.StatusSuccess, r.SetFinalizer(0x40, true))
	require.Equal(t, abi.StatusSuccess, r.AddReference(0x10, 0x30))
	require.Equal(t, abi.StatusSuccess, r.AddReference(0x20, 0x30))
	require.Equal(t, abi.StatusSuccess, r.AddReference(0x10, 0x30))

	out := make([]uintptr, 8)
	n, st := r.GetObjects(-1, out)
	require.Equal(t, abi.StatusSuccess, st)
	assert.Equal(t, []uintptr{0x40, 0x10, 0x20, 0x30}, out[:n])

	n, st = r.GetObjects(1, out)
	require.Equal(t, abi.StatusSuccess, st)
	assert.Equal(t, []uintptr{0x10, 0x20, 0x30}, out[:n])

	_, st = r.GetObjects(3, out)
	assert.Equal(t, abi.StatusInvalidGeneration, st)

	short := []uintptr{0xdead}
	n, st = r.GetObjects(-1, short)
	assert.Equal(t, abi.StatusInternal, st)
	assert.Equal(t, 4, n, "the needed length is reported")
	assert.Equal(t, uintptr(0xdead), short[0], "a short buffer is left alone")
	n, st = r.GetObjects(-1, nil)
	assert.Equal(t, abi.StatusInternal, st)
	assert.Equal(t, 4, n)

	n, st = r.GetReferents(0x10, out)
	require.Equal(t, abi.StatusSuccess, st)
	assert.Equal(t, []uintptr{0x30}, out[:n])
	n, st = r.GetReferrers(0x30, out)
	require.Equal(t, abi.StatusSuccess, st)
	assert.Equal(t, []uintptr{0x10, 0x20}, out[:n])
	n, st = r.GetReferrers(0x10, nil)
	assert.Equal(t, abi.StatusSuccess, st, "an empty listing fits any buffer")
	assert.Zero(t, n)
	_, st = r.GetReferents(0x99, out)
	assert.Equal(t, abi.StatusNotTracked, st)
	_, st = r.GetReferrers(0, out)
	assert.Equal(t, abi.StatusInternal, st)

	require.Equal(t, abi.StatusSuccess, r.SetRefcount(0x40, 0))
	require.Equal(t, abi.StatusSuccess, r.CollectGeneration(0))
	n, st = r.GetGarbage(out)
	require.Equal(t, abi.StatusSuccess, st)
	assert.Equal(t, []uintptr{0x40}, out[:n])
}

func TestMarkUncollectable(t *testing.T) {
	r := initRuntime(t)
	require.Equal(t, abi.StatusSuccess, r.Track(0x10))
	require.Equal(t, abi.StatusSuccess, r.MarkUncollectable(0x10))
	assert.True(t, r.IsUncollectable(0x10))
	assert.Equal(t, int32(1), r.UncollectableCount())

	require.Equal(t, abi.StatusSuccess, r.Collect())
	assert.True(t, r.IsTracked(0x10), "marked objects survive collection")

	require.Equal(t, abi.StatusSuccess, r.UnmarkUncollectable(0x10))
	assert.False(t, r.IsUncollectable(0x10))
	require.Equal(t, abi.StatusSuccess, r.Collect())
	assert.False(t, r.IsTracked(0x10))

	assert.Equal(t, abi.StatusNotTracked, r.MarkUncollectable(0x10))
	assert.Equal(t, abi.StatusInternal, r.UnmarkUncollectable(0))
}

func TestLoadSnapshotRoundTrip(t *testing.T) {
	r := initRuntime(t)
	require.Equal(t, abi.StatusSuccess, r.TrackTyped(0x10, "list", 64))
	require.Equal(t, abi.StatusSuccess, r.Track(0x20))
	require.Equal(t, abi.StatusSuccess, r.SetRefcount(0x10, 2))
	require.Equal(t, abi.StatusSuccess, r.AddReference(0x10, 0x20))
	require.Equal(t, abi.StatusSuccess, r.SetThreshold(1, 25))
	path := filepath.Join(t.TempDir(), "state.gcsnap")
	require.Equal(t, abi.StatusSuccess, r.SaveSnapshot(path))

	fresh := initRuntime(t)
	require.Equal(t, abi.StatusSuccess, fresh.Track(0x99))
	require.Equal(t, abi.StatusSuccess, fresh.LoadSnapshot(path))
	assert.False(t, fresh.IsTracked(0x99), "load replaces the registry")
	assert.True(t, fresh.IsTracked(0x10))
	assert.Equal(t, int64(2), fresh.Refcount(0x10))
	assert.Equal(t, uint64(64), fresh.ObjectSize(0x10))
	assert.Equal(t, int32(25), fresh.Threshold(1))
	out := make([]uintptr, 2)
	n, st := fresh.GetReferrers(0x20, out)
	require.Equal(t, abi.StatusSuccess, st)
	assert.Equal(t, []uintptr{0x10}, out[:n])

	assert.Equal(t, abi.StatusInternal, fresh.LoadSnapshot(filepath.Join(t.TempDir(), "missing.gcsnap")))
	assert.Equal(t, abi.StatusInternal, fresh.LoadSnapshot(""))
	assert.True(t, fresh.IsTracked(0x10), "a failed load keeps state")
	assert.Equal(t, abi.StatusInternal, (&abi.Runtime{}).LoadSnapshot(path))
}
