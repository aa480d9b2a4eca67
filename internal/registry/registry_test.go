package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/QubesOS/qubes-gui-agent-wayland/internal/waylandrole"
)

type fakeRole struct{ alive bool }

func (r *fakeRole) Kind() waylandrole.Kind                 { return waylandrole.Toplevel }
func (r *fakeRole) SendConfigure()                         {}
func (r *fakeRole) SendClose()                             {}
func (r *fakeRole) Alive() bool                             { return r.alive }
func (r *fakeRole) Client() waylandrole.Client              { return nil }
func (r *fakeRole) SetPendingSize(w, h int32) bool          { return false }
func (r *fakeRole) SetActivated(active bool) bool           { return false }
func (r *fakeRole) Surface() waylandrole.Surface             { return nil }

func TestAllocatorStartsAtTwoAndIsMonotonic(t *testing.T) {
	a := NewAllocator()
	first, err := a.Next()
	require.NoError(t, err)
	require.Equal(t, uint32(2), first)

	second, err := a.Next()
	require.NoError(t, err)
	require.Equal(t, uint32(3), second)
}

func TestAllocatorExhaustionIsFatal(t *testing.T) {
	a := &Allocator{next: 0}
	_, err := a.Next()
	require.Error(t, err)
}

func TestAllocatorNeverReusesIds(t *testing.T) {
	a := NewAllocator()
	seen := make(map[uint32]bool)
	for i := 0; i < 100; i++ {
		id, err := a.Next()
		require.NoError(t, err)
		require.False(t, seen[id], "id %d reused", id)
		seen[id] = true
	}
}

func TestRegistryInsertGetRemove(t *testing.T) {
	r := New()
	e := &BackendEntry{Surface: &fakeRole{alive: true}}
	require.NoError(t, r.Insert(2, e))

	got, ok := r.Get(2)
	require.True(t, ok)
	require.Same(t, e, got)

	r.Remove(2)
	_, ok = r.Get(2)
	require.False(t, ok)
	require.Equal(t, 0, r.Len())
}

func TestRegistryRejectsZeroId(t *testing.T) {
	r := New()
	err := r.Insert(0, &BackendEntry{Surface: &fakeRole{}})
	require.Error(t, err)
}

func TestRegistryRejectsDoubleInsert(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(2, &BackendEntry{Surface: &fakeRole{}}))
	err := r.Insert(2, &BackendEntry{Surface: &fakeRole{}})
	require.Error(t, err)
}

func TestRegistryIterInsertionOrder(t *testing.T) {
	r := New()
	ids := []uint32{5, 2, 9, 3}
	for _, id := range ids {
		require.NoError(t, r.Insert(id, &BackendEntry{Surface: &fakeRole{}}))
	}

	var seen []uint32
	r.Iter(func(id uint32, e *BackendEntry) {
		seen = append(seen, id)
	})
	require.Equal(t, ids, seen)
}

func TestRegistryRemoveMissingIsNoOp(t *testing.T) {
	r := New()
	require.NotPanics(t, func() { r.Remove(42) })
}
