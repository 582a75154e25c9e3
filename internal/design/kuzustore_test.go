//go:build cgo

package design

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKuzuStore(t *testing.T) {
	s, err := NewKuzuStore()
	require.NoError(t, err, "NewKuzuStore should not fail")
	t.Cleanup(func() { _ = s.Close() })
	storeContract(t, s)
}

func TestKuzuStore_SchemaIsIdempotent(t *testing.T) {
	s, err := NewKuzuStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.initSchema())
}

func TestKuzuStore_SharedIDsAcrossDesigns(t *testing.T) {
	s, err := NewKuzuStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	d := sampleDesign(t, "one")
	require.NoError(t, s.Save(ctx, d))

	// Same graph ids saved under another name must not collide.
	copyDesign := d
	copyDesign.Name = "two"
	require.NoError(t, s.Save(ctx, copyDesign))

	got, err := s.Get(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, copyDesign, *got)

	require.NoError(t, s.Delete(ctx, "one"))
	got, err = s.Get(ctx, "two")
	require.NoError(t, err)
	assert.Len(t, got.Nodes, 2)
}

func TestKuzuFileStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kuzu", "designs")
	ctx := context.Background()

	s, err := NewKuzuFileStore(path)
	require.NoError(t, err)
	d := sampleDesign(t, "durable")
	require.NoError(t, s.Save(ctx, d))
	require.NoError(t, s.Close())

	s, err = NewKuzuFileStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.Get(ctx, "durable")
	require.NoError(t, err)
	assert.Equal(t, d, *got)
}
