package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tet3systems/go-tet3/libtet3"
	"github.com/tet3systems/go-tet3/libtet3/catalog"
	"github.com/tet3systems/go-tet3/tet3"
)

const singleTetExpr = "v 0 0 0; v 1 0 0; v 0 1 0; v 0 0 1; t 1 2 3 4 : 7"

const twoTetExpr = `
	v 0 0 0; v 1 0 0; v 0 1 0; v 0 0 1; v 1 1 1;
	t 1 2 3 4 : 1;
	t 2 3 4 5 : 2
`

func openTestCatalog(t *testing.T) tet3.Catalog {
	t.Helper()
	cat, err := catalog.OpenCatalog(tet3.CatalogOpts{})
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	return cat
}

func drainSelect(cat tet3.Catalog, sel tet3.MeshSelector) []tet3.MeshState {
	onHit := make(chan tet3.MeshState)
	go cat.Select(sel, onHit)
	var hits []tet3.MeshState
	for m := range onHit {
		hits = append(hits, m)
	}
	return hits
}

func TestCatalogAddAndDedup(t *testing.T) {
	cat := openTestCatalog(t)
	require.False(t, cat.IsReadOnly())
	require.EqualValues(t, 0, cat.NumMeshes())

	m, err := libtet3.NewMeshFromString(singleTetExpr, libtet3.MeshOpts{})
	require.NoError(t, err)

	require.True(t, cat.TryAddMesh(m))
	require.EqualValues(t, 1, cat.NumMeshes())

	// Re-adding the same mesh in its current form is a no-op.
	require.False(t, cat.TryAddMesh(m))
	require.EqualValues(t, 1, cat.NumMeshes())

	// Mutating the mesh makes it a new form.
	m.EdgeSplit(tet3.Edge{A: 1, B: 2})
	require.True(t, cat.TryAddMesh(m))
	require.EqualValues(t, 2, cat.NumMeshes())
}

func TestCatalogSelect(t *testing.T) {
	cat := openTestCatalog(t)

	small, err := libtet3.NewMeshFromString(singleTetExpr, libtet3.MeshOpts{})
	require.NoError(t, err)
	large, err := libtet3.NewMeshFromString(twoTetExpr, libtet3.MeshOpts{})
	require.NoError(t, err)
	require.True(t, cat.TryAddMesh(small))
	require.True(t, cat.TryAddMesh(large))

	hits := drainSelect(cat, tet3.MeshSelector{})
	require.Len(t, hits, 2)
	for _, hit := range hits {
		require.NotZero(t, hit.VertexCount())
	}

	// Min bound drops the single-tet mesh.
	hits = drainSelect(cat, tet3.MeshSelector{Min: tet3.MeshInfo{NumCells: 2}})
	require.Len(t, hits, 1)
	require.Equal(t, large.MeshID(), hits[0].MeshID())

	// Max bound drops the two-tet mesh.
	hits = drainSelect(cat, tet3.MeshSelector{Max: tet3.MeshInfo{NumCells: 1}})
	require.Len(t, hits, 1)
	require.Equal(t, small.MeshID(), hits[0].MeshID())

	// A selection with no matches still closes the channel.
	hits = drainSelect(cat, tet3.MeshSelector{Min: tet3.MeshInfo{NumVerts: 1000}})
	require.Empty(t, hits)
}

func TestCatalogFetchByID(t *testing.T) {
	cat := openTestCatalog(t)

	m, err := libtet3.NewMeshFromString(twoTetExpr, libtet3.MeshOpts{})
	require.NoError(t, err)
	require.True(t, cat.TryAddMesh(m))

	got, err := cat.FetchByID(m.MeshID())
	require.NoError(t, err)
	require.Equal(t, m.MeshID(), got.MeshID())
	require.Equal(t, m.GetInfo(), got.GetInfo())

	other, err := libtet3.NewMeshFromString(singleTetExpr, libtet3.MeshOpts{})
	require.NoError(t, err)
	_, err = cat.FetchByID(other.MeshID())
	require.ErrorIs(t, err, tet3.ErrMeshNotFound)
}

func TestCatalogPersists(t *testing.T) {
	dir := t.TempDir()

	m, err := libtet3.NewMeshFromString(singleTetExpr, libtet3.MeshOpts{})
	require.NoError(t, err)

	cat, err := catalog.OpenCatalog(tet3.CatalogOpts{DbPathName: dir})
	require.NoError(t, err)
	require.True(t, cat.TryAddMesh(m))
	require.NoError(t, cat.Close())

	// The index is rebuilt from disk on reopen.
	cat, err = catalog.OpenCatalog(tet3.CatalogOpts{DbPathName: dir})
	require.NoError(t, err)
	defer cat.Close()
	require.EqualValues(t, 1, cat.NumMeshes())
	require.False(t, cat.TryAddMesh(m))

	got, err := cat.FetchByID(m.MeshID())
	require.NoError(t, err)
	require.Equal(t, m.GetInfo(), got.GetInfo())
}

func TestCatalogReadOnlyNeedsPath(t *testing.T) {
	_, err := catalog.OpenCatalog(tet3.CatalogOpts{ReadOnly: true})
	require.ErrorIs(t, err, tet3.ErrBadCatalogParam)
}
