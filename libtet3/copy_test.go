package libtet3_test

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/tet3systems/go-tet3/libtet3"
	"github.com/tet3systems/go-tet3/tet3"
)

// tryMatch attempts to extend the pairing (srcStart, dstStart) into a
// slot-preserving isomorphism by parallel traversal. The copy engine carries
// vertex and neighbor slots across verbatim, so slot identity is the
// correspondence to check.
func tryMatch(src, dst *libtet3.Mesh, srcStart, dstStart tet3.CellID, liveCells int) (map[tet3.VertexID]tet3.VertexID, bool) {
	vmatch := map[tet3.VertexID]tet3.VertexID{}
	cmatch := map[tet3.CellID]tet3.CellID{srcStart: dstStart}
	type pair struct{ s, d tet3.CellID }
	queue := []pair{{srcStart, dstStart}}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		sc := src.Cell(p.s)
		dc := dst.Cell(p.d)

		for i := 0; i < 4; i++ {
			sv, dv := sc.Verts[i], dc.Verts[i]
			if (sv == tet3.NilVertex) != (dv == tet3.NilVertex) {
				return nil, false
			}
			if sv != tet3.NilVertex {
				if prev, ok := vmatch[sv]; ok {
					if prev != dv {
						return nil, false
					}
				} else {
					vmatch[sv] = dv
				}
			}

			sn, dn := sc.Neighbors[i], dc.Neighbors[i]
			if (sn == tet3.NilCell) != (dn == tet3.NilCell) {
				return nil, false
			}
			if sn != tet3.NilCell {
				if prev, ok := cmatch[sn]; ok {
					if prev != dn {
						return nil, false
					}
				} else {
					cmatch[sn] = dn
					queue = append(queue, pair{sn, dn})
				}
			}
		}
	}
	if len(cmatch) != liveCells {
		return nil, false
	}
	seen := map[tet3.VertexID]bool{}
	for _, dv := range vmatch {
		if seen[dv] {
			return nil, false
		}
		seen[dv] = true
	}
	return vmatch, true
}

// requireIsomorphic verifies an adjacency-preserving bijection exists and
// returns the vertex part of it.
func requireIsomorphic(t *testing.T, src, dst *libtet3.Mesh) map[tet3.VertexID]tet3.VertexID {
	t.Helper()
	dst.Validate()

	srcInfo, dstInfo := src.GetInfo(), dst.GetInfo()
	require.Empty(t, cmp.Diff(srcInfo, dstInfo))

	liveCells := srcInfo.NumCells + srcInfo.NumHullCells
	if liveCells == 0 {
		return nil
	}

	srcStart := src.Vertex(src.InfiniteVertex()).Cell
	var vmatch map[tet3.VertexID]tet3.VertexID
	dst.VisitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		if vm, ok := tryMatch(src, dst, srcStart, id, liveCells); ok {
			vmatch = vm
			return false
		}
		return true
	})
	require.NotNil(t, vmatch, "no adjacency-preserving bijection found")
	require.Equal(t, dst.InfiniteVertex(), vmatch[src.InfiniteVertex()])
	return vmatch
}

func TestSingleTetGeometryCopy(t *testing.T) {
	src, err := libtet3.NewMeshFromString(singleTetExpr, libtet3.MeshOpts{})
	require.NoError(t, err)

	dst := libtet3.NewMesh(libtet3.MeshOpts{})
	tinf := libtet3.BuildRemeshMesh(src, dst)
	require.Equal(t, dst.InfiniteVertex(), tinf)

	vmatch := requireIsomorphic(t, src, dst)

	// Labels and adjacency carry over; every stamp is reset and every
	// vertex dimension tag forced to 3.
	dst.VisitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		require.Equal(t, tet3.TimeStampUnset, c.Stamp)
		if !dst.IsHullCell(id) {
			require.Equal(t, int32(7), c.Subdomain)
		}
		require.Equal(t, tet3.NilCell, c.Source)
		return true
	})
	dst.VisitVerts(func(id tet3.VertexID, v *tet3.Vertex) bool {
		require.Equal(t, tet3.TimeStampUnset, v.Stamp)
		require.Equal(t, tet3.Dim(3), v.Dim)
		return true
	})

	// Finite positions are carried exactly between identical kernels.
	for sv, dv := range vmatch {
		if !src.IsInfinite(sv) {
			require.Equal(t, src.Vertex(sv).Point, dst.Vertex(dv).Point)
		}
	}
}

func TestProvenanceCopy(t *testing.T) {
	src, err := libtet3.NewMeshFromString(twoTetExpr, libtet3.MeshOpts{})
	require.NoError(t, err)
	src.Vertex(1).Dim = 2
	src.Vertex(1).Info = "corner"
	src.VisitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		c.Info = int(id)
		return true
	})

	dst := libtet3.NewMesh(libtet3.MeshOpts{})
	libtet3.BuildInputMesh(src, dst)
	vmatch := requireIsomorphic(t, src, dst)

	// Every target cell points back at the source cell it was copied from.
	dst.VisitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		require.NotEqual(t, tet3.NilCell, c.Source)
		srcCell := src.Cell(c.Source)
		require.Equal(t, srcCell.Subdomain, c.Subdomain)
		require.Equal(t, srcCell.Info, c.Info)
		return true
	})

	// Dimension tags and payloads propagate instead of being forced.
	dv := vmatch[1]
	require.Equal(t, tet3.Dim(2), dst.Vertex(dv).Dim)
	require.Equal(t, "corner", dst.Vertex(dv).Info)
}

func TestRoundTripCopy(t *testing.T) {
	g, err := libtet3.NewMeshFromString(twoTetExpr, libtet3.MeshOpts{})
	require.NoError(t, err)

	g1 := libtet3.NewMesh(libtet3.MeshOpts{})
	libtet3.BuildRemeshMesh(g, g1)
	g2 := libtet3.NewMesh(libtet3.MeshOpts{})
	libtet3.BuildInputMesh(g1, g2)

	vmatch := requireIsomorphic(t, g, g2)

	// With an identity kernel pair the positions survive both hops exactly;
	// only the time-stamps were reset along the way.
	for sv, dv := range vmatch {
		if !g.IsInfinite(sv) {
			require.Equal(t, g.Vertex(sv).Point, g2.Vertex(dv).Point)
		}
		require.Equal(t, tet3.TimeStampUnset, g2.Vertex(dv).Stamp)
	}
}

func TestRoundTripPrecisionBound(t *testing.T) {
	g, err := libtet3.NewMeshFromString(
		"v 0.1 0.2 0.3; v 1.0000001 0 0; v 0 1 0; v 0 0 1; t 1 2 3 4",
		libtet3.MeshOpts{})
	require.NoError(t, err)

	narrow := libtet3.NewMesh(libtet3.MeshOpts{Kernel: tet3.Cartesian32})
	libtet3.BuildRemeshMesh(g, narrow)
	wide := libtet3.NewMesh(libtet3.MeshOpts{})
	libtet3.BuildRemeshMesh(narrow, wide)

	vmatch := requireIsomorphic(t, g, narrow)
	wmatch := requireIsomorphic(t, narrow, wide)

	for sv, nv := range vmatch {
		if g.IsInfinite(sv) {
			continue
		}
		want := tet3.Cartesian32.Quantize(g.Vertex(sv).Point)
		require.Equal(t, want, narrow.Vertex(nv).Point)
		// The second hop widens without further loss.
		require.Equal(t, want, wide.Vertex(wmatch[nv]).Point)
	}
}

func TestCopyDegenerateMesh(t *testing.T) {
	src, err := libtet3.NewMeshFromString("v 0 0 0 d 0; v 2 0 0 d 0", libtet3.MeshOpts{})
	require.NoError(t, err)

	dst := libtet3.NewMesh(libtet3.MeshOpts{})
	tinf := libtet3.BuildRemeshMesh(src, dst)

	// Nothing fabricated: the two finite vertices and the infinite vertex
	// come across, with zero cells.
	require.Equal(t, tet3.MeshInfo{NumVerts: 2}, dst.GetInfo())
	require.Equal(t, dst.InfiniteVertex(), tinf)
	require.NotEqual(t, tet3.NilVertex, tinf)
}

func TestCopyEmptyMesh(t *testing.T) {
	src := libtet3.NewMesh(libtet3.MeshOpts{})
	dst := libtet3.NewMesh(libtet3.MeshOpts{})
	require.Equal(t, tet3.NilVertex, libtet3.BuildRemeshMesh(src, dst))
	require.Equal(t, tet3.MeshInfo{}, dst.GetInfo())
}

func TestOpposingConcurrentCopies(t *testing.T) {
	// Copies between the same pair of meshes lock in identity order, so two
	// opposite-direction copies serialize instead of deadlocking.
	a, err := libtet3.NewMeshFromString(singleTetExpr, libtet3.MeshOpts{Concurrent: true})
	require.NoError(t, err)
	b, err := libtet3.NewMeshFromString(twoTetExpr, libtet3.MeshOpts{Concurrent: true})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		libtet3.BuildRemeshMesh(a, b)
	}()
	go func() {
		defer wg.Done()
		libtet3.BuildRemeshMesh(b, a)
	}()
	wg.Wait()

	a.Validate()
	b.Validate()
}

func TestCopyMalformedSourcePanics(t *testing.T) {
	src, err := libtet3.NewMeshFromString(singleTetExpr, libtet3.MeshOpts{})
	require.NoError(t, err)

	// Corrupt one neighbor link to point outside the tracked set.
	src.VisitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		c.Neighbors[0] = tet3.CellID(9999)
		return false
	})

	dst := libtet3.NewMesh(libtet3.MeshOpts{})
	require.Panics(t, func() {
		libtet3.BuildRemeshMesh(src, dst)
	})
}
