package libtet3

import (
	"github.com/alecthomas/participle/v2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/tet3systems/go-tet3/tet3"
)

// MeshExpr is a small text form for building meshes, mainly in tests:
//
//	v 0 0 0; v 1 0 0; v 0 1 0; v 0 0 1; t 1 2 3 4 : 7
//
// declares four vertices and one tetrahedron with subdomain label 7.
// Vertex statements issue one-based IDs in order of appearance; an optional
// "d" suffix sets the embedding-dimension tag. After parsing, the hull is
// closed: an infinite vertex is created and every boundary facet gains an
// infinite cell, so the result is a full triangulation of the 3-sphere.
type MeshExpr struct {
	Stmts []*MeshStmt `parser:"(@@ (\";\" @@)* \";\"?)?"`
}

type MeshStmt struct {
	Vert *VertStmt `parser:"  \"v\" @@"`
	Tet  *TetStmt  `parser:"| \"t\" @@"`
}

type VertStmt struct {
	X   float64 `parser:"@(\"-\"? (Float | Int))"`
	Y   float64 `parser:"@(\"-\"? (Float | Int))"`
	Z   float64 `parser:"@(\"-\"? (Float | Int))"`
	Dim *int64  `parser:"(\"d\" @Int)?"`
}

type TetStmt struct {
	Verts []int64 `parser:"@Int @Int @Int @Int"`
	Label *int64  `parser:"(\":\" @Int)?"`
}

var parseMeshExpr = participle.MustBuild[MeshExpr]()

// NewMeshFromString builds a mesh from a MeshExpr string.
func NewMeshFromString(expr string, opts MeshOpts) (*Mesh, error) {
	m := NewMesh(opts)
	if err := m.InitFromString(expr); err != nil {
		return nil, err
	}
	return m, nil
}

// InitFromString clears this mesh and rebuilds it from a MeshExpr string,
// closing the hull around the declared tetrahedra.
func (m *Mesh) InitFromString(expr string) error {
	parsed, err := parseMeshExpr.ParseString("", expr)
	if err != nil {
		return errors.Wrap(tet3.ErrBadMeshExpr, err.Error())
	}

	m.lock()
	defer m.unlock()
	m.reset()

	numVerts := 0
	for _, stmt := range parsed.Stmts {
		switch {
		case stmt.Vert != nil:
			dim := tet3.Dim(3)
			if stmt.Vert.Dim != nil {
				dim = tet3.Dim(*stmt.Vert.Dim)
			}
			m.addVertexRecord(tet3.Vertex{
				Point: m.kernel.Quantize(r3.Vec{X: stmt.Vert.X, Y: stmt.Vert.Y, Z: stmt.Vert.Z}),
				Dim:   dim,
				Stamp: m.nextStamp(),
			})
			numVerts++

		case stmt.Tet != nil:
			var verts [4]tet3.VertexID
			for i, vi := range stmt.Tet.Verts {
				if vi < 1 || vi > int64(numVerts) {
					return errors.Wrapf(tet3.ErrBadVertexID, "tet references vertex %d of %d", vi, numVerts)
				}
				verts[i] = tet3.VertexID(vi)
			}
			for i := 0; i < 4; i++ {
				for j := i + 1; j < 4; j++ {
					if verts[i] == verts[j] {
						return errors.Wrapf(tet3.ErrBadMeshExpr, "tet repeats vertex %d", verts[i])
					}
				}
			}
			label := int32(0)
			if stmt.Tet.Label != nil {
				label = int32(*stmt.Tet.Label)
			}
			m.addCellRecord(tet3.Cell{
				Verts:     verts,
				Subdomain: label,
				Stamp:     m.nextStamp(),
			})
		}
	}

	return m.closeHull()
}

// closeHull creates the infinite vertex and covers every boundary facet with
// an infinite cell, then rewires the full adjacency.
func (m *Mesh) closeHull() error {
	// A facet shared by more than two cells cannot be completed into a
	// triangulation of the 3-sphere.
	shared := make(map[facetKey]int, m.liveCells*2)
	m.visitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		for slot := 0; slot < 4; slot++ {
			if key, ok := facetOf(c, slot); ok {
				shared[key]++
			}
		}
		return true
	})
	for _, n := range shared {
		if n > 2 {
			return errors.Wrap(tet3.ErrBadMeshExpr, "facet shared by more than two tets")
		}
	}

	inf := m.addVertexRecord(tet3.Vertex{
		Dim:   tet3.DimUnset,
		Stamp: m.nextStamp(),
	})
	m.infinite = inf

	m.relink()

	var boundary [][3]tet3.VertexID
	m.visitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		for slot := 0; slot < 4; slot++ {
			if c.Neighbors[slot] != tet3.NilCell {
				continue
			}
			var f [3]tet3.VertexID
			n := 0
			for i, v := range c.Verts {
				if i != slot {
					f[n] = v
					n++
				}
			}
			boundary = append(boundary, f)
		}
		return true
	})
	for _, f := range boundary {
		m.addCellRecord(tet3.Cell{
			Verts: [4]tet3.VertexID{inf, f[0], f[1], f[2]},
			Stamp: m.nextStamp(),
		})
	}

	m.relink()
	m.fixIncidentCells()
	return nil
}
