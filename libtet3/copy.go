package libtet3

import (
	"bytes"
	"fmt"

	"github.com/tet3systems/go-tet3/tet3"
)

// CopyMesh clears dst and rebuilds it as a graph-isomorphic copy of src,
// converting every element through the supplied converters. Traversal starts
// at src's infinite vertex, whose incident cells touch every hull facet, so
// the whole adjacency graph is reachable even though it is cyclic. Returns
// the image of src's infinite vertex, which is also installed as dst's.
//
// There is no recoverable error path: a malformed source graph (dangling
// neighbor, a cell referencing a vertex outside the tracked set) is a
// precondition violation and panics. The copy is all-or-nothing; dst holds
// no committed state on abort beyond having been cleared.
func CopyMesh(dst, src *Mesh, vc tet3.VertexConverter, cc tet3.CellConverter) tet3.VertexID {
	if dst == src {
		panic("libtet3: copy source and target are the same mesh")
	}

	// Lock in mesh-identity order so opposite-direction copies between the
	// same pair of concurrent meshes cannot deadlock.
	first, second := src, dst
	if bytes.Compare(dst.uid[:], src.uid[:]) < 0 {
		first, second = dst, src
	}
	first.lock()
	defer first.unlock()
	second.lock()
	defer second.unlock()

	dst.reset()

	vmap := make(map[tet3.VertexID]tet3.VertexID, src.liveVerts)
	cmap := make(map[tet3.CellID]tet3.CellID, src.liveCells)

	mapVertex := func(sv tet3.VertexID) tet3.VertexID {
		if sv == tet3.NilVertex {
			return tet3.NilVertex
		}
		if tv, ok := vmap[sv]; ok {
			return tv
		}
		tv := dst.addVertexRecord(vc.CreateVertex(src.vertChecked(sv)))
		vmap[sv] = tv
		return tv
	}

	// First pass: breadth-first over cell adjacency, materializing cells and
	// their vertices on first discovery.
	if inf := src.infinite; inf != tet3.NilVertex {
		start := src.vertChecked(inf).Cell
		if start == tet3.NilCell && src.liveCells > 0 {
			panic("libtet3: infinite vertex has no incident cell")
		}
		if start != tet3.NilCell {
			queue := []tet3.CellID{start}
			cmap[start] = tet3.NilCell // reserve before materializing
			for len(queue) > 0 {
				sc := queue[0]
				queue = queue[1:]

				scell := src.cellChecked(sc)
				tcell := cc.CreateCell(scell, sc)
				for i, sv := range scell.Verts {
					tcell.Verts[i] = mapVertex(sv)
				}
				tcell.Neighbors = [4]tet3.CellID{}
				cmap[sc] = dst.addCellRecord(tcell)

				for _, sn := range scell.Neighbors {
					if sn == tet3.NilCell {
						continue
					}
					if !src.isLiveCell(sn) {
						panic(fmt.Sprintf("libtet3: dangling neighbor %d in source cell %d", sn, sc))
					}
					if _, seen := cmap[sn]; !seen {
						cmap[sn] = tet3.NilCell
						queue = append(queue, sn)
					}
				}
			}
		}
	}

	// Degenerate and low-dimensional sources can hold vertices no cell walk
	// reaches; copy them verbatim through the converter, fabricating nothing.
	src.VisitVerts(func(sv tet3.VertexID, v *tet3.Vertex) bool {
		mapVertex(sv)
		return true
	})

	// Second pass: resolve every target cell's neighbors through the cell
	// map so target adjacency is exactly isomorphic, then transfer payloads.
	for sc, tc := range cmap {
		scell := src.cellChecked(sc)
		tcell := dst.cellChecked(tc)
		for i, sn := range scell.Neighbors {
			if sn == tet3.NilCell {
				continue
			}
			tn, ok := cmap[sn]
			if !ok || tn == tet3.NilCell {
				panic(fmt.Sprintf("libtet3: source neighbor %d escaped the copy traversal", sn))
			}
			tcell.Neighbors[i] = tn
		}
		cc.PopulateCell(scell, sc, tcell)
	}
	for sv, tv := range vmap {
		vc.PopulateVertex(src.vertChecked(sv), dst.vertChecked(tv))
	}

	dst.fixIncidentCells()

	if src.infinite == tet3.NilVertex {
		return tet3.NilVertex
	}
	tinf := vmap[src.infinite]
	dst.infinite = tinf
	return tinf
}

// BuildRemeshMesh rebuilds dst as an isomorphic copy of src through the
// geometry-only converters: positions are carried across the two meshes'
// kernels, time-stamps reset, vertex dimension tags forced to 3, and cells
// keep only their subdomain labels.
func BuildRemeshMesh(src, dst *Mesh) tet3.VertexID {
	conv := tet3.CartesianConverter{From: src.Kernel(), To: dst.Kernel()}
	return CopyMesh(dst, src, GeometryVertexConverter{Conv: conv}, GeometryCellConverter{})
}

// BuildInputMesh is the inverse entry point: it rebuilds dst from a remeshed
// mesh through the payload-preserving converters, so opaque payloads travel
// along and every target cell records the source cell it came from.
func BuildInputMesh(src, dst *Mesh) tet3.VertexID {
	conv := tet3.CartesianConverter{From: src.Kernel(), To: dst.Kernel()}
	return CopyMesh(dst, src, ProvenanceVertexConverter{Conv: conv}, ProvenanceCellConverter{})
}
