package libtet3

import (
	"fmt"

	"github.com/plan-systems/klog"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/tet3systems/go-tet3/tet3"
)

// cellSwap records a cell replacement for the AfterAddCell hook: the removed
// cell survives only as a provenance key.
type cellSwap struct {
	old tet3.CellID
	new tet3.CellID
}

// EdgeSplit splits the finite edge e at its midpoint: every cell incident to
// e is replaced by two cells meeting at the new vertex, and adjacency is
// rewired. Hull cells incident to e split along with the ring, keeping the
// triangulation closed.
//
// Hook order: BeforeSplit with the ring intact, AfterAddCell per replacement
// once the new cells are linked, AfterSplit once the new vertex is fully
// linked in.
func (m *Mesh) EdgeSplit(e tet3.Edge) tet3.VertexID {
	m.lock()
	defer m.unlock()

	if m.IsInfinite(e.A) || m.IsInfinite(e.B) {
		panic("libtet3: cannot split an edge with an infinite endpoint")
	}
	pa := m.vertChecked(e.A).Point
	pb := m.vertChecked(e.B).Point

	ring := m.IncidentCells(e)
	if len(ring) == 0 {
		panic(fmt.Sprintf("libtet3: edge (%d,%d) has no incident cells", e.A, e.B))
	}

	m.visitor.BeforeSplit(m, e)

	mid := m.kernel.Quantize(r3.Scale(0.5, r3.Add(pa, pb)))
	vm := m.addVertexRecord(tet3.Vertex{
		Point: mid,
		Dim:   3,
		Stamp: m.nextStamp(),
	})

	// Build and install both halves of every ring cell before removing any of
	// them, so no removed slot is recycled as its own replacement.
	swaps := make([]cellSwap, 0, 2*len(ring))
	for _, old := range ring {
		c := *m.cellChecked(old)
		ia := c.HasVertex(e.A)
		ib := c.HasVertex(e.B)

		half1 := c
		half1.Verts[ia] = vm
		half1.Neighbors = [4]tet3.CellID{}
		half1.Stamp = m.nextStamp()

		half2 := c
		half2.Verts[ib] = vm
		half2.Neighbors = [4]tet3.CellID{}
		half2.Stamp = m.nextStamp()

		swaps = append(swaps,
			cellSwap{old: old, new: m.addCellRecord(half1)},
			cellSwap{old: old, new: m.addCellRecord(half2)})
	}
	for _, old := range ring {
		m.removeCell(old)
	}

	m.relink()
	m.fixIncidentCells()

	for _, s := range swaps {
		m.visitor.AfterAddCell(s.old, s.new)
	}
	m.visitor.AfterSplit(m, vm)

	klog.V(2).Infof("split edge (%d,%d): %d ring cells -> %d, new vertex %d",
		e.A, e.B, len(ring), 2*len(ring), vm)
	return vm
}

// FacetFlip23 performs a 2-3 flip across the facet shared by cells a and b:
// the two cells are replaced by three cells around the edge joining their
// apexes. Geometric validity of the flip is the caller's concern.
//
// Hook order: BeforeFlip with a in its pre-flip configuration, AfterAddCell
// per created cell, AfterFlip with the post-flip configuration in place.
func (m *Mesh) FacetFlip23(a, b tet3.CellID) [3]tet3.CellID {
	m.lock()
	defer m.unlock()

	ca := m.cellChecked(a)
	cb := m.cellChecked(b)

	slotA := -1
	for i, n := range ca.Neighbors {
		if n == b {
			slotA = i
			break
		}
	}
	if slotA < 0 {
		panic(fmt.Sprintf("libtet3: cells %d and %d are not neighbors", a, b))
	}
	slotB := -1
	for i, n := range cb.Neighbors {
		if n == a {
			slotB = i
			break
		}
	}
	if slotB < 0 {
		panic(fmt.Sprintf("libtet3: asymmetric neighbor link %d -> %d", a, b))
	}

	u := ca.Verts[slotA] // apex of a over the shared facet
	w := cb.Verts[slotB] // apex of b
	var facet [3]tet3.VertexID
	n := 0
	for i, v := range ca.Verts {
		if i != slotA {
			facet[n] = v
			n++
		}
	}

	m.visitor.BeforeFlip(a)

	subdomain := ca.Subdomain
	var created [3]tet3.CellID
	for i := 0; i < 3; i++ {
		p := facet[i]
		q := facet[(i+1)%3]
		created[i] = m.addCellRecord(tet3.Cell{
			Verts:     [4]tet3.VertexID{u, w, p, q},
			Subdomain: subdomain,
			Stamp:     m.nextStamp(),
		})
	}
	m.removeCell(a)
	m.removeCell(b)

	m.relink()
	m.fixIncidentCells()

	for _, c := range created {
		m.visitor.AfterAddCell(a, c)
	}
	m.visitor.AfterFlip(created[0])

	klog.V(2).Infof("2-3 flip across cells (%d,%d) -> cells %v", a, b, created)
	return created
}
