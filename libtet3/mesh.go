package libtet3

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/tet3systems/go-tet3/tet3"
)

// MeshOpts configures a Mesh at construction. The zero value is usable:
// Cartesian64 storage, no-op visitor, single-threaded mode.
type MeshOpts struct {
	Kernel     tet3.Kernel  // coordinate representation, Cartesian64 if nil
	Visitor    tet3.Visitor // mutation observer, NopVisitor if nil
	Concurrent bool         // guard mutations with a mutex
}

// Mesh is a combinatorial triangulation of the 3-sphere: all finite vertices
// plus one infinite vertex, tetrahedral cells, and their mutual adjacency.
// The Mesh exclusively owns all element storage; VertexID/CellID handles are
// one-based indices into it.
type Mesh struct {
	uid     uuid.UUID
	kernel  tet3.Kernel
	visitor tet3.Visitor

	verts     []tet3.Vertex // index 0 reserved as the nil handle
	cells     []tet3.Cell   // index 0 reserved as the nil handle
	freeCells []tet3.CellID
	liveVerts int
	liveCells int

	infinite tet3.VertexID
	stampSeq tet3.TimeStamp

	concurrent bool
	mu         sync.Mutex
}

func NewMesh(opts MeshOpts) *Mesh {
	if opts.Kernel == nil {
		opts.Kernel = tet3.Cartesian64
	}
	if opts.Visitor == nil {
		opts.Visitor = tet3.NopVisitor{}
	}
	m := &Mesh{
		uid:        uuid.New(),
		kernel:     opts.Kernel,
		visitor:    opts.Visitor,
		concurrent: opts.Concurrent,
	}
	m.reset()
	return m
}

func (m *Mesh) reset() {
	m.verts = append(m.verts[:0], tet3.Vertex{})
	m.cells = append(m.cells[:0], tet3.Cell{})
	m.freeCells = m.freeCells[:0]
	m.liveVerts = 0
	m.liveCells = 0
	m.infinite = tet3.NilVertex
	m.stampSeq = 0
}

func (m *Mesh) lock() {
	if m.concurrent {
		m.mu.Lock()
	}
}

func (m *Mesh) unlock() {
	if m.concurrent {
		m.mu.Unlock()
	}
}

// MeshID returns this mesh's run-scoped identity.
func (m *Mesh) MeshID() uuid.UUID {
	return m.uid
}

// Kernel returns the coordinate representation this mesh stores points with.
func (m *Mesh) Kernel() tet3.Kernel {
	return m.kernel
}

// Visitor returns the embedded mutation observer. The same instance persists
// across a remeshing run so it can accumulate state.
func (m *Mesh) Visitor() tet3.Visitor {
	return m.visitor
}

// SetVisitor swaps the embedded mutation observer.
func (m *Mesh) SetVisitor(v tet3.Visitor) {
	if v == nil {
		v = tet3.NopVisitor{}
	}
	m.visitor = v
}

// Clear drops all vertices and cells, keeping the mesh's kernel, visitor,
// and identity.
func (m *Mesh) Clear() {
	m.lock()
	defer m.unlock()
	m.reset()
}

// SetInfiniteVertex designates the mesh's single infinite vertex.
func (m *Mesh) SetInfiniteVertex(v tet3.VertexID) {
	m.lock()
	defer m.unlock()
	m.checkVertex(v)
	m.infinite = v
}

func (m *Mesh) InfiniteVertex() tet3.VertexID {
	return m.infinite
}

// IsInfinite returns true if v is the mesh's infinite vertex.
func (m *Mesh) IsInfinite(v tet3.VertexID) bool {
	return v != tet3.NilVertex && v == m.infinite
}

// IsHullCell returns true if c references the infinite vertex.
func (m *Mesh) IsHullCell(c tet3.CellID) bool {
	if m.infinite == tet3.NilVertex {
		return false
	}
	return m.cellChecked(c).HasVertex(m.infinite) >= 0
}

func (m *Mesh) nextStamp() tet3.TimeStamp {
	m.stampSeq++
	return m.stampSeq
}

// AddVertex appends a new vertex at p, quantized through the mesh kernel,
// and stamps it with the next creation-order value.
func (m *Mesh) AddVertex(p r3.Vec, dim tet3.Dim) tet3.VertexID {
	m.lock()
	defer m.unlock()
	return m.addVertexRecord(tet3.Vertex{
		Point: m.kernel.Quantize(p),
		Dim:   dim,
		Stamp: m.nextStamp(),
	})
}

// addVertexRecord installs a converter- or caller-built vertex verbatim:
// no quantization, no stamping.
func (m *Mesh) addVertexRecord(v tet3.Vertex) tet3.VertexID {
	m.verts = append(m.verts, v)
	m.liveVerts++
	return tet3.VertexID(len(m.verts) - 1)
}

// AddCell appends a new cell over the given vertices and stamps it.
// Adjacency is not wired; call Connect or Relink afterward. Slot 0 must hold
// a live vertex: a cell's liveness is keyed off its first slot, so nil
// handles may only trail in sub-3-dimensional cells.
func (m *Mesh) AddCell(v0, v1, v2, v3 tet3.VertexID, subdomain int32) tet3.CellID {
	m.lock()
	defer m.unlock()
	if v0 == tet3.NilVertex {
		panic("libtet3: cell slot 0 cannot hold the nil handle")
	}
	c := tet3.Cell{
		Verts:     [4]tet3.VertexID{v0, v1, v2, v3},
		Subdomain: subdomain,
		Stamp:     m.nextStamp(),
	}
	for _, v := range c.Verts {
		if v != tet3.NilVertex {
			m.checkVertex(v)
		}
	}
	return m.addCellRecord(c)
}

func (m *Mesh) addCellRecord(c tet3.Cell) tet3.CellID {
	if n := len(m.freeCells); n > 0 {
		id := m.freeCells[n-1]
		m.freeCells = m.freeCells[:n-1]
		m.cells[id] = c
		m.liveCells++
		return id
	}
	m.cells = append(m.cells, c)
	m.liveCells++
	return tet3.CellID(len(m.cells) - 1)
}

func (m *Mesh) removeCell(c tet3.CellID) {
	m.cellChecked(c)
	m.cells[c] = tet3.Cell{}
	m.freeCells = append(m.freeCells, c)
	m.liveCells--
}

// Connect wires cells a and b as neighbors across facets fa and fb.
// The relation is stored symmetrically.
func (m *Mesh) Connect(a tet3.CellID, fa int, b tet3.CellID, fb int) {
	m.lock()
	defer m.unlock()
	m.cellChecked(a).Neighbors[fa] = b
	m.cellChecked(b).Neighbors[fb] = a
}

// Vertex resolves a vertex handle. The pointer stays valid only until the
// next mutation.
func (m *Mesh) Vertex(v tet3.VertexID) *tet3.Vertex {
	return m.vertChecked(v)
}

// Cell resolves a cell handle under the same validity rule as Vertex.
func (m *Mesh) Cell(c tet3.CellID) *tet3.Cell {
	return m.cellChecked(c)
}

func (m *Mesh) vertChecked(v tet3.VertexID) *tet3.Vertex {
	if v == tet3.NilVertex || int(v) >= len(m.verts) {
		panic(fmt.Sprintf("libtet3: %v: %d", tet3.ErrBadVertexID, v))
	}
	return &m.verts[v]
}

func (m *Mesh) cellChecked(c tet3.CellID) *tet3.Cell {
	if c == tet3.NilCell || int(c) >= len(m.cells) || m.cells[c].Verts[0] == tet3.NilVertex {
		panic(fmt.Sprintf("libtet3: %v: %d", tet3.ErrBadCellID, c))
	}
	return &m.cells[c]
}

func (m *Mesh) checkVertex(v tet3.VertexID) {
	m.vertChecked(v)
}

func (m *Mesh) isLiveCell(c tet3.CellID) bool {
	return c != tet3.NilCell && int(c) < len(m.cells) && m.cells[c].Verts[0] != tet3.NilVertex
}

// VertexCount returns the number of finite vertices.
func (m *Mesh) VertexCount() int {
	n := m.liveVerts
	if m.infinite != tet3.NilVertex {
		n--
	}
	return n
}

// CellCount returns the number of finite cells.
func (m *Mesh) CellCount() int {
	n := 0
	m.visitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		if m.infinite == tet3.NilVertex || c.HasVertex(m.infinite) < 0 {
			n++
		}
		return true
	})
	return n
}

// GetInfo returns element counts.
func (m *Mesh) GetInfo() tet3.MeshInfo {
	info := tet3.MeshInfo{
		NumVerts: m.VertexCount(),
	}
	m.visitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		if m.infinite != tet3.NilVertex && c.HasVertex(m.infinite) >= 0 {
			info.NumHullCells++
		} else {
			info.NumCells++
		}
		return true
	})
	return info
}

// VisitCells calls onCell for every live cell in storage order until onCell
// returns false.
func (m *Mesh) VisitCells(onCell func(id tet3.CellID, c *tet3.Cell) bool) {
	m.visitCells(onCell)
}

func (m *Mesh) visitCells(onCell func(id tet3.CellID, c *tet3.Cell) bool) {
	for i := 1; i < len(m.cells); i++ {
		id := tet3.CellID(i)
		if !m.isLiveCell(id) {
			continue
		}
		if !onCell(id, &m.cells[i]) {
			return
		}
	}
}

// VisitVerts calls onVert for every vertex in storage order until onVert
// returns false.
func (m *Mesh) VisitVerts(onVert func(id tet3.VertexID, v *tet3.Vertex) bool) {
	for i := 1; i < len(m.verts); i++ {
		if !onVert(tet3.VertexID(i), &m.verts[i]) {
			return
		}
	}
}

// IncidentCells returns the live cells containing both endpoints of e, in
// storage order.
func (m *Mesh) IncidentCells(e tet3.Edge) []tet3.CellID {
	var ring []tet3.CellID
	m.visitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		if c.HasVertex(e.A) >= 0 && c.HasVertex(e.B) >= 0 {
			ring = append(ring, id)
		}
		return true
	})
	return ring
}

// facetKey is the sorted vertex triple of a cell facet.
type facetKey [3]tet3.VertexID

func facetOf(c *tet3.Cell, slot int) (facetKey, bool) {
	var f facetKey
	n := 0
	for i, v := range c.Verts {
		if i == slot {
			continue
		}
		if v == tet3.NilVertex {
			return f, false
		}
		f[n] = v
		n++
	}
	if f[0] > f[1] {
		f[0], f[1] = f[1], f[0]
	}
	if f[1] > f[2] {
		f[1], f[2] = f[2], f[1]
	}
	if f[0] > f[1] {
		f[0], f[1] = f[1], f[0]
	}
	return f, true
}

type facetRef struct {
	cell tet3.CellID
	slot int
}

// Relink recomputes the whole neighbor relation by facet matching and then
// reassigns every vertex's representative incident cell. Facets shared by
// two cells become symmetric neighbor links; facets owned by a single cell
// keep the nil handle.
//
// TODO: localize the rebuild to the star of the edited region instead of a
// full facet-match pass.
func (m *Mesh) Relink() {
	m.lock()
	defer m.unlock()
	m.relink()
	m.fixIncidentCells()
}

func (m *Mesh) relink() {
	open := make(map[facetKey]facetRef, m.liveCells*2)

	m.visitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		c.Neighbors = [4]tet3.CellID{}
		return true
	})

	m.visitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		for slot := 0; slot < 4; slot++ {
			key, ok := facetOf(c, slot)
			if !ok {
				continue
			}
			if ref, found := open[key]; found {
				c.Neighbors[slot] = ref.cell
				m.cells[ref.cell].Neighbors[ref.slot] = id
				delete(open, key)
			} else {
				open[key] = facetRef{cell: id, slot: slot}
			}
		}
		return true
	})
}

func (m *Mesh) fixIncidentCells() {
	m.visitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		for _, v := range c.Verts {
			if v != tet3.NilVertex {
				m.verts[v].Cell = id
			}
		}
		return true
	})
}

// Validate checks the mesh invariants: distinct vertex slots per cell,
// neighbor symmetry across matching facets, a single live infinite vertex,
// and connectivity through cell adjacency. Violations are programming-
// contract failures and panic.
func (m *Mesh) Validate() {
	m.lock()
	defer m.unlock()

	if m.liveCells > 0 && m.infinite == tet3.NilVertex {
		panic("libtet3: mesh has cells but no infinite vertex")
	}
	if m.infinite != tet3.NilVertex {
		m.checkVertex(m.infinite)
	}

	m.visitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		for i, v := range c.Verts {
			if v == tet3.NilVertex {
				continue
			}
			m.checkVertex(v)
			for j := i + 1; j < 4; j++ {
				if c.Verts[j] == v {
					panic(fmt.Sprintf("libtet3: cell %d repeats vertex %d", id, v))
				}
			}
		}
		for slot, n := range c.Neighbors {
			if n == tet3.NilCell {
				continue
			}
			if !m.isLiveCell(n) {
				panic(fmt.Sprintf("libtet3: cell %d has dangling neighbor %d", id, n))
			}
			key, _ := facetOf(c, slot)
			back := false
			for nslot := 0; nslot < 4; nslot++ {
				if m.cells[n].Neighbors[nslot] != id {
					continue
				}
				nkey, ok := facetOf(&m.cells[n], nslot)
				if ok && nkey == key {
					back = true
					break
				}
			}
			if !back {
				panic(fmt.Sprintf("libtet3: asymmetric neighbor link %d -> %d", id, n))
			}
		}
		return true
	})

	if m.liveCells > 0 {
		start := m.verts[m.infinite].Cell
		if !m.isLiveCell(start) {
			panic("libtet3: infinite vertex has no incident cell")
		}
		seen := make(map[tet3.CellID]bool, m.liveCells)
		queue := []tet3.CellID{start}
		seen[start] = true
		for len(queue) > 0 {
			c := queue[0]
			queue = queue[1:]
			for _, n := range m.cells[c].Neighbors {
				if n != tet3.NilCell && !seen[n] {
					seen[n] = true
					queue = append(queue, n)
				}
			}
		}
		if len(seen) != m.liveCells {
			panic(fmt.Sprintf("libtet3: mesh not connected: reached %d of %d cells", len(seen), m.liveCells))
		}
	}
}
