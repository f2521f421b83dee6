package tet3

import (
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// VertexID is a one-based handle identifying a vertex within its owning mesh.
type VertexID uint32

// CellID is a one-based handle identifying a tetrahedral cell within its owning mesh.
type CellID uint32

const (
	// NilVertex is the reserved "no vertex" handle.
	NilVertex VertexID = 0

	// NilCell is the reserved "no cell" handle.
	NilCell CellID = 0
)

// TimeStamp is a creation-order identifier assigned to mesh elements.
type TimeStamp int64

// TimeStampUnset denotes an element whose creation order is unknown or reset,
// e.g. after a structural copy through a geometry-only converter.
const TimeStampUnset TimeStamp = -1

// Dim tags the topological dimension of the structure a vertex currently
// participates in: 0, 1, 2, or 3, or DimUnset.
type Dim int8

const DimUnset Dim = -1

// Vertex is a position in 3-D space plus the bookkeeping a remeshing run needs.
// Vertices are plain records owned by their Mesh; extension happens through
// element converters, not subtyping.
type Vertex struct {
	Point r3.Vec    // position (meaningless for the infinite vertex)
	Dim   Dim       // embedding-dimension tag
	Stamp TimeStamp // creation order, TimeStampUnset if reset
	Info  any       // opaque caller payload
	Cell  CellID    // representative incident cell, traversal entry point
}

// Cell is a tetrahedron: 4 vertex slots plus one neighbor slot per facet.
// Neighbors[i] is the cell sharing the facet opposite Verts[i]; the relation
// is symmetric. Unused slots hold the nil handle in sub-3-dimensional meshes.
type Cell struct {
	Verts     [4]VertexID
	Neighbors [4]CellID
	Subdomain int32     // region membership label
	Stamp     TimeStamp // creation order, TimeStampUnset if reset
	Info      any       // opaque caller payload
	Source    CellID    // provenance handle into the copy source mesh, or NilCell
}

// HasVertex returns the slot of v in this cell, or -1.
func (c *Cell) HasVertex(v VertexID) int {
	for i, ci := range c.Verts {
		if ci == v && v != NilVertex {
			return i
		}
	}
	return -1
}

// Edge identifies the undirected edge between two vertices of a mesh.
type Edge struct {
	A, B VertexID
}

// Triangulation is the read surface of a mesh graph, as seen by visitors and
// element converters. A *libtet3.Mesh is the canonical implementation.
type Triangulation interface {

	// InfiniteVertex returns the mesh's single infinite vertex, or NilVertex
	// while the mesh is empty.
	InfiniteVertex() VertexID

	// VertexCount returns the number of finite vertices.
	VertexCount() int

	// CellCount returns the number of finite cells.
	CellCount() int

	// Vertex resolves a vertex handle. The returned pointer stays valid only
	// until the next mutation of the mesh.
	Vertex(v VertexID) *Vertex

	// Cell resolves a cell handle under the same validity rule as Vertex.
	Cell(c CellID) *Cell
}

// VertexConverter produces target vertices from source vertices during a
// structural copy.
type VertexConverter interface {

	// CreateVertex is invoked the first time a source vertex is discovered and
	// returns the new target vertex. Structural identity (the Cell back-ref)
	// is left to the copy engine.
	CreateVertex(src *Vertex) Vertex

	// PopulateVertex transfers heavier payload onto an already created target
	// vertex without altering its structural identity.
	PopulateVertex(src *Vertex, dst *Vertex)
}

// CellConverter produces target cells from source cells during a structural
// copy. srcID is the handle of src within the source mesh, available for
// provenance back-references.
type CellConverter interface {
	CreateCell(src *Cell, srcID CellID) Cell
	PopulateCell(src *Cell, srcID CellID, dst *Cell)
}

// Visitor receives the mutation hook points fired by a remeshing run.
// A single Visitor instance is embedded in a mesh and accumulates state
// across the whole run. Implementations are not assumed reentrant; a visitor
// shared between workers must document its own thread-safety.
type Visitor interface {

	// BeforeSplit fires immediately before an edge is split. The edge's
	// endpoints and incident cells are still intact.
	BeforeSplit(t Triangulation, e Edge)

	// AfterSplit fires once the split completes and v is fully linked.
	AfterSplit(t Triangulation, v VertexID)

	// AfterAddCell fires whenever a cell is replaced during remeshing.
	// newCell is linked; oldCell survives only as a provenance key.
	AfterAddCell(oldCell, newCell CellID)

	// BeforeFlip fires with the cell in its pre-flip configuration.
	BeforeFlip(c CellID)

	// AfterFlip fires with the cell in its post-flip configuration.
	AfterFlip(c CellID)
}

// NopVisitor is the default Visitor: every hook is a no-op.
type NopVisitor struct{}

func (NopVisitor) BeforeSplit(Triangulation, Edge) {}

func (NopVisitor) AfterSplit(Triangulation, VertexID) {}

func (NopVisitor) AfterAddCell(CellID, CellID) {}

func (NopVisitor) BeforeFlip(CellID) {}

func (NopVisitor) AfterFlip(CellID) {}

// MeshInfo summarizes the element counts of a mesh.
type MeshInfo struct {
	NumVerts     int // finite vertices
	NumCells     int // finite cells
	NumHullCells int // cells incident to the infinite vertex
}

// MeshState is the surface a catalog needs from a mesh: read access, a
// serialized form, and a stable identity.
type MeshState interface {
	Triangulation

	// MarshalOut appends the mesh's binary encoding to in and returns it.
	MarshalOut(in []byte) ([]byte, error)

	// MeshID returns the mesh's run-scoped identity.
	MeshID() uuid.UUID

	// GetInfo returns element counts.
	GetInfo() MeshInfo
}

// OnMeshHit receives meshes selected from a catalog. Ownership of each mesh
// travels through the channel.
type OnMeshHit chan<- MeshState

// MeshSelector bounds a catalog selection by element counts. Zero-valued
// bounds are ignored.
type MeshSelector struct {
	Min MeshInfo
	Max MeshInfo
}

// CatalogOpts specifies params for opening a mesh catalog.
type CatalogOpts struct {
	DbPathName string // omit for an in-memory db
	ReadOnly   bool   // open in read-only mode
}

// Catalog wraps a database of encoded mesh graphs, giving remeshing runs a
// durable provenance store for their input meshes.
type Catalog interface {

	// TryAddMesh adds the given mesh if it doesn't already exist in its
	// current form. Returns true if the mesh was not present and was added.
	TryAddMesh(m MeshState) bool

	// NumMeshes returns the number of distinct encodings stored.
	NumMeshes() int64

	// Select pushes every stored mesh matching sel to onHit, then closes it.
	Select(sel MeshSelector, onHit OnMeshHit)

	// FetchByID returns the stored mesh carrying the given identity.
	FetchByID(id uuid.UUID) (MeshState, error)

	// IsReadOnly returns true if this catalog was opened read-only.
	IsReadOnly() bool

	Close() error
}
