package libtet3

import (
	"github.com/tet3systems/go-tet3/tet3"
)

// GeometryVertexConverter carries only geometry across a structural copy:
// the position travels through the cartesian converter, the creation stamp
// is reset, and the embedding-dimension tag is forced to full dimension.
type GeometryVertexConverter struct {
	Conv tet3.CartesianConverter
}

func (vc GeometryVertexConverter) CreateVertex(src *tet3.Vertex) tet3.Vertex {
	return tet3.Vertex{
		Point: vc.Conv.Convert(src.Point),
		Dim:   3,
		Stamp: tet3.TimeStampUnset,
	}
}

func (vc GeometryVertexConverter) PopulateVertex(src *tet3.Vertex, dst *tet3.Vertex) {
	dst.Point = vc.Conv.Convert(src.Point)
	dst.Dim = 3
}

// GeometryCellConverter transfers only the subdomain label.
type GeometryCellConverter struct{}

func (GeometryCellConverter) CreateCell(src *tet3.Cell, srcID tet3.CellID) tet3.Cell {
	return tet3.Cell{
		Subdomain: src.Subdomain,
		Stamp:     tet3.TimeStampUnset,
	}
}

func (GeometryCellConverter) PopulateCell(src *tet3.Cell, srcID tet3.CellID, dst *tet3.Cell) {
	dst.Subdomain = src.Subdomain
}

// ProvenanceVertexConverter additionally propagates the source's own
// embedding-dimension tag and opaque payload.
type ProvenanceVertexConverter struct {
	Conv tet3.CartesianConverter
}

func (vc ProvenanceVertexConverter) CreateVertex(src *tet3.Vertex) tet3.Vertex {
	return tet3.Vertex{
		Point: vc.Conv.Convert(src.Point),
		Dim:   src.Dim,
		Stamp: tet3.TimeStampUnset,
		Info:  src.Info,
	}
}

func (vc ProvenanceVertexConverter) PopulateVertex(src *tet3.Vertex, dst *tet3.Vertex) {
	dst.Point = vc.Conv.Convert(src.Point)
	dst.Dim = src.Dim
	dst.Info = src.Info
}

// ProvenanceCellConverter transfers the payload and records a back-reference
// from each target cell to the source cell it was copied from, enabling
// later provenance lookups against the original mesh.
type ProvenanceCellConverter struct{}

func (ProvenanceCellConverter) CreateCell(src *tet3.Cell, srcID tet3.CellID) tet3.Cell {
	return tet3.Cell{
		Subdomain: src.Subdomain,
		Stamp:     tet3.TimeStampUnset,
		Info:      src.Info,
		Source:    srcID,
	}
}

func (ProvenanceCellConverter) PopulateCell(src *tet3.Cell, srcID tet3.CellID, dst *tet3.Cell) {
	dst.Subdomain = src.Subdomain
	dst.Info = src.Info
	dst.Source = srcID
}
