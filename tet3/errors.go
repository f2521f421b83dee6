package tet3

import "errors"

// Errors
var (
	ErrBadEncoding     = errors.New("bad mesh encoding")
	ErrBadKernel       = errors.New("unknown coordinate kernel")
	ErrBadVertexID     = errors.New("bad mesh vertex ID")
	ErrBadCellID       = errors.New("bad mesh cell ID")
	ErrBadMeshExpr     = errors.New("bad mesh expression")
	ErrBadCatalogParam = errors.New("bad catalog param")
	ErrMeshNotFound    = errors.New("mesh not found")
)
