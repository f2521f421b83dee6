package libtet3

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/tet3systems/go-tet3/tet3"
)

// MeshDef is a fully serialized Mesh. See Mesh.MarshalOut for the format.
type MeshDef []byte

var meshDefMagic = [4]byte{'t', 'e', 't', '3'}

const meshDefVers = 1

// MarshalOut appends this mesh's binary encoding to in and returns it.
//
// Format: magic, version, kernel name, mesh uuid, vertex and cell counts,
// the infinite vertex, then per-element records. Handles are re-issued as
// dense one-based indices in storage order, so a mesh re-encodes
// byte-identically regardless of its free-slot history. The uuid makes the
// encoding identity-scoped: two structurally identical meshes still encode
// (and so digest) distinctly. Opaque Info payloads and Source
// back-references are run-scoped and not encoded.
//
// In concurrent mode the snapshot is taken under the mutation lock, so
// MarshalOut must not be called from inside a visitor hook.
func (m *Mesh) MarshalOut(in []byte) ([]byte, error) {
	m.lock()
	defer m.unlock()

	out := append(in, meshDefMagic[:]...)
	out = binary.AppendUvarint(out, meshDefVers)

	name := m.kernel.Name()
	out = binary.AppendUvarint(out, uint64(len(name)))
	out = append(out, name...)
	out = append(out, m.uid[:]...)

	// Dense re-issue of handles in storage order.
	vdense := make(map[tet3.VertexID]uint64, m.liveVerts)
	vorder := make([]tet3.VertexID, 0, m.liveVerts)
	m.VisitVerts(func(id tet3.VertexID, v *tet3.Vertex) bool {
		vdense[id] = uint64(len(vorder) + 1)
		vorder = append(vorder, id)
		return true
	})
	cdense := make(map[tet3.CellID]uint64, m.liveCells)
	corder := make([]tet3.CellID, 0, m.liveCells)
	m.visitCells(func(id tet3.CellID, c *tet3.Cell) bool {
		cdense[id] = uint64(len(corder) + 1)
		corder = append(corder, id)
		return true
	})

	out = binary.AppendUvarint(out, uint64(len(vorder)))
	out = binary.AppendUvarint(out, uint64(len(corder)))
	out = binary.AppendUvarint(out, vdense[m.infinite]) // 0 while unset

	for _, id := range vorder {
		v := &m.verts[id]
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v.Point.X))
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v.Point.Y))
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v.Point.Z))
		out = binary.AppendVarint(out, int64(v.Dim))
		out = binary.AppendVarint(out, int64(v.Stamp))
	}
	for _, id := range corder {
		c := &m.cells[id]
		for _, v := range c.Verts {
			out = binary.AppendUvarint(out, vdense[v]) // 0 for the nil handle
		}
		for _, n := range c.Neighbors {
			out = binary.AppendUvarint(out, cdense[n])
		}
		out = binary.AppendVarint(out, int64(c.Subdomain))
		out = binary.AppendVarint(out, int64(c.Stamp))
	}
	return out, nil
}

// NewMeshFromDef decodes a mesh previously written by MarshalOut.
func NewMeshFromDef(def MeshDef) (*Mesh, error) {
	m := NewMesh(MeshOpts{})
	if err := m.InitFromDef(def); err != nil {
		return nil, err
	}
	return m, nil
}

// InitFromDef clears this mesh and loads it from a MeshDef encoding.
func (m *Mesh) InitFromDef(def MeshDef) error {
	r := defReader{buf: def}

	var magic [4]byte
	if err := r.read(magic[:]); err != nil {
		return err
	}
	if magic != meshDefMagic {
		return errors.Wrap(tet3.ErrBadEncoding, "bad magic")
	}
	if vers := r.uvarint(); vers != meshDefVers {
		return errors.Wrapf(tet3.ErrBadEncoding, "unsupported version %d", vers)
	}

	nameLen := r.uvarint()
	if nameLen > 16 {
		return errors.Wrap(tet3.ErrBadEncoding, "kernel name too long")
	}
	name := make([]byte, nameLen)
	if err := r.read(name); err != nil {
		return err
	}
	kernel, err := tet3.KernelByName(string(name))
	if err != nil {
		return err
	}
	var uid uuid.UUID
	if err := r.read(uid[:]); err != nil {
		return err
	}

	numVerts := int(r.uvarint())
	numCells := int(r.uvarint())
	infDense := r.uvarint()
	if r.err != nil {
		return r.err
	}
	if infDense > uint64(numVerts) {
		return errors.Wrap(tet3.ErrBadEncoding, "infinite vertex out of range")
	}

	m.lock()
	defer m.unlock()
	m.reset()
	m.kernel = kernel
	m.uid = uid

	maxStamp := tet3.TimeStamp(0)
	for i := 0; i < numVerts; i++ {
		var v tet3.Vertex
		v.Point = r3.Vec{
			X: math.Float64frombits(r.uint64()),
			Y: math.Float64frombits(r.uint64()),
			Z: math.Float64frombits(r.uint64()),
		}
		v.Dim = tet3.Dim(r.varint())
		v.Stamp = tet3.TimeStamp(r.varint())
		if v.Stamp > maxStamp {
			maxStamp = v.Stamp
		}
		m.addVertexRecord(v)
	}
	for i := 0; i < numCells; i++ {
		var c tet3.Cell
		for s := 0; s < 4; s++ {
			dv := r.uvarint()
			if dv > uint64(numVerts) {
				return errors.Wrap(tet3.ErrBadVertexID, "cell vertex out of range")
			}
			c.Verts[s] = tet3.VertexID(dv)
		}
		for s := 0; s < 4; s++ {
			dc := r.uvarint()
			if dc > uint64(numCells) {
				return errors.Wrap(tet3.ErrBadCellID, "cell neighbor out of range")
			}
			c.Neighbors[s] = tet3.CellID(dc)
		}
		c.Subdomain = int32(r.varint())
		c.Stamp = tet3.TimeStamp(r.varint())
		if c.Stamp > maxStamp {
			maxStamp = c.Stamp
		}
		if r.err != nil {
			return r.err
		}
		if c.Verts[0] == tet3.NilVertex {
			return errors.Wrap(tet3.ErrBadEncoding, "empty cell record")
		}
		m.addCellRecord(c)
	}
	if r.err != nil {
		return r.err
	}

	m.infinite = tet3.VertexID(infDense)
	m.stampSeq = maxStamp
	m.fixIncidentCells()
	return nil
}

// defReader walks a MeshDef, latching the first decode error.
type defReader struct {
	buf []byte
	err error
}

func (r *defReader) fail() {
	if r.err == nil {
		r.err = errors.Wrap(tet3.ErrBadEncoding, "truncated mesh encoding")
	}
}

func (r *defReader) read(dst []byte) error {
	if len(r.buf) < len(dst) {
		r.fail()
		return r.err
	}
	copy(dst, r.buf)
	r.buf = r.buf[len(dst):]
	return nil
}

func (r *defReader) uvarint() uint64 {
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.fail()
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *defReader) varint() int64 {
	v, n := binary.Varint(r.buf)
	if n <= 0 {
		r.fail()
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *defReader) uint64() uint64 {
	if len(r.buf) < 8 {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf)
	r.buf = r.buf[8:]
	return v
}
