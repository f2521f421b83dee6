package tet3

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Kernel describes a coordinate representation: the precision a mesh stores
// its points with. Points travel through the API as canonical float64
// cartesian vectors; Quantize maps such a vector onto the nearest point the
// representation can hold.
type Kernel interface {
	Name() string
	Quantize(p r3.Vec) r3.Vec
}

var (
	// Cartesian64 stores points at full float64 precision.
	Cartesian64 Kernel = cartesian64{}

	// Cartesian32 stores points rounded through float32 components.
	Cartesian32 Kernel = cartesian32{}
)

type cartesian64 struct{}

func (cartesian64) Name() string { return "c64" }

func (cartesian64) Quantize(p r3.Vec) r3.Vec { return p }

type cartesian32 struct{}

func (cartesian32) Name() string { return "c32" }

func (cartesian32) Quantize(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: float64(float32(p.X)),
		Y: float64(float32(p.Y)),
		Z: float64(float32(p.Z)),
	}
}

// KernelByName resolves a kernel from its encoded name.
func KernelByName(name string) (Kernel, error) {
	switch name {
	case "c64":
		return Cartesian64, nil
	case "c32":
		return Cartesian32, nil
	}
	return nil, ErrBadKernel
}

// CartesianConverter converts points between two coordinate representations.
// Fidelity is bounded only by the two kernels' own precision; no additional
// rounding is imposed.
type CartesianConverter struct {
	From Kernel
	To   Kernel
}

// Convert maps a point held in the From representation onto the To
// representation.
func (cv CartesianConverter) Convert(p r3.Vec) r3.Vec {
	return cv.To.Quantize(p)
}
