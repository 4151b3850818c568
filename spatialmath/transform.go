// Package spatialmath provides rigid-body math for 3D point data.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RigidTransform is a 4x4 homogeneous transform holding a rotation and a
// translation. Values are never mutated after construction; composing
// transforms produces a fresh value so earlier results can be kept around
// for comparison.
type RigidTransform struct {
	m *mat.Dense
}

// NewRigidTransform returns the identity transform.
func NewRigidTransform() *RigidTransform {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		m.Set(i, i, 1)
	}
	return &RigidTransform{m: m}
}

// NewRigidTransformFromFlat builds a transform from 16 row-major values.
func NewRigidTransformFromFlat(flat []float64) (*RigidTransform, error) {
	if len(flat) != 16 {
		return nil, errors.Errorf("expected 16 row-major values, got %d", len(flat))
	}
	data := make([]float64, 16)
	copy(data, flat)
	return &RigidTransform{m: mat.NewDense(4, 4, data)}, nil
}

// NewRigidTransformFromParts builds a transform from a 3x3 rotation matrix
// and a translation vector.
func NewRigidTransformFromParts(rotation *mat.Dense, translation r3.Vector) (*RigidTransform, error) {
	r, c := rotation.Dims()
	if r != 3 || c != 3 {
		return nil, errors.Errorf("rotation must be 3x3, got %dx%d", r, c)
	}
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, rotation.At(i, j))
		}
	}
	m.Set(0, 3, translation.X)
	m.Set(1, 3, translation.Y)
	m.Set(2, 3, translation.Z)
	m.Set(3, 3, 1)
	return &RigidTransform{m: m}, nil
}

// Flat returns the 16 row-major values of the transform.
func (t *RigidTransform) Flat() []float64 {
	out := make([]float64, 16)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i*4+j] = t.m.At(i, j)
		}
	}
	return out
}

// Compose left-multiplies delta onto t, returning delta * t. This is the
// update rule for incremental registration: the delta maps frame n-1 to
// frame n and the receiver maps frame 0 to frame n-1.
func (t *RigidTransform) Compose(delta *RigidTransform) *RigidTransform {
	m := mat.NewDense(4, 4, nil)
	m.Mul(delta.m, t.m)
	return &RigidTransform{m: m}
}

// TransformVec applies the full transform to a point.
func (t *RigidTransform) TransformVec(v r3.Vector) r3.Vector {
	m := t.m
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z + m.At(0, 3),
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z + m.At(1, 3),
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z + m.At(2, 3),
	}
}

// RotateVec applies only the rotation part of the transform, for direction
// vectors such as surface normals.
func (t *RigidTransform) RotateVec(v r3.Vector) r3.Vector {
	m := t.m
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// Rotation returns a copy of the 3x3 rotation block.
func (t *RigidTransform) Rotation() *mat.Dense {
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, t.m.At(i, j))
		}
	}
	return rot
}

// Translation returns the translation part of the transform.
func (t *RigidTransform) Translation() r3.Vector {
	return r3.Vector{X: t.m.At(0, 3), Y: t.m.At(1, 3), Z: t.m.At(2, 3)}
}

// Mat returns a copy of the underlying 4x4 matrix.
func (t *RigidTransform) Mat() *mat.Dense {
	return mat.DenseCopyOf(t.m)
}

// ApproxEqual reports whether two transforms agree elementwise within tol.
func (t *RigidTransform) ApproxEqual(other *RigidTransform, tol float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(t.m.At(i, j)-other.m.At(i, j)) > tol {
				return false
			}
		}
	}
	return true
}
