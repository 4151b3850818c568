package registration

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/chris9182/Open3D/spatialmath"
)

// PointToPoint estimates the rigid transform minimizing the sum of squared
// Euclidean distances between matched pairs, solved in closed form with the
// SVD-based absolute orientation method.
type PointToPoint struct{}

// ComputeTransformation returns the incremental transform aligning the
// matched source points onto their targets. At least three non-collinear
// correspondences are required.
func (e *PointToPoint) ComputeTransformation(
	source, target *CloudBuffer,
	corres Correspondences,
) (*spatialmath.RigidTransform, error) {
	if len(corres) < 3 {
		return nil, errors.Errorf("point-to-point estimation needs at least 3 correspondences, got %d", len(corres))
	}

	var sourceCentroid, targetCentroid r3.Vector
	for _, c := range corres {
		sourceCentroid = sourceCentroid.Add(source.Points[c.SourceIndex])
		targetCentroid = targetCentroid.Add(target.Points[c.TargetIndex])
	}
	n := float64(len(corres))
	sourceCentroid = sourceCentroid.Mul(1 / n)
	targetCentroid = targetCentroid.Mul(1 / n)

	// Cross-covariance of the centered pairs.
	h := mat.NewDense(3, 3, nil)
	for _, c := range corres {
		s := source.Points[c.SourceIndex].Sub(sourceCentroid)
		q := target.Points[c.TargetIndex].Sub(targetCentroid)
		sv := [3]float64{s.X, s.Y, s.Z}
		qv := [3]float64{q.X, q.Y, q.Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				h.Set(i, j, h.At(i, j)+sv[i]*qv[j])
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize cross-covariance matrix")
	}
	values := svd.Values(nil)
	const rcond = 1e-12
	if values[1] <= rcond*values[0] {
		return nil, errors.New("degenerate correspondences: matched points are collinear")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// R = V D U^T with D correcting an improper rotation.
	rotation := mat.NewDense(3, 3, nil)
	rotation.Mul(&v, u.T())
	if mat.Det(rotation) < 0 {
		d := mat.NewDiagDense(3, []float64{1, 1, -1})
		var vd mat.Dense
		vd.Mul(&v, d)
		rotation.Mul(&vd, u.T())
	}

	rotated := matVec(rotation, sourceCentroid)
	translation := targetCentroid.Sub(rotated)
	return spatialmath.NewRigidTransformFromParts(rotation, translation)
}

func matVec(m *mat.Dense, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}
