package registration

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/chris9182/Open3D/spatialmath"
)

// PointToPlane estimates the rigid transform minimizing the sum of squared
// distances from each source point to the tangent plane of its matched
// target point. The rotation is linearized about the current alignment and
// the resulting 6x6 normal equations are solved directly. Target points
// must carry surface normals.
type PointToPlane struct{}

// ComputeTransformation returns the incremental transform for the matched
// pairs. It fails when there are no correspondences, when the target has no
// normals, or when the pair geometry leaves the system singular.
func (e *PointToPlane) ComputeTransformation(
	source, target *CloudBuffer,
	corres Correspondences,
) (*spatialmath.RigidTransform, error) {
	if len(corres) == 0 {
		return nil, errors.New("point-to-plane estimation needs at least one correspondence")
	}
	if len(target.Normals) == 0 {
		return nil, errors.New("point-to-plane estimation requires target normals")
	}

	// Normal equations J'J x = -J'r over pose x = [wx wy wz tx ty tz],
	// with one row J = [s x n, n] and residual r = (s - q) . n per pair.
	var ata [6][6]float64
	var atb [6]float64
	for _, c := range corres {
		s := source.Points[c.SourceIndex]
		q := target.Points[c.TargetIndex]
		n := target.Normals[c.TargetIndex]
		residual := s.Sub(q).Dot(n)
		cross := s.Cross(n)
		row := [6]float64{cross.X, cross.Y, cross.Z, n.X, n.Y, n.Z}
		for i := 0; i < 6; i++ {
			for j := i; j < 6; j++ {
				ata[i][j] += row[i] * row[j]
			}
			atb[i] -= row[i] * residual
		}
	}

	sym := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			sym.SetSym(i, j, ata[i][j])
		}
	}
	b := mat.NewVecDense(6, atb[:])

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, errors.New("degenerate correspondences: point-to-plane system is singular")
	}
	var pose mat.VecDense
	if err := chol.SolveVecTo(&pose, b); err != nil {
		return nil, errors.Wrap(err, "solving point-to-plane system")
	}

	rotation := rotationFromEuler(pose.AtVec(0), pose.AtVec(1), pose.AtVec(2))
	translation := r3.Vector{X: pose.AtVec(3), Y: pose.AtVec(4), Z: pose.AtVec(5)}
	return spatialmath.NewRigidTransformFromParts(rotation, translation)
}

// rotationFromEuler builds Rz(gamma)*Ry(beta)*Rx(alpha) from the solved
// rotation vector.
func rotationFromEuler(alpha, beta, gamma float64) *mat.Dense {
	ca, sa := math.Cos(alpha), math.Sin(alpha)
	cb, sb := math.Cos(beta), math.Sin(beta)
	cg, sg := math.Cos(gamma), math.Sin(gamma)
	return mat.NewDense(3, 3, []float64{
		cg * cb, cg*sb*sa - sg*ca, cg*sb*ca + sg*sa,
		sg * cb, sg*sb*sa + cg*ca, sg*sb*ca - cg*sa,
		-sb, cb * sa, cb * ca,
	})
}
