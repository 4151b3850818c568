package registration

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/chris9182/Open3D/pointcloud"
	"github.com/chris9182/Open3D/spatialmath"
)

// EvaluateRegistration matches every source point against the target index
// and summarizes the quality of the alignment. The source points must
// already be in the target frame; the transformation is recorded on the
// result but not re-applied here. Matching uses the single-nearest-neighbor
// hot path bounded by maxCorrespondenceDistance, mirroring a hybrid query
// with a neighbor cap of one. A non-positive maxCorrespondenceDistance
// yields the empty result with zero fitness rather than failing.
func EvaluateRegistration(
	source []r3.Vector,
	target *pointcloud.KDTree,
	maxCorrespondenceDistance float64,
	transformation *spatialmath.RigidTransform,
) RegistrationResult {
	result := RegistrationResult{Transformation: transformation}
	if target == nil || len(source) == 0 || maxCorrespondenceDistance <= 0 {
		return result
	}

	squaredMax := maxCorrespondenceDistance * maxCorrespondenceDistance
	corres := make(Correspondences, 0, len(source))
	var squaredError float64
	for i, p := range source {
		n, ok := target.NearestNeighbor(p)
		if !ok || n.SquaredDistance >= squaredMax {
			continue
		}
		corres = append(corres, Correspondence{
			SourceIndex:     i,
			TargetIndex:     n.Index,
			SquaredDistance: n.SquaredDistance,
		})
		squaredError += n.SquaredDistance
	}
	if len(corres) == 0 {
		return result
	}

	result.Correspondences = corres
	result.Fitness = float64(len(corres)) / float64(len(source))
	result.InlierRMSE = math.Sqrt(squaredError / float64(len(corres)))
	return result
}
