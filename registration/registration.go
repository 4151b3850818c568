// Package registration aligns pairs of 3D point clouds with a multi-scale
// iterative closest point pipeline built on the pointcloud KD tree.
package registration

import (
	"github.com/chris9182/Open3D/spatialmath"
)

// Correspondence pairs a source point with its matched target point.
type Correspondence struct {
	// SourceIndex is an offset into the source buffer.
	SourceIndex int
	// TargetIndex is an offset into the target index snapshot.
	TargetIndex int
	// SquaredDistance between the pair at match time.
	SquaredDistance float64
}

// Correspondences is the set of inlier pairs found by a correspondence
// search. Source points without a match inside the distance threshold do
// not appear.
type Correspondences []Correspondence

// ICPConvergenceCriteria bounds the inner loop of one registration scale.
type ICPConvergenceCriteria struct {
	// RelativeFitness is the fitness change below which the loop may stop.
	RelativeFitness float64
	// RelativeRMSE is the inlier RMSE change below which the loop may stop.
	RelativeRMSE float64
	// MaxIterations caps the loop when the thresholds never fire.
	MaxIterations int
}

// isConverged reports whether the loop should stop after the given
// iteration. Both deltas must be under their thresholds at once; the test
// never fires on the first iteration of a scale since there is no previous
// stable result to compare against.
func (c ICPConvergenceCriteria) isConverged(iteration int, prevFitness, fitness, prevRMSE, rmse float64) bool {
	if iteration == 0 {
		return false
	}
	return abs(prevFitness-fitness) < c.RelativeFitness && abs(prevRMSE-rmse) < c.RelativeRMSE
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// RegistrationResult reports the outcome of a correspondence search or a
// full registration run. Each convergence-loop iteration produces a fresh
// result so that consecutive results can be compared.
type RegistrationResult struct {
	// Transformation maps source coordinates into the target frame.
	Transformation *spatialmath.RigidTransform
	// Correspondences are the inlier pairs at this transformation.
	Correspondences Correspondences
	// Fitness is the inlier fraction: matches over source size.
	Fitness float64
	// InlierRMSE is the root mean square distance over the inlier pairs,
	// zero when there are no inliers.
	InlierRMSE float64
}
