package registration

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/chris9182/Open3D/pointcloud"
	"github.com/chris9182/Open3D/spatialmath"
)

func lineTree(t *testing.T, xs ...float64) *pointcloud.KDTree {
	t.Helper()
	pc := pointcloud.NewWithPrealloc(len(xs))
	for _, x := range xs {
		test.That(t, pc.Set(r3.Vector{X: x}, pointcloud.NewBasicData()), test.ShouldBeNil)
	}
	tree, err := pointcloud.ToKDTree(pc)
	test.That(t, err, test.ShouldBeNil)
	return tree
}

func TestEvaluateRegistration(t *testing.T) {
	tree := lineTree(t, 0, 1, 2)
	source := []r3.Vector{{X: 0.1}, {X: 0.9}, {X: 3.5}}
	id := spatialmath.NewRigidTransform()

	result := EvaluateRegistration(source, tree, 0.5, id)
	test.That(t, result.Correspondences, test.ShouldHaveLength, 2)
	test.That(t, result.Fitness, test.ShouldAlmostEqual, 2.0/3.0, 1e-12)
	test.That(t, result.InlierRMSE, test.ShouldAlmostEqual, 0.1, 1e-9)
	test.That(t, result.Transformation, test.ShouldEqual, id)

	// the unmatched source point is simply absent
	for _, c := range result.Correspondences {
		test.That(t, c.SourceIndex, test.ShouldNotEqual, 2)
	}
}

func TestEvaluateRegistrationSentinels(t *testing.T) {
	tree := lineTree(t, 0, 1, 2)
	source := []r3.Vector{{X: 0.1}}
	id := spatialmath.NewRigidTransform()

	// a non-positive threshold short-circuits to the defined empty result
	for _, maxDist := range []float64{0, -1} {
		result := EvaluateRegistration(source, tree, maxDist, id)
		test.That(t, result.Correspondences, test.ShouldHaveLength, 0)
		test.That(t, result.Fitness, test.ShouldEqual, 0)
		test.That(t, result.InlierRMSE, test.ShouldEqual, 0)
	}

	// no matches inside the threshold: zero fitness, zero RMSE, no NaNs
	result := EvaluateRegistration([]r3.Vector{{X: 100}}, tree, 0.5, id)
	test.That(t, result.Correspondences, test.ShouldHaveLength, 0)
	test.That(t, result.Fitness, test.ShouldEqual, 0)
	test.That(t, math.IsNaN(result.InlierRMSE), test.ShouldBeFalse)
	test.That(t, result.InlierRMSE, test.ShouldEqual, 0)

	// empty source
	result = EvaluateRegistration(nil, tree, 0.5, id)
	test.That(t, result.Fitness, test.ShouldEqual, 0)
}

func TestEvaluateRegistrationThresholdBoundary(t *testing.T) {
	tree := lineTree(t, 0)
	id := spatialmath.NewRigidTransform()

	// a match exactly at the threshold is excluded, just inside is kept
	result := EvaluateRegistration([]r3.Vector{{X: 0.5}}, tree, 0.5, id)
	test.That(t, result.Correspondences, test.ShouldHaveLength, 0)

	result = EvaluateRegistration([]r3.Vector{{X: 0.499}}, tree, 0.5, id)
	test.That(t, result.Correspondences, test.ShouldHaveLength, 1)
}

func TestEvaluateRegistrationIdentityInvariance(t *testing.T) {
	tree := lineTree(t, 0, 1, 2, 3)
	source := []r3.Vector{{X: 0.2}, {X: 2.9}}
	id := spatialmath.NewRigidTransform()

	// pushing the source through the identity changes nothing
	moved := make([]r3.Vector, len(source))
	for i, p := range source {
		moved[i] = id.TransformVec(p)
	}
	a := EvaluateRegistration(source, tree, 0.5, id)
	b := EvaluateRegistration(moved, tree, 0.5, id)
	test.That(t, b.Correspondences, test.ShouldResemble, a.Correspondences)
	test.That(t, b.Fitness, test.ShouldEqual, a.Fitness)
	test.That(t, b.InlierRMSE, test.ShouldEqual, a.InlierRMSE)
}
