package registration

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/chris9182/Open3D/pointcloud"
	"github.com/chris9182/Open3D/spatialmath"
)

// CloudBuffer is a flat, index-addressable view of a cloud used on the
// estimation hot path. Normals is nil when the cloud carries none;
// otherwise it is parallel to Points.
type CloudBuffer struct {
	Points  []r3.Vector
	Normals []r3.Vector
}

// BufferFromCloud flattens a point cloud into a CloudBuffer in iteration
// order.
func BufferFromCloud(cloud pointcloud.PointCloud) *CloudBuffer {
	buf := &CloudBuffer{Points: make([]r3.Vector, 0, cloud.Size())}
	withNormals := cloud.MetaData().HasNormal
	if withNormals {
		buf.Normals = make([]r3.Vector, 0, cloud.Size())
	}
	cloud.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		buf.Points = append(buf.Points, p)
		if withNormals {
			var n r3.Vector
			if d != nil && d.HasNormal() {
				n = d.Normal()
			}
			buf.Normals = append(buf.Normals, n)
		}
		return true
	})
	return buf
}

// BufferFromKDTree views the snapshot of a built index as a CloudBuffer.
// The buffer shares the tree's snapshot slices, so indices line up with the
// Neighbor indices the tree reports.
func BufferFromKDTree(t *pointcloud.KDTree) *CloudBuffer {
	return &CloudBuffer{Points: t.Points(), Normals: t.Normals()}
}

// TransformationEstimation computes the incremental rigid transform that
// best aligns the matched source points onto their target counterparts
// under the strategy's loss. Implementations are chosen once per
// registration run.
type TransformationEstimation interface {
	ComputeTransformation(source, target *CloudBuffer, corres Correspondences) (*spatialmath.RigidTransform, error)
}

// Names accepted by NewEstimation.
const (
	PointToPointMethod = "PointToPoint"
	PointToPlaneMethod = "PointToPlane"
)

// NewEstimation maps a method name from configuration onto an estimator.
func NewEstimation(method string) (TransformationEstimation, error) {
	switch method {
	case PointToPointMethod:
		return &PointToPoint{}, nil
	case PointToPlaneMethod:
		return &PointToPlane{}, nil
	default:
		return nil, errors.Errorf("registration method %q not implemented", method)
	}
}
