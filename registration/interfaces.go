package registration

import (
	"context"

	"github.com/chris9182/Open3D/pointcloud"
)

// CloudSource produces point clouds from some external origin such as a
// scan file or a live sensor. Decoding is the collaborator's concern, not
// this package's.
type CloudSource interface {
	NextPointCloud(ctx context.Context) (pointcloud.PointCloud, error)
}

// NormalEstimator fills in per-point surface normals, which point-to-plane
// registration requires on the target cloud. Estimation is treated as a
// black box; any implementation that returns a cloud whose points carry
// normals will do.
type NormalEstimator interface {
	EstimateNormals(ctx context.Context, cloud pointcloud.PointCloud) (pointcloud.PointCloud, error)
}
