package pointcloud

import (
	"github.com/golang/geo/r3"
)

// CloudContains returns whether a point cloud contains the given position.
func CloudContains(cloud PointCloud, x, y, z float64) bool {
	_, got := cloud.At(x, y, z)
	return got
}

// CloudCentroid returns the centroid of a point cloud, or the zero vector if
// the cloud is empty.
func CloudCentroid(pc PointCloud) r3.Vector {
	var x, y, z float64
	n := float64(pc.Size())
	if n == 0 {
		return r3.Vector{}
	}
	pc.Iterate(0, 0, func(pt r3.Vector, d Data) bool {
		x += pt.X
		y += pt.Y
		z += pt.Z
		return true
	})
	return r3.Vector{X: x / n, Y: y / n, Z: z / n}
}

// VectorsFromCloud extracts the positions of the points from the cloud into
// a slice, in iteration order.
func VectorsFromCloud(cloud PointCloud) Vectors {
	positions := make(Vectors, 0, cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		positions = append(positions, p)
		return true
	})
	return positions
}
