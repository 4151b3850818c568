package pointcloud

import (
	"github.com/golang/geo/r3"
)

// PointAndData is a tiny struct to facilitate returning nearest neighbors in
// a neat way.
type PointAndData struct {
	P r3.Vector
	D Data
}

// storage is the backend for a PointCloud implementation.
type storage interface {
	Size() int
	Set(p r3.Vector, d Data) error
	At(x, y, z float64) (Data, bool)
	Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool)
	EditSupported() bool
	IsOrdered() bool
}
