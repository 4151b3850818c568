package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// matrixStorage keeps points in insertion order in a flat slice, with a map
// from position to slice offset for constant time lookup.
type matrixStorage struct {
	points   []PointAndData
	indexMap map[r3.Vector]uint
}

func (ms *matrixStorage) Size() int {
	return len(ms.points)
}

// Set validates that the point can be precisely stored before setting it in
// the cloud.
func (ms *matrixStorage) Set(p r3.Vector, d Data) error {
	if p.X > maxPreciseFloat64 || p.X < minPreciseFloat64 {
		return errors.Errorf("x component %f is out of range [%f,%f]", p.X, minPreciseFloat64, maxPreciseFloat64)
	}
	if p.Y > maxPreciseFloat64 || p.Y < minPreciseFloat64 {
		return errors.Errorf("y component %f is out of range [%f,%f]", p.Y, minPreciseFloat64, maxPreciseFloat64)
	}
	if p.Z > maxPreciseFloat64 || p.Z < minPreciseFloat64 {
		return errors.Errorf("z component %f is out of range [%f,%f]", p.Z, minPreciseFloat64, maxPreciseFloat64)
	}
	if i, found := ms.indexMap[p]; found {
		ms.points[i].D = d
		return nil
	}
	ms.points = append(ms.points, PointAndData{P: p, D: d})
	ms.indexMap[p] = uint(len(ms.points) - 1)
	return nil
}

func (ms *matrixStorage) At(x, y, z float64) (Data, bool) {
	i, found := ms.indexMap[r3.Vector{X: x, Y: y, Z: z}]
	if !found {
		return nil, false
	}
	return ms.points[i].D, true
}

func (ms *matrixStorage) Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool) {
	if numBatches <= 0 {
		for _, pd := range ms.points {
			if !fn(pd.P, pd.D) {
				return
			}
		}
		return
	}
	batchSize := (len(ms.points) + numBatches - 1) / numBatches
	lower := myBatch * batchSize
	upper := lower + batchSize
	if upper > len(ms.points) {
		upper = len(ms.points)
	}
	for i := lower; i < upper; i++ {
		if !fn(ms.points[i].P, ms.points[i].D) {
			return
		}
	}
}

func (ms *matrixStorage) EditSupported() bool {
	return true
}

func (ms *matrixStorage) IsOrdered() bool {
	return true
}
