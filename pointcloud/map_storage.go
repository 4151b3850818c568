package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// mapStorage is a storage backed by a bare map keyed on position. Iteration
// order is not stable across calls.
type mapStorage struct {
	points map[r3.Vector]Data
}

func (ms *mapStorage) Size() int {
	return len(ms.points)
}

// Set validates that the point can be precisely stored before setting it in
// the cloud.
func (ms *mapStorage) Set(p r3.Vector, d Data) error {
	if p.X > maxPreciseFloat64 || p.X < minPreciseFloat64 {
		return errors.Errorf("x component %f is out of range [%f,%f]", p.X, minPreciseFloat64, maxPreciseFloat64)
	}
	if p.Y > maxPreciseFloat64 || p.Y < minPreciseFloat64 {
		return errors.Errorf("y component %f is out of range [%f,%f]", p.Y, minPreciseFloat64, maxPreciseFloat64)
	}
	if p.Z > maxPreciseFloat64 || p.Z < minPreciseFloat64 {
		return errors.Errorf("z component %f is out of range [%f,%f]", p.Z, minPreciseFloat64, maxPreciseFloat64)
	}
	ms.points[p] = d
	return nil
}

func (ms *mapStorage) At(x, y, z float64) (Data, bool) {
	d, found := ms.points[r3.Vector{X: x, Y: y, Z: z}]
	return d, found
}

func (ms *mapStorage) Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool) {
	if numBatches <= 0 {
		for p, d := range ms.points {
			if !fn(p, d) {
				return
			}
		}
		return
	}
	i := 0
	for p, d := range ms.points {
		if i%numBatches == myBatch {
			if !fn(p, d) {
				return
			}
		}
		i++
	}
}

func (ms *mapStorage) EditSupported() bool {
	return true
}

func (ms *mapStorage) IsOrdered() bool {
	return false
}
