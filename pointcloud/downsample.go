package pointcloud

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// VoxelCoords stores voxel coordinates in the downsampling grid axes.
type VoxelCoords struct {
	I, J, K int64
}

// IsEqual tests if two VoxelCoords are the same.
func (c VoxelCoords) IsEqual(c2 VoxelCoords) bool {
	return c.I == c2.I && c.J == c2.J && c.K == c2.K
}

// GetVoxelCoordinates computes the voxel coordinates of a point, given the
// minimum point of the cloud and the voxel size.
func GetVoxelCoordinates(pt, ptMin r3.Vector, voxelSize float64) VoxelCoords {
	ref := pt.Sub(ptMin)
	return VoxelCoords{
		I: int64(math.Floor(ref.X / voxelSize)),
		J: int64(math.Floor(ref.Y / voxelSize)),
		K: int64(math.Floor(ref.Z / voxelSize)),
	}
}

// voxelAccumulator collects the running sums for one voxel of the grid.
type voxelAccumulator struct {
	count    int
	position r3.Vector
	normal   r3.Vector
	r, g, b  float64
	hasColor bool
}

// VoxelDownsample returns a new cloud with one point per occupied voxel of a
// regular grid, positioned at the average of the points that fell in it.
// Normals are averaged and re-normalized, colors are channel-averaged.
func VoxelDownsample(cloud PointCloud, voxelSize float64) (PointCloud, error) {
	if cloud == nil || cloud.Size() == 0 {
		return nil, errors.New("cannot downsample an empty point cloud")
	}
	if voxelSize <= 0 {
		return nil, errors.Errorf("voxel size must be positive, got %f", voxelSize)
	}

	meta := cloud.MetaData()
	ptMin := r3.Vector{X: meta.MinX, Y: meta.MinY, Z: meta.MinZ}

	voxels := make(map[VoxelCoords]*voxelAccumulator)
	order := make([]VoxelCoords, 0)
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		coords := GetVoxelCoordinates(p, ptMin, voxelSize)
		acc, ok := voxels[coords]
		if !ok {
			acc = &voxelAccumulator{}
			voxels[coords] = acc
			order = append(order, coords)
		}
		acc.count++
		acc.position = acc.position.Add(p)
		if d != nil {
			if d.HasNormal() {
				acc.normal = acc.normal.Add(d.Normal())
			}
			if d.HasColor() {
				r, g, b := d.RGB255()
				acc.r += float64(r)
				acc.g += float64(g)
				acc.b += float64(b)
				acc.hasColor = true
			}
		}
		return true
	})

	downsampled := NewWithPrealloc(len(voxels))
	for _, coords := range order {
		acc := voxels[coords]
		n := float64(acc.count)
		center := acc.position.Mul(1 / n)
		var d Data
		if acc.normal.Norm2() > 0 {
			d = NewNormalData(acc.normal.Normalize())
		}
		if acc.hasColor {
			c := color.NRGBA{
				R: uint8(acc.r / n),
				G: uint8(acc.g / n),
				B: uint8(acc.b / n),
				A: 255,
			}
			if d == nil {
				d = NewColoredData(c)
			} else {
				d = d.SetColor(c)
			}
		}
		if d == nil {
			d = NewBasicData()
		}
		if err := downsampled.Set(center, d); err != nil {
			return nil, err
		}
	}
	return downsampled, nil
}
