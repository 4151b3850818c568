package pointcloud

import (
	"image/color"

	"github.com/golang/geo/r3"

	"github.com/chris9182/Open3D/spatialmath"
)

// TransformCloud returns a new cloud with every position moved by the given
// rigid transform. Surface normals are rotated by the rotation part only.
// Point data is copied, never shared with the input cloud.
func TransformCloud(cloud PointCloud, tf *spatialmath.RigidTransform) (PointCloud, error) {
	transformed := NewWithPrealloc(cloud.Size())
	var err error
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		if d != nil && d.HasNormal() {
			nd := NewNormalData(tf.RotateVec(d.Normal()))
			if d.HasColor() {
				r, g, b := d.RGB255()
				nd = nd.SetColor(color.NRGBA{R: r, G: g, B: b, A: 255})
			}
			if d.HasValue() {
				nd = nd.SetValue(d.Value())
			}
			d = nd
		}
		err = transformed.Set(tf.TransformVec(p), d)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return transformed, nil
}
