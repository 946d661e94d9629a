package host

import "gonum.org/v1/gonum/spatial/r3"

// Pose is a 3x4 row-major rigid transform [R|t] as reported by the host.
//
//	p[0] p[1] p[2]  p[3]
//	p[4] p[5] p[6]  p[7]
//	p[8] p[9] p[10] p[11]
type Pose [12]float64

// IdentityPose returns the pose with no rotation at the origin.
func IdentityPose() Pose {
	return Pose{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
}

// NewPose builds a pose from a rotation matrix and a translation.
func NewPose(rot *r3.Mat, t r3.Vec) Pose {
	var p Pose
	for i := 0; i < 3; i++ {
		row := rot.VecRow(i)
		p[i*4] = row.X
		p[i*4+1] = row.Y
		p[i*4+2] = row.Z
	}
	p[3], p[7], p[11] = t.X, t.Y, t.Z
	return p
}

// TranslatedPose returns the identity rotation placed at t.
func TranslatedPose(t r3.Vec) Pose {
	p := IdentityPose()
	p[3], p[7], p[11] = t.X, t.Y, t.Z
	return p
}

// Position returns the translation column.
func (p Pose) Position() r3.Vec {
	return r3.Vec{X: p[3], Y: p[7], Z: p[11]}
}

// Axis returns the third column of the rotation, the object's local z axis
// expressed in world coordinates.
func (p Pose) Axis() r3.Vec {
	return r3.Vec{X: p[2], Y: p[6], Z: p[10]}
}

// Rotation returns the 3x3 rotation block.
func (p Pose) Rotation() *r3.Mat {
	return r3.NewMat([]float64{
		p[0], p[1], p[2],
		p[4], p[5], p[6],
		p[8], p[9], p[10],
	})
}

// Rotate applies the pose rotation to v. The host expresses forces in an
// object's reference frame this way (quaternion of the object matrix applied
// to the vector).
func (p Pose) Rotate(v r3.Vec) r3.Vec {
	return p.Rotation().MulVec(v)
}
