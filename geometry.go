package cubemap

import (
	"fmt"
	"math"
)

// Face is one of the six cube faces.
//
// The frame is +Y up, +Z front and +X to the right of a viewer standing at the
// center and looking at the front face.
type Face int

const (
	FacePosX Face = iota // right
	FaceNegX             // left
	FacePosY             // up
	FaceNegY             // down
	FacePosZ             // front
	FaceNegZ             // back
)

// AllFaces lists the faces in index order.
var AllFaces = [6]Face{FacePosX, FaceNegX, FacePosY, FaceNegY, FacePosZ, FaceNegZ}

var faceNames = [6]string{"+X", "-X", "+Y", "-Y", "+Z", "-Z"}

func (f Face) String() string {
	if f < FacePosX || f > FaceNegZ {
		return fmt.Sprintf("Face(%d)", int(f))
	}
	return faceNames[f]
}

// Vec3 is a direction in the cube frame.
type Vec3 struct {
	X, Y, Z float64
}

// Len returns the Euclidean length.
func (v Vec3) Len() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalize returns v scaled to unit length; the zero vector is returned as is.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return Vec3{X: v.X / l, Y: v.Y / l, Z: v.Z / l}
}

// Dot returns the dot product.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// LonLatToDirection returns the unit direction for a longitude in [-pi, pi]
// and a latitude in [-pi/2, pi/2]. Longitude 0 is the front face.
func LonLatToDirection(lon, lat float64) Vec3 {
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	return Vec3{X: cosLat * sinLon, Y: sinLat, Z: cosLat * cosLon}
}

// DirectionToLonLat returns the longitude and latitude of d, which need not be
// normalized.
func DirectionToLonLat(d Vec3) (lon, lat float64) {
	lon = math.Atan2(d.X, d.Z)
	lat = math.Atan2(d.Y, math.Hypot(d.X, d.Z))
	return lon, lat
}

// FaceUVToDirection returns the unit direction through point (u, v) of a face.
// u and v span [-1, 1]; u grows to the right and v downwards as the face is laid
// out in the cross.
func FaceUVToDirection(f Face, u, v float64) Vec3 {
	return faceDirection(f, u, v).Normalize()
}

// faceDirection is FaceUVToDirection without the normalization, valid for u and
// v slightly outside [-1, 1] as well.
func faceDirection(f Face, u, v float64) Vec3 {
	switch f {
	case FacePosX:
		return Vec3{X: 1, Y: -v, Z: -u}
	case FaceNegX:
		return Vec3{X: -1, Y: -v, Z: u}
	case FacePosY:
		return Vec3{X: u, Y: 1, Z: v}
	case FaceNegY:
		return Vec3{X: u, Y: -1, Z: -v}
	case FaceNegZ:
		return Vec3{X: -u, Y: -v, Z: -1}
	default:
		return Vec3{X: u, Y: -v, Z: 1}
	}
}

// DirectionToFaceUV selects the face whose axis has the largest magnitude in d
// and projects d onto it. Ties resolve X before Y before Z.
func DirectionToFaceUV(d Vec3) (f Face, u, v float64) {
	ax, ay, az := math.Abs(d.X), math.Abs(d.Y), math.Abs(d.Z)
	switch {
	case ax == 0 && ay == 0 && az == 0:
		return FacePosZ, 0, 0
	case ax >= ay && ax >= az:
		if d.X >= 0 {
			return FacePosX, -d.Z / ax, -d.Y / ax
		}
		return FaceNegX, d.Z / ax, -d.Y / ax
	case ay >= az:
		if d.Y >= 0 {
			return FacePosY, d.X / ay, d.Z / ay
		}
		return FaceNegY, d.X / ay, -d.Z / ay
	default:
		if d.Z >= 0 {
			return FacePosZ, d.X / az, -d.Y / az
		}
		return FaceNegZ, -d.X / az, -d.Y / az
	}
}
