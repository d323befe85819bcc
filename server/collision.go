package main

import "math"

// Vec3 is a point or direction in arena space. It encodes as a JSON/msgpack
// array [x, y, z].
type Vec3 [3]float64

// Add returns v + o
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns v - o
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Scale returns v * s
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Dot returns the dot product of v and o
func (v Vec3) Dot(o Vec3) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

// Len returns the Euclidean length of v
func (v Vec3) Len() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize returns v scaled to unit length. ok is false for the zero vector.
func (v Vec3) Normalize() (n Vec3, ok bool) {
	l := v.Len()
	if l == 0 || math.IsNaN(l) {
		return Vec3{}, false
	}
	return v.Scale(1 / l), true
}

// Box is an axis-aligned bounding box
type Box struct {
	Min Vec3
	Max Vec3
}

// BoxAround returns the box centered on c with the given half extents
func BoxAround(c, half Vec3) Box {
	return Box{Min: c.Sub(half), Max: c.Add(half)}
}

// Translate returns the box moved by d
func (b Box) Translate(d Vec3) Box {
	return Box{Min: b.Min.Add(d), Max: b.Max.Add(d)}
}

// BoxPlaneOverlap reports whether the plane n·p + offset = 0 passes through the
// box. The box is projected onto n by picking, per axis, the min or max corner
// according to the sign of that normal component. Only axis-aligned normals are
// expected; other normals give a conservative answer.
func BoxPlaneOverlap(b Box, n Vec3, offset float64) bool {
	var lo, hi float64
	for i := 0; i < 3; i++ {
		if n[i] > 0 {
			lo += n[i] * b.Min[i]
			hi += n[i] * b.Max[i]
		} else {
			lo += n[i] * b.Max[i]
			hi += n[i] * b.Min[i]
		}
	}
	return lo <= -offset && hi >= -offset
}

// BoxBoxOverlap is a separating-axis test on the three coordinate axes.
// Touching boxes overlap.
func BoxBoxOverlap(a, b Box) bool {
	for i := 0; i < 3; i++ {
		if a.Max[i] < b.Min[i] || a.Min[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Reflect returns v - 2(v·n)n. The result is not renormalized.
func Reflect(v, n Vec3) Vec3 {
	return v.Sub(n.Scale(2 * v.Dot(n)))
}

// paddleDeflection scales the sphere's offset from the paddle center before the
// surface normal is added. Larger values give steeper returns off the paddle edge.
const paddleDeflection = 2.0

// ReflectOffPaddle returns the unit exit direction for a sphere at spherePos
// striking a paddle at paddlePos whose outward face is normal. Off-center hits
// leave at a steeper angle. ok is false when the offset exactly cancels the
// normal and no direction can be derived.
func ReflectOffPaddle(spherePos, normal, paddlePos Vec3) (dir Vec3, ok bool) {
	return spherePos.Sub(paddlePos).Scale(paddleDeflection).Add(normal).Normalize()
}
