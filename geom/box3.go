package geom

import "math"

// Box3 is an axis-aligned bounding box. The zero value is not empty; use NewBox3.
type Box3 struct {
	Min Vector3
	Max Vector3
}

func NewBox3() *Box3 {
	return &Box3{
		Min: Vector3{X: math.MaxFloat32, Y: math.MaxFloat32, Z: math.MaxFloat32},
		Max: Vector3{X: -math.MaxFloat32, Y: -math.MaxFloat32, Z: -math.MaxFloat32},
	}
}

// NewBox3FromPoints returns the bounds of points. It is empty when points is empty.
func NewBox3FromPoints(points []Vector3) *Box3 {
	b := NewBox3()
	for i := range points {
		b.ExpandByPoint(&points[i])
	}
	return b
}

func (b *Box3) IsEmpty() bool {
	return b.Max.X < b.Min.X || b.Max.Y < b.Min.Y || b.Max.Z < b.Min.Z
}

func (b *Box3) ExpandByPoint(p *Vector3) *Box3 {
	b.Min = *b.Min.Min(p)
	b.Max = *b.Max.Max(p)
	return b
}

// Union returns a new box enclosing b and b2.
func (b *Box3) Union(b2 *Box3) *Box3 {
	if b2.IsEmpty() {
		r := *b
		return &r
	}
	if b.IsEmpty() {
		r := *b2
		return &r
	}
	return &Box3{Min: *b.Min.Min(&b2.Min), Max: *b.Max.Max(&b2.Max)}
}

// Center returns the zero vector for an empty box.
func (b *Box3) Center() *Vector3 {
	if b.IsEmpty() {
		return &Vector3{}
	}
	return b.Min.Add(&b.Max).Scale(0.5)
}

// Size returns the zero vector for an empty box.
func (b *Box3) Size() *Vector3 {
	if b.IsEmpty() {
		return &Vector3{}
	}
	return b.Max.Sub(&b.Min)
}

func (b *Box3) MaxDim() Element {
	s := b.Size()
	return max(s.X, s.Y, s.Z)
}

// ApplyMatrix4 returns the bounds of the eight transformed corners.
func (b *Box3) ApplyMatrix4(m *Matrix4) *Box3 {
	r := NewBox3()
	if b.IsEmpty() {
		return r
	}
	for i := 0; i < 8; i++ {
		c := Vector3{X: b.Min.X, Y: b.Min.Y, Z: b.Min.Z}
		if i&1 != 0 {
			c.X = b.Max.X
		}
		if i&2 != 0 {
			c.Y = b.Max.Y
		}
		if i&4 != 0 {
			c.Z = b.Max.Z
		}
		r.ExpandByPoint(m.ApplyTo(&c))
	}
	return r
}
