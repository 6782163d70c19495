// Package mesh is the intermediate triangle representation produced by the
// surface mesh decoders.
package mesh

import (
	"github.com/binzume/modelview/geom"
)

// Object is a named triangle soup. Vertices holds three entries per triangle.
type Object struct {
	Name     string
	Vertices []geom.Vector3
	Normals  []geom.Vector3

	bbox *geom.Box3
}

func NewObject(name string) *Object {
	return &Object{Name: name}
}

// AddTriangle appends a triangle and invalidates cached bounds.
func (o *Object) AddTriangle(a, b, c geom.Vector3) {
	o.Vertices = append(o.Vertices, a, b, c)
	o.bbox = nil
}

func (o *Object) TriangleCount() int {
	return len(o.Vertices) / 3
}

func (o *Object) VertexCount() int {
	return len(o.Vertices)
}

func (o *Object) IsEmpty() bool {
	return len(o.Vertices) < 3
}

// BoundingBox returns the cached bounds, computing them on first use.
// The returned box must not be modified.
func (o *Object) BoundingBox() *geom.Box3 {
	if o.bbox == nil {
		o.bbox = geom.NewBox3FromPoints(o.Vertices)
	}
	return o.bbox
}

// Translate moves every vertex by offset. Cached bounds are dropped, not adjusted.
func (o *Object) Translate(offset *geom.Vector3) {
	for i := range o.Vertices {
		o.Vertices[i] = *o.Vertices[i].Add(offset)
	}
	o.bbox = nil
}

// ComputeNormals sets flat per-face normals.
func (o *Object) ComputeNormals() {
	o.Normals = make([]geom.Vector3, len(o.Vertices))
	for i := 0; i+2 < len(o.Vertices); i += 3 {
		n := *geom.FaceNormal(&o.Vertices[i], &o.Vertices[i+1], &o.Vertices[i+2])
		o.Normals[i], o.Normals[i+1], o.Normals[i+2] = n, n, n
	}
}

// Mesh is a decoded model: one or more named sub-objects rendered together.
type Mesh struct {
	Name    string
	Objects []*Object
}

func (m *Mesh) TriangleCount() int {
	n := 0
	for _, o := range m.Objects {
		n += o.TriangleCount()
	}
	return n
}

func (m *Mesh) VertexCount() int {
	n := 0
	for _, o := range m.Objects {
		n += o.VertexCount()
	}
	return n
}

// BoundingBox returns a new box enclosing all objects.
func (m *Mesh) BoundingBox() *geom.Box3 {
	b := geom.NewBox3()
	for _, o := range m.Objects {
		b = b.Union(o.BoundingBox())
	}
	return b
}

// Center translates all objects so the aggregate bounding box center is the origin.
// It returns the applied offset.
func (m *Mesh) Center() *geom.Vector3 {
	offset := m.BoundingBox().Center().Scale(-1)
	for _, o := range m.Objects {
		o.Translate(offset)
	}
	return offset
}

// ComputeNormals sets flat normals on every object.
func (m *Mesh) ComputeNormals() {
	for _, o := range m.Objects {
		o.ComputeNormals()
	}
}

// Compact drops objects without triangles.
func (m *Mesh) Compact() {
	objects := m.Objects[:0]
	for _, o := range m.Objects {
		if !o.IsEmpty() {
			objects = append(objects, o)
		}
	}
	m.Objects = objects
}
