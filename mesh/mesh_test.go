package mesh

import (
	"testing"

	"github.com/binzume/modelview/geom"
)

func cube(name string, min, size float32) *Object {
	o := NewObject(name)
	p := func(x, y, z float32) geom.Vector3 {
		return geom.Vector3{X: min + x*size, Y: min + y*size, Z: min + z*size}
	}
	o.AddTriangle(p(0, 0, 0), p(1, 1, 0), p(1, 0, 0))
	o.AddTriangle(p(0, 0, 1), p(1, 0, 1), p(1, 1, 1))
	return o
}

func TestObjectCounts(t *testing.T) {
	tests := []struct {
		name      string
		obj       *Object
		triangles int
		empty     bool
	}{
		{"empty", NewObject("e"), 0, true},
		{"two triangles", cube("c", 0, 1), 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.obj.TriangleCount(); got != tt.triangles {
				t.Errorf("TriangleCount() = %d, want %d", got, tt.triangles)
			}
			if got := tt.obj.VertexCount(); got != tt.triangles*3 {
				t.Errorf("VertexCount() = %d, want %d", got, tt.triangles*3)
			}
			if got := tt.obj.IsEmpty(); got != tt.empty {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.empty)
			}
		})
	}
}

func TestBoundingBoxIsReplacedNotMutated(t *testing.T) {
	o := cube("c", 0, 2)
	b1 := o.BoundingBox()
	before := *b1

	o.Translate(geom.NewVector3(1, 1, 1))
	b2 := o.BoundingBox()

	if *b1 != before {
		t.Error("cached box was mutated in place", b1)
	}
	if b1 == b2 {
		t.Error("bounding box was not recomputed")
	}
	if b2.Min != *geom.NewVector3(1, 1, 1) || b2.Max != *geom.NewVector3(3, 3, 3) {
		t.Error("recomputed box: ", b2)
	}
}

func TestMeshCenter(t *testing.T) {
	m := &Mesh{Objects: []*Object{cube("a", 10, 2), cube("b", 20, 2)}}
	offset := m.Center()

	if *offset != *geom.NewVector3(-16, -16, -16) {
		t.Error("offset: ", offset)
	}
	if c := m.BoundingBox().Center(); c.Len() > 1e-5 {
		t.Error("center not at origin: ", c)
	}
	// relative layout is preserved
	if d := m.Objects[1].BoundingBox().Min.Sub(&m.Objects[0].BoundingBox().Min); *d != *geom.NewVector3(10, 10, 10) {
		t.Error("layout changed: ", d)
	}
}

func TestComputeNormals(t *testing.T) {
	o := NewObject("tri")
	o.AddTriangle(geom.Vector3{}, geom.Vector3{X: 1}, geom.Vector3{Y: 1})
	o.ComputeNormals()
	if len(o.Normals) != 3 {
		t.Fatal("normals: ", o.Normals)
	}
	for _, n := range o.Normals {
		if n != *geom.NewVector3(0, 0, 1) {
			t.Error("normal: ", n)
		}
	}
}

func TestCompact(t *testing.T) {
	m := &Mesh{Objects: []*Object{NewObject("empty"), cube("c", 0, 1)}}
	m.Compact()
	if len(m.Objects) != 1 || m.Objects[0].Name != "c" {
		t.Error("Compact: ", m.Objects)
	}
	if m.TriangleCount() != 2 || m.VertexCount() != 6 {
		t.Error("counts: ", m.TriangleCount(), m.VertexCount())
	}
}
