package scene

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binzume/modelview/dxf"
	"github.com/binzume/modelview/geom"
	"github.com/binzume/modelview/mesh"
)

const eps = 1e-4

func assertVec(t *testing.T, want, got geom.Vector3) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps, "x of %v", got)
	assert.InDelta(t, want.Y, got.Y, eps, "y of %v", got)
	assert.InDelta(t, want.Z, got.Z, eps, "z of %v", got)
}

func square(x0, y0, size float32) []dxf.Entity {
	p := []geom.Vector3{{X: x0, Y: y0}, {X: x0 + size, Y: y0}, {X: x0 + size, Y: y0 + size}, {X: x0, Y: y0 + size}}
	var es []dxf.Entity
	for i := range p {
		es = append(es, &dxf.Line{Start: p[i], End: p[(i+1)%len(p)]})
	}
	return es
}

func boxDocument() *dxf.Document {
	doc := dxf.NewDocument()
	doc.Blocks["BOX"] = &dxf.Block{Name: "BOX", Entities: square(0, 0, 1)}
	doc.Entities = []dxf.Entity{
		&dxf.Insert{Block: "BOX", Position: geom.Vector3{X: 10}, Rotation: 90, Scale: geom.Vector3{X: 2, Y: 2, Z: 2}},
	}
	return doc
}

func TestAssembleMesh(t *testing.T) {
	a := mesh.NewObject("a")
	a.AddTriangle(geom.Vector3{X: 10}, geom.Vector3{X: 12}, geom.Vector3{X: 10, Y: 2})
	b := mesh.NewObject("b")
	b.AddTriangle(geom.Vector3{X: 20, Z: 4}, geom.Vector3{X: 22, Z: 4}, geom.Vector3{X: 20, Y: 2, Z: 4})
	b.AddTriangle(geom.Vector3{X: 20}, geom.Vector3{X: 22}, geom.Vector3{X: 20, Y: 2})
	m := &mesh.Mesh{Name: "parts", Objects: []*mesh.Object{a, b}}
	m.ComputeNormals()

	root := NewAssembler().AssembleMesh(m)
	require.Len(t, root.Children, 2)
	assert.Equal(t, "parts", root.Name)

	vertices := 0
	for _, d := range root.Drawables() {
		assert.Equal(t, Triangles, d.Kind)
		assert.Equal(t, "mesh", d.Material.Name)
		vertices += d.VertexCount()
	}
	assert.Equal(t, 3*m.TriangleCount(), vertices)
	assertVec(t, geom.Vector3{}, *BoundingBox(root).Center())

	// input is left untouched
	assert.Equal(t, geom.Vector3{X: 10}, m.Objects[0].Vertices[0])
}

func TestAssembleSingleObjectCenteredOnItself(t *testing.T) {
	o := mesh.NewObject("tri")
	o.AddTriangle(geom.Vector3{X: 100, Y: 100, Z: 100}, geom.Vector3{X: 104, Y: 100, Z: 100}, geom.Vector3{X: 100, Y: 102, Z: 100})
	root := NewAssembler().AssembleMesh(&mesh.Mesh{Objects: []*mesh.Object{o}})
	b := BoundingBox(root)
	assertVec(t, geom.Vector3{}, *b.Center())
	assertVec(t, geom.Vector3{X: 4, Y: 2}, *b.Size())
}

func TestAssembleDraftingBox(t *testing.T) {
	root, report := NewAssembler().AssembleDrafting(boxDocument())
	require.Empty(t, report.Errors)
	assert.Equal(t, 1, report.Inserts)
	assert.Equal(t, 4, report.Strips)

	assert.InDelta(t, -math.Pi/2, root.Rotation.X, eps)
	require.Len(t, root.Children, 1)
	group := root.Children[0]
	require.Len(t, group.Children, 1)

	insert := group.Children[0]
	assert.Equal(t, "BOX", insert.Name)
	assertVec(t, geom.Vector3{X: 10}, insert.Position)
	assert.InDelta(t, math.Pi/2, insert.Rotation.Z, eps)
	assertVec(t, geom.Vector3{X: 2, Y: 2, Z: 2}, insert.Scale)
	require.Len(t, insert.Children, 4)
	for _, c := range insert.Children {
		require.NotNil(t, c.Drawable)
		assert.Equal(t, LineStrip, c.Drawable.Kind)
		assert.Empty(t, c.Children)
	}

	// block point (1,0,0): scale 2, rotate 90 about Z, translate (10,0,0) gives (10,2,0)
	m := insert.LocalMatrix()
	assertVec(t, geom.Vector3{X: 10, Y: 2}, *m.ApplyTo(&geom.Vector3{X: 1}))

	// translated to the center of x 8..10, y 0..2
	assertVec(t, geom.Vector3{X: -9, Y: -1}, group.Position)

	b := BoundingBox(root)
	assertVec(t, geom.Vector3{}, *b.Center())
	// drafting Y becomes -Z after the frame correction
	assertVec(t, geom.Vector3{X: 2, Y: 0, Z: 2}, *b.Size())
}

func TestMissingBlockIsSkipped(t *testing.T) {
	doc := dxf.NewDocument()
	doc.Entities = square(0, 0, 4)
	withMissing := dxf.NewDocument()
	withMissing.Entities = append(square(0, 0, 4), &dxf.Insert{Block: "NOPE", Scale: geom.Vector3{X: 1, Y: 1, Z: 1}})

	a := NewAssembler()
	want, _ := a.AssembleDrafting(doc)
	got, report := a.AssembleDrafting(withMissing)

	assert.Equal(t, 1, report.Count(ErrReferenceMissing))
	assert.Equal(t, 0, report.Count(ErrRecursionLimit))
	assert.Equal(t, want, got)
}

func TestSelfReferenceTerminates(t *testing.T) {
	doc := dxf.NewDocument()
	loop := &dxf.Insert{Block: "LOOP", Position: geom.Vector3{X: 1}, Scale: geom.Vector3{X: 1, Y: 1, Z: 1}}
	doc.Blocks["LOOP"] = &dxf.Block{Name: "LOOP", Entities: append(square(0, 0, 1), loop)}
	doc.Entities = []dxf.Entity{loop}

	a := NewAssembler()
	a.MaxInsertDepth = 8
	root, report := a.AssembleDrafting(doc)

	assert.Equal(t, 1, report.Count(ErrRecursionLimit))
	assert.Equal(t, 8, report.Inserts)
	assert.Len(t, root.Drawables(), 8*4)
}

func TestBranchingReferenceHitsNodeBudget(t *testing.T) {
	doc := dxf.NewDocument()
	twice := []dxf.Entity{
		&dxf.Insert{Block: "TREE", Scale: geom.Vector3{X: 1, Y: 1, Z: 1}},
		&dxf.Insert{Block: "TREE", Scale: geom.Vector3{X: 1, Y: 1, Z: 1}},
	}
	doc.Blocks["TREE"] = &dxf.Block{Name: "TREE", Entities: append(square(0, 0, 1), twice...)}
	doc.Entities = twice[:1]

	a := NewAssembler()
	a.MaxNodes = 5000
	root, report := a.AssembleDrafting(doc)
	assert.GreaterOrEqual(t, report.Count(ErrRecursionLimit), 1)
	assert.LessOrEqual(t, root.Count(), 5002)
}

func TestBlockBasePoint(t *testing.T) {
	doc := dxf.NewDocument()
	doc.Blocks["B"] = &dxf.Block{Name: "B", Base: geom.Vector3{X: 5, Y: 5}, Entities: square(5, 5, 1)}
	doc.Entities = []dxf.Entity{&dxf.Insert{Block: "B", Scale: geom.Vector3{X: 1, Y: 1, Z: 1}}}

	root, _ := NewAssembler().AssembleDrafting(doc)
	insert := root.Children[0].Children[0]
	require.Len(t, insert.Children, 1)
	assertVec(t, geom.Vector3{X: -5, Y: -5}, insert.Children[0].Position)
	assert.Len(t, insert.Children[0].Children, 4)
}

func TestAssembleIsPure(t *testing.T) {
	doc := boxDocument()
	a := NewAssembler()
	first, _ := a.AssembleDrafting(doc)
	second, _ := a.AssembleDrafting(doc)
	assert.Equal(t, first, second)
	assert.Equal(t, first.Count(), second.Count())
}

func TestEntityOrderDoesNotChangeBounds(t *testing.T) {
	es := append(square(0, 0, 3), &dxf.Polyline{Points: []geom.Vector3{{X: -2, Y: 7}, {X: 1, Y: 1}}})
	reversed := make([]dxf.Entity, len(es))
	for i, e := range es {
		reversed[len(es)-1-i] = e
	}
	d1, d2 := dxf.NewDocument(), dxf.NewDocument()
	d1.Entities, d2.Entities = es, reversed

	a := NewAssembler()
	r1, _ := a.AssembleDrafting(d1)
	r2, _ := a.AssembleDrafting(d2)
	b1, b2 := BoundingBox(r1), BoundingBox(r2)
	assertVec(t, b1.Min, b2.Min)
	assertVec(t, b1.Max, b2.Max)
}
