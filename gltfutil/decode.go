// Package gltfutil reads glTF models into meshes and exports scene trees as GLB.
package gltfutil

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/binzume/modelview/geom"
	"github.com/binzume/modelview/mesh"
	"github.com/binzume/modelview/source"
)

// Decode reads a .glb or self-contained .gltf stream. Every node with a mesh
// becomes a sub-object with the node's world transform applied.
func Decode(r io.Reader) (*mesh.Mesh, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return nil, &source.ParseError{Format: source.FormatScene, Reason: "decode", Err: err}
	}
	return ToMesh(doc)
}

// ToMesh converts the default scene of doc (or all root nodes when none is set).
func ToMesh(doc *gltf.Document) (*mesh.Mesh, error) {
	m := &mesh.Mesh{}
	for _, n := range rootNodes(doc) {
		if err := convertNode(doc, m, n, geom.NewMatrix4(), 0); err != nil {
			return nil, err
		}
	}
	if len(doc.Scenes) > 0 {
		m.Name = doc.Scenes[0].Name
	}
	m.Compact()
	m.ComputeNormals()
	return m, nil
}

func rootNodes(doc *gltf.Document) []uint32 {
	if len(doc.Scenes) > 0 {
		s := 0
		if doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes) {
			s = int(*doc.Scene)
		}
		return doc.Scenes[s].Nodes
	}
	isChild := map[uint32]bool{}
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			isChild[c] = true
		}
	}
	var roots []uint32
	for i := range doc.Nodes {
		if !isChild[uint32(i)] {
			roots = append(roots, uint32(i))
		}
	}
	return roots
}

// maxNodeDepth bounds traversal of malformed documents whose node graph has cycles.
const maxNodeDepth = 64

func convertNode(doc *gltf.Document, m *mesh.Mesh, index uint32, parent *geom.Matrix4, depth int) error {
	if int(index) >= len(doc.Nodes) {
		return source.Errorf(source.FormatScene, 0, "node %d out of range", index)
	}
	if depth > maxNodeDepth {
		return source.Errorf(source.FormatScene, 0, "node hierarchy deeper than %d", maxNodeDepth)
	}
	node := doc.Nodes[index]
	world := parent.Mul(nodeMatrix(node))

	if node.Mesh != nil {
		if int(*node.Mesh) >= len(doc.Meshes) {
			return source.Errorf(source.FormatScene, 0, "mesh %d out of range", *node.Mesh)
		}
		gm := doc.Meshes[*node.Mesh]
		name := node.Name
		if name == "" {
			name = gm.Name
		}
		obj := mesh.NewObject(name)
		for i, p := range gm.Primitives {
			if err := convertPrimitive(doc, obj, p, world); err != nil {
				return fmt.Errorf("mesh %q primitive %d: %w", gm.Name, i, err)
			}
		}
		m.Objects = append(m.Objects, obj)
	}
	for _, c := range node.Children {
		if err := convertNode(doc, m, c, world, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func nodeMatrix(n *gltf.Node) *geom.Matrix4 {
	if m := n.MatrixOrDefault(); m != gltf.DefaultMatrix {
		mat := geom.Matrix4(m)
		return &mat
	}
	t, r, s := n.Translation, n.Rotation, n.Scale
	if s == [3]float32{} {
		s = [3]float32{1, 1, 1}
	}
	if r == [4]float32{} {
		r = [4]float32{0, 0, 0, 1}
	}
	return geom.NewTranslateMatrix4(t[0], t[1], t[2]).
		Mul(geom.NewRotationMatrix4FromQuaternion(geom.NewQuaternion(r[0], r[1], r[2], r[3]))).
		Mul(geom.NewScaleMatrix4(s[0], s[1], s[2]))
}

func convertPrimitive(doc *gltf.Document, obj *mesh.Object, p *gltf.Primitive, world *geom.Matrix4) error {
	if p.Mode != gltf.PrimitiveTriangles {
		slog.Warn("skip primitive", "format", "gltf", "mode", p.Mode)
		return nil
	}
	a, ok := p.Attributes["POSITION"]
	if !ok || int(a) >= len(doc.Accessors) {
		return source.Errorf(source.FormatScene, 0, "missing POSITION")
	}
	pos, err := modeler.ReadPosition(doc, doc.Accessors[a], nil)
	if err != nil {
		return &source.ParseError{Format: source.FormatScene, Reason: "read POSITION", Err: err}
	}

	var indices []uint32
	if p.Indices != nil {
		if int(*p.Indices) >= len(doc.Accessors) {
			return source.Errorf(source.FormatScene, 0, "indices %d out of range", *p.Indices)
		}
		indices, err = modeler.ReadIndices(doc, doc.Accessors[*p.Indices], nil)
		if err != nil {
			return &source.ParseError{Format: source.FormatScene, Reason: "read indices", Err: err}
		}
	} else {
		indices = make([]uint32, len(pos))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	vertex := func(i uint32) (geom.Vector3, error) {
		if int(i) >= len(pos) {
			return geom.Vector3{}, source.Errorf(source.FormatScene, 0, "index %d out of range", i)
		}
		v := world.ApplyTo(geom.NewVector3FromArray(pos[i]))
		if !v.IsFinite() {
			return geom.Vector3{}, &source.ParseError{Format: source.FormatScene, Reason: fmt.Sprintf("vertex %d", i), Err: source.ErrNonFinite}
		}
		return *v, nil
	}
	for i := 0; i+2 < len(indices); i += 3 {
		var tri [3]geom.Vector3
		for j := range tri {
			if tri[j], err = vertex(indices[i+j]); err != nil {
				return err
			}
		}
		obj.AddTriangle(tri[0], tri[1], tri[2])
	}
	return nil
}
