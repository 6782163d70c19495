package gltfutil

import (
	"io"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/binzume/modelview/geom"
	"github.com/binzume/modelview/scene"
)

type exporter struct {
	doc       *gltf.Document
	materials map[*scene.Material]uint32
}

// Export converts a scene tree to a glTF document. Node transforms are written
// as matrices and drawables as non-indexed primitives.
func Export(root *scene.Node) *gltf.Document {
	e := &exporter{doc: gltf.NewDocument(), materials: map[*scene.Material]uint32{}}
	e.doc.Asset.Generator = "modelview"
	e.doc.Scenes[0].Name = root.Name
	e.doc.Scenes[0].Nodes = append(e.doc.Scenes[0].Nodes, e.node(root))
	return e.doc
}

func (e *exporter) node(n *scene.Node) uint32 {
	gn := &gltf.Node{Name: n.Name}
	if m := n.LocalMatrix(); *m != *geom.NewMatrix4() {
		m.ToArray(gn.Matrix[:])
	}
	index := uint32(len(e.doc.Nodes))
	e.doc.Nodes = append(e.doc.Nodes, gn)
	if n.Drawable != nil && len(n.Drawable.Positions) > 0 {
		gn.Mesh = gltf.Index(e.mesh(n.Name, n.Drawable))
	}
	for _, c := range n.Children {
		gn.Children = append(gn.Children, e.node(c))
	}
	return index
}

func (e *exporter) mesh(name string, d *scene.Drawable) uint32 {
	positions := make([][3]float32, len(d.Positions))
	for i := range d.Positions {
		d.Positions[i].ToArray(positions[i][:])
	}
	attributes := map[string]uint32{
		"POSITION": modeler.WritePosition(e.doc, positions),
	}
	if d.Kind == scene.Triangles && len(d.Normals) == len(d.Positions) {
		normals := make([][3]float32, len(d.Normals))
		for i := range d.Normals {
			d.Normals[i].ToArray(normals[i][:])
		}
		attributes["NORMAL"] = modeler.WriteNormal(e.doc, normals)
	}
	mode := gltf.PrimitiveTriangles
	if d.Kind == scene.LineStrip {
		mode = gltf.PrimitiveLineStrip
	}
	prim := &gltf.Primitive{Attributes: attributes, Mode: mode}
	if d.Material != nil {
		prim.Material = gltf.Index(e.material(d.Material))
	}
	e.doc.Meshes = append(e.doc.Meshes, &gltf.Mesh{Name: name, Primitives: []*gltf.Primitive{prim}})
	return uint32(len(e.doc.Meshes) - 1)
}

func (e *exporter) material(m *scene.Material) uint32 {
	if i, ok := e.materials[m]; ok {
		return i
	}
	c := m.Color
	metallic := float32(0)
	roughness := float32(1)
	if m.Shininess > 0 {
		roughness = 1 / (1 + m.Shininess/50)
	}
	e.doc.Materials = append(e.doc.Materials, &gltf.Material{
		Name: m.Name,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float32{float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255, 1},
			MetallicFactor:  &metallic,
			RoughnessFactor: &roughness,
		},
	})
	i := uint32(len(e.doc.Materials) - 1)
	e.materials[m] = i
	return i
}

// WriteBinary encodes doc as GLB.
func WriteBinary(w io.Writer, doc *gltf.Document) error {
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	return enc.Encode(doc)
}

// SaveBinary writes doc to a .glb file.
func SaveBinary(doc *gltf.Document, path string) error {
	return gltf.SaveBinary(doc, path)
}
