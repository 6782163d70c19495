package scene

import (
	"image/color"

	"github.com/binzume/modelview/geom"
)

type Kind int

const (
	Triangles Kind = iota
	LineStrip
)

func (k Kind) String() string {
	if k == LineStrip {
		return "line-strip"
	}
	return "triangles"
}

type Material struct {
	Name      string
	Color     color.RGBA
	Specular  color.RGBA
	Shininess float32
}

// DefaultMeshMaterial is phong green.
func DefaultMeshMaterial() *Material {
	return &Material{
		Name:      "mesh",
		Color:     color.RGBA{R: 0x00, G: 0xff, B: 0x00, A: 0xff},
		Specular:  color.RGBA{R: 0x11, G: 0x11, B: 0x11, A: 0xff},
		Shininess: 200,
	}
}

func DefaultLineMaterial() *Material {
	return &Material{Name: "line", Color: color.RGBA{A: 0xff}}
}

// Drawable is geometry ready for upload to a render surface.
// Triangles use three positions per triangle; LineStrip connects consecutive positions.
type Drawable struct {
	Kind      Kind
	Positions []geom.Vector3
	Normals   []geom.Vector3
	Material  *Material
}

func (d *Drawable) VertexCount() int {
	return len(d.Positions)
}

func (d *Drawable) PrimitiveCount() int {
	if d.Kind == LineStrip {
		return max(len(d.Positions)-1, 0)
	}
	return len(d.Positions) / 3
}
