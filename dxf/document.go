// Package dxf reads AutoCAD DXF drawings: header code page, block
// definitions and LINE, POLYLINE, LWPOLYLINE and INSERT entities.
package dxf

import (
	"github.com/binzume/modelview/geom"
)

// Entity is one of *Line, *Polyline or *Insert.
type Entity interface {
	EntityLayer() string
	isEntity()
}

type Line struct {
	Layer string
	Start geom.Vector3
	End   geom.Vector3
}

// Polyline covers both POLYLINE and LWPOLYLINE.
type Polyline struct {
	Layer  string
	Points []geom.Vector3
	Closed bool
}

// Insert places an instance of a block. Block references are not resolved by the parser.
type Insert struct {
	Layer    string
	Block    string
	Position geom.Vector3
	Rotation float32 // degrees about Z
	Scale    geom.Vector3
}

func (e *Line) EntityLayer() string     { return e.Layer }
func (e *Polyline) EntityLayer() string { return e.Layer }
func (e *Insert) EntityLayer() string   { return e.Layer }

func (*Line) isEntity()     {}
func (*Polyline) isEntity() {}
func (*Insert) isEntity()   {}

// Points returns the vertices of the line as a two point strip.
func (e *Line) Points() []geom.Vector3 {
	return []geom.Vector3{e.Start, e.End}
}

// Strip returns the points to draw, repeating the first point when closed.
func (e *Polyline) Strip() []geom.Vector3 {
	if !e.Closed || len(e.Points) < 3 {
		return e.Points
	}
	strip := make([]geom.Vector3, 0, len(e.Points)+1)
	strip = append(strip, e.Points...)
	return append(strip, e.Points[0])
}

type Block struct {
	Name     string
	Base     geom.Vector3
	Entities []Entity
}

type Document struct {
	Version  string // $ACADVER
	CodePage string // $DWGCODEPAGE
	Blocks   map[string]*Block
	Entities []Entity
	Warnings []string
}

func NewDocument() *Document {
	return &Document{Blocks: map[string]*Block{}}
}

// Inserts returns the number of INSERT entities in the top-level entity list.
func (d *Document) Inserts() int {
	n := 0
	for _, e := range d.Entities {
		if _, ok := e.(*Insert); ok {
			n++
		}
	}
	return n
}
