package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/binzume/modelview/dxf"
	"github.com/binzume/modelview/geom"
	"github.com/binzume/modelview/mesh"
)

var (
	// ErrReferenceMissing is recorded for an INSERT naming an undefined block.
	ErrReferenceMissing = errors.New("block reference missing")
	// ErrRecursionLimit is recorded when block nesting exceeds the insert depth or node budget.
	ErrRecursionLimit = errors.New("block recursion limit exceeded")
)

const (
	DefaultMaxInsertDepth = 32
	DefaultMaxNodes       = 1 << 20
)

// Report lists the recoverable problems found while expanding a drawing.
type Report struct {
	Errors  []error
	Inserts int
	Strips  int
}

func (r *Report) add(err error) {
	slog.Warn("skip insert", "format", "dxf", "err", err)
	r.Errors = append(r.Errors, err)
}

// Count returns the number of recorded errors matching target.
func (r *Report) Count(target error) int {
	n := 0
	for _, err := range r.Errors {
		if errors.Is(err, target) {
			n++
		}
	}
	return n
}

// Assembler converts decoded models into scene trees. It performs no I/O and
// never modifies its input.
type Assembler struct {
	MaxInsertDepth int
	MaxNodes       int
	MeshMaterial   *Material
	LineMaterial   *Material
}

func NewAssembler() *Assembler {
	return &Assembler{
		MaxInsertDepth: DefaultMaxInsertDepth,
		MaxNodes:       DefaultMaxNodes,
		MeshMaterial:   DefaultMeshMaterial(),
		LineMaterial:   DefaultLineMaterial(),
	}
}

// AssembleMesh returns a root with one triangle drawable per sub-object.
// Vertices are translated so the center of the whole mesh is the origin.
func (a *Assembler) AssembleMesh(m *mesh.Mesh) *Node {
	offset := m.BoundingBox().Center().Scale(-1)
	root := NewNode(m.Name)
	for _, o := range m.Objects {
		d := &Drawable{
			Kind:      Triangles,
			Positions: make([]geom.Vector3, len(o.Vertices)),
			Normals:   append([]geom.Vector3(nil), o.Normals...),
			Material:  a.MeshMaterial,
		}
		for i := range o.Vertices {
			d.Positions[i] = *o.Vertices[i].Add(offset)
		}
		n := NewNode(o.Name)
		n.Drawable = d
		root.Add(n)
	}
	return root
}

type insertFrame struct {
	entities []dxf.Entity
	parent   *Node
	depth    int
}

// AssembleDrafting expands the drawing's entities and block references with an
// explicit work stack. Missing blocks and overly deep nesting are recorded in the
// report and skipped. The result is centered on the origin and rotated from
// drafting Z-up into Y-up render space.
func (a *Assembler) AssembleDrafting(doc *dxf.Document) (*Node, *Report) {
	report := &Report{}
	maxDepth := a.MaxInsertDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxInsertDepth
	}
	maxNodes := a.MaxNodes
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}

	group := NewNode("drawing")
	nodes := 1
	stack := []insertFrame{{entities: doc.Entities, parent: group}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, e := range f.entities {
			if nodes >= maxNodes {
				report.add(fmt.Errorf("%w: more than %d nodes", ErrRecursionLimit, maxNodes))
				stack = nil
				break
			}
			switch e := e.(type) {
			case *dxf.Line:
				f.parent.Add(a.lineNode("LINE", e.Points()))
				report.Strips++
				nodes++
			case *dxf.Polyline:
				strip := e.Strip()
				if len(strip) < 2 {
					slog.Debug("skip polyline", "format", "dxf", "points", len(strip))
					continue
				}
				f.parent.Add(a.lineNode("POLYLINE", strip))
				report.Strips++
				nodes++
			case *dxf.Insert:
				block, ok := doc.Blocks[e.Block]
				if !ok {
					report.add(fmt.Errorf("%w: %q", ErrReferenceMissing, e.Block))
					continue
				}
				if f.depth >= maxDepth {
					report.add(fmt.Errorf("%w: %q nested deeper than %d", ErrRecursionLimit, e.Block, maxDepth))
					continue
				}
				n := f.parent.Add(NewNode(e.Block))
				n.Position = e.Position
				n.Rotation = geom.Vector3{Z: geom.DegToRad(e.Rotation)}
				n.Scale = e.Scale
				report.Inserts++
				nodes++
				target := n
				if block.Base != (geom.Vector3{}) {
					target = n.Add(NewNode(""))
					target.Position = *block.Base.Scale(-1)
					nodes++
				}
				stack = append(stack, insertFrame{entities: block.Entities, parent: target, depth: f.depth + 1})
			}
		}
	}

	group.Position = *BoundingBox(group).Center().Scale(-1)
	root := NewNode("root")
	root.Rotation.X = -math.Pi / 2
	root.Add(group)
	return root, report
}

func (a *Assembler) lineNode(name string, points []geom.Vector3) *Node {
	n := NewNode(name)
	n.Drawable = &Drawable{
		Kind:      LineStrip,
		Positions: append([]geom.Vector3(nil), points...),
		Material:  a.LineMaterial,
	}
	return n
}
