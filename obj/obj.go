// Package obj decodes Wavefront OBJ geometry into named sub-objects.
package obj

import (
	"bufio"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/binzume/modelview/geom"
	"github.com/binzume/modelview/mesh"
	"github.com/binzume/modelview/source"
)

type parser struct {
	line     int
	vertices []geom.Vector3
	mesh     *mesh.Mesh
	current  *mesh.Object
	skipped  map[string]int
}

func (p *parser) errorf(format string, a ...interface{}) error {
	return source.Errorf(source.FormatMeshGrouped, p.line, format, a...)
}

func (p *parser) object() *mesh.Object {
	if p.current == nil {
		p.begin("")
	}
	return p.current
}

func (p *parser) begin(name string) {
	p.current = mesh.NewObject(name)
	p.mesh.Objects = append(p.mesh.Objects, p.current)
}

func (p *parser) readFloats(args []string, n int) ([]float32, error) {
	if len(args) < n {
		return nil, p.errorf("expected %d values, got %d", n, len(args))
	}
	values := make([]float32, n)
	for i := range values {
		f, err := source.ParseFloat(args[i])
		if err != nil {
			return nil, &source.ParseError{Format: source.FormatMeshGrouped, Line: p.line, Reason: "invalid number", Err: err}
		}
		values[i] = f
	}
	return values, nil
}

// vertexIndex resolves a face reference such as "3", "-1", "3/1" or "3//2".
func (p *parser) vertexIndex(ref string) (int, error) {
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		ref = ref[:i]
	}
	n, err := strconv.Atoi(ref)
	if err != nil {
		return 0, &source.ParseError{Format: source.FormatMeshGrouped, Line: p.line, Reason: "invalid face index", Err: err}
	}
	idx := n - 1
	if n < 0 {
		idx = len(p.vertices) + n
	}
	if n == 0 || idx < 0 || idx >= len(p.vertices) {
		return 0, p.errorf("face references undefined vertex %d", n)
	}
	return idx, nil
}

func (p *parser) readFace(args []string) error {
	if len(args) < 3 {
		slog.Warn("skip degenerate face", "format", "obj", "line", p.line, "vertices", len(args))
		return nil
	}
	poly := make([]*geom.Vector3, len(args))
	for i, ref := range args {
		idx, err := p.vertexIndex(ref)
		if err != nil {
			return err
		}
		poly[i] = &p.vertices[idx]
	}
	o := p.object()
	if len(poly) == 3 {
		o.AddTriangle(*poly[0], *poly[1], *poly[2])
		return nil
	}
	for _, t := range geom.Triangulate(poly) {
		o.AddTriangle(*poly[t[0]], *poly[t[1]], *poly[t[2]])
	}
	return nil
}

// Parse decodes an OBJ stream. Each "o" or "g" statement starts a new sub-object;
// sub-objects without faces are dropped.
func Parse(r io.Reader) (*mesh.Mesh, error) {
	p := &parser{mesh: &mesh.Mesh{}, skipped: map[string]int{}}

	handlers := map[string]func(args []string) error{
		"v": func(args []string) error {
			v, err := p.readFloats(args, 3)
			if err != nil {
				return err
			}
			p.vertices = append(p.vertices, geom.Vector3{X: v[0], Y: v[1], Z: v[2]})
			return nil
		},
		"f": p.readFace,
		"o": func(args []string) error {
			p.begin(strings.Join(args, " "))
			return nil
		},
		"g": func(args []string) error {
			p.begin(strings.Join(args, " "))
			return nil
		},
		"vt":     nil,
		"vn":     nil,
		"vp":     nil,
		"s":      nil,
		"l":      nil,
		"mtllib": nil,
		"usemtl": nil,
	}

	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for s.Scan() {
		p.line++
		text := s.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		handler, ok := handlers[fields[0]]
		if !ok {
			p.skipped[fields[0]]++
			continue
		}
		if handler == nil {
			continue
		}
		if err := handler(fields[1:]); err != nil {
			return nil, err
		}
	}
	if err := s.Err(); err != nil {
		return nil, &source.ParseError{Format: source.FormatMeshGrouped, Line: p.line, Reason: "read", Err: err}
	}
	for k, n := range p.skipped {
		slog.Debug("skip keyword", "format", "obj", "keyword", k, "count", n)
	}

	p.mesh.Compact()
	if len(p.mesh.Objects) > 0 {
		p.mesh.Name = p.mesh.Objects[0].Name
	}
	p.mesh.ComputeNormals()
	return p.mesh, nil
}
