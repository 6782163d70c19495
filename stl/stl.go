// Package stl decodes STL (stereolithography) triangle meshes.
package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/binzume/modelview/geom"
	"github.com/binzume/modelview/mesh"
	"github.com/binzume/modelview/source"
)

const (
	headerSize   = 80
	triangleSize = 50
)

// Parse decodes a binary or ASCII STL payload into a single-object mesh.
func Parse(r io.Reader) (*mesh.Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseBytes(data)
}

func ParseBytes(data []byte) (*mesh.Mesh, error) {
	var obj *mesh.Object
	var err error
	if isBinary(data) || !isASCII(data) {
		obj, err = parseBinary(data)
	} else {
		obj, err = parseASCII(data)
	}
	if err != nil {
		return nil, err
	}
	obj.ComputeNormals()
	return &mesh.Mesh{Name: obj.Name, Objects: []*mesh.Object{obj}}, nil
}

func isBinary(data []byte) bool {
	if len(data) < headerSize+4 {
		return false
	}
	count := binary.LittleEndian.Uint32(data[headerSize:])
	return uint64(len(data)) == headerSize+4+triangleSize*uint64(count)
}

func isASCII(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid"))
}

type binaryParser struct {
	r   io.Reader
	err error
}

func (p *binaryParser) read(v interface{}) error {
	if p.err == nil {
		p.err = binary.Read(p.r, binary.LittleEndian, v)
	}
	return p.err
}

func (p *binaryParser) readUint32() uint32 {
	var v uint32
	p.read(&v)
	return v
}

func (p *binaryParser) readVector3() geom.Vector3 {
	var v [3]float32
	p.read(&v)
	return geom.Vector3{X: v[0], Y: v[1], Z: v[2]}
}

func (p *binaryParser) skip(n int) {
	if p.err == nil {
		_, p.err = io.CopyN(io.Discard, p.r, int64(n))
	}
}

func parseBinary(data []byte) (*mesh.Object, error) {
	if len(data) < headerSize+4 {
		return nil, source.Errorf(source.FormatMeshTriangle, 0, "header truncated (%d bytes)", len(data))
	}
	name := strings.TrimSpace(string(bytes.TrimRight(data[:headerSize], "\x00")))
	p := &binaryParser{r: bytes.NewReader(data[headerSize:])}
	count := p.readUint32()
	if want := headerSize + 4 + triangleSize*uint64(count); uint64(len(data)) < want {
		return nil, source.Errorf(source.FormatMeshTriangle, 0, "truncated: %d triangles need %d bytes, got %d", count, want, len(data))
	}

	obj := mesh.NewObject(name)
	obj.Vertices = make([]geom.Vector3, 0, count*3)
	for i := uint32(0); i < count; i++ {
		p.readVector3() // stored normal, recomputed
		a, b, c := p.readVector3(), p.readVector3(), p.readVector3()
		p.skip(2) // attribute byte count
		if p.err != nil {
			return nil, &source.ParseError{Format: source.FormatMeshTriangle, Reason: "triangle " + strconv.Itoa(int(i)), Err: p.err}
		}
		if !a.IsFinite() || !b.IsFinite() || !c.IsFinite() {
			return nil, &source.ParseError{Format: source.FormatMeshTriangle, Reason: "triangle " + strconv.Itoa(int(i)), Err: source.ErrNonFinite}
		}
		obj.AddTriangle(a, b, c)
	}
	return obj, nil
}

func parseASCII(data []byte) (*mesh.Object, error) {
	obj := mesh.NewObject("")
	var facet []geom.Vector3
	inFacet := false

	s := bufio.NewScanner(bytes.NewReader(data))
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for s.Scan() {
		line++
		fields := strings.Fields(s.Text())
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "solid":
			if line == 1 || obj.Name == "" {
				obj.Name = strings.TrimSpace(strings.Join(fields[1:], " "))
			}
		case "facet":
			facet = facet[:0]
			inFacet = true
		case "vertex":
			if len(fields) < 4 {
				return nil, source.Errorf(source.FormatMeshTriangle, line, "vertex needs 3 coordinates")
			}
			var v [3]float32
			for i := range v {
				f, err := source.ParseFloat(fields[i+1])
				if err != nil {
					return nil, &source.ParseError{Format: source.FormatMeshTriangle, Line: line, Reason: "invalid vertex", Err: err}
				}
				v[i] = f
			}
			facet = append(facet, geom.Vector3{X: v[0], Y: v[1], Z: v[2]})
		case "endfacet":
			if !inFacet {
				continue
			}
			inFacet = false
			if len(facet) != 3 {
				slog.Warn("skip facet", "format", "stl", "line", line, "vertices", len(facet))
				continue
			}
			obj.AddTriangle(facet[0], facet[1], facet[2])
		case "outer", "endloop", "endsolid":
		default:
			slog.Debug("skip token", "format", "stl", "line", line, "token", fields[0])
		}
	}
	if err := s.Err(); err != nil {
		return nil, &source.ParseError{Format: source.FormatMeshTriangle, Line: line, Reason: "read", Err: err}
	}
	return obj, nil
}
