package viewer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/binzume/modelview/dxf"
	"github.com/binzume/modelview/gltfutil"
	"github.com/binzume/modelview/mesh"
	"github.com/binzume/modelview/obj"
	"github.com/binzume/modelview/scene"
	"github.com/binzume/modelview/source"
	"github.com/binzume/modelview/stl"
)

// Model is a decoded and assembled document.
type Model struct {
	URL     string
	Format  source.Format
	Mesh    *mesh.Mesh    // surface formats
	Drawing *dxf.Document // drafting format
	Report  *scene.Report // drafting format
	Root    *scene.Node
}

// Fetch resolves the format of url and fetches its payload. Unknown
// extensions fail with source.ErrUnsupportedFormat before any I/O.
func Fetch(ctx context.Context, f source.Fetcher, url string) (*source.Source, error) {
	format := source.FormatOf(url)
	if format == source.FormatUnknown {
		return nil, source.ErrUnsupportedFormat
	}
	data, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return &source.Source{URL: url, Format: format, Data: data}, nil
}

// Decode parses src and assembles its scene tree. A panic while decoding is
// returned as an error.
func Decode(src *source.Source, a *scene.Assembler) (m *Model, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("%s: internal error: %v", src.Format, r)
		}
	}()

	m = &Model{URL: src.URL, Format: src.Format}
	r := bytes.NewReader(src.Data)
	switch src.Format {
	case source.FormatMeshTriangle:
		m.Mesh, err = stl.Parse(r)
	case source.FormatMeshGrouped:
		m.Mesh, err = obj.Parse(r)
	case source.FormatScene:
		m.Mesh, err = gltfutil.Decode(r)
	case source.FormatDrafting:
		m.Drawing, err = dxf.Parse(r)
	default:
		return nil, source.ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}

	if m.Drawing != nil {
		m.Root, m.Report = a.AssembleDrafting(m.Drawing)
		if n := len(m.Report.Errors); n > 0 {
			slog.Warn("drawing assembled with skipped inserts", "url", src.URL, "skipped", n)
		}
	} else {
		m.Root = a.AssembleMesh(m.Mesh)
	}
	return m, nil
}

// Open fetches and decodes url.
func Open(ctx context.Context, f source.Fetcher, a *scene.Assembler, url string) (*Model, error) {
	src, err := Fetch(ctx, f, url)
	if err != nil {
		return nil, err
	}
	return Decode(src, a)
}
