package source

import (
	"net/url"
	"path"
	"strings"
)

// Format is the content class of a geometry payload. The set is closed.
type Format int

const (
	FormatUnknown Format = iota
	FormatMeshTriangle
	FormatMeshGrouped
	FormatDrafting
	FormatScene
)

var formatNames = map[Format]string{
	FormatUnknown:      "unknown",
	FormatMeshTriangle: "mesh-triangle",
	FormatMeshGrouped:  "mesh-grouped",
	FormatDrafting:     "drafting",
	FormatScene:        "scene",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "unknown"
}

var extensions = map[string]Format{
	".stl":  FormatMeshTriangle,
	".obj":  FormatMeshGrouped,
	".dxf":  FormatDrafting,
	".glb":  FormatScene,
	".gltf": FormatScene,
}

// Extensions returns the recognized file extensions of f.
func (f Format) Extensions() []string {
	var exts []string
	for ext, ff := range extensions {
		if ff == f {
			exts = append(exts, ext)
		}
	}
	return exts
}

// FormatOf infers the format from the file extension of a URL or path.
// Query strings and fragments are ignored.
func FormatOf(locator string) Format {
	p := locator
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(p, "\\", "/")))
	if f, ok := extensions[ext]; ok {
		return f
	}
	return FormatUnknown
}

// Source is a fetched geometry payload. It is not modified after creation.
type Source struct {
	URL    string
	Format Format
	Data   []byte
}
