// Package raster is an offscreen software implementation of render.Surface.
// Triangles are flat shaded with one directional light and drawn back to front.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sort"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f32"
	"golang.org/x/image/vector"

	"github.com/binzume/modelview/camera"
	"github.com/binzume/modelview/geom"
	"github.com/binzume/modelview/render"
	"github.com/binzume/modelview/scene"
)

const (
	ambient   = 0.35
	lineWidth = 1.2
)

type Surface struct {
	mu         sync.Mutex
	img        *image.RGBA
	background color.RGBA
	z          *vector.Rasterizer

	next      render.Handle
	drawables map[render.Handle]*scene.Drawable
	closed    bool
}

func New(width, height int, background color.RGBA) *Surface {
	s := &Surface{
		img:        image.NewRGBA(image.Rect(0, 0, width, height)),
		background: background,
		z:          vector.NewRasterizer(width, height),
		drawables:  map[render.Handle]*scene.Drawable{},
	}
	s.clear()
	return s
}

func (s *Surface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Upload copies the drawable's buffers, as a GPU upload would.
func (s *Surface) Upload(d *scene.Drawable) (render.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, render.ErrSurfaceUnavailable
	}
	c := *d
	c.Positions = append([]geom.Vector3(nil), d.Positions...)
	c.Normals = nil
	if c.Material == nil {
		if c.Kind == scene.LineStrip {
			c.Material = scene.DefaultLineMaterial()
		} else {
			c.Material = scene.DefaultMeshMaterial()
		}
	}
	s.next++
	s.drawables[s.next] = &c
	return s.next, nil
}

func (s *Surface) Release(h render.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drawables, h)
}

// Live returns the number of uploaded drawables not yet released.
func (s *Surface) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drawables)
}

func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.drawables = map[render.Handle]*scene.Drawable{}
	return nil
}

func (s *Surface) clear() {
	draw.Draw(s.img, s.img.Bounds(), image.NewUniform(s.background), image.Point{}, draw.Src)
}

type primitive struct {
	points []f32.Vec2
	depth  float32
	color  color.RGBA
}

type projector struct {
	mvp  *geom.Matrix4
	w, h float32
}

// project returns screen coordinates and NDC depth. ok is false behind the camera.
func (p *projector) project(v *geom.Vector3) (f32.Vec2, float32, bool) {
	q, w := p.mvp.Project(v)
	if w <= 0 || !q.IsFinite() {
		return f32.Vec2{}, 0, false
	}
	return f32.Vec2{(q.X + 1) / 2 * p.w, (1 - q.Y) / 2 * p.h}, q.Z, true
}

func (s *Surface) Draw(items []render.Item, cam *camera.Camera) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return render.ErrSurfaceUnavailable
	}
	width, height := s.Size()
	vp := cam.ViewProjectionMatrix()
	light := cam.Direction().Add(cam.Up.Scale(0.5)).Normalize()

	var tris, lines []primitive
	for _, it := range items {
		d, ok := s.drawables[it.Handle]
		if !ok {
			return fmt.Errorf("draw: unknown handle %d", it.Handle)
		}
		p := &projector{mvp: vp.Mul(it.World), w: float32(width), h: float32(height)}
		switch d.Kind {
		case scene.Triangles:
			for i := 0; i+2 < len(d.Positions); i += 3 {
				tri := d.Positions[i : i+3]
				prim := primitive{points: make([]f32.Vec2, 3)}
				visible := true
				for j := range tri {
					pt, depth, ok := p.project(&tri[j])
					if !ok {
						visible = false
						break
					}
					prim.points[j] = pt
					prim.depth += depth / 3
				}
				if !visible {
					continue
				}
				a, b, c := it.World.ApplyTo(&tri[0]), it.World.ApplyTo(&tri[1]), it.World.ApplyTo(&tri[2])
				n := geom.FaceNormal(a, b, c)
				toEye := cam.Position.Sub(a)
				if n.Dot(toEye) < 0 {
					n = n.Scale(-1)
				}
				prim.color = shade(d.Material, n, light, toEye.Normalize())
				tris = append(tris, prim)
			}
		case scene.LineStrip:
			for i := 0; i+1 < len(d.Positions); i++ {
				a, da, ok1 := p.project(&d.Positions[i])
				b, db, ok2 := p.project(&d.Positions[i+1])
				if !ok1 || !ok2 {
					continue
				}
				if quad := segment(a, b); quad != nil {
					lines = append(lines, primitive{points: quad, depth: min(da, db), color: d.Material.Color})
				}
			}
		}
	}

	// painter's algorithm, far to near
	sort.SliceStable(tris, func(i, j int) bool { return tris[i].depth > tris[j].depth })

	s.clear()
	for _, prim := range tris {
		s.fill(prim.points, prim.color)
	}
	for _, prim := range lines {
		s.fill(prim.points, prim.color)
	}
	return nil
}

func shade(m *scene.Material, n, light, view *geom.Vector3) color.RGBA {
	diffuse := float32(ambient) + (1-ambient)*max(0, n.Dot(light))
	var spec float32
	if m.Shininess > 0 {
		h := light.Add(view).Normalize()
		spec = float32(math.Pow(float64(max(0, n.Dot(h))), float64(m.Shininess)))
	}
	ch := func(base, specular uint8) uint8 {
		v := float32(base)*diffuse + float32(specular)*spec
		return uint8(min(255, max(0, v)))
	}
	return color.RGBA{
		R: ch(m.Color.R, m.Specular.R),
		G: ch(m.Color.G, m.Specular.G),
		B: ch(m.Color.B, m.Specular.B),
		A: 0xff,
	}
}

// segment returns a thin quad covering a..b.
func segment(a, b f32.Vec2) []f32.Vec2 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l := float32(math.Hypot(float64(dx), float64(dy)))
	if l == 0 {
		return nil
	}
	hw := float32(lineWidth / 2)
	px, py := -dy/l*hw, dx/l*hw
	return []f32.Vec2{
		{a[0] + px, a[1] + py},
		{b[0] + px, b[1] + py},
		{b[0] - px, b[1] - py},
		{a[0] - px, a[1] - py},
	}
}

func (s *Surface) fill(points []f32.Vec2, c color.RGBA) {
	w, h := s.Size()
	points = clip(points, float32(w), float32(h))
	if len(points) < 3 {
		return
	}
	s.z.Reset(w, h)
	s.z.DrawOp = draw.Over
	s.z.MoveTo(points[0][0], points[0][1])
	for _, p := range points[1:] {
		s.z.LineTo(p[0], p[1])
	}
	s.z.ClosePath()
	s.z.Draw(s.img, s.img.Bounds(), image.NewUniform(c), image.Point{})
}

// clip clips a polygon to the rectangle 0,0 - w,h (Sutherland-Hodgman).
func clip(poly []f32.Vec2, w, h float32) []f32.Vec2 {
	edges := []struct {
		inside func(p f32.Vec2) bool
		cross  func(a, b f32.Vec2) f32.Vec2
	}{
		{func(p f32.Vec2) bool { return p[0] >= 0 }, func(a, b f32.Vec2) f32.Vec2 { return atX(a, b, 0) }},
		{func(p f32.Vec2) bool { return p[0] <= w }, func(a, b f32.Vec2) f32.Vec2 { return atX(a, b, w) }},
		{func(p f32.Vec2) bool { return p[1] >= 0 }, func(a, b f32.Vec2) f32.Vec2 { return atY(a, b, 0) }},
		{func(p f32.Vec2) bool { return p[1] <= h }, func(a, b f32.Vec2) f32.Vec2 { return atY(a, b, h) }},
	}
	for _, e := range edges {
		if len(poly) == 0 {
			return nil
		}
		var out []f32.Vec2
		prev := poly[len(poly)-1]
		for _, cur := range poly {
			if e.inside(cur) {
				if !e.inside(prev) {
					out = append(out, e.cross(prev, cur))
				}
				out = append(out, cur)
			} else if e.inside(prev) {
				out = append(out, e.cross(prev, cur))
			}
			prev = cur
		}
		poly = out
	}
	return poly
}

func atX(a, b f32.Vec2, x float32) f32.Vec2 {
	t := (x - a[0]) / (b[0] - a[0])
	return f32.Vec2{x, a[1] + (b[1]-a[1])*t}
}

func atY(a, b f32.Vec2, y float32) f32.Vec2 {
	t := (y - a[1]) / (b[1] - a[1])
	return f32.Vec2{a[0] + (b[0]-a[0])*t, y}
}

// Image returns a copy of the last frame.
func (s *Surface) Image() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := image.NewRGBA(s.img.Bounds())
	copy(img.Pix, s.img.Pix)
	return img
}

// Thumbnail returns the last frame scaled to fit within width x height.
func (s *Surface) Thumbnail(width, height int) *image.RGBA {
	src := s.Image()
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	scale := min(float64(width)/float64(sw), float64(height)/float64(sh))
	dw, dh := max(1, int(float64(sw)*scale)), max(1, int(float64(sh)*scale))
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func (s *Surface) EncodePNG(w io.Writer) error {
	return png.Encode(w, s.Image())
}
