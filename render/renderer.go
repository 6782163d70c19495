package render

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/binzume/modelview/camera"
	"github.com/binzume/modelview/geom"
	"github.com/binzume/modelview/scene"
)

type Phase int

const (
	Unmounted Phase = iota
	SceneInitialized
	TornDown
)

func (p Phase) String() string {
	switch p {
	case SceneInitialized:
		return "scene-initialized"
	case TornDown:
		return "torn-down"
	default:
		return "unmounted"
	}
}

type Options struct {
	FrameRate       float64
	FOV             float32
	Near            float32
	Far             float32
	DefaultDistance float32
	FitMultiplier   float32
	Damping         float32
	RotateSpeed     float32
	ZoomSpeed       float32
}

func DefaultOptions() Options {
	return Options{
		FrameRate:       60,
		FOV:             camera.DefaultFOV,
		Near:            camera.DefaultNear,
		Far:             camera.DefaultFar,
		DefaultDistance: camera.DefaultDistance,
		FitMultiplier:   camera.DefaultFitMultiplier,
		Damping:         camera.DefaultDamping,
		RotateSpeed:     camera.DefaultRotateSpeed,
		ZoomSpeed:       camera.DefaultZoomSpeed,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FrameRate <= 0 {
		o.FrameRate = d.FrameRate
	}
	if o.FOV <= 0 || o.FOV >= 180 {
		o.FOV = d.FOV
	}
	if o.Near <= 0 {
		o.Near = d.Near
	}
	if o.Far <= o.Near {
		o.Far = max(d.Far, o.Near*2)
	}
	if o.DefaultDistance <= 0 {
		o.DefaultDistance = d.DefaultDistance
	}
	if o.FitMultiplier <= 0 {
		o.FitMultiplier = d.FitMultiplier
	}
	if o.RotateSpeed <= 0 {
		o.RotateSpeed = d.RotateSpeed
	}
	if o.ZoomSpeed <= 0 {
		o.ZoomSpeed = d.ZoomSpeed
	}
	return o
}

// Renderer owns a surface and everything uploaded to it. Frames and scene
// swaps are serialized.
type Renderer struct {
	mu       sync.Mutex
	surface  Surface
	camera   *camera.Camera
	controls *camera.Controls
	root     *scene.Node
	items    []Item
	phase    Phase
	frames   uint64
	lastErr  error

	loop *Loop
}

// NewRenderer binds s and builds the camera and controls.
func NewRenderer(s Surface, opts Options) (*Renderer, error) {
	if s == nil {
		return nil, ErrSurfaceUnavailable
	}
	w, h := s.Size()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrSurfaceUnavailable, w, h)
	}

	opts = opts.withDefaults()
	cam := camera.New(opts.FOV, float32(w)/float32(h), opts.Near, opts.Far)
	cam.DefaultDistance = opts.DefaultDistance
	cam.FitMultiplier = opts.FitMultiplier
	cam.SetDistance(opts.DefaultDistance)
	controls := camera.NewControls(cam)
	controls.Damping = opts.Damping
	controls.RotateSpeed = opts.RotateSpeed
	controls.ZoomSpeed = opts.ZoomSpeed

	r := &Renderer{
		surface:  s,
		camera:   cam,
		controls: controls,
		root:     scene.NewNode("root"),
		phase:    SceneInitialized,
	}
	r.loop = NewLoop(time.Duration(float64(time.Second)/opts.FrameRate), r.tick)
	return r, nil
}

func (r *Renderer) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Frames returns the number of frames drawn.
func (r *Renderer) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Live returns the number of drawables currently uploaded.
func (r *Renderer) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Camera returns a copy of the current camera.
func (r *Renderer) Camera() camera.Camera {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.camera
}

func (r *Renderer) releaseAll() {
	for _, it := range r.items {
		r.surface.Release(it.Handle)
	}
	r.items = nil
	r.root = scene.NewNode("root")
}

// SetScene releases every resource of the previous scene, then uploads root.
// If an upload fails the renderer is left with an empty scene.
func (r *Renderer) SetScene(root *scene.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != SceneInitialized {
		return ErrSurfaceUnavailable
	}
	r.releaseAll()
	if root == nil {
		return nil
	}

	var err error
	root.Walk(func(n *scene.Node, world *geom.Matrix4) {
		if err != nil || n.Drawable == nil {
			return
		}
		var h Handle
		if h, err = r.surface.Upload(n.Drawable); err == nil {
			r.items = append(r.items, Item{Handle: h, World: world})
		}
	})
	if err != nil {
		r.releaseAll()
		return fmt.Errorf("upload %q: %w", root.Name, err)
	}
	r.root = root
	return nil
}

// FitCamera frames the current scene and returns the camera distance.
func (r *Renderer) FitCamera() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return camera.Fit(r.camera, scene.BoundingBox(r.root))
}

// Frame applies pending control motion and draws once.
func (r *Renderer) Frame() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != SceneInitialized {
		return ErrSurfaceUnavailable
	}
	r.controls.Update()
	if err := r.surface.Draw(r.items, r.camera); err != nil {
		return err
	}
	r.frames++
	return nil
}

func (r *Renderer) tick() {
	err := r.Frame()
	r.mu.Lock()
	repeated := err != nil && r.lastErr != nil && err.Error() == r.lastErr.Error()
	r.lastErr = err
	r.mu.Unlock()
	if err != nil && !repeated {
		slog.Warn("frame failed", "err", err)
	}
}

// Start begins continuous redraw until ctx is done or Stop/Close is called.
func (r *Renderer) Start(ctx context.Context) error {
	if r.Phase() != SceneInitialized {
		return ErrSurfaceUnavailable
	}
	r.loop.Start(ctx)
	return nil
}

func (r *Renderer) Stop() {
	r.loop.Stop()
}

func (r *Renderer) Running() bool {
	return r.loop.Running()
}

func (r *Renderer) Orbit(dx, dy float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controls.Orbit(dx, dy)
}

func (r *Renderer) Zoom(factor float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controls.Zoom(factor)
}

// Close stops the loop and releases every uploaded resource and the surface.
// It is safe to call more than once.
func (r *Renderer) Close() error {
	r.loop.Stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == TornDown {
		return nil
	}
	r.phase = TornDown
	r.releaseAll()
	return r.surface.Close()
}
