package camera

import (
	"math"

	"github.com/binzume/modelview/geom"
)

const (
	DefaultDamping     = 0.05
	DefaultRotateSpeed = 1
	DefaultZoomSpeed   = 1
)

// settle is the pending motion below which the controls stop moving the camera.
const settle = 1e-4

// Controls accumulates orbit and zoom input and applies it to the camera over
// several frames.
type Controls struct {
	Camera      *Camera
	Damping     float32 // fraction of pending motion applied per update
	RotateSpeed float32
	ZoomSpeed   float32

	yaw, pitch float32 // degrees
	zoom       float64 // log of the pending distance factor
}

func NewControls(c *Camera) *Controls {
	return &Controls{
		Camera:      c,
		Damping:     DefaultDamping,
		RotateSpeed: DefaultRotateSpeed,
		ZoomSpeed:   DefaultZoomSpeed,
	}
}

// Orbit queues a rotation of dx, dy degrees.
func (c *Controls) Orbit(dx, dy float32) {
	c.yaw += dx * c.RotateSpeed
	c.pitch += dy * c.RotateSpeed
}

// Zoom queues a distance factor. factor < 1 zooms in.
func (c *Controls) Zoom(factor float32) {
	if !(factor > 0) || !isFinite(factor) {
		return
	}
	c.zoom += math.Log(float64(factor)) * float64(c.ZoomSpeed)
}

// Pending reports whether queued motion remains.
func (c *Controls) Pending() bool {
	return c.yaw != 0 || c.pitch != 0 || c.zoom != 0
}

// Update applies one damped step and reports whether the camera moved.
func (c *Controls) Update() bool {
	if !c.Pending() {
		return false
	}
	k := c.Damping
	if k <= 0 || k > 1 {
		k = 1
	}

	yaw, pitch := c.yaw*k, c.pitch*k
	zoom := c.zoom * float64(k)
	c.yaw -= yaw
	c.pitch -= pitch
	c.zoom -= zoom
	if geom.Abs(c.yaw) < settle && geom.Abs(c.pitch) < settle {
		yaw += c.yaw
		pitch += c.pitch
		c.yaw, c.pitch = 0, 0
	}
	if math.Abs(c.zoom) < settle {
		zoom += c.zoom
		c.zoom = 0
	}

	if yaw != 0 || pitch != 0 {
		c.Camera.Orbit(yaw, pitch)
	}
	if zoom != 0 {
		c.Camera.Zoom(float32(math.Exp(zoom)))
	}
	return true
}

