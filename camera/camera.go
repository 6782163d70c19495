// Package camera implements the perspective camera, camera fitting and damped
// orbit controls.
package camera

import (
	"math"

	"github.com/binzume/modelview/geom"
)

const (
	DefaultFOV           = 75
	DefaultNear          = 0.1
	DefaultFar           = 1000
	DefaultDistance      = 5
	DefaultFitMultiplier = 1.5
)

// Camera is a perspective camera looking at Target from Position.
type Camera struct {
	FOV    float32 // vertical, degrees
	Aspect float32
	Near   float32
	Far    float32

	Position geom.Vector3
	Target   geom.Vector3
	Up       geom.Vector3

	// DefaultDistance is used when the framed geometry is degenerate.
	DefaultDistance float32
	FitMultiplier   float32
}

// New returns a camera on the +Z axis looking at the origin.
func New(fov, aspect, near, far float32) *Camera {
	c := &Camera{
		FOV:             fov,
		Aspect:          aspect,
		Near:            near,
		Far:             far,
		Up:              geom.Vector3{Y: 1},
		DefaultDistance: DefaultDistance,
		FitMultiplier:   DefaultFitMultiplier,
	}
	c.Position = geom.Vector3{Z: c.DefaultDistance}
	return c
}

func Default(aspect float32) *Camera {
	return New(DefaultFOV, aspect, DefaultNear, DefaultFar)
}

// ViewVector returns Position - Target.
func (c *Camera) ViewVector() *geom.Vector3 {
	return c.Position.Sub(&c.Target)
}

// Direction returns the unit vector from the target toward the camera.
func (c *Camera) Direction() *geom.Vector3 {
	v := c.ViewVector()
	if v.LenSqr() == 0 {
		return &geom.Vector3{Z: 1}
	}
	return v.Normalize()
}

func (c *Camera) Distance() float32 {
	return c.ViewVector().Len()
}

// SetDistance moves the camera along its view direction.
func (c *Camera) SetDistance(d float32) {
	c.Position = *c.Target.Add(c.Direction().Scale(d))
}

func (c *Camera) ViewMatrix() *geom.Matrix4 {
	return geom.NewLookAtMatrix4(&c.Position, &c.Target, &c.Up)
}

func (c *Camera) ProjectionMatrix() *geom.Matrix4 {
	return geom.NewPerspectiveMatrix4(c.FOV, c.Aspect, c.Near, c.Far)
}

// ViewProjectionMatrix returns projection * view.
func (c *Camera) ViewProjectionMatrix() *geom.Matrix4 {
	return c.ProjectionMatrix().Mul(c.ViewMatrix())
}

// Orbit rotates the camera around the target by dx degrees about the up vector
// and dy degrees about the right vector, keeping its distance.
func (c *Camera) Orbit(dx, dy float32) {
	offset := c.ViewVector()
	if offset.LenSqr() == 0 {
		offset = &geom.Vector3{Z: c.DefaultDistance}
	}
	right := c.Up.Cross(offset).Normalize()
	qx := geom.NewQuaternionFromAxisAngle(&c.Up, geom.DegToRad(dx))
	qy := geom.NewQuaternionFromAxisAngle(right, geom.DegToRad(dy))
	q := qy.Mul(qx)
	c.Position = *c.Target.Add(q.ApplyTo(offset))
	c.Up = *qy.ApplyTo(&c.Up).Normalize()
}

// Zoom scales the distance to the target by factor. Values below 1 move closer.
func (c *Camera) Zoom(factor float32) {
	if factor <= 0 || !isFinite(factor) {
		return
	}
	d := c.Distance() * factor
	if d < c.Near {
		d = c.Near
	}
	c.SetDistance(d)
}

// FitDistance returns maxDim / sin(fov/2) * multiplier, or false when the
// result would not be a finite positive distance.
func FitDistance(maxDim, fov, multiplier float32) (float32, bool) {
	if !(maxDim > 0) || !isFinite(maxDim) || !(fov > 0) {
		return 0, false
	}
	s := math.Sin(float64(geom.DegToRad(fov)) / 2)
	if s <= 0 {
		return 0, false
	}
	d := float32(float64(maxDim) / s * float64(multiplier))
	if !(d > 0) || !isFinite(d) {
		return 0, false
	}
	return d, true
}

// Fit places the camera so box is fully visible and returns the distance used.
// Degenerate boxes keep the target and fall back to DefaultDistance.
func Fit(c *Camera, box *geom.Box3) float32 {
	multiplier := c.FitMultiplier
	if multiplier <= 0 {
		multiplier = DefaultFitMultiplier
	}
	var maxDim float32
	if !box.IsEmpty() {
		maxDim = box.MaxDim()
	}
	d, ok := FitDistance(maxDim, c.FOV, multiplier)
	if !ok {
		c.SetDistance(c.DefaultDistance)
		return c.DefaultDistance
	}
	c.Target = *box.Center()
	c.SetDistance(d)
	if reach := d + maxDim; reach > c.Far {
		c.Far = reach * 2
	}
	return d
}

func isFinite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}
