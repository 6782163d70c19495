// Package render drives a rendering surface: it owns the uploaded scene
// resources, the camera and the periodic frame loop.
package render

import (
	"errors"

	"github.com/binzume/modelview/camera"
	"github.com/binzume/modelview/geom"
	"github.com/binzume/modelview/scene"
)

// ErrSurfaceUnavailable is returned when no surface is bound or it has been closed.
var ErrSurfaceUnavailable = errors.New("render surface unavailable")

// Handle identifies a drawable uploaded to a surface.
type Handle uint64

// Item is one uploaded drawable placed in world space.
type Item struct {
	Handle Handle
	World  *geom.Matrix4
}

// Surface is a drawing target such as a GPU context or an offscreen image.
// Calls are serialized by the Renderer.
type Surface interface {
	Size() (width, height int)
	Upload(d *scene.Drawable) (Handle, error)
	Release(h Handle)
	Draw(items []Item, cam *camera.Camera) error
	Close() error
}
