// Package viewer loads a model by URL into a render surface and reports a
// single status signal to the host.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/binzume/modelview/camera"
	"github.com/binzume/modelview/config"
	"github.com/binzume/modelview/render"
	"github.com/binzume/modelview/scene"
	"github.com/binzume/modelview/source"
)

var ErrMounted = errors.New("viewer already mounted")

type load struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// Viewer owns at most one renderer and one document at a time. The most
// recent Load wins; results of older loads are dropped before they reach the
// renderer.
type Viewer struct {
	cfg       *config.Config
	fetcher   source.Fetcher
	assembler *scene.Assembler

	mu          sync.Mutex
	renderer    *render.Renderer
	stop        context.CancelFunc
	state       State
	model       *Model
	gen         uint64
	current     *load
	subs        map[int]func(State)
	nextSub     int
	pending     []State
	dispatching bool
	wg          sync.WaitGroup
}

// New creates an unmounted viewer. A nil cfg uses config.Default and a nil
// fetcher uses the one described by cfg.
func New(cfg *config.Config, fetcher source.Fetcher) *Viewer {
	if cfg == nil {
		cfg = config.Default()
	}
	if fetcher == nil {
		fetcher = cfg.Fetcher()
	}
	return &Viewer{
		cfg:       cfg,
		fetcher:   fetcher,
		assembler: cfg.Assembler(),
		subs:      map[int]func(State){},
	}
}

// Mount binds the viewer to s and starts continuous redraw.
func (v *Viewer) Mount(s render.Surface) error {
	v.mu.Lock()
	if v.renderer != nil {
		v.mu.Unlock()
		return ErrMounted
	}
	r, err := render.NewRenderer(s, v.cfg.RenderOptions())
	if err != nil {
		v.mu.Unlock()
		return err
	}
	ctx, stop := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		stop()
		v.mu.Unlock()
		return err
	}
	v.renderer = r
	v.stop = stop
	v.model = nil
	v.setState(State{Phase: Loading})
	return nil
}

// Load starts loading url and returns immediately. Progress is reported
// through State, Subscribe and Wait. ctx bounds the fetch.
func (v *Viewer) Load(ctx context.Context, url string) {
	v.mu.Lock()
	if v.current != nil {
		v.current.cancel()
	}
	v.gen++
	l := &load{gen: v.gen, done: make(chan struct{})}
	v.current = l
	v.discard()

	var fail error
	switch {
	case source.FormatOf(url) == source.FormatUnknown:
		fail = source.ErrUnsupportedFormat
	case v.renderer == nil:
		fail = render.ErrSurfaceUnavailable
	}
	if fail != nil {
		l.cancel = func() {}
		close(l.done)
		slog.Error("load failed", "url", url, "err", fail)
		v.setState(State{Phase: Error, URL: url, Reason: fail.Error(), Err: fail})
		return
	}

	ctx, l.cancel = context.WithCancel(ctx)
	v.wg.Add(1)
	v.setState(State{Phase: Loading, URL: url})
	go v.run(ctx, l, url)
}

func (v *Viewer) run(ctx context.Context, l *load, url string) {
	defer v.wg.Done()
	defer close(l.done)
	defer l.cancel()

	m, err := v.open(ctx, url)

	v.mu.Lock()
	if l.gen != v.gen || v.renderer == nil {
		v.mu.Unlock()
		slog.Debug("dropped stale load", "url", url)
		return
	}
	if err == nil {
		if err = v.renderer.SetScene(m.Root); err == nil {
			d := v.renderer.FitCamera()
			slog.Info("model loaded", "url", url, "format", m.Format, "drawables", len(m.Root.Drawables()), "distance", d)
			v.model = m
			v.setState(State{Phase: Ready, URL: url})
			return
		}
	}
	slog.Error("load failed", "url", url, "err", err)
	v.discard()
	v.setState(State{Phase: Error, URL: url, Reason: err.Error(), Err: err})
}

// discard releases the scene on screen. Must be called with v.mu held.
func (v *Viewer) discard() {
	v.model = nil
	if v.renderer == nil {
		return
	}
	if err := v.renderer.SetScene(nil); err != nil {
		slog.Warn("release scene", "err", err)
	}
}

func (v *Viewer) open(ctx context.Context, url string) (m *Model, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()
	return Open(ctx, v.fetcher, v.assembler, url)
}

// setState must be called with v.mu held and releases it. States are queued
// and delivered in order with no lock held. If another goroutine is already
// delivering, it also delivers s and setState returns at once.
func (v *Viewer) setState(s State) {
	v.state = s
	v.pending = append(v.pending, s)
	if v.dispatching {
		v.mu.Unlock()
		return
	}
	v.dispatching = true
	for len(v.pending) > 0 {
		states := v.pending
		v.pending = nil
		subs := make([]func(State), 0, len(v.subs))
		for i := 0; i < v.nextSub; i++ {
			if fn, ok := v.subs[i]; ok {
				subs = append(subs, fn)
			}
		}
		v.mu.Unlock()
		for _, st := range states {
			for _, fn := range subs {
				fn(st)
			}
		}
		v.mu.Lock()
	}
	v.dispatching = false
	v.mu.Unlock()
}

func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Subscribe registers fn for every state change. Calls are sequential and in
// state order, made without any viewer lock held, so fn may call back into
// the viewer. A state raised from inside fn is delivered after fn returns.
// fn must not call Unmount, which waits for running loads.
func (v *Viewer) Subscribe(fn func(State)) (cancel func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextSub
	v.nextSub++
	v.subs[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.subs, id)
	}
}

// Wait blocks until the latest load settles or ctx is done, and returns the
// state at that point.
func (v *Viewer) Wait(ctx context.Context) State {
	for {
		v.mu.Lock()
		l := v.current
		v.mu.Unlock()
		if l == nil {
			return v.State()
		}
		select {
		case <-l.done:
		case <-ctx.Done():
			return v.State()
		}
		v.mu.Lock()
		latest := v.current == l
		v.mu.Unlock()
		if latest {
			return v.State()
		}
	}
}

// Model returns the document currently on screen, or nil.
func (v *Viewer) Model() *Model {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.model
}

// Camera returns a snapshot of the camera, or false when unmounted.
func (v *Viewer) Camera() (camera.Camera, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.renderer == nil {
		return camera.Camera{}, false
	}
	return v.renderer.Camera(), true
}

// Frame draws once outside the frame loop, so that a snapshot taken right
// after it reflects the current scene.
func (v *Viewer) Frame() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.renderer == nil {
		return render.ErrSurfaceUnavailable
	}
	return v.renderer.Frame()
}

func (v *Viewer) Orbit(dx, dy float32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.renderer != nil {
		v.renderer.Orbit(dx, dy)
	}
}

func (v *Viewer) Zoom(factor float32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.renderer != nil {
		v.renderer.Zoom(factor)
	}
}

// Unmount cancels any in-flight load, stops drawing and releases every
// resource held on the surface. It waits for load goroutines to finish.
func (v *Viewer) Unmount() error {
	v.mu.Lock()
	r := v.renderer
	if v.current != nil {
		v.current.cancel()
	}
	v.gen++
	v.renderer = nil
	v.model = nil
	if v.stop != nil {
		v.stop()
		v.stop = nil
	}
	v.mu.Unlock()

	var err error
	if r != nil {
		err = r.Close()
	}
	v.wg.Wait()

	v.mu.Lock()
	v.setState(State{Phase: Unmounted})
	return err
}
