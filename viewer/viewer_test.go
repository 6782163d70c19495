package viewer

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binzume/modelview/render"
	"github.com/binzume/modelview/render/raster"
	"github.com/binzume/modelview/scene"
	"github.com/binzume/modelview/source"
)

const waitTimeout = 5 * time.Second

type fakeFetcher struct {
	mu    sync.Mutex
	files map[string]string
	gates map[string]chan struct{}
	calls []string
	// stubborn fetches ignore cancellation while gated
	stubborn bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		files: map[string]string{
			"box.dxf":       boxDrawing(),
			"missing.dxf":   missingBlockDrawing(),
			"self.dxf":      selfReferenceDrawing(),
			"tri.stl":       triangleSTL,
			"cube.obj":      cubeOBJ,
			"broken.obj":    "v 0 0 0\nf 1 2 3\n",
			"broken.stl":    "solid x\nfacet normal 0 0 1\nouter loop\nvertex a b c\n",
			"truncated.dxf": "0\nSECTION\n2\nENTITIES\n0\nLINE\n10\n",
		},
		gates: map[string]chan struct{}{},
	}
}

func (f *fakeFetcher) gate(url string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[url] = ch
	return ch
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	gate := f.gates[url]
	data, ok := f.files[url]
	stubborn := f.stubborn
	f.mu.Unlock()

	if gate != nil {
		if stubborn {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", source.ErrFetch, ctx.Err())
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s: not found", source.ErrFetch, url)
	}
	return []byte(data), nil
}

func dxfText(pairs ...string) string {
	return strings.Join(pairs, "\n") + "\n"
}

func line(x1, y1, x2, y2 string) []string {
	return []string{"0", "LINE", "8", "0", "10", x1, "20", y1, "30", "0", "11", x2, "21", y2, "31", "0"}
}

func boxDrawing() string {
	var p []string
	p = append(p, "0", "SECTION", "2", "BLOCKS", "0", "BLOCK", "2", "BOX", "70", "0", "10", "0", "20", "0", "30", "0")
	p = append(p, line("0", "0", "1", "0")...)
	p = append(p, line("1", "0", "1", "1")...)
	p = append(p, line("1", "1", "0", "1")...)
	p = append(p, line("0", "1", "0", "0")...)
	p = append(p, "0", "ENDBLK", "0", "ENDSEC")
	p = append(p, "0", "SECTION", "2", "ENTITIES",
		"0", "INSERT", "8", "0", "2", "BOX", "10", "10", "20", "0", "30", "0", "41", "2", "50", "90",
		"0", "ENDSEC", "0", "EOF")
	return dxfText(p...)
}

func missingBlockDrawing() string {
	p := []string{"0", "SECTION", "2", "ENTITIES"}
	p = append(p, line("0", "0", "3", "4")...)
	p = append(p, "0", "INSERT", "8", "0", "2", "NOPE", "10", "1", "20", "1", "30", "0",
		"0", "ENDSEC", "0", "EOF")
	return dxfText(p...)
}

func selfReferenceDrawing() string {
	p := []string{"0", "SECTION", "2", "BLOCKS", "0", "BLOCK", "2", "LOOP", "10", "0", "20", "0", "30", "0"}
	p = append(p, line("0", "0", "1", "0")...)
	p = append(p, "0", "INSERT", "8", "0", "2", "LOOP", "10", "1", "20", "0", "30", "0",
		"0", "ENDBLK", "0", "ENDSEC",
		"0", "SECTION", "2", "ENTITIES",
		"0", "INSERT", "8", "0", "2", "LOOP", "10", "0", "20", "0", "30", "0",
		"0", "ENDSEC", "0", "EOF")
	return dxfText(p...)
}

const triangleSTL = `solid tri
  facet normal 0 0 1
    outer loop
      vertex 0 0 0
      vertex 2 0 0
      vertex 0 2 0
    endloop
  endfacet
endsolid tri
`

const cubeOBJ = `o top
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3 4
o bottom
v 0 0 1
v 1 0 1
v 1 1 1
f 5 6 7
`

func mounted(t *testing.T, f source.Fetcher) (*Viewer, *raster.Surface) {
	t.Helper()
	v := New(nil, f)
	s := raster.New(64, 48, color.RGBA{255, 255, 255, 255})
	require.NoError(t, v.Mount(s))
	t.Cleanup(func() { v.Unmount() })
	return v, s
}

func wait(t *testing.T, v *Viewer) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	st := v.Wait(ctx)
	require.NoError(t, ctx.Err(), "load did not settle")
	return st
}

func TestMountStartsLoading(t *testing.T) {
	v := New(nil, newFakeFetcher())
	assert.Equal(t, Unmounted, v.State().Phase)

	s := raster.New(64, 48, color.RGBA{})
	require.NoError(t, v.Mount(s))
	assert.Equal(t, Loading, v.State().Phase)
	assert.ErrorIs(t, v.Mount(s), ErrMounted)

	require.NoError(t, v.Unmount())
	assert.Equal(t, Unmounted, v.State().Phase)
}

func TestMountWithoutSurface(t *testing.T) {
	v := New(nil, newFakeFetcher())
	assert.ErrorIs(t, v.Mount(nil), render.ErrSurfaceUnavailable)
	assert.ErrorIs(t, v.Mount(raster.New(0, 0, color.RGBA{})), render.ErrSurfaceUnavailable)
}

func TestLoadBeforeMount(t *testing.T) {
	f := newFakeFetcher()
	v := New(nil, f)
	v.Load(context.Background(), "box.dxf")
	st := wait(t, v)
	assert.Equal(t, Error, st.Phase)
	assert.ErrorIs(t, st.Err, render.ErrSurfaceUnavailable)
	assert.Empty(t, f.Calls())
}

func TestLoadBox(t *testing.T) {
	v, s := mounted(t, newFakeFetcher())
	v.Load(context.Background(), "box.dxf")
	st := wait(t, v)
	require.Equal(t, Ready, st.Phase, st.Reason)
	assert.Equal(t, "box.dxf", st.URL)

	m := v.Model()
	require.NotNil(t, m)
	assert.Equal(t, source.FormatDrafting, m.Format)
	assert.Empty(t, m.Report.Errors)
	assert.Len(t, m.Root.Drawables(), 4)
	assert.Equal(t, 4, s.Live())

	b := scene.BoundingBox(m.Root)
	c := b.Center()
	assert.InDelta(t, 0, c.X, 1e-5)
	assert.InDelta(t, 0, c.Y, 1e-5)
	assert.InDelta(t, 0, c.Z, 1e-5)
	size := b.Size()
	assert.InDelta(t, 2, size.X, 1e-5)
	assert.InDelta(t, 2, size.Z, 1e-5)

	cam, ok := v.Camera()
	require.True(t, ok)
	d := cam.Distance()
	assert.Greater(t, d, float32(2))
	assert.Less(t, d, float32(100))
}

func TestLoadMeshFormats(t *testing.T) {
	for _, tc := range []struct {
		url       string
		format    source.Format
		drawables int
	}{
		{"tri.stl", source.FormatMeshTriangle, 1},
		{"cube.obj?rev=2", source.FormatMeshGrouped, 2},
	} {
		t.Run(tc.url, func(t *testing.T) {
			f := newFakeFetcher()
			f.files["cube.obj?rev=2"] = cubeOBJ
			v, s := mounted(t, f)
			v.Load(context.Background(), tc.url)
			st := wait(t, v)
			require.Equal(t, Ready, st.Phase, st.Reason)
			m := v.Model()
			assert.Equal(t, tc.format, m.Format)
			assert.Len(t, m.Root.Drawables(), tc.drawables)
			assert.Equal(t, tc.drawables, s.Live())
		})
	}
}

func TestUnsupportedFormat(t *testing.T) {
	f := newFakeFetcher()
	v, _ := mounted(t, f)

	var seen []State
	var mu sync.Mutex
	cancel := v.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})
	defer cancel()

	v.Load(context.Background(), "drawing.dwg")
	st := v.State()
	assert.Equal(t, Error, st.Phase)
	assert.Equal(t, "unsupported format", st.Reason)
	assert.ErrorIs(t, st.Err, source.ErrUnsupportedFormat)
	assert.Empty(t, f.Calls())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, Error, seen[0].Phase)
}

func TestLoadErrors(t *testing.T) {
	for _, tc := range []struct {
		url    string
		target error
	}{
		{"absent.stl", source.ErrFetch},
		{"broken.obj", nil},
		{"broken.stl", nil},
		{"truncated.dxf", nil},
	} {
		t.Run(tc.url, func(t *testing.T) {
			v, s := mounted(t, newFakeFetcher())
			v.Load(context.Background(), tc.url)
			st := wait(t, v)
			assert.Equal(t, Error, st.Phase)
			assert.NotEmpty(t, st.Reason)
			if tc.target != nil {
				assert.ErrorIs(t, st.Err, tc.target)
			} else {
				var pe *source.ParseError
				assert.True(t, errors.As(st.Err, &pe), "%v", st.Err)
			}
			assert.Nil(t, v.Model())
			assert.Zero(t, s.Live())
		})
	}
}

func TestPanicBecomesError(t *testing.T) {
	f := source.FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		panic("boom")
	})
	v, _ := mounted(t, f)
	v.Load(context.Background(), "x.stl")
	st := wait(t, v)
	assert.Equal(t, Error, st.Phase)
	assert.Contains(t, st.Reason, "boom")
}

func TestMissingBlockStillReady(t *testing.T) {
	v, s := mounted(t, newFakeFetcher())
	v.Load(context.Background(), "missing.dxf")
	st := wait(t, v)
	require.Equal(t, Ready, st.Phase, st.Reason)
	m := v.Model()
	assert.Equal(t, 1, m.Report.Count(scene.ErrReferenceMissing))
	assert.Equal(t, 1, s.Live())
}

func TestSelfReferenceStillReady(t *testing.T) {
	v, s := mounted(t, newFakeFetcher())
	v.Load(context.Background(), "self.dxf")
	st := wait(t, v)
	require.Equal(t, Ready, st.Phase, st.Reason)
	m := v.Model()
	assert.GreaterOrEqual(t, m.Report.Count(scene.ErrRecursionLimit), 1)
	assert.Equal(t, scene.DefaultMaxInsertDepth, m.Report.Inserts)
	assert.Equal(t, scene.DefaultMaxInsertDepth, s.Live())
}

func TestLastLoadWins(t *testing.T) {
	f := newFakeFetcher()
	gate := f.gate("box.dxf")
	v, s := mounted(t, f)

	v.Load(context.Background(), "box.dxf")
	v.Load(context.Background(), "tri.stl")
	st := wait(t, v)
	require.Equal(t, Ready, st.Phase, st.Reason)
	assert.Equal(t, "tri.stl", st.URL)

	// the first load was cancelled; releasing it changes nothing
	close(gate)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "tri.stl", v.State().URL)
	assert.Equal(t, source.FormatMeshTriangle, v.Model().Format)
	assert.Equal(t, 1, s.Live())
}

func TestStaleResultDropped(t *testing.T) {
	f := newFakeFetcher()
	f.stubborn = true
	gate := f.gate("box.dxf")
	v, s := mounted(t, f)

	v.Load(context.Background(), "box.dxf")
	v.Load(context.Background(), "tri.stl")
	require.Equal(t, Ready, wait(t, v).Phase)

	close(gate)
	v.Unmount()
	assert.Equal(t, Unmounted, v.State().Phase)
	assert.Zero(t, s.Live())
}

func TestUnmountDuringLoad(t *testing.T) {
	f := newFakeFetcher()
	f.stubborn = true
	gate := f.gate("box.dxf")
	v, s := mounted(t, f)

	v.Load(context.Background(), "box.dxf")
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()
	require.NoError(t, v.Unmount())

	assert.Zero(t, s.Live())
	assert.Nil(t, v.Model())
	assert.Equal(t, Unmounted, v.State().Phase)
	_, ok := v.Camera()
	assert.False(t, ok)

	_, err := s.Upload(&scene.Drawable{})
	assert.ErrorIs(t, err, render.ErrSurfaceUnavailable)
}

func TestReloadIsIdentical(t *testing.T) {
	v, s := mounted(t, newFakeFetcher())

	v.Load(context.Background(), "box.dxf")
	require.Equal(t, Ready, wait(t, v).Phase)
	first := v.Model()
	cam1, _ := v.Camera()

	v.Load(context.Background(), "box.dxf")
	require.Equal(t, Ready, wait(t, v).Phase)
	second := v.Model()
	cam2, _ := v.Camera()

	assert.NotSame(t, first.Root, second.Root)
	assert.Equal(t, first.Root, second.Root)
	assert.Equal(t, cam1.Target, cam2.Target)
	assert.InDelta(t, cam1.Distance(), cam2.Distance(), 1e-3)
	assert.Equal(t, 4, s.Live())
}

func TestSubscribeOrder(t *testing.T) {
	v, _ := mounted(t, newFakeFetcher())

	var mu sync.Mutex
	var phases []Phase
	cancel := v.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, s.Phase)
	})

	v.Load(context.Background(), "tri.stl")
	wait(t, v)
	cancel()
	v.Load(context.Background(), "box.dxf")
	wait(t, v)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{Loading, Ready}, phases)
}

func TestOpen(t *testing.T) {
	m, err := Open(context.Background(), newFakeFetcher(), scene.NewAssembler(), "cube.obj")
	require.NoError(t, err)
	require.NotNil(t, m.Mesh)
	assert.Equal(t, 3, m.Mesh.TriangleCount())
	assert.Nil(t, m.Drawing)

	_, err = Open(context.Background(), newFakeFetcher(), scene.NewAssembler(), "cube.3ds")
	assert.ErrorIs(t, err, source.ErrUnsupportedFormat)
}

func TestFrameDrawsScene(t *testing.T) {
	v, s := mounted(t, newFakeFetcher())
	v.Load(context.Background(), "tri.stl")
	require.Equal(t, Ready, wait(t, v).Phase)
	require.NoError(t, v.Frame())

	img := s.Image()
	white := color.RGBA{255, 255, 255, 255}
	b := img.Bounds()
	// the centered triangle covers the lower left of the view center
	assert.NotEqual(t, white, img.RGBAAt(b.Dx()/2-3, b.Dy()/2+3))

	require.NoError(t, v.Unmount())
	assert.ErrorIs(t, v.Frame(), render.ErrSurfaceUnavailable)
}

func TestFailedLoadReleasesPreviousScene(t *testing.T) {
	for _, url := range []string{"broken.stl", "absent.obj", "drawing.dwg"} {
		t.Run(url, func(t *testing.T) {
			v, s := mounted(t, newFakeFetcher())
			v.Load(context.Background(), "box.dxf")
			require.Equal(t, Ready, wait(t, v).Phase)
			require.Equal(t, 4, s.Live())

			v.Load(context.Background(), url)
			st := wait(t, v)
			assert.Equal(t, Error, st.Phase)
			assert.Equal(t, url, st.URL)
			assert.Zero(t, s.Live())
			assert.Nil(t, v.Model())
		})
	}
}

func TestLoadReleasesSceneBeforeFetch(t *testing.T) {
	f := newFakeFetcher()
	v, s := mounted(t, f)
	v.Load(context.Background(), "box.dxf")
	require.Equal(t, Ready, wait(t, v).Phase)

	gate := f.gate("tri.stl")
	v.Load(context.Background(), "tri.stl")
	assert.Equal(t, Loading, v.State().Phase)
	assert.Zero(t, s.Live())
	assert.Nil(t, v.Model())

	close(gate)
	require.Equal(t, Ready, wait(t, v).Phase)
	assert.Equal(t, 1, s.Live())
}

func TestSubscriberMayCallViewer(t *testing.T) {
	v, _ := mounted(t, newFakeFetcher())

	var mu sync.Mutex
	var seen []State
	var urls []string
	v.Subscribe(func(st State) {
		time.Sleep(10 * time.Millisecond)
		cur := v.State()
		v.Model()
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
		urls = append(urls, cur.URL)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		v.Load(context.Background(), "tri.stl")
		v.Load(context.Background(), "box.dxf")
	}()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Load blocked behind a subscriber")
	}

	st := wait(t, v)
	require.Equal(t, Ready, st.Phase, st.Reason)
	assert.Equal(t, "box.dxf", st.URL)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1].Phase == Ready
	}, waitTimeout, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "tri.stl", seen[0].URL)
	assert.Equal(t, Loading, seen[0].Phase)
	assert.Equal(t, State{Phase: Ready, URL: "box.dxf"}, seen[len(seen)-1])
	for _, u := range urls {
		assert.Contains(t, []string{"tri.stl", "box.dxf"}, u)
	}
}

func TestSubscriberMayUnsubscribeAndReload(t *testing.T) {
	v, _ := mounted(t, newFakeFetcher())

	var mu sync.Mutex
	var phases []Phase
	var cancel func()
	reloaded := false
	cancel = v.Subscribe(func(st State) {
		mu.Lock()
		phases = append(phases, st.Phase)
		again := st.Phase == Ready && !reloaded
		reloaded = reloaded || again
		mu.Unlock()
		if again {
			cancel()
			v.Load(context.Background(), "box.dxf")
		}
	})

	v.Load(context.Background(), "tri.stl")
	require.Eventually(t, func() bool {
		return v.State().URL == "box.dxf" && v.State().Phase == Ready
	}, waitTimeout, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{Loading, Ready}, phases)
}
