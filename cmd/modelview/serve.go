package main

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/binzume/modelview/config"
	"github.com/binzume/modelview/render"
	"github.com/binzume/modelview/render/raster"
	"github.com/binzume/modelview/source"
	"github.com/binzume/modelview/viewer"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve rendered images and viewer status over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sv, err := newServer(cfg, nil)
		if err != nil {
			return err
		}
		defer sv.Close()

		hs := &http.Server{Addr: serveAddr, Handler: sv.Handler()}
		go func() {
			<-cmd.Context().Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			hs.Shutdown(ctx)
		}()
		slog.Info("listening", "addr", serveAddr)
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}

// server shares one viewer between all clients. Render requests are
// serialized so that each response shows the model it asked for.
type server struct {
	viewer   *viewer.Viewer
	surface  *raster.Surface
	upgrader websocket.Upgrader
	mu       sync.Mutex
}

func newServer(cfg *config.Config, fetcher source.Fetcher) (*server, error) {
	s := raster.New(cfg.Width, cfg.Height, color.RGBA(cfg.Background))
	v := viewer.New(cfg, fetcher)
	if err := v.Mount(s); err != nil {
		return nil, err
	}
	return &server{viewer: v, surface: s}, nil
}

func (sv *server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/render", sv.render)
	mux.HandleFunc("/status", sv.status)
	return mux
}

func (sv *server) Close() error {
	return sv.viewer.Unmount()
}

func errorStatus(err error) int {
	var pe *source.ParseError
	switch {
	case errors.Is(err, source.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, source.ErrFetch):
		return http.StatusBadGateway
	case errors.As(err, &pe):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (sv *server) render(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.viewer.Load(r.Context(), url)
	st := sv.viewer.Wait(r.Context())
	if st.Phase != viewer.Ready || st.URL != url {
		err := st.Err
		if err == nil {
			err = fmt.Errorf("%w: %s", context.Canceled, st)
		}
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	if err := sv.viewer.Frame(); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, render.ErrSurfaceUnavailable) {
			code = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), code)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := sv.surface.EncodePNG(w); err != nil {
		slog.Warn("write image", "url", url, "err", err)
	}
}

// status streams every state change as JSON until the client goes away.
func (sv *server) status(w http.ResponseWriter, r *http.Request) {
	conn, err := sv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	states := make(chan viewer.State, 16)
	cancel := sv.viewer.Subscribe(func(s viewer.State) {
		select {
		case states <- s:
		default:
			slog.Debug("status client is slow, dropping state", "state", s)
		}
	})
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(sv.viewer.State()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case s := <-states:
			if err := conn.WriteJSON(s); err != nil {
				return
			}
		}
	}
}
