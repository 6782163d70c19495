package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/binzume/modelview/config"
	"github.com/binzume/modelview/render/raster"
	"github.com/binzume/modelview/viewer"
)

var (
	renderOutput string
	renderThumb  string
)

var renderCmd = &cobra.Command{
	Use:   "render <url>",
	Short: "Render a model to a PNG image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := renderOutput
		if output == "" {
			output = defaultOutputFile(args[0], ".png")
		}
		return renderToFile(cmd.Context(), cfg, args[0], output, renderThumb)
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "output PNG file")
	renderCmd.Flags().StringVar(&renderThumb, "thumb", "", "scale the image to fit WxH")
	rootCmd.AddCommand(renderCmd)
}

func defaultOutputFile(input, ext string) string {
	if i := strings.IndexAny(input, "?#"); i >= 0 {
		input = input[:i]
	}
	if i := strings.LastIndexAny(input, "/\\"); i >= 0 {
		input = input[i+1:]
	}
	if i := strings.LastIndex(input, "."); i > 0 {
		input = input[:i]
	}
	if input == "" {
		input = "model"
	}
	return input + ext
}

// parseSize parses "WxH".
func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q: want WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", s)
	}
	return w, h, nil
}

// renderImage mounts an offscreen surface, loads url and returns one frame.
func renderImage(ctx context.Context, cfg *config.Config, url, thumb string) (image.Image, error) {
	tw, th := 0, 0
	if thumb != "" {
		var err error
		if tw, th, err = parseSize(thumb); err != nil {
			return nil, err
		}
	}

	s := raster.New(cfg.Width, cfg.Height, color.RGBA(cfg.Background))
	v := viewer.New(cfg, nil)
	if err := v.Mount(s); err != nil {
		return nil, err
	}
	defer v.Unmount()

	v.Load(ctx, url)
	st := v.Wait(ctx)
	if st.Phase != viewer.Ready {
		if st.Err != nil {
			return nil, st.Err
		}
		return nil, fmt.Errorf("%s: %s", url, st)
	}
	if err := v.Frame(); err != nil {
		return nil, err
	}
	if thumb != "" {
		return s.Thumbnail(tw, th), nil
	}
	return s.Image(), nil
}

func renderToFile(ctx context.Context, cfg *config.Config, url, output, thumb string) error {
	img, err := renderImage(ctx, cfg, url, thumb)
	if err != nil {
		return err
	}
	w, err := os.Create(output)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := png.Encode(w, img); err != nil {
		return err
	}
	return w.Close()
}
