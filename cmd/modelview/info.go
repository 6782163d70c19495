package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/binzume/modelview/camera"
	"github.com/binzume/modelview/geom"
	"github.com/binzume/modelview/scene"
	"github.com/binzume/modelview/viewer"
)

var infoCmd = &cobra.Command{
	Use:   "info <url>",
	Short: "Show objects, bounds and camera distance of a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := viewer.Open(cmd.Context(), cfg.Fetcher(), cfg.Assembler(), args[0])
		if err != nil {
			return err
		}
		printInfo(cmd.OutOrStdout(), m, float32(cfg.Width)/float32(cfg.Height))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func formatVector(v *geom.Vector3) string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f)", v.X, v.Y, v.Z)
}

func printInfo(w io.Writer, m *viewer.Model, aspect float32) {
	fmt.Fprintf(w, "URL: %s\n", m.URL)
	fmt.Fprintf(w, "Format: %s\n", m.Format)

	if m.Mesh != nil {
		fmt.Fprintf(w, "Objects: %d\n", len(m.Mesh.Objects))
		for _, o := range m.Mesh.Objects {
			fmt.Fprintf(w, "  %-20s %8d triangles\n", o.Name, o.TriangleCount())
		}
		fmt.Fprintf(w, "Triangles: %d\n", m.Mesh.TriangleCount())
	}
	if m.Drawing != nil {
		fmt.Fprintf(w, "Version: %s\n", m.Drawing.Version)
		if m.Drawing.CodePage != "" {
			fmt.Fprintf(w, "Code page: %s\n", m.Drawing.CodePage)
		}
		fmt.Fprintf(w, "Blocks: %d\n", len(m.Drawing.Blocks))
		fmt.Fprintf(w, "Entities: %d\n", len(m.Drawing.Entities))
		fmt.Fprintf(w, "Inserts: %d expanded, %d skipped\n", m.Report.Inserts, len(m.Report.Errors))
		fmt.Fprintf(w, "Strips: %d\n", m.Report.Strips)
		for _, warn := range m.Drawing.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warn)
		}
	}

	box := scene.BoundingBox(m.Root)
	fmt.Fprintf(w, "Drawables: %d\n", len(m.Root.Drawables()))
	if box.IsEmpty() {
		fmt.Fprintln(w, "Bounds: empty")
		return
	}
	fmt.Fprintf(w, "Bounds: %s - %s\n", formatVector(&box.Min), formatVector(&box.Max))
	fmt.Fprintf(w, "Size: %s\n", formatVector(box.Size()))
	cam := camera.Default(aspect)
	fmt.Fprintf(w, "Camera distance: %.4f\n", camera.Fit(cam, box))
}
