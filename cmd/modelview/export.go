package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/binzume/modelview/gltfutil"
	"github.com/binzume/modelview/viewer"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <url>",
	Short: "Assemble a model and save its scene as GLB",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := viewer.Open(cmd.Context(), cfg.Fetcher(), cfg.Assembler(), args[0])
		if err != nil {
			return err
		}
		output := exportOutput
		if output == "" {
			output = defaultOutputFile(args[0], ".glb")
		}
		doc := gltfutil.Export(m.Root)
		if err := gltfutil.SaveBinary(doc, output); err != nil {
			return err
		}
		slog.Info("exported", "output", output, "nodes", len(doc.Nodes), "meshes", len(doc.Meshes))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output GLB file")
	rootCmd.AddCommand(exportCmd)
}
