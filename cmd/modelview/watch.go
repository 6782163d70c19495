package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const watchSettle = 200 * time.Millisecond

var (
	watchOutput string
	watchThumb  string
)

var watchCmd = &cobra.Command{
	Use:   "watch <path>",
	Short: "Re-render a model file whenever it changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := watchOutput
		if output == "" {
			output = defaultOutputFile(args[0], ".png")
		}
		return watch(cmd.Context(), args[0], func() {
			if err := renderToFile(cmd.Context(), cfg, args[0], output, watchThumb); err != nil {
				slog.Error("render failed", "path", args[0], "err", err)
				return
			}
			slog.Info("rendered", "path", args[0], "output", output)
		})
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "", "output PNG file")
	watchCmd.Flags().StringVar(&watchThumb, "thumb", "", "scale the image to fit WxH")
	rootCmd.AddCommand(watchCmd)
}

// watch calls fn once and then after every burst of writes to path, until ctx
// is done. The parent directory is watched so that editors replacing the
// file by rename are seen too.
func watch(ctx context.Context, path string, fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	fn()
	timer := time.NewTimer(watchSettle)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(watchSettle)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "path", path, "err", err)
		case <-timer.C:
			fn()
		}
	}
}
