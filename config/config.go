// Package config loads viewer settings from YAML or TOML files.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v2"

	"github.com/binzume/modelview/camera"
	"github.com/binzume/modelview/render"
	"github.com/binzume/modelview/scene"
	"github.com/binzume/modelview/source"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Width      int            `yaml:"width" toml:"width"`
	Height     int            `yaml:"height" toml:"height"`
	Background Color          `yaml:"background" toml:"background"`
	Camera     CameraConfig   `yaml:"camera" toml:"camera"`
	Controls   ControlsConfig `yaml:"controls" toml:"controls"`
	Render     RenderConfig   `yaml:"render" toml:"render"`
	Drafting   DraftingConfig `yaml:"drafting" toml:"drafting"`
	Fetch      FetchConfig    `yaml:"fetch" toml:"fetch"`
	Materials  Materials      `yaml:"materials" toml:"materials"`
}

type CameraConfig struct {
	FOV             float32 `yaml:"fov" toml:"fov"`
	Near            float32 `yaml:"near" toml:"near"`
	Far             float32 `yaml:"far" toml:"far"`
	DefaultDistance float32 `yaml:"default_distance" toml:"default_distance"`
	FitMultiplier   float32 `yaml:"fit_multiplier" toml:"fit_multiplier"`
}

type ControlsConfig struct {
	Damping     float32 `yaml:"damping" toml:"damping"`
	RotateSpeed float32 `yaml:"rotate_speed" toml:"rotate_speed"`
	ZoomSpeed   float32 `yaml:"zoom_speed" toml:"zoom_speed"`
}

type RenderConfig struct {
	FrameRate float64 `yaml:"frame_rate" toml:"frame_rate"`
}

type DraftingConfig struct {
	MaxInsertDepth int `yaml:"max_insert_depth" toml:"max_insert_depth"`
	MaxNodes       int `yaml:"max_nodes" toml:"max_nodes"`
}

type FetchConfig struct {
	Timeout Duration `yaml:"timeout" toml:"timeout"`
	MaxSize int64    `yaml:"max_size" toml:"max_size"`
}

type Materials struct {
	Mesh Material `yaml:"mesh" toml:"mesh"`
	Line Material `yaml:"line" toml:"line"`
}

type Material struct {
	Color     Color   `yaml:"color" toml:"color"`
	Specular  Color   `yaml:"specular" toml:"specular"`
	Shininess float32 `yaml:"shininess" toml:"shininess"`
}

func Default() *Config {
	mesh, line := scene.DefaultMeshMaterial(), scene.DefaultLineMaterial()
	return &Config{
		Width:      800,
		Height:     600,
		Background: Color(color.RGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff}),
		Camera: CameraConfig{
			FOV:             camera.DefaultFOV,
			Near:            camera.DefaultNear,
			Far:             camera.DefaultFar,
			DefaultDistance: camera.DefaultDistance,
			FitMultiplier:   camera.DefaultFitMultiplier,
		},
		Controls: ControlsConfig{
			Damping:     camera.DefaultDamping,
			RotateSpeed: camera.DefaultRotateSpeed,
			ZoomSpeed:   camera.DefaultZoomSpeed,
		},
		Render:   RenderConfig{FrameRate: 60},
		Drafting: DraftingConfig{MaxInsertDepth: scene.DefaultMaxInsertDepth, MaxNodes: scene.DefaultMaxNodes},
		Fetch:    FetchConfig{Timeout: Duration(30 * time.Second), MaxSize: source.DefaultMaxSize},
		Materials: Materials{
			Mesh: Material{Color: Color(mesh.Color), Specular: Color(mesh.Specular), Shininess: mesh.Shininess},
			Line: Material{Color: Color(line.Color), Specular: Color(line.Specular)},
		},
	}
}

// Load reads path over the defaults. The format is chosen by extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes data in the format named by ext (".yaml", ".yml" or ".toml") and validates it.
func Parse(data []byte, ext string) (*Config, error) {
	c := Default()
	var err error
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, c)
	case "toml":
		err = toml.Unmarshal(data, c)
	default:
		return nil, fmt.Errorf("%w: unknown config format %q", ErrInvalid, ext)
	}
	if err != nil {
		return nil, err
	}
	return c, c.Validate()
}

func (c *Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: size %dx%d", ErrInvalid, c.Width, c.Height)
	case c.Camera.FOV <= 0 || c.Camera.FOV >= 180:
		return fmt.Errorf("%w: fov %v", ErrInvalid, c.Camera.FOV)
	case c.Camera.Near <= 0 || c.Camera.Near >= c.Camera.Far:
		return fmt.Errorf("%w: near %v far %v", ErrInvalid, c.Camera.Near, c.Camera.Far)
	case c.Controls.Damping < 0 || c.Controls.Damping > 1:
		return fmt.Errorf("%w: damping %v", ErrInvalid, c.Controls.Damping)
	case c.Render.FrameRate <= 0:
		return fmt.Errorf("%w: frame rate %v", ErrInvalid, c.Render.FrameRate)
	case c.Drafting.MaxInsertDepth <= 0:
		return fmt.Errorf("%w: max insert depth %d", ErrInvalid, c.Drafting.MaxInsertDepth)
	}
	return nil
}

func (c *Config) RenderOptions() render.Options {
	return render.Options{
		FrameRate:       c.Render.FrameRate,
		FOV:             c.Camera.FOV,
		Near:            c.Camera.Near,
		Far:             c.Camera.Far,
		DefaultDistance: c.Camera.DefaultDistance,
		FitMultiplier:   c.Camera.FitMultiplier,
		Damping:         c.Controls.Damping,
		RotateSpeed:     c.Controls.RotateSpeed,
		ZoomSpeed:       c.Controls.ZoomSpeed,
	}
}

func (c *Config) Assembler() *scene.Assembler {
	a := scene.NewAssembler()
	a.MaxInsertDepth = c.Drafting.MaxInsertDepth
	if c.Drafting.MaxNodes > 0 {
		a.MaxNodes = c.Drafting.MaxNodes
	}
	a.MeshMaterial = c.Materials.Mesh.material("mesh")
	a.LineMaterial = c.Materials.Line.material("line")
	return a
}

func (c *Config) Fetcher() *source.HTTPFetcher {
	f := source.NewHTTPFetcher(time.Duration(c.Fetch.Timeout))
	if c.Fetch.MaxSize > 0 {
		f.MaxSize = c.Fetch.MaxSize
	}
	return f
}

func (m *Material) material(name string) *scene.Material {
	return &scene.Material{
		Name:      name,
		Color:     color.RGBA(m.Color),
		Specular:  color.RGBA(m.Specular),
		Shininess: m.Shininess,
	}
}
