package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/prism/engine/core"
)

// ShaderTextureCount is the size of the texture array declared by the
// bundled pixel shader.
const ShaderTextureCount = 128

// Application describes the window the engine opens.
type Application struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting position x axis, if applicable.
	StartPosX uint32 `toml:"start_pos_x"`
	// Window starting position y axis, if applicable.
	StartPosY uint32 `toml:"start_pos_y"`
	// Window starting width, if applicable.
	StartWidth uint32 `toml:"start_width"`
	// Window starting height, if applicable.
	StartHeight uint32 `toml:"start_height"`
}

type Renderer struct {
	PresentBufferCount uint32 `toml:"present_buffer_count"`
	// Capacity of the shader-visible view table shared by textures and the overlay.
	ShaderViewCapacity uint32     `toml:"shader_view_capacity"`
	DepthViewCapacity  uint32     `toml:"depth_view_capacity"`
	TargetFrameRate    float64    `toml:"target_frame_rate"`
	ClearColor         [4]float32 `toml:"clear_color"`
	VSync              bool       `toml:"vsync"`
	Validation         bool       `toml:"validation"`
	// Route objects into the 2D and sorted alpha lists instead of the opaque list only.
	ClassifyDrawLists bool `toml:"classify_draw_lists"`
}

type Shaders struct {
	Vertex string `toml:"vertex"`
	Pixel  string `toml:"pixel"`
}

type Log struct {
	Level string `toml:"level"`
}

type Debug struct {
	FreeCamera  bool   `toml:"free_camera"`
	OverlayFont string `toml:"overlay_font"`
}

type Assets struct {
	Root     string   `toml:"root"`
	Textures []string `toml:"textures"`
	Watch    bool     `toml:"watch"`
}

type Config struct {
	Application Application `toml:"application"`
	Renderer    Renderer    `toml:"renderer"`
	Shaders     Shaders     `toml:"shaders"`
	Log         Log         `toml:"log"`
	Debug       Debug       `toml:"debug"`
	Assets      Assets      `toml:"assets"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Application: Application{
			Name:        "Prism",
			StartPosX:   100,
			StartPosY:   100,
			StartWidth:  1280,
			StartHeight: 720,
		},
		Renderer: Renderer{
			PresentBufferCount: 2,
			ShaderViewCapacity: 128,
			DepthViewCapacity:  1,
			TargetFrameRate:    61,
			ClearColor:         [4]float32{0.1, 0.1, 0.1, 1.0},
			VSync:              false,
			Validation:         false,
			ClassifyDrawLists:  false,
		},
		Shaders: Shaders{
			Vertex: "assets/shaders/basic.vert.spv",
			Pixel:  "assets/shaders/basic.frag.spv",
		},
		Log: Log{
			Level: "info",
		},
		Debug: Debug{
			FreeCamera:  true,
			OverlayFont: "",
		},
		Assets: Assets{
			Root:  "assets",
			Watch: true,
		},
	}
}

// Load reads the TOML file at path on top of the defaults. A missing file
// is not an error: the defaults are returned and a warning is logged.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			core.LogWarn("config file %s not found, using defaults", path)
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Parse decodes data into cfg and validates the result.
func Parse(data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return errors.Wrapf(err, "line %d column %d", row, col)
		}
		return err
	}
	return cfg.Validate()
}

// Validate checks the invariants the renderer relies on.
func (c *Config) Validate() error {
	if c.Renderer.PresentBufferCount != 2 {
		return errors.Newf("renderer.present_buffer_count must be 2, got %d", c.Renderer.PresentBufferCount)
	}
	if c.Renderer.ShaderViewCapacity < ShaderTextureCount {
		return errors.Newf("renderer.shader_view_capacity must be at least %d, got %d", ShaderTextureCount, c.Renderer.ShaderViewCapacity)
	}
	if c.Renderer.DepthViewCapacity == 0 {
		return errors.New("renderer.depth_view_capacity must be at least 1")
	}
	if c.Renderer.TargetFrameRate < 0 {
		return errors.Newf("renderer.target_frame_rate must not be negative, got %f", c.Renderer.TargetFrameRate)
	}
	if c.Application.StartWidth == 0 || c.Application.StartHeight == 0 {
		return errors.Newf("application size must be positive, got %dx%d", c.Application.StartWidth, c.Application.StartHeight)
	}
	if c.Shaders.Vertex == "" || c.Shaders.Pixel == "" {
		return errors.New("shaders.vertex and shaders.pixel are required")
	}
	return nil
}

// Save writes cfg as TOML to path.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
