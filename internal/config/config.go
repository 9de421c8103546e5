package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Upload     UploadConfig     `json:"upload" yaml:"upload"`
	Cropper    CropperConfig    `json:"cropper" yaml:"cropper"`
	Compositor CompositorConfig `json:"compositor" yaml:"compositor"`
	Layout     LayoutConfig     `json:"layout" yaml:"layout"`
	Animation  AnimationConfig  `json:"animation" yaml:"animation"`
	Output     OutputConfig     `json:"output" yaml:"output"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// UploadConfig holds file-input limits
type UploadConfig struct {
	MaxBytes         int64    `json:"max_bytes" yaml:"max_bytes"`
	MinImageSize     int      `json:"min_image_size" yaml:"min_image_size"`
	SupportedFormats []string `json:"supported_formats,omitempty" yaml:"supported_formats,omitempty"`
}

// CropperConfig holds configuration for the crop engine
type CropperConfig struct {
	AspectRatio      string  `json:"aspect_ratio" yaml:"aspect_ratio"`
	OutputLongEdge   int     `json:"output_long_edge" yaml:"output_long_edge"`
	JPEGQuality      int     `json:"jpeg_quality" yaml:"jpeg_quality"`
	ViewportLongEdge float64 `json:"viewport_long_edge" yaml:"viewport_long_edge"`
	ClampToCover     bool    `json:"clamp_to_cover" yaml:"clamp_to_cover"`
	ClampPan         bool    `json:"clamp_pan" yaml:"clamp_pan"`
	SmartFrame       bool    `json:"smart_frame" yaml:"smart_frame"`
}

// FontConfig registers a TTF/OTF/TTC family with the compositor. Fallback
// families also draw characters other families lack, e.g. a CJK font.
type FontConfig struct {
	Name     string `json:"name" yaml:"name"`
	Regular  string `json:"regular" yaml:"regular"`
	Bold     string `json:"bold,omitempty" yaml:"bold,omitempty"`
	Display  bool   `json:"display,omitempty" yaml:"display,omitempty"`
	Fallback bool   `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// CompositorConfig holds rendering options
type CompositorConfig struct {
	Fonts []FontConfig `json:"fonts,omitempty" yaml:"fonts,omitempty"`
	// EmojiFamily names a registered family used for emoji stickers, e.g.
	// a fonts entry pointing at NotoEmoji-Regular.ttf. When empty, emoji
	// resolve through the fallback chain, which covers monochrome symbols
	// only; stickers it cannot draw are rejected.
	EmojiFamily string `json:"emoji_family,omitempty" yaml:"emoji_family,omitempty"`
	// SystemFonts adds installed CJK and emoji fonts to the fallback chain.
	SystemFonts   bool   `json:"system_fonts" yaml:"system_fonts"`
	StickerColor  string `json:"sticker_color" yaml:"sticker_color"`
	ClampToCanvas bool   `json:"clamp_to_canvas" yaml:"clamp_to_canvas"`
}

// LayoutConfig selects and tunes the layout generation backend
type LayoutConfig struct {
	Backend  string `json:"backend" yaml:"backend"` // ollama, llamacpp or none
	URL      string `json:"url" yaml:"url"`
	Model    string `json:"model" yaml:"model"`
	SendSize int    `json:"send_size" yaml:"send_size"`
	Quality  int    `json:"quality" yaml:"quality"`
	Timeout  int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// AnimationConfig configures the video service
type AnimationConfig struct {
	URL           string `json:"url" yaml:"url"`
	PollInterval  int    `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	MaxPollErrors int    `json:"max_poll_errors" yaml:"max_poll_errors"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string `json:"default_format" yaml:"default_format"`
	Quality       int    `json:"quality" yaml:"quality"`
	Lossless      bool   `json:"lossless" yaml:"lossless"`
	OutputDir     string `json:"output_dir" yaml:"output_dir"`
	Prefix        string `json:"prefix" yaml:"prefix"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
	Debug      bool   `json:"debug" yaml:"debug"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Upload: UploadConfig{
			MaxBytes:     10 << 20,
			MinImageSize: 1,
		},
		Cropper: CropperConfig{
			AspectRatio:      "3:4",
			OutputLongEdge:   1080,
			JPEGQuality:      92,
			ViewportLongEdge: 400,
		},
		Compositor: CompositorConfig{
			SystemFonts:  true,
			StickerColor: "#ffffff",
		},
		Layout: LayoutConfig{
			Backend:  "ollama",
			URL:      "http://localhost:11434",
			Model:    "qwen2.5vl:7b",
			SendSize: 1024,
			Quality:  85,
			Timeout:  300,
		},
		Animation: AnimationConfig{
			PollInterval:  5,
			MaxPollErrors: 3,
		},
		Output: OutputConfig{
			DefaultFormat: "png",
			Quality:       92,
			OutputDir:     "./output",
			Prefix:        "cover",
		},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 2,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFromFile loads configuration from a JSON or YAML file. Missing
// fields keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration as JSON, or YAML for .yaml/.yml names
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}

	if c.Upload.MinImageSize < 1 {
		return fmt.Errorf("upload.min_image_size must be positive")
	}

	switch c.Cropper.AspectRatio {
	case "3:4", "1:1", "9:16", "16:9":
	default:
		return fmt.Errorf("cropper.aspect_ratio must be one of 3:4, 1:1, 9:16, 16:9")
	}

	if c.Cropper.OutputLongEdge < 16 || c.Cropper.OutputLongEdge > 8192 {
		return fmt.Errorf("cropper.output_long_edge must be between 16 and 8192")
	}

	if c.Cropper.JPEGQuality < 1 || c.Cropper.JPEGQuality > 100 {
		return fmt.Errorf("cropper.jpeg_quality must be between 1 and 100")
	}

	if c.Cropper.ViewportLongEdge <= 0 {
		return fmt.Errorf("cropper.viewport_long_edge must be positive")
	}

	for i, f := range c.Compositor.Fonts {
		if f.Name == "" || f.Regular == "" {
			return fmt.Errorf("compositor.fonts[%d] needs a name and a regular face", i)
		}
	}

	switch c.Layout.Backend {
	case "ollama", "llamacpp", "none":
	default:
		return fmt.Errorf("layout.backend must be ollama, llamacpp or none")
	}

	if c.Layout.Backend != "none" && c.Layout.URL == "" {
		return fmt.Errorf("layout.url is required for backend %s", c.Layout.Backend)
	}

	if c.Layout.Quality < 1 || c.Layout.Quality > 100 {
		return fmt.Errorf("layout.quality must be between 1 and 100")
	}

	if c.Layout.SendSize < 0 {
		return fmt.Errorf("layout.send_size cannot be negative")
	}

	if c.Animation.PollInterval < 1 {
		return fmt.Errorf("animation.poll_interval_seconds must be at least 1")
	}

	switch strings.ToLower(c.Output.DefaultFormat) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("output.default_format must be png, jpg or webp")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "cover-studio", "config.json")
}

