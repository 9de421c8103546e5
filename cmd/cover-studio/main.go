package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	coverstudio "github.com/menta2k/cover-studio"
	"github.com/menta2k/cover-studio/internal/config"
	"github.com/menta2k/cover-studio/internal/logging"
	"github.com/menta2k/cover-studio/internal/utils"
	"github.com/menta2k/cover-studio/pkg/client"
	"github.com/menta2k/cover-studio/pkg/layout"
	"github.com/menta2k/cover-studio/pkg/types"
)

// stickerFlags collects repeated -sticker values of the form
// kind:content[@x,y[,scale[,rotation]]].
type stickerFlags []coverstudio.StickerSpec

func (s *stickerFlags) String() string { return fmt.Sprintf("%d stickers", len(*s)) }

func (s *stickerFlags) Set(v string) error {
	spec, err := parseSticker(v)
	if err != nil {
		return err
	}
	*s = append(*s, spec)
	return nil
}

func parseSticker(v string) (coverstudio.StickerSpec, error) {
	kind, rest, ok := strings.Cut(v, ":")
	if !ok {
		return coverstudio.StickerSpec{}, fmt.Errorf("sticker %q: want kind:content[@x,y[,scale[,rotation]]]", v)
	}
	spec := coverstudio.StickerSpec{Type: types.StickerType(strings.ToLower(kind))}
	if spec.Type != types.StickerEmoji && spec.Type != types.StickerText {
		return spec, fmt.Errorf("sticker %q: kind must be emoji or text", v)
	}

	content, place, _ := strings.Cut(rest, "@")
	spec.Content = content
	if place == "" {
		return spec, nil
	}
	fields := strings.Split(place, ",")
	nums := make([]float64, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return spec, fmt.Errorf("sticker %q: %w", v, err)
		}
		nums[i] = n
	}
	if len(nums) < 2 || len(nums) > 4 {
		return spec, fmt.Errorf("sticker %q: placement needs x,y[,scale[,rotation]]", v)
	}
	spec.X, spec.Y = nums[0], nums[1]
	if len(nums) > 2 {
		spec.Scale = nums[2]
	}
	if len(nums) > 3 {
		spec.Rotation = nums[3]
	}
	return spec, nil
}

func main() {
	var in, title, cfgPath, saveCfg string
	var aspect, filter, preset, format, outDir string
	var backend, url, model, animURL string
	var zoom, panX, panY float64
	var smart, animate, debug, listFilters, saveCrop bool
	var setKey, logFile, layoutOut string
	var stickers stickerFlags

	flag.StringVar(&in, "in", "", "input image path or URL (jpg/png/webp)")
	flag.StringVar(&title, "title", "", "cover title")
	flag.StringVar(&cfgPath, "config", "", "config file (json or yaml, default "+config.GetConfigPath()+" when present)")
	flag.StringVar(&saveCfg, "save-config", "", "write the effective config to this path and exit")

	flag.StringVar(&aspect, "aspect", "", "crop aspect ratio: 3:4|1:1|9:16|16:9")
	flag.Float64Var(&zoom, "zoom", 0, "crop zoom (0 keeps the cover fit)")
	flag.Float64Var(&panX, "panx", 0, "horizontal crop pan in viewport pixels")
	flag.Float64Var(&panY, "pany", 0, "vertical crop pan in viewport pixels")
	flag.BoolVar(&smart, "smart", false, "frame the crop around the most interesting region")

	flag.StringVar(&filter, "filter", "", "CSS-style filter, e.g. \"sepia(0.3) saturate(1.4)\"")
	flag.StringVar(&preset, "preset", "", "named filter preset (see -filters)")
	flag.BoolVar(&listFilters, "filters", false, "list filter presets and exit")
	flag.Var(&stickers, "sticker", "sticker kind:content[@x,y[,scale[,rotation]]], repeatable")

	flag.StringVar(&format, "format", "", "export format: png|jpg|webp")
	flag.StringVar(&outDir, "out", "", "output directory")
	flag.BoolVar(&saveCrop, "save-crop", false, "also write the committed crop as jpg")
	flag.StringVar(&layoutOut, "layout-json", "", "also write the final layout as JSON to this path")

	flag.StringVar(&backend, "backend", "", "layout backend: ollama|llamacpp|none")
	flag.StringVar(&url, "url", "", "layout server URL")
	flag.StringVar(&model, "model", "", "layout model name")

	flag.BoolVar(&animate, "animate", false, "turn the cover into a short video")
	flag.StringVar(&animURL, "animation-url", "", "animation service URL")
	flag.StringVar(&setKey, "set-key", "", "store an API key in the keyring as backend=key and exit")

	flag.StringVar(&logFile, "log", "", "log file (rotated)")
	flag.BoolVar(&debug, "debug", false, "verbose logging")

	flag.Parse()

	if listFilters {
		for _, p := range layout.Filters() {
			fmt.Printf("%-10s %-10s %s\n", p.ID, p.Label, p.Filter)
		}
		return
	}

	if setKey != "" {
		name, key, ok := strings.Cut(setKey, "=")
		if !ok || name == "" {
			log.Fatalf("usage: %s -set-key backend=key", filepath.Base(os.Args[0]))
		}
		if err := client.NewCredentials().SetAPIKey(name, key); err != nil {
			log.Fatalf("Failed to store API key: %v", err)
		}
		log.Printf("stored API key for %s", name)
		return
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	// flags override the file
	if aspect != "" {
		cfg.Cropper.AspectRatio = aspect
	}
	if smart {
		cfg.Cropper.SmartFrame = true
	}
	if format != "" {
		cfg.Output.DefaultFormat = format
	}
	if outDir != "" {
		cfg.Output.OutputDir = outDir
	}
	if backend != "" {
		cfg.Layout.Backend = backend
	}
	if url != "" {
		cfg.Layout.URL = url
	}
	if model != "" {
		cfg.Layout.Model = model
	}
	if animURL != "" {
		cfg.Animation.URL = animURL
	}
	if logFile != "" {
		cfg.Logging.File = logFile
	}
	if debug {
		cfg.Logging.Debug = true
	}

	closer, err := logging.Setup(logging.Options{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		Debug:      cfg.Logging.Debug,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer closer.Close()

	if saveCfg != "" {
		if err := cfg.Validate(); err != nil {
			logging.Fatalf("Invalid configuration: %v", err)
		}
		if err := cfg.SaveToFile(saveCfg); err != nil {
			logging.Fatalf("Failed to save config: %v", err)
		}
		logging.Printf("wrote %s", saveCfg)
		return
	}

	if in == "" || title == "" {
		logging.Fatalf("usage: %s -in input.jpg|URL -title \"My title\" [-aspect 3:4] [-preset warm] [-sticker emoji:★@80,20] [-format png|jpg|webp] [-animate]", filepath.Base(os.Args[0]))
	}

	if preset != "" {
		p, ok := layout.PresetByID(preset)
		if !ok {
			logging.Fatalf("Unknown filter preset: %s", preset)
		}
		filter = p.Filter
	}

	studio, err := coverstudio.New(cfg)
	if err != nil {
		logging.Fatalf("Failed to initialise: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := studio.Compose(ctx, coverstudio.ComposeRequest{
		Source:     in,
		Title:      title,
		Zoom:       zoom,
		Pan:        types.Point{X: panX, Y: panY},
		SmartFrame: smart,
		Filter:     filter,
		Stickers:   stickers,
		SaveCrop:   saveCrop,
		Animate:    animate,
		Progress: func(polls int, msg string) {
			logging.Printf("[%d] %s", polls, msg)
		},
	})
	if res != nil {
		log.Printf("wrote %s", res.Path)
		if res.CropPath != "" {
			log.Printf("wrote %s", res.CropPath)
		}
		logging.Debugf("layout: position=%s font=%s text=%s subtitle=%q",
			res.Layout.Position, res.Layout.FontStyle, res.Layout.TextColor, res.Layout.Subtitle)
		if layoutOut != "" {
			js, _ := json.MarshalIndent(res.Layout, "", "  ")
			if err := os.WriteFile(layoutOut, js, 0o644); err != nil {
				log.Printf("layout save failed: %v", err)
			}
		}
		if res.Video != nil {
			log.Printf("wrote %s (%d polls, %s)", res.Video.Path, res.Video.Polls, res.Video.Duration.Round(time.Second))
		}
	}
	if err != nil {
		if client.KindOf(err) == client.NeedsCredential {
			logging.Fatalf("%v (store a key with -set-key or set %s)", err, client.APIKeyEnv)
		}
		logging.Fatalf("%v", err)
	}
}

// loadConfig reads path, or the default location when path is empty and
// the file exists, or falls back to defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		def := config.GetConfigPath()
		if !utils.FileExists(def) {
			return config.Default(), nil
		}
		path = def
	}
	return config.LoadFromFile(path)
}
