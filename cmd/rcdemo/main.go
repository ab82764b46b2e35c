// Command rcdemo renders the rendercore demo scenes offscreen and writes a
// PNG snapshot of each.
//
// Usage:
//
//	rcdemo -scene all -out ./snapshots
//	rcdemo -scene cube -texture crate.png -frames 120 -v
package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/allbackends"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/rendercore"
)

// scene renders into s and returns once the target holds the image to
// snapshot.
type scene func(ctx context.Context, s *rendercore.Session, cfg config) error

type config struct {
	width, height int
	frames        int
	texture       string
}

var scenes = map[string]scene{
	"triangle": triangleScene,
	"colored":  coloredScene,
	"cube":     cubeScene,
}

var backendNames = map[string]gputypes.Backend{
	"vulkan":   gputypes.BackendVulkan,
	"metal":    gputypes.BackendMetal,
	"dx12":     gputypes.BackendDX12,
	"gl":       gputypes.BackendGL,
	"software": gputypes.BackendEmpty,
}

func main() {
	var (
		name     = flag.String("scene", "all", "scene to render: triangle, colored, cube or all")
		out      = flag.String("out", ".", "output directory")
		width    = flag.Int("width", 800, "image width")
		height   = flag.Int("height", 600, "image height")
		frames   = flag.Int("frames", 90, "frames to run looping scenes for")
		texture  = flag.String("texture", "", "image file for the cube texture")
		backends = flag.String("backends", "", "comma separated backend chain (vulkan,metal,dx12,gl,software)")
		parallel = flag.Int("parallel", 1, "scenes rendered at once")
		verbose  = flag.Bool("v", false, "log debug output")
	)
	flag.Parse()

	if *verbose {
		rendercore.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	opts, err := sessionOptions(*backends)
	if err != nil {
		log.Fatal(err)
	}

	names := []string{*name}
	if *name == "all" {
		names = []string{"triangle", "colored", "cube"}
	}
	cfg := config{width: *width, height: *height, frames: *frames, texture: *texture}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for _, n := range names {
		render, ok := scenes[n]
		if !ok {
			log.Fatalf("unknown scene %q", n)
		}
		path := filepath.Join(*out, n+".png")
		g.Go(func() error {
			if err := renderScene(ctx, render, cfg, path, opts); err != nil {
				return fmt.Errorf("%s: %w", n, err)
			}
			log.Printf("%s saved to %s (%dx%d)", n, path, cfg.width, cfg.height)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}

func sessionOptions(chain string) ([]rendercore.SessionOption, error) {
	if chain == "" {
		return nil, nil
	}
	var list []gputypes.Backend
	for _, n := range strings.Split(chain, ",") {
		b, ok := backendNames[strings.TrimSpace(n)]
		if !ok {
			return nil, fmt.Errorf("unknown backend %q", n)
		}
		list = append(list, b)
	}
	return []rendercore.SessionOption{rendercore.WithBackends(list...)}, nil
}

// renderScene runs one scene on its own session and writes the result.
// The session is created and driven on the calling goroutine.
func renderScene(ctx context.Context, render scene, cfg config, path string, opts []rendercore.SessionOption) error {
	s, err := rendercore.NewSession(cfg.width, cfg.height, opts...)
	if err != nil {
		return err
	}
	defer s.Release()

	if err := render(ctx, s, cfg); err != nil {
		return err
	}
	img, err := s.ReadPixels()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
