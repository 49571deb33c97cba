package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/vearutop/cubemap"
	"github.com/vearutop/cubemap/internal/batch"
	"github.com/vearutop/cubemap/internal/config"
	"github.com/vearutop/cubemap/internal/imageio"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	var err error
	switch os.Args[1] {
	case "e2c":
		err = runConvert(ctx, "e2c", batch.EquirectToCube, os.Args[2:])
	case "c2e":
		err = runConvert(ctx, "c2e", batch.CubeToEquirect, os.Args[2:])
	case "batch":
		err = runBatch(ctx, os.Args[2:])
	case "detect":
		err = runDetect(os.Args[2:])
	default:
		stop()
		usage()
		os.Exit(2)
	}
	stop()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fail(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: cubemaptool <command> [args]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  e2c    -in pano.exr [-out-dir dir] [-format exr] [-face 512] [-separate-alpha] [-faces out/pano_%.exr]")
	fmt.Fprintln(os.Stderr, "  c2e    -in cross.exr [-out-dir dir] [-format exr] [-w 4096 -h 2048] [-separate-alpha] [-faces in/pano_%.exr]")
	fmt.Fprintln(os.Stderr, "  batch  -dir panos -direction e2c|c2e [-j 4] [conversion flags]")
	fmt.Fprintln(os.Stderr, "  detect -in image [-json]")
	fmt.Fprintln(os.Stderr, "All conversion commands accept -config job.toml|job.yaml; flags override the file.")
	fmt.Fprintln(os.Stderr, "Use -v or -vv for more logging, -quiet for errors only.")
}

// jobFlags registers the conversion flags shared by e2c, c2e and batch.
type jobFlags struct {
	configPath    *string
	in            *string
	outDir        *string
	format        *string
	encoding      *string
	separateAlpha *bool
	faceSize      *int
	width         *int
	height        *int
	quality       *int
	half          *bool
	workers       *int
	faces         *string

	verbose, debug, quiet *bool
}

func registerJobFlags(fs *flag.FlagSet) *jobFlags {
	return &jobFlags{
		configPath:    fs.String("config", "", "job config file (.toml, .yaml)"),
		in:            fs.String("in", "", "input image"),
		outDir:        fs.String("out-dir", "", "output directory, defaults to the input directory"),
		format:        fs.String("format", "", "output format: png, jpg, tif, bmp, exr, hdr (default: input format)"),
		encoding:      fs.String("encoding", "", "input encoding override: linear or srgb"),
		separateAlpha: fs.Bool("separate-alpha", false, "write RGB and alpha to separate files"),
		faceSize:      fs.Int("face", 0, "cube face size, defaults to input width / 4"),
		width:         fs.Int("w", 0, "equirectangular output width"),
		height:        fs.Int("h", 0, "equirectangular output height"),
		quality:       fs.Int("q", 95, "JPEG quality"),
		half:          fs.Bool("half", false, "write half float EXR"),
		workers:       fs.Int("workers", 0, "row workers per image, 0 for all CPUs"),
		faces:         fs.String("faces", "", "per-face file pattern, % is replaced by the face name"),
		verbose:       fs.Bool("v", false, "verbose logging"),
		debug:         fs.Bool("vv", false, "debug logging"),
		quiet:         fs.Bool("quiet", false, "log errors only"),
	}
}

// job merges the config file, if any, with the flags set on the command line.
func (f *jobFlags) job(fs *flag.FlagSet) (batch.Job, error) {
	var cfg config.Config
	if *f.configPath != "" {
		var err error
		if cfg, err = config.Load(*f.configPath); err != nil {
			return batch.Job{}, err
		}
	}

	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	override := func(name string, apply func()) {
		if set[name] {
			apply()
		}
	}
	override("in", func() { cfg.Input = *f.in })
	override("out-dir", func() { cfg.OutputDir = *f.outDir })
	override("format", func() { cfg.Format = *f.format })
	override("encoding", func() { cfg.Encoding = *f.encoding })
	override("separate-alpha", func() { cfg.SeparateAlpha = *f.separateAlpha })
	override("face", func() { cfg.FaceSize = *f.faceSize })
	override("w", func() { cfg.Width = *f.width })
	override("h", func() { cfg.Height = *f.height })
	override("half", func() { cfg.HalfFloat = *f.half })
	override("workers", func() { cfg.ImageWorkers = *f.workers })
	override("faces", func() { cfg.Faces = *f.faces })
	if set["q"] || cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = *f.quality
	}

	return cfg.Job()
}

func (f *jobFlags) setupLogging() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelFromFlags(*f.debug, *f.verbose, *f.quiet),
	})))
}

func levelFromFlags(vv, v, q bool) slog.Level {
	switch {
	case vv:
		return slog.LevelDebug
	case v:
		return slog.LevelInfo
	case q:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func runConvert(ctx context.Context, name string, d batch.Direction, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	jf := registerJobFlags(fs)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	jf.setupLogging()

	job, err := jf.job(fs)
	if err != nil {
		return err
	}
	job.Direction = d
	if job.Input == "" && (d == batch.EquirectToCube || job.FacesPattern == "") {
		return errors.New("missing required arguments")
	}

	written, err := batch.ConvertFile(ctx, job)
	for _, p := range written {
		fmt.Fprintln(os.Stdout, p)
	}
	return err
}

func runBatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	jf := registerJobFlags(fs)
	dir := fs.String("dir", "", "directory to convert recursively")
	direction := fs.String("direction", "", "e2c or c2e")
	jobs := fs.Int("j", 0, "files converted at once, 0 for all CPUs")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	jf.setupLogging()

	job, err := jf.job(fs)
	if err != nil {
		return err
	}
	if *direction != "" {
		if job.Direction, err = batch.ParseDirection(*direction); err != nil {
			return err
		}
	}
	root := *dir
	if root == "" {
		root = job.Input
	}
	if root == "" {
		return errors.New("missing required arguments")
	}

	workers := *jobs
	if workers == 0 && *jf.configPath != "" {
		if cfg, err := config.Load(*jf.configPath); err == nil {
			workers = cfg.Workers
		}
	}

	rep, err := batch.Run(ctx, filepath.Clean(root), job, workers)
	if rep != nil {
		fmt.Fprintf(os.Stdout, "converted %d, skipped %d, failed %d\n",
			len(rep.Converted), len(rep.Skipped), len(rep.Failed))
		if err == nil && len(rep.Failed) > 0 {
			err = fmt.Errorf("%d files failed", len(rep.Failed))
		}
	}
	return err
}

type detectResult struct {
	Path       string `json:"path"`
	Format     string `json:"format"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Channels   int    `json:"channels"`
	Encoding   string `json:"encoding"`
	Projection string `json:"projection,omitempty"`
	FaceSize   int    `json:"faceSize,omitempty"`
}

func runDetect(args []string) error {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	inPath := fs.String("in", "", "input image")
	asJSON := fs.Bool("json", false, "print JSON")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return errors.New("missing required arguments")
	}

	data, err := os.ReadFile(filepath.Clean(*inPath))
	if err != nil {
		return err
	}
	buf, f, err := imageio.DecodeAny(data)
	if err != nil {
		return err
	}

	res := detectResult{
		Path:     *inPath,
		Format:   f.String(),
		Width:    buf.Width,
		Height:   buf.Height,
		Channels: buf.Channels,
		Encoding: f.Encoding().String(),
	}
	if p, ok := cubemap.GuessProjection(buf.Width, buf.Height); ok {
		res.Projection = p.String()
		if p == cubemap.ProjectionCubemap {
			res.FaceSize, _ = cubemap.CubeFaceSize(buf.Width, buf.Height)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	projection := res.Projection
	if projection == "" {
		projection = "unknown projection"
	}
	fmt.Fprintf(os.Stdout, "%s: %s %dx%d, %d channels, %s, %s\n",
		res.Path, res.Format, res.Width, res.Height, res.Channels, res.Encoding, projection)
	return nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
