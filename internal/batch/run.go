package batch

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/vearutop/cubemap/internal/imageio"
	"golang.org/x/sync/errgroup"
)

// Report summarizes a batch run. Paths are sorted.
type Report struct {
	// Converted lists inputs converted successfully.
	Converted []string
	// Written lists every file written.
	Written []string
	// Skipped lists inputs that already carry the target marker.
	Skipped []string
	// Failed maps inputs to their conversion error.
	Failed map[string]error
}

// ShouldSkip reports whether the file looks like the output of a previous
// conversion in direction d, judged by its name (case-insensitive).
func ShouldSkip(path string, d Direction) bool {
	return strings.Contains(strings.ToLower(filepath.Base(path)), d.Target().String())
}

// IsSupported reports whether the file extension is a readable image format.
func IsSupported(path string) bool {
	return lo.Contains(imageio.Extensions, strings.ToLower(filepath.Ext(path)))
}

// Find lists the supported image files under root, in lexical order.
func Find(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Run converts every supported file under root with job as a template,
// up to workers files at a time (0 means GOMAXPROCS). Failures are logged and
// reported, the run goes on. Only cancellation of ctx stops it early.
func Run(ctx context.Context, root string, job Job, workers int) (*Report, error) {
	files, err := Find(root)
	if err != nil {
		return nil, err
	}

	if job.FacesPattern != "" {
		slog.Warn("face files are not written in batch mode", "pattern", job.FacesPattern)
		job.FacesPattern = ""
	}

	todo, skipped := lo.FilterReject(files, func(path string, _ int) bool {
		return !ShouldSkip(path, job.Direction)
	})
	for _, path := range skipped {
		slog.Info("skipping converted file", "path", path)
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if job.Workers == 0 && workers > 1 {
		// Images already run in parallel.
		job.Workers = 1
	}

	rep := &Report{
		Skipped: skipped,
		Failed:  map[string]error{},
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range todo {
		path := path
		if gctx.Err() != nil {
			break
		}

		j := job
		j.Input = path
		if job.OutputDir != "" {
			rel, err := filepath.Rel(root, filepath.Dir(path))
			if err == nil {
				j.OutputDir = filepath.Join(job.OutputDir, rel)
			}
		}

		g.Go(func() error {
			start := time.Now()
			slog.Info("converting", "path", path, "direction", j.Direction.String())

			written, err := ConvertFile(gctx, j)

			mu.Lock()
			defer mu.Unlock()
			rep.Written = append(rep.Written, written...)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Error("conversion failed", "path", path, "err", err)
				rep.Failed[path] = err
				return nil
			}
			slog.Info("converted", "path", path, "out", written, "elapsed", time.Since(start).String())
			rep.Converted = append(rep.Converted, path)
			return nil
		})
	}

	err = g.Wait()
	sort.Strings(rep.Converted)
	sort.Strings(rep.Written)
	if err == nil {
		err = ctx.Err()
	}
	return rep, err
}
