package engine

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/anonymizer/internal/detection"
	"github.com/ivlev/anonymizer/internal/logger"
	"github.com/ivlev/anonymizer/internal/source"
	"github.com/ivlev/anonymizer/internal/system"
)

// Pipeline anonymizes one decoded image.
type Pipeline interface {
	Validate() error
	Anonymize(ctx context.Context, img image.Image) (image.Image, []detection.Region, error)
}

type Options struct {
	// Workers is the number of files processed at once. Zero picks a value
	// from the host's CPU and memory.
	Workers int
	// FailFast stops the batch at the first failed file. Otherwise every file
	// is attempted and failures are returned together in a *BatchError.
	FailFast    bool
	JPEGQuality int
	DPI         int // PDF rasterization
}

type Summary struct {
	Total     int
	Processed int
	Regions   int
	Failed    []*FileError
	Duration  time.Duration
}

// Runner anonymizes a directory tree into a mirrored output tree.
type Runner struct {
	pipeline Pipeline
	opts     Options
	log      *logger.Logger
}

func NewRunner(p Pipeline, opts Options, log *logger.Logger) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = system.DefaultWorkers()
	}
	if log == nil {
		log = logger.NewWriter(io.Discard)
	}
	return &Runner{pipeline: p, opts: opts, log: log}
}

// Run processes every file under inputRoot with a matching extension.
// Configuration problems (detector/threshold mismatch, unusable output root)
// are returned before any file is touched.
func (r *Runner) Run(ctx context.Context, inputRoot, outputRoot string, extensions []string, writeJSON bool) (*Summary, error) {
	start := time.Now()

	if err := r.pipeline.Validate(); err != nil {
		return nil, err
	}
	if err := prepareOutput(outputRoot); err != nil {
		return nil, err
	}
	files, err := Collect(inputRoot, extensions)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Total: len(files)}
	r.log.Info("Anonymizing %d file(s) in %s into %s with %d worker(s)", len(files), inputRoot, outputRoot, r.opts.Workers)

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for _, rel := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			regions, ferr := r.processFile(gctx, inputRoot, outputRoot, rel, writeJSON)
			if ferr != nil && gctx.Err() != nil && errors.Is(ferr, gctx.Err()) {
				return nil
			}

			mu.Lock()
			done++
			if ferr != nil {
				summary.Failed = append(summary.Failed, ferr)
				r.log.Error("%v", ferr)
			} else {
				summary.Processed++
				summary.Regions += regions
			}
			r.log.Progress("Ready: %d/%d %s", done, len(files), rel)
			mu.Unlock()

			if ferr != nil && r.opts.FailFast {
				return ferr
			}
			return nil
		})
	}

	waitErr := g.Wait()
	summary.Duration = time.Since(start)
	sort.Slice(summary.Failed, func(i, j int) bool { return summary.Failed[i].Path < summary.Failed[j].Path })

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if waitErr != nil {
		return summary, waitErr
	}
	if len(summary.Failed) > 0 {
		return summary, &BatchError{Failed: summary.Failed}
	}

	r.log.Info("Done: %d file(s), %d region(s) in %.2fs", summary.Processed, summary.Regions, summary.Duration.Seconds())
	return summary, nil
}

// processFile decodes rel once per page, anonymizes it and writes the result
// (and sidecar) under outputRoot.
func (r *Runner) processFile(ctx context.Context, inputRoot, outputRoot, rel string, writeJSON bool) (int, *FileError) {
	fail := func(stage Stage, err error) (int, *FileError) {
		return 0, &FileError{Path: rel, Stage: stage, Err: err}
	}

	src, err := source.Open(filepath.Join(inputRoot, rel), r.opts.DPI)
	if err != nil {
		return fail(StageDecode, err)
	}
	defer src.Close()

	multiPage := source.IsMultiPage(rel)
	total := 0
	for page := 0; page < src.PageCount(); page++ {
		img, err := src.RenderPage(page)
		if err != nil {
			return fail(StageDecode, err)
		}

		anonymized, regions, err := r.pipeline.Anonymize(ctx, img)
		if err != nil {
			return fail(StageInference, err)
		}

		outPath := outputPath(outputRoot, rel, page, multiPage)
		if err = os.MkdirAll(filepath.Dir(outPath), 0755); err == nil {
			err = source.Save(outPath, anonymized, r.opts.JPEGQuality)
		}
		if rgba, ok := anonymized.(*image.RGBA); ok && rgba != img {
			system.PutImage(rgba)
		}
		if err != nil {
			return fail(StageEncode, err)
		}

		if writeJSON {
			if err := detection.WriteSidecar(sidecarPath(outPath, detection.SidecarExt), regions); err != nil {
				return fail(StageEncode, err)
			}
		}
		total += len(regions)
	}

	return total, nil
}
