package ocr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/vision-ocr/internal/models"
	"github.com/feichai0017/vision-ocr/pkg/logger"
)

// ImageExtensions are the file extensions picked up from directories.
var ImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".gif":  true,
	".webp": true,
}

// IsImageFile reports whether name has one of ImageExtensions, ignoring case.
func IsImageFile(name string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(name))]
}

// ProcessBatch runs every input through the pipeline on at most MaxWorkers
// goroutines. Per-image failures are recorded in the report and never abort
// the batch. Inputs not yet started when ctx is done are recorded as
// canceled, so the report always covers every enumerated input.
func (s *OCRService) ProcessBatch(ctx context.Context, req BatchRequest) (*models.BatchReport, error) {
	format, err := s.resolveFormat(req.Format)
	if err != nil {
		return nil, err
	}

	inputs, err := s.enumerate(req)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, models.Errorf(models.KindNoInputFound, "enumerate", req.Path, "no images found")
	}

	workers := req.MaxWorkers
	if workers <= 0 {
		workers = s.config.MaxWorkers
	}
	preprocess := s.config.Preprocess
	if req.Preprocess != nil {
		preprocess = *req.Preprocess
	}

	log := logger.FromContext(ctx, s.logger)
	log.Info("Starting batch",
		logger.Int("images", len(inputs)),
		logger.Int("workers", workers),
		logger.String("format", format.String()),
		logger.Bool("preprocess", preprocess),
	)

	report := &models.BatchReport{
		Format:    format,
		Model:     s.modelName(),
		StartedAt: time.Now(),
	}

	var notifyMu sync.Mutex
	notify := func(r models.OCRResult) {
		if req.OnResult == nil {
			return
		}
		notifyMu.Lock()
		defer notifyMu.Unlock()
		req.OnResult(r)
	}

	// Each goroutine writes only its own slot.
	results := make([]models.OCRResult, len(inputs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			results[i] = canceledResult(input.ID, err)
			notify(results[i])
			continue
		}
		g.Go(func() error {
			results[i] = s.processOne(ctx, input, format, preprocess)
			notify(results[i])
			return nil
		})
	}
	_ = g.Wait()

	report.Results = make(map[string]models.OCRResult, len(results))
	for _, r := range results {
		report.Results[r.ImageID] = r
		if r.Success {
			report.Statistics.Successful++
		} else {
			report.Statistics.Failed++
		}
	}
	report.Statistics.Total = len(results)
	report.FinishedAt = time.Now()

	log.Info("Batch finished",
		logger.Int("total", report.Statistics.Total),
		logger.Int("successful", report.Statistics.Successful),
		logger.Int("failed", report.Statistics.Failed),
		logger.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func canceledResult(id string, err error) models.OCRResult {
	kind := models.KindCanceled
	if errors.Is(err, context.DeadlineExceeded) {
		kind = models.KindTimeout
	}
	return models.OCRResult{
		ImageID: id,
		Error:   models.FailureFrom(models.NewError(kind, "schedule", id, err)),
	}
}

// enumerate resolves the request into a duplicate-free list of inputs.
func (s *OCRService) enumerate(req BatchRequest) ([]models.ImageInput, error) {
	switch {
	case req.Path != "":
		return s.enumeratePath(req.Path, req.Recursive)
	case len(req.Paths) > 0:
		inputs := make([]models.ImageInput, 0, len(req.Paths))
		for _, p := range req.Paths {
			inputs = append(inputs, models.ImageInput{ID: p, Path: p})
		}
		return dedupePaths(inputs), nil
	default:
		if err := checkUniqueIDs(req.Inputs); err != nil {
			return nil, err
		}
		return req.Inputs, nil
	}
}

func (s *OCRService) enumeratePath(root string, recursive bool) ([]models.ImageInput, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, models.NewError(models.KindIO, "enumerate", root, err)
	}
	if !info.IsDir() {
		return []models.ImageInput{{ID: root, Path: root}}, nil
	}

	var paths []string
	if recursive {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				s.logger.Warn("Skipping unreadable path", logger.String("path", path), logger.Error(err))
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.IsDir() && IsImageFile(d.Name()) {
				paths = append(paths, path)
			}
			return nil
		})
	} else {
		var entries []os.DirEntry
		entries, err = os.ReadDir(root)
		for _, e := range entries {
			if !e.IsDir() && IsImageFile(e.Name()) {
				paths = append(paths, filepath.Join(root, e.Name()))
			}
		}
	}
	if err != nil {
		return nil, models.NewError(models.KindIO, "enumerate", root, err)
	}

	sort.Strings(paths)
	inputs := make([]models.ImageInput, len(paths))
	for i, p := range paths {
		inputs[i] = models.ImageInput{ID: p, Path: p}
	}
	return inputs, nil
}

// dedupePaths keeps the first occurrence of every path. A repeated path names
// the same file, so the later copies carry nothing new.
func dedupePaths(inputs []models.ImageInput) []models.ImageInput {
	seen := make(map[string]bool, len(inputs))
	out := make([]models.ImageInput, 0, len(inputs))
	for _, in := range inputs {
		if seen[in.ID] {
			continue
		}
		seen[in.ID] = true
		out = append(out, in)
	}
	return out
}

// checkUniqueIDs rejects in-memory inputs that share an ID, since each would
// overwrite the other's result.
func checkUniqueIDs(inputs []models.ImageInput) error {
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if seen[in.ID] {
			return models.Errorf(models.KindInvalidArgument, "enumerate", in.ID, "duplicate input id %q", in.ID)
		}
		seen[in.ID] = true
	}
	return nil
}

// UniqueName returns name, suffixed with " (2)", " (3)" and so on when it is
// already taken, and marks the result as taken.
func UniqueName(taken map[string]bool, name string) string {
	unique := name
	for n := 2; taken[unique]; n++ {
		unique = fmt.Sprintf("%s (%d)", name, n)
	}
	taken[unique] = true
	return unique
}
