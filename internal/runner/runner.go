package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fileforge/fileforge/internal/convert"
	"github.com/fileforge/fileforge/internal/dispatch"
	"github.com/fileforge/fileforge/internal/fileutil"
	"github.com/fileforge/fileforge/internal/job"
	"github.com/fileforge/fileforge/internal/observability"
)

// Config carries the runner tunables.
type Config struct {
	ArtifactDir        string
	JobTimeout         time.Duration
	MaxConcurrentJobs  int
	DownloadGraceDelay time.Duration
}

// Request is a fully validated conversion request. The HTTP layer has
// already checked the file, format token and options before this is
// built; the runner does not re-validate.
type Request struct {
	SessionID        string
	UploadPath       string
	OriginalFileName string
	OriginalFormat   string
	TargetFormat     string
	FileSizeBytes    int64
	Options          convert.Options
}

// Runner owns the asynchronous job lifecycle: it records the job,
// converts in a bounded pool, publishes the artifact under a
// job-id-prefixed name and lands the record in exactly one terminal
// state. The uploaded input is removed when processing ends, success or
// not.
type Runner struct {
	store    job.Store
	registry convert.Registry
	logger   *observability.Logger
	cfg      Config

	slots chan struct{}
	wg    sync.WaitGroup

	removalMu sync.Mutex
	removals  map[string]struct{}
}

func New(store job.Store, registry convert.Registry, logger *observability.Logger, cfg Config) *Runner {
	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}
	return &Runner{
		store:    store,
		registry: registry,
		logger:   logger.WithComponent("runner"),
		cfg:      cfg,
		slots:    make(chan struct{}, cfg.MaxConcurrentJobs),
		removals: make(map[string]struct{}),
	}
}

// Submit records the job as processing and hands it to a worker
// goroutine. It returns as soon as the record is persisted; slot
// acquisition happens inside the worker so a busy pool never blocks
// submission.
func (r *Runner) Submit(ctx context.Context, req Request) (*job.Job, error) {
	j := job.NewJob(req.SessionID, req.OriginalFileName, req.OriginalFormat, req.TargetFormat, req.FileSizeBytes, map[string]any{
		"quality":         string(req.Options.Quality),
		"compress":        req.Options.Compress,
		"ocrEnabled":      req.Options.OCREnabled,
		"tableExtraction": req.Options.TableExtraction,
	})

	if err := r.store.Create(ctx, j); err != nil {
		os.Remove(req.UploadPath)
		return nil, fmt.Errorf("creating job record: %w", err)
	}

	r.wg.Add(1)
	go r.process(j.ID, req)

	r.logger.Info().
		Str("job_id", j.ID).
		Str("source", req.OriginalFormat).
		Str("target", req.TargetFormat).
		Int64("size_bytes", req.FileSizeBytes).
		Msg("job submitted")
	return j, nil
}

func (r *Runner) process(jobID string, req Request) {
	defer r.wg.Done()
	defer os.Remove(req.UploadPath)
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().
				Str("job_id", jobID).
				Interface("panic", p).
				Msg("conversion panicked")
			r.fail(jobID, fmt.Sprintf("internal error: %v", p), nil)
		}
	}()

	r.slots <- struct{}{}
	defer func() { <-r.slots }()

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.JobTimeout)
	defer cancel()

	log := r.logger.WithJob(jobID)
	started := time.Now()

	family, err := dispatch.Resolve(req.TargetFormat)
	if err != nil {
		r.fail(jobID, err.Error(), nil)
		return
	}
	converter, err := r.registry.For(family)
	if err != nil {
		r.fail(jobID, err.Error(), nil)
		return
	}

	artifact, warnings, err := converter.Convert(ctx, req.UploadPath, req.TargetFormat, req.Options)
	if err != nil {
		log.Warn().
			Str("kind", string(convert.KindOf(err))).
			Dur("elapsed", time.Since(started)).
			Err(err).
			Msg("conversion failed")
		r.fail(jobID, err.Error(), warnings)
		return
	}

	finalName := fileutil.JobScopedName(jobID, fileutil.ReplaceExt(filepath.Base(req.OriginalFileName), artifact.Format))
	finalPath := filepath.Join(r.cfg.ArtifactDir, finalName)
	if err := fileutil.MoveFile(artifact.Path, finalPath); err != nil {
		r.fail(jobID, fmt.Sprintf("could not publish converted file: %v", err), warnings)
		return
	}

	if _, err := r.store.Complete(context.Background(), jobID, finalPath, warnings); err != nil {
		log.Error().Err(err).Msg("could not record completion")
		os.Remove(finalPath)
		return
	}

	log.Info().
		Str("artifact", finalName).
		Int64("size_bytes", artifact.SizeBytes).
		Int("warnings", len(warnings)).
		Dur("elapsed", time.Since(started)).
		Msg("job completed")
}

func (r *Runner) fail(jobID, message string, warnings []string) {
	if _, err := r.store.Fail(context.Background(), jobID, message, warnings); err != nil {
		r.logger.Error().
			Str("job_id", jobID).
			Err(err).
			Msg("could not record failure")
	}
}

// ScheduleArtifactRemoval deletes a downloaded artifact after the grace
// delay and clears the job's download path so later status polls stop
// advertising it. At most one removal is scheduled per job.
func (r *Runner) ScheduleArtifactRemoval(jobID, path string) {
	r.removalMu.Lock()
	if _, dup := r.removals[jobID]; dup {
		r.removalMu.Unlock()
		return
	}
	r.removals[jobID] = struct{}{}
	r.removalMu.Unlock()

	time.AfterFunc(r.cfg.DownloadGraceDelay, func() {
		if err := fileutil.RemoveIfExists(path); err != nil {
			r.logger.Warn().
				Str("job_id", jobID).
				Str("path", path).
				Err(err).
				Msg("could not remove downloaded artifact")
		}
		if err := r.store.ClearDownloadPath(context.Background(), jobID); err != nil {
			r.logger.Warn().
				Str("job_id", jobID).
				Err(err).
				Msg("could not clear download path")
		}
		r.logger.Debug().
			Str("job_id", jobID).
			Msg("downloaded artifact reaped")
	})
}

// Shutdown waits for in-flight jobs, bounded by ctx.
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
