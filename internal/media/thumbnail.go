package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"adaptrix/internal/cache"
	"adaptrix/internal/domain"
	"adaptrix/internal/storage"
)

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// ThumbnailRecorder persists the storage key of a generated thumbnail.
type ThumbnailRecorder interface {
	SetThumbnail(ctx context.Context, jobID, path string) error
}

type ThumbnailerOptions struct {
	FFmpegPath string
	CacheSize  int
	TempDir    string

	// GenerateTimeout bounds one ffmpeg run and upload. Defaults to 2 minutes.
	GenerateTimeout time.Duration
	Logger          zerolog.Logger
}

// Thumbnailer grabs a frame from a job's source video, stores it as a JPEG and
// memoizes the resulting URL by source URL.
type Thumbnailer struct {
	ffmpegPath string
	tempDir    string
	timeout    time.Duration
	runner     commandRunner
	store      storage.ObjectStore
	jobs       ThumbnailRecorder
	memo       *cache.Memo[string]
	logger     zerolog.Logger
}

// NewThumbnailer returns a Thumbnailer that stores frames in store and records
// their keys through jobs.
func NewThumbnailer(store storage.ObjectStore, jobs ThumbnailRecorder, opts ThumbnailerOptions) (*Thumbnailer, error) {
	ffmpeg := strings.TrimSpace(opts.FFmpegPath)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	size := opts.CacheSize
	if size <= 0 {
		size = 512
	}
	timeout := opts.GenerateTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	memo, err := cache.NewMemo[string](size)
	if err != nil {
		return nil, err
	}
	return &Thumbnailer{
		ffmpegPath: ffmpeg,
		tempDir:    opts.TempDir,
		timeout:    timeout,
		runner:     execRunner{},
		store:      store,
		jobs:       jobs,
		memo:       memo,
		logger:     opts.Logger,
	}, nil
}

// Thumbnail returns a public URL of the job's thumbnail, generating it on first use.
func (t *Thumbnailer) Thumbnail(ctx context.Context, job *domain.Job) (string, error) {
	if job.ThumbnailPath != nil && *job.ThumbnailPath != "" {
		return storage.ResolveURL(t.store, *job.ThumbnailPath), nil
	}
	source := storage.ResolveURL(t.store, job.SourcePath)
	if source == "" {
		return "", errors.New("media: job has no source video")
	}
	// Waiters share one run, so it must outlive the request that started it.
	url, hit, err := t.memo.GetOrCompute(ctx, source, func(ctx context.Context) (string, error) {
		genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
		defer cancel()
		return t.generate(genCtx, job, source)
	})
	if err != nil {
		return "", err
	}
	if hit {
		t.logger.Debug().Str("job_id", job.ID).Msg("media: thumbnail cache hit")
	}
	return url, nil
}

// Forget drops the memoized thumbnail for a source video.
func (t *Thumbnailer) Forget(job *domain.Job) {
	t.memo.Remove(storage.ResolveURL(t.store, job.SourcePath))
}

func (t *Thumbnailer) generate(ctx context.Context, job *domain.Job, source string) (string, error) {
	dir, err := os.MkdirTemp(t.tempDir, "thumb-*")
	if err != nil {
		return "", fmt.Errorf("media: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "frame.jpg")
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", "1",
		"-i", source,
		"-frames:v", "1",
		"-vf", "scale='min(1200,iw)':-2",
		"-q:v", "3",
		"-y", out,
	}
	if res, err := t.runner.Run(ctx, t.ffmpegPath, args...); err != nil {
		return "", fmt.Errorf("media: ffmpeg exit %d: %s: %w", res.ExitCode, strings.TrimSpace(res.Stderr), err)
	}

	f, err := os.Open(out)
	if err != nil {
		return "", fmt.Errorf("media: read frame: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("media: stat frame: %w", err)
	}

	stored, err := t.store.Upload(ctx, storage.ThumbnailKey(job.OwnerID, job.ID), f, info.Size(), "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("media: upload thumbnail: %w", err)
	}
	if err := t.jobs.SetThumbnail(ctx, job.ID, stored); err != nil {
		return "", err
	}
	t.logger.Info().Str("job_id", job.ID).Str("key", stored).Msg("media: thumbnail generated")
	return storage.ResolveURL(t.store, stored), nil
}
