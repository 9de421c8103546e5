package animation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/menta2k/cover-studio/internal/logging"
	"github.com/menta2k/cover-studio/internal/utils"
	"github.com/menta2k/cover-studio/pkg/client"
)

// DefaultPollInterval is the fixed delay between job polls.
const DefaultPollInterval = 5 * time.Second

// DefaultMaxPollErrors is how many consecutive transient poll failures
// are tolerated before the run fails.
const DefaultMaxPollErrors = 3

// Status messages reported while a job runs.
const (
	MsgSubmitting  = "Submitting animation request..."
	MsgQueued      = "Waiting for the studio to pick up the job..."
	MsgAnimating   = "Bringing your cover to life..."
	MsgRendering   = "Rendering frames..."
	MsgFinishing   = "Almost there, finishing touches..."
	MsgStillGoing  = "Still working, longer clips take a while..."
	MsgDownloading = "Downloading video..."
	MsgDone        = "Animation ready"
)

// StatusMessage picks the coarse progress text for a poll count.
func StatusMessage(polls int) string {
	switch {
	case polls <= 0:
		return MsgSubmitting
	case polls <= 2:
		return MsgQueued
	case polls <= 6:
		return MsgAnimating
	case polls <= 12:
		return MsgRendering
	case polls <= 24:
		return MsgFinishing
	default:
		return MsgStillGoing
	}
}

// Progress receives status updates. polls is the number of completed polls.
type Progress func(polls int, message string)

// Result describes a finished animation.
type Result struct {
	JobID    client.JobID
	URI      string
	Path     string // local media file
	Size     int64
	Polls    int
	Duration time.Duration
}

// Runner creates a job, polls it at a fixed interval until the service
// reports completion and downloads the media. Runs are bounded only by ctx.
type Runner struct {
	Client        client.AnimationClient
	PollInterval  time.Duration
	MaxPollErrors int
	OutputDir     string
	Prefix        string

	now func() time.Time
}

// NewRunner returns a runner with the default poll interval.
func NewRunner(c client.AnimationClient, outputDir string) *Runner {
	return &Runner{
		Client:        c,
		PollInterval:  DefaultPollInterval,
		MaxPollErrors: DefaultMaxPollErrors,
		OutputDir:     outputDir,
		Prefix:        "cover-animation",
	}
}

// Run executes one animation job end to end.
func (r *Runner) Run(ctx context.Context, req client.AnimationRequest, progress Progress) (*Result, error) {
	if r.Client == nil {
		return nil, client.NewError(client.Permanent, op, errors.New("no animation backend configured"))
	}
	report := func(polls int, msg string) {
		logging.Debugf("animation: %s (polls=%d)", msg, polls)
		if progress != nil {
			progress(polls, msg)
		}
	}

	start := r.clock()
	report(0, MsgSubmitting)
	id, err := r.Client.CreateJob(ctx, req)
	if err != nil {
		return nil, err
	}
	logging.Printf("animation job %s created", id)

	interval := r.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		status   client.JobStatus
		polls    int
		failures int
	)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		polls++
		report(polls, StatusMessage(polls))

		status, err = r.Client.PollJob(ctx, id)
		if err != nil {
			failures++
			if errors.Is(err, client.ErrTransient) && failures <= r.maxPollErrors() {
				logging.Printf("animation poll %d failed, retrying: %v", polls, err)
				continue
			}
			return nil, err
		}
		failures = 0

		if status.Error != "" {
			return nil, client.NewError(client.Permanent, op, fmt.Errorf("job %s failed: %s", id, status.Error))
		}
		if status.Done {
			break
		}
	}

	if status.URI == "" {
		return nil, client.NewError(client.Permanent, op, fmt.Errorf("job %s finished without media", id))
	}

	report(polls, MsgDownloading)
	path, size, err := r.download(ctx, status.URI)
	if err != nil {
		return nil, err
	}
	report(polls, MsgDone)

	return &Result{
		JobID:    id,
		URI:      status.URI,
		Path:     path,
		Size:     size,
		Polls:    polls,
		Duration: r.clock().Sub(start),
	}, nil
}

func (r *Runner) download(ctx context.Context, uri string) (string, int64, error) {
	body, err := r.Client.Download(ctx, uri)
	if err != nil {
		return "", 0, err
	}
	defer body.Close()

	dir := r.OutputDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := utils.EnsureDir(dir); err != nil {
		return "", 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".animation-*.part")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create media file: %w", err)
	}
	size, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		if copyErr != nil {
			return "", 0, client.Classify(op, fmt.Errorf("download media: %w", copyErr))
		}
		return "", 0, closeErr
	}

	path := filepath.Join(dir, utils.TimestampedFilename(r.Prefix, "mp4", r.clock()))
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("failed to store media: %w", err)
	}
	logging.Printf("animation saved to %s (%s)", path, utils.FormatFileSize(size))
	return path, size, nil
}

func (r *Runner) maxPollErrors() int {
	if r.MaxPollErrors < 0 {
		return 0
	}
	return r.MaxPollErrors
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}
