package recorder

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
)

// Store is the persistence the recorder writes event records through
type Store interface {
	CreateEvent(ctx context.Context, ev *database.DetectionEventRecord) (int64, error)
	AddEventFile(ctx context.Context, eventID int64, fileType, path string) error
	UpdateEventFilePath(ctx context.Context, eventID int64, fileType, path string) error
	GetEventView(ctx context.Context, id int64) (*database.EventView, error)
}

// Notifier receives every newly persisted event
type Notifier interface {
	PublishEvent(view *database.EventView)
}

// Outcome describes what a trigger did
type Outcome int

const (
	Recorded Outcome = iota
	SkippedCooldown
	SkippedInFlight
	SkippedShortHistory
	PersistFailed
)

func (o Outcome) String() string {
	switch o {
	case Recorded:
		return "recorded"
	case SkippedCooldown:
		return "cooldown"
	case SkippedInFlight:
		return "in-flight"
	case SkippedShortHistory:
		return "short-history"
	case PersistFailed:
		return "persist-failed"
	}
	return "unknown"
}

// Settings holds the recording windows
type Settings struct {
	PreWindow  time.Duration
	PostWindow time.Duration
	Cooldown   time.Duration
	RecordDir  string
}

// Deps are shared by every session recorder
type Deps struct {
	Store    Store
	Encoder  *Encoder
	Pool     *Pool
	Notifier Notifier
}

// Job is an in-flight recording: the pre-event snapshot plus post-event frames
type Job struct {
	EventID  int64
	Path     string
	Trigger  time.Time
	Deadline time.Time
	Pre      []*frame.Frame
	Post     []*frame.Frame
}

// clip selects the frames inside [T-pre, T] and (T, T+post] and derives the
// frame rate that makes the encoded clip play for the covered window.
func (j *Job) clip(pre, post time.Duration, partial bool) *Clip {
	start := j.Trigger.Add(-pre)
	frames := make([]*frame.Frame, 0, len(j.Pre)+len(j.Post))
	for _, f := range j.Pre {
		if !f.Timestamp.Before(start) && !f.Timestamp.After(j.Trigger) {
			frames = append(frames, f)
		}
	}
	var last time.Time
	for _, f := range j.Post {
		if f.Timestamp.After(j.Trigger) && !f.Timestamp.After(j.Deadline) {
			frames = append(frames, f)
			last = f.Timestamp
		}
	}

	covered := pre + post
	if partial {
		covered = pre
		if !last.IsZero() {
			covered += last.Sub(j.Trigger)
		}
	}
	fps := float64(len(frames)) / covered.Seconds()
	return &Clip{EventID: j.EventID, BasePath: j.Path, Frames: frames, FPS: fps}
}

// Recorder is the per-session event recorder. It is owned by a single
// session loop and is not safe for concurrent use.
type Recorder struct {
	cameraID int64
	userID   *int64
	settings Settings
	deps     Deps

	buffer    *FrameBuffer
	job       *Job
	lastEvent time.Time

	log zerolog.Logger
}

// New creates a recorder for one live camera session
func New(deps Deps, settings Settings, cameraID int64, userID *int64) *Recorder {
	return &Recorder{
		cameraID: cameraID,
		userID:   userID,
		settings: settings,
		deps:     deps,
		buffer:   NewFrameBuffer(settings.PreWindow),
		log:      logging.Component("recorder").With().Int64("camera_id", cameraID).Logger(),
	}
}

// Buffer exposes the rolling history
func (r *Recorder) Buffer() *FrameBuffer {
	return r.buffer
}

// Active returns the in-flight job, if any
func (r *Recorder) Active() *Job {
	return r.job
}

// Push appends a captured frame, trims history and advances any in-flight job.
// It must be called exactly once per captured frame, in capture order.
func (r *Recorder) Push(f *frame.Frame) {
	r.buffer.Append(f)
	r.buffer.Trim(f.Timestamp)

	if r.job == nil {
		return
	}
	if f.Timestamp.After(r.job.Trigger) && !f.Timestamp.After(r.job.Deadline) {
		r.job.Post = append(r.job.Post, f)
	}
	if !f.Timestamp.Before(r.job.Deadline) {
		r.finalize(false)
	}
}

// Trigger starts a recording for det seen on frame f, which must already have been pushed.
// thumb is the annotated trigger frame; nil falls back to f.Visual.
func (r *Recorder) Trigger(ctx context.Context, det frame.Detection, f *frame.Frame, thumb *image.RGBA) (Outcome, error) {
	t := f.Timestamp

	if !r.lastEvent.IsZero() && t.Sub(r.lastEvent) <= r.settings.Cooldown {
		return SkippedCooldown, nil
	}
	if r.job != nil {
		return SkippedInFlight, nil
	}
	if !r.buffer.Covers(t) {
		// not enough history yet; leave the cooldown alone so the next frame may retry
		return SkippedShortHistory, nil
	}

	r.lastEvent = t
	name := FileName(t, r.cameraID, ".mp4")

	id, err := r.deps.Store.CreateEvent(ctx, &database.DetectionEventRecord{
		Timestamp:      t,
		CameraID:       r.cameraID,
		DetectedObject: det.Class,
		Confidence:     det.Confidence,
		UserIDOnDuty:   r.userID,
	})
	if err != nil {
		return PersistFailed, err
	}
	if err := r.deps.Store.AddEventFile(ctx, id, database.FileTypeVideoRGB, name); err != nil {
		r.log.Error().Err(err).Int64("event_id", id).Msg("failed to save recording file record")
	}

	r.job = &Job{
		EventID:  id,
		Path:     filepath.Join(r.settings.RecordDir, name),
		Trigger:  t,
		Deadline: t.Add(r.settings.PostWindow),
		Pre:      r.buffer.Snapshot(),
	}

	if thumb == nil {
		thumb = f.Visual
	}
	thumbPath := filepath.Join(r.settings.RecordDir, FileName(t, r.cameraID, ".jpg"))
	r.deps.Pool.Go("thumbnail", func(ctx context.Context) {
		if err := r.deps.Encoder.WriteThumbnail(ctx, id, thumbPath, thumb); err != nil {
			r.log.Error().Err(err).Int64("event_id", id).Msg("failed to save thumbnail")
		}
	})

	r.log.Info().Int64("event_id", id).Str("object", det.Class).Float64("confidence", det.Confidence).
		Str("file", name).Msg("event triggered, recording")

	if r.deps.Notifier != nil {
		view, err := r.deps.Store.GetEventView(ctx, id)
		if err != nil {
			r.log.Error().Err(err).Int64("event_id", id).Msg("failed to load event for notification")
		} else if view != nil {
			r.deps.Notifier.PublishEvent(view)
		}
	}
	return Recorded, nil
}

// Close flushes an in-flight job with whatever post-event frames it has
func (r *Recorder) Close() {
	if r.job != nil {
		r.log.Info().Int64("event_id", r.job.EventID).Int("post_frames", len(r.job.Post)).
			Msg("session ending, flushing partial recording")
		r.finalize(true)
	}
	r.buffer.Reset()
}

func (r *Recorder) finalize(partial bool) {
	job := r.job
	r.job = nil

	clip := job.clip(r.settings.PreWindow, r.settings.PostWindow, partial)
	ok := r.deps.Pool.Go("clip", func(ctx context.Context) {
		if _, err := r.deps.Encoder.EncodeClip(ctx, clip); err != nil {
			r.log.Error().Err(err).Int64("event_id", clip.EventID).Msg("recording failed")
		}
	})
	if !ok {
		r.log.Error().Int64("event_id", clip.EventID).Msg("write pool closed, recording dropped")
	}
}

// FileName builds event_<YYYYMMDD_HHMMSS>_cam<id><ext>
func FileName(t time.Time, cameraID int64, ext string) string {
	return fmt.Sprintf("event_%s_cam%d%s", t.Format("20060102_150405"), cameraID, ext)
}
