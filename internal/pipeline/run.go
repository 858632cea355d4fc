package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/harube/kakeai/internal/audio"
	"github.com/harube/kakeai/internal/motion"
	"github.com/harube/kakeai/internal/publish"
	"github.com/harube/kakeai/internal/script"
	"github.com/harube/kakeai/internal/timeline"
)

// Well-known names inside a run directory.
const (
	StateFile     = "state.json"
	ScriptFile    = "script.json"
	AudioDir      = "audio"
	ThumbnailFile = "thumbnail.png"
)

var (
	ErrNotFailed     = errors.New("run is not in the failed state")
	ErrDataIntegrity = errors.New("run artifacts are inconsistent")
)

// BackgroundFile returns the background image name for a layout.
func BackgroundFile(l timeline.Layout) string {
	if l == timeline.LayoutTall {
		return "bg_portrait.png"
	}
	return "bg_landscape.png"
}

// ScheduleFile returns the schedule JSON name for a layout.
func ScheduleFile(l timeline.Layout) string {
	return "schedule_" + string(l) + ".json"
}

// VideoFile returns the rendered video name for a layout.
func VideoFile(l timeline.Layout) string {
	if l == timeline.LayoutTall {
		return "portrait.mp4"
	}
	return "landscape.mp4"
}

// WorkDirName returns the per-layout scratch directory holding filter
// scripts, caption text files, and encoded segments.
func WorkDirName(l timeline.Layout) string {
	return "work_" + string(l)
}

// AudioFileName returns the clip name for a dialogue line. Lines are
// numbered from one and tagged with the speaker so the directory reads
// like the script.
func AudioFileName(line int, sp script.Speaker) string {
	return fmt.Sprintf("%03d_%s.wav", line, sp)
}

// LineClip records one dialogue line's synthesized audio. Clip paths
// are relative to the run directory so the directory can be moved or
// archived whole.
type LineClip struct {
	Line    int            `json:"line"`
	Speaker script.Speaker `json:"speaker"`
	Clip    audio.Clip     `json:"clip"`
}

// Run is the state of one pipeline invocation, persisted to state.json
// after every stage. The stage marker here is the sole authority on
// what has completed; artifact files are only trusted when the marker
// says their stage ran.
type Run struct {
	ID        string        `json:"id"`
	UUID      string        `json:"uuid"`
	Topic     string        `json:"topic"`
	Stage     Stage         `json:"stage"`
	LastGood  Stage         `json:"last_good_stage,omitempty"`
	Failure   string        `json:"failure,omitempty"`
	Motion    motion.Params `json:"motion"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	Clips              []LineClip          `json:"clips,omitempty"`
	Backgrounds        map[string]string   `json:"backgrounds,omitempty"`
	BackgroundFallback bool                `json:"background_fallback,omitempty"`
	Schedules          map[string]string   `json:"schedules,omitempty"`
	Renders            map[string]string   `json:"renders,omitempty"`
	Thumbnail          string              `json:"thumbnail,omitempty"`
	Upload             *publish.UploadInfo `json:"upload,omitempty"`

	dir string
}

// NewRun allocates a run record under outputDir. The ID is the
// creation timestamp, so directory listings sort chronologically.
func NewRun(outputDir, topic string, m motion.Params, now time.Time) *Run {
	id := now.Format("20060102_150405")
	return &Run{
		ID:          id,
		UUID:        uuid.NewString(),
		Topic:       topic,
		Stage:       StageScriptPending,
		Motion:      m,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
		Backgrounds: map[string]string{},
		Schedules:   map[string]string{},
		Renders:     map[string]string{},
		dir:         filepath.Join(outputDir, id),
	}
}

// Dir returns the run directory.
func (r *Run) Dir() string {
	return r.dir
}

// Path resolves a run-relative name to an absolute path.
func (r *Run) Path(name string) string {
	return filepath.Join(r.dir, name)
}

// Advance moves the run one legal step and persists it.
func (r *Run) Advance(to Stage) error {
	if !CanTransition(r.Stage, to) {
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, r.Stage, to)
	}
	r.Stage = to
	return r.Save()
}

// MarkFailed records the failure cause and the last stage that
// completed, then persists. The run stays resumable: Recover puts it
// back where it was.
func (r *Run) MarkFailed(cause error) error {
	if r.Stage != StageFailed {
		r.LastGood = r.Stage
	}
	r.Stage = StageFailed
	r.Failure = cause.Error()
	return r.Save()
}

// Recover returns a failed run to its last good stage.
func (r *Run) Recover() error {
	if r.Stage != StageFailed {
		return fmt.Errorf("%w: stage is %s", ErrNotFailed, r.Stage)
	}
	r.Stage = r.LastGood
	r.LastGood = ""
	r.Failure = ""
	return r.Save()
}

// Save writes state.json atomically: marshal to a temp file in the run
// directory, then rename over the old state. A crash mid-write leaves
// the previous state intact.
func (r *Run) Save() error {
	r.UpdatedAt = time.Now().UTC()
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}
	tmp, err := os.CreateTemp(r.dir, "state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create state temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write run state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write run state: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.Path(StateFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace run state: %w", err)
	}
	return nil
}

// LoadRun reads a run back from its directory.
func LoadRun(runDir string) (*Run, error) {
	data, err := os.ReadFile(filepath.Join(runDir, StateFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read run state: %w", err)
	}
	var r Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("invalid run state in %s: %w", runDir, err)
	}
	if !r.Stage.Valid() {
		return nil, fmt.Errorf("%w: unknown stage %q", ErrDataIntegrity, r.Stage)
	}
	r.dir = runDir
	if r.Backgrounds == nil {
		r.Backgrounds = map[string]string{}
	}
	if r.Schedules == nil {
		r.Schedules = map[string]string{}
	}
	if r.Renders == nil {
		r.Renders = map[string]string{}
	}
	return &r, nil
}

// ListRuns loads every run under outputDir, oldest first. Entries that
// are not run directories are skipped.
func ListRuns(outputDir string) ([]*Run, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	var runs []*Run
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		r, err := LoadRun(filepath.Join(outputDir, e.Name()))
		if err != nil {
			continue
		}
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs, nil
}

// LatestRun returns the newest run under outputDir.
func LatestRun(outputDir string) (*Run, error) {
	runs, err := ListRuns(outputDir)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.New("no runs found")
	}
	return runs[len(runs)-1], nil
}
