// Package main provides the CLI entry point for kakeai.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/harube/kakeai/internal/annotate"
	"github.com/harube/kakeai/internal/background"
	"github.com/harube/kakeai/internal/bus"
	"github.com/harube/kakeai/internal/config"
	"github.com/harube/kakeai/internal/logging"
	"github.com/harube/kakeai/internal/pipeline"
	"github.com/harube/kakeai/internal/publish"
	"github.com/harube/kakeai/internal/render"
	"github.com/harube/kakeai/internal/script"
	"github.com/harube/kakeai/internal/speech"
	"github.com/harube/kakeai/internal/timeline"
)

var (
	// Version information (set at build time)
	version = "dev"

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	speakerStyles = map[script.Speaker]lipgloss.Style{
		script.SpeakerTsuno:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F472B6")),
		script.SpeakerMegane: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#60A5FA")),
	}
)

// app bundles the pieces every command needs after startup.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	events *bus.EventBus
}

func newApp() (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(&logging.Config{
		LogDir:  filepath.Join(mustConfigDir(), "logs"),
		Level:   logging.LevelInfo,
		Console: false,
	})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, events: bus.NewEventBus()}, nil
}

func (a *app) Close() {
	a.logger.Close()
}

func mustConfigDir() string {
	dir, err := config.GetConfigDir()
	if err != nil {
		return ".kakeai"
	}
	return dir
}

// generationDeps wires every collaborator the generation stages need.
// The model clients hold open connections; the returned func closes
// them.
func (a *app) generationDeps(ctx context.Context) (pipeline.Deps, func(), error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return pipeline.Deps{}, nil, errors.New("GEMINI_API_KEY is not set (add it to .env or the environment)")
	}
	scripts, err := script.NewGenerator(ctx, a.cfg.Script, apiKey, a.logger.Zerolog())
	if err != nil {
		return pipeline.Deps{}, nil, err
	}
	bgs, err := background.NewGenerator(ctx, a.cfg.Background, apiKey, a.logger.Zerolog())
	if err != nil {
		scripts.Close()
		return pipeline.Deps{}, nil, err
	}
	deps := a.localDeps()
	deps.Scripts = scripts
	deps.Backgrounds = bgs
	cleanup := func() {
		scripts.Close()
		bgs.Close()
	}
	return deps, cleanup, nil
}

// localDeps wires the collaborators that need no model API key: the
// speech client, the renderer, and the publishing side.
func (a *app) localDeps() pipeline.Deps {
	return pipeline.Deps{
		Synthesizer: speech.NewCoeiroinkClient(a.cfg.Speech, a.logger.Zerolog()),
		Renderer:    render.New(render.NewAssets(a.cfg.Assets), a.logger.Zerolog()),
		Uploader:    publish.NewYouTubeUploader(a.cfg.Publish, publish.YouTubeCredentialsFromEnv(), a.logger.Zerolog()),
		Poster:      publish.NewXPoster(publish.XTokenFromEnv(), a.logger.Zerolog()),
	}
}

// resumeDeps builds only what the remaining stages will touch. The
// model clients are constructed just when a model stage is still
// ahead: a fresh script, or a background image that is not on disk.
func (a *app) resumeDeps(ctx context.Context, run *pipeline.Run, stage pipeline.Stage) (pipeline.Deps, func(), error) {
	needModels := stage == pipeline.StageScriptPending ||
		(stage == pipeline.StageScriptReady && !backgroundsPresent(run))
	if needModels {
		return a.generationDeps(ctx)
	}
	return a.localDeps(), func() {}, nil
}

func backgroundsPresent(run *pipeline.Run) bool {
	for _, l := range []timeline.Layout{timeline.LayoutWide, timeline.LayoutTall} {
		if _, err := os.Stat(run.Path(pipeline.BackgroundFile(l))); err != nil {
			return false
		}
	}
	return true
}

func (a *app) orchestrator(deps pipeline.Deps) (*pipeline.Orchestrator, error) {
	return pipeline.New(a.cfg, deps, a.events, a.logger.Zerolog())
}

// subscribeProgress echoes pipeline milestones to the console while
// the long stages run.
func subscribeProgress(events *bus.EventBus) {
	events.Subscribe(bus.EventTypeStageChanged, func(e bus.Event) {
		fmt.Println(dimStyle.Render(fmt.Sprintf("  stage: %v", e.Data["stage"])))
	})
	events.Subscribe(bus.EventTypeLineSynthesized, func(e bus.Event) {
		fmt.Println(dimStyle.Render(fmt.Sprintf("  voiced line %v (%v)", e.Data["line"], e.Data["speaker"])))
	})
	events.Subscribe(bus.EventTypeLineSilence, func(e bus.Event) {
		fmt.Println(dimStyle.Render(fmt.Sprintf("  line %v has nothing speakable, using silence", e.Data["line"])))
	})
	events.Subscribe(bus.EventTypeBackgroundFallback, func(e bus.Event) {
		fmt.Println(warnStyle.Render(fmt.Sprintf("  background model gave no image for %v, using a solid color", e.Data["layout"])))
	})
	events.Subscribe(bus.EventTypeRenderStarted, func(e bus.Event) {
		fmt.Println(dimStyle.Render("  encoding videos, this is the slow part..."))
	})
}

// driveTo steps the run until it reaches target or fails. Console
// logging is off while a command runs, so on failure the in-memory log
// tail is shown before the error.
func driveTo(ctx context.Context, a *app, orch *pipeline.Orchestrator, run *pipeline.Run, target pipeline.Stage) error {
	for !run.Stage.After(target) {
		if err := orch.Step(ctx, run); err != nil {
			printRecentLogs(a)
			return err
		}
	}
	return nil
}

// printRecentLogs shows the last few captured log entries and points at
// the log file for the rest.
func printRecentLogs(a *app) {
	entries := a.logger.GetHistory(5)
	if len(entries) == 0 {
		return
	}
	fmt.Println(dimStyle.Render("recent log entries:"))
	for _, e := range entries {
		fmt.Println(dimStyle.Render(fmt.Sprintf("  %s %-5s %s", e.Timestamp, e.Level, e.Message)))
	}
	fmt.Println(dimStyle.Render("full log: " + a.logger.GetLogPath()))
}

// resolveRun finds a run by exact ID, unique prefix, or latest when id
// is empty.
func resolveRun(cfg *config.Config, id string) (*pipeline.Run, error) {
	if id == "" {
		return pipeline.LatestRun(cfg.Output.Dir)
	}
	if r, err := pipeline.LoadRun(filepath.Join(cfg.Output.Dir, id)); err == nil {
		return r, nil
	}
	runs, err := pipeline.ListRuns(cfg.Output.Dir)
	if err != nil {
		return nil, err
	}
	var found *pipeline.Run
	for _, r := range runs {
		if strings.HasPrefix(r.ID, id) {
			if found != nil {
				return nil, fmt.Errorf("run id %q is ambiguous", id)
			}
			found = r
		}
	}
	if found == nil {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return found, nil
}

func argOrEmpty(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// printScript pretty-prints the dialogue with speaker-colored names
// and annotation markup resolved to its display form.
func printScript(s *script.Script) {
	fmt.Println()
	fmt.Println(titleStyle.Render(s.Meta.Title))
	fmt.Println(dimStyle.Render("テーマ: " + s.Meta.Theme))
	fmt.Println()
	for i, line := range s.Dialogue {
		style, ok := speakerStyles[line.Speaker]
		if !ok {
			style = dimStyle
		}
		marker := ""
		if line.ShortsSkip {
			marker = dimStyle.Render("  (カット候補)")
		}
		fmt.Printf("%3d %s  %s%s\n", i+1, style.Render(line.Speaker.DisplayName()), annotate.Caption(line.Text), marker)
	}
	fmt.Println()
}

// confirm asks a yes/no question on stdin. Anything but y/yes is no.
func confirm(question string) bool {
	fmt.Print(question + " [y/N]: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// editScript opens script.json in the user's editor. Editors that
// detach immediately are covered by waiting for the write event.
func editScript(ctx context.Context, run *pipeline.Run) error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	path := run.Path(pipeline.ScriptFile)
	before, err := os.Stat(path)
	if err != nil {
		return err
	}

	parts := strings.Fields(editor)
	parts = append(parts, path)
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return err
	}

	after, err := os.Stat(path)
	if err != nil {
		return err
	}
	if after.ModTime().Equal(before.ModTime()) && after.Size() == before.Size() {
		fmt.Println(dimStyle.Render("Waiting for the editor to write " + pipeline.ScriptFile + "... (Ctrl-C to stop waiting)"))
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		return pipeline.WatchScript(waitCtx, run.Dir())
	}
	return nil
}

// reviewScript shows the generated script and loops until the user
// accepts it, edits it, or regenerates it with an instruction.
func reviewScript(ctx context.Context, orch *pipeline.Orchestrator, run *pipeline.Run) error {
	reader := bufio.NewReader(os.Stdin)
	for {
		s, err := script.Load(run.Path(pipeline.ScriptFile))
		if err != nil {
			fmt.Println(errorStyle.Render("Script is invalid: " + err.Error()))
			fmt.Print("edit [e] / quit [q]: ")
			line, rerr := reader.ReadString('\n')
			if rerr != nil {
				return rerr
			}
			if strings.TrimSpace(strings.ToLower(line)) == "q" {
				return fmt.Errorf("aborted with an invalid script; fix %s by hand", run.Path(pipeline.ScriptFile))
			}
			if err := editScript(ctx, run); err != nil {
				fmt.Println(errorStyle.Render("Edit failed: " + err.Error()))
			}
			continue
		}

		printScript(s)
		fmt.Print("accept [a] / edit [e] / regenerate [r] / quit [q]: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		switch strings.TrimSpace(strings.ToLower(line)) {
		case "a", "":
			return nil
		case "e":
			if err := editScript(ctx, run); err != nil {
				fmt.Println(errorStyle.Render("Edit failed: " + err.Error()))
			}
		case "r":
			fmt.Print("instruction for the rewrite (blank for none): ")
			instr, _ := reader.ReadString('\n')
			fmt.Println(dimStyle.Render("Regenerating script..."))
			if err := orch.RegenerateScript(ctx, run, strings.TrimSpace(instr)); err != nil {
				fmt.Println(errorStyle.Render("Regeneration failed: " + err.Error()))
			}
		case "q":
			return fmt.Errorf("aborted; pick this run up again with 'kakeai resume %s'", run.ID)
		}
	}
}

func reportRendered(run *pipeline.Run) {
	fmt.Println(successStyle.Render("✓ Videos rendered"))
	fmt.Printf("  %s\n", run.Path(pipeline.VideoFile(timeline.LayoutWide)))
	fmt.Printf("  %s\n", run.Path(pipeline.VideoFile(timeline.LayoutTall)))
	fmt.Printf("  %s\n", run.Path(pipeline.ThumbnailFile))
}

func publishAndReport(ctx context.Context, orch *pipeline.Orchestrator, run *pipeline.Run) error {
	fmt.Println(dimStyle.Render("Uploading..."))
	if err := orch.PublishRun(ctx, run); err != nil {
		return err
	}
	if err := orch.MarkDone(run); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ Uploaded"))
	fmt.Printf("  %s\n", run.Upload.YouTubeURL)
	fmt.Println()
	fmt.Println(dimStyle.Render("Next: 'kakeai shorts " + run.ID + "' for the tall cut, 'kakeai post " + run.ID + "' to announce it."))
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "kakeai",
		Short: "Two-character dialogue videos from a single topic",
		Long: titleStyle.Render("kakeai") + `

Turns a topic into a finished dialogue video:
• scripted back-and-forth between two characters
• synthesized voices with mouth-synced sprites
• wide (YouTube) and tall (Shorts) renders
• thumbnail, upload, and announcement post

` + dimStyle.Render("Use 'kakeai [command] --help' for more information."),
		Version: version,
	}

	// run command - full pipeline through publish
	runCmd := &cobra.Command{
		Use:   "run [topic]",
		Short: "Generate and publish a video for a topic",
		Long:  "Run the whole pipeline: script, backgrounds, audio, schedules, renders, upload. The script stops for review unless --yes is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			skipUpload, _ := cmd.Flags().GetBool("skip-upload")
			yes, _ := cmd.Flags().GetBool("yes")

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			deps, cleanup, err := a.generationDeps(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			subscribeProgress(a.events)
			orch, err := a.orchestrator(deps)
			if err != nil {
				return err
			}

			run, err := orch.CreateRun(args[0])
			if err != nil {
				return err
			}
			fmt.Println(titleStyle.Render("Run " + run.ID))
			fmt.Println(dimStyle.Render("  " + run.Dir()))

			fmt.Println(dimStyle.Render("Generating script..."))
			if err := orch.GenerateScript(ctx, run); err != nil {
				return err
			}
			if !yes {
				if err := reviewScript(ctx, orch, run); err != nil {
					return err
				}
			}
			if err := driveTo(ctx, a, orch, run, pipeline.StageRendered); err != nil {
				return err
			}
			reportRendered(run)

			if skipUpload {
				fmt.Println(dimStyle.Render("Upload skipped. Publish later with 'kakeai upload " + run.ID + "'"))
				return nil
			}
			if !yes && !confirm("Upload to YouTube?") {
				fmt.Println(dimStyle.Render("Not uploading. Publish later with 'kakeai upload " + run.ID + "'"))
				return nil
			}
			return publishAndReport(ctx, orch, run)
		},
	}
	runCmd.Flags().Bool("skip-upload", false, "Stop after rendering, do not upload")
	runCmd.Flags().BoolP("yes", "y", false, "Accept the script and upload without prompting")

	// generate command - pipeline through the renders, never uploads
	generateCmd := &cobra.Command{
		Use:   "generate [topic]",
		Short: "Generate the videos without uploading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			deps, cleanup, err := a.generationDeps(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			subscribeProgress(a.events)
			orch, err := a.orchestrator(deps)
			if err != nil {
				return err
			}

			run, err := orch.CreateRun(args[0])
			if err != nil {
				return err
			}
			fmt.Println(titleStyle.Render("Run " + run.ID))
			fmt.Println(dimStyle.Render("Generating script..."))
			if err := orch.GenerateScript(ctx, run); err != nil {
				return err
			}
			if !yes {
				if err := reviewScript(ctx, orch, run); err != nil {
					return err
				}
			}
			if err := driveTo(ctx, a, orch, run, pipeline.StageRendered); err != nil {
				return err
			}
			reportRendered(run)
			fmt.Println(dimStyle.Render("Publish with 'kakeai upload " + run.ID + "'"))
			return nil
		},
	}
	generateCmd.Flags().BoolP("yes", "y", false, "Accept the script without prompting")

	// resume command - continue a persisted run
	resumeCmd := &cobra.Command{
		Use:   "resume [run-id]",
		Short: "Continue a run from its last completed stage",
		Long:  "Continue a persisted run. Failed runs restart at their last good stage; --from-script rewinds a composed run so an edited script.json flows through again.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromScript, _ := cmd.Flags().GetBool("from-script")

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			run, err := resolveRun(a.cfg, argOrEmpty(args))
			if err != nil {
				return err
			}

			stage := run.Stage
			if stage == pipeline.StageFailed {
				stage = run.LastGood
			}
			if fromScript {
				stage = pipeline.StageScriptReady
			}
			deps, cleanup, err := a.resumeDeps(ctx, run, stage)
			if err != nil {
				return err
			}
			defer cleanup()
			subscribeProgress(a.events)
			orch, err := a.orchestrator(deps)
			if err != nil {
				return err
			}

			if run.Stage == pipeline.StageFailed {
				fmt.Println(warnStyle.Render("Run failed at " + string(run.LastGood) + ": " + run.Failure))
				if err := orch.Recover(run); err != nil {
					return err
				}
			}
			if fromScript {
				if err := orch.ResumeFromScript(run); err != nil {
					return err
				}
			}
			if run.Stage.After(pipeline.StageRendered) {
				fmt.Println(dimStyle.Render("Already rendered. Use 'kakeai upload', 'kakeai shorts' or 'kakeai post'."))
				return nil
			}

			fmt.Println(titleStyle.Render("Resuming " + run.ID))
			fmt.Println(dimStyle.Render("  from " + string(run.Stage)))
			if err := driveTo(ctx, a, orch, run, pipeline.StageRendered); err != nil {
				return err
			}
			reportRendered(run)
			fmt.Println(dimStyle.Render("Publish with 'kakeai upload " + run.ID + "'"))
			return nil
		},
	}
	resumeCmd.Flags().Bool("from-script", false, "Rewind to the script stage so edits regenerate everything")

	// upload command - publish the wide render
	uploadCmd := &cobra.Command{
		Use:   "upload [run-id]",
		Short: "Upload a rendered run to YouTube",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			run, err := resolveRun(a.cfg, argOrEmpty(args))
			if err != nil {
				return err
			}
			orch, err := a.orchestrator(a.localDeps())
			if err != nil {
				return err
			}

			if run.Stage == pipeline.StageFailed && run.LastGood == pipeline.StageRendered {
				if err := orch.Recover(run); err != nil {
					return err
				}
			}
			if run.Upload != nil {
				fmt.Println(dimStyle.Render("Already uploaded: " + run.Upload.YouTubeURL))
				return nil
			}
			if run.Stage != pipeline.StageRendered {
				return fmt.Errorf("run %s is not rendered yet (stage %s)", run.ID, run.Stage)
			}

			s, err := script.Load(run.Path(pipeline.ScriptFile))
			if err != nil {
				return err
			}
			fmt.Println(titleStyle.Render(s.Meta.Title))
			fmt.Println(dimStyle.Render("  privacy: " + a.cfg.Publish.Privacy))
			if !yes && !confirm("Upload this video?") {
				return errors.New("upload cancelled")
			}
			return publishAndReport(ctx, orch, run)
		},
	}
	uploadCmd.Flags().BoolP("yes", "y", false, "Upload without prompting")

	// shorts command - upload the tall render of a published run
	shortsCmd := &cobra.Command{
		Use:   "shorts [run-id]",
		Short: "Upload the tall render as a Shorts video",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			run, err := resolveRun(a.cfg, argOrEmpty(args))
			if err != nil {
				return err
			}
			orch, err := a.orchestrator(a.localDeps())
			if err != nil {
				return err
			}

			if !yes && !confirm("Upload the Shorts cut of "+run.ID+"?") {
				return errors.New("upload cancelled")
			}
			if err := orch.UploadShorts(ctx, run); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("✓ Shorts uploaded"))
			fmt.Printf("  %s\n", run.Upload.ShortsURL)
			return nil
		},
	}
	shortsCmd.Flags().BoolP("yes", "y", false, "Upload without prompting")

	// post command - announce an uploaded run on X
	postCmd := &cobra.Command{
		Use:   "post [run-id]",
		Short: "Post the announcement for an uploaded run to X",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			run, err := resolveRun(a.cfg, argOrEmpty(args))
			if err != nil {
				return err
			}
			orch, err := a.orchestrator(a.localDeps())
			if err != nil {
				return err
			}

			info := run.Upload
			if info == nil {
				info, err = publish.LoadUploadInfo(run.Dir())
				if err != nil {
					return err
				}
			}
			s, err := script.Load(run.Path(pipeline.ScriptFile))
			if err != nil {
				return err
			}
			fmt.Println(publish.SubstituteURL(s.XPostContent, info.YouTubeURL))
			fmt.Println()
			if !yes && !confirm("Post this to X?") {
				return errors.New("post cancelled")
			}
			url, err := orch.PostAnnouncement(ctx, run)
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render("✓ Posted"))
			fmt.Printf("  %s\n", url)
			return nil
		},
	}
	postCmd.Flags().BoolP("yes", "y", false, "Post without prompting")

	// thumbnail command - regenerate just the thumbnail
	thumbnailCmd := &cobra.Command{
		Use:   "thumbnail [run-id]",
		Short: "Regenerate a run's thumbnail",
		Long:  "Rebuild thumbnail.png from the persisted background and title. Identical inputs reproduce the identical file.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := resolveRun(a.cfg, argOrEmpty(args))
			if err != nil {
				return err
			}
			orch, err := a.orchestrator(a.localDeps())
			if err != nil {
				return err
			}
			if err := orch.RegenerateThumbnail(cmd.Context(), run); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("✓ Thumbnail regenerated"))
			fmt.Printf("  %s\n", run.Path(pipeline.ThumbnailFile))
			return nil
		},
	}

	// status command - list runs or show one run's detail
	statusCmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "List runs and their stages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) > 0 {
				run, err := resolveRun(a.cfg, args[0])
				if err != nil {
					return err
				}
				printRunDetail(run)
				return nil
			}

			runs, err := pipeline.ListRuns(a.cfg.Output.Dir)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println(dimStyle.Render("No runs yet. Start one with 'kakeai run <topic>'"))
				return nil
			}
			fmt.Println(titleStyle.Render("Runs"))
			fmt.Println()
			for _, r := range runs {
				glyph := successStyle.Render("●")
				switch {
				case r.Stage == pipeline.StageFailed:
					glyph = errorStyle.Render("●")
				case !r.Stage.Terminal():
					glyph = warnStyle.Render("●")
				}
				fmt.Printf("%s %s  %-16s %s\n", glyph, r.ID, r.Stage, r.Topic)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(shortsCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(thumbnailCmd)
	rootCmd.AddCommand(statusCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func printRunDetail(r *pipeline.Run) {
	fmt.Println(titleStyle.Render("Run " + r.ID))
	fmt.Printf("  Topic:   %s\n", r.Topic)
	fmt.Printf("  Stage:   %s\n", r.Stage)
	fmt.Printf("  Created: %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if r.Stage == pipeline.StageFailed {
		fmt.Printf("  Resumes: %s\n", r.LastGood)
		fmt.Printf("  Failure: %s\n", errorStyle.Render(r.Failure))
	}
	fmt.Println()

	artifacts := []string{
		pipeline.ScriptFile,
		pipeline.BackgroundFile(timeline.LayoutWide),
		pipeline.BackgroundFile(timeline.LayoutTall),
		pipeline.ScheduleFile(timeline.LayoutWide),
		pipeline.ScheduleFile(timeline.LayoutTall),
		pipeline.VideoFile(timeline.LayoutWide),
		pipeline.VideoFile(timeline.LayoutTall),
		pipeline.ThumbnailFile,
		publish.NoteFile,
		publish.XPostFile,
	}
	for _, name := range artifacts {
		mark := dimStyle.Render("-")
		if _, err := os.Stat(r.Path(name)); err == nil {
			mark = successStyle.Render("✓")
		}
		fmt.Printf("  %s %s\n", mark, name)
	}
	if r.Upload != nil {
		fmt.Println()
		fmt.Printf("  Video:  %s\n", r.Upload.YouTubeURL)
		if r.Upload.ShortsURL != "" {
			fmt.Printf("  Shorts: %s\n", r.Upload.ShortsURL)
		}
	}
}
