// Package publish pushes finished runs out: YouTube uploads for both
// layouts, the X announcement post, and the text artifacts written
// next to the renders. Everything here is re-runnable; a failed upload
// leaves the run directory intact.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harube/kakeai/internal/script"
)

// Publish errors
var (
	ErrNotConfigured = errors.New("publish credentials not configured")
	ErrNotUploaded   = errors.New("run has not been uploaded")
)

// Artifact file names inside the run directory.
const (
	NoteFile       = "note.md"
	XPostFile      = "x_post.txt"
	UploadInfoFile = "upload_info.json"
)

// URLPlaceholder is the literal token the script generator leaves in
// note and post text for the not-yet-known watch URL.
const URLPlaceholder = "{youtube_url}"

// SubstituteURL resolves the watch-URL placeholder in publish text.
func SubstituteURL(text, url string) string {
	return strings.ReplaceAll(text, URLPlaceholder, url)
}

// UploadInfo records completed uploads for a run. The shorts fields
// stay empty until the tall render is uploaded.
type UploadInfo struct {
	VideoID       string    `json:"video_id"`
	YouTubeURL    string    `json:"youtube_url"`
	ShortsVideoID string    `json:"shorts_video_id,omitempty"`
	ShortsURL     string    `json:"shorts_url,omitempty"`
	Privacy       string    `json:"privacy"`
	Title         string    `json:"title"`
	UploadedAt    time.Time `json:"uploaded_at"`
}

// SaveUploadInfo writes the upload record into the run directory.
func SaveUploadInfo(runDir string, info *UploadInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal upload record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, UploadInfoFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write upload record: %w", err)
	}
	return nil
}

// LoadUploadInfo reads the upload record of a run. A missing record
// means the main video was never uploaded.
func LoadUploadInfo(runDir string) (*UploadInfo, error) {
	data, err := os.ReadFile(filepath.Join(runDir, UploadInfoFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotUploaded, err)
	}
	var info UploadInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid upload record: %w", err)
	}
	return &info, nil
}

// WriteArtifacts persists the publish-side text files after the main
// upload: the note article and the X post with the watch URL
// substituted in, plus the upload record itself.
func WriteArtifacts(runDir string, s *script.Script, info *UploadInfo) error {
	if s.NoteContent != "" {
		note := SubstituteURL(s.NoteContent, info.YouTubeURL)
		if err := os.WriteFile(filepath.Join(runDir, NoteFile), []byte(note), 0644); err != nil {
			return fmt.Errorf("failed to write note article: %w", err)
		}
	}
	if s.XPostContent != "" {
		post := SubstituteURL(s.XPostContent, info.YouTubeURL)
		if err := os.WriteFile(filepath.Join(runDir, XPostFile), []byte(post), 0644); err != nil {
			return fmt.Errorf("failed to write post text: %w", err)
		}
	}
	return SaveUploadInfo(runDir, info)
}

// ExtractIntro returns the paragraph between the H1 and the first H2
// of the note article, used as the video description lead. A note with
// no usable intro falls back to its first 200 runes.
func ExtractIntro(noteContent string) string {
	var intro []string
	foundH1 := false
	for _, line := range strings.Split(noteContent, "\n") {
		stripped := strings.TrimSpace(line)
		if !foundH1 {
			if strings.HasPrefix(stripped, "# ") {
				foundH1 = true
			}
			continue
		}
		if strings.HasPrefix(stripped, "## ") {
			break
		}
		intro = append(intro, line)
	}
	if text := strings.TrimSpace(strings.Join(intro, "\n")); text != "" {
		return text
	}
	runes := []rune(noteContent)
	if len(runes) > 200 {
		runes = runes[:200]
	}
	return strings.TrimSpace(string(runes))
}

// BuildDescription assembles the longform description from the note
// intro and the configured hashtags.
func BuildDescription(noteContent string, tags []string) string {
	intro := ExtractIntro(noteContent)
	line := hashtagLine(tags)
	switch {
	case intro == "":
		return line
	case line == "":
		return intro
	}
	return intro + "\n\n" + line
}

// BuildShortsDescription points shorts viewers at the main video. The
// channel plug is skipped when no channel URL is configured.
func BuildShortsDescription(mainURL, theme string, tags []string, channelURL string) string {
	themeTag := strings.NewReplacer(" ", "", "　", "").Replace(theme)

	var b strings.Builder
	b.WriteString("📺 本編はこちら\n")
	b.WriteString(mainURL)
	b.WriteString("\n\n#")
	b.WriteString(themeTag)
	if line := hashtagLine(tags); line != "" {
		b.WriteString(" ")
		b.WriteString(line)
	}
	if channelURL != "" {
		b.WriteString("\n\nチャンネル登録よろしくお願いします！\n")
		b.WriteString(channelURL)
	}
	return b.String()
}

func hashtagLine(tags []string) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		parts = append(parts, "#"+t)
	}
	return strings.Join(parts, " ")
}
