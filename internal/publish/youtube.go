package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/harube/kakeai/internal/config"
)

// uploadChunkSize keeps resumable uploads restartable at 10 MB
// granularity.
const uploadChunkSize = 10 << 20

// YouTubeCredentials holds the OAuth2 client and the refresh token
// minted by the one-time authorization flow.
type YouTubeCredentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// YouTubeCredentialsFromEnv reads credentials from the environment.
func YouTubeCredentialsFromEnv() YouTubeCredentials {
	return YouTubeCredentials{
		ClientID:     os.Getenv("YOUTUBE_CLIENT_ID"),
		ClientSecret: os.Getenv("YOUTUBE_CLIENT_SECRET"),
		RefreshToken: os.Getenv("YOUTUBE_REFRESH_TOKEN"),
	}
}

// Configured reports whether all three pieces are present.
func (c YouTubeCredentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// YouTubeUploader uploads renders through the Data API v3.
type YouTubeUploader struct {
	cfg   config.PublishConfig
	creds YouTubeCredentials
	log   zerolog.Logger
	opts  []option.ClientOption
}

// NewYouTubeUploader creates an uploader with the given publish
// settings.
func NewYouTubeUploader(cfg config.PublishConfig, creds YouTubeCredentials, log zerolog.Logger) *YouTubeUploader {
	return &YouTubeUploader{
		cfg:   cfg,
		creds: creds,
		log:   log.With().Str("component", "publish").Logger(),
	}
}

func (u *YouTubeUploader) service(ctx context.Context) (*youtube.Service, error) {
	opts := u.opts
	if len(opts) == 0 {
		if !u.creds.Configured() {
			return nil, fmt.Errorf("%w: set YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, YOUTUBE_REFRESH_TOKEN", ErrNotConfigured)
		}
		conf := &oauth2.Config{
			ClientID:     u.creds.ClientID,
			ClientSecret: u.creds.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
		}
		token := &oauth2.Token{RefreshToken: u.creds.RefreshToken}
		opts = []option.ClientOption{option.WithHTTPClient(conf.Client(ctx, token))}
	}
	return youtube.NewService(ctx, opts...)
}

// Upload names the inputs of one video upload.
type Upload struct {
	VideoPath     string
	Title         string
	Description   string
	ThumbnailPath string
}

// UploadVideo uploads the file and returns the video ID and canonical
// watch URL. The thumbnail, when given, is set afterwards best-effort.
func (u *YouTubeUploader) UploadVideo(ctx context.Context, up Upload) (*UploadInfo, error) {
	svc, err := u.service(ctx)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(up.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	// Titles may carry layout newlines for the thumbnail; YouTube
	// titles are single-line.
	title := strings.ReplaceAll(up.Title, "\n", "")
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: up.Description,
			Tags:        u.cfg.Tags,
			CategoryId:  u.cfg.CategoryID,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: u.cfg.Privacy},
	}

	u.log.Info().
		Str("video", filepath.Base(up.VideoPath)).
		Str("title", title).
		Str("privacy", u.cfg.Privacy).
		Msg("Uploading to YouTube")

	resp, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(f, googleapi.ContentType("video/mp4"), googleapi.ChunkSize(uploadChunkSize)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube upload failed: %w", err)
	}

	info := &UploadInfo{
		VideoID:    resp.Id,
		YouTubeURL: "https://youtu.be/" + resp.Id,
		Privacy:    u.cfg.Privacy,
		Title:      up.Title,
		UploadedAt: time.Now().UTC(),
	}
	u.log.Info().Str("url", info.YouTubeURL).Msg("YouTube upload complete")

	if up.ThumbnailPath != "" {
		u.setThumbnail(ctx, svc, resp.Id, up.ThumbnailPath)
	}
	return info, nil
}

// setThumbnail is best-effort. Accounts without phone verification
// cannot set custom thumbnails, and the upload itself has already
// succeeded.
func (u *YouTubeUploader) setThumbnail(ctx context.Context, svc *youtube.Service, videoID, path string) {
	f, err := os.Open(path)
	if err != nil {
		u.log.Warn().Err(err).Msg("Thumbnail missing, skipping")
		return
	}
	defer f.Close()

	_, err = svc.Thumbnails.Set(videoID).
		Media(f, googleapi.ContentType("image/png")).
		Context(ctx).
		Do()
	if err != nil {
		u.log.Warn().Err(err).Msg("Thumbnail set failed; set it manually in YouTube Studio")
		return
	}
	u.log.Info().Msg("Thumbnail set")
}
