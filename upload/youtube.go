package upload

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"viral-shorts-pipeline/config"
	"viral-shorts-pipeline/types"
)

// Credentials is the OAuth material for the channel, read from env.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

func CredentialsFromEnv() (Credentials, error) {
	creds := Credentials{
		ClientID:     os.Getenv("YOUTUBE_CLIENT_ID"),
		ClientSecret: os.Getenv("YOUTUBE_CLIENT_SECRET"),
		RefreshToken: os.Getenv("YOUTUBE_REFRESH_TOKEN"),
	}
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.RefreshToken == "" {
		return Credentials{}, fmt.Errorf("upload needs YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET and YOUTUBE_REFRESH_TOKEN")
	}
	return creds, nil
}

// Uploader publishes finished videos to the configured channel.
type Uploader struct {
	cfg   config.UploadConfig
	creds Credentials
}

func NewUploader(cfg config.UploadConfig, creds Credentials) *Uploader {
	return &Uploader{cfg: cfg, creds: creds}
}

// Upload sends the video with its distribution copy and returns the new
// video ID.
func (u *Uploader) Upload(ctx context.Context, videoPath string, dist *types.Distribution) (string, error) {
	conf := &oauth2.Config{
		ClientID:     u.creds.ClientID,
		ClientSecret: u.creds.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
	ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: u.creds.RefreshToken})
	svc, err := youtube.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return "", fmt.Errorf("youtube service: %w", err)
	}

	title := dist.Title
	if title == "" {
		title = "Untitled short"
	}
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:           title,
			Description:     buildDescription(dist),
			Tags:            stripHashes(dist.Hashtags),
			CategoryId:      u.cfg.CategoryID,
			DefaultLanguage: u.cfg.DefaultLanguage,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           u.cfg.Visibility,
			SelfDeclaredMadeForKids: false,
		},
	}

	f, err := os.Open(videoPath)
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	resp, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(f).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube insert: %w", err)
	}
	log.Info().Str("stage", "upload").Str("video_id", resp.Id).Str("visibility", u.cfg.Visibility).Msg("video uploaded")
	return resp.Id, nil
}

func buildDescription(dist *types.Distribution) string {
	parts := []string{dist.Description}
	if len(dist.Hashtags) > 0 {
		parts = append(parts, strings.Join(dist.Hashtags, " "))
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func stripHashes(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimPrefix(t, "#"); t != "" {
			out = append(out, t)
		}
	}
	return out
}
