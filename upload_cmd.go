package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"viral-shorts-pipeline/config"
	"viral-shorts-pipeline/session"
	"viral-shorts-pipeline/types"
	"viral-shorts-pipeline/upload"
)

var uploadSessionID string

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a finished session's video to YouTube",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		sess, err := session.Open(cfg.Paths.OutputsDir, uploadSessionID)
		if err != nil {
			return err
		}

		var summary types.Summary
		if err := readJSON(sess.MetadataPath("summary.json"), &summary); err != nil {
			return fmt.Errorf("read session summary: %w", err)
		}
		if summary.FinalVideo == "" {
			return fmt.Errorf("session %s has no final video", sess.ID)
		}
		dist := summary.Distribution
		if dist == nil {
			dist = &types.Distribution{Title: summary.Title}
		}

		creds, err := upload.CredentialsFromEnv()
		if err != nil {
			return err
		}
		videoID, err := upload.NewUploader(cfg.Upload, creds).Upload(cmd.Context(), summary.FinalVideo, dist)
		if err != nil {
			return err
		}
		fmt.Printf("Uploaded: https://youtu.be/%s\n", videoID)

		summary.YouTubeVideoID = videoID
		if err := sess.WriteSummary(&summary); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadSessionID, "session-id", "", "session to upload (required)")
	uploadCmd.MarkFlagRequired("session-id")
	rootCmd.AddCommand(uploadCmd)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
