package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"viral-shorts-pipeline/config"
	"viral-shorts-pipeline/research"
)

var trendingLimit int

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "List trending topics with ready-to-use missions",
	Long: `trending pulls candidate stories from Reddit and Google News, scores
them for hook potential and prints the best ones. Each topic comes with a
mission line that can be passed straight to generate --mission.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		finder, err := research.NewFinder(cfg.Research)
		if err != nil {
			return err
		}
		topics, err := finder.Trending(cmd.Context(), trendingLimit)
		if err != nil {
			return err
		}
		for i, t := range topics {
			fmt.Printf("%2d. [%3d] %s\n    source: %s\n    mission: %s\n\n",
				i+1, t.Score, t.Title, t.Source, t.Mission)
		}
		return nil
	},
}

func init() {
	trendingCmd.Flags().IntVar(&trendingLimit, "limit", 10, "maximum topics to print")
	rootCmd.AddCommand(trendingCmd)
}
