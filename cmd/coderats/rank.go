package main

import (
	"time"

	"github.com/spf13/cobra"

	"coderats/internal/github"
	"coderats/internal/leaderboard"
	"coderats/internal/worker"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Run the rank job once and exit.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		res, err := runRankJob(cmd)
		if err != nil {
			return err
		}
		printRankResult(res)
		return nil
	},
}

func runRankJob(cmd *cobra.Command) (worker.Result, error) {
	database, err := openDB()
	if err != nil {
		return worker.Result{}, err
	}
	defer database.Close()

	cache, err := openCache()
	if err != nil {
		return worker.Result{}, err
	}
	defer cache.Close()

	if cfg.GitHubToken == "" {
		warnColor.Println("GITHUB_TOKEN not set, using the unauthenticated API")
	}
	boards := leaderboard.NewBuilder(database, cache)
	job := worker.New(database, github.NewClient(cfg.GitHubToken), cache, cfg.RankBatchSize, cfg.RankBatchDelay,
		worker.Hooks{Invalidate: boards.Invalidate})
	return job.Run(cmd.Context())
}

func printRankResult(res worker.Result) {
	c := okColor
	if res.Errors > 0 {
		c = warnColor
	}
	c.Printf("rank job: %d/%d updated, %d errors", res.Updated, res.TotalUsers, res.Errors)
	dimColor.Printf(" (%s)\n", res.Duration.Round(time.Millisecond))
}
