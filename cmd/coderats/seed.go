package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"coderats/internal/db"
	"coderats/internal/github"
)

var (
	seedFile string
	seedRank bool
)

var seedCmd = &cobra.Command{
	Use:   "seed [USERNAME...]",
	Short: "Start tracking GitHub users.",
	Long: `Seed looks each username up on GitHub and creates a tracked user with zero
counters. Existing users keep their stats. Pass --rank to fetch stats right away.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := args
		if seedFile != "" {
			fromFile, err := readUsernames(seedFile)
			if err != nil {
				return err
			}
			names = append(names, fromFile...)
		}
		if len(names) == 0 {
			return errors.New("no usernames given")
		}

		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		gh := github.NewClient(cfg.GitHubToken)
		ctx := cmd.Context()

		added, skipped := 0, 0
		for _, name := range names {
			existing, err := database.GetUser(ctx, name)
			if err != nil {
				return err
			}
			if existing != nil {
				dimColor.Printf("skip %s (already tracked)\n", name)
				skipped++
				continue
			}
			profile, err := gh.GetUser(ctx, name)
			switch {
			case errors.Is(err, github.ErrNotFound):
				warnColor.Printf("skip %s (no such GitHub user)\n", name)
				skipped++
				continue
			case err != nil:
				return err
			case profile.Type != "" && profile.Type != "User":
				warnColor.Printf("skip %s (%s accounts are not ranked)\n", name, profile.Type)
				skipped++
				continue
			}

			patch := db.UserPatch{AvatarURL: &profile.AvatarURL}
			if profile.Name != "" {
				patch.DisplayName = &profile.Name
			}
			// GitHub's canonical casing wins over what was typed.
			if err := database.UpsertUser(ctx, profile.Login, patch); err != nil {
				return err
			}
			okColor.Printf("added %s\n", profile.Login)
			added++
		}
		fmt.Printf("%d added, %d skipped\n", added, skipped)

		if !seedRank || added == 0 {
			return nil
		}
		res, err := runRankJob(cmd)
		if err != nil {
			return err
		}
		printRankResult(res)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "file with one username per line (# comments allowed)")
	seedCmd.Flags().BoolVar(&seedRank, "rank", false, "run the rank job after seeding")
}

func readUsernames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line != "" {
			names = append(names, line)
		}
	}
	return names, sc.Err()
}
