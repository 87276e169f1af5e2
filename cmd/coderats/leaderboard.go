package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"coderats/internal/leaderboard"
)

var (
	boardLimit int
	boardAll   bool
)

var leaderboardCmd = &cobra.Command{
	Use:     "leaderboard",
	Aliases: []string{"board"},
	Short:   "Print the current leaderboard.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		// Read straight from the store so the output never lags behind the cache.
		board, err := leaderboard.NewBuilder(database, nil).Build(cmd.Context(), boardAll)
		if err != nil {
			return err
		}
		if len(board.Users) == 0 {
			warnColor.Println("no tracked users yet; try `coderats seed`")
			return nil
		}
		return printBoard(cmd.OutOrStdout(), board.Users, boardLimit)
	},
}

func init() {
	leaderboardCmd.Flags().IntVarP(&boardLimit, "limit", "n", 25, "rows to print (0 for all)")
	leaderboardCmd.Flags().BoolVar(&boardAll, "all", false, "include banned users")
}

var (
	podiumColor = color.New(color.FgYellow, color.Bold)
	bannedColor = color.New(color.FgRed)
)

func printBoard(out io.Writer, entries []leaderboard.Entry, limit int) error {
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	table := tablewriter.NewWriter(out)
	table.Header([]string{"Rank", "User", "Score", "Commits", "PRs", "Issues", "Reviews", "Projects", "Days"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, e := range entries {
		name := e.Username
		switch {
		case e.IsBanned:
			name = bannedColor.Sprint(name + " (banned)")
		case e.Rank <= 3:
			name = podiumColor.Sprint(name)
		}
		data = append(data, []string{
			strconv.Itoa(e.Rank),
			name,
			strconv.FormatInt(e.Score, 10),
			strconv.Itoa(e.Commits),
			strconv.Itoa(e.PullRequests),
			strconv.Itoa(e.Issues),
			strconv.Itoa(e.CodeReviews),
			strconv.Itoa(e.Projects),
			strconv.Itoa(e.ActiveDays),
		})
	}
	if err := table.Bulk(data); err != nil {
		return fmt.Errorf("rendering board: %w", err)
	}
	return table.Render()
}
