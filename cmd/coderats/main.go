// coderats is the operator CLI: schema migrations, one-off rank runs, seeding
// tracked users and inspecting the board.
//
//	go run ./cmd/coderats migrate up
//	go run ./cmd/coderats seed torvalds gaearon --rank
//	go run ./cmd/coderats leaderboard --limit 20
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/fatih/color"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
