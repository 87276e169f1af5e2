package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"coderats/internal/config"
	"coderats/internal/db"
	"coderats/internal/rdb"
)

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.FgHiBlack)
)

var rootCmd = &cobra.Command{
	Use:           "coderats",
	Short:         "Operate the CodeRats developer leaderboard.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load()
		return err
	},
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, rankCmd, leaderboardCmd, seedCmd, hashPasswordCmd)
}

// openDB connects to Postgres. Commands that touch data need DATABASE_URL.
func openDB() (*db.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return db.New(cfg.DatabaseURL)
}

func openCache() (*rdb.Client, error) {
	return rdb.New(cfg.RedisURL)
}
