package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tani/internal/cli"
	"tani/internal/services"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect the remembered session",
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the remember-me flag and the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		repo := cli.InitSQLite(newLogger(cfg), cfg.SQLiteDBPath)
		defer repo.Close()

		ctx := cmd.Context()
		remember, err := repo.RememberMe(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "remember me: %t\n", remember)

		sess, ok, err := repo.LoadSession(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "stored session: none")
			return nil
		}
		state := "valid"
		if sess.Expired(time.Now(), 0) {
			state = "expired, refreshed on next launch"
		}
		fmt.Fprintf(out, "stored session: %s (%s), expires %s, %s\n",
			sess.Email, sess.UserID, sess.ExpiresAt.Local().Format(time.RFC3339), state)
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the stored session so the next launch lands on the login screen",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		repo := cli.InitSQLite(newLogger(cfg), cfg.SQLiteDBPath)
		defer repo.Close()

		if err := repo.ClearSession(cmd.Context()); err != nil {
			return err
		}
		if err := repo.SetRememberMe(cmd.Context(), false); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
		return nil
	},
}

var pruneOlderThan time.Duration

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Maintain report jobs",
}

var jobsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete finished report jobs and their PDFs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := newLogger(cfg)
		repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
		defer repo.Close()

		janitor := services.NewJanitor(repo, services.JanitorConfig{MaxAge: pruneOlderThan}, logger)
		removed := janitor.Sweep(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d report file(s)\n", removed)
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionStatusCmd, sessionClearCmd)
	jobsPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 7*24*time.Hour, "Age of finished jobs to remove")
	jobsCmd.AddCommand(jobsPruneCmd)
}
