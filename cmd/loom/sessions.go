package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/loom/internal/config"
	"github.com/ShayCichocki/loom/internal/state"
	"github.com/ShayCichocki/loom/pkg/models"
)

var (
	sessionsLimit    int
	sessionsPurgeAge time.Duration
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage recorded sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStateDB()
		if err != nil {
			return err
		}
		defer db.Close()

		sessions, err := db.ListSessions(sessionsLimit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions recorded")
			return nil
		}

		for _, sess := range sessions {
			status := string(sess.Status)
			switch sess.Status {
			case models.SessionCompleted:
				status = color.GreenString(status)
			case models.SessionFailed:
				status = color.RedString(status)
			default:
				status = color.YellowString(status)
			}
			goal := sess.TaskGoal
			if len(goal) > 60 {
				goal = goal[:57] + "..."
			}
			fmt.Printf("%s  %s  %-9s  %s\n",
				sess.ID, sess.StartedAt.Local().Format("2006-01-02 15:04"), status, goal)
		}
		return nil
	},
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete sessions older than the given age",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStateDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.PurgeOldSessions(sessionsPurgeAge)
		if err != nil {
			return err
		}
		fmt.Printf("%s purged %d session(s) older than %s\n", color.GreenString("✓"), n, sessionsPurgeAge)
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to show (0 for all)")
	sessionsPurgeCmd.Flags().DurationVar(&sessionsPurgeAge, "older-than", 30*24*time.Hour, "purge sessions older than this")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsPurgeCmd)
}

func openStateDB() (*state.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	path := cfg.Storage.DBPath
	if path == "" {
		path = state.GlobalDBPath()
	}
	db, err := state.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state store: %w", err)
	}
	return db, nil
}
