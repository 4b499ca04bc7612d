package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/loom/internal/audit"
	"github.com/ShayCichocki/loom/internal/config"
	"github.com/ShayCichocki/loom/pkg/models"
)

var (
	auditSession string
	auditWorker  string
	auditLimit   int
	auditJSON    bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the tool-call audit trail",
	Long:  `Audit lists gateway-mediated tool calls: who called what, the decision, and the outcome.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path := cfg.Storage.AuditDBPath
		if path == "" {
			path = audit.DefaultPath()
		}
		store, err := audit.Open(path)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		defer store.Close()

		records, err := store.List(audit.Filter{
			SessionID: auditSession,
			WorkerID:  auditWorker,
			Limit:     auditLimit,
		})
		if err != nil {
			return err
		}

		if auditJSON {
			out, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		if len(records) == 0 {
			fmt.Println("no tool calls recorded")
			return nil
		}
		for _, rec := range records {
			fmt.Println(formatAuditRecord(rec))
		}
		fmt.Fprintf(os.Stderr, "\n%d record(s)\n", len(records))
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditSession, "session", "", "filter by session ID")
	auditCmd.Flags().StringVar(&auditWorker, "worker", "", "filter by worker ID")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum records to show (0 for all)")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "emit records as JSON")
}

func formatAuditRecord(rec models.ToolCallRecord) string {
	decision := string(rec.Decision)
	switch rec.Decision {
	case models.DecisionAllow:
		decision = color.GreenString(decision)
	case models.DecisionDeny:
		decision = color.RedString(decision)
	default:
		decision = color.YellowString(decision)
	}

	line := fmt.Sprintf("%s  %-12s %-10s %s (%dms)",
		rec.Timestamp.Local().Format("2006-01-02 15:04:05"),
		rec.WorkerID, rec.ToolName, decision, rec.DurationMs)
	if rec.Reason != "" {
		line += "  " + rec.Reason
	}
	if rec.Error != "" {
		line += "  " + color.RedString(rec.Error)
	}
	return line
}
