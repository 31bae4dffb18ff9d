package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"orb/config"
	"orb/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the per-leg trade journal",
	Long: `List closed legs from the SQLite journal, either for one session or
for every leg closed in the last --days days.

Example:
  orb journal -f orb.yaml --days 7
  orb journal -f orb.yaml --session 01JXAMPLE`,
	RunE: runJournal,
}

var (
	journalSession string
	journalDays    int
)

func init() {
	rootCmd.AddCommand(journalCmd)

	journalCmd.Flags().StringVar(&journalSession, "session", "", "show one session's legs")
	journalCmd.Flags().IntVar(&journalDays, "days", 7, "window in days")
}

func runJournal(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	j, err := journal.NewSQLite(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	var legs []journal.LegRecord
	if journalSession != "" {
		legs, err = j.SessionLegs(journalSession)
	} else {
		now := time.Now()
		legs, err = j.LegsClosedBetween(now.AddDate(0, 0, -journalDays), now)
	}
	if err != nil {
		return err
	}

	if len(legs) == 0 {
		fmt.Println("no closed legs")
		return nil
	}

	fmt.Printf("%-28s %-6s %3s %6s %10s %10s %10s %-12s\n",
		"SESSION", "SYMBOL", "LEG", "QTY", "ENTRY", "EXIT", "PNL", "REASON")
	for _, l := range legs {
		fmt.Printf("%-28s %-6s %3d %6d %10.2f %10.2f %10.2f %-12s\n",
			l.SessionID, l.Symbol, l.Leg, l.Qty, l.EntryPrice, l.ExitPrice, l.RealizedPL, l.Reason)
	}
	return nil
}
