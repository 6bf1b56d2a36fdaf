package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devadev/deva/internal/config"
	"github.com/devadev/deva/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [container]",
	Short: "Show lifecycle events",
	Long: `Show the lifecycle event log, newest first. With a container name
only that container's events are shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: showHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum events to show")
}

func showHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := history.Open(config.HistoryPath(), cfg.History.RetentionDays)
	if err != nil {
		return err
	}
	defer store.Close()

	var container string
	if len(args) > 0 {
		container = args[0]
	}
	events, err := store.List(container, historyLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No events")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tCONTAINER\tAGENT\tACTION\tDETAIL")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			ev.Time.Local().Format("2006-01-02 15:04:05"),
			ev.Container,
			ev.Agent,
			ev.Action,
			ev.Detail,
		)
	}
	return w.Flush()
}
