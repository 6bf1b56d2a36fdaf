package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/devadev/deva/internal/config"
	"github.com/devadev/deva/internal/session"
	"github.com/devadev/deva/internal/ui"
)

var (
	listAll   bool
	listJSON  bool
	listPrune bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List workspace containers",
	Long: `Show the containers deva manages, reconciled against the engine.

By default only running containers are shown; --all includes stopped and
removed ones. --prune deletes session records whose container no longer
exists.`,
	RunE: listContainers,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "include stopped and removed containers")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output JSON")
	listCmd.Flags().BoolVar(&listPrune, "prune", false, "drop records for containers that no longer exist")
}

func listContainers(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	sessions := session.NewManager(config.SessionsDir())
	ctx := cmd.Context()

	if listPrune {
		pruned, err := sessions.Prune(ctx, eng)
		if err != nil {
			return err
		}
		for _, name := range pruned {
			ui.Infof("Pruned %s", name)
		}
	}

	records, err := sessions.Reconcile(ctx, eng)
	if err != nil {
		return err
	}
	if !listAll {
		running := records[:0]
		for _, r := range records {
			if r.Status == session.StatusRunning {
				running = append(running, r)
			}
		}
		records = running
	}

	if listJSON {
		return json.NewEncoder(os.Stdout).Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No containers found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONTAINER\tAGENT\tAUTH\tSTATUS\tWORKSPACE\tLAST SEEN")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Container,
			r.Agent,
			r.Auth.Method,
			r.Status,
			r.Workspace,
			formatAge(r.LastSeen),
		)
	}
	return w.Flush()
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}
