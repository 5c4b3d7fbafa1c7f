package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"lightflow/internal/flow"
	"lightflow/internal/status"
)

func newListCmd() *cobra.Command {
	var taskFile string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tasks of a flow and their current states",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := flow.Load(taskFile)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPARTITION\tSTATUS\tJOBS\tNEXT")
			for _, t := range reg.Tasks() {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					t.TaskID, t.Name, t.Partition,
					colorize(t.State()), jobSummary(reg, t),
					strings.Join(t.Next, ","))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&taskFile, "task-file", "t", "flow.json", "graph file to read")
	return cmd
}

// jobSummary reports completed/total for the task's jobs and flags
// running jobs whose heartbeat went silent.
func jobSummary(reg *flow.Registry, t *flow.Task) string {
	states, err := t.JobStates()
	if err != nil || len(states) == 0 {
		return "-"
	}
	completed, stalled := 0, 0
	for id, st := range states {
		switch st {
		case status.Completed:
			completed++
		case status.Running:
			alive, err := t.JobStatusStore(id).IsAlive(reg.Policy().HeartbeatTimeout)
			if err == nil && !alive {
				stalled++
			}
		}
	}
	summary := fmt.Sprintf("%d/%d", completed, len(states))
	if stalled > 0 {
		summary += color.YellowString(" (%d stalled)", stalled)
	}
	return summary
}

func colorize(st status.State) string {
	switch st {
	case status.Completed, status.Finalized:
		return color.GreenString(string(st))
	case status.Failed:
		return color.RedString(string(st))
	case status.Canceled:
		return color.YellowString(string(st))
	case status.Running, status.Pending:
		return color.CyanString(string(st))
	default:
		return string(st)
	}
}
