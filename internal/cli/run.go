package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"lightflow/internal/flow"
	"lightflow/internal/runner"
	"lightflow/internal/slurm"
	"lightflow/internal/status"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one job, task or finalization step",
	}
	cmd.AddCommand(newRunJobCmd())
	cmd.AddCommand(newRunTaskCmd())
	cmd.AddCommand(newRunNextCmd())
	return cmd
}

func newRunJobCmd() *cobra.Command {
	var jobPath string
	var workarea string

	cmd := &cobra.Command{
		Use:   "job",
		Short: "Execute one job of an array given its definition file",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Job-level failures are recorded in the status store and
			// exit zero so the scheduler sees a normal array element.
			return runner.Run(runner.Options{JobPath: jobPath, Workarea: workarea})
		},
	}
	cmd.Flags().StringVarP(&jobPath, "input", "i", "", "job definition file")
	cmd.Flags().StringVarP(&workarea, "output", "o", "", "job workarea directory")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newRunTaskCmd() *cobra.Command {
	var taskFile string
	var index int
	var local bool

	cmd := &cobra.Command{
		Use:   "task",
		Short: "Materialize and submit a task's job array",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := flow.Load(taskFile)
			if err != nil {
				return err
			}
			task, err := reg.TaskByID(index)
			if err != nil {
				return err
			}
			sub := submitter(local)

			closing := flow.BatchOptions{
				JobName: fmt.Sprintf("next-%d", task.TaskID),
				Output:  filepath.Join(task.ScriptsDir(), fmt.Sprintf("task_next_%d.out", task.TaskID)),
				Error:   filepath.Join(task.ScriptsDir(), fmt.Sprintf("task_next_%d.err", task.TaskID)),
			}

			if task.State() == status.Completed {
				slog.Info("task already completed, skipping submission", "task", task.Name)
			} else {
				if err := task.SetState(status.Running); err != nil {
					return err
				}
				arrayID, err := task.Submit(sub)
				if err != nil {
					return err
				}
				if arrayID != "" {
					closing.Dependency = "afterok:" + arrayID
				}
			}

			// The closing step finalizes the task once the array exits.
			script := flow.Script{
				Path:    filepath.Join(task.ScriptsDir(), fmt.Sprintf("close_task_%d.sh", task.TaskID)),
				Options: closing,
				Body: reg.ScriptBody(fmt.Sprintf("lightflow run next -t %s -x %d",
					taskFile, task.TaskID)),
			}
			if _, err := sub.Submit(script); err != nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&taskFile, "task-file", "t", "flow.json", "graph file to read")
	cmd.Flags().IntVarP(&index, "index", "x", 0, "task index")
	cmd.Flags().BoolVar(&local, "local", false, "write scripts without submitting to the scheduler")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

func newRunNextCmd() *cobra.Command {
	var taskFile string
	var index int
	var local bool

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Finalize a task and trigger or cancel its downstream tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := flow.Load(taskFile)
			if err != nil {
				return err
			}
			task, err := reg.TaskByID(index)
			if err != nil {
				return err
			}

			res, err := task.Finalize(submitter(local))
			if err != nil {
				return err
			}
			slog.Info("finalization done",
				"task", task.Name, "state", res.State,
				"triggered", len(res.Triggered), "canceled", len(res.Canceled))
			return nil
		},
	}
	cmd.Flags().StringVarP(&taskFile, "task-file", "t", "flow.json", "graph file to read")
	cmd.Flags().IntVarP(&index, "index", "x", 0, "task index")
	cmd.Flags().BoolVar(&local, "local", false, "write scripts without submitting to the scheduler")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

func submitter(local bool) flow.Submitter {
	if local {
		return slurm.Local{}
	}
	return slurm.Batch{}
}
