package flow

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"lightflow/internal/fsutil"
	"lightflow/internal/status"
)

// FinalizeResult reports what a finalization pass decided and did.
type FinalizeResult struct {
	// State is the task state the aggregation settled on.
	State status.State

	// Canceled lists the downstream tasks newly canceled, in visit order.
	Canceled []string

	// Triggered lists the downstream tasks whose submission was handed to
	// the scheduler.
	Triggered []string
}

// Finalize aggregates the task's job statuses into one task-level state
// and advances or cancels the downstream wavefront.
//
// Decision rule, first match wins:
//  1. every job completed (vacuously true for zero jobs) -> completed
//  2. failed fraction strictly above the policy ratio -> failed, and the
//     entire downstream closure is canceled
//  3. otherwise -> finalized (good enough to unblock downstream work)
//
// Unknown or missing job records count as not-completed, never as
// completed. On completed/finalized every task in Next is started through
// sub; on failed nothing downstream starts.
func (t *Task) Finalize(sub Submitter) (FinalizeResult, error) {
	states, err := t.JobStates()
	if err != nil {
		return FinalizeResult{}, err
	}

	decided := decide(states, t.reg.policy.FailureRatio)
	if err := t.SetState(decided); err != nil {
		return FinalizeResult{}, err
	}
	res := FinalizeResult{State: decided}
	slog.Info("task finalized", "task", t.Name, "state", decided, "jobs", len(states))

	if decided == status.Failed {
		canceled, err := t.cancelDownstream()
		if err != nil {
			return res, err
		}
		res.Canceled = canceled
		return res, nil
	}

	for _, name := range t.Next {
		next, err := t.reg.Task(name)
		if err != nil {
			return res, err
		}
		if err := next.trigger(sub); err != nil {
			return res, err
		}
		res.Triggered = append(res.Triggered, name)
	}
	return res, nil
}

// decide applies the aggregation rule to one set of job states.
func decide(states []status.State, failureRatio float64) status.State {
	if len(states) == 0 {
		return status.Completed
	}
	completed, failed := 0, 0
	for _, st := range states {
		switch st {
		case status.Completed:
			completed++
		case status.Failed:
			failed++
		}
	}
	switch {
	case completed == len(states):
		return status.Completed
	case float64(failed)/float64(len(states)) > failureRatio:
		return status.Failed
	default:
		return status.Finalized
	}
}

// cancelDownstream walks the transitive Next closure breadth-first with a
// visited set, marking every reachable task canceled exactly once, even
// across diamond-shaped dependencies. It returns the newly canceled task
// names in visit order.
func (t *Task) cancelDownstream() ([]string, error) {
	visited := map[string]bool{t.Name: true}
	queue := append([]string(nil), t.Next...)
	canceled := make([]string, 0)

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited[name] {
			continue
		}
		visited[name] = true

		down, err := t.reg.Task(name)
		if err != nil {
			return canceled, err
		}
		slog.Info("canceling dependent task", "task", name, "caused_by", t.Name)
		if err := down.SetState(status.Canceled); err != nil {
			return canceled, err
		}
		canceled = append(canceled, name)
		queue = append(queue, down.Next...)
	}
	return canceled, nil
}

// trigger submits the script that materializes and runs this task, the
// same path the CLI takes. The graph advances wavefront by wavefront: a
// task starts only after its upstream predecessor finalized.
func (t *Task) trigger(sub Submitter) error {
	if err := t.mkdirLayout(); err != nil {
		return err
	}
	script := Script{
		Path: filepath.Join(t.ScriptsDir(), fmt.Sprintf("init_task_%d.sh", t.TaskID)),
		Options: BatchOptions{
			JobName: fmt.Sprintf("init-%d", t.TaskID),
			Output:  filepath.Join(t.ScriptsDir(), fmt.Sprintf("task_%d.out", t.TaskID)),
			Error:   filepath.Join(t.ScriptsDir(), fmt.Sprintf("task_%d.err", t.TaskID)),
		},
		Body: t.reg.ScriptBody(fmt.Sprintf("%s run task -t %s -x %d",
			selfCommand, t.reg.Source, t.TaskID)),
	}
	if _, err := sub.Submit(script); err != nil {
		return fmt.Errorf("trigger task %q: %w", t.Name, err)
	}
	slog.Info("dependent task started", "task", t.Name)
	return nil
}

// SetState writes the canonical status record and mirrors the state into
// the ledger. Safe here because materialization and finalization are
// externally serialized per task.
func (t *Task) SetState(st status.State) error {
	if err := t.mkdirLayout(); err != nil {
		return err
	}
	if err := t.StatusStore().SetState(st); err != nil {
		return err
	}
	led, err := t.loadLedger()
	if err != nil {
		return err
	}
	led.Status = st
	return t.saveLedger(led)
}

func (t *Task) mkdirLayout() error {
	for _, dir := range []string{t.JobsDir(), t.WorksDir(), t.ScriptsDir(), t.DBDir()} {
		if err := fsutil.EnsureDir(dir, 0o755); err != nil {
			return fmt.Errorf("task %q layout: %w", t.Name, err)
		}
	}
	return nil
}
