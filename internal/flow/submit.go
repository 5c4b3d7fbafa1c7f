package flow

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"lightflow/internal/status"
)

// selfCommand is the binary name baked into generated batch scripts.
const selfCommand = "lightflow"

// BatchOptions is the scheduler-facing description of one submission.
type BatchOptions struct {
	JobName   string
	Output    string
	Error     string
	Partition string

	// Array is the comma-separated index set, empty for a plain script.
	Array string

	// Dependency chains this submission after another one, in the
	// scheduler's "afterok:<id>" form.
	Dependency string
}

// Script is a batch script handed to a Submitter: where to write it, the
// scheduler options, and the command body.
type Script struct {
	Path    string
	Options BatchOptions
	Body    []string
}

// Submitter hands a script to the external batch scheduler and returns
// the scheduler-assigned submission id.
type Submitter interface {
	Submit(Script) (string, error)
}

// Submit materializes any unmaterialized jobs and submits the array of
// jobs still in the assigned state, returning the scheduler's array id.
//
// Resubmission is idempotent: jobs already completed or currently running
// are excluded from the index set. When nothing is left to run, no
// submission happens and the returned id is empty. A missing submitter is
// fatal to the submission; retries, if any, belong to the scheduler.
func (t *Task) Submit(sub Submitter) (string, error) {
	if sub == nil {
		return "", errors.New("no scheduler submitter configured")
	}
	if _, err := t.Materialize(); err != nil {
		return "", err
	}

	ids, err := t.JobsWithState(status.Assigned)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		slog.Info("no assigned jobs to submit", "task", t.Name)
		return "", nil
	}

	indices := make([]string, len(ids))
	for i, id := range ids {
		indices[i] = strconv.Itoa(id)
	}

	script := Script{
		Path: filepath.Join(t.ScriptsDir(), fmt.Sprintf("run_task_%d.sh", t.TaskID)),
		Options: BatchOptions{
			JobName:   fmt.Sprintf("run-%d", t.TaskID),
			Output:    filepath.Join(t.WorksDir(), "job_%a", "output.out"),
			Error:     filepath.Join(t.WorksDir(), "job_%a", "output.err"),
			Partition: t.Partition,
			Array:     strings.Join(indices, ","),
		},
		Body: t.reg.ScriptBody(fmt.Sprintf("%s run job -i %s -o %s",
			selfCommand,
			filepath.Join(t.JobsDir(), "job_$SLURM_ARRAY_TASK_ID.json"),
			filepath.Join(t.WorksDir(), "job_$SLURM_ARRAY_TASK_ID"))),
	}

	arrayID, err := sub.Submit(script)
	if err != nil {
		return "", fmt.Errorf("submit task %q: %w", t.Name, err)
	}
	slog.Info("task array submitted", "task", t.Name, "array_id", arrayID, "jobs", len(ids))
	return arrayID, nil
}

// ScriptBody prefixes command with the environment activation line when
// the registry carries one.
func (r *Registry) ScriptBody(command string) []string {
	body := make([]string, 0, 2)
	if r.Virtualenv != "" {
		body = append(body, "source "+filepath.Join(r.Virtualenv, "bin", "activate"))
	}
	return append(body, command)
}
