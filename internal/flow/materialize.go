package flow

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"lightflow/internal/fsutil"
	"lightflow/internal/status"
)

// Ledger is the task's persisted materialization record: the set of input
// filenames already turned into jobs, plus a mirror of the task state for
// human inspection. Job ids are positions in Files and are never reused.
type Ledger struct {
	Status status.State `json:"status"`
	Files  []string     `json:"files"`
}

func (t *Task) ledgerPath() string {
	return filepath.Join(t.DBDir(), "task.json")
}

func (t *Task) loadLedger() (Ledger, error) {
	var led Ledger
	if err := fsutil.ReadJSONStrict(t.ledgerPath(), &led); err != nil {
		if os.IsNotExist(err) {
			return Ledger{Status: status.Created, Files: []string{}}, nil
		}
		return Ledger{}, fmt.Errorf("load ledger for task %q: %w", t.Name, err)
	}
	if led.Files == nil {
		led.Files = []string{}
	}
	return led, nil
}

func (t *Task) saveLedger(led Ledger) error {
	if err := fsutil.WriteJSONAtomic(t.ledgerPath(), led, 0o644); err != nil {
		return fmt.Errorf("save ledger for task %q: %w", t.Name, err)
	}
	return nil
}

// Materialize creates exactly one job per input file not yet in the
// ledger, leaving previously materialized jobs untouched, and returns the
// new job ids.
//
// The operation is idempotent: re-invoking it on an unchanged input set is
// a no-op, and after new files land only the delta gains jobs, with
// strictly increasing, never-reused ids. The ledger is written once, at
// the end of the pass.
//
// Callers must serialize materialization per task (the ledger update is a
// non-atomic read/append/write sequence); this is an external invariant,
// not provided here.
func (t *Task) Materialize() ([]int, error) {
	if err := t.mkdirLayout(); err != nil {
		return nil, err
	}

	led, err := t.loadLedger()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(led.Files))
	for _, name := range led.Files {
		seen[name] = true
	}

	inputs, err := t.InputData.Files()
	if err != nil {
		return nil, fmt.Errorf("task %q input %q: %w", t.Name, t.InputData.Name, err)
	}

	created := make([]int, 0)
	nextID := len(led.Files)
	for _, inputPath := range inputs {
		filename := filepath.Base(inputPath)
		if seen[filename] {
			continue
		}

		slog.Info("preparing job", "task", t.Name, "job_id", nextID, "file", filename)
		job := t.newJob(nextID, inputPath)
		if err := job.Save(t.JobDefPath(nextID)); err != nil {
			return created, err
		}
		if err := t.JobStatusStore(nextID).Write(status.New(status.Assigned)); err != nil {
			return created, err
		}

		led.Files = append(led.Files, filename)
		seen[filename] = true
		created = append(created, nextID)
		nextID++
	}

	if led.Status == status.Created {
		led.Status = status.Assigned
	}
	if err := t.saveLedger(led); err != nil {
		return created, err
	}

	ts := t.StatusStore()
	st, err := ts.Read()
	if err != nil {
		return created, err
	}
	if st.State == status.Unknown {
		if err := ts.Write(status.New(status.Assigned)); err != nil {
			return created, err
		}
	}

	slog.Info("materialization pass done", "task", t.Name, "new_jobs", len(created), "total_jobs", len(led.Files))
	return created, nil
}

// JobStates reads the current status of every job belonging to the task,
// one entry per ledger position. A missing or unreadable record counts as
// Unknown, never as completed.
func (t *Task) JobStates() ([]status.State, error) {
	led, err := t.loadLedger()
	if err != nil {
		return nil, err
	}
	states := make([]status.State, len(led.Files))
	for id := range led.Files {
		st, err := t.JobStatusStore(id).Read()
		if err != nil {
			slog.Warn("unreadable job status", "task", t.Name, "job_id", id, "err", err)
			states[id] = status.Unknown
			continue
		}
		states[id] = st.State
	}
	return states, nil
}

// JobsWithState returns the job ids currently in state st, in id order.
func (t *Task) JobsWithState(st status.State) ([]int, error) {
	states, err := t.JobStates()
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(states))
	for id, have := range states {
		if have == st {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
