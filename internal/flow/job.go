package flow

import (
	"fmt"

	"lightflow/internal/fsutil"
)

// JobOutput names one expected output file and the dataset folder it is
// uploaded to.
type JobOutput struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

// Job is one unit of array work bound to a single input file.
//
// The definition is persisted once at materialization and never mutated;
// the job's lifecycle state lives in its own status record so a worker
// process can update it without holding the Job in memory.
type Job struct {
	InputData     string               `json:"input_data"`
	Outputs       map[string]JobOutput `json:"outputs"`
	SecondaryData map[string]string    `json:"secondary_data"`
	Image         string               `json:"image"`
	JobID         int                  `json:"job_id"`
	TaskID        int                  `json:"task_id"`
	Command       string               `json:"command"`
	Binds         map[string]string    `json:"binds"`
	Envs          map[string]string    `json:"envs,omitempty"`
}

// LoadJob reads a job definition file.
func LoadJob(path string) (*Job, error) {
	var job Job
	if err := fsutil.ReadJSONStrict(path, &job); err != nil {
		return nil, fmt.Errorf("load job %s: %w", path, err)
	}
	return &job, nil
}

// Save writes the job definition to path.
func (j *Job) Save(path string) error {
	if err := fsutil.WriteJSONAtomic(path, j, 0o644); err != nil {
		return fmt.Errorf("save job %d: %w", j.JobID, err)
	}
	return nil
}

// newJob binds job id to inputPath with the task's command, image, output
// mapping and binds.
func (t *Task) newJob(id int, inputPath string) *Job {
	outputs := make(map[string]JobOutput, len(t.Outputs))
	for key, filename := range t.Outputs {
		outputs[key] = JobOutput{Name: filename, Target: t.OutputsData[key].Path}
	}
	secondary := make(map[string]string, len(t.SecondaryData))
	for key, ds := range t.SecondaryData {
		secondary[key] = ds.Path
	}
	return &Job{
		InputData:     inputPath,
		Outputs:       outputs,
		SecondaryData: secondary,
		Image:         t.Image.Path,
		JobID:         id,
		TaskID:        t.TaskID,
		Command:       t.Command,
		Binds:         copyMap(t.Binds),
	}
}
