// Package runner executes one job of a task array: it stages the image
// and inputs into a workarea, runs the job command inside the container
// runtime, heartbeats the job's status record while the process lives,
// and uploads the declared outputs.
//
// Execution errors are contained: whatever goes wrong while staging,
// running or uploading is recorded as a terminal failed status and the
// worker exits cleanly, so the scheduler sees a normal exit and the rest
// of the array continues.
package runner

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"lightflow/internal/flow"
	"lightflow/internal/status"
)

// Launcher starts the assembled container command with the given
// environment. It exists so tests can swap the container runtime out.
type Launcher func(command string, env map[string]string) (*Proc, error)

// Options configures one job execution.
type Options struct {
	// JobPath is the job definition file (tasks/<task>/jobs/job_<id>.json).
	JobPath string

	// Workarea is the job's scratch directory.
	Workarea string

	// Interval between heartbeats; DefaultPolicy's when zero.
	Interval time.Duration

	// Launcher starts the container process; StartProc when nil.
	Launcher Launcher
}

type stagedOutput struct {
	source string
	target string
}

// Run executes the job to a terminal status. The returned error is
// reserved for internal faults before the status record is reachable;
// job-level failures are written to the record and return nil.
func Run(opts Options) error {
	job, err := flow.LoadJob(opts.JobPath)
	if err != nil {
		return err
	}
	store := status.NewStore(jobStatusPath(opts.JobPath, job.JobID))

	interval := opts.Interval
	if interval <= 0 {
		interval = flow.DefaultPolicy.HeartbeatInterval
	}
	launch := opts.Launcher
	if launch == nil {
		launch = StartProc
	}

	log := slog.With("job_id", job.JobID, "task_id", job.TaskID)
	log.Info("job loaded", "input", job.InputData)

	if err := store.Reset(); err != nil {
		return err
	}
	if err := store.SetState(status.Pending); err != nil {
		return err
	}

	fail := func(msg string, err error) error {
		log.Error(msg, "err", err)
		if werr := store.SetState(status.Failed); werr != nil {
			return werr
		}
		return nil
	}

	if err := os.MkdirAll(opts.Workarea, 0o755); err != nil {
		return fail("workarea creation failed", err)
	}

	command, outputs, err := stage(job, opts.Workarea)
	if err != nil {
		return fail("staging failed", err)
	}

	entrypoint := filepath.Join(opts.Workarea, "entrypoint.sh")
	body := fmt.Sprintf("cd %s\n%s\n", opts.Workarea, command)
	if err := os.WriteFile(entrypoint, []byte(body), 0o755); err != nil {
		return fail("entrypoint write failed", err)
	}

	containerCmd := containerCommand(job, opts.Workarea, entrypoint)
	log.Info("running job command", "command", containerCmd)

	proc, err := launch(containerCmd, jobEnv(job, opts.Workarea))
	if err != nil {
		return fail("process start failed", err)
	}
	if err := store.SetState(status.Running); err != nil {
		return err
	}

	heartbeat(proc, store, interval, log)

	if st := proc.State(); st != status.Completed {
		return fail("job command exited abnormally", fmt.Errorf("process state %s", st))
	}

	for _, out := range outputs {
		if _, err := os.Stat(out.source); err != nil {
			return fail("expected output missing from workarea", fmt.Errorf("%s: %w", out.source, err))
		}
		log.Info("uploading output", "source", out.source, "target", out.target)
		if err := moveFile(out.source, out.target); err != nil {
			return fail("output upload failed", err)
		}
		if _, err := Link(out.target, out.source); err != nil {
			return fail("output link failed", err)
		}
	}

	log.Info("job completed")
	if err := store.Ping(); err != nil {
		return err
	}
	return store.SetState(status.Completed)
}

// heartbeat refreshes the job's record every interval until the process
// exits, so a supervisor can tell a stalled worker from a busy one.
func heartbeat(proc *Proc, store *status.Store, interval time.Duration, log *slog.Logger) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-proc.Done():
			return
		case <-tick.C:
			if err := store.Ping(); err != nil {
				log.Warn("heartbeat failed", "err", err)
			}
		}
	}
}

// stage links the input and secondary data into the workarea and expands
// every placeholder in the command template. It returns the expanded
// command and the output files expected after execution.
func stage(job *flow.Job, workarea string) (string, []stagedOutput, error) {
	command := job.Command

	datasetName := filepath.Base(filepath.Dir(job.InputData))
	inputLink, err := Link(job.InputData, filepath.Join(workarea, datasetName+"."+filepath.Base(job.InputData)))
	if err != nil {
		return "", nil, fmt.Errorf("stage input: %w", err)
	}
	command = strings.ReplaceAll(command, "%IN", inputLink)

	for key, target := range job.SecondaryData {
		link, err := Link(target, filepath.Join(workarea, filepath.Base(target)))
		if err != nil {
			return "", nil, fmt.Errorf("stage secondary %q: %w", key, err)
		}
		command = strings.ReplaceAll(command, "%"+key, link)
	}

	outputs := make([]stagedOutput, 0, len(job.Outputs))
	for key, out := range job.Outputs {
		ext := filepath.Ext(out.Name)
		base := strings.TrimSuffix(out.Name, ext)
		filename := fmt.Sprintf("%s.%d%s", base, job.JobID, ext)
		command = strings.ReplaceAll(command, "%"+key, filename)
		if err := os.MkdirAll(out.Target, 0o755); err != nil {
			return "", nil, fmt.Errorf("output target %q: %w", out.Target, err)
		}
		outputs = append(outputs, stagedOutput{
			source: filepath.Join(workarea, filename),
			target: filepath.Join(out.Target, filename),
		})
	}
	return command, outputs, nil
}

// containerCommand assembles the container runtime invocation: the image
// is staged into the workarea by link and executed with the job's binds.
func containerCommand(job *flow.Job, workarea, entrypoint string) string {
	image := job.Image
	if link, err := Link(image, filepath.Join(workarea, filepath.Base(image))); err == nil {
		image = link
	}

	var binds strings.Builder
	for _, host := range sortedBindKeys(job.Binds) {
		fmt.Fprintf(&binds, " --bind %s:%s", host, job.Binds[host])
	}
	return fmt.Sprintf("singularity exec --nv --writable-tmpfs%s %s bash %s", binds.String(), image, entrypoint)
}

// jobEnv builds the worker environment: scheduler passthroughs and the
// job identity, overridable by the job's own envs.
func jobEnv(job *flow.Job, workarea string) map[string]string {
	env := map[string]string{
		"JOB_ID":               strconv.Itoa(job.JobID),
		"JOB_WORKAREA":         workarea,
		"TF_CPP_MIN_LOG_LEVEL": "3",
		"CUDA_VISIBLE_ORDER":   "PCI_BUS_ID",
		"CUDA_VISIBLE_DEVICES": envOr("CUDA_VISIBLE_DEVICES", "-1"),
		"OMP_NUM_THREADS":      envOr("SLURM_CPUS_PER_TASK", "4"),
		"SLURM_MEM_PER_NODE":   envOr("SLURM_MEM_PER_NODE", "2048"),
	}
	env["SLURM_CPUS_PER_TASK"] = env["OMP_NUM_THREADS"]
	for key, value := range job.Envs {
		env[key] = value
	}
	return env
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// jobStatusPath derives the job's status record from its definition
// path: definitions live under <task>/jobs, records under <task>/db.
func jobStatusPath(jobPath string, jobID int) string {
	taskDir := filepath.Dir(filepath.Dir(jobPath))
	return filepath.Join(taskDir, "db", "job_"+strconv.Itoa(jobID)+".json")
}

// moveFile renames source to target, copying across filesystems when
// rename is not possible.
func moveFile(source, target string) error {
	if err := os.Rename(source, target); err == nil {
		return nil
	}
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(source)
}

func sortedBindKeys(binds map[string]string) []string {
	keys := make([]string, 0, len(binds))
	for key := range binds {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
